package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/adpilot/engine/internal/domain"
	"github.com/adpilot/engine/internal/telemetry"
)

// DefaultBaseURL is the Graph API root used when none is configured.
const DefaultBaseURL = "https://graph.facebook.com/v19.0"

// HTTPClient is the subset of *http.Client the Meta client uses.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// MetaOptions configures a MetaClient. Zero values take defaults.
type MetaOptions struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryBase  time.Duration
}

// MetaClient implements Adapter against the Meta Graph API. Transport
// errors, 429 and 5xx responses are retried with exponential backoff and
// jitter; other 4xx responses are returned as rejections.
type MetaClient struct {
	BaseURL    string
	HTTP       HTTPClient
	MaxRetries int
	RetryBase  time.Duration
	Log        *zap.Logger
	Metrics    *telemetry.Metrics

	// Sleep waits between attempts. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewMetaClient creates a client with its own *http.Client.
func NewMetaClient(opts MetaOptions, log *zap.Logger, metrics *telemetry.Metrics) *MetaClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 200 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MetaClient{
		BaseURL:    strings.TrimRight(opts.BaseURL, "/"),
		HTTP:       &http.Client{Timeout: opts.Timeout},
		MaxRetries: opts.MaxRetries,
		RetryBase:  opts.RetryBase,
		Log:        log,
		Metrics:    metrics,
		Sleep:      sleepCtx,
	}
}

// PauseCampaign sets the campaign status to PAUSED.
func (c *MetaClient) PauseCampaign(ctx context.Context, creds Credentials, platformCampaignID string) (*Response, error) {
	form := url.Values{"status": {"PAUSED"}}
	return c.post(ctx, "pause_campaign", creds, platformCampaignID, form)
}

// UpdateAdSetDailyBudget sets the ad set's daily budget in minor units.
func (c *MetaClient) UpdateAdSetDailyBudget(ctx context.Context, creds Credentials, platformAdSetID string, cents int64) (*Response, error) {
	form := url.Values{"daily_budget": {strconv.FormatInt(cents, 10)}}
	return c.post(ctx, "update_adset_budget", creds, platformAdSetID, form)
}

// graphError is the error envelope the Graph API returns.
type graphError struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

func (c *MetaClient) post(ctx context.Context, op string, creds Credentials, objectID string, form url.Values) (*Response, error) {
	if creds.AccessToken == "" {
		return &Response{OK: false, Error: "no platform access token configured"}, nil
	}
	form.Set("access_token", creds.AccessToken)
	endpoint := c.BaseURL + "/" + url.PathEscape(objectID)
	body := form.Encode()

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.Sleep(ctx, c.backoff(attempt-1)); err != nil {
				lastErr = err
				break
			}
		}

		resp, retry, err := c.do(ctx, endpoint, body)
		if err == nil {
			outcome := "ok"
			if !resp.OK {
				outcome = "rejected"
			}
			c.Metrics.PlatformRequest(op, outcome, time.Since(start).Seconds())
			return resp, nil
		}
		lastErr = err
		c.Log.Warn("platform call failed",
			zap.String("op", op),
			zap.String("object_id", objectID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if !retry {
			break
		}
	}

	c.Metrics.PlatformRequest(op, "error", time.Since(start).Seconds())
	return nil, domain.WrapEngineError(domain.ErrPlatformTransport.Code, op, lastErr)
}

// retryableStatus marks a response the caller may retry.
type retryableStatus struct {
	code int
	body string
}

func (e *retryableStatus) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

// do sends one attempt. It returns a Response for any answer the platform
// gave definitively, or an error and whether another attempt may succeed.
func (c *MetaClient) do(ctx context.Context, endpoint, body string) (*Response, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, true, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, &retryableStatus{code: resp.StatusCode, body: truncate(string(raw), 256)}
	}

	out := &Response{StatusCode: resp.StatusCode}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ge graphError
		if json.Unmarshal(raw, &ge) == nil && ge.Error.Message != "" {
			out.Error = ge.Error.Message
			out.Data = map[string]any{"type": ge.Error.Type, "code": ge.Error.Code, "fbtrace_id": ge.Error.FBTraceID}
		} else {
			out.Error = fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(raw), 256))
		}
		return out, false, nil
	}

	out.OK = true
	if len(raw) > 0 {
		var data map[string]any
		if err := json.Unmarshal(raw, &data); err == nil {
			out.Data = data
			if success, ok := data["success"].(bool); ok && !success {
				out.OK = false
				out.Error = "platform reported success=false"
			}
		}
	}
	return out, false, nil
}

// backoff returns base*2^i plus up to one base of jitter.
func (c *MetaClient) backoff(i int) time.Duration {
	d := c.RetryBase << i
	return d + time.Duration(rand.Int64N(int64(c.RetryBase)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// IsTransport reports whether err came from an unreachable platform.
func IsTransport(err error) bool {
	return errors.Is(err, domain.ErrPlatformTransport)
}
