package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*MetaClient, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := NewMetaClient(MetaOptions{BaseURL: srv.URL, MaxRetries: 2, RetryBase: 10 * time.Millisecond}, nil, nil)
	var sleeps []time.Duration
	c.Sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return c, &sleeps
}

var creds = Credentials{AccessToken: "tok", AdAccountID: "act_1"}

func TestPauseCampaign_Success(t *testing.T) {
	var gotPath, gotStatus, gotToken string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotPath = r.URL.Path
		gotStatus = r.PostForm.Get("status")
		gotToken = r.PostForm.Get("access_token")
		w.Write([]byte(`{"success":true}`))
	})

	resp, err := c.PauseCampaign(context.Background(), creds, "120001")
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "/120001", gotPath)
	assert.Equal(t, "PAUSED", gotStatus)
	assert.Equal(t, "tok", gotToken)
}

func TestUpdateAdSetDailyBudget_SendsCents(t *testing.T) {
	var gotBudget string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotBudget = r.PostForm.Get("daily_budget")
		w.Write([]byte(`{"success":true}`))
	})

	resp, err := c.UpdateAdSetDailyBudget(context.Background(), creds, "130001", 6500)
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "6500", gotBudget)
}

func TestPost_RejectionIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, sleeps := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid parameter","type":"OAuthException","code":100,"fbtrace_id":"abc"}}`))
	})

	resp, err := c.PauseCampaign(context.Background(), creds, "120001")
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, "Invalid parameter", resp.Error)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, *sleeps)
}

func TestPost_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c, sleeps := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"success":true}`))
	})

	resp, err := c.PauseCampaign(context.Background(), creds, "120001")
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, *sleeps, 2)
	// base*2^i plus at most one base of jitter.
	assert.GreaterOrEqual(t, (*sleeps)[0], 10*time.Millisecond)
	assert.LessOrEqual(t, (*sleeps)[0], 20*time.Millisecond)
	assert.GreaterOrEqual(t, (*sleeps)[1], 20*time.Millisecond)
	assert.LessOrEqual(t, (*sleeps)[1], 30*time.Millisecond)
}

func TestPost_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	resp, err := c.UpdateAdSetDailyBudget(context.Background(), creds, "130001", 100)
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestPost_SuccessFalse(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false}`))
	})

	resp, err := c.PauseCampaign(context.Background(), creds, "120001")
	require.NoError(t, err)
	assert.False(t, resp.OK)
}

func TestPost_MissingToken(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	resp, err := c.PauseCampaign(context.Background(), Credentials{}, "120001")
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Zero(t, calls.Load())
}

func TestPost_ContextCancelledStopsRetrying(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx, cancel := context.WithCancel(context.Background())
	c.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := c.PauseCampaign(ctx, creds, "120001")
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}
