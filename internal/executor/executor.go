// Package executor applies approved optimization actions to the advertising
// platform one at a time.
package executor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/adpilot/engine/internal/action"
	"github.com/adpilot/engine/internal/domain"
	"github.com/adpilot/engine/internal/guard"
	"github.com/adpilot/engine/internal/platform"
	"github.com/adpilot/engine/internal/telemetry"
)

// CampaignStore resolves local campaign records and receives write-backs
// after successful platform calls.
type CampaignStore interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	MarkCampaignPaused(ctx context.Context, id string) error
	SetCampaignDailyBudget(ctx context.Context, id string, cents int64) error
}

// Executor runs actions strictly in order. A failing or panicking action
// yields an error result and never stops the actions after it.
type Executor struct {
	Campaigns CampaignStore
	Platform  platform.Adapter
	Guard     *guard.Guard
	Log       *zap.Logger
	Metrics   *telemetry.Metrics

	// FallbackToken is used when a business has no platform token of its own.
	FallbackToken string
}

// New creates an executor.
func New(campaigns CampaignStore, adapter platform.Adapter, g *guard.Guard, log *zap.Logger, metrics *telemetry.Metrics) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	if g == nil {
		g = guard.NewGuard(guard.GuardConfig{})
	}
	return &Executor{
		Campaigns: campaigns,
		Platform:  adapter,
		Guard:     g,
		Log:       log,
		Metrics:   metrics,
	}
}

// Execute runs every action and returns the aggregated report.
func (e *Executor) Execute(ctx context.Context, business *domain.Business, actions []domain.OptimizationAction) domain.ExecutionReport {
	creds := e.credentials(business)
	maxCents := e.Guard.MaxFor(business)

	report := domain.ExecutionReport{
		Actions: actions,
		Results: make([]domain.ExecutionResult, 0, len(actions)),
	}
	for _, a := range actions {
		res := e.executeOne(ctx, creds, maxCents, a)
		if res.OK {
			report.Succeeded++
		} else {
			report.Failed++
		}
		e.Metrics.ActionResult(string(res.Action), string(res.Status))
		report.Results = append(report.Results, res)
	}
	report.Summary = fmt.Sprintf("%d/%d actions succeeded, %d failed/skipped",
		report.Succeeded, len(actions), report.Failed)
	return report
}

func (e *Executor) credentials(b *domain.Business) platform.Credentials {
	creds := platform.Credentials{AccessToken: e.FallbackToken}
	if b != nil {
		creds.AdAccountID = b.PlatformAdAccountID
		if b.PlatformAccessToken != "" {
			creds.AccessToken = b.PlatformAccessToken
		}
	}
	return creds
}

func (e *Executor) executeOne(ctx context.Context, creds platform.Credentials, maxCents int64, a domain.OptimizationAction) (res domain.ExecutionResult) {
	base := domain.ExecutionResult{Action: a.Kind, CampaignID: a.CampaignID}
	defer func() {
		if r := recover(); r != nil {
			e.Log.Error("action panicked",
				zap.String("action", string(a.Kind)),
				zap.String("campaign_id", a.CampaignID),
				zap.Any("panic", r),
			)
			res = base
			res.Status = domain.ExecError
			res.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	if !a.Executable {
		res = base
		res.Status = domain.ExecUnsupported
		return res
	}

	campaign, err := e.Campaigns.GetCampaign(ctx, a.CampaignID)
	if err != nil {
		res = base
		if errors.Is(err, domain.ErrCampaignNotFound) {
			res.Status = domain.ExecNotFound
			res.Error = "campaign not found"
			return res
		}
		res.Status = domain.ExecError
		res.Error = err.Error()
		return res
	}

	switch {
	case a.Kind == domain.ActionPauseCampaign:
		return e.pause(ctx, creds, campaign, base)
	case a.Kind.IsBudgetChange():
		return e.changeBudget(ctx, creds, campaign, maxCents, a, base)
	default:
		res = base
		res.Status = domain.ExecUnsupported
		return res
	}
}

func (e *Executor) pause(ctx context.Context, creds platform.Credentials, c *domain.Campaign, res domain.ExecutionResult) domain.ExecutionResult {
	if c.PlatformCampaignID == "" {
		res.Status = domain.ExecNotLaunched
		res.Error = "campaign has no platform campaign id"
		return res
	}

	resp, err := e.Platform.PauseCampaign(ctx, creds, c.PlatformCampaignID)
	if failed, msg := platformFailed(resp, err); failed {
		res.Status = domain.ExecMetaError
		res.Error = msg
		return res
	}

	res.OK = true
	res.Status = domain.ExecPaused
	res.Detail = map[string]any{"platform_campaign_id": c.PlatformCampaignID}
	e.syncLocal(res.Detail, c.ID, func() error { return e.Campaigns.MarkCampaignPaused(ctx, c.ID) })
	return res
}

func (e *Executor) changeBudget(ctx context.Context, creds platform.Credentials, c *domain.Campaign, maxCents int64, a domain.OptimizationAction, res domain.ExecutionResult) domain.ExecutionResult {
	if c.PlatformAdSetID == "" {
		res.Status = domain.ExecNotSupported
		res.Error = "campaign has no platform ad set id"
		return res
	}
	if c.DailyBudgetCents == 0 {
		res.Status = domain.ExecSkipped
		res.Error = "current daily budget is zero"
		return res
	}

	pct, _ := action.DefaultPctChange(a.Kind)
	if a.PctChange != nil {
		pct = *a.PctChange
	}
	change := e.Guard.ApplyPctChange(c.DailyBudgetCents, pct, maxCents)

	res.Detail = map[string]any{
		"previous_budget_cents":  change.PreviousCents,
		"requested_budget_cents": change.RawCents,
		"new_budget_cents":       change.NewCents,
		"pct_change":             change.PctChange,
		"clamped":                change.Clamped(),
	}

	resp, err := e.Platform.UpdateAdSetDailyBudget(ctx, creds, c.PlatformAdSetID, change.NewCents)
	if failed, msg := platformFailed(resp, err); failed {
		res.Status = domain.ExecMetaError
		res.Error = msg
		return res
	}

	res.OK = true
	res.Status = domain.ExecBudgetUpdated
	e.syncLocal(res.Detail, c.ID, func() error {
		return e.Campaigns.SetCampaignDailyBudget(ctx, c.ID, change.NewCents)
	})
	return res
}

// syncLocal performs a best-effort write-back. The outcome is recorded on
// the result being built; failures are logged and counted but do not change
// the result status.
func (e *Executor) syncLocal(detail map[string]any, campaignID string, write func() error) {
	if err := guardedWrite(write); err != nil {
		e.Log.Warn("local campaign sync failed",
			zap.String("campaign_id", campaignID),
			zap.Error(err),
		)
		e.Metrics.LocalSyncFailed()
		detail["local_sync"] = "failed: " + err.Error()
		return
	}
	detail["local_sync"] = "ok"
}

// guardedWrite turns a panicking write-back into an error so it cannot
// replace a result whose platform call already succeeded.
func guardedWrite(write func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return write()
}

func platformFailed(resp *platform.Response, err error) (bool, string) {
	switch {
	case err != nil:
		return true, err.Error()
	case resp == nil:
		return true, "empty platform response"
	case !resp.OK:
		if resp.Error == "" {
			return true, "platform rejected request"
		}
		return true, resp.Error
	default:
		return false, ""
	}
}
