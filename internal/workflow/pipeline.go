package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adpilot/engine/internal/action"
	"github.com/adpilot/engine/internal/detect"
	"github.com/adpilot/engine/internal/domain"
	"github.com/adpilot/engine/internal/recommend"
	"github.com/adpilot/engine/internal/telemetry"
)

// SnapshotProvider returns recorded metric cycles for a business, newest
// first.
type SnapshotProvider interface {
	LatestCycles(ctx context.Context, businessID string, n int) ([][]domain.MetricsSnapshot, error)
}

// BusinessLookup resolves a business record.
type BusinessLookup interface {
	GetBusiness(ctx context.Context, id string) (*domain.Business, error)
}

// CreateRunRequest starts a run. Current, Previous and Anomalies are
// optional; missing metrics are resolved from history.
type CreateRunRequest struct {
	BusinessID string                   `json:"business_id"`
	UserID     string                   `json:"user_id"`
	Trigger    domain.TriggerType       `json:"trigger_type"`
	Current    []domain.MetricsSnapshot `json:"current_metrics,omitempty"`
	Previous   []domain.MetricsSnapshot `json:"previous_metrics,omitempty"`
	Anomalies  []domain.Anomaly         `json:"anomalies,omitempty"`
}

// Pipeline runs detection, recommendation and action building for a new run
// and leaves it either completed or waiting for approval.
type Pipeline struct {
	Engine     *Engine
	Snapshots  SnapshotProvider
	Businesses BusinessLookup
	Log        *zap.Logger
	Metrics    *telemetry.Metrics

	// Detect and Recommend default to the detect and recommend packages.
	Detect    func(current, previous []domain.MetricsSnapshot) []domain.Anomaly
	Recommend func(anomalies []domain.Anomaly, current []domain.MetricsSnapshot) []domain.Recommendation
	NewID     func() string
}

// NewPipeline wires a pipeline with the default stages.
func NewPipeline(engine *Engine, snapshots SnapshotProvider, businesses BusinessLookup, log *zap.Logger, metrics *telemetry.Metrics) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		Engine:     engine,
		Snapshots:  snapshots,
		Businesses: businesses,
		Log:        log,
		Metrics:    metrics,
		Detect:     detect.Detect,
		Recommend:  recommend.Generate,
		NewID:      uuid.NewString,
	}
}

// stageOutput is what one pass of the pure stages produces.
type stageOutput struct {
	anomalies       []domain.Anomaly
	recommendations []domain.Recommendation
	actions         []domain.OptimizationAction
}

// CreateRun records a new run and drives it to completed (nothing to
// approve) or needs_approval. If a stage fails the run is marked failed and
// both the failed run and an ErrPipelineFailed error are returned.
func (p *Pipeline) CreateRun(ctx context.Context, req CreateRunRequest) (*domain.AutomationRun, error) {
	if err := validateCreate(&req); err != nil {
		return nil, err
	}
	if _, err := p.Businesses.GetBusiness(ctx, req.BusinessID); err != nil {
		return nil, err
	}

	input, err := p.resolveInput(ctx, req)
	if err != nil {
		return nil, err
	}

	run := domain.AutomationRun{
		ID:          p.NewID(),
		BusinessID:  req.BusinessID,
		TriggeredBy: req.UserID,
		AgentType:   domain.AgentCampaignOptimizer,
		TriggerType: req.Trigger,
		Input:       input,
		Output:      domain.RunOutput{SchemaVersion: domain.OutputSchemaVersion},
		StartedAt:   p.Engine.Now().UTC(),
	}
	if err := p.Engine.StartRun(ctx, run); err != nil {
		return nil, err
	}
	p.Metrics.RunCreated(string(req.Trigger))

	log := p.Log.With(zap.String("run_id", run.ID), zap.String("business_id", run.BusinessID))
	log.Info("run started",
		zap.String("trigger", string(req.Trigger)),
		zap.Int("current_campaigns", len(input.Current)),
		zap.Int("previous_campaigns", len(input.Previous)),
	)

	out, err := p.runStages(input)
	if err != nil {
		log.Error("run stages failed", zap.Error(err))
		failed, ferr := p.Engine.Apply(ctx, run.ID, domain.EventFail, req.UserID, func(r *domain.AutomationRun) {
			r.ErrorMessage = err.Error()
			r.Summary = "Run failed before recommendations were produced."
		})
		if ferr != nil {
			return nil, fmt.Errorf("mark run failed: %w (stage error: %v)", ferr, err)
		}
		p.Metrics.Transition(string(domain.RunFailed))
		return failed, domain.WrapEngineError(domain.ErrPipelineFailed.Code, "run "+run.ID, err)
	}

	for _, a := range out.anomalies {
		p.Metrics.Anomaly(string(a.Type), string(a.Severity))
	}
	for _, r := range out.recommendations {
		p.Metrics.Recommendation(string(r.Kind), string(r.Priority))
	}

	event := domain.EventNothingToApprove
	if len(out.recommendations) > 0 {
		event = domain.EventRecommendationsReady
	}
	summary := summarize(len(input.Current), out)
	firstPerson := firstPersonSummary(len(input.Current), out)

	updated, err := p.Engine.Apply(ctx, run.ID, event, req.UserID, func(r *domain.AutomationRun) {
		r.Output.Anomalies = &domain.AnomalyReport{Anomalies: out.anomalies}
		r.Output.Recommendations = &domain.RecommendationSet{
			Recommendations: out.recommendations,
			Actions:         out.actions,
		}
		r.RequiresApproval = len(out.recommendations) > 0
		r.Summary = summary
		r.FirstPersonSummary = firstPerson
	})
	if err != nil {
		return nil, err
	}
	p.Metrics.Transition(string(updated.Status))

	log.Info("run ready",
		zap.String("status", string(updated.Status)),
		zap.Int("anomalies", len(out.anomalies)),
		zap.Int("recommendations", len(out.recommendations)),
		zap.Int("actions", len(out.actions)),
	)
	return updated, nil
}

// runStages executes the pure stages. A panic in any stage is returned as
// an error.
func (p *Pipeline) runStages(input domain.RunInput) (out stageOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	out.anomalies = input.Anomalies
	if out.anomalies == nil {
		out.anomalies = p.Detect(input.Current, input.Previous)
	}
	out.recommendations = p.Recommend(out.anomalies, input.Current)
	out.actions = action.BuildAll(out.recommendations)
	return out, nil
}

// resolveInput fills in missing metrics. Current falls back to the latest
// recorded cycle. Previous falls back to the current metrics of the most
// recent prior run, then to the cycle before the latest.
func (p *Pipeline) resolveInput(ctx context.Context, req CreateRunRequest) (domain.RunInput, error) {
	input := domain.RunInput{
		Current:   withDerived(req.Current),
		Previous:  withDerived(req.Previous),
		Anomalies: req.Anomalies,
	}

	var cycles [][]domain.MetricsSnapshot
	if input.Current == nil {
		var err error
		cycles, err = p.Snapshots.LatestCycles(ctx, req.BusinessID, 2)
		if err != nil {
			return input, err
		}
		if len(cycles) == 0 {
			return input, domain.NewEngineError(domain.ErrNoSnapshots.Code,
				fmt.Sprintf("no metrics recorded for business %s", req.BusinessID))
		}
		input.Current = cycles[0]
	}

	if input.Previous == nil {
		prior, err := p.Engine.RunRepo.LatestForBusiness(ctx, p.Engine.DB, req.BusinessID)
		if err != nil {
			return input, err
		}
		switch {
		case prior != nil && len(prior.Input.Current) > 0:
			input.Previous = prior.Input.Current
		case len(cycles) > 1:
			input.Previous = cycles[1]
		}
	}
	return input, nil
}

// withDerived fills ratios missing from caller-supplied snapshots. Stored
// cycles are derived on read.
func withDerived(in []domain.MetricsSnapshot) []domain.MetricsSnapshot {
	if in == nil {
		return nil
	}
	out := make([]domain.MetricsSnapshot, len(in))
	for i, m := range in {
		out[i] = m.FillDerived()
	}
	return out
}

func validateCreate(req *CreateRunRequest) error {
	if req.BusinessID == "" {
		return domain.NewEngineError(domain.ErrMissingField.Code, "business_id is required")
	}
	if req.UserID == "" {
		return domain.NewEngineError(domain.ErrMissingField.Code, "user_id is required")
	}
	if req.Trigger == "" {
		req.Trigger = domain.TriggerManual
	}
	if !req.Trigger.Valid() {
		return domain.NewEngineError(domain.ErrInvalidTrigger.Code,
			fmt.Sprintf("trigger_type %q is not manual, scheduled or event", req.Trigger))
	}
	for i, m := range req.Current {
		if m.CampaignID == "" {
			return domain.NewEngineError(domain.ErrInvalidSnapshots.Code,
				fmt.Sprintf("current_metrics[%d] has no campaign_id", i))
		}
	}
	for i, m := range req.Previous {
		if m.CampaignID == "" {
			return domain.NewEngineError(domain.ErrInvalidSnapshots.Code,
				fmt.Sprintf("previous_metrics[%d] has no campaign_id", i))
		}
	}
	return nil
}

// IsPipelineFailure reports whether err marks a run-level failure.
func IsPipelineFailure(err error) bool {
	return errors.Is(err, domain.ErrPipelineFailed)
}

func summarize(campaigns int, out stageOutput) string {
	critical := 0
	for _, a := range out.anomalies {
		if a.Severity == domain.SeverityCritical {
			critical++
		}
	}
	executable := countExecutable(out.actions)
	return fmt.Sprintf("Analyzed %d campaigns: %d anomalies (%d critical), %d recommendations, %d executable actions.",
		campaigns, len(out.anomalies), critical, len(out.recommendations), executable)
}

func firstPersonSummary(campaigns int, out stageOutput) string {
	if len(out.recommendations) == 0 {
		return fmt.Sprintf("I reviewed your %s and found nothing that needs your attention right now.",
			plural(campaigns, "campaign"))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I reviewed your %s and found %s.",
		plural(campaigns, "campaign"), plural(len(out.anomalies), "issue"))

	top := out.recommendations[0]
	fmt.Fprintf(&b, " My top suggestion is to %s %s.", kindPhrase(top.Kind), campaignLabel(top))

	if n := countExecutable(out.actions); n > 0 {
		fmt.Fprintf(&b, " I need your approval before I make %s on the ad platform.", plural(n, "change"))
	} else {
		b.WriteString(" None of these need a change on the ad platform, so approving only records your decision.")
	}
	return b.String()
}

func kindPhrase(k domain.RecommendationKind) string {
	switch k {
	case domain.RecPause:
		return "pause"
	case domain.RecReduceBudget:
		return "lower the daily budget of"
	case domain.RecIncreaseBudget:
		return "raise the daily budget of"
	case domain.RecShiftBudget:
		return "move budget to"
	case domain.RecRefreshCreative:
		return "refresh the creative on"
	default:
		return "keep an eye on"
	}
}

func campaignLabel(r domain.Recommendation) string {
	if r.CampaignName != "" {
		return fmt.Sprintf("%q", r.CampaignName)
	}
	return "campaign " + r.CampaignID
}

func countExecutable(actions []domain.OptimizationAction) int {
	n := 0
	for _, a := range actions {
		if a.Executable {
			n++
		}
	}
	return n
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
