package workflow

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adpilot/engine/internal/action"
	"github.com/adpilot/engine/internal/domain"
	"github.com/adpilot/engine/internal/telemetry"
)

// Authenticator resolves a bearer token to a user ID. It returns an error
// matching domain.ErrUnauthenticated when the token is missing or invalid.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// Executor runs approved actions for a business.
type Executor interface {
	Execute(ctx context.Context, business *domain.Business, actions []domain.OptimizationAction) domain.ExecutionReport
}

// AuditLog stores audit records.
type AuditLog interface {
	RecordAudit(ctx context.Context, rec domain.AuditRecord) error
}

// DecideRequest is a human approve or dismiss decision on a run.
type DecideRequest struct {
	RunID  string                  `json:"run_id"`
	Action domain.ApprovalDecision `json:"action"`
	Token  string                  `json:"-"`
}

// DecideResult is returned after a decision has been applied.
type DecideResult struct {
	RunID            string                   `json:"run_id"`
	Action           domain.ApprovalDecision  `json:"action"`
	Status           domain.RunStatus         `json:"status"`
	ExecutionSummary string                   `json:"execution_summary,omitempty"`
	ExecutionResults []domain.ExecutionResult `json:"execution_results,omitempty"`
}

// Approvals applies approval decisions through the gate and, on approve,
// executes the run's actions.
type Approvals struct {
	Engine     *Engine
	Gate       *ApprovalGate
	Auth       Authenticator
	Businesses BusinessLookup
	Executor   Executor
	Audit      AuditLog
	Log        *zap.Logger
	Metrics    *telemetry.Metrics
	NewID      func() string
}

// NewApprovals wires the default approval gate.
func NewApprovals(engine *Engine, auth Authenticator, businesses BusinessLookup, exec Executor, audit AuditLog, log *zap.Logger, metrics *telemetry.Metrics) *Approvals {
	if log == nil {
		log = zap.NewNop()
	}
	return &Approvals{
		Engine:     engine,
		Gate:       NewApprovalGate(),
		Auth:       auth,
		Businesses: businesses,
		Executor:   exec,
		Audit:      audit,
		Log:        log,
		Metrics:    metrics,
		NewID:      uuid.NewString,
	}
}

// Decide validates req, runs the gate and applies the decision. Approve
// executes the actions synchronously and completes the run whatever the
// individual action outcomes. Dismiss never executes anything.
func (a *Approvals) Decide(ctx context.Context, req DecideRequest) (*DecideResult, error) {
	if req.RunID == "" || req.Action == "" {
		return nil, domain.NewEngineError(domain.ErrMissingField.Code, "run_id and action are required")
	}
	if !req.Action.Valid() {
		return nil, domain.ErrInvalidDecision
	}

	log := a.Log.With(zap.String("run_id", req.RunID), zap.String("decision", string(req.Action)))

	in := GateInput{RunID: req.RunID}
	run, lastSeq, err := a.Engine.RunRepo.GetByID(ctx, a.Engine.DB, req.RunID)
	switch {
	case err == nil:
		in.Run = run
	case !errors.Is(err, domain.ErrRunNotFound):
		return nil, err
	}

	if in.Run != nil {
		caller, err := a.Auth.Authenticate(ctx, req.Token)
		if err != nil && !errors.Is(err, domain.ErrUnauthenticated) {
			return nil, err
		}
		in.CallerID = caller
	}

	if in.CallerID != "" {
		biz, err := a.Businesses.GetBusiness(ctx, in.Run.BusinessID)
		if err != nil {
			return nil, err
		}
		in.Business = biz
	}

	if err := a.Gate.Evaluate(in); err != nil {
		a.Metrics.Decision(string(req.Action), "rejected")
		if in.Run != nil {
			a.audit(ctx, domain.AuditRecord{
				RunID:      run.ID,
				BusinessID: run.BusinessID,
				Category:   domain.AuditApproval,
				Actor:      in.CallerID,
				Decision:   req.Action,
				Outcome:    domain.OutcomeRejected,
				Reason:     err.Error(),
			})
		}
		log.Info("approval rejected", zap.String("caller", in.CallerID), zap.Error(err))
		return nil, err
	}

	event := domain.EventApprove
	if req.Action == domain.DecisionDismiss {
		event = domain.EventDismiss
	}
	now := a.Engine.Now().UTC()
	decided, err := a.Engine.ApplyTo(ctx, *run, lastSeq, event, in.CallerID, func(r *domain.AutomationRun) {
		r.ApprovedAt = &now
		r.ApprovedAction = req.Action
		r.ApprovedBy = in.CallerID
	})
	if err != nil {
		if errors.Is(err, domain.ErrOptimisticLock) ||
			errors.Is(err, domain.ErrRunTerminal) ||
			errors.Is(err, domain.ErrInvalidTransition) {
			a.Metrics.Decision(string(req.Action), "conflict")
			return nil, domain.NewEngineError(domain.ErrNotAwaiting.Code, "run was decided concurrently")
		}
		return nil, err
	}
	a.Metrics.Decision(string(req.Action), "accepted")
	a.Metrics.Transition(string(decided.Status))
	a.audit(ctx, domain.AuditRecord{
		RunID:      run.ID,
		BusinessID: run.BusinessID,
		Category:   domain.AuditApproval,
		Actor:      in.CallerID,
		Decision:   req.Action,
		Outcome:    domain.OutcomeAccepted,
	})
	log.Info("approval accepted", zap.String("caller", in.CallerID))

	result := &DecideResult{RunID: run.ID, Action: req.Action, Status: decided.Status}
	if req.Action == domain.DecisionDismiss {
		return result, nil
	}

	actions := action.FromOutput(decided.Output)
	report := a.Executor.Execute(ctx, in.Business, actions)

	completed, err := a.Engine.ApplyTo(ctx, *decided, lastSeq+1, domain.EventExecutionFinished, in.CallerID, func(r *domain.AutomationRun) {
		r.Output.SchemaVersion = domain.OutputSchemaVersion
		r.Output.Execution = &report
	})
	if err != nil {
		log.Error("record execution", zap.Error(err))
		return nil, err
	}
	a.Metrics.Transition(string(completed.Status))
	a.audit(ctx, domain.AuditRecord{
		RunID:      run.ID,
		BusinessID: run.BusinessID,
		Category:   domain.AuditExecution,
		Actor:      "system",
		Outcome:    domain.OutcomeExecuted,
		Succeeded:  report.Succeeded,
		Failed:     report.Failed,
	})
	log.Info("execution finished",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
	)

	result.Status = completed.Status
	result.ExecutionSummary = report.Summary
	result.ExecutionResults = report.Results
	return result, nil
}

// audit stamps and stores rec. Failures are logged and otherwise ignored.
func (a *Approvals) audit(ctx context.Context, rec domain.AuditRecord) {
	if a.Audit == nil {
		return
	}
	rec.ID = a.NewID()
	rec.CreatedAt = a.Engine.Now().Unix()
	if err := a.Audit.RecordAudit(ctx, rec); err != nil {
		a.Log.Warn("audit record failed", zap.String("run_id", rec.RunID), zap.Error(err))
	}
}
