package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adpilot/engine/internal/domain"
	"github.com/adpilot/engine/internal/store"
)

// eventRunStarted labels the first entry of every run's event log. It is not
// an edge of the state machine.
const eventRunStarted domain.RunEvent = "run_started"

// transitions defines the legal moves. Each key is a source status; the
// value maps an event to the resulting status.
var transitions = map[domain.RunStatus]map[domain.RunEvent]domain.RunStatus{
	domain.RunRunning: {
		domain.EventRecommendationsReady: domain.RunNeedsApproval,
		domain.EventNothingToApprove:     domain.RunCompleted,
		domain.EventFail:                 domain.RunFailed,
	},
	domain.RunNeedsApproval: {
		domain.EventApprove: domain.RunApproved,
		domain.EventDismiss: domain.RunDismissed,
	},
	domain.RunApproved: {
		domain.EventExecutionFinished: domain.RunCompleted,
	},
}

// IsValidTransition checks if a status change is reachable by some event.
func IsValidTransition(from, to domain.RunStatus) bool {
	for _, target := range transitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition returns the status the run moves to when ev is applied. It is
// the only place status changes are decided.
func Transition(run domain.AutomationRun, ev domain.RunEvent) (domain.RunStatus, error) {
	if run.Status.IsTerminal() {
		return "", domain.NewEngineError(
			domain.ErrRunTerminal.Code,
			fmt.Sprintf("run %s is %s", run.ID, run.Status),
		)
	}
	next, ok := transitions[run.Status][ev]
	if !ok {
		return "", domain.NewEngineError(
			domain.ErrInvalidTransition.Code,
			fmt.Sprintf("event %s not allowed from %s", ev, run.Status),
		)
	}
	return next, nil
}

// Mutation edits a run copy before it is persisted by Apply.
type Mutation func(run *domain.AutomationRun)

// Engine persists run lifecycle transitions.
type Engine struct {
	DB        *sql.DB
	RunRepo   *store.RunRepo
	EventRepo *store.EventRepo

	// Now is the clock used for timestamps. Defaults to time.Now.
	Now func() time.Time
}

// NewEngine creates a lifecycle engine over db.
func NewEngine(db *sql.DB) *Engine {
	return &Engine{
		DB:        db,
		RunRepo:   &store.RunRepo{},
		EventRepo: &store.EventRepo{},
		Now:       time.Now,
	}
}

// StartRun inserts a run in the running state together with its first event.
func (e *Engine) StartRun(ctx context.Context, run domain.AutomationRun) error {
	run.Status = domain.RunRunning
	run.StateVersion = 1

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := e.RunRepo.CreateTx(ctx, tx, run, 1); err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	event := domain.RunEventRecord{
		RunID:       run.ID,
		SeqNo:       1,
		To:          domain.RunRunning,
		Event:       eventRunStarted,
		Actor:       run.TriggeredBy,
		PayloadJSON: fmt.Sprintf(`{"trigger_type":%q}`, run.TriggerType),
		CreatedAt:   e.Now().Unix(),
	}
	if err := e.EventRepo.AppendTx(ctx, tx, event); err != nil {
		return fmt.Errorf("append start event: %w", err)
	}

	return tx.Commit()
}

// GetRun returns the stored run.
func (e *Engine) GetRun(ctx context.Context, runID string) (*domain.AutomationRun, error) {
	run, _, err := e.RunRepo.GetByID(ctx, e.DB, runID)
	return run, err
}

// Events returns the run's transition log.
func (e *Engine) Events(ctx context.Context, runID string) ([]domain.RunEventRecord, error) {
	return e.EventRepo.ListByRun(ctx, e.DB, runID, 0)
}

// Apply loads the run and applies ev. See ApplyTo.
func (e *Engine) Apply(ctx context.Context, runID string, ev domain.RunEvent, actor string, mutate Mutation) (*domain.AutomationRun, error) {
	run, lastSeq, err := e.RunRepo.GetByID(ctx, e.DB, runID)
	if err != nil {
		return nil, err
	}
	return e.ApplyTo(ctx, *run, lastSeq, ev, actor, mutate)
}

// ApplyTo transitions a previously read run. The write is a compare-and-swap
// on the state version that was read, so a caller acting on stale state gets
// ErrOptimisticLock and nothing is written. The status update and the event
// append share one transaction.
func (e *Engine) ApplyTo(ctx context.Context, run domain.AutomationRun, lastSeq int64, ev domain.RunEvent, actor string, mutate Mutation) (*domain.AutomationRun, error) {
	next, err := Transition(run, ev)
	if err != nil {
		return nil, err
	}

	from := run.Status
	updated := run
	if mutate != nil {
		mutate(&updated)
	}
	updated.Status = next
	now := e.Now()
	if next.IsTerminal() && updated.CompletedAt == nil {
		updated.CompletedAt = &now
	}

	payload, err := json.Marshal(map[string]any{
		"from":  from,
		"to":    next,
		"stage": updated.Output.Stage(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode event payload: %w", err)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	newSeq := lastSeq + 1
	if err := e.RunRepo.UpdateTx(ctx, tx, updated, newSeq); err != nil {
		return nil, err
	}

	event := domain.RunEventRecord{
		RunID:       run.ID,
		SeqNo:       newSeq,
		From:        from,
		To:          next,
		Event:       ev,
		Actor:       actor,
		PayloadJSON: string(payload),
		CreatedAt:   now.Unix(),
	}
	if err := e.EventRepo.AppendTx(ctx, tx, event); err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			return nil, domain.ErrOptimisticLock
		}
		return nil, fmt.Errorf("append transition event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}

	updated.StateVersion = run.StateVersion + 1
	return &updated, nil
}
