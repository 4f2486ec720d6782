package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adpilot/engine/internal/domain"
)

// RunRepo handles persistence for AutomationRun records.
type RunRepo struct{}

const runColumns = `id, business_id, triggered_by, agent_type, trigger_type, status, state_version, last_event_seq,
	input_json, output_json, summary, first_person_summary, requires_approval,
	approved_at, approved_action, approved_by, started_at, completed_at, error_message`

// CreateTx inserts a new run within an existing transaction.
func (r *RunRepo) CreateTx(ctx context.Context, tx *sql.Tx, run domain.AutomationRun, lastEventSeq int64) error {
	input, output, err := encodePayloads(run)
	if err != nil {
		return err
	}
	q := `INSERT INTO automation_runs (` + runColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q,
		run.ID,
		run.BusinessID,
		run.TriggeredBy,
		run.AgentType,
		string(run.TriggerType),
		string(run.Status),
		run.StateVersion,
		lastEventSeq,
		input,
		output,
		run.Summary,
		run.FirstPersonSummary,
		boolToInt(run.RequiresApproval),
		unixOrNil(run.ApprovedAt),
		string(run.ApprovedAction),
		run.ApprovedBy,
		run.StartedAt.Unix(),
		unixOrNil(run.CompletedAt),
		run.ErrorMessage,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return domain.NewEngineError(domain.ErrDuplicateRun.Code, fmt.Sprintf("run %s already exists", run.ID))
		}
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// UpdateTx writes the mutable fields of a run using optimistic locking.
// The update only succeeds if the stored state_version still matches the
// version the caller read.
func (r *RunRepo) UpdateTx(ctx context.Context, tx *sql.Tx, run domain.AutomationRun, lastEventSeq int64) error {
	input, output, err := encodePayloads(run)
	if err != nil {
		return err
	}
	const q = `UPDATE automation_runs SET
		status = ?,
		state_version = state_version + 1,
		last_event_seq = ?,
		input_json = ?,
		output_json = ?,
		summary = ?,
		first_person_summary = ?,
		requires_approval = ?,
		approved_at = ?,
		approved_action = ?,
		approved_by = ?,
		completed_at = ?,
		error_message = ?
	WHERE id = ? AND state_version = ?`

	res, err := tx.ExecContext(ctx, q,
		string(run.Status),
		lastEventSeq,
		input,
		output,
		run.Summary,
		run.FirstPersonSummary,
		boolToInt(run.RequiresApproval),
		unixOrNil(run.ApprovedAt),
		string(run.ApprovedAction),
		run.ApprovedBy,
		unixOrNil(run.CompletedAt),
		run.ErrorMessage,
		run.ID,
		run.StateVersion,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrOptimisticLock
	}
	return nil
}

// GetByID retrieves a run along with its last event sequence number.
func (r *RunRepo) GetByID(ctx context.Context, db DBTX, runID string) (*domain.AutomationRun, int64, error) {
	q := `SELECT ` + runColumns + ` FROM automation_runs WHERE id = ?`
	run, seq, err := scanRun(db.QueryRowContext(ctx, q, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, domain.ErrRunNotFound
		}
		return nil, 0, fmt.Errorf("get run: %w", err)
	}
	return run, seq, nil
}

// LatestForBusiness returns the most recently started run of a business,
// or nil when none exists.
func (r *RunRepo) LatestForBusiness(ctx context.Context, db DBTX, businessID string) (*domain.AutomationRun, error) {
	q := `SELECT ` + runColumns + ` FROM automation_runs
WHERE business_id = ?
ORDER BY started_at DESC, rowid DESC
LIMIT 1`
	run, _, err := scanRun(db.QueryRowContext(ctx, q, businessID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

// ListByBusiness returns up to limit runs of a business, newest first.
func (r *RunRepo) ListByBusiness(ctx context.Context, db DBTX, businessID string, limit int) ([]domain.AutomationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + runColumns + ` FROM automation_runs
WHERE business_id = ?
ORDER BY started_at DESC, rowid DESC
LIMIT ?`
	rows, err := db.QueryContext(ctx, q, businessID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.AutomationRun
	for rows.Next() {
		run, _, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.AutomationRun, int64, error) {
	var (
		run                         domain.AutomationRun
		trigger, status, approvedAs string
		input, output               string
		requiresApproval            int
		approvedAt, completedAt     sql.NullInt64
		startedAt, lastEventSeq     int64
	)
	err := row.Scan(&run.ID, &run.BusinessID, &run.TriggeredBy, &run.AgentType, &trigger, &status,
		&run.StateVersion, &lastEventSeq, &input, &output, &run.Summary, &run.FirstPersonSummary,
		&requiresApproval, &approvedAt, &approvedAs, &run.ApprovedBy, &startedAt, &completedAt,
		&run.ErrorMessage)
	if err != nil {
		return nil, 0, err
	}
	run.TriggerType = domain.TriggerType(trigger)
	run.Status = domain.RunStatus(status)
	run.ApprovedAction = domain.ApprovalDecision(approvedAs)
	run.RequiresApproval = requiresApproval != 0
	run.StartedAt = time.Unix(startedAt, 0).UTC()
	run.ApprovedAt = timeOrNil(approvedAt)
	run.CompletedAt = timeOrNil(completedAt)

	if err := json.Unmarshal([]byte(input), &run.Input); err != nil {
		return nil, 0, fmt.Errorf("decode run input: %w", err)
	}
	if err := json.Unmarshal([]byte(output), &run.Output); err != nil {
		return nil, 0, fmt.Errorf("decode run output: %w", err)
	}
	return &run, lastEventSeq, nil
}

func encodePayloads(run domain.AutomationRun) (string, string, error) {
	in, err := json.Marshal(run.Input)
	if err != nil {
		return "", "", fmt.Errorf("encode run input: %w", err)
	}
	out, err := json.Marshal(run.Output)
	if err != nil {
		return "", "", fmt.Errorf("encode run output: %w", err)
	}
	return string(in), string(out), nil
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timeOrNil(v sql.NullInt64) *time.Time {
	p := nullableUnix(v)
	if p == nil {
		return nil
	}
	t := time.Unix(*p, 0).UTC()
	return &t
}
