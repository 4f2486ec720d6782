package store

import (
	"context"
	"fmt"

	"github.com/adpilot/engine/internal/domain"
)

const auditColumns = `id, run_id, business_id, category, actor, decision, outcome, reason, succeeded, failed, created_at`

// AuditRepo stores the approval trail of runs.
type AuditRepo struct{}

// Record inserts an audit record. Approval records must carry a decision.
func (r *AuditRepo) Record(ctx context.Context, db DBTX, rec domain.AuditRecord) error {
	if rec.Category == domain.AuditApproval && rec.Decision == "" {
		return domain.NewEngineError(domain.ErrMissingField.Code, "approval audit record without decision")
	}
	q := `INSERT INTO audit_records (` + auditColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		rec.ID, rec.RunID, rec.BusinessID,
		string(rec.Category), rec.Actor, string(rec.Decision), string(rec.Outcome), rec.Reason,
		rec.Succeeded, rec.Failed, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record audit for run %s: %w", rec.RunID, err)
	}
	return nil
}

// ListByRun returns a run's trail in the order it was written.
func (r *AuditRepo) ListByRun(ctx context.Context, db DBTX, runID string) ([]domain.AuditRecord, error) {
	q := `SELECT ` + auditColumns + ` FROM audit_records WHERE run_id = ? ORDER BY created_at, rowid`
	return r.query(ctx, db, q, runID)
}

// ListRejected returns the rejected approval attempts against a business,
// newest first.
func (r *AuditRepo) ListRejected(ctx context.Context, db DBTX, businessID string, limit int) ([]domain.AuditRecord, error) {
	q := `SELECT ` + auditColumns + ` FROM audit_records
WHERE business_id = ? AND outcome = ?
ORDER BY created_at DESC, rowid DESC LIMIT ?`
	return r.query(ctx, db, q, businessID, string(domain.OutcomeRejected), limit)
}

func (r *AuditRepo) query(ctx context.Context, db DBTX, q string, args ...any) ([]domain.AuditRecord, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditRecord
	for rows.Next() {
		var (
			a                           domain.AuditRecord
			category, decision, outcome string
		)
		if err := rows.Scan(&a.ID, &a.RunID, &a.BusinessID, &category, &a.Actor, &decision, &outcome,
			&a.Reason, &a.Succeeded, &a.Failed, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		a.Category = domain.AuditCategory(category)
		a.Decision = domain.ApprovalDecision(decision)
		a.Outcome = domain.AuditOutcome(outcome)
		out = append(out, a)
	}
	return out, rows.Err()
}
