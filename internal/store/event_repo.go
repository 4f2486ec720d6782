package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/adpilot/engine/internal/domain"
)

// EventRepo handles persistence for run transition events.
type EventRepo struct{}

// AppendTx inserts a run event within an existing transaction.
func (r *EventRepo) AppendTx(ctx context.Context, tx *sql.Tx, event domain.RunEventRecord) error {
	const q = `INSERT INTO run_events (run_id, seq_no, from_status, to_status, event, actor, payload_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		event.RunID,
		event.SeqNo,
		string(event.From),
		string(event.To),
		string(event.Event),
		event.Actor,
		event.PayloadJSON,
		event.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return domain.ErrDuplicateEvent
		}
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListByRun returns events for a run with sequence numbers greater than
// sinceSeq, ordered by sequence number ascending.
func (r *EventRepo) ListByRun(ctx context.Context, db DBTX, runID string, sinceSeq int64) ([]domain.RunEventRecord, error) {
	const q = `SELECT id, run_id, seq_no, from_status, to_status, event, actor, payload_json, created_at
FROM run_events
WHERE run_id = ? AND seq_no > ?
ORDER BY seq_no ASC`

	rows, err := db.QueryContext(ctx, q, runID, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.RunEventRecord
	for rows.Next() {
		var e domain.RunEventRecord
		var from, to, ev string
		if err := rows.Scan(&e.ID, &e.RunID, &e.SeqNo, &from, &to, &ev, &e.Actor, &e.PayloadJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.From = domain.RunStatus(from)
		e.To = domain.RunStatus(to)
		e.Event = domain.RunEvent(ev)
		events = append(events, e)
	}
	return events, rows.Err()
}
