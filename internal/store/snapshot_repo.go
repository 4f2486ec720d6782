package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/adpilot/engine/internal/domain"
)

// SnapshotRepo persists metric cycles. Each recorded cycle gets the next
// sequence number for its business.
type SnapshotRepo struct{}

// RecordCycleTx stores one observation cycle and returns its sequence number.
func (r *SnapshotRepo) RecordCycleTx(ctx context.Context, tx *sql.Tx, businessID string, capturedAt int64, cycle []domain.MetricsSnapshot) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(cycle_seq), 0) + 1 FROM metric_snapshots WHERE business_id = ?`,
		businessID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next cycle seq: %w", err)
	}

	const q = `INSERT INTO metric_snapshots (business_id, cycle_seq, campaign_id, campaign_name, status,
	daily_budget, spend, impressions, clicks, conversions, captured_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, m := range cycle {
		if m.CampaignID == "" {
			return 0, domain.NewEngineError(domain.ErrInvalidSnapshots.Code, "snapshot without campaign_id")
		}
		if _, err := tx.ExecContext(ctx, q,
			businessID, seq, m.CampaignID, m.CampaignName, m.Status,
			m.DailyBudget, m.Spend, m.Impressions, m.Clicks, m.Conversions, capturedAt,
		); err != nil {
			return 0, fmt.Errorf("insert snapshot %s: %w", m.CampaignID, err)
		}
	}
	return seq, nil
}

// LatestCycles returns up to n of the business's most recent cycles, newest
// first. Ratios are derived on read.
func (r *SnapshotRepo) LatestCycles(ctx context.Context, db DBTX, businessID string, n int) ([][]domain.MetricsSnapshot, error) {
	const q = `SELECT cycle_seq, campaign_id, campaign_name, status, daily_budget, spend, impressions, clicks, conversions
FROM metric_snapshots
WHERE business_id = ? AND cycle_seq IN (
	SELECT DISTINCT cycle_seq FROM metric_snapshots WHERE business_id = ? ORDER BY cycle_seq DESC LIMIT ?
)
ORDER BY cycle_seq DESC, id ASC`

	rows, err := db.QueryContext(ctx, q, businessID, businessID, n)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var (
		cycles  [][]domain.MetricsSnapshot
		lastSeq int64 = -1
	)
	for rows.Next() {
		var seq int64
		var m domain.MetricsSnapshot
		if err := rows.Scan(&seq, &m.CampaignID, &m.CampaignName, &m.Status, &m.DailyBudget,
			&m.Spend, &m.Impressions, &m.Clicks, &m.Conversions); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if seq != lastSeq {
			cycles = append(cycles, nil)
			lastSeq = seq
		}
		cycles[len(cycles)-1] = append(cycles[len(cycles)-1], m.Derive())
	}
	return cycles, rows.Err()
}
