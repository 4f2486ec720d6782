package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adpilot/engine/internal/domain"
)

// CampaignRepo handles persistence for local campaign records.
type CampaignRepo struct{}

// Upsert inserts or replaces a campaign record.
func (r *CampaignRepo) Upsert(ctx context.Context, db DBTX, c domain.Campaign) error {
	const q = `INSERT INTO campaigns (id, business_id, name, status, platform_campaign_id, platform_adset_id, daily_budget_cents, updated_at_unix)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	business_id = excluded.business_id,
	name = excluded.name,
	status = excluded.status,
	platform_campaign_id = excluded.platform_campaign_id,
	platform_adset_id = excluded.platform_adset_id,
	daily_budget_cents = excluded.daily_budget_cents,
	updated_at_unix = excluded.updated_at_unix`
	_, err := db.ExecContext(ctx, q, c.ID, c.BusinessID, c.Name, c.Status,
		c.PlatformCampaignID, c.PlatformAdSetID, c.DailyBudgetCents, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert campaign: %w", err)
	}
	return nil
}

// GetByID retrieves a campaign by its ID.
func (r *CampaignRepo) GetByID(ctx context.Context, db DBTX, id string) (*domain.Campaign, error) {
	const q = `SELECT id, business_id, name, status, platform_campaign_id, platform_adset_id, daily_budget_cents
FROM campaigns WHERE id = ?`

	var c domain.Campaign
	err := db.QueryRowContext(ctx, q, id).Scan(&c.ID, &c.BusinessID, &c.Name, &c.Status,
		&c.PlatformCampaignID, &c.PlatformAdSetID, &c.DailyBudgetCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCampaignNotFound
		}
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return &c, nil
}

// SetStatus updates the local lifecycle status of a campaign.
func (r *CampaignRepo) SetStatus(ctx context.Context, db DBTX, id, status string) error {
	return r.update(ctx, db, `UPDATE campaigns SET status = ?, updated_at_unix = ? WHERE id = ?`, status, id)
}

// SetDailyBudget updates the locally stored daily budget.
func (r *CampaignRepo) SetDailyBudget(ctx context.Context, db DBTX, id string, cents int64) error {
	return r.update(ctx, db, `UPDATE campaigns SET daily_budget_cents = ?, updated_at_unix = ? WHERE id = ?`, cents, id)
}

func (r *CampaignRepo) update(ctx context.Context, db DBTX, q string, value any, id string) error {
	res, err := db.ExecContext(ctx, q, value, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrCampaignNotFound
	}
	return nil
}

// ListByBusiness returns all campaigns of a business ordered by ID.
func (r *CampaignRepo) ListByBusiness(ctx context.Context, db DBTX, businessID string) ([]domain.Campaign, error) {
	const q = `SELECT id, business_id, name, status, platform_campaign_id, platform_adset_id, daily_budget_cents
FROM campaigns WHERE business_id = ? ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, q, businessID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		if err := rows.Scan(&c.ID, &c.BusinessID, &c.Name, &c.Status,
			&c.PlatformCampaignID, &c.PlatformAdSetID, &c.DailyBudgetCents); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
