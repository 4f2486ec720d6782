package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/adpilot/engine/internal/domain"
)

// BusinessRepo handles persistence for Business records.
type BusinessRepo struct{}

// Upsert inserts or replaces a business record.
func (r *BusinessRepo) Upsert(ctx context.Context, db DBTX, b domain.Business) error {
	const q = `INSERT INTO businesses (id, name, owner_user_id, max_daily_budget_cents, platform_access_token, platform_ad_account_id)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	owner_user_id = excluded.owner_user_id,
	max_daily_budget_cents = excluded.max_daily_budget_cents,
	platform_access_token = excluded.platform_access_token,
	platform_ad_account_id = excluded.platform_ad_account_id`
	_, err := db.ExecContext(ctx, q, b.ID, b.Name, b.OwnerUserID, b.MaxDailyBudgetCents,
		b.PlatformAccessToken, b.PlatformAdAccountID)
	if err != nil {
		return fmt.Errorf("upsert business: %w", err)
	}
	return nil
}

// GetByID retrieves a business by its ID.
func (r *BusinessRepo) GetByID(ctx context.Context, db DBTX, id string) (*domain.Business, error) {
	const q = `SELECT id, name, owner_user_id, max_daily_budget_cents, platform_access_token, platform_ad_account_id
FROM businesses WHERE id = ?`

	var b domain.Business
	err := db.QueryRowContext(ctx, q, id).Scan(&b.ID, &b.Name, &b.OwnerUserID,
		&b.MaxDailyBudgetCents, &b.PlatformAccessToken, &b.PlatformAdAccountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBusinessNotFound
		}
		return nil, fmt.Errorf("get business: %w", err)
	}
	return &b, nil
}
