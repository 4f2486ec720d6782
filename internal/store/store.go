package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/adpilot/engine/internal/domain"
)

// Store bundles the repos over one database handle and exposes the
// collaborator methods the pipeline and executor consume.
type Store struct {
	DB         *sql.DB
	Runs       *RunRepo
	Events     *EventRepo
	Campaigns  *CampaignRepo
	Businesses *BusinessRepo
	Snapshots  *SnapshotRepo
	Tokens     *TokenRepo
	Audit      *AuditRepo
}

// New wraps an open database.
func New(db *sql.DB) *Store {
	return &Store{
		DB:         db,
		Runs:       &RunRepo{},
		Events:     &EventRepo{},
		Campaigns:  &CampaignRepo{},
		Businesses: &BusinessRepo{},
		Snapshots:  &SnapshotRepo{},
		Tokens:     &TokenRepo{},
		Audit:      &AuditRepo{},
	}
}

// GetCampaign retrieves a local campaign record.
func (s *Store) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.Campaigns.GetByID(ctx, s.DB, id)
}

// MarkCampaignPaused records a successful platform pause locally.
func (s *Store) MarkCampaignPaused(ctx context.Context, id string) error {
	return s.Campaigns.SetStatus(ctx, s.DB, id, domain.CampaignStatusPaused)
}

// SetCampaignDailyBudget records a successful platform budget update locally.
func (s *Store) SetCampaignDailyBudget(ctx context.Context, id string, cents int64) error {
	return s.Campaigns.SetDailyBudget(ctx, s.DB, id, cents)
}

// GetBusiness retrieves a business record.
func (s *Store) GetBusiness(ctx context.Context, id string) (*domain.Business, error) {
	return s.Businesses.GetByID(ctx, s.DB, id)
}

// LatestCycles returns up to n recorded metric cycles, newest first.
func (s *Store) LatestCycles(ctx context.Context, businessID string, n int) ([][]domain.MetricsSnapshot, error) {
	return s.Snapshots.LatestCycles(ctx, s.DB, businessID, n)
}

// RecordCycle stores one metric cycle in its own transaction.
func (s *Store) RecordCycle(ctx context.Context, businessID string, capturedAt int64, cycle []domain.MetricsSnapshot) (int64, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	seq, err := s.Snapshots.RecordCycleTx(ctx, tx, businessID, capturedAt, cycle)
	if err != nil {
		return 0, err
	}
	return seq, tx.Commit()
}

// RecordAudit writes one audit record.
func (s *Store) RecordAudit(ctx context.Context, rec domain.AuditRecord) error {
	return s.Audit.Record(ctx, s.DB, rec)
}

// GetToken retrieves an API token by its public ID. Returns nil when absent.
func (s *Store) GetToken(ctx context.Context, id string) (*APIToken, error) {
	return s.Tokens.GetByID(ctx, s.DB, id)
}

// CreateToken stores a new API token.
func (s *Store) CreateToken(ctx context.Context, t APIToken) error {
	return s.Tokens.Create(ctx, s.DB, t)
}

// RevokeToken marks a token unusable.
func (s *Store) RevokeToken(ctx context.Context, id string, at int64) error {
	return s.Tokens.Revoke(ctx, s.DB, id, at)
}
