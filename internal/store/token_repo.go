package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// APIToken is a stored bearer credential. Only the bcrypt hash of the
// secret is kept.
type APIToken struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt int64
	RevokedAt *int64
}

// TokenRepo handles persistence for API tokens.
type TokenRepo struct{}

// Create inserts a token record.
func (r *TokenRepo) Create(ctx context.Context, db DBTX, t APIToken) error {
	const q = `INSERT INTO api_tokens (id, user_id, token_hash, created_at) VALUES (?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, q, t.ID, t.UserID, t.TokenHash, t.CreatedAt); err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

// GetByID retrieves a token by its public ID. Returns nil when absent.
func (r *TokenRepo) GetByID(ctx context.Context, db DBTX, id string) (*APIToken, error) {
	const q = `SELECT id, user_id, token_hash, created_at, revoked_at FROM api_tokens WHERE id = ?`

	var t APIToken
	var revoked sql.NullInt64
	err := db.QueryRowContext(ctx, q, id).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	t.RevokedAt = nullableUnix(revoked)
	return &t, nil
}

// Revoke marks a token unusable.
func (r *TokenRepo) Revoke(ctx context.Context, db DBTX, id string, at int64) error {
	if _, err := db.ExecContext(ctx, `UPDATE api_tokens SET revoked_at = ? WHERE id = ?`, at, id); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}
