// Package auth issues and verifies bearer tokens for the HTTP API.
//
// A token has the form "adp_<id>.<secret>". The id is stored in clear so the
// record can be found; only a bcrypt hash of the secret is kept.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/adpilot/engine/internal/domain"
	"github.com/adpilot/engine/internal/store"
)

const tokenPrefix = "adp_"

// TokenStore persists API tokens.
type TokenStore interface {
	GetToken(ctx context.Context, id string) (*store.APIToken, error)
	CreateToken(ctx context.Context, t store.APIToken) error
	RevokeToken(ctx context.Context, id string, at int64) error
}

// Authenticator verifies bearer tokens against stored hashes.
type Authenticator struct {
	Tokens TokenStore
	Cost   int
	Now    func() time.Time
}

// New creates an authenticator using bcrypt.DefaultCost.
func New(tokens TokenStore) *Authenticator {
	return &Authenticator{Tokens: tokens, Cost: bcrypt.DefaultCost, Now: time.Now}
}

// Issue creates a token for userID and returns its plaintext form. The
// plaintext is not recoverable afterwards.
func (a *Authenticator) Issue(ctx context.Context, userID string) (string, string, error) {
	if userID == "" {
		return "", "", domain.NewEngineError(domain.ErrMissingField.Code, "user id is required")
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	secret, err := randomSecret()
	if err != nil {
		return "", "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), a.Cost)
	if err != nil {
		return "", "", fmt.Errorf("hash token: %w", err)
	}
	err = a.Tokens.CreateToken(ctx, store.APIToken{
		ID:        id,
		UserID:    userID,
		TokenHash: string(hash),
		CreatedAt: a.Now().Unix(),
	})
	if err != nil {
		return "", "", err
	}
	return tokenPrefix + id + "." + secret, id, nil
}

// Authenticate returns the user a token belongs to. Malformed, unknown,
// revoked or mismatched tokens all yield domain.ErrUnauthenticated.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (string, error) {
	id, secret, ok := ParseToken(token)
	if !ok {
		return "", domain.ErrUnauthenticated
	}
	rec, err := a.Tokens.GetToken(ctx, id)
	if err != nil {
		return "", err
	}
	if rec == nil || rec.RevokedAt != nil {
		return "", domain.ErrUnauthenticated
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.TokenHash), []byte(secret)); err != nil {
		return "", domain.ErrUnauthenticated
	}
	return rec.UserID, nil
}

// Revoke disables a token by its id.
func (a *Authenticator) Revoke(ctx context.Context, tokenID string) error {
	rec, err := a.Tokens.GetToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if rec == nil {
		return domain.ErrTokenNotFound
	}
	return a.Tokens.RevokeToken(ctx, tokenID, a.Now().Unix())
}

// ParseToken splits a plaintext token into its id and secret.
func ParseToken(token string) (id, secret string, ok bool) {
	rest, found := strings.CutPrefix(token, tokenPrefix)
	if !found {
		return "", "", false
	}
	id, secret, found = strings.Cut(rest, ".")
	if !found || id == "" || secret == "" {
		return "", "", false
	}
	return id, secret, true
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func randomSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
