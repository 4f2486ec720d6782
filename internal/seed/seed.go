// Package seed loads businesses, campaigns, metric cycles and API users from
// a YAML fixture file into the store.
package seed

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adpilot/engine/internal/domain"
	"github.com/adpilot/engine/internal/store"
)

// Cycle is one recorded observation of a business's campaigns.
type Cycle struct {
	BusinessID string                   `yaml:"business_id"`
	CapturedAt int64                    `yaml:"captured_at"`
	Metrics    []domain.MetricsSnapshot `yaml:"metrics"`
}

// File is the seed document.
type File struct {
	Businesses []domain.Business `yaml:"businesses"`
	Campaigns  []domain.Campaign `yaml:"campaigns"`
	Cycles     []Cycle           `yaml:"cycles"`

	// Users lists user ids that get a freshly issued API token.
	Users []string `yaml:"users"`
}

// TokenIssuer creates API tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, userID string) (string, string, error)
}

// Load parses a seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed YAML: %w", err)
	}
	return &f, nil
}

// Apply writes f into s. Businesses and campaigns are upserted, cycles are
// appended in file order. The returned map holds the plaintext token issued
// for each listed user.
func Apply(ctx context.Context, s *store.Store, issuer TokenIssuer, f *File) (map[string]string, error) {
	for _, b := range f.Businesses {
		if b.ID == "" || b.OwnerUserID == "" {
			return nil, domain.NewEngineError(domain.ErrMissingField.Code, "business needs id and owner_user_id")
		}
		if err := s.Businesses.Upsert(ctx, s.DB, b); err != nil {
			return nil, fmt.Errorf("seed business %s: %w", b.ID, err)
		}
	}
	for _, c := range f.Campaigns {
		if c.ID == "" || c.BusinessID == "" {
			return nil, domain.NewEngineError(domain.ErrMissingField.Code, "campaign needs id and business_id")
		}
		if c.Status == "" {
			c.Status = "active"
		}
		if err := s.Campaigns.Upsert(ctx, s.DB, c); err != nil {
			return nil, fmt.Errorf("seed campaign %s: %w", c.ID, err)
		}
	}
	for i, cy := range f.Cycles {
		at := cy.CapturedAt
		if at == 0 {
			at = time.Now().Unix()
		}
		if _, err := s.RecordCycle(ctx, cy.BusinessID, at, cy.Metrics); err != nil {
			return nil, fmt.Errorf("seed cycle %d: %w", i, err)
		}
	}

	tokens := make(map[string]string, len(f.Users))
	for _, u := range f.Users {
		tok, _, err := issuer.Issue(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("issue token for %s: %w", u, err)
		}
		tokens[u] = tok
	}
	return tokens, nil
}
