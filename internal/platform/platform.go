// Package platform talks to the external advertising platform.
package platform

import "context"

// Credentials authorize calls on behalf of one business.
type Credentials struct {
	AccessToken string
	AdAccountID string
}

// Response is the platform's answer to a mutation. OK is false when the
// platform rejected the request; Error then carries its message.
type Response struct {
	OK         bool           `json:"ok"`
	StatusCode int            `json:"status_code,omitempty"`
	Error      string         `json:"error,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Adapter is the pair of mutation primitives the executor needs. A non-nil
// error means the platform could not be reached.
type Adapter interface {
	PauseCampaign(ctx context.Context, creds Credentials, platformCampaignID string) (*Response, error)
	UpdateAdSetDailyBudget(ctx context.Context, creds Credentials, platformAdSetID string, cents int64) (*Response, error)
}
