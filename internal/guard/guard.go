// Package guard holds the fixed bounds applied to automatically computed
// budget changes before they reach the advertising platform.
package guard

import (
	"math"

	"github.com/adpilot/engine/internal/domain"
)

// Built-in limits, in minor currency units per day.
const (
	DefaultMinDailyBudgetCents int64 = 500
	DefaultMaxDailyBudgetCents int64 = 50000
)

// GuardConfig holds the budget floor and the fallback ceiling.
type GuardConfig struct {
	MinDailyBudgetCents        int64
	DefaultMaxDailyBudgetCents int64
}

// Guard clamps budget updates into [min, businessMax].
type Guard struct {
	Config GuardConfig
}

// BudgetChange is the computed outcome of a percentage budget adjustment.
type BudgetChange struct {
	PreviousCents int64
	RawCents      int64
	NewCents      int64
	PctChange     float64
	MinCents      int64
	MaxCents      int64
}

// Clamped reports whether a guardrail altered the raw value.
func (c BudgetChange) Clamped() bool {
	return c.RawCents != c.NewCents
}

// NewGuard creates a Guard, filling zero limits with the built-in defaults.
func NewGuard(cfg GuardConfig) *Guard {
	if cfg.MinDailyBudgetCents <= 0 {
		cfg.MinDailyBudgetCents = DefaultMinDailyBudgetCents
	}
	if cfg.DefaultMaxDailyBudgetCents <= 0 {
		cfg.DefaultMaxDailyBudgetCents = DefaultMaxDailyBudgetCents
	}
	return &Guard{Config: cfg}
}

// MaxFor returns the ceiling for a business: its own cap when set, the
// configured default otherwise. The ceiling is never below the floor.
func (g *Guard) MaxFor(b *domain.Business) int64 {
	max := g.Config.DefaultMaxDailyBudgetCents
	if b != nil && b.MaxDailyBudgetCents > 0 {
		max = b.MaxDailyBudgetCents
	}
	if max < g.Config.MinDailyBudgetCents {
		max = g.Config.MinDailyBudgetCents
	}
	return max
}

// ApplyPctChange computes round(current*(1+pct)) and clamps it into
// [floor, maxCents].
func (g *Guard) ApplyPctChange(currentCents int64, pct float64, maxCents int64) BudgetChange {
	min := g.Config.MinDailyBudgetCents
	if maxCents < min {
		maxCents = min
	}
	raw := int64(math.Round(float64(currentCents) * (1 + pct)))
	return BudgetChange{
		PreviousCents: currentCents,
		RawCents:      raw,
		NewCents:      Clamp(raw, min, maxCents),
		PctChange:     pct,
		MinCents:      min,
		MaxCents:      maxCents,
	}
}

// Clamp bounds v to [min, max]. When max < min, min wins.
func Clamp(v, min, max int64) int64 {
	if v > max {
		v = max
	}
	if v < min {
		v = min
	}
	return v
}
