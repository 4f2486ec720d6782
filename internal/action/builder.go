// Package action projects recommendations into typed, executable actions.
package action

import "github.com/adpilot/engine/internal/domain"

// rule describes how one recommendation kind becomes an action.
type rule struct {
	kind             domain.ActionKind
	executable       bool
	requiresApproval bool
	defaultPct       *float64
}

var table = map[domain.RecommendationKind]rule{
	domain.RecPause:           {kind: domain.ActionPauseCampaign, executable: true, requiresApproval: true},
	domain.RecReduceBudget:    {kind: domain.ActionReduceBudget, executable: true, requiresApproval: true, defaultPct: pct(-0.30)},
	domain.RecIncreaseBudget:  {kind: domain.ActionIncreaseBudget, executable: true, requiresApproval: true, defaultPct: pct(0.20)},
	domain.RecShiftBudget:     {kind: domain.ActionShiftBudget, executable: true, requiresApproval: true, defaultPct: pct(0.30)},
	domain.RecRefreshCreative: {kind: domain.ActionRefreshCreative},
	domain.RecMonitor:         {kind: domain.ActionMonitor},
}

// DefaultPctChange returns the budget delta applied when an action carries
// none of its own.
func DefaultPctChange(kind domain.ActionKind) (float64, bool) {
	for _, s := range table {
		if s.kind == kind && s.defaultPct != nil {
			return *s.defaultPct, true
		}
	}
	return 0, false
}

// Build maps a recommendation to its action. A recommendation's own
// PctChange overrides the table default. Unknown kinds become a
// non-executable monitor action.
func Build(rec domain.Recommendation) domain.OptimizationAction {
	s, ok := table[rec.Kind]
	if !ok {
		s = table[domain.RecMonitor]
	}
	a := domain.OptimizationAction{
		Kind:             s.kind,
		CampaignID:       rec.CampaignID,
		Reason:           rec.Reason,
		Executable:       s.executable,
		RequiresApproval: s.requiresApproval,
	}
	switch {
	case rec.PctChange != nil:
		a.PctChange = pct(*rec.PctChange)
	case s.defaultPct != nil:
		a.PctChange = pct(*s.defaultPct)
	}
	return a
}

// BuildAll maps recommendations in order.
func BuildAll(recs []domain.Recommendation) []domain.OptimizationAction {
	out := make([]domain.OptimizationAction, 0, len(recs))
	for _, r := range recs {
		out = append(out, Build(r))
	}
	return out
}

func pct(v float64) *float64 { return &v }
