package action

import (
	"strings"

	"github.com/adpilot/engine/internal/domain"
)

// legacyKinds maps version 1 action spellings onto current recommendation
// kinds.
var legacyKinds = map[string]domain.RecommendationKind{
	"pause":            domain.RecPause,
	"pause_campaign":   domain.RecPause,
	"reduce_budget":    domain.RecReduceBudget,
	"decrease_budget":  domain.RecReduceBudget,
	"increase_budget":  domain.RecIncreaseBudget,
	"scale_budget":     domain.RecIncreaseBudget,
	"shift_budget":     domain.RecShiftBudget,
	"budget_shift":     domain.RecShiftBudget,
	"refresh_creative": domain.RecRefreshCreative,
	"creative_refresh": domain.RecRefreshCreative,
	"monitor":          domain.RecMonitor,
	"watch":            domain.RecMonitor,
}

// FromOutput returns the actions an approval should execute for a stored
// run output. Current outputs carry their actions; older outputs are
// migrated from whatever recommendation list they recorded.
func FromOutput(out domain.RunOutput) []domain.OptimizationAction {
	if out.Recommendations != nil {
		if len(out.Recommendations.Actions) > 0 {
			return out.Recommendations.Actions
		}
		return BuildAll(out.Recommendations.Recommendations)
	}
	if len(out.Legacy) == 0 {
		return nil
	}
	recs := make([]domain.Recommendation, 0, len(out.Legacy))
	for _, l := range out.Legacy {
		recs = append(recs, MigrateLegacy(l))
	}
	return BuildAll(recs)
}

// MigrateLegacy converts a version 1 recommendation. Unrecognized kinds fall
// back to monitor so they are reported but never executed.
func MigrateLegacy(l domain.LegacyRecommendation) domain.Recommendation {
	kind, ok := legacyKinds[strings.ToLower(strings.TrimSpace(l.Kind))]
	if !ok {
		kind = domain.RecMonitor
	}
	prio := domain.Priority(strings.ToLower(l.Priority))
	if prio != domain.PriorityHigh && prio != domain.PriorityMedium {
		prio = domain.PriorityLow
	}
	return domain.Recommendation{
		Kind:       kind,
		CampaignID: l.CampaignID,
		Reason:     l.Reason,
		Priority:   prio,
		PctChange:  l.PctChange,
	}
}
