// Package recommend maps anomalies and current metrics to a ranked list of
// human-readable recommendations.
package recommend

import (
	"fmt"
	"sort"

	"github.com/adpilot/engine/internal/domain"
)

// Budget deltas proposed by the rules, as fractions of the daily budget.
const (
	ShiftBudgetPct        = 0.30
	CostSpikeReducePct    = -0.30
	OverspendReducePct    = -0.20
	MonitorMinSpend       = 10.0
	MonitorMinClicks      = 5
	PauseSavingsShare     = 0.50
	criticalCostSpikeOver = 100.0
)

// Generate is deterministic: the same inputs always produce the same
// ordered output. Results are stably sorted high, medium, low.
func Generate(anomalies []domain.Anomaly, current []domain.MetricsSnapshot) []domain.Recommendation {
	byID := make(map[string]domain.MetricsSnapshot, len(current))
	for _, m := range current {
		byID[m.CampaignID] = m
	}
	best, hasBest := bestCampaign(current)

	var recs []domain.Recommendation
	covered := make(map[string]bool)
	// index into recs of the single shift_budget for the best campaign
	shiftAt := -1

	for _, a := range anomalies {
		m := byID[a.CampaignID]
		name := a.CampaignName
		if name == "" {
			name = m.CampaignName
		}

		switch a.Type {
		case domain.AnomalyCostSpike:
			if a.Severity == domain.SeverityCritical || a.ChangePct > criticalCostSpikeOver {
				recs = append(recs, pauseRec(a, name, m))
				covered[a.CampaignID] = true
				if hasBest && best.CampaignID != a.CampaignID {
					if shiftAt < 0 {
						shiftAt = len(recs)
						recs = append(recs, shiftRec(name, best))
					} else {
						recs[shiftAt].Reason = mergeShiftSource(recs[shiftAt].Reason, name)
					}
					covered[best.CampaignID] = true
				}
				continue
			}
			recs = append(recs, domain.Recommendation{
				Kind:            domain.RecReduceBudget,
				CampaignID:      a.CampaignID,
				CampaignName:    name,
				Reason:          fmt.Sprintf("Cost per conversion up %.0f%%", a.ChangePct),
				Detail:          fmt.Sprintf("%s. Trim the daily budget by 30%% while the cost settles.", a.Description),
				Priority:        domain.PriorityMedium,
				EstimatedImpact: fmt.Sprintf("Saves about %.2f per day", m.DailyBudget*-CostSpikeReducePct),
				PctChange:       pct(CostSpikeReducePct),
			})

		case domain.AnomalyCTRDrop:
			prio := domain.PriorityMedium
			if a.Severity == domain.SeverityCritical {
				prio = domain.PriorityHigh
			}
			recs = append(recs, domain.Recommendation{
				Kind:            domain.RecRefreshCreative,
				CampaignID:      a.CampaignID,
				CampaignName:    name,
				Reason:          fmt.Sprintf("Click-through rate down %.0f%%", -a.ChangePct),
				Detail:          fmt.Sprintf("%s. The audience is tuning out the current creative; rotate in new images or copy.", a.Description),
				Priority:        prio,
				EstimatedImpact: "Restores engagement toward the previous click-through rate",
			})

		case domain.AnomalyOverspend:
			prio := domain.PriorityMedium
			if a.Severity == domain.SeverityCritical {
				prio = domain.PriorityHigh
			}
			recs = append(recs, domain.Recommendation{
				Kind:            domain.RecReduceBudget,
				CampaignID:      a.CampaignID,
				CampaignName:    name,
				Reason:          fmt.Sprintf("Spending %.0f%% over daily budget", a.ChangePct),
				Detail:          fmt.Sprintf("%s. Lower the daily budget by 20%% to bring delivery back in line.", a.Description),
				Priority:        prio,
				EstimatedImpact: fmt.Sprintf("Caps spend near %.2f per day", m.DailyBudget*(1+OverspendReducePct)),
				PctChange:       pct(OverspendReducePct),
			})

		default:
			continue
		}
		covered[a.CampaignID] = true
	}

	for _, m := range current {
		if covered[m.CampaignID] {
			continue
		}
		if m.Spend > MonitorMinSpend && m.Conversions == 0 && m.Clicks > MonitorMinClicks {
			recs = append(recs, domain.Recommendation{
				Kind:         domain.RecMonitor,
				CampaignID:   m.CampaignID,
				CampaignName: m.CampaignName,
				Reason:       "Spending without conversions",
				Detail: fmt.Sprintf("%q has spent %.2f and drawn %d clicks with no conversions yet. Check the landing page and conversion tracking.",
					m.CampaignName, m.Spend, m.Clicks),
				Priority:        domain.PriorityLow,
				EstimatedImpact: "Early warning before the spend is wasted",
			})
			covered[m.CampaignID] = true
		}
	}

	SortByPriority(recs)
	return recs
}

// SortByPriority stably orders recommendations high, medium, low.
func SortByPriority(recs []domain.Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority.Rank() < recs[j].Priority.Rank()
	})
}

// bestCampaign returns the campaign with the lowest CPA among those with at
// least one conversion. The first one wins a tie.
func bestCampaign(current []domain.MetricsSnapshot) (domain.MetricsSnapshot, bool) {
	var best domain.MetricsSnapshot
	found := false
	for _, m := range current {
		if m.Conversions < 1 {
			continue
		}
		if !found || m.CPA < best.CPA {
			best = m
			found = true
		}
	}
	return best, found
}

func pauseRec(a domain.Anomaly, name string, m domain.MetricsSnapshot) domain.Recommendation {
	return domain.Recommendation{
		Kind:         domain.RecPause,
		CampaignID:   a.CampaignID,
		CampaignName: name,
		Reason:       fmt.Sprintf("Cost per conversion up %.0f%%", a.ChangePct),
		Detail:       fmt.Sprintf("%s. Pause the campaign before it burns more budget.", a.Description),
		Priority:     domain.PriorityHigh,
		EstimatedImpact: fmt.Sprintf("Saves about %.2f per day (~50%% of daily budget)",
			m.DailyBudget*PauseSavingsShare),
	}
}

func shiftRec(fromName string, best domain.MetricsSnapshot) domain.Recommendation {
	return domain.Recommendation{
		Kind:         domain.RecShiftBudget,
		CampaignID:   best.CampaignID,
		CampaignName: best.CampaignName,
		Reason:       fmt.Sprintf("Move budget from %q to %q", fromName, best.CampaignName),
		Detail: fmt.Sprintf("%q has the lowest cost per conversion (%.2f). Raise its daily budget by 30%% to absorb the freed spend.",
			best.CampaignName, best.CPA),
		Priority:        domain.PriorityHigh,
		EstimatedImpact: fmt.Sprintf("More conversions at %.2f each", best.CPA),
		PctChange:       pct(ShiftBudgetPct),
	}
}

// mergeShiftSource folds another paused source into an existing shift reason
// so the best campaign is raised once, not once per paused campaign.
func mergeShiftSource(reason, fromName string) string {
	return fmt.Sprintf("%s (also from %q)", reason, fromName)
}

func pct(v float64) *float64 { return &v }
