// Package detect compares consecutive metric cycles and classifies
// regressions into severity-ranked anomalies.
package detect

import (
	"fmt"
	"math"
	"sort"

	"github.com/adpilot/engine/internal/domain"
)

// Thresholds in percent.
const (
	CostSpikeWarnPct     = 50.0
	CostSpikeCriticalPct = 100.0
	CTRDropWarnPct       = -30.0
	CTRDropCriticalPct   = -50.0
	OverspendWarnPct     = 120.0
	OverspendCriticalPct = 150.0
)

// Detect returns the anomalies between previous and current, critical first
// and then by descending absolute change. A campaign must appear in both
// cycles; an empty previous cycle yields no anomalies.
func Detect(current, previous []domain.MetricsSnapshot) []domain.Anomaly {
	if len(previous) == 0 {
		return nil
	}

	prevByID := make(map[string]domain.MetricsSnapshot, len(previous))
	for _, p := range previous {
		prevByID[p.CampaignID] = p
	}

	var out []domain.Anomaly
	for _, curr := range current {
		prev, ok := prevByID[curr.CampaignID]
		if !ok {
			continue
		}
		if a, ok := costSpike(curr, prev); ok {
			out = append(out, a)
		}
		if a, ok := ctrDrop(curr, prev); ok {
			out = append(out, a)
		}
		if a, ok := overspend(curr, prev); ok {
			out = append(out, a)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		ci := out[i].Severity == domain.SeverityCritical
		cj := out[j].Severity == domain.SeverityCritical
		if ci != cj {
			return ci
		}
		return math.Abs(out[i].ChangePct) > math.Abs(out[j].ChangePct)
	})
	return out
}

func costSpike(curr, prev domain.MetricsSnapshot) (domain.Anomaly, bool) {
	if prev.CPA <= 0 || curr.CPA <= 0 {
		return domain.Anomaly{}, false
	}
	change := pctChange(curr.CPA, prev.CPA)
	if change <= CostSpikeWarnPct {
		return domain.Anomaly{}, false
	}
	sev := domain.SeverityWarning
	if change > CostSpikeCriticalPct {
		sev = domain.SeverityCritical
	}
	return domain.Anomaly{
		Type:          domain.AnomalyCostSpike,
		CampaignID:    curr.CampaignID,
		CampaignName:  curr.CampaignName,
		Metric:        "cpa",
		CurrentValue:  curr.CPA,
		PreviousValue: prev.CPA,
		ChangePct:     change,
		Severity:      sev,
		Description: fmt.Sprintf("Cost per conversion for %q rose %.0f%% (%.2f -> %.2f)",
			curr.CampaignName, change, prev.CPA, curr.CPA),
	}, true
}

func ctrDrop(curr, prev domain.MetricsSnapshot) (domain.Anomaly, bool) {
	if prev.CTR <= 0 || curr.CTR <= 0 {
		return domain.Anomaly{}, false
	}
	change := pctChange(curr.CTR, prev.CTR)
	if change >= CTRDropWarnPct {
		return domain.Anomaly{}, false
	}
	sev := domain.SeverityWarning
	if change < CTRDropCriticalPct {
		sev = domain.SeverityCritical
	}
	return domain.Anomaly{
		Type:          domain.AnomalyCTRDrop,
		CampaignID:    curr.CampaignID,
		CampaignName:  curr.CampaignName,
		Metric:        "ctr",
		CurrentValue:  curr.CTR,
		PreviousValue: prev.CTR,
		ChangePct:     change,
		Severity:      sev,
		Description: fmt.Sprintf("Click-through rate for %q fell %.0f%% (%.2f%% -> %.2f%%)",
			curr.CampaignName, math.Abs(change), prev.CTR, curr.CTR),
	}, true
}

// overspend compares spend against the current daily budget. ChangePct
// holds the overshoot above 100%.
func overspend(curr, prev domain.MetricsSnapshot) (domain.Anomaly, bool) {
	if curr.DailyBudget <= 0 {
		return domain.Anomaly{}, false
	}
	spendPct := curr.Spend / curr.DailyBudget * 100
	if spendPct <= OverspendWarnPct {
		return domain.Anomaly{}, false
	}
	sev := domain.SeverityWarning
	if spendPct > OverspendCriticalPct {
		sev = domain.SeverityCritical
	}
	return domain.Anomaly{
		Type:          domain.AnomalyOverspend,
		CampaignID:    curr.CampaignID,
		CampaignName:  curr.CampaignName,
		Metric:        "spend",
		CurrentValue:  curr.Spend,
		PreviousValue: prev.Spend,
		ChangePct:     spendPct - 100,
		Severity:      sev,
		Description: fmt.Sprintf("%q spent %.0f%% of its daily budget (%.2f of %.2f)",
			curr.CampaignName, spendPct, curr.Spend, curr.DailyBudget),
	}, true
}

func pctChange(curr, prev float64) float64 {
	return (curr - prev) / prev * 100
}
