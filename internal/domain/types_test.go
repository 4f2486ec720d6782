package domain

import "testing"

func TestMetricsSnapshot_FillDerived(t *testing.T) {
	raw := MetricsSnapshot{Spend: 50, Conversions: 2, Clicks: 25, Impressions: 1000}
	got := raw.FillDerived()
	if got.CPA != 25 || got.CTR != 2.5 || got.CPC != 2 {
		t.Errorf("FillDerived = cpa %v ctr %v cpc %v, want 25 2.5 2", got.CPA, got.CTR, got.CPC)
	}

	supplied := MetricsSnapshot{Spend: 60, Conversions: 2, CPA: 25}
	if got := supplied.FillDerived(); got.CPA != 25 {
		t.Errorf("supplied CPA overwritten: %v", got.CPA)
	}

	empty := MetricsSnapshot{Spend: 10}.FillDerived()
	if empty.CPA != 0 || empty.CTR != 0 || empty.CPC != 0 {
		t.Errorf("zero denominators must give zero ratios: %+v", empty)
	}
}
