package workflow

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/adpilot/engine/internal/domain"
	"github.com/adpilot/engine/internal/store"
)

type fixture struct {
	store *store.Store
	eng   *Engine
	pipe  *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newTestStore(t)
	ctx := context.Background()

	err := st.Businesses.Upsert(ctx, st.DB, domain.Business{
		ID: "biz-1", Name: "Bakery", OwnerUserID: "user-1", MaxDailyBudgetCents: 20000, PlatformAccessToken: "tok",
	})
	if err != nil {
		t.Fatalf("seed business: %v", err)
	}
	for _, c := range []domain.Campaign{
		{ID: "c1", BusinessID: "biz-1", Name: "Spring", Status: "active", PlatformCampaignID: "p1", PlatformAdSetID: "a1", DailyBudgetCents: 5000},
		{ID: "c2", BusinessID: "biz-1", Name: "Evergreen", Status: "active", PlatformCampaignID: "p2", PlatformAdSetID: "a2", DailyBudgetCents: 5000},
	} {
		if err := st.Campaigns.Upsert(ctx, st.DB, c); err != nil {
			t.Fatalf("seed campaign: %v", err)
		}
	}

	eng := NewEngine(st.DB)
	n := 0
	pipe := NewPipeline(eng, st, st, nil, nil)
	pipe.NewID = func() string {
		n++
		return "run-" + string(rune('0'+n))
	}
	return &fixture{store: st, eng: eng, pipe: pipe}
}

// spikeMetrics returns a cycle pair where c1's CPA goes from 10 to 25 and c2
// is a steady, cheaper campaign.
func spikeMetrics() (current, previous []domain.MetricsSnapshot) {
	current = []domain.MetricsSnapshot{
		{CampaignID: "c1", CampaignName: "Spring", DailyBudget: 50, Spend: 60, Conversions: 2, CPA: 25},
		{CampaignID: "c2", CampaignName: "Evergreen", DailyBudget: 50, Spend: 40, Conversions: 5, CPA: 8},
	}
	previous = []domain.MetricsSnapshot{
		{CampaignID: "c1", CampaignName: "Spring", DailyBudget: 50, Spend: 40, Conversions: 4, CPA: 10},
		{CampaignID: "c2", CampaignName: "Evergreen", DailyBudget: 50, Spend: 40, Conversions: 5, CPA: 8},
	}
	return current, previous
}

func TestCreateRun_NeedsApproval(t *testing.T) {
	f := newFixture(t)
	current, previous := spikeMetrics()

	run, err := f.pipe.CreateRun(context.Background(), CreateRunRequest{
		BusinessID: "biz-1",
		UserID:     "user-1",
		Trigger:    domain.TriggerManual,
		Current:    current,
		Previous:   previous,
	})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.Status != domain.RunNeedsApproval {
		t.Fatalf("Status = %q, want needs_approval", run.Status)
	}
	if !run.RequiresApproval {
		t.Error("RequiresApproval should be true")
	}
	if run.CompletedAt != nil {
		t.Error("CompletedAt should be nil while awaiting approval")
	}

	out := run.Output
	if out.SchemaVersion != domain.OutputSchemaVersion {
		t.Errorf("SchemaVersion = %d", out.SchemaVersion)
	}
	if out.Anomalies == nil || len(out.Anomalies.Anomalies) != 1 {
		t.Fatalf("expected one anomaly, got %+v", out.Anomalies)
	}
	a := out.Anomalies.Anomalies[0]
	if a.Type != domain.AnomalyCostSpike || a.Severity != domain.SeverityCritical || a.ChangePct != 150 {
		t.Errorf("unexpected anomaly: %+v", a)
	}

	recs := out.Recommendations.Recommendations
	if len(recs) != 2 || recs[0].Kind != domain.RecPause || recs[1].Kind != domain.RecShiftBudget {
		t.Fatalf("unexpected recommendations: %+v", recs)
	}
	if recs[1].CampaignID != "c2" || recs[1].PctChange == nil || *recs[1].PctChange != 0.30 {
		t.Errorf("unexpected shift: %+v", recs[1])
	}

	actions := out.Recommendations.Actions
	if len(actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(actions))
	}
	if actions[0].Kind != domain.ActionPauseCampaign || !actions[0].Executable || !actions[0].RequiresApproval {
		t.Errorf("unexpected pause action: %+v", actions[0])
	}
	if actions[1].Kind != domain.ActionShiftBudget {
		t.Errorf("unexpected shift action: %+v", actions[1])
	}

	if run.Summary == "" || !strings.Contains(run.FirstPersonSummary, "pause \"Spring\"") {
		t.Errorf("unexpected summaries: %q / %q", run.Summary, run.FirstPersonSummary)
	}

	stored, err := f.eng.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if stored.Status != domain.RunNeedsApproval || len(stored.Input.Previous) != 2 {
		t.Errorf("stored run mismatch: %+v", stored)
	}
}

func TestCreateRun_NothingToApprove(t *testing.T) {
	f := newFixture(t)
	current, _ := spikeMetrics()

	// Cold start: no previous metrics anywhere, so no anomalies.
	run, err := f.pipe.CreateRun(context.Background(), CreateRunRequest{
		BusinessID: "biz-1",
		UserID:     "user-1",
		Current:    current,
	})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.Status != domain.RunCompleted {
		t.Errorf("Status = %q, want completed", run.Status)
	}
	if run.RequiresApproval {
		t.Error("RequiresApproval should be false")
	}
	if run.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}
	if run.TriggerType != domain.TriggerManual {
		t.Errorf("TriggerType = %q, want manual default", run.TriggerType)
	}
	if !strings.Contains(run.FirstPersonSummary, "nothing that needs your attention") {
		t.Errorf("FirstPersonSummary = %q", run.FirstPersonSummary)
	}
}

func TestCreateRun_RawCountersAreDerived(t *testing.T) {
	f := newFixture(t)

	// Only counters: c1's CPA goes 10 -> 25 and its CTR 2% -> 0.8%.
	current := []domain.MetricsSnapshot{
		{CampaignID: "c1", DailyBudget: 50, Spend: 50, Conversions: 2, Clicks: 40, Impressions: 5000},
		{CampaignID: "c2", DailyBudget: 50, Spend: 40, Conversions: 5, Clicks: 100, Impressions: 5000},
	}
	previous := []domain.MetricsSnapshot{
		{CampaignID: "c1", DailyBudget: 50, Spend: 40, Conversions: 4, Clicks: 100, Impressions: 5000},
		{CampaignID: "c2", DailyBudget: 50, Spend: 40, Conversions: 5, Clicks: 100, Impressions: 5000},
	}

	run, err := f.pipe.CreateRun(context.Background(), CreateRunRequest{
		BusinessID: "biz-1", UserID: "user-1", Current: current, Previous: previous,
	})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.Status != domain.RunNeedsApproval {
		t.Fatalf("Status = %q, want needs_approval", run.Status)
	}
	if got := run.Input.Current[0].CPA; got != 25 {
		t.Errorf("stored current CPA = %v, want 25", got)
	}
	if got := run.Input.Previous[0].CTR; math.Abs(got-2) > 1e-9 {
		t.Errorf("stored previous CTR = %v, want 2", got)
	}

	types := map[domain.AnomalyType]domain.Severity{}
	for _, a := range run.Output.Anomalies.Anomalies {
		if a.CampaignID != "c1" {
			t.Errorf("unexpected anomaly on %s", a.CampaignID)
		}
		types[a.Type] = a.Severity
	}
	if types[domain.AnomalyCostSpike] != domain.SeverityCritical {
		t.Errorf("cost spike severity = %q, want critical", types[domain.AnomalyCostSpike])
	}
	if types[domain.AnomalyCTRDrop] != domain.SeverityCritical {
		t.Errorf("ctr drop severity = %q, want critical", types[domain.AnomalyCTRDrop])
	}
}

func TestCreateRun_PreviousFromPriorRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	current, previous := spikeMetrics()

	if _, err := f.pipe.CreateRun(ctx, CreateRunRequest{BusinessID: "biz-1", UserID: "user-1", Current: previous}); err != nil {
		t.Fatalf("first CreateRun: %v", err)
	}
	run, err := f.pipe.CreateRun(ctx, CreateRunRequest{BusinessID: "biz-1", UserID: "user-1", Current: current})
	if err != nil {
		t.Fatalf("second CreateRun: %v", err)
	}
	if run.Status != domain.RunNeedsApproval {
		t.Errorf("Status = %q, want needs_approval (previous taken from prior run)", run.Status)
	}
	if len(run.Input.Previous) != 2 || run.Input.Previous[0].CPA != 10 {
		t.Errorf("Input.Previous = %+v", run.Input.Previous)
	}
}

func TestCreateRun_MetricsFromSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	older := []domain.MetricsSnapshot{
		{CampaignID: "c1", DailyBudget: 50, Spend: 40, Conversions: 4},
		{CampaignID: "c2", DailyBudget: 50, Spend: 40, Conversions: 5},
	}
	newer := []domain.MetricsSnapshot{
		{CampaignID: "c1", DailyBudget: 50, Spend: 50, Conversions: 2},
		{CampaignID: "c2", DailyBudget: 50, Spend: 40, Conversions: 5},
	}
	if _, err := f.store.RecordCycle(ctx, "biz-1", 100, older); err != nil {
		t.Fatalf("RecordCycle: %v", err)
	}
	if _, err := f.store.RecordCycle(ctx, "biz-1", 200, newer); err != nil {
		t.Fatalf("RecordCycle: %v", err)
	}

	run, err := f.pipe.CreateRun(ctx, CreateRunRequest{BusinessID: "biz-1", UserID: "user-1", Trigger: domain.TriggerScheduled})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	// CPA 10 -> 25 is a critical cost spike.
	if run.Status != domain.RunNeedsApproval {
		t.Fatalf("Status = %q, want needs_approval", run.Status)
	}
	if run.Input.Current[0].CPA != 25 || run.Input.Previous[0].CPA != 10 {
		t.Errorf("metrics not resolved from cycles: %+v", run.Input)
	}
}

func TestCreateRun_NoSnapshots(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipe.CreateRun(context.Background(), CreateRunRequest{BusinessID: "biz-1", UserID: "user-1"})
	if !errors.Is(err, domain.ErrNoSnapshots) {
		t.Errorf("expected ErrNoSnapshots, got %v", err)
	}
}

func TestCreateRun_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  CreateRunRequest
		want error
	}{
		{"missing business", CreateRunRequest{UserID: "user-1"}, domain.ErrMissingField},
		{"missing user", CreateRunRequest{BusinessID: "biz-1"}, domain.ErrMissingField},
		{"bad trigger", CreateRunRequest{BusinessID: "biz-1", UserID: "user-1", Trigger: "cron"}, domain.ErrInvalidTrigger},
		{"snapshot without id", CreateRunRequest{BusinessID: "biz-1", UserID: "user-1", Current: []domain.MetricsSnapshot{{Spend: 1}}}, domain.ErrInvalidSnapshots},
		{"unknown business", CreateRunRequest{BusinessID: "nope", UserID: "user-1"}, domain.ErrBusinessNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.pipe.CreateRun(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCreateRun_StagePanicFailsRun(t *testing.T) {
	f := newFixture(t)
	current, previous := spikeMetrics()
	f.pipe.Recommend = func([]domain.Anomaly, []domain.MetricsSnapshot) []domain.Recommendation {
		panic("recommendation table corrupted")
	}

	run, err := f.pipe.CreateRun(context.Background(), CreateRunRequest{
		BusinessID: "biz-1", UserID: "user-1", Current: current, Previous: previous,
	})
	if !IsPipelineFailure(err) {
		t.Fatalf("expected pipeline failure, got %v", err)
	}
	if run == nil || run.Status != domain.RunFailed {
		t.Fatalf("expected failed run, got %+v", run)
	}
	if !strings.Contains(run.ErrorMessage, "recommendation table corrupted") {
		t.Errorf("ErrorMessage = %q", run.ErrorMessage)
	}

	stored, _ := f.eng.GetRun(context.Background(), run.ID)
	if stored.Status != domain.RunFailed {
		t.Errorf("stored Status = %q, want failed", stored.Status)
	}
}

func TestCreateRun_PrecomputedAnomalies(t *testing.T) {
	f := newFixture(t)
	current, _ := spikeMetrics()

	run, err := f.pipe.CreateRun(context.Background(), CreateRunRequest{
		BusinessID: "biz-1",
		UserID:     "user-1",
		Current:    current,
		Anomalies: []domain.Anomaly{{
			Type: domain.AnomalyOverspend, CampaignID: "c1", Metric: "spend",
			CurrentValue: 80, PreviousValue: 50, ChangePct: 60, Severity: domain.SeverityCritical,
		}},
	})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	recs := run.Output.Recommendations.Recommendations
	if len(recs) == 0 || recs[0].Kind != domain.RecReduceBudget || recs[0].Priority != domain.PriorityHigh {
		t.Errorf("unexpected recommendations: %+v", recs)
	}
}

func TestFirstPersonSummary_NoExecutableActions(t *testing.T) {
	out := stageOutput{
		anomalies: []domain.Anomaly{{Type: domain.AnomalyCTRDrop}},
		recommendations: []domain.Recommendation{
			{Kind: domain.RecRefreshCreative, CampaignID: "c9"},
		},
		actions: []domain.OptimizationAction{{Kind: domain.ActionRefreshCreative}},
	}
	got := firstPersonSummary(1, out)
	want := "I reviewed your 1 campaign and found 1 issue. My top suggestion is to refresh the creative on campaign c9. None of these need a change on the ad platform, so approving only records your decision."
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}
