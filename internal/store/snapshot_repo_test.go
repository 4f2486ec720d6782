package store

import (
	"context"
	"testing"

	"github.com/adpilot/engine/internal/domain"
)

func TestSnapshotRepo_RecordAndLatestCycles(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	first := []domain.MetricsSnapshot{
		{CampaignID: "c1", CampaignName: "One", DailyBudget: 50, Spend: 40, Impressions: 1000, Clicks: 20, Conversions: 4},
		{CampaignID: "c2", CampaignName: "Two", DailyBudget: 50, Spend: 30, Impressions: 500, Clicks: 0, Conversions: 0},
	}
	second := []domain.MetricsSnapshot{
		{CampaignID: "c1", CampaignName: "One", DailyBudget: 50, Spend: 60, Impressions: 1000, Clicks: 10, Conversions: 2},
	}

	seq1, err := s.RecordCycle(ctx, "biz-1", 100, first)
	if err != nil {
		t.Fatalf("RecordCycle first: %v", err)
	}
	seq2, err := s.RecordCycle(ctx, "biz-1", 200, second)
	if err != nil {
		t.Fatalf("RecordCycle second: %v", err)
	}
	if seq1 != 1 || seq2 != 2 {
		t.Fatalf("seqs = %d,%d want 1,2", seq1, seq2)
	}

	cycles, err := s.LatestCycles(ctx, "biz-1", 2)
	if err != nil {
		t.Fatalf("LatestCycles: %v", err)
	}
	if len(cycles) != 2 {
		t.Fatalf("expected 2 cycles, got %d", len(cycles))
	}
	if len(cycles[0]) != 1 || cycles[0][0].Spend != 60 {
		t.Errorf("newest cycle wrong: %+v", cycles[0])
	}
	if len(cycles[1]) != 2 {
		t.Errorf("older cycle wrong: %+v", cycles[1])
	}

	// Ratios are derived on read.
	c1 := cycles[0][0]
	if c1.CPA != 30 {
		t.Errorf("CPA = %v, want 30", c1.CPA)
	}
	if c1.CTR != 1 {
		t.Errorf("CTR = %v, want 1", c1.CTR)
	}
	if c1.CPC != 6 {
		t.Errorf("CPC = %v, want 6", c1.CPC)
	}
	c2 := cycles[1][1]
	if c2.CPA != 0 || c2.CPC != 0 {
		t.Errorf("zero denominators must yield zero ratios: %+v", c2)
	}

	only, err := s.LatestCycles(ctx, "biz-1", 1)
	if err != nil {
		t.Fatalf("LatestCycles n=1: %v", err)
	}
	if len(only) != 1 {
		t.Errorf("expected 1 cycle, got %d", len(only))
	}

	none, err := s.LatestCycles(ctx, "other", 2)
	if err != nil {
		t.Fatalf("LatestCycles other: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no cycles, got %d", len(none))
	}
}

func TestSnapshotRepo_RejectsMissingCampaignID(t *testing.T) {
	s := newTestDB(t)
	_, err := s.RecordCycle(context.Background(), "biz-1", 100, []domain.MetricsSnapshot{{CampaignName: "nameless"}})
	if err == nil {
		t.Fatal("expected error for snapshot without campaign_id")
	}
}
