package workflow

import (
	"errors"
	"testing"

	"github.com/adpilot/engine/internal/domain"
)

func awaitingRun() *domain.AutomationRun {
	return &domain.AutomationRun{
		ID:               "run-1",
		BusinessID:       "biz-1",
		Status:           domain.RunNeedsApproval,
		RequiresApproval: true,
	}
}

func TestApprovalGate_AllowsOwnerOnAwaitingRun(t *testing.T) {
	gate := NewApprovalGate()
	in := GateInput{
		RunID:    "run-1",
		Run:      awaitingRun(),
		CallerID: "user-1",
		Business: &domain.Business{ID: "biz-1", OwnerUserID: "user-1"},
	}
	if err := gate.Evaluate(in); err != nil {
		t.Errorf("expected allow, got %v", err)
	}
}

func TestApprovalGate_FirstFailureWins(t *testing.T) {
	owner := &domain.Business{ID: "biz-1", OwnerUserID: "user-1"}

	notRequired := awaitingRun()
	notRequired.RequiresApproval = false
	notRequired.Status = domain.RunCompleted

	completed := awaitingRun()
	completed.Status = domain.RunCompleted

	tests := []struct {
		name string
		in   GateInput
		want error
	}{
		{
			name: "missing run beats missing caller",
			in:   GateInput{RunID: "run-1"},
			want: domain.ErrRunNotFound,
		},
		{
			name: "unauthenticated beats ownership",
			in:   GateInput{Run: awaitingRun(), Business: owner},
			want: domain.ErrUnauthenticated,
		},
		{
			name: "other user",
			in:   GateInput{Run: awaitingRun(), CallerID: "user-2", Business: owner},
			want: domain.ErrPermissionDenied,
		},
		{
			name: "ownership beats approval state",
			in:   GateInput{Run: notRequired, CallerID: "user-2", Business: owner},
			want: domain.ErrPermissionDenied,
		},
		{
			name: "approval not required",
			in:   GateInput{Run: notRequired, CallerID: "user-1", Business: owner},
			want: domain.ErrApprovalNotReqd,
		},
		{
			name: "already decided",
			in:   GateInput{Run: completed, CallerID: "user-1", Business: owner},
			want: domain.ErrNotAwaiting,
		},
	}

	gate := NewApprovalGate()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.Evaluate(tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestApprovalGate_Register(t *testing.T) {
	gate := NewApprovalGate()
	blocked := errors.New("blocked by custom gate")
	gate.Register(GateFunc{"custom", func(GateInput) error { return blocked }})

	names := gate.Names()
	if len(names) != 6 || names[0] != "run_exists" || names[5] != "custom" {
		t.Errorf("unexpected gate order: %v", names)
	}

	in := GateInput{
		Run:      awaitingRun(),
		CallerID: "user-1",
		Business: &domain.Business{ID: "biz-1", OwnerUserID: "user-1"},
	}
	if err := gate.Evaluate(in); !errors.Is(err, blocked) {
		t.Errorf("expected custom gate error, got %v", err)
	}
}
