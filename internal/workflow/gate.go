// Package workflow implements the automation run lifecycle: the state
// machine, the approval gate and the pipeline that drives a run from metrics
// to executed actions.
package workflow

import (
	"fmt"

	"github.com/adpilot/engine/internal/domain"
)

// GateInput is everything an approval precondition may inspect. Fields are
// resolved before the gates run; a nil Run means the lookup found nothing.
type GateInput struct {
	RunID    string
	Run      *domain.AutomationRun
	CallerID string
	Business *domain.Business
}

// Gate is one approval precondition.
type Gate interface {
	Name() string
	Evaluate(in GateInput) error
}

// GateFunc adapts a function to the Gate interface.
type GateFunc struct {
	name string
	fn   func(in GateInput) error
}

// Name returns the gate name.
func (g GateFunc) Name() string { return g.name }

// Evaluate runs the check.
func (g GateFunc) Evaluate(in GateInput) error { return g.fn(in) }

// ApprovalGate evaluates its preconditions in order; the first failure wins.
type ApprovalGate struct {
	gates []Gate
}

// NewApprovalGate creates the default precondition chain: run exists, caller
// authenticated, caller owns the business, approval required, run awaiting
// approval.
func NewApprovalGate() *ApprovalGate {
	return &ApprovalGate{gates: []Gate{
		GateFunc{"run_exists", runExists},
		GateFunc{"authenticated", authenticated},
		GateFunc{"owns_business", ownsBusiness},
		GateFunc{"requires_approval", requiresApproval},
		GateFunc{"awaiting_approval", awaitingApproval},
	}}
}

// Register appends a custom precondition after the defaults.
func (g *ApprovalGate) Register(gate Gate) {
	g.gates = append(g.gates, gate)
}

// Names lists the gates in evaluation order.
func (g *ApprovalGate) Names() []string {
	names := make([]string, len(g.gates))
	for i, gate := range g.gates {
		names[i] = gate.Name()
	}
	return names
}

// Evaluate returns the first failing precondition's error, or nil.
func (g *ApprovalGate) Evaluate(in GateInput) error {
	for _, gate := range g.gates {
		if err := gate.Evaluate(in); err != nil {
			return err
		}
	}
	return nil
}

func runExists(in GateInput) error {
	if in.Run == nil {
		return domain.NewEngineError(domain.ErrRunNotFound.Code, fmt.Sprintf("run %s not found", in.RunID))
	}
	return nil
}

func authenticated(in GateInput) error {
	if in.CallerID == "" {
		return domain.ErrUnauthenticated
	}
	return nil
}

func ownsBusiness(in GateInput) error {
	if in.Business == nil || in.Business.OwnerUserID != in.CallerID {
		return domain.ErrPermissionDenied
	}
	return nil
}

func requiresApproval(in GateInput) error {
	if !in.Run.RequiresApproval {
		return domain.ErrApprovalNotReqd
	}
	return nil
}

func awaitingApproval(in GateInput) error {
	if in.Run.Status != domain.RunNeedsApproval {
		return domain.NewEngineError(
			domain.ErrNotAwaiting.Code,
			fmt.Sprintf("run is %s, not awaiting approval", in.Run.Status),
		)
	}
	return nil
}
