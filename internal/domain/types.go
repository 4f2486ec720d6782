// Package domain defines the core types for the campaign optimization loop.
package domain

import "time"

// MetricsSnapshot is one campaign's metrics for one observation cycle.
type MetricsSnapshot struct {
	CampaignID   string  `json:"campaign_id" yaml:"campaign_id"`
	CampaignName string  `json:"campaign_name" yaml:"campaign_name"`
	Status       string  `json:"status" yaml:"status"`
	DailyBudget  float64 `json:"daily_budget" yaml:"daily_budget"`
	Spend        float64 `json:"spend" yaml:"spend"`
	Impressions  int64   `json:"impressions" yaml:"impressions"`
	Clicks       int64   `json:"clicks" yaml:"clicks"`
	Conversions  int64   `json:"conversions" yaml:"conversions"`
	CPA          float64 `json:"cpa" yaml:"cpa"`
	CTR          float64 `json:"ctr" yaml:"ctr"`
	CPC          float64 `json:"cpc" yaml:"cpc"`
}

// Derive fills the ratio fields from the raw counters. Each ratio is zero
// when its denominator is zero.
func (m MetricsSnapshot) Derive() MetricsSnapshot {
	m.CPA = safeDiv(m.Spend, float64(m.Conversions))
	m.CTR = safeDiv(float64(m.Clicks), float64(m.Impressions)) * 100
	m.CPC = safeDiv(m.Spend, float64(m.Clicks))
	return m
}

// FillDerived computes any ratio the caller left at zero whose denominator
// is non-zero. Ratios supplied by the caller are kept.
func (m MetricsSnapshot) FillDerived() MetricsSnapshot {
	d := m.Derive()
	if m.CPA == 0 {
		m.CPA = d.CPA
	}
	if m.CTR == 0 {
		m.CTR = d.CTR
	}
	if m.CPC == 0 {
		m.CPC = d.CPC
	}
	return m
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// AnomalyType classifies a detected deviation.
type AnomalyType string

const (
	AnomalyCostSpike AnomalyType = "cost_spike"
	AnomalyCTRDrop   AnomalyType = "ctr_drop"
	AnomalyOverspend AnomalyType = "overspend"
)

// Severity is the magnitude class of an anomaly.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Anomaly is a classified deviation between two consecutive snapshots of
// the same campaign.
type Anomaly struct {
	Type          AnomalyType `json:"type" yaml:"type"`
	CampaignID    string      `json:"campaign_id" yaml:"campaign_id"`
	CampaignName  string      `json:"campaign_name" yaml:"campaign_name"`
	Metric        string      `json:"metric" yaml:"metric"`
	CurrentValue  float64     `json:"current_value" yaml:"current_value"`
	PreviousValue float64     `json:"previous_value" yaml:"previous_value"`
	ChangePct     float64     `json:"change_pct" yaml:"change_pct"`
	Severity      Severity    `json:"severity" yaml:"severity"`
	Description   string      `json:"description" yaml:"description"`
}

// RecommendationKind is the suggested corrective move.
type RecommendationKind string

const (
	RecPause           RecommendationKind = "pause"
	RecReduceBudget    RecommendationKind = "reduce_budget"
	RecIncreaseBudget  RecommendationKind = "increase_budget"
	RecShiftBudget     RecommendationKind = "shift_budget"
	RecRefreshCreative RecommendationKind = "refresh_creative"
	RecMonitor         RecommendationKind = "monitor"
)

// Priority orders recommendations. Lower rank sorts first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns the sort position of a priority.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Recommendation is a human-readable, prioritized suggestion.
type Recommendation struct {
	Kind            RecommendationKind `json:"action"`
	CampaignID      string             `json:"campaign_id"`
	CampaignName    string             `json:"campaign_name"`
	Reason          string             `json:"reason"`
	Detail          string             `json:"detail"`
	Priority        Priority           `json:"priority"`
	EstimatedImpact string             `json:"estimated_impact"`
	PctChange       *float64           `json:"pct_change,omitempty"`
}

// ActionKind is the executable projection of a recommendation kind.
type ActionKind string

const (
	ActionPauseCampaign   ActionKind = "pause_campaign"
	ActionReduceBudget    ActionKind = "reduce_budget"
	ActionIncreaseBudget  ActionKind = "increase_budget"
	ActionShiftBudget     ActionKind = "shift_budget"
	ActionRefreshCreative ActionKind = "refresh_creative"
	ActionMonitor         ActionKind = "monitor"
)

// IsBudgetChange reports whether the action adjusts a daily budget.
func (k ActionKind) IsBudgetChange() bool {
	return k == ActionReduceBudget || k == ActionIncreaseBudget || k == ActionShiftBudget
}

// OptimizationAction is the only artifact the executor consumes.
type OptimizationAction struct {
	Kind             ActionKind `json:"type"`
	CampaignID       string     `json:"campaign_id"`
	Reason           string     `json:"reason"`
	PctChange        *float64   `json:"pct_change,omitempty"`
	Executable       bool       `json:"executable"`
	RequiresApproval bool       `json:"requires_approval"`
}

// ExecutionStatus is the outcome code of one executed action.
type ExecutionStatus string

const (
	ExecPaused        ExecutionStatus = "paused"
	ExecBudgetUpdated ExecutionStatus = "budget_updated"
	ExecNotFound      ExecutionStatus = "not_found"
	ExecNotLaunched   ExecutionStatus = "not_launched"
	ExecNotSupported  ExecutionStatus = "not_supported"
	ExecMetaError     ExecutionStatus = "meta_error"
	ExecUnsupported   ExecutionStatus = "unsupported"
	ExecSkipped       ExecutionStatus = "skipped"
	ExecError         ExecutionStatus = "error"
)

// ExecutionResult records the outcome of one action. Never mutated after it
// is appended to a report.
type ExecutionResult struct {
	Action     ActionKind      `json:"action"`
	CampaignID string          `json:"campaign_id"`
	OK         bool            `json:"ok"`
	Status     ExecutionStatus `json:"status"`
	Error      string          `json:"error,omitempty"`
	Detail     map[string]any  `json:"detail,omitempty"`
}

// Campaign is the local record linking a campaign to its platform ids.
type Campaign struct {
	ID                 string `json:"id" yaml:"id"`
	BusinessID         string `json:"business_id" yaml:"business_id"`
	Name               string `json:"name" yaml:"name"`
	Status             string `json:"status" yaml:"status"`
	PlatformCampaignID string `json:"platform_campaign_id" yaml:"platform_campaign_id"`
	PlatformAdSetID    string `json:"platform_adset_id" yaml:"platform_adset_id"`
	DailyBudgetCents   int64  `json:"daily_budget_cents" yaml:"daily_budget_cents"`
}

// CampaignStatusPaused is written locally after a successful platform pause.
const CampaignStatusPaused = "paused"

// Business owns campaigns and runs.
type Business struct {
	ID                  string `json:"id" yaml:"id"`
	Name                string `json:"name" yaml:"name"`
	OwnerUserID         string `json:"owner_user_id" yaml:"owner_user_id"`
	MaxDailyBudgetCents int64  `json:"max_daily_budget_cents" yaml:"max_daily_budget_cents"`
	PlatformAccessToken string `json:"-" yaml:"platform_access_token"`
	PlatformAdAccountID string `json:"platform_ad_account_id" yaml:"platform_ad_account_id"`
}

// RunStatus is a node of the run lifecycle state machine.
type RunStatus string

const (
	RunRunning       RunStatus = "running"
	RunNeedsApproval RunStatus = "needs_approval"
	RunApproved      RunStatus = "approved"
	RunDismissed     RunStatus = "dismissed"
	RunCompleted     RunStatus = "completed"
	RunFailed        RunStatus = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunDismissed
}

// RunEvent is an edge label of the run lifecycle state machine.
type RunEvent string

const (
	EventRecommendationsReady RunEvent = "recommendations_ready"
	EventNothingToApprove     RunEvent = "nothing_to_approve"
	EventFail                 RunEvent = "fail"
	EventApprove              RunEvent = "approve"
	EventDismiss              RunEvent = "dismiss"
	EventExecutionFinished    RunEvent = "execution_finished"
)

// TriggerType names what started a run.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
	TriggerEvent     TriggerType = "event"
)

// Valid reports whether t is a known trigger.
func (t TriggerType) Valid() bool {
	return t == TriggerManual || t == TriggerScheduled || t == TriggerEvent
}

// AgentCampaignOptimizer is the agent type recorded on every run.
const AgentCampaignOptimizer = "campaign_optimizer"

// ApprovalDecision is the human decision recorded by the approval gate.
type ApprovalDecision string

const (
	DecisionApprove ApprovalDecision = "approve"
	DecisionDismiss ApprovalDecision = "dismiss"
)

// Valid reports whether d is approve or dismiss.
func (d ApprovalDecision) Valid() bool {
	return d == DecisionApprove || d == DecisionDismiss
}

// RunInput is the snapshot of inputs a run was computed from.
type RunInput struct {
	Current   []MetricsSnapshot `json:"current_metrics"`
	Previous  []MetricsSnapshot `json:"previous_metrics"`
	Anomalies []Anomaly         `json:"anomalies,omitempty"`
}

// AutomationRun is one invocation of the pipeline.
type AutomationRun struct {
	ID                 string           `json:"id"`
	BusinessID         string           `json:"business_id"`
	TriggeredBy        string           `json:"triggered_by"`
	AgentType          string           `json:"agent_type"`
	TriggerType        TriggerType      `json:"trigger_type"`
	Status             RunStatus        `json:"status"`
	StateVersion       int64            `json:"state_version"`
	Input              RunInput         `json:"input"`
	Output             RunOutput        `json:"output"`
	Summary            string           `json:"summary"`
	FirstPersonSummary string           `json:"first_person_summary"`
	RequiresApproval   bool             `json:"requires_approval"`
	ApprovedAt         *time.Time       `json:"approved_at"`
	ApprovedAction     ApprovalDecision `json:"approved_action"`
	ApprovedBy         string           `json:"approved_by"`
	StartedAt          time.Time        `json:"started_at"`
	CompletedAt        *time.Time       `json:"completed_at"`
	ErrorMessage       string           `json:"error_message"`
}

// RunEventRecord is one entry in a run's append-only transition log.
type RunEventRecord struct {
	ID          int64     `json:"id"`
	RunID       string    `json:"run_id"`
	SeqNo       int64     `json:"seq_no"`
	From        RunStatus `json:"from"`
	To          RunStatus `json:"to"`
	Event       RunEvent  `json:"event"`
	Actor       string    `json:"actor"`
	PayloadJSON string    `json:"payload_json"`
	CreatedAt   int64     `json:"created_at"`
}

// AuditCategory groups audit records.
type AuditCategory string

const (
	AuditApproval  AuditCategory = "approval"
	AuditExecution AuditCategory = "execution"
)

// AuditOutcome is what happened to the audited request.
type AuditOutcome string

const (
	OutcomeAccepted AuditOutcome = "accepted"
	OutcomeRejected AuditOutcome = "rejected"
	OutcomeExecuted AuditOutcome = "executed"
)

// AuditRecord is one entry of a run's approval trail. Decision is empty for
// execution records; Succeeded and Failed are zero for approval records.
type AuditRecord struct {
	ID         string           `json:"id"`
	RunID      string           `json:"run_id"`
	BusinessID string           `json:"business_id"`
	Category   AuditCategory    `json:"category"`
	Actor      string           `json:"actor"`
	Decision   ApprovalDecision `json:"decision,omitempty"`
	Outcome    AuditOutcome     `json:"outcome"`
	Reason     string           `json:"reason,omitempty"`
	Succeeded  int              `json:"succeeded,omitempty"`
	Failed     int              `json:"failed,omitempty"`
	CreatedAt  int64            `json:"created_at"`
}
