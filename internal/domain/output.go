package domain

// OutputSchemaVersion is stamped on every RunOutput written by this module.
// Version 1 outputs carried only recommendations and no actions.
const OutputSchemaVersion = 2

// AnomalyReport is the detection stage payload.
type AnomalyReport struct {
	Anomalies []Anomaly `json:"anomalies"`
}

// RecommendationSet is the synthesis stage payload. Actions are the
// executable projection of Recommendations.
type RecommendationSet struct {
	Recommendations []Recommendation     `json:"recommendations"`
	Actions         []OptimizationAction `json:"actions,omitempty"`
}

// ExecutionReport is the execution stage payload.
type ExecutionReport struct {
	Actions   []OptimizationAction `json:"actions"`
	Results   []ExecutionResult    `json:"results"`
	Succeeded int                  `json:"succeeded"`
	Failed    int                  `json:"failed"`
	Summary   string               `json:"summary"`
}

// RunOutput accumulates stage payloads over the run's life. A nil section
// means the stage has not produced output yet.
type RunOutput struct {
	SchemaVersion   int                `json:"schema_version"`
	Anomalies       *AnomalyReport     `json:"anomaly_report,omitempty"`
	Recommendations *RecommendationSet `json:"recommendation_set,omitempty"`
	Execution       *ExecutionReport   `json:"execution_report,omitempty"`

	// Legacy holds the flat recommendation list written by version 1 runs.
	Legacy []LegacyRecommendation `json:"recommendations,omitempty"`
}

// LegacyRecommendation is the version 1 recommendation shape. Kind may use
// the old action spellings.
type LegacyRecommendation struct {
	Kind       string   `json:"action"`
	CampaignID string   `json:"campaign_id"`
	Reason     string   `json:"reason"`
	Priority   string   `json:"priority"`
	PctChange  *float64 `json:"pct_change,omitempty"`
}

// Stage names the furthest stage present in the output.
func (o RunOutput) Stage() string {
	switch {
	case o.Execution != nil:
		return "execution"
	case o.Recommendations != nil:
		return "recommendations"
	case o.Anomalies != nil:
		return "anomalies"
	default:
		return "empty"
	}
}
