package domain

import "time"

// Evidence is one raw, timestamped observation folded into a belief.
type Evidence struct {
	EvidenceID    string    `json:"evidence_id"`
	SourceAgentID string    `json:"source_agent_id"`
	Value         any       `json:"value"`
	Confidence    float64   `json:"confidence"`
	Timestamp     time.Time `json:"timestamp"`
}

// Belief is the current fused estimate for a logical key. Exactly one live
// instance exists per key; the fusion store is its sole writer. The evidence
// window is bounded and exists only for audit, fusion math never walks it.
type Belief struct {
	Key         string     `json:"key"`
	Value       any        `json:"value"`
	Confidence  float64    `json:"confidence"`
	Uncertainty *float64   `json:"uncertainty,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Evidence    []Evidence `json:"evidence,omitempty"`
}
