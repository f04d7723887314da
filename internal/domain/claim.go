package domain

import "time"

type ValueType string

const (
	ValueText   ValueType = "text"
	ValueNumber ValueType = "number"
	ValueBool   ValueType = "bool"
	ValueJSON   ValueType = "json"
)

func ValidValueType(t string) bool {
	switch ValueType(t) {
	case ValueText, ValueNumber, ValueBool, ValueJSON:
		return true
	}
	return false
}

type ResolutionPolicy string

const (
	// PolicyKeepAll ranks and detects conflicts but never picks a winner.
	PolicyKeepAll ResolutionPolicy = "keep_all"
	// PolicyBestSalience picks the top-ranked claim under the default weights.
	PolicyBestSalience ResolutionPolicy = "best_salience"
	// PolicyTrustWeighted ranks with trust-dominant weights.
	PolicyTrustWeighted ResolutionPolicy = "trust_weighted"
	// PolicyRecencyWeighted ranks with recency-dominant weights.
	PolicyRecencyWeighted ResolutionPolicy = "recency_weighted"
	// PolicyConsensusMajority picks the most common value; ties fall back to
	// the highest-salience claim among tied values.
	PolicyConsensusMajority ResolutionPolicy = "consensus_majority"
)

func ValidResolutionPolicy(p string) bool {
	switch ResolutionPolicy(p) {
	case PolicyKeepAll, PolicyBestSalience, PolicyTrustWeighted,
		PolicyRecencyWeighted, PolicyConsensusMajority:
		return true
	}
	return false
}

// Claim is a possibly contested statement about a logical key. Claims are
// immutable: later claims on the same key supersede, never mutate.
type Claim struct {
	ClaimID    string         `json:"claim_id"`
	Key        string         `json:"key"`
	Value      any            `json:"value"`
	ValueType  ValueType      `json:"value_type"`
	Confidence float64        `json:"confidence"`
	Provenance Provenance     `json:"provenance"`
	Context    map[string]any `json:"context,omitempty"`
}

// Conflict records that two claims sharing a key are incompatible. Conflicts
// accumulate; they are never deleted.
type Conflict struct {
	ConflictID string         `json:"conflict_id"`
	Key        string         `json:"key"`
	ClaimA     string         `json:"claim_a"`
	ClaimB     string         `json:"claim_b"`
	Reason     string         `json:"reason"`
	CreatedAt  time.Time      `json:"created_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RankedClaim pairs a claim with its salience score.
type RankedClaim struct {
	Score float64 `json:"score"`
	Claim Claim   `json:"claim"`
}

// ResolutionResult is the full output of resolving one key: the ranking and
// conflict set are always populated regardless of policy, Chosen only when
// the policy picks a winner.
type ResolutionResult struct {
	Key       string           `json:"key"`
	Policy    ResolutionPolicy `json:"policy"`
	Chosen    *Claim           `json:"chosen,omitempty"`
	Ranked    []RankedClaim    `json:"ranked"`
	Conflicts []Conflict       `json:"conflicts"`
}
