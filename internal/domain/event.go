package domain

import "time"

type EventType string

const (
	EventObservation EventType = "observation"
	EventMessage     EventType = "message"
	EventDecision    EventType = "decision"
	EventAction      EventType = "action"
	EventOutcome     EventType = "outcome"
	EventMemoryWrite EventType = "memory_write"
	EventMemoryRead  EventType = "memory_read"
	EventNote        EventType = "note"
)

func ValidEventType(t string) bool {
	switch EventType(t) {
	case EventObservation, EventMessage, EventDecision, EventAction,
		EventOutcome, EventMemoryWrite, EventMemoryRead, EventNote:
		return true
	}
	return false
}

// Provenance is the attribution record attached to every event, artifact,
// claim, and evidence item. It is never mutated after creation.
type Provenance struct {
	AgentID    string    `json:"agent_id"`
	Role       string    `json:"role,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
}

// MemoryEvent is a single entry in the append-only event log. Append order is
// the only ordering guarantee the store makes.
type MemoryEvent struct {
	EventID    string         `json:"event_id"`
	EventType  EventType      `json:"event_type"`
	Provenance Provenance     `json:"provenance"`
	Text       string         `json:"text,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	ArtifactID string         `json:"artifact_id,omitempty"`
}
