// Package wal implements the durable append/replay contract behind the
// event/artifact store. Every record is self-describing: the full entity plus
// its provenance inline, reconstructable without external lookups.
package wal

import (
	"context"

	"github.com/tessera-ai/blackboard/internal/domain"
)

const (
	RecordEvent    = "event"
	RecordArtifact = "artifact"
)

// Record is one durable log entry.
type Record struct {
	Kind     string              `json:"record"`
	Event    *domain.MemoryEvent `json:"event,omitempty"`
	Artifact *domain.Artifact    `json:"artifact,omitempty"`
}

// EventRecord wraps an event for appending.
func EventRecord(ev domain.MemoryEvent) Record {
	return Record{Kind: RecordEvent, Event: &ev}
}

// ArtifactRecord wraps an artifact for appending.
func ArtifactRecord(art domain.Artifact) Record {
	return Record{Kind: RecordArtifact, Artifact: &art}
}

// Log is a durable append-only record log.
//
// Append must be synchronous: when it returns nil the record survives a
// restart. Replay streams records in append order; records that fail to parse
// are skipped and logged, never fatal. Replay must be idempotent and must
// never re-append replayed records.
type Log interface {
	Append(ctx context.Context, rec Record) error
	Replay(ctx context.Context, fn func(Record) error) error
	Close() error
}
