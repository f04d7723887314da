// Package store implements the shared event/artifact store: an append-only
// event log, an immutable artifact store, and a similarity index over
// embedding artifacts, all behind a single mutation lock. With a durable log
// attached, an append that returns success is guaranteed to survive a
// restart.
package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tessera-ai/blackboard/internal/domain"
	"github.com/tessera-ai/blackboard/internal/wal"
)

type Blackboard struct {
	mu        sync.Mutex
	events    []domain.MemoryEvent
	artifacts map[string]domain.Artifact
	index     *vectorIndex

	log    wal.Log
	clock  domain.Clock
	logger *zap.Logger
}

// New builds a Blackboard. log may be nil for a purely in-memory store; when
// set, existing records are replayed before New returns.
func New(ctx context.Context, log wal.Log, clock domain.Clock, logger *zap.Logger) (*Blackboard, error) {
	if clock == nil {
		clock = domain.SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bb := &Blackboard{
		artifacts: make(map[string]domain.Artifact),
		index:     newVectorIndex(),
		log:       log,
		clock:     clock,
		logger:    logger,
	}

	if log != nil {
		if err := bb.replay(ctx); err != nil {
			return nil, err
		}
	}
	return bb, nil
}

// replay rebuilds the log, artifact store, and vector index from durable
// records. Records that fail schema validation are skipped and logged;
// nothing is re-appended to the durable log.
func (bb *Blackboard) replay(ctx context.Context) error {
	seen := make(map[string]struct{})
	events, artifacts := 0, 0

	err := bb.log.Replay(ctx, func(rec wal.Record) error {
		switch rec.Kind {
		case wal.RecordEvent:
			ev := rec.Event
			if !validEvent(ev) {
				bb.logger.Warn("skipping invalid event record")
				return nil
			}
			if _, dup := seen[ev.EventID]; dup {
				return nil
			}
			seen[ev.EventID] = struct{}{}
			bb.events = append(bb.events, *ev)
			events++
		case wal.RecordArtifact:
			art := rec.Artifact
			if art == nil || art.ArtifactID == "" || art.Kind == "" {
				bb.logger.Warn("skipping invalid artifact record")
				return nil
			}
			if _, dup := bb.artifacts[art.ArtifactID]; dup {
				return nil
			}
			bb.artifacts[art.ArtifactID] = *art
			bb.indexIfEmbedding(*art)
			artifacts++
		default:
			bb.logger.Warn("skipping record of unknown kind", zap.String("kind", rec.Kind))
		}
		return nil
	})
	if err != nil {
		return err
	}

	bb.logger.Info("replayed durable log",
		zap.Int("events", events),
		zap.Int("artifacts", artifacts),
		zap.Int("indexed", bb.index.len()))
	return nil
}

// validEvent is the schema check replayed events must pass.
func validEvent(ev *domain.MemoryEvent) bool {
	return ev != nil && ev.EventID != "" &&
		domain.ValidEventType(string(ev.EventType)) &&
		ev.Provenance.AgentID != ""
}

// AppendEvent appends to the event log and returns the new event id. The
// durable write happens before the in-memory mutation, under the same lock;
// a durability failure aborts the append with *DurabilityError and leaves
// memory untouched.
func (bb *Blackboard) AppendEvent(ctx context.Context, eventType domain.EventType, prov domain.Provenance, text string, data map[string]any, artifactID string) (string, error) {
	if prov.Timestamp.IsZero() {
		prov.Timestamp = bb.clock.Now()
	}
	ev := domain.MemoryEvent{
		EventID:    domain.NewID("ev"),
		EventType:  eventType,
		Provenance: prov,
		Text:       text,
		Data:       data,
		ArtifactID: artifactID,
	}

	bb.mu.Lock()
	defer bb.mu.Unlock()

	if bb.log != nil {
		if err := bb.log.Append(ctx, wal.EventRecord(ev)); err != nil {
			return "", &DurabilityError{Op: "event append", Err: err}
		}
	}
	bb.events = append(bb.events, ev)
	return ev.EventID, nil
}

// PutArtifact stores an immutable artifact and returns its id. Embedding
// artifacts are also inserted into the similarity index under the same lock,
// so store and index never diverge.
func (bb *Blackboard) PutArtifact(ctx context.Context, prov domain.Provenance, kind string, payload map[string]any, indexIfEmbedding bool) (string, error) {
	if prov.Timestamp.IsZero() {
		prov.Timestamp = bb.clock.Now()
	}
	art := domain.Artifact{
		ArtifactID: domain.NewID("art"),
		Provenance: prov,
		Kind:       kind,
		Payload:    payload,
		CreatedAt:  bb.clock.Now(),
	}

	bb.mu.Lock()
	defer bb.mu.Unlock()

	if bb.log != nil {
		if err := bb.log.Append(ctx, wal.ArtifactRecord(art)); err != nil {
			return "", &DurabilityError{Op: "artifact append", Err: err}
		}
	}
	bb.artifacts[art.ArtifactID] = art
	if indexIfEmbedding {
		bb.indexIfEmbedding(art)
	}
	return art.ArtifactID, nil
}

// indexIfEmbedding inserts an embedding artifact into the vector index.
// Caller holds bb.mu.
func (bb *Blackboard) indexIfEmbedding(art domain.Artifact) {
	if art.Kind != domain.KindEmbedding {
		return
	}
	vec, ok := domain.EmbeddingFromPayload(art.Payload)
	if !ok {
		return
	}
	bb.index.add(domain.VectorEntry{
		ArtifactID: art.ArtifactID,
		Provenance: art.Provenance,
		Embedding:  vec,
		Metadata:   domain.PayloadMetadata(art.Payload),
	})
}

// GetArtifact does a point lookup. ErrNotFound is a normal result.
func (bb *Blackboard) GetArtifact(_ context.Context, id string) (*domain.Artifact, error) {
	bb.mu.Lock()
	defer bb.mu.Unlock()

	art, ok := bb.artifacts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &art, nil
}

// QueryEvents returns the most recent limit events in append order.
func (bb *Blackboard) QueryEvents(_ context.Context, limit int) []domain.MemoryEvent {
	bb.mu.Lock()
	defer bb.mu.Unlock()

	if limit <= 0 || limit > len(bb.events) {
		limit = len(bb.events)
	}
	out := make([]domain.MemoryEvent, limit)
	copy(out, bb.events[len(bb.events)-limit:])
	return out
}

// ScoredArtifact pairs a similarity score with the matching artifact.
type ScoredArtifact struct {
	Score    float64
	Artifact domain.Artifact
}

// SearchEmbeddings scores every indexed entry by cosine similarity against
// query and returns the top-k, applying the filters in opts. The read takes
// a consistent snapshot under the mutation lock.
func (bb *Blackboard) SearchEmbeddings(_ context.Context, query []float32, opts SearchOpts) []ScoredArtifact {
	bb.mu.Lock()
	defer bb.mu.Unlock()

	hits := bb.index.search(query, opts)
	out := make([]ScoredArtifact, 0, len(hits))
	for _, h := range hits {
		art, ok := bb.artifacts[h.artifactID]
		if !ok {
			continue
		}
		out = append(out, ScoredArtifact{Score: h.score, Artifact: art})
	}
	return out
}

// EventCount reports the current log length.
func (bb *Blackboard) EventCount() int {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	return len(bb.events)
}
