package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tessera-ai/blackboard/internal/domain"
	"github.com/tessera-ai/blackboard/internal/store"
)

const (
	// DefaultBeliefHalfLife is how long an unrefreshed belief takes to lose
	// half its confidence.
	DefaultBeliefHalfLife = 5 * time.Minute
	// DefaultEvidenceWindow bounds the per-belief evidence tail. Audit-only:
	// fusion math never walks the window.
	DefaultEvidenceWindow = 20
	// snapshotEvidenceTail is how much of the window a persisted belief
	// snapshot carries.
	snapshotEvidenceTail = 5
)

// BeliefService maintains one fused belief per logical key. Published
// beliefs are immutable: fusion builds a fresh belief and swaps the map
// pointer, and reads apply decay lazily on copies.
type BeliefService struct {
	bb     *store.Blackboard
	trust  TrustSource
	clock  domain.Clock
	logger *zap.Logger

	HalfLife       time.Duration
	EvidenceWindow int

	mu       sync.Mutex
	beliefs  map[string]*domain.Belief
	keyLocks map[string]*sync.Mutex
}

// NewBeliefService builds a fusion store over bb. trust may be nil, in which
// case observation confidence is taken at face value.
func NewBeliefService(bb *store.Blackboard, trust TrustSource, clock domain.Clock, logger *zap.Logger) *BeliefService {
	if clock == nil {
		clock = domain.SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BeliefService{
		bb:             bb,
		trust:          trust,
		clock:          clock,
		logger:         logger,
		HalfLife:       DefaultBeliefHalfLife,
		EvidenceWindow: DefaultEvidenceWindow,
		beliefs:        make(map[string]*domain.Belief),
		keyLocks:       make(map[string]*sync.Mutex),
	}
}

// keyLock serializes fusion per key so two concurrent observations on the
// same key cannot both read the pre-fusion belief and lose one update.
func (s *BeliefService) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.keyLocks[key] = l
	}
	return l
}

// Observe folds a new observation into the belief for key and persists a
// snapshot. When a trust source is configured the reported confidence is
// re-weighted by the submitting agent's trust before fusion.
func (s *BeliefService) Observe(ctx context.Context, key string, value any, confidence float64, prov domain.Provenance, uncertainty *float64) (domain.Belief, error) {
	conf := domain.Clamp01(confidence)
	if s.trust != nil {
		conf = domain.Clamp01(conf * s.trust.TrustFor(prov.AgentID))
	}

	ev := domain.Evidence{
		EvidenceID:    domain.NewID("evd"),
		SourceAgentID: prov.AgentID,
		Value:         value,
		Confidence:    conf,
		Timestamp:     s.clock.Now(),
	}

	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	prev := s.beliefs[key]
	s.mu.Unlock()

	// Fuse into a private copy and publish it with a pointer swap, so a
	// belief already visible to readers is never written again.
	var belief domain.Belief
	if prev == nil {
		belief = domain.Belief{
			Key:         key,
			Value:       value,
			Confidence:  conf,
			Uncertainty: uncertainty,
			UpdatedAt:   ev.Timestamp,
			Evidence:    []domain.Evidence{ev},
		}
	} else {
		belief = copyBelief(prev)
		s.fuse(&belief, ev, uncertainty)
	}

	s.mu.Lock()
	s.beliefs[key] = &belief
	s.mu.Unlock()

	out := copyBelief(&belief)
	if err := s.persistBelief(ctx, prov, out, "observe"); err != nil {
		return out, err
	}
	return out, nil
}

// fuse folds one evidence item into an existing belief. Numeric values fuse
// by confidence-weighted average with an averaged (not additive) confidence
// update, so repeated low-value agreement cannot grow confidence without
// bound. Non-numeric values fuse by confidence comparison: the
// higher-confidence value wins outright, ties keep the existing value. Only
// the accumulated belief and the new evidence enter the math; the window is
// audit state.
func (s *BeliefService) fuse(belief *domain.Belief, ev domain.Evidence, uncertainty *float64) {
	oldVal, oldNum := domain.AsNumber(belief.Value)
	newVal, newNum := domain.AsNumber(ev.Value)

	if oldNum && newNum {
		total := belief.Confidence + ev.Confidence
		if total > 0 {
			belief.Value = (oldVal*belief.Confidence + newVal*ev.Confidence) / total
		} else {
			belief.Value = newVal
		}
		belief.Confidence = domain.Clamp01((belief.Confidence + ev.Confidence) / 2)
	} else if ev.Confidence > belief.Confidence {
		belief.Value = ev.Value
		belief.Confidence = ev.Confidence
	}

	belief.UpdatedAt = ev.Timestamp
	if uncertainty != nil {
		belief.Uncertainty = uncertainty
	}

	belief.Evidence = append(belief.Evidence, ev)
	if window := s.EvidenceWindow; window > 0 && len(belief.Evidence) > window {
		belief.Evidence = belief.Evidence[len(belief.Evidence)-window:]
	}
}

// Get returns the belief for key with decay applied at read time. The stored
// confidence is untouched: two reads at the same instant see the same value.
func (s *BeliefService) Get(key string) (domain.Belief, bool) {
	s.mu.Lock()
	belief := s.beliefs[key]
	s.mu.Unlock()

	if belief == nil {
		return domain.Belief{}, false
	}
	return s.decayed(belief), true
}

// AllBeliefs returns every belief with decay applied, ordered by key.
func (s *BeliefService) AllBeliefs() []domain.Belief {
	s.mu.Lock()
	keys := make([]string, 0, len(s.beliefs))
	for k := range s.beliefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]domain.Belief, 0, len(keys))
	for _, k := range keys {
		out = append(out, *s.beliefs[k])
	}
	s.mu.Unlock()

	for i := range out {
		out[i] = s.decayed(&out[i])
	}
	return out
}

// decayed returns a copy with confidence scaled by 0.5^(age/half-life).
func (s *BeliefService) decayed(belief *domain.Belief) domain.Belief {
	out := copyBelief(belief)
	age := s.clock.Now().Sub(belief.UpdatedAt)
	if age <= 0 || s.HalfLife <= 0 {
		return out
	}
	factor := math.Pow(0.5, float64(age)/float64(s.HalfLife))
	out.Confidence = domain.Clamp01(out.Confidence * factor)
	return out
}

func copyBelief(b *domain.Belief) domain.Belief {
	out := *b
	out.Evidence = make([]domain.Evidence, len(b.Evidence))
	copy(out.Evidence, b.Evidence)
	return out
}

// persistBelief stores a belief snapshot artifact plus a summary note event.
func (s *BeliefService) persistBelief(ctx context.Context, actor domain.Provenance, belief domain.Belief, reason string) error {
	tail := belief.Evidence
	if len(tail) > snapshotEvidenceTail {
		tail = tail[len(tail)-snapshotEvidenceTail:]
	}

	payload := map[string]any{
		"belief": map[string]any{
			"key":         belief.Key,
			"value":       belief.Value,
			"confidence":  belief.Confidence,
			"uncertainty": belief.Uncertainty,
			"updated_at":  belief.UpdatedAt,
			"evidence":    tail,
		},
		"meta": map[string]any{"reason": reason},
	}

	artID, err := s.bb.PutArtifact(ctx, actor, "json", payload, true)
	if err != nil {
		return err
	}
	_, err = s.bb.AppendEvent(ctx, domain.EventNote, actor,
		fmt.Sprintf("belief_updated key=%s reason=%s", belief.Key, reason),
		map[string]any{"belief_key": belief.Key, "artifact_id": artID},
		artID,
	)
	return err
}
