package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tessera-ai/blackboard/internal/domain"
	"github.com/tessera-ai/blackboard/internal/store"
)

// CultureNorm is a team-level lesson distilled from episode outcomes.
// Confidence grows each time the same lesson recurs.
type CultureNorm struct {
	NormID     string    `json:"norm_id"`
	Statement  string    `json:"statement"`
	Tags       []string  `json:"tags,omitempty"`
	Confidence float64   `json:"confidence"`
	Support    int       `json:"support"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CultureService accumulates norms from closed episodes. Norms are keyed by
// exact statement text; repeated reinforcement raises confidence.
type CultureService struct {
	bb     *store.Blackboard
	clock  domain.Clock
	logger *zap.Logger

	mu    sync.RWMutex
	norms map[string]*CultureNorm
}

func NewCultureService(bb *store.Blackboard, clock domain.Clock, logger *zap.Logger) *CultureService {
	if clock == nil {
		clock = domain.SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CultureService{bb: bb, clock: clock, logger: logger, norms: make(map[string]*CultureNorm)}
}

// Reinforce raises (or seeds) a norm's confidence by delta and persists the
// updated norm.
func (s *CultureService) Reinforce(ctx context.Context, prov domain.Provenance, statement string, delta float64, tags []string) (CultureNorm, error) {
	statement = strings.TrimSpace(statement)
	if statement == "" {
		return CultureNorm{}, fmt.Errorf("empty norm statement")
	}

	s.mu.Lock()
	n, ok := s.norms[statement]
	if !ok {
		n = &CultureNorm{
			NormID:    domain.NewID("nrm"),
			Statement: statement,
			Tags:      append([]string(nil), tags...),
		}
		s.norms[statement] = n
	} else {
		for _, t := range tags {
			if !contains(n.Tags, t) {
				n.Tags = append(n.Tags, t)
			}
		}
	}
	n.Confidence = domain.Clamp01(n.Confidence + delta)
	n.Support++
	n.UpdatedAt = s.clock.Now().UTC()
	snapshot := *n
	snapshot.Tags = append([]string(nil), n.Tags...)
	s.mu.Unlock()

	if err := s.persistNorm(ctx, prov, snapshot); err != nil {
		return CultureNorm{}, err
	}
	return snapshot, nil
}

// IngestEpisode distills norms from one scored episode and its credit
// verdicts. The heuristics are deliberately coarse; recurring patterns are
// what build confidence.
func (s *CultureService) IngestEpisode(ctx context.Context, prov domain.Provenance, ep Episode, contribs []Contribution) ([]CultureNorm, error) {
	if ep.OutcomeScore == nil {
		return nil, nil
	}
	score := *ep.OutcomeScore

	var out []CultureNorm
	if score > 0.7 {
		n, err := s.Reinforce(ctx, prov,
			"Reusing clear plans and role separation improves outcomes",
			0.05, []string{"planning", "roles"})
		if err != nil {
			return out, err
		}
		out = append(out, n)
	}
	if score < 0.3 {
		n, err := s.Reinforce(ctx, prov,
			"Poor coordination and unclear ownership lead to failure",
			0.06, []string{"coordination", "ownership"})
		if err != nil {
			return out, err
		}
		out = append(out, n)
	}
	for _, c := range contribs {
		if !c.Helped && c.Strength > 0.5 {
			n, err := s.Reinforce(ctx, prov,
				"Escalate review when strong negative contributions appear",
				0.04, []string{"review", "risk"})
			if err != nil {
				return out, err
			}
			out = append(out, n)
			break
		}
	}
	return out, nil
}

// Query lists norms at or above minConfidence, optionally filtered by tag,
// highest confidence first. minConfidence <= 0 means the 0.3 default.
func (s *CultureService) Query(tag string, minConfidence float64, limit int) []CultureNorm {
	if minConfidence <= 0 {
		minConfidence = 0.3
	}
	s.mu.RLock()
	var out []CultureNorm
	for _, n := range s.norms {
		if n.Confidence < minConfidence {
			continue
		}
		if tag != "" && !contains(n.Tags, tag) {
			continue
		}
		cp := *n
		cp.Tags = append([]string(nil), n.Tags...)
		out = append(out, cp)
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Statement < out[j].Statement
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *CultureService) persistNorm(ctx context.Context, prov domain.Provenance, n CultureNorm) error {
	payload := map[string]any{"norm": n}
	artifactID, err := s.bb.PutArtifact(ctx, prov, "culture_norm", payload, false)
	if err != nil {
		return err
	}
	_, err = s.bb.AppendEvent(ctx, domain.EventNote, prov,
		fmt.Sprintf("norm_reinforced confidence=%.2f", n.Confidence),
		map[string]any{"norm_id": n.NormID},
		artifactID,
	)
	return err
}
