package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tessera-ai/blackboard/internal/domain"
	"github.com/tessera-ai/blackboard/internal/store"
)

// SignalKind classifies an interaction outcome between two agents.
type SignalKind string

const (
	SignalClaimCorrect     SignalKind = "claim_correct"
	SignalClaimIncorrect   SignalKind = "claim_incorrect"
	SignalCommitmentDone   SignalKind = "commitment_done"
	SignalCommitmentMissed SignalKind = "commitment_missed"
	SignalHelped           SignalKind = "helped"
	SignalHurt             SignalKind = "hurt"
	SignalFastResponse     SignalKind = "fast_response"
	SignalSlowResponse     SignalKind = "slow_response"
)

// InteractionSignal is one observed interaction with a partner. Strength in
// [0,1] scales the applied delta; Domain optionally targets a skill area.
type InteractionSignal struct {
	Kind     SignalKind `json:"kind"`
	Strength float64    `json:"strength"`
	Domain   string     `json:"domain,omitempty"`
	Note     string     `json:"note,omitempty"`
	At       time.Time  `json:"at"`
}

// PartnerProfile is one agent's working model of another. All dimensions
// live in [0,1] and start at 0.5 (no information).
type PartnerProfile struct {
	AgentID        string              `json:"agent_id"`
	Trust          float64             `json:"trust"`
	Calibration    float64             `json:"calibration"`
	Reliability    float64             `json:"reliability"`
	Responsiveness float64             `json:"responsiveness"`
	Domains        map[string]float64  `json:"domains,omitempty"`
	Notes          []string            `json:"notes,omitempty"`
	History        []InteractionSignal `json:"history,omitempty"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

const partnerHistoryCap = 50

// PartnerService maintains per-agent partner models and exposes them as a
// trust source for salience ranking and belief fusion.
type PartnerService struct {
	bb     *store.Blackboard
	clock  domain.Clock
	logger *zap.Logger

	mu       sync.RWMutex
	profiles map[string]*PartnerProfile
}

func NewPartnerService(bb *store.Blackboard, clock domain.Clock, logger *zap.Logger) *PartnerService {
	if clock == nil {
		clock = domain.SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PartnerService{
		bb:       bb,
		clock:    clock,
		logger:   logger,
		profiles: make(map[string]*PartnerProfile),
	}
}

// TrustFor implements TrustSource over the partner models.
func (s *PartnerService) TrustFor(agentID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[agentID]; ok {
		return p.Trust
	}
	return DefaultTrust
}

// Profile returns a copy of the model for an agent, seeding defaults when
// the agent is unknown.
func (s *PartnerService) Profile(agentID string) PartnerProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[agentID]; ok {
		return copyProfile(p)
	}
	return PartnerProfile{
		AgentID:        agentID,
		Trust:          DefaultTrust,
		Calibration:    0.5,
		Reliability:    0.5,
		Responsiveness: 0.5,
	}
}

// ApplySignal folds one interaction into the model and persists a snapshot.
func (s *PartnerService) ApplySignal(ctx context.Context, observer domain.Provenance, partnerID string, sig InteractionSignal) (PartnerProfile, error) {
	strength := domain.Clamp01(sig.Strength)
	if sig.At.IsZero() {
		sig.At = s.clock.Now().UTC()
	}
	sig.Strength = strength

	s.mu.Lock()
	p, ok := s.profiles[partnerID]
	if !ok {
		p = &PartnerProfile{
			AgentID:        partnerID,
			Trust:          DefaultTrust,
			Calibration:    0.5,
			Reliability:    0.5,
			Responsiveness: 0.5,
		}
		s.profiles[partnerID] = p
	}

	switch sig.Kind {
	case SignalClaimCorrect:
		p.Trust = domain.Clamp01(p.Trust + 0.08*strength)
		p.Calibration = domain.Clamp01(p.Calibration + 0.05*strength)
	case SignalClaimIncorrect:
		p.Trust = domain.Clamp01(p.Trust - 0.10*strength)
		p.Calibration = domain.Clamp01(p.Calibration - 0.08*strength)
	case SignalCommitmentDone:
		p.Reliability = domain.Clamp01(p.Reliability + 0.10*strength)
	case SignalCommitmentMissed:
		p.Reliability = domain.Clamp01(p.Reliability - 0.12*strength)
	case SignalHelped:
		p.Trust = domain.Clamp01(p.Trust + 0.06*strength)
	case SignalHurt:
		p.Trust = domain.Clamp01(p.Trust - 0.08*strength)
	case SignalFastResponse:
		p.Responsiveness = domain.Clamp01(p.Responsiveness + 0.08*strength)
	case SignalSlowResponse:
		p.Responsiveness = domain.Clamp01(p.Responsiveness - 0.08*strength)
	default:
		s.mu.Unlock()
		return PartnerProfile{}, fmt.Errorf("unknown signal kind %q", sig.Kind)
	}

	if sig.Domain != "" {
		if p.Domains == nil {
			p.Domains = make(map[string]float64)
		}
		cur, ok := p.Domains[sig.Domain]
		if !ok {
			cur = 0.5
		}
		delta := 0.07 * strength
		if signalNegative(sig.Kind) {
			delta = -delta
		}
		p.Domains[sig.Domain] = domain.Clamp01(cur + delta)
	}
	if sig.Note != "" {
		p.Notes = append(p.Notes, sig.Note)
	}
	p.History = append(p.History, sig)
	if len(p.History) > partnerHistoryCap {
		p.History = p.History[len(p.History)-partnerHistoryCap:]
	}
	p.UpdatedAt = s.clock.Now().UTC()
	snapshot := copyProfile(p)
	s.mu.Unlock()

	if err := s.persistProfile(ctx, observer, snapshot, sig); err != nil {
		return PartnerProfile{}, err
	}
	return snapshot, nil
}

// SuggestPartners ranks known partners for a task domain. Score favors
// trust, then reliability, then domain skill; unknown domain skill counts
// as 0.5.
func (s *PartnerService) SuggestPartners(taskDomain string, limit int) []PartnerProfile {
	s.mu.RLock()
	ranked := make([]PartnerProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		ranked = append(ranked, copyProfile(p))
	}
	s.mu.RUnlock()

	score := func(p PartnerProfile) float64 {
		skill := 0.5
		if v, ok := p.Domains[taskDomain]; ok {
			skill = v
		}
		return 0.45*p.Trust + 0.30*p.Reliability + 0.25*skill
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := score(ranked[i]), score(ranked[j])
		if si != sj {
			return si > sj
		}
		return ranked[i].AgentID < ranked[j].AgentID
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func (s *PartnerService) persistProfile(ctx context.Context, observer domain.Provenance, p PartnerProfile, sig InteractionSignal) error {
	tail := p.History
	if len(tail) > 5 {
		tail = tail[len(tail)-5:]
	}
	payload := map[string]any{
		"partner_profile": map[string]any{
			"agent_id":       p.AgentID,
			"trust":          p.Trust,
			"calibration":    p.Calibration,
			"reliability":    p.Reliability,
			"responsiveness": p.Responsiveness,
			"domains":        p.Domains,
			"updated_at":     p.UpdatedAt,
			"history":        tail,
		},
	}
	artifactID, err := s.bb.PutArtifact(ctx, observer, "partner_profile", payload, false)
	if err != nil {
		return err
	}
	_, err = s.bb.AppendEvent(ctx, domain.EventNote, observer,
		fmt.Sprintf("partner_updated agent=%s signal=%s", p.AgentID, sig.Kind),
		map[string]any{"partner_id": p.AgentID, "signal": string(sig.Kind)},
		artifactID,
	)
	return err
}

func signalNegative(kind SignalKind) bool {
	switch kind {
	case SignalClaimIncorrect, SignalCommitmentMissed, SignalHurt, SignalSlowResponse:
		return true
	}
	return false
}

func copyProfile(p *PartnerProfile) PartnerProfile {
	out := *p
	if p.Domains != nil {
		out.Domains = make(map[string]float64, len(p.Domains))
		for k, v := range p.Domains {
			out.Domains[k] = v
		}
	}
	out.Notes = append([]string(nil), p.Notes...)
	out.History = append([]InteractionSignal(nil), p.History...)
	return out
}
