package service

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/tessera-ai/blackboard/internal/domain"
	"github.com/tessera-ai/blackboard/internal/store"
)

// Contribution is one agent's share of an episode outcome. Strength in
// [0,1] measures how far the outcome sat from neutral; Helped says which
// direction.
type Contribution struct {
	AgentID  string  `json:"agent_id"`
	Role     string  `json:"role,omitempty"`
	Helped   bool    `json:"helped"`
	Strength float64 `json:"strength"`
}

// CreditService turns closed episodes into per-agent contributions and
// feeds the verdicts back into partner models.
type CreditService struct {
	bb       *store.Blackboard
	partners *PartnerService
	clock    domain.Clock
	logger   *zap.Logger
}

func NewCreditService(bb *store.Blackboard, partners *PartnerService, clock domain.Clock, logger *zap.Logger) *CreditService {
	if clock == nil {
		clock = domain.SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreditService{bb: bb, partners: partners, clock: clock, logger: logger}
}

// Assign splits an episode outcome evenly across its participants. An
// outcome score above 0.5 credits everyone; below blames everyone; exactly
// 0.5 produces zero-strength contributions. Without an outcome score the
// episode yields nothing.
func (s *CreditService) Assign(ep Episode) []Contribution {
	if ep.OutcomeScore == nil || len(ep.Participants) == 0 {
		return nil
	}
	score := domain.Clamp01(*ep.OutcomeScore)
	strength := domain.Clamp01((score - 0.5) * 2)
	helped := score > 0.5
	if score < 0.5 {
		strength = domain.Clamp01((0.5 - score) * 2)
	}

	agents := make([]string, 0, len(ep.Participants))
	for agent := range ep.Participants {
		agents = append(agents, agent)
	}
	sort.Strings(agents)

	out := make([]Contribution, 0, len(agents))
	for _, agent := range agents {
		out = append(out, Contribution{
			AgentID:  agent,
			Role:     ep.Participants[agent],
			Helped:   helped,
			Strength: strength,
		})
	}
	return out
}

// Record persists the contributions for an episode and propagates each one
// into the partner models as a helped/hurt signal.
func (s *CreditService) Record(ctx context.Context, observer domain.Provenance, ep Episode, contribs []Contribution) (string, error) {
	payload := map[string]any{
		"credit": map[string]any{
			"episode_id":    ep.EpisodeID,
			"task_id":       ep.TaskID,
			"contributions": contribs,
		},
	}
	artifactID, err := s.bb.PutArtifact(ctx, observer, "credit", payload, false)
	if err != nil {
		return "", err
	}
	_, err = s.bb.AppendEvent(ctx, domain.EventNote, observer,
		fmt.Sprintf("credit_assigned task=%s agents=%d", ep.TaskID, len(contribs)),
		map[string]any{"task_id": ep.TaskID, "episode_id": ep.EpisodeID},
		artifactID,
	)
	if err != nil {
		return "", err
	}

	if s.partners != nil {
		for _, c := range contribs {
			if c.Strength == 0 {
				continue
			}
			kind := SignalHelped
			if !c.Helped {
				kind = SignalHurt
			}
			sig := InteractionSignal{Kind: kind, Strength: c.Strength, Note: fmt.Sprintf("episode %s", ep.EpisodeID)}
			if _, err := s.partners.ApplySignal(ctx, observer, c.AgentID, sig); err != nil {
				s.logger.Warn("partner signal failed",
					zap.String("agent_id", c.AgentID),
					zap.Error(err),
				)
			}
		}
	}
	return artifactID, nil
}
