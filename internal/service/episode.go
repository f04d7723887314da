package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tessera-ai/blackboard/internal/domain"
	"github.com/tessera-ai/blackboard/internal/store"
)

// EpisodeEvent is one step in a reconstructed episode.
type EpisodeEvent struct {
	EventID   string           `json:"event_id"`
	EventType domain.EventType `json:"event_type"`
	AgentID   string           `json:"agent_id"`
	Role      string           `json:"role,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Text      string           `json:"text"`
	Data      map[string]any   `json:"data,omitempty"`
}

// Episode is a task-scoped slice of the shared timeline. Participants maps
// agent id to the role it acted under; OutcomeScore is taken from the last
// outcome event's data when present.
type Episode struct {
	EpisodeID    string            `json:"episode_id"`
	TaskID       string            `json:"task_id"`
	StartedAt    time.Time         `json:"started_at"`
	EndedAt      time.Time         `json:"ended_at"`
	Participants map[string]string `json:"participants"`
	Events       []EpisodeEvent    `json:"events"`
	OutcomeScore *float64          `json:"outcome_score,omitempty"`
}

// EpisodeFilter narrows which events fall into a rebuilt episode.
type EpisodeFilter struct {
	SessionID string
	Since     time.Time
	Until     time.Time
}

// EpisodeService rebuilds task episodes from the event timeline. Events
// belong to a task when their data carries a matching "task_id".
type EpisodeService struct {
	bb     *store.Blackboard
	clock  domain.Clock
	logger *zap.Logger
}

func NewEpisodeService(bb *store.Blackboard, clock domain.Clock, logger *zap.Logger) *EpisodeService {
	if clock == nil {
		clock = domain.SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EpisodeService{bb: bb, clock: clock, logger: logger}
}

// Build reconstructs the episode for a task id. Returns store.ErrNotFound
// when no events match.
func (s *EpisodeService) Build(ctx context.Context, taskID string, filter EpisodeFilter) (Episode, error) {
	events := s.bb.QueryEvents(ctx, 0)

	var matched []domain.MemoryEvent
	for _, ev := range events {
		id, _ := ev.Data["task_id"].(string)
		if id != taskID {
			continue
		}
		if filter.SessionID != "" && ev.Provenance.SessionID != filter.SessionID {
			continue
		}
		ts := ev.Provenance.Timestamp
		if !filter.Since.IsZero() && ts.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && ts.After(filter.Until) {
			continue
		}
		matched = append(matched, ev)
	}
	if len(matched) == 0 {
		return Episode{}, store.ErrNotFound
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Provenance.Timestamp.Before(matched[j].Provenance.Timestamp)
	})

	ep := Episode{
		EpisodeID:    domain.NewID("epi"),
		TaskID:       taskID,
		StartedAt:    matched[0].Provenance.Timestamp,
		Participants: make(map[string]string),
	}
	for _, ev := range matched {
		ep.Participants[ev.Provenance.AgentID] = ev.Provenance.Role
		ep.Events = append(ep.Events, EpisodeEvent{
			EventID:   ev.EventID,
			EventType: ev.EventType,
			AgentID:   ev.Provenance.AgentID,
			Role:      ev.Provenance.Role,
			Timestamp: ev.Provenance.Timestamp,
			Text:      ev.Text,
			Data:      ev.Data,
		})
	}

	// an episode closes at its last outcome; without one, at its last event
	ep.EndedAt = matched[len(matched)-1].Provenance.Timestamp
	for i := len(matched) - 1; i >= 0; i-- {
		if matched[i].EventType != domain.EventOutcome {
			continue
		}
		ep.EndedAt = matched[i].Provenance.Timestamp
		if score, ok := domain.AsNumber(matched[i].Data["score"]); ok {
			v := domain.Clamp01(score)
			ep.OutcomeScore = &v
		}
		break
	}
	return ep, nil
}

// Persist stores the episode as an artifact plus a note event referencing it.
func (s *EpisodeService) Persist(ctx context.Context, prov domain.Provenance, ep Episode) (string, error) {
	payload := map[string]any{"episode": ep}
	artifactID, err := s.bb.PutArtifact(ctx, prov, "episode", payload, false)
	if err != nil {
		return "", err
	}
	_, err = s.bb.AppendEvent(ctx, domain.EventNote, prov,
		fmt.Sprintf("episode_closed task=%s events=%d", ep.TaskID, len(ep.Events)),
		map[string]any{"task_id": ep.TaskID, "episode_id": ep.EpisodeID},
		artifactID,
	)
	if err != nil {
		return "", err
	}
	s.logger.Debug("episode persisted",
		zap.String("task_id", ep.TaskID),
		zap.String("episode_id", ep.EpisodeID),
		zap.Int("events", len(ep.Events)),
	)
	return artifactID, nil
}

// Recent lists the most recently persisted episodes, newest first.
func (s *EpisodeService) Recent(ctx context.Context, limit int) []Episode {
	events := s.bb.QueryEvents(ctx, 0)
	var out []Episode
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.EventType != domain.EventNote || ev.ArtifactID == "" {
			continue
		}
		if _, ok := ev.Data["episode_id"].(string); !ok {
			continue
		}
		art, err := s.bb.GetArtifact(ctx, ev.ArtifactID)
		if err != nil {
			continue
		}
		ep, ok := episodeFromPayload(art.Payload)
		if !ok {
			continue
		}
		out = append(out, ep)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// episodeFromPayload tolerates both in-process (Episode value) and replayed
// (generic map) payload shapes.
func episodeFromPayload(payload map[string]any) (Episode, bool) {
	raw, ok := payload["episode"]
	if !ok {
		return Episode{}, false
	}
	if ep, ok := raw.(Episode); ok {
		return ep, true
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return Episode{}, false
	}
	ep := Episode{
		Participants: make(map[string]string),
	}
	ep.EpisodeID, _ = m["episode_id"].(string)
	ep.TaskID, _ = m["task_id"].(string)
	if ep.EpisodeID == "" || ep.TaskID == "" {
		return Episode{}, false
	}
	if ts, ok := m["started_at"].(string); ok {
		ep.StartedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	if ts, ok := m["ended_at"].(string); ok {
		ep.EndedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	if parts, ok := m["participants"].(map[string]any); ok {
		for agent, role := range parts {
			if r, ok := role.(string); ok {
				ep.Participants[agent] = r
			}
		}
	}
	if score, ok := domain.AsNumber(m["outcome_score"]); ok {
		ep.OutcomeScore = &score
	}
	if evs, ok := m["events"].([]any); ok {
		for _, rawEv := range evs {
			em, ok := rawEv.(map[string]any)
			if !ok {
				continue
			}
			var ee EpisodeEvent
			ee.EventID, _ = em["event_id"].(string)
			if t, ok := em["event_type"].(string); ok {
				ee.EventType = domain.EventType(t)
			}
			ee.AgentID, _ = em["agent_id"].(string)
			ee.Role, _ = em["role"].(string)
			ee.Text, _ = em["text"].(string)
			if ts, ok := em["timestamp"].(string); ok {
				ee.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
			}
			if d, ok := em["data"].(map[string]any); ok {
				ee.Data = d
			}
			ep.Events = append(ep.Events, ee)
		}
	}
	return ep, true
}
