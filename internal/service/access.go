package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tessera-ai/blackboard/internal/domain"
	"github.com/tessera-ai/blackboard/internal/store"
)

var (
	// ErrPermissionDenied is returned when the access policy rejects an
	// operation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrRateLimited is returned when an agent exceeds its write budget.
	ErrRateLimited = errors.New("rate limited")
)

type Scope string

const (
	ScopePrivate Scope = "private"
	ScopeTeam    Scope = "team"
	ScopeOrg     Scope = "org"
	ScopePublic  Scope = "public"
)

type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionRedact Action = "redact"
)

// Membership records which org and teams an agent belongs to.
type Membership struct {
	OrgID   string
	TeamIDs []string
}

// AccessPolicy is minimal rule-based access control over scoped artifacts.
type AccessPolicy struct {
	mu          sync.RWMutex
	memberships map[string]Membership
}

func NewAccessPolicy() *AccessPolicy {
	return &AccessPolicy{memberships: make(map[string]Membership)}
}

func (p *AccessPolicy) SetMembership(agentID string, m Membership) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.memberships[agentID] = m
}

// ScopeSpec names the audience of a scoped artifact.
type ScopeSpec struct {
	Scope        Scope
	OwnerAgentID string
	TeamID       string
	OrgID        string
}

// Can applies the rule set:
//   - private: only the owner, for every action
//   - team/org: members read and write; redact only by the owner
//   - public: anyone reads; writes need the "publisher" tag or the admin
//     role; redact needs the admin role
func (p *AccessPolicy) Can(actor domain.Provenance, action Action, spec ScopeSpec) bool {
	p.mu.RLock()
	m := p.memberships[actor.AgentID]
	p.mu.RUnlock()

	switch spec.Scope {
	case ScopePrivate:
		return spec.OwnerAgentID != "" && actor.AgentID == spec.OwnerAgentID

	case ScopeTeam:
		if spec.TeamID == "" {
			return false
		}
		switch action {
		case ActionRead, ActionWrite:
			return contains(m.TeamIDs, spec.TeamID)
		case ActionRedact:
			return spec.OwnerAgentID != "" && actor.AgentID == spec.OwnerAgentID
		}

	case ScopeOrg:
		if spec.OrgID == "" {
			return false
		}
		switch action {
		case ActionRead, ActionWrite:
			return m.OrgID != "" && m.OrgID == spec.OrgID
		case ActionRedact:
			return spec.OwnerAgentID != "" && actor.AgentID == spec.OwnerAgentID
		}

	case ScopePublic:
		switch action {
		case ActionRead:
			return true
		case ActionWrite:
			return contains(actor.Tags, "publisher") || actor.Role == "admin"
		case ActionRedact:
			return actor.Role == "admin"
		}
	}
	return false
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func tagSuperset(tags, required []string) bool {
	for _, r := range required {
		if !contains(tags, r) {
			return false
		}
	}
	return true
}

// SecureStore is the permission-enforcing wrapper around the blackboard:
// every write and read passes through the access policy, access metadata is
// stored inside the artifact payload under "_access" (the core never
// interprets it), and both directions are audited as memory_write /
// memory_read events. Writes are additionally rate limited per agent.
type SecureStore struct {
	bb     *store.Blackboard
	policy *AccessPolicy
	logger *zap.Logger

	limit rate.Limit
	burst int

	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

func NewSecureStore(bb *store.Blackboard, policy *AccessPolicy, writesPerSec float64, burst int, logger *zap.Logger) *SecureStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecureStore{
		bb:       bb,
		policy:   policy,
		logger:   logger,
		limit:    rate.Limit(writesPerSec),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (s *SecureStore) limiter(agentID string) *rate.Limiter {
	s.mu.RLock()
	l, ok := s.limiters[agentID]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok = s.limiters[agentID]; ok {
		return l
	}
	l = rate.NewLimiter(s.limit, s.burst)
	s.limiters[agentID] = l
	return l
}

// PutArtifact stores an artifact with access control and an audit event.
func (s *SecureStore) PutArtifact(ctx context.Context, actor domain.Provenance, kind string, payload map[string]any, spec ScopeSpec, indexIfEmbedding bool) (string, error) {
	if spec.OwnerAgentID == "" {
		spec.OwnerAgentID = actor.AgentID
	}

	if !s.policy.Can(actor, ActionWrite, spec) {
		return "", fmt.Errorf("%w: write scope=%s actor=%s", ErrPermissionDenied, spec.Scope, actor.AgentID)
	}

	// Checked after permissions so a denied write never burns limiter budget.
	if s.limit > 0 && !s.limiter(actor.AgentID).Allow() {
		s.logger.Warn("write rate limited", zap.String("agent_id", actor.AgentID))
		return "", fmt.Errorf("%w: agent %s", ErrRateLimited, actor.AgentID)
	}

	merged := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		merged[k] = v
	}
	merged["_access"] = map[string]any{
		"scope":          string(spec.Scope),
		"owner_agent_id": spec.OwnerAgentID,
		"team_id":        spec.TeamID,
		"org_id":         spec.OrgID,
	}

	artID, err := s.bb.PutArtifact(ctx, actor, kind, merged, indexIfEmbedding)
	if err != nil {
		return "", err
	}

	_, err = s.bb.AppendEvent(ctx, domain.EventMemoryWrite, actor,
		fmt.Sprintf("artifact stored (%s) scope=%s", kind, spec.Scope),
		map[string]any{
			"scope":          string(spec.Scope),
			"owner_agent_id": spec.OwnerAgentID,
			"team_id":        spec.TeamID,
			"org_id":         spec.OrgID,
		},
		artID,
	)
	if err != nil {
		return "", err
	}
	return artID, nil
}

// ReadArtifact reads an artifact with access control and an audit event.
// Absent artifacts surface store.ErrNotFound.
func (s *SecureStore) ReadArtifact(ctx context.Context, actor domain.Provenance, artifactID string) (map[string]any, error) {
	art, err := s.bb.GetArtifact(ctx, artifactID)
	if err != nil {
		return nil, err
	}

	spec := accessSpec(art.Payload)
	if !s.policy.Can(actor, ActionRead, spec) {
		return nil, fmt.Errorf("%w: read scope=%s actor=%s", ErrPermissionDenied, spec.Scope, actor.AgentID)
	}

	_, err = s.bb.AppendEvent(ctx, domain.EventMemoryRead, actor,
		fmt.Sprintf("artifact read scope=%s", spec.Scope),
		map[string]any{"scope": string(spec.Scope), "artifact_id": artifactID},
		artifactID,
	)
	if err != nil {
		return nil, err
	}
	return art.Payload, nil
}

// accessSpec reads the "_access" block back out of a payload. Artifacts
// written outside the secure wrapper default to public.
func accessSpec(payload map[string]any) ScopeSpec {
	spec := ScopeSpec{Scope: ScopePublic}
	block, ok := payload["_access"].(map[string]any)
	if !ok {
		return spec
	}
	if v, ok := block["scope"].(string); ok && v != "" {
		spec.Scope = Scope(v)
	}
	if v, ok := block["owner_agent_id"].(string); ok {
		spec.OwnerAgentID = v
	}
	if v, ok := block["team_id"].(string); ok {
		spec.TeamID = v
	}
	if v, ok := block["org_id"].(string); ok {
		spec.OrgID = v
	}
	return spec
}
