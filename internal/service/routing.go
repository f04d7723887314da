package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tessera-ai/blackboard/internal/domain"
	"github.com/tessera-ai/blackboard/internal/store"
)

// Role labels the kind of agent asking for memory.
type Role string

const (
	RolePlanner  Role = "planner"
	RoleExecutor Role = "executor"
	RoleCritic   Role = "critic"
	RoleObserver Role = "observer"
	RoleGeneral  Role = "general"
)

// Channel is a routing label, not a permission scope: who should see which
// kind of memory.
type Channel string

const (
	ChannelPlan        Channel = "plan"
	ChannelExecution   Channel = "execution"
	ChannelRisk        Channel = "risk"
	ChannelObservation Channel = "observation"
	ChannelDecision    Channel = "decision"
	ChannelOutcome     Channel = "outcome"
	ChannelNote        Channel = "note"
	ChannelClaim       Channel = "claim"
)

// RoleView defines what a role retrieves from shared memory.
type RoleView struct {
	IncludeEventTypes    []domain.EventType
	IncludeChannels      []Channel
	RequireTags          []string
	ExcludeTags          []string
	PreferResolvedClaims bool
	MaxItems             int
}

// DefaultRoleViews is a starting point; callers can replace any view.
func DefaultRoleViews() map[Role]RoleView {
	return map[Role]RoleView{
		RolePlanner: {
			IncludeEventTypes:    []domain.EventType{domain.EventObservation, domain.EventDecision, domain.EventNote, domain.EventOutcome},
			IncludeChannels:      []Channel{ChannelPlan, ChannelDecision, ChannelOutcome, ChannelNote, ChannelClaim},
			ExcludeTags:          []string{"private_only"},
			PreferResolvedClaims: true,
			MaxItems:             30,
		},
		RoleExecutor: {
			IncludeEventTypes: []domain.EventType{domain.EventAction, domain.EventDecision, domain.EventNote, domain.EventOutcome},
			IncludeChannels:   []Channel{ChannelExecution, ChannelDecision, ChannelOutcome, ChannelNote},
			ExcludeTags:       []string{"private_only"},
			MaxItems:          25,
		},
		RoleCritic: {
			// critics want raw claims, not pre-resolved ones
			IncludeEventTypes: []domain.EventType{domain.EventObservation, domain.EventDecision, domain.EventNote, domain.EventOutcome},
			IncludeChannels:   []Channel{ChannelRisk, ChannelDecision, ChannelOutcome, ChannelNote, ChannelClaim},
			MaxItems:          35,
		},
		RoleObserver: {
			IncludeEventTypes: []domain.EventType{domain.EventObservation, domain.EventMessage, domain.EventNote},
			IncludeChannels:   []Channel{ChannelObservation, ChannelNote},
			MaxItems:          25,
		},
		RoleGeneral: {
			IncludeEventTypes:    []domain.EventType{domain.EventObservation, domain.EventMessage, domain.EventDecision, domain.EventAction, domain.EventOutcome, domain.EventNote},
			IncludeChannels:      []Channel{ChannelPlan, ChannelExecution, ChannelRisk, ChannelObservation, ChannelDecision, ChannelOutcome, ChannelNote, ChannelClaim},
			PreferResolvedClaims: true,
			MaxItems:             40,
		},
	}
}

// RoutedItem is one memory item in a retrieval bundle: an event, a readable
// artifact, or a claim resolution hint.
type RoutedItem struct {
	Kind       string            `json:"kind"`
	Summary    string            `json:"summary"`
	Data       map[string]any    `json:"data"`
	Provenance domain.Provenance `json:"provenance"`
}

// Router assembles role-appropriate memory bundles. It reads events from the
// store, optionally expands readable artifacts through the access layer, and
// optionally attaches claim resolutions — always as hints, never as
// requirements.
type Router struct {
	bb        *store.Blackboard
	secure    *SecureStore
	conflicts *ConflictService
	views     map[Role]RoleView
	logger    *zap.Logger
}

func NewRouter(bb *store.Blackboard, secure *SecureStore, conflicts *ConflictService, views map[Role]RoleView, logger *zap.Logger) *Router {
	if views == nil {
		views = DefaultRoleViews()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{bb: bb, secure: secure, conflicts: conflicts, views: views, logger: logger}
}

// PostRoutedEvent appends an event with routing metadata under "_route" in
// the event data.
func (r *Router) PostRoutedEvent(ctx context.Context, eventType domain.EventType, prov domain.Provenance, text string, data map[string]any, channel Channel, audience []Role) (string, error) {
	payload := make(map[string]any, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	roles := make([]string, 0, len(audience))
	for _, role := range audience {
		roles = append(roles, string(role))
	}
	payload["_route"] = map[string]any{
		"channel":        string(channel),
		"audience_roles": roles,
	}
	return r.bb.AppendEvent(ctx, eventType, prov, text, payload, "")
}

// AddClaim submits a claim through the conflict engine and logs a routed
// note so retrieval can surface it.
func (r *Router) AddClaim(ctx context.Context, key string, value any, valueType domain.ValueType, confidence float64, prov domain.Provenance, channel Channel, audience []Role) (domain.Claim, error) {
	if r.conflicts == nil {
		return domain.Claim{}, errors.New("router has no conflict engine")
	}
	claim, err := r.conflicts.AddClaim(ctx, key, value, valueType, confidence, prov, nil)
	if err != nil {
		return domain.Claim{}, err
	}
	_, err = r.PostRoutedEvent(ctx, domain.EventNote, prov,
		fmt.Sprintf("claim recorded: %s", key),
		map[string]any{"key": key, "claim_id": claim.ClaimID},
		channel, audience,
	)
	return claim, err
}

// RetrieveOpts tunes a single retrieval.
type RetrieveOpts struct {
	Limit int
	// IncludeResolutions overrides the view preference when non-nil.
	IncludeResolutions *bool
	Policy             domain.ResolutionPolicy
}

// Retrieve returns a role-appropriate memory bundle for the actor.
func (r *Router) Retrieve(ctx context.Context, actor domain.Provenance, role Role, opts RetrieveOpts) []RoutedItem {
	view, ok := r.views[role]
	if !ok {
		view = r.views[RoleGeneral]
	}
	maxItems := view.MaxItems
	if opts.Limit > 0 {
		maxItems = opts.Limit
	}
	policy := opts.Policy
	if policy == "" {
		policy = domain.PolicyBestSalience
	}
	useResolutions := view.PreferResolvedClaims
	if opts.IncludeResolutions != nil {
		useResolutions = *opts.IncludeResolutions
	}

	// pull extra, then filter down
	events := r.bb.QueryEvents(ctx, maxItems*4)
	eligible := make([]domain.MemoryEvent, 0, len(events))
	for _, ev := range events {
		if !r.eventEligible(ev, view, role) {
			continue
		}
		eligible = append(eligible, ev)
	}
	if len(eligible) > maxItems {
		eligible = eligible[len(eligible)-maxItems:]
	}

	out := make([]RoutedItem, 0, len(eligible))
	for _, ev := range eligible {
		out = append(out, RoutedItem{
			Kind:    "event",
			Summary: strings.TrimSpace(fmt.Sprintf("%s: %s", ev.EventType, ev.Text)),
			Data: map[string]any{
				"event": map[string]any{
					"id":          ev.EventID,
					"type":        string(ev.EventType),
					"text":        ev.Text,
					"data":        ev.Data,
					"artifact_id": ev.ArtifactID,
				},
			},
			Provenance: ev.Provenance,
		})
	}

	if useResolutions && r.conflicts != nil {
		out = append(out, r.resolutionItems(eligible, policy)...)
	}

	if r.secure != nil {
		out = r.expandReadable(ctx, actor, out)
	}

	if len(out) > maxItems {
		out = out[len(out)-maxItems:]
	}
	return out
}

func (r *Router) eventEligible(ev domain.MemoryEvent, view RoleView, role Role) bool {
	if len(view.IncludeEventTypes) > 0 && !containsEventType(view.IncludeEventTypes, ev.EventType) {
		return false
	}

	tags := ev.Provenance.Tags
	if len(view.RequireTags) > 0 && !tagSuperset(tags, view.RequireTags) {
		return false
	}
	for _, t := range view.ExcludeTags {
		if contains(tags, t) {
			return false
		}
	}

	route, _ := ev.Data["_route"].(map[string]any)
	if len(view.IncludeChannels) > 0 {
		ch, _ := route["channel"].(string)
		if ch == "" || !containsChannel(view.IncludeChannels, Channel(ch)) {
			return false
		}
	}

	if audience := routeAudience(route); len(audience) > 0 && !contains(audience, string(role)) {
		return false
	}
	return true
}

// resolutionItems resolves each key inferred from the eligible events and
// attaches chosen claims as hints.
func (r *Router) resolutionItems(events []domain.MemoryEvent, policy domain.ResolutionPolicy) []RoutedItem {
	var out []RoutedItem
	seen := make(map[string]bool)
	for _, ev := range events {
		key, _ := ev.Data["key"].(string)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		res := r.conflicts.Resolve(key, policy)
		if res.Chosen == nil {
			continue
		}
		reasons := make([]string, 0, len(res.Conflicts))
		for _, c := range res.Conflicts {
			reasons = append(reasons, c.Reason)
		}
		out = append(out, RoutedItem{
			Kind:    "resolution",
			Summary: fmt.Sprintf("resolved claim %s -> %v", key, res.Chosen.Value),
			Data: map[string]any{
				"resolution": map[string]any{
					"key":    key,
					"policy": string(res.Policy),
					"chosen": map[string]any{
						"claim_id":   res.Chosen.ClaimID,
						"value":      res.Chosen.Value,
						"confidence": res.Chosen.Confidence,
						"agent_id":   res.Chosen.Provenance.AgentID,
					},
					"conflicts": reasons,
				},
			},
			Provenance: res.Chosen.Provenance,
		})
	}
	return out
}

// expandReadable follows artifact references on event items and appends the
// payloads the actor is allowed to read. Denials are skipped silently.
func (r *Router) expandReadable(ctx context.Context, actor domain.Provenance, items []RoutedItem) []RoutedItem {
	expanded := make([]RoutedItem, 0, len(items))
	for _, item := range items {
		expanded = append(expanded, item)
		if item.Kind != "event" {
			continue
		}
		ev, _ := item.Data["event"].(map[string]any)
		artifactID, _ := ev["artifact_id"].(string)
		if artifactID == "" {
			continue
		}

		payload, err := r.secure.ReadArtifact(ctx, actor, artifactID)
		if err != nil {
			if !errors.Is(err, ErrPermissionDenied) && !errors.Is(err, store.ErrNotFound) {
				r.logger.Warn("artifact expansion failed", zap.String("artifact_id", artifactID), zap.Error(err))
			}
			continue
		}
		expanded = append(expanded, RoutedItem{
			Kind:       "artifact",
			Summary:    fmt.Sprintf("artifact(%s) readable", artifactID),
			Data:       map[string]any{"artifact_id": artifactID, "payload": payload},
			Provenance: item.Provenance,
		})
	}
	return expanded
}

func routeAudience(route map[string]any) []string {
	raw, _ := route["audience_roles"].([]any)
	if raw == nil {
		if typed, ok := route["audience_roles"].([]string); ok {
			return typed
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func containsEventType(xs []domain.EventType, x domain.EventType) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func containsChannel(xs []Channel, x Channel) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
