package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/tessera-ai/blackboard/internal/domain"
)

func TestAccessPolicyCan(t *testing.T) {
	policy := NewAccessPolicy()
	policy.SetMembership("alice", Membership{OrgID: "org1", TeamIDs: []string{"team1"}})
	policy.SetMembership("bob", Membership{OrgID: "org1"})
	policy.SetMembership("eve", Membership{OrgID: "org2"})

	alice := domain.Provenance{AgentID: "alice"}
	bob := domain.Provenance{AgentID: "bob"}
	eve := domain.Provenance{AgentID: "eve"}
	admin := domain.Provenance{AgentID: "root", Role: "admin"}
	publisher := domain.Provenance{AgentID: "pub", Tags: []string{"publisher"}}

	private := ScopeSpec{Scope: ScopePrivate, OwnerAgentID: "alice"}
	team := ScopeSpec{Scope: ScopeTeam, OwnerAgentID: "alice", TeamID: "team1"}
	org := ScopeSpec{Scope: ScopeOrg, OwnerAgentID: "alice", OrgID: "org1"}
	public := ScopeSpec{Scope: ScopePublic, OwnerAgentID: "alice"}

	tests := []struct {
		name   string
		actor  domain.Provenance
		action Action
		spec   ScopeSpec
		want   bool
	}{
		{"owner reads private", alice, ActionRead, private, true},
		{"non-owner cannot read private", bob, ActionRead, private, false},
		{"owner redacts private", alice, ActionRedact, private, true},

		{"team member reads team", alice, ActionRead, team, true},
		{"team member writes team", alice, ActionWrite, team, true},
		{"org member outside team denied", bob, ActionRead, team, false},
		{"only owner redacts team", bob, ActionRedact, team, false},
		{"owner redacts team", alice, ActionRedact, team, true},

		{"org member reads org", bob, ActionRead, org, true},
		{"other org denied", eve, ActionRead, org, false},

		{"anyone reads public", eve, ActionRead, public, true},
		{"plain agent cannot write public", eve, ActionWrite, public, false},
		{"publisher writes public", publisher, ActionWrite, public, true},
		{"admin writes public", admin, ActionWrite, public, true},
		{"only admin redacts public", alice, ActionRedact, public, false},
		{"admin redacts public", admin, ActionRedact, public, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.Can(tt.actor, tt.action, tt.spec); got != tt.want {
				t.Errorf("Can(%s, %s, %s) = %v, want %v",
					tt.actor.AgentID, tt.action, tt.spec.Scope, got, tt.want)
			}
		})
	}
}

func TestSecureStoreRoundTrip(t *testing.T) {
	clock := newFakeClock()
	bb := newTestBoard(t, clock)
	policy := NewAccessPolicy()
	policy.SetMembership("alice", Membership{OrgID: "org1", TeamIDs: []string{"team1"}})
	policy.SetMembership("bob", Membership{OrgID: "org1", TeamIDs: []string{"team1"}})
	policy.SetMembership("eve", Membership{OrgID: "org2"})
	secure := NewSecureStore(bb, policy, 0, 0, zap.NewNop())
	ctx := context.Background()

	alice := testProv("alice", clock)
	spec := ScopeSpec{Scope: ScopeTeam, TeamID: "team1"}
	artID, err := secure.PutArtifact(ctx, alice, "json", map[string]any{"note": "shared"}, spec, false)
	if err != nil {
		t.Fatalf("PutArtifact: %v", err)
	}

	// a teammate reads, an outsider does not
	if _, err := secure.ReadArtifact(ctx, testProv("bob", clock), artID); err != nil {
		t.Errorf("teammate read failed: %v", err)
	}
	_, err = secure.ReadArtifact(ctx, testProv("eve", clock), artID)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("outsider read error = %v, want ErrPermissionDenied", err)
	}

	// both directions leave audit events
	var writes, reads int
	for _, ev := range bb.QueryEvents(ctx, 0) {
		switch ev.EventType {
		case domain.EventMemoryWrite:
			writes++
		case domain.EventMemoryRead:
			reads++
		}
	}
	if writes != 1 || reads != 1 {
		t.Errorf("audit events: writes=%d reads=%d, want 1/1", writes, reads)
	}
}

func TestSecureStoreDeniedWrite(t *testing.T) {
	clock := newFakeClock()
	bb := newTestBoard(t, clock)
	policy := NewAccessPolicy()
	secure := NewSecureStore(bb, policy, 0, 0, zap.NewNop())

	spec := ScopeSpec{Scope: ScopeTeam, TeamID: "team1"}
	_, err := secure.PutArtifact(context.Background(), testProv("eve", clock), "json", map[string]any{}, spec, false)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("error = %v, want ErrPermissionDenied", err)
	}
	if bb.EventCount() != 0 {
		t.Error("denied write must not append events")
	}
}

func TestSecureStoreRateLimit(t *testing.T) {
	clock := newFakeClock()
	bb := newTestBoard(t, clock)
	policy := NewAccessPolicy()
	secure := NewSecureStore(bb, policy, 1, 2, zap.NewNop())
	ctx := context.Background()

	alice := testProv("alice", clock)
	spec := ScopeSpec{Scope: ScopePrivate}
	for i := 0; i < 2; i++ {
		if _, err := secure.PutArtifact(ctx, alice, "json", map[string]any{}, spec, false); err != nil {
			t.Fatalf("write %d inside burst failed: %v", i, err)
		}
	}
	_, err := secure.PutArtifact(ctx, alice, "json", map[string]any{}, spec, false)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}

	// limits are per agent
	if _, err := secure.PutArtifact(ctx, testProv("bob", clock), "json", map[string]any{}, spec, false); err != nil {
		t.Errorf("other agent should not be limited: %v", err)
	}
}

func TestSecureStoreDeniedWriteKeepsLimiterBudget(t *testing.T) {
	clock := newFakeClock()
	bb := newTestBoard(t, clock)
	policy := NewAccessPolicy()
	secure := NewSecureStore(bb, policy, 1, 1, zap.NewNop())
	ctx := context.Background()

	alice := testProv("alice", clock)
	_, err := secure.PutArtifact(ctx, alice, "json", map[string]any{}, ScopeSpec{Scope: ScopePublic}, false)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("error = %v, want ErrPermissionDenied", err)
	}

	// the denied attempt must not spend the single burst token
	if _, err := secure.PutArtifact(ctx, alice, "json", map[string]any{}, ScopeSpec{Scope: ScopePrivate}, false); err != nil {
		t.Errorf("allowed write after denied attempt failed: %v", err)
	}
}

func TestAccessSpecDefaultsToPublic(t *testing.T) {
	clock := newFakeClock()
	bb := newTestBoard(t, clock)
	secure := NewSecureStore(bb, NewAccessPolicy(), 0, 0, zap.NewNop())
	ctx := context.Background()

	// written outside the secure wrapper, no _access block
	artID, err := bb.PutArtifact(ctx, testProv("alice", clock), "json", map[string]any{"x": 1}, false)
	if err != nil {
		t.Fatalf("PutArtifact: %v", err)
	}
	if _, err := secure.ReadArtifact(ctx, testProv("stranger", clock), artID); err != nil {
		t.Errorf("unscoped artifact should read as public: %v", err)
	}
}
