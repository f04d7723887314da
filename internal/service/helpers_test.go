package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tessera-ai/blackboard/internal/domain"
	"github.com/tessera-ai/blackboard/internal/store"
)

// fakeClock is a manually-advanced clock for deterministic tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBoard(t *testing.T, clock domain.Clock) *store.Blackboard {
	t.Helper()
	bb, err := store.New(context.Background(), nil, clock, zap.NewNop())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return bb
}

func testProv(agentID string, clock domain.Clock) domain.Provenance {
	return domain.Provenance{
		AgentID:    agentID,
		Role:       "general",
		SessionID:  "sess-1",
		Timestamp:  clock.Now(),
		Confidence: 1,
		Source:     "test",
	}
}

func testClaim(key string, value any, vt domain.ValueType, confidence float64, agentID string, at time.Time) domain.Claim {
	return domain.Claim{
		ClaimID:    domain.NewID("claim"),
		Key:        key,
		Value:      value,
		ValueType:  vt,
		Confidence: confidence,
		Provenance: domain.Provenance{
			AgentID:   agentID,
			Timestamp: at,
		},
	}
}
