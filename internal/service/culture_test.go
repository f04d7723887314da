package service

import (
	"context"
	"math"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestReinforceAccumulates(t *testing.T) {
	clock := newFakeClock()
	bb := newTestBoard(t, clock)
	svc := NewCultureService(bb, clock, zap.NewNop())
	ctx := context.Background()
	prov := testProv("ag1", clock)

	n, err := svc.Reinforce(ctx, prov, "write down decisions", 0.2, []string{"process"})
	if err != nil {
		t.Fatalf("Reinforce: %v", err)
	}
	if math.Abs(n.Confidence-0.2) > 1e-9 || n.Support != 1 {
		t.Errorf("norm = %+v", n)
	}

	// same statement reinforces, not duplicates
	n, err = svc.Reinforce(ctx, prov, "write down decisions", 0.2, []string{"docs"})
	if err != nil {
		t.Fatalf("Reinforce: %v", err)
	}
	if math.Abs(n.Confidence-0.4) > 1e-9 || n.Support != 2 {
		t.Errorf("reinforced norm = %+v", n)
	}
	if len(n.Tags) != 2 {
		t.Errorf("tags = %v, want merged [process docs]", n.Tags)
	}

	if _, err := svc.Reinforce(ctx, prov, "  ", 0.1, nil); err == nil {
		t.Error("empty statement should be rejected")
	}
}

func TestIngestEpisodeHeuristics(t *testing.T) {
	tests := []struct {
		name          string
		score         float64
		contribs      []Contribution
		wantFragments []string
	}{
		{
			name:          "strong outcome reinforces planning",
			score:         0.9,
			wantFragments: []string{"clear plans"},
		},
		{
			name:          "failure reinforces coordination lesson",
			score:         0.1,
			wantFragments: []string{"Poor coordination"},
		},
		{
			name:  "strong negative contributor adds review norm",
			score: 0.1,
			contribs: []Contribution{
				{AgentID: "a", Helped: false, Strength: 0.8},
			},
			wantFragments: []string{"Poor coordination", "Escalate review"},
		},
		{
			name:  "middling outcome teaches nothing",
			score: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			bb := newTestBoard(t, clock)
			svc := NewCultureService(bb, clock, zap.NewNop())

			ep := scoredEpisode(tt.score, map[string]string{"a": "planner"})
			norms, err := svc.IngestEpisode(context.Background(), testProv("ag1", clock), ep, tt.contribs)
			if err != nil {
				t.Fatalf("IngestEpisode: %v", err)
			}
			if len(norms) != len(tt.wantFragments) {
				t.Fatalf("norms = %d, want %d", len(norms), len(tt.wantFragments))
			}
			for i, frag := range tt.wantFragments {
				if !strings.Contains(norms[i].Statement, frag) {
					t.Errorf("norm %d = %q, want fragment %q", i, norms[i].Statement, frag)
				}
			}
		})
	}
}

func TestIngestUnscoredEpisode(t *testing.T) {
	clock := newFakeClock()
	bb := newTestBoard(t, clock)
	svc := NewCultureService(bb, clock, zap.NewNop())

	norms, err := svc.IngestEpisode(context.Background(), testProv("ag1", clock),
		Episode{Participants: map[string]string{"a": "x"}}, nil)
	if err != nil {
		t.Fatalf("IngestEpisode: %v", err)
	}
	if norms != nil {
		t.Errorf("unscored episode produced norms: %+v", norms)
	}
}

func TestQueryFiltersAndSorts(t *testing.T) {
	clock := newFakeClock()
	bb := newTestBoard(t, clock)
	svc := NewCultureService(bb, clock, zap.NewNop())
	ctx := context.Background()
	prov := testProv("ag1", clock)

	if _, err := svc.Reinforce(ctx, prov, "strong norm", 0.8, []string{"planning"}); err != nil {
		t.Fatalf("Reinforce: %v", err)
	}
	if _, err := svc.Reinforce(ctx, prov, "medium norm", 0.5, []string{"planning"}); err != nil {
		t.Fatalf("Reinforce: %v", err)
	}
	if _, err := svc.Reinforce(ctx, prov, "weak norm", 0.1, []string{"planning"}); err != nil {
		t.Fatalf("Reinforce: %v", err)
	}
	if _, err := svc.Reinforce(ctx, prov, "other tag", 0.9, []string{"risk"}); err != nil {
		t.Fatalf("Reinforce: %v", err)
	}

	// default floor hides the weak norm
	got := svc.Query("planning", 0, 0)
	if len(got) != 2 {
		t.Fatalf("norms = %d, want 2", len(got))
	}
	if got[0].Statement != "strong norm" || got[1].Statement != "medium norm" {
		t.Errorf("order = [%s %s]", got[0].Statement, got[1].Statement)
	}

	if got := svc.Query("", 0, 1); len(got) != 1 || got[0].Statement != "other tag" {
		t.Errorf("limit/all-tags query = %+v", got)
	}

	if got := svc.Query("planning", 0.05, 0); len(got) != 3 {
		t.Errorf("low floor norms = %d, want 3", len(got))
	}
}
