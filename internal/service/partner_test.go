package service

import (
	"context"
	"math"
	"testing"

	"go.uber.org/zap"
)

func TestApplySignalDeltas(t *testing.T) {
	tests := []struct {
		kind  SignalKind
		check func(p PartnerProfile) (float64, float64, string)
	}{
		{SignalClaimCorrect, func(p PartnerProfile) (float64, float64, string) { return p.Trust, 0.58, "trust" }},
		{SignalClaimIncorrect, func(p PartnerProfile) (float64, float64, string) { return p.Trust, 0.40, "trust" }},
		{SignalCommitmentDone, func(p PartnerProfile) (float64, float64, string) { return p.Reliability, 0.60, "reliability" }},
		{SignalCommitmentMissed, func(p PartnerProfile) (float64, float64, string) { return p.Reliability, 0.38, "reliability" }},
		{SignalHelped, func(p PartnerProfile) (float64, float64, string) { return p.Trust, 0.56, "trust" }},
		{SignalHurt, func(p PartnerProfile) (float64, float64, string) { return p.Trust, 0.42, "trust" }},
		{SignalFastResponse, func(p PartnerProfile) (float64, float64, string) { return p.Responsiveness, 0.58, "responsiveness" }},
		{SignalSlowResponse, func(p PartnerProfile) (float64, float64, string) { return p.Responsiveness, 0.42, "responsiveness" }},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			clock := newFakeClock()
			bb := newTestBoard(t, clock)
			svc := NewPartnerService(bb, clock, zap.NewNop())

			p, err := svc.ApplySignal(context.Background(), testProv("observer", clock), "partner",
				InteractionSignal{Kind: tt.kind, Strength: 1})
			if err != nil {
				t.Fatalf("ApplySignal: %v", err)
			}
			got, want, dim := tt.check(p)
			if math.Abs(got-want) > 1e-9 {
				t.Errorf("%s = %v, want %v", dim, got, want)
			}
		})
	}
}

func TestApplySignalStrengthScalesDelta(t *testing.T) {
	clock := newFakeClock()
	bb := newTestBoard(t, clock)
	svc := NewPartnerService(bb, clock, zap.NewNop())

	p, err := svc.ApplySignal(context.Background(), testProv("observer", clock), "partner",
		InteractionSignal{Kind: SignalClaimCorrect, Strength: 0.5})
	if err != nil {
		t.Fatalf("ApplySignal: %v", err)
	}
	if math.Abs(p.Trust-0.54) > 1e-9 {
		t.Errorf("trust = %v, want 0.54", p.Trust)
	}
}

func TestApplySignalUnknownKind(t *testing.T) {
	clock := newFakeClock()
	bb := newTestBoard(t, clock)
	svc := NewPartnerService(bb, clock, zap.NewNop())

	_, err := svc.ApplySignal(context.Background(), testProv("observer", clock), "partner",
		InteractionSignal{Kind: SignalKind("vibes"), Strength: 1})
	if err == nil {
		t.Fatal("expected error for unknown signal kind")
	}
}

func TestDomainSkillTracksSignals(t *testing.T) {
	clock := newFakeClock()
	bb := newTestBoard(t, clock)
	svc := NewPartnerService(bb, clock, zap.NewNop())
	ctx := context.Background()

	p, err := svc.ApplySignal(ctx, testProv("observer", clock), "partner",
		InteractionSignal{Kind: SignalClaimCorrect, Strength: 1, Domain: "sql"})
	if err != nil {
		t.Fatalf("ApplySignal: %v", err)
	}
	if math.Abs(p.Domains["sql"]-0.57) > 1e-9 {
		t.Errorf("sql skill = %v, want 0.57", p.Domains["sql"])
	}

	p, err = svc.ApplySignal(ctx, testProv("observer", clock), "partner",
		InteractionSignal{Kind: SignalClaimIncorrect, Strength: 1, Domain: "sql"})
	if err != nil {
		t.Fatalf("ApplySignal: %v", err)
	}
	if math.Abs(p.Domains["sql"]-0.50) > 1e-9 {
		t.Errorf("sql skill after incorrect claim = %v, want 0.50", p.Domains["sql"])
	}
}

func TestTrustForUsesProfile(t *testing.T) {
	clock := newFakeClock()
	bb := newTestBoard(t, clock)
	svc := NewPartnerService(bb, clock, zap.NewNop())

	if got := svc.TrustFor("stranger"); got != DefaultTrust {
		t.Errorf("unknown agent trust = %v, want %v", got, DefaultTrust)
	}
	if _, err := svc.ApplySignal(context.Background(), testProv("observer", clock), "partner",
		InteractionSignal{Kind: SignalClaimCorrect, Strength: 1}); err != nil {
		t.Fatalf("ApplySignal: %v", err)
	}
	if got := svc.TrustFor("partner"); math.Abs(got-0.58) > 1e-9 {
		t.Errorf("trust = %v, want 0.58", got)
	}
}

func TestHistoryCapped(t *testing.T) {
	clock := newFakeClock()
	bb := newTestBoard(t, clock)
	svc := NewPartnerService(bb, clock, zap.NewNop())
	ctx := context.Background()

	var last PartnerProfile
	var err error
	for i := 0; i < partnerHistoryCap+10; i++ {
		last, err = svc.ApplySignal(ctx, testProv("observer", clock), "partner",
			InteractionSignal{Kind: SignalFastResponse, Strength: 0.01})
		if err != nil {
			t.Fatalf("ApplySignal: %v", err)
		}
	}
	if len(last.History) != partnerHistoryCap {
		t.Errorf("history = %d entries, want %d", len(last.History), partnerHistoryCap)
	}
}

func TestSuggestPartnersRanking(t *testing.T) {
	clock := newFakeClock()
	bb := newTestBoard(t, clock)
	svc := NewPartnerService(bb, clock, zap.NewNop())
	ctx := context.Background()
	obs := testProv("observer", clock)

	// strong generalist
	for i := 0; i < 5; i++ {
		if _, err := svc.ApplySignal(ctx, obs, "generalist", InteractionSignal{Kind: SignalClaimCorrect, Strength: 1}); err != nil {
			t.Fatalf("ApplySignal: %v", err)
		}
	}
	// sql specialist with weaker trust
	for i := 0; i < 5; i++ {
		if _, err := svc.ApplySignal(ctx, obs, "specialist", InteractionSignal{Kind: SignalClaimCorrect, Strength: 1, Domain: "sql"}); err != nil {
			t.Fatalf("ApplySignal: %v", err)
		}
	}
	if _, err := svc.ApplySignal(ctx, obs, "flaky", InteractionSignal{Kind: SignalCommitmentMissed, Strength: 1}); err != nil {
		t.Fatalf("ApplySignal: %v", err)
	}

	ranked := svc.SuggestPartners("sql", 2)
	if len(ranked) != 2 {
		t.Fatalf("ranked = %d, want 2", len(ranked))
	}
	if ranked[0].AgentID != "specialist" {
		t.Errorf("top partner for sql = %s, want specialist", ranked[0].AgentID)
	}
	for _, p := range ranked {
		if p.AgentID == "flaky" {
			t.Error("flaky partner should rank off the top two")
		}
	}
}
