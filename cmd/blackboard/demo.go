package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tessera-ai/blackboard/internal/config"
	"github.com/tessera-ai/blackboard/internal/domain"
	"github.com/tessera-ai/blackboard/internal/service"
	"github.com/tessera-ai/blackboard/internal/store"
)

// runDemo drives a three-agent incident triage scenario entirely in memory:
// routed observations, conflicting claims, belief fusion, an episode close,
// credit assignment, and a distilled norm.
func runDemo(ctx context.Context, logger *zap.Logger) error {
	bb, err := store.New(ctx, nil, domain.SystemClock(), logger)
	if err != nil {
		return err
	}
	clock := domain.SystemClock()

	policy := service.NewAccessPolicy()
	secure := service.NewSecureStore(bb, policy, config.RateLimitRPS(), config.RateLimitBurst(), logger)

	partners := service.NewPartnerService(bb, clock, logger)
	conflicts := service.NewConflictService(bb, partners, clock, logger)
	beliefs := service.NewBeliefService(bb, partners, clock, logger)
	router := service.NewRouter(bb, secure, conflicts, nil, logger)
	comms := service.NewCommsService(bb, clock, logger)
	episodes := service.NewEpisodeService(bb, clock, logger)
	credit := service.NewCreditService(bb, partners, clock, logger)
	culture := service.NewCultureService(bb, clock, logger)

	planner := prov("agent.planner", "planner", clock)
	executor := prov("agent.executor", "executor", clock)
	critic := prov("agent.critic", "critic", clock)

	// routed observations under one task
	_, err = router.PostRoutedEvent(ctx, domain.EventObservation, planner,
		"error rate on checkout spiked to 4%",
		map[string]any{"task_id": "triage-1"},
		service.ChannelObservation,
		[]service.Role{service.RolePlanner, service.RoleExecutor, service.RoleCritic},
	)
	if err != nil {
		return err
	}
	_, err = router.PostRoutedEvent(ctx, domain.EventDecision, planner,
		"roll back the last deploy, then bisect",
		map[string]any{"task_id": "triage-1"},
		service.ChannelPlan,
		[]service.Role{service.RoleExecutor},
	)
	if err != nil {
		return err
	}

	// conflicting numeric claims about the same key
	if _, err := router.AddClaim(ctx, "checkout.error_rate", 4.0, domain.ValueNumber, 0.9, planner, service.ChannelClaim, nil); err != nil {
		return err
	}
	if _, err := router.AddClaim(ctx, "checkout.error_rate", 6.5, domain.ValueNumber, 0.6, executor, service.ChannelClaim, nil); err != nil {
		return err
	}
	res := conflicts.Resolve("checkout.error_rate", domain.PolicyBestSalience)
	if res.Chosen != nil {
		fmt.Printf("resolved checkout.error_rate = %v via %d claims, %d conflicts\n",
			res.Chosen.Value, len(res.Ranked), len(res.Conflicts))
	}
	if _, err := conflicts.PersistResolution(ctx, planner, res); err != nil {
		return err
	}

	// belief fusion across two observers
	if _, err := beliefs.Observe(ctx, "deploy.suspect", "v2025.08.29-3", 0.7, executor, nil); err != nil {
		return err
	}
	if _, err := beliefs.Observe(ctx, "deploy.suspect", "v2025.08.29-3", 0.9, critic, nil); err != nil {
		return err
	}
	if b, ok := beliefs.Get("deploy.suspect"); ok {
		fmt.Printf("belief deploy.suspect = %v (confidence %.2f, %d evidence)\n",
			b.Value, b.Confidence, len(b.Evidence))
	}

	// a question, its answer, and a kept commitment
	thr := comms.NewThread("triage-1 coordination")
	q, err := comms.Ask(ctx, thr, executor, "is the rollback safe to run during peak traffic?")
	if err != nil {
		return err
	}
	if _, err := comms.Answer(ctx, q.QuestionID, critic, "yes, rollback is migration-free", 0.85); err != nil {
		return err
	}
	cmt, err := comms.Commit(ctx, thr, executor, planner.AgentID, "execute rollback and report", clock.Now().Add(30*time.Minute))
	if err != nil {
		return err
	}
	if _, err := comms.ResolveCommitment(ctx, cmt.CommitmentID, executor, service.CommitmentDone); err != nil {
		return err
	}
	if _, err := partners.ApplySignal(ctx, planner, executor.AgentID, service.InteractionSignal{
		Kind: service.SignalCommitmentDone, Strength: 1,
	}); err != nil {
		return err
	}

	// close the task with an outcome and feed the learning loop
	_, err = bb.AppendEvent(ctx, domain.EventOutcome, planner,
		"error rate recovered after rollback",
		map[string]any{"task_id": "triage-1", "score": 0.85}, "")
	if err != nil {
		return err
	}
	ep, err := episodes.Build(ctx, "triage-1", service.EpisodeFilter{})
	if err != nil {
		return err
	}
	if _, err := episodes.Persist(ctx, planner, ep); err != nil {
		return err
	}
	contribs := credit.Assign(ep)
	if _, err := credit.Record(ctx, planner, ep, contribs); err != nil {
		return err
	}
	norms, err := culture.IngestEpisode(ctx, planner, ep, contribs)
	if err != nil {
		return err
	}
	for _, n := range norms {
		fmt.Printf("norm: %s (confidence %.2f)\n", n.Statement, n.Confidence)
	}

	// what the planner sees when it comes back
	bundle := router.Retrieve(ctx, planner, service.RolePlanner, service.RetrieveOpts{Limit: 10})
	fmt.Printf("planner bundle: %d items, board holds %d events\n", len(bundle), bb.EventCount())
	return nil
}

func prov(agentID, role string, clock domain.Clock) domain.Provenance {
	return domain.Provenance{
		AgentID:    agentID,
		Role:       role,
		SessionID:  "demo",
		Timestamp:  clock.Now().UTC(),
		Confidence: 1,
		Source:     "demo",
	}
}
