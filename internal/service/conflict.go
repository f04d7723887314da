// Package service holds the engines and collaborator layers built on the
// shared store: conflict detection and salience-based resolution, belief
// fusion, and the access/routing/episodic/comms/partner/credit/culture
// layers that read and write through it.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tessera-ai/blackboard/internal/domain"
	"github.com/tessera-ai/blackboard/internal/store"
)

// DetectConflict decides whether two claims on the same key are
// incompatible, returning a reason string when they are. Claims on different
// keys never conflict, nor do claims below minConfidence — low-confidence
// claims are not worth disputing. Detection is deliberately conservative:
// only meaningfully different values are flagged.
func DetectConflict(a, b domain.Claim, numericTolerance, minConfidence float64) (string, bool) {
	if a.Key != b.Key {
		return "", false
	}
	if a.Confidence < minConfidence || b.Confidence < minConfidence {
		return "", false
	}
	if a.ValueType != b.ValueType {
		return fmt.Sprintf("type_mismatch(%s vs %s)", a.ValueType, b.ValueType), true
	}

	switch a.ValueType {
	case domain.ValueBool:
		av, aok := a.Value.(bool)
		bv, bok := b.Value.(bool)
		if !aok || !bok {
			return "bool_type_error", true
		}
		if av != bv {
			return "bool_mismatch", true
		}
		return "", false

	case domain.ValueNumber:
		av, aok := domain.AsNumber(a.Value)
		bv, bok := domain.AsNumber(b.Value)
		if !aok || !bok {
			return "number_type_error", true
		}
		diff := math.Abs(av - bv)
		if diff > numericTolerance {
			return fmt.Sprintf("number_mismatch(diff=%g)", diff), true
		}
		return "", false

	case domain.ValueText:
		av, _ := a.Value.(string)
		bv, _ := b.Value.(string)
		if !strings.EqualFold(strings.TrimSpace(av), strings.TrimSpace(bv)) {
			return "text_mismatch", true
		}
		return "", false

	case domain.ValueJSON:
		// Structured values compare by canonical string form; the most
		// conflict-prone type.
		if domain.CanonicalString(a.Value) != domain.CanonicalString(b.Value) {
			return "json_mismatch", true
		}
		return "", false
	}

	if domain.CanonicalString(a.Value) != domain.CanonicalString(b.Value) {
		return "value_mismatch", true
	}
	return "", false
}

// ResolveClaims ranks the claims for key, detects every pairwise conflict,
// and applies the policy to pick a winner. The ranking and the conflict set
// are always computed in full — conflicts are diagnostic and stay visible
// even under keep_all. Conflict ids are deterministic, so the result is
// reproducible from the same claim set and timestamp.
func ResolveClaims(key string, claims []domain.Claim, policy domain.ResolutionPolicy, trust TrustSource, numericTolerance, minConfidence float64, now time.Time) domain.ResolutionResult {
	pool := make([]domain.Claim, 0, len(claims))
	for _, c := range claims {
		if c.Key == key {
			pool = append(pool, c)
		}
	}

	ranked := RankClaims(pool, now, trust, policy)

	conflicts := []domain.Conflict{}
	for i := 0; i < len(pool); i++ {
		for j := i + 1; j < len(pool); j++ {
			reason, found := DetectConflict(pool[i], pool[j], numericTolerance, minConfidence)
			if !found {
				continue
			}
			conflicts = append(conflicts, domain.Conflict{
				ConflictID: domain.ConflictID(key, pool[i].ClaimID, pool[j].ClaimID),
				Key:        key,
				ClaimA:     pool[i].ClaimID,
				ClaimB:     pool[j].ClaimID,
				Reason:     reason,
				CreatedAt:  now,
				Metadata: map[string]any{
					"a_value": pool[i].Value,
					"b_value": pool[j].Value,
					"a_agent": pool[i].Provenance.AgentID,
					"b_agent": pool[j].Provenance.AgentID,
				},
			})
		}
	}

	var chosen *domain.Claim

	switch policy {
	case domain.PolicyKeepAll:
		// caller decides

	case domain.PolicyBestSalience, domain.PolicyTrustWeighted, domain.PolicyRecencyWeighted:
		if len(ranked) > 0 {
			c := ranked[0].Claim
			chosen = &c
		}

	case domain.PolicyConsensusMajority:
		chosen = consensusChoice(pool, ranked)
	}

	return domain.ResolutionResult{
		Key:       key,
		Policy:    policy,
		Chosen:    chosen,
		Ranked:    ranked,
		Conflicts: conflicts,
	}
}

// consensusChoice tallies claims by the stable string form of their value and
// picks the most common value; among tied winning values the highest-salience
// claim wins.
func consensusChoice(pool []domain.Claim, ranked []domain.RankedClaim) *domain.Claim {
	if len(pool) == 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, c := range pool {
		counts[domain.CanonicalString(c.Value)]++
	}
	maxVotes := 0
	for _, n := range counts {
		if n > maxVotes {
			maxVotes = n
		}
	}
	winners := make(map[string]bool)
	for v, n := range counts {
		if n == maxVotes {
			winners[v] = true
		}
	}

	for _, rc := range ranked {
		if winners[domain.CanonicalString(rc.Claim.Value)] {
			c := rc.Claim
			return &c
		}
	}
	return nil
}

// ConflictService persists claims and resolutions through the shared store
// and keeps the live claim pool per key. The engine itself is stateless
// across calls; the pool is just the claim set handed to ResolveClaims.
type ConflictService struct {
	bb     *store.Blackboard
	trust  TrustSource
	clock  domain.Clock
	logger *zap.Logger

	NumericTolerance      float64
	MinConflictConfidence float64

	mu     sync.Mutex
	claims map[string][]domain.Claim
}

func NewConflictService(bb *store.Blackboard, trust TrustSource, clock domain.Clock, logger *zap.Logger) *ConflictService {
	if clock == nil {
		clock = domain.SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{
		bb:     bb,
		trust:  trust,
		clock:  clock,
		logger: logger,
		claims: make(map[string][]domain.Claim),
	}
}

// AddClaim validates, persists, and pools a new claim. The claim is stored
// as an artifact plus a note event so the audit trail can reconstruct it.
func (s *ConflictService) AddClaim(ctx context.Context, key string, value any, valueType domain.ValueType, confidence float64, prov domain.Provenance, claimCtx map[string]any) (domain.Claim, error) {
	if err := domain.ValidateValue(valueType, value); err != nil {
		return domain.Claim{}, err
	}
	if prov.Timestamp.IsZero() {
		prov.Timestamp = s.clock.Now()
	}

	claim := domain.Claim{
		ClaimID:    domain.NewID("claim"),
		Key:        key,
		Value:      value,
		ValueType:  valueType,
		Confidence: domain.Clamp01(confidence),
		Provenance: prov,
		Context:    claimCtx,
	}

	artID, err := s.bb.PutArtifact(ctx, prov, "json", map[string]any{"claim": claim}, true)
	if err != nil {
		return domain.Claim{}, err
	}
	_, err = s.bb.AppendEvent(ctx, domain.EventNote, prov,
		fmt.Sprintf("claim_added key=%s", key),
		map[string]any{"key": key, "claim_id": claim.ClaimID, "artifact_id": artID},
		artID,
	)
	if err != nil {
		return domain.Claim{}, err
	}

	s.mu.Lock()
	s.claims[key] = append(s.claims[key], claim)
	s.mu.Unlock()

	s.logger.Debug("claim added",
		zap.String("key", key),
		zap.String("claim_id", claim.ClaimID),
		zap.String("agent_id", prov.AgentID),
		zap.Float64("confidence", claim.Confidence))
	return claim, nil
}

// ClaimsFor returns a snapshot of the live claim pool for key.
func (s *ConflictService) ClaimsFor(key string) []domain.Claim {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Claim, len(s.claims[key]))
	copy(out, s.claims[key])
	return out
}

// Keys returns every key with at least one pooled claim.
func (s *ConflictService) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.claims))
	for k := range s.claims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolve runs the full ranking + conflict pass over the pooled claims for
// key under the given policy.
func (s *ConflictService) Resolve(key string, policy domain.ResolutionPolicy) domain.ResolutionResult {
	return ResolveClaims(key, s.ClaimsFor(key), policy, s.trust,
		s.NumericTolerance, s.MinConflictConfidence, s.clock.Now())
}

// PersistResolution stores a resolution snapshot as an artifact plus a
// summary note event, and returns the artifact id. The snapshot carries the
// chosen claim id, the full ranked list with scores, and the full conflict
// list — the audit trail downstream readers rely on.
func (s *ConflictService) PersistResolution(ctx context.Context, prov domain.Provenance, result domain.ResolutionResult) (string, error) {
	var chosenID string
	if result.Chosen != nil {
		chosenID = result.Chosen.ClaimID
	}
	rankedIDs := make([]map[string]any, 0, len(result.Ranked))
	for _, rc := range result.Ranked {
		rankedIDs = append(rankedIDs, map[string]any{"score": rc.Score, "claim_id": rc.Claim.ClaimID})
	}

	payload := map[string]any{
		"resolution": map[string]any{
			"key":             result.Key,
			"policy":          string(result.Policy),
			"chosen_claim_id": chosenID,
			"ranked":          rankedIDs,
			"conflicts":       result.Conflicts,
		},
	}

	artID, err := s.bb.PutArtifact(ctx, prov, "json", payload, true)
	if err != nil {
		return "", err
	}
	_, err = s.bb.AppendEvent(ctx, domain.EventNote, prov,
		fmt.Sprintf("claims_resolved key=%s policy=%s", result.Key, result.Policy),
		map[string]any{"key": result.Key, "artifact_id": artID},
		artID,
	)
	if err != nil {
		return "", err
	}

	s.logger.Info("resolution persisted",
		zap.String("key", result.Key),
		zap.String("policy", string(result.Policy)),
		zap.String("chosen_claim_id", chosenID),
		zap.Int("conflicts", len(result.Conflicts)))
	return artID, nil
}

// RecoverClaims rebuilds the claim pool from claim artifacts reachable
// through the event log, e.g. after a durable-log replay. Returns the number
// of claims recovered. Malformed claim payloads are skipped.
func (s *ConflictService) RecoverClaims(ctx context.Context) int {
	events := s.bb.QueryEvents(ctx, 0)

	recovered := 0
	pool := make(map[string][]domain.Claim)
	seen := make(map[string]bool)

	for _, ev := range events {
		if ev.ArtifactID == "" {
			continue
		}
		art, err := s.bb.GetArtifact(ctx, ev.ArtifactID)
		if err != nil {
			continue
		}
		raw, ok := art.Payload["claim"]
		if !ok {
			continue
		}

		b, err := json.Marshal(raw)
		if err != nil {
			continue
		}
		var claim domain.Claim
		if err := json.Unmarshal(b, &claim); err != nil {
			s.logger.Warn("skipping malformed claim artifact", zap.String("artifact_id", art.ArtifactID), zap.Error(err))
			continue
		}
		if claim.ClaimID == "" || claim.Key == "" || !domain.ValidValueType(string(claim.ValueType)) {
			s.logger.Warn("skipping invalid claim artifact", zap.String("artifact_id", art.ArtifactID))
			continue
		}
		if seen[claim.ClaimID] {
			continue
		}
		seen[claim.ClaimID] = true
		pool[claim.Key] = append(pool[claim.Key], claim)
		recovered++
	}

	s.mu.Lock()
	s.claims = pool
	s.mu.Unlock()

	s.logger.Info("claim pool recovered", zap.Int("claims", recovered), zap.Int("keys", len(pool)))
	return recovered
}
