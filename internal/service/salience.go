package service

import (
	"math"
	"sort"
	"time"

	"github.com/tessera-ai/blackboard/internal/domain"
)

// DefaultSalienceHalfLife is the recency half-life: a claim's recency term
// falls to 0.5 two hours after it was made.
const DefaultSalienceHalfLife = 2 * time.Hour

// SalienceWeights is the convex combination used to score a claim.
type SalienceWeights struct {
	Confidence float64
	Recency    float64
	Trust      float64
	HalfLife   time.Duration
}

// DefaultWeights emphasizes the writer's own confidence.
func DefaultWeights() SalienceWeights {
	return SalienceWeights{Confidence: 0.55, Recency: 0.25, Trust: 0.20, HalfLife: DefaultSalienceHalfLife}
}

// TrustWeights makes the agent's external trust score dominate.
func TrustWeights() SalienceWeights {
	return SalienceWeights{Confidence: 0.35, Recency: 0.15, Trust: 0.50, HalfLife: DefaultSalienceHalfLife}
}

// RecencyWeights makes freshness dominate.
func RecencyWeights() SalienceWeights {
	return SalienceWeights{Confidence: 0.35, Recency: 0.50, Trust: 0.15, HalfLife: DefaultSalienceHalfLife}
}

// WeightsForPolicy maps a resolution policy to its weight preset. Policies
// without a dedicated preset rank with the default weights.
func WeightsForPolicy(policy domain.ResolutionPolicy) SalienceWeights {
	switch policy {
	case domain.PolicyTrustWeighted:
		return TrustWeights()
	case domain.PolicyRecencyWeighted:
		return RecencyWeights()
	default:
		return DefaultWeights()
	}
}

// SalienceScore blends confidence, recency, and trust into a [0, 1] score.
// Recency decays as 0.5^(age/half-life) from the claim's provenance
// timestamp.
func SalienceScore(claim domain.Claim, now time.Time, trust TrustSource, weights SalienceWeights) float64 {
	c := domain.Clamp01(claim.Confidence)

	r := 1.0
	if weights.HalfLife > 0 {
		age := now.Sub(claim.Provenance.Timestamp)
		if age < 0 {
			age = 0
		}
		r = math.Pow(0.5, float64(age)/float64(weights.HalfLife))
	}

	t := domain.Clamp01(trustFor(trust, claim.Provenance.AgentID))

	return domain.Clamp01(weights.Confidence*c + weights.Recency*r + weights.Trust*t)
}

// RankClaims scores every claim under the policy's weight preset and sorts
// descending. The sort is stable with respect to input order on ties.
func RankClaims(claims []domain.Claim, now time.Time, trust TrustSource, policy domain.ResolutionPolicy) []domain.RankedClaim {
	weights := WeightsForPolicy(policy)

	ranked := make([]domain.RankedClaim, 0, len(claims))
	for _, c := range claims {
		ranked = append(ranked, domain.RankedClaim{
			Score: SalienceScore(c, now, trust, weights),
			Claim: c,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}
