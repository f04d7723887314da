package store

import (
	"math"
	"sort"

	"github.com/tessera-ai/blackboard/internal/domain"
)

// SearchOpts narrows an embedding search.
type SearchOpts struct {
	TopK     int
	MinScore float64
	// RequireTags keeps only entries whose provenance tags are a superset of
	// this set.
	RequireTags []string
	// AgentIDs keeps only entries written by one of these agents.
	AgentIDs []string
}

type scoredEntry struct {
	score      float64
	artifactID string
}

// vectorIndex is a brute-force cosine index over embedding artifacts. The
// store holds thousands of vectors, not billions; an O(n) scan keeps scoring
// exact and auditable. The owning Blackboard's mutex guards all access.
type vectorIndex struct {
	entries []domain.VectorEntry
}

func newVectorIndex() *vectorIndex {
	return &vectorIndex{}
}

func (ix *vectorIndex) add(entry domain.VectorEntry) {
	ix.entries = append(ix.entries, entry)
}

func (ix *vectorIndex) len() int {
	return len(ix.entries)
}

// search scores every entry and returns the top-k by descending score, ties
// broken by insertion order.
func (ix *vectorIndex) search(query []float32, opts SearchOpts) []scoredEntry {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}

	scored := make([]scoredEntry, 0, len(ix.entries))
	for _, entry := range ix.entries {
		if len(opts.AgentIDs) > 0 && !contains(opts.AgentIDs, entry.Provenance.AgentID) {
			continue
		}
		if len(opts.RequireTags) > 0 && !tagSuperset(entry.Provenance.Tags, opts.RequireTags) {
			continue
		}
		s := cosine(query, entry.Embedding)
		if s < opts.MinScore {
			continue
		}
		scored = append(scored, scoredEntry{score: s, artifactID: entry.ArtifactID})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	if len(scored) > opts.TopK {
		scored = scored[:opts.TopK]
	}
	return scored
}

// cosine returns dot(a,b)/(|a||b|), or 0 on zero-length or mismatched
// vectors.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na <= 0 || nb <= 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func tagSuperset(have, want []string) bool {
	for _, w := range want {
		if !contains(have, w) {
			return false
		}
	}
	return true
}
