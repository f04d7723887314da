package domain

import "time"

// KindEmbedding is the one artifact kind the store interprets: payloads
// carrying an "embedding" vector are also inserted into the similarity index.
const KindEmbedding = "embedding"

// Artifact is an immutable structured payload, content-addressed by id.
// The payload is opaque to the store except for the embedding convention.
type Artifact struct {
	ArtifactID string         `json:"artifact_id"`
	Provenance Provenance     `json:"provenance"`
	Kind       string         `json:"kind"`
	Payload    map[string]any `json:"payload"`
	CreatedAt  time.Time      `json:"created_at"`
}

// VectorEntry is a derived index entry. One exists iff a corresponding
// embedding artifact exists; clients never create these directly.
type VectorEntry struct {
	ArtifactID string         `json:"artifact_id"`
	Provenance Provenance     `json:"provenance"`
	Embedding  []float32      `json:"embedding"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// EmbeddingFromPayload extracts the vector from an embedding artifact
// payload. Payloads that round-tripped through JSON carry []any of float64;
// live payloads carry []float32 or []float64 directly.
func EmbeddingFromPayload(payload map[string]any) ([]float32, bool) {
	raw, ok := payload["embedding"]
	if !ok {
		return nil, false
	}
	switch v := raw.(type) {
	case []float32:
		return v, len(v) > 0
	case []float64:
		out := make([]float32, len(v))
		for i, x := range v {
			out[i] = float32(x)
		}
		return out, len(out) > 0
	case []any:
		out := make([]float32, 0, len(v))
		for _, x := range v {
			f, ok := AsNumber(x)
			if !ok {
				return nil, false
			}
			out = append(out, float32(f))
		}
		return out, len(out) > 0
	}
	return nil, false
}

// PayloadMetadata returns the optional metadata block of an embedding payload.
func PayloadMetadata(payload map[string]any) map[string]any {
	if m, ok := payload["metadata"].(map[string]any); ok {
		return m
	}
	return nil
}
