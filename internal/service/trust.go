package service

// DefaultTrust is the trust weight assumed for agents no source knows about.
const DefaultTrust = 0.5

// TrustSource supplies an external trust weight in [0, 1] per agent. The
// partner model store is the usual implementation; a plain TrustMap works for
// tests and static configuration.
type TrustSource interface {
	TrustFor(agentID string) float64
}

// TrustMap is a static TrustSource.
type TrustMap map[string]float64

func (m TrustMap) TrustFor(agentID string) float64 {
	if t, ok := m[agentID]; ok {
		return t
	}
	return DefaultTrust
}

func trustFor(src TrustSource, agentID string) float64 {
	if src == nil {
		return DefaultTrust
	}
	return src.TrustFor(agentID)
}
