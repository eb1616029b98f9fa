package memory

import "math/rand"

// ActivationConfig bounds spreading activation traversal (spec §9 Design
// Notes): "store edges as rows with a separate index; do not embed
// pointers. Spreading activation traversal is performed over adjacency
// lookups with bounded maxSteps, decay factor, and noise".
type ActivationConfig struct {
	MaxSteps    int
	DecayFactor float64
	Noise       float64
}

// DefaultActivationConfig matches the config defaults wired in internal/config.
var DefaultActivationConfig = ActivationConfig{MaxSteps: 3, DecayFactor: 0.6, Noise: 0.02}

// SpreadActivation performs bounded-step, decayed, noised breadth-first
// traversal over the UPDATES/EXTENDS/DERIVES adjacency built from
// relations, seeded at activation=1.0 on seedIDs. It returns an activation
// map keyed by entry id, to be multiplied by prominence for final ranking
// (spec §9). Pure function: same seeds/relations/cfg always produce the
// same map modulo the Noise term, which callers may set to 0 for
// determinism in tests.
func SpreadActivation(seedIDs []string, relations []*Relation, cfg ActivationConfig) map[string]float64 {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 1
	}
	if cfg.DecayFactor <= 0 {
		cfg.DecayFactor = 0.6
	}

	adj := make(map[string][]string)
	for _, r := range relations {
		adj[r.SourceID] = append(adj[r.SourceID], r.TargetID)
		adj[r.TargetID] = append(adj[r.TargetID], r.SourceID)
	}

	activation := make(map[string]float64, len(seedIDs))
	frontier := make(map[string]float64, len(seedIDs))
	for _, id := range seedIDs {
		activation[id] = 1.0
		frontier[id] = 1.0
	}

	for step := 0; step < cfg.MaxSteps; step++ {
		next := make(map[string]float64)
		for id, energy := range frontier {
			spread := energy * cfg.DecayFactor
			if spread <= 0 {
				continue
			}
			for _, n := range adj[id] {
				v := spread
				if cfg.Noise > 0 {
					v += (rand.Float64()*2 - 1) * cfg.Noise
					if v < 0 {
						v = 0
					}
				}
				if v > next[n] {
					next[n] = v
				}
			}
		}
		if len(next) == 0 {
			break
		}
		for id, v := range next {
			if v > activation[id] {
				activation[id] = v
			}
		}
		frontier = next
	}

	return activation
}
