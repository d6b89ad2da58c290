package balance

import (
	"math/rand"
	"sort"
	"sync"
)

// WeightedPicker selects a node id with probability proportional to its
// weight. Iteration order over the weight map is fixed (sorted by id) so a
// seeded picker produces a reproducible draw sequence.
type WeightedPicker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewWeightedPicker creates a picker with its own seeded generator.
func NewWeightedPicker(seed int64) *WeightedPicker {
	return &WeightedPicker{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Pick draws one id from the weight map. It returns false when the map is
// empty or the total weight is not positive; callers are expected to fall
// back to round-robin in that case.
func (p *WeightedPicker) Pick(weights map[string]float64) (string, bool) {
	if len(weights) == 0 {
		return "", false
	}

	ids := make([]string, 0, len(weights))
	total := 0.0
	for id, w := range weights {
		if w < 0 {
			continue
		}
		ids = append(ids, id)
		total += w
	}
	if total <= 0 {
		return "", false
	}
	sort.Strings(ids)

	p.mu.Lock()
	target := p.rng.Float64() * total
	p.mu.Unlock()

	cumulative := 0.0
	for _, id := range ids {
		cumulative += weights[id]
		if target < cumulative {
			return id, true
		}
	}
	// Floating point accumulation can land target on the upper edge.
	return ids[len(ids)-1], true
}

// RoundRobin cycles through node ids in sorted order. The cursor survives
// membership changes: it indexes into the sorted id list modulo its length,
// so adding or removing nodes only shifts, never stalls, the rotation.
type RoundRobin struct {
	mu   sync.Mutex
	next uint64
}

// NewRoundRobin creates a round-robin selector starting at the first id.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Next returns the next id in rotation. It returns false only for an empty
// id list.
func (r *RoundRobin) Next(ids []string) (string, bool) {
	if len(ids) == 0 {
		return "", false
	}

	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	r.mu.Lock()
	idx := r.next % uint64(len(sorted))
	r.next++
	r.mu.Unlock()

	return sorted[idx], true
}
