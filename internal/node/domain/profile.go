package domain

import (
	"math/rand"
	"time"

	"github.com/spaolacci/murmur3"
)

// Profile is a node's immutable baseline performance characteristics, drawn
// once at creation. Seeding by node id guarantees the same node reproduces
// the same profile across restarts.
type Profile struct {
	BaseLatency       time.Duration // intrinsic processing latency
	BaseCPU           float64       // idle-adjacent CPU load, fraction of one core
	WorkloadVariation float64       // amplitude factor for diurnal load swings
	Jitter            time.Duration // network noise magnitude
	PacketLoss        float64       // probability of a retransmission penalty
	Stability         float64       // long-run behavioral consistency
}

// Seed derives a deterministic RNG seed from a node id. The stream parameter
// separates independent generators for the same node (profile draw vs.
// request-time draws) so one does not perturb the other.
func Seed(nodeID string, stream uint32) int64 {
	return int64(murmur3.Sum64WithSeed([]byte(nodeID), stream))
}

// NewProfile draws the baseline profile for a node id.
func NewProfile(nodeID string) Profile {
	rng := rand.New(rand.NewSource(Seed(nodeID, 0)))

	return Profile{
		BaseLatency:       durationBetween(rng, 10*time.Millisecond, 50*time.Millisecond),
		BaseCPU:           between(rng, 0.20, 0.50),
		WorkloadVariation: between(rng, 0.30, 0.70),
		Jitter:            durationBetween(rng, 2*time.Millisecond, 15*time.Millisecond),
		PacketLoss:        between(rng, 0.001, 0.02),
		Stability:         between(rng, 0.70, 1.0),
	}
}

func between(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func durationBetween(rng *rand.Rand, lo, hi time.Duration) time.Duration {
	return lo + time.Duration(rng.Int63n(int64(hi-lo)))
}
