package domain

import (
	"sort"
	"sync/atomic"
	"time"
)

// Mode tags how a routing decision was made.
type Mode string

const (
	ModeTrustWeighted Mode = "trust-weighted"
	ModeRoundRobin    Mode = "round-robin"
)

// TrustState is the per-node output of one refresh cycle.
type TrustState struct {
	NodeID        string
	PFaulty       float64
	HasPrediction bool
	Weight        float64
	UpdatedAt     time.Time
}

// RoutingTable is an immutable snapshot mapping node id to routing weight.
// Refresh cycles build a new table and publish it whole; nothing mutates a
// table after construction.
type RoutingTable struct {
	states  map[string]TrustState
	mode    Mode
	builtAt time.Time
}

func NewRoutingTable(states []TrustState, mode Mode) *RoutingTable {
	m := make(map[string]TrustState, len(states))
	for _, s := range states {
		m[s.NodeID] = s
	}
	return &RoutingTable{
		states:  m,
		mode:    mode,
		builtAt: time.Now(),
	}
}

func (t *RoutingTable) Mode() Mode         { return t.mode }
func (t *RoutingTable) BuiltAt() time.Time { return t.builtAt }
func (t *RoutingTable) Len() int           { return len(t.states) }

func (t *RoutingTable) State(nodeID string) (TrustState, bool) {
	s, ok := t.states[nodeID]
	return s, ok
}

// Weights returns a fresh copy of the id -> weight mapping.
func (t *RoutingTable) Weights() map[string]float64 {
	out := make(map[string]float64, len(t.states))
	for id, s := range t.states {
		out[id] = s.Weight
	}
	return out
}

// NodeIDs returns all known node ids, sorted.
func (t *RoutingTable) NodeIDs() []string {
	out := make([]string, 0, len(t.states))
	for id := range t.states {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Publisher hands RoutingTable snapshots from the refresh loop to the
// dispatch loop. Publication is a single atomic pointer swap: readers never
// observe a partially updated table and writers never block readers.
type Publisher struct {
	current atomic.Pointer[RoutingTable]
}

func NewPublisher() *Publisher {
	p := &Publisher{}
	p.current.Store(NewRoutingTable(nil, ModeRoundRobin))
	return p
}

func (p *Publisher) Publish(t *RoutingTable) {
	p.current.Store(t)
}

func (p *Publisher) Snapshot() *RoutingTable {
	return p.current.Load()
}
