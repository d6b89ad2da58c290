package gossip

import (
	"sort"
	"sync"
)

// Role distinguishes simulated backends from the dispatcher on the gossip
// cluster. Only RoleNode members are routing candidates.
type Role string

const (
	RoleNode       Role = "node"
	RoleDispatcher Role = "dispatcher"
)

// Member is one process on the gossip cluster.
type Member struct {
	ID         string
	Addr       string // host:port of the member's HTTP server
	Role       Role
	FaultClass string // declared fault class, diagnostics only
}

// Registry tracks live cluster members discovered over gossip.
type Registry struct {
	mu      sync.RWMutex
	members map[string]Member
}

func NewRegistry() *Registry {
	return &Registry{
		members: make(map[string]Member),
	}
}

func (r *Registry) Upsert(m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[m.ID] = m
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, id)
}

func (r *Registry) Lookup(id string) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	return m, ok
}

// Backends returns the current simulated-backend members sorted by id.
func (r *Registry) Backends() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		if m.Role == RoleNode {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
