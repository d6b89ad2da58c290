package directory

import (
	"sort"

	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/domain"
	"github.com/anthanhphan/go-byzantine-lb/pkg/gossip"
)

// Gossip derives the known-node population from cluster membership.
type Gossip struct {
	reg *gossip.Registry
}

func NewGossip(reg *gossip.Registry) *Gossip {
	return &Gossip{reg: reg}
}

func (d *Gossip) Nodes() []domain.NodeInfo {
	backends := d.reg.Backends()
	out := make([]domain.NodeInfo, 0, len(backends))
	for _, b := range backends {
		out = append(out, domain.NodeInfo{ID: b.ID, Addr: b.Addr})
	}
	return out
}

// Static serves a fixed node list from configuration, for runs without a
// gossip cluster.
type Static struct {
	nodes []domain.NodeInfo
}

func NewStatic(nodes []domain.NodeInfo) *Static {
	sorted := make([]domain.NodeInfo, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &Static{nodes: sorted}
}

func (d *Static) Nodes() []domain.NodeInfo {
	out := make([]domain.NodeInfo, len(d.nodes))
	copy(out, d.nodes)
	return out
}
