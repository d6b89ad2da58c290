package gossip

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/hashicorp/memberlist"
)

// Adapter wires a process into the simulation cluster via memberlist. Every
// join/leave event is reflected into the shared Registry, which is how the
// dispatcher learns its known-node set without static configuration.
type Adapter struct {
	list *memberlist.Memberlist
	conf *memberlist.Config
	reg  *Registry

	memberID   string
	role       Role
	faultClass string
	bindAddr   string
	bindPort   int
	serverPort int
}

// Ensure Adapter implements the memberlist delegate interfaces.
var (
	_ memberlist.Delegate      = (*Adapter)(nil)
	_ memberlist.EventDelegate = (*Adapter)(nil)
)

// NewAdapter creates a membership adapter and registers the local member.
func NewAdapter(memberID string, role Role, faultClass string, bindAddr string, bindPort int, serverPort int, reg *Registry) (*Adapter, error) {
	config := memberlist.DefaultLANConfig()
	config.Name = memberID
	config.BindAddr = bindAddr
	config.BindPort = bindPort
	config.AdvertisePort = bindPort

	// memberlist's own log chatter drowns the structured logs.
	config.LogOutput = io.Discard

	adapter := &Adapter{
		conf:       config,
		reg:        reg,
		memberID:   memberID,
		role:       role,
		faultClass: faultClass,
		bindAddr:   bindAddr,
		bindPort:   bindPort,
		serverPort: serverPort,
	}

	config.Events = adapter
	config.Delegate = adapter

	list, err := memberlist.Create(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	adapter.list = list

	reg.Upsert(adapter.LocalMember())

	return adapter, nil
}

// Join joins the cluster using seed nodes.
func (g *Adapter) Join(seeds []string) error {
	if len(seeds) > 0 {
		_, err := g.list.Join(seeds)
		if err != nil {
			return fmt.Errorf("failed to join cluster: %w", err)
		}
	}
	return nil
}

// Leave gracefully leaves the cluster and shuts the transport down.
func (g *Adapter) Leave() error {
	if err := g.list.Leave(time.Second * 5); err != nil {
		return err
	}
	return g.list.Shutdown()
}

// LocalMember returns the local member descriptor.
func (g *Adapter) LocalMember() Member {
	return Member{
		ID:         g.memberID,
		Addr:       net.JoinHostPort(g.serverHost(), strconv.Itoa(g.serverPort)),
		Role:       g.role,
		FaultClass: g.faultClass,
	}
}

// NodeMeta returns the local member metadata carried on the gossip wire.
func (g *Adapter) NodeMeta(limit int) []byte {
	data, err := json.Marshal(map[string]interface{}{
		"role":        string(g.role),
		"server_port": g.serverPort,
		"fault_class": g.faultClass,
	})
	if err != nil {
		logger.Warnw("failed to marshal gossip member meta", "error", err.Error())
		return nil
	}
	return data
}

// NotifyMsg, GetBroadcasts, LocalState, MergeRemoteState are not used here but required by Delegate
func (g *Adapter) NotifyMsg([]byte)                           {}
func (g *Adapter) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (g *Adapter) LocalState(join bool) []byte                { return nil }
func (g *Adapter) MergeRemoteState(buf []byte, join bool)     {}

// Members returns the list of current members.
func (g *Adapter) Members() []Member {
	members := g.list.Members()
	out := make([]Member, 0, len(members))
	for _, m := range members {
		out = append(out, memberFromNode(m))
	}
	return out
}

// NotifyJoin is invoked when a member joins.
func (g *Adapter) NotifyJoin(node *memberlist.Node) {
	m := memberFromNode(node)
	logger.Infow("Member joined", "id", m.ID, "role", m.Role, "fault_class", m.FaultClass, "addr", m.Addr)
	g.reg.Upsert(m)
}

// NotifyLeave is invoked when a member leaves or is declared dead.
func (g *Adapter) NotifyLeave(node *memberlist.Node) {
	logger.Infow("Member left", "id", node.Name)
	g.reg.Remove(node.Name)
}

// NotifyUpdate is invoked when a member's metadata changes.
func (g *Adapter) NotifyUpdate(node *memberlist.Node) {
	g.reg.Upsert(memberFromNode(node))
}

func memberFromNode(node *memberlist.Node) Member {
	role, faultClass, serverPort := decodeMeta(node.Meta)

	addr := node.Addr.String()
	if serverPort > 0 {
		addr = net.JoinHostPort(addr, strconv.Itoa(serverPort))
	} else {
		addr = net.JoinHostPort(addr, strconv.Itoa(int(node.Port)))
	}

	return Member{
		ID:         node.Name,
		Addr:       addr,
		Role:       role,
		FaultClass: faultClass,
	}
}

func decodeMeta(meta []byte) (Role, string, int) {
	if len(meta) == 0 {
		return "", "", 0
	}
	type memberMeta struct {
		Role       string `json:"role"`
		ServerPort int    `json:"server_port"`
		FaultClass string `json:"fault_class"`
	}
	var m memberMeta
	if err := json.Unmarshal(meta, &m); err != nil {
		logger.Warnw("failed to decode gossip member meta", "error", err.Error())
		return "", "", 0
	}
	return Role(m.Role), m.FaultClass, m.ServerPort
}

func (g *Adapter) serverHost() string {
	if g.list != nil {
		if local := g.list.LocalNode(); local != nil {
			return local.Addr.String()
		}
	}
	if g.bindAddr != "" && g.bindAddr != "0.0.0.0" {
		return g.bindAddr
	}
	return "127.0.0.1"
}
