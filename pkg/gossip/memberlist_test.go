package gossip

import (
	"encoding/json"
	"testing"
)

func TestDecodeMeta(t *testing.T) {
	meta := map[string]interface{}{
		"role":        "node",
		"server_port": 8001,
		"fault_class": "500-error",
	}
	data, _ := json.Marshal(meta)

	role, faultClass, serverPort := decodeMeta(data)

	if role != RoleNode {
		t.Errorf("expected node, got %s", role)
	}
	if faultClass != "500-error" {
		t.Errorf("expected 500-error, got %s", faultClass)
	}
	if serverPort != 8001 {
		t.Errorf("expected 8001, got %d", serverPort)
	}
}

func TestAdapter_NodeMeta(t *testing.T) {
	g := &Adapter{
		role:       RoleNode,
		faultClass: "delay",
		serverPort: 8003,
	}

	data := g.NodeMeta(0)
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}

	if m["server_port"].(float64) != 8003 {
		t.Errorf("expected 8003, got %v", m["server_port"])
	}
	if m["fault_class"].(string) != "delay" {
		t.Errorf("expected delay, got %v", m["fault_class"])
	}
}

func TestRegistryBackendsFiltersAndSorts(t *testing.T) {
	reg := NewRegistry()
	reg.Upsert(Member{ID: "node-2", Role: RoleNode, Addr: "10.0.0.2:8000"})
	reg.Upsert(Member{ID: "dispatcher", Role: RoleDispatcher, Addr: "10.0.0.9:9000"})
	reg.Upsert(Member{ID: "node-1", Role: RoleNode, Addr: "10.0.0.1:8000"})

	backends := reg.Backends()
	if len(backends) != 2 {
		t.Fatalf("expected 2 backends, got %d", len(backends))
	}
	if backends[0].ID != "node-1" || backends[1].ID != "node-2" {
		t.Fatalf("expected sorted backends, got %v", backends)
	}

	reg.Remove("node-1")
	if len(reg.Backends()) != 1 {
		t.Fatalf("expected 1 backend after remove")
	}
}
