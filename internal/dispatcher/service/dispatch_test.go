package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/domain"
	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/port"
	"github.com/anthanhphan/go-byzantine-lb/pkg/resilience"
)

type fakeNodeClient struct {
	mu    sync.Mutex
	fn    func(addr string) (port.ProcessResult, error)
	addrs []string
}

func (f *fakeNodeClient) Process(ctx context.Context, addr string) (port.ProcessResult, error) {
	f.mu.Lock()
	f.addrs = append(f.addrs, addr)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(addr)
	}
	return port.ProcessResult{StatusCode: 200, Latency: 5 * time.Millisecond}, nil
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func newDispatchFixture(t *testing.T, nodes []domain.NodeInfo, client *fakeNodeClient) (*Dispatcher, *domain.Publisher, *fakeDispatcherTelemetry, func()) {
	t.Helper()
	pool := resilience.NewWorkerPool(4, 16)
	pub := domain.NewPublisher()
	tel := newFakeTelemetry()
	d := NewDispatcher(
		DispatchConfig{PickerSeed: 7},
		pub,
		&fakeDirectory{nodes: nodes},
		client,
		pool,
		tel,
	)
	return d, pub, tel, pool.Close
}

func trustTable(weights map[string]float64) *domain.RoutingTable {
	states := make([]domain.TrustState, 0, len(weights))
	for id, w := range weights {
		states = append(states, domain.TrustState{
			NodeID:        id,
			Weight:        w,
			HasPrediction: true,
			UpdatedAt:     time.Now(),
		})
	}
	return domain.NewRoutingTable(states, domain.ModeTrustWeighted)
}

func TestDispatchNoNodes(t *testing.T) {
	d, _, _, done := newDispatchFixture(t, nil, &fakeNodeClient{})
	defer done()

	if _, err := d.DispatchOnce(context.Background()); !errors.Is(err, ErrNoNodes) {
		t.Fatalf("expected ErrNoNodes, got %v", err)
	}
}

func TestDispatchRoundRobinIsUniform(t *testing.T) {
	nodes := makeNodes(15)
	client := &fakeNodeClient{}
	d, _, _, done := newDispatchFixture(t, nodes, client)
	defer done()

	// Publisher defaults to an empty round-robin table, the state before
	// any trust refresh has run.
	for i := 0; i < 1500; i++ {
		ev, err := d.DispatchOnce(context.Background())
		if err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
		if ev.Mode != domain.ModeRoundRobin {
			t.Fatalf("dispatch %d: expected round-robin mode, got %s", i, ev.Mode)
		}
	}

	stats := d.Stats()
	for _, n := range nodes {
		if got := stats.PerNode[n.ID]; got != 100 {
			t.Fatalf("%s: expected exactly 100 requests under round-robin, got %d", n.ID, got)
		}
	}
	if stats.PerMode[domain.ModeRoundRobin] != 1500 {
		t.Fatalf("expected all 1500 dispatches tagged round-robin, got %d", stats.PerMode[domain.ModeRoundRobin])
	}
}

func TestDispatchTrustWeightedDistribution(t *testing.T) {
	nodes := makeNodes(3)
	client := &fakeNodeClient{}
	d, pub, _, done := newDispatchFixture(t, nodes, client)
	defer done()

	weights := map[string]float64{"node-1": 1.0, "node-2": 0.5, "node-3": 0.1}
	pub.Publish(trustTable(weights))

	const draws = 20000
	for i := 0; i < draws; i++ {
		ev, err := d.DispatchOnce(context.Background())
		if err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
		if ev.Mode != domain.ModeTrustWeighted {
			t.Fatalf("dispatch %d: expected trust-weighted mode, got %s", i, ev.Mode)
		}
	}

	stats := d.Stats()
	total := 1.0 + 0.5 + 0.1
	for id, w := range weights {
		got := float64(stats.PerNode[id]) / draws
		want := w / total
		if diff := got - want; diff < -0.02 || diff > 0.02 {
			t.Fatalf("%s: expected share near %.3f, got %.3f", id, want, got)
		}
	}
}

func TestDispatchUnknownNodeGetsDefaultWeight(t *testing.T) {
	nodes := makeNodes(2)
	client := &fakeNodeClient{}
	d, pub, _, done := newDispatchFixture(t, nodes, client)
	defer done()

	// node-2 joined after the last refresh; it should route at full weight
	// while node-1 sits in the distrusted tier.
	pub.Publish(trustTable(map[string]float64{"node-1": 0.1}))

	const draws = 5000
	for i := 0; i < draws; i++ {
		if _, err := d.DispatchOnce(context.Background()); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}

	stats := d.Stats()
	share := float64(stats.PerNode["node-2"]) / draws
	want := 1.0 / 1.1
	if diff := share - want; diff < -0.03 || diff > 0.03 {
		t.Fatalf("expected node-2 share near %.3f, got %.3f", want, share)
	}
}

func TestDispatchAllZeroWeightsFallsBackToRoundRobin(t *testing.T) {
	nodes := makeNodes(3)
	client := &fakeNodeClient{}
	d, pub, _, done := newDispatchFixture(t, nodes, client)
	defer done()

	pub.Publish(trustTable(map[string]float64{"node-1": 0, "node-2": 0, "node-3": 0}))

	for i := 0; i < 9; i++ {
		ev, err := d.DispatchOnce(context.Background())
		if err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
		if ev.Mode != domain.ModeRoundRobin {
			t.Fatalf("dispatch %d: expected round-robin fallback, got %s", i, ev.Mode)
		}
	}

	stats := d.Stats()
	for _, n := range nodes {
		if stats.PerNode[n.ID] != 3 {
			t.Fatalf("%s: expected 3 requests, got %d", n.ID, stats.PerNode[n.ID])
		}
	}
}

func TestDispatchRecordsTelemetryAndAddress(t *testing.T) {
	nodes := makeNodes(1)
	client := &fakeNodeClient{}
	d, _, tel, done := newDispatchFixture(t, nodes, client)
	defer done()

	ev, err := d.DispatchOnce(context.Background())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if ev.NodeID != "node-1" || ev.Outcome != domain.OutcomeSuccess || ev.StatusCode != 200 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if len(client.addrs) != 1 || client.addrs[0] != "10.0.0.1:8000" {
		t.Fatalf("expected forward to node-1's address, got %v", client.addrs)
	}

	tel.mu.Lock()
	defer tel.mu.Unlock()
	if len(tel.dispatches) != 1 || tel.dispatches[0].NodeID != "node-1" {
		t.Fatalf("expected one recorded dispatch, got %v", tel.dispatches)
	}
}

func TestDispatchFailureCounting(t *testing.T) {
	nodes := makeNodes(1)
	client := &fakeNodeClient{fn: func(string) (port.ProcessResult, error) {
		return port.ProcessResult{StatusCode: 500, Latency: time.Millisecond}, nil
	}}
	d, _, _, done := newDispatchFixture(t, nodes, client)
	defer done()

	for i := 0; i < 4; i++ {
		ev, err := d.DispatchOnce(context.Background())
		if err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
		if ev.Outcome != domain.OutcomeError {
			t.Fatalf("dispatch %d: expected error outcome, got %s", i, ev.Outcome)
		}
	}

	if stats := d.Stats(); stats.Failures != 4 {
		t.Fatalf("expected 4 failures, got %d", stats.Failures)
	}
}

func TestClassifyOutcome(t *testing.T) {
	cases := []struct {
		name string
		res  port.ProcessResult
		err  error
		want domain.OutcomeKind
	}{
		{"success", port.ProcessResult{StatusCode: 200}, nil, domain.OutcomeSuccess},
		{"server error", port.ProcessResult{StatusCode: 500}, nil, domain.OutcomeError},
		{"deadline", port.ProcessResult{}, context.DeadlineExceeded, domain.OutcomeTimeout},
		{"net timeout", port.ProcessResult{}, timeoutErr{}, domain.OutcomeTimeout},
		{"refused", port.ProcessResult{}, errors.New("connection refused"), domain.OutcomeUnreachable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyOutcome(tc.res, tc.err); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
