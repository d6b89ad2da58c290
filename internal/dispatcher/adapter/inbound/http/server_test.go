package http_handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/adapter/outbound/telemetry"
	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/domain"
	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/port"
	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/service"
	"github.com/anthanhphan/go-byzantine-lb/pkg/resilience"
	"github.com/stretchr/testify/assert"
)

type stubDirectory struct {
	nodes []domain.NodeInfo
}

func (s *stubDirectory) Nodes() []domain.NodeInfo { return s.nodes }

type stubClient struct{}

func (stubClient) Process(ctx context.Context, addr string) (port.ProcessResult, error) {
	return port.ProcessResult{StatusCode: 200, Latency: time.Millisecond}, nil
}

func newTestServer(t *testing.T) (*Server, *domain.Publisher, *service.Dispatcher) {
	t.Helper()
	pool := resilience.NewWorkerPool(2, 8)
	t.Cleanup(pool.Close)

	pub := domain.NewPublisher()
	recorder := telemetry.NewRecorder()
	dispatcher := service.NewDispatcher(
		service.DispatchConfig{PickerSeed: 11},
		pub,
		&stubDirectory{nodes: []domain.NodeInfo{{ID: "node-1", Addr: "127.0.0.1:8001"}}},
		stubClient{},
		pool,
		recorder,
	)
	return NewServer(pub, dispatcher, recorder), pub, dispatcher
}

func TestStatusEndpoint(t *testing.T) {
	s, pub, dispatcher := newTestServer(t)

	pub.Publish(domain.NewRoutingTable([]domain.TrustState{
		{NodeID: "node-1", PFaulty: 0.45, HasPrediction: true, Weight: 0.5, UpdatedAt: time.Now()},
	}, domain.ModeTrustWeighted))

	_, err := dispatcher.DispatchOnce(context.Background())
	assert.NoError(t, err)

	resp, err := s.app.Test(httptest.NewRequest("GET", "/status", nil), -1)
	assert.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var payload map[string]interface{}
	assert.NoError(t, json.Unmarshal(body, &payload))

	assert.Equal(t, "trust-weighted", payload["mode"])
	assert.Contains(t, payload, "table_built_at")

	nodes, ok := payload["nodes"].([]interface{})
	assert.True(t, ok)
	assert.Len(t, nodes, 1)
	entry := nodes[0].(map[string]interface{})
	assert.Equal(t, "node-1", entry["node"])
	assert.Equal(t, 0.5, entry["weight"])
	assert.Equal(t, float64(1), entry["requests"])

	byMode, ok := payload["requests_by_mode"].(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, float64(1), byMode["trust-weighted"])
}

func TestStatusEndpointBeforeFirstRefresh(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp, err := s.app.Test(httptest.NewRequest("GET", "/status", nil), -1)
	assert.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var payload map[string]interface{}
	assert.NoError(t, json.Unmarshal(body, &payload))

	assert.Equal(t, "round-robin", payload["mode"])
	assert.Empty(t, payload["nodes"])
}

func TestMetricsEndpointExposesDispatchSeries(t *testing.T) {
	s, _, dispatcher := newTestServer(t)

	_, err := dispatcher.DispatchOnce(context.Background())
	assert.NoError(t, err)

	resp, err := s.app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	assert.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `dispatch_requests_total{mode="round-robin",node_id="node-1",outcome="success"} 1`)
	assert.Contains(t, string(body), "dispatch_latency_seconds_bucket")
}
