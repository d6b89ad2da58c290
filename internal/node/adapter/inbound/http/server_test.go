package http_handler

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/anthanhphan/go-byzantine-lb/internal/node/adapter/outbound/telemetry"
	"github.com/anthanhphan/go-byzantine-lb/internal/node/domain"
	"github.com/anthanhphan/go-byzantine-lb/internal/node/service"
	"github.com/stretchr/testify/assert"
)

func newTestServer(t *testing.T, class domain.FaultClass) *Server {
	t.Helper()
	recorder := telemetry.NewRecorder("node-1")
	engine := service.NewEngine("node-1", class, service.Config{
		WorkScale: 0.001,
	}, recorder)
	return NewServer("node-1", engine, recorder)
}

func TestProcessEndpointBenign(t *testing.T) {
	s := newTestServer(t, domain.FaultBenign)

	resp, err := s.app.Test(httptest.NewRequest("GET", "/process", nil), -1)
	assert.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var payload map[string]interface{}
	assert.NoError(t, json.Unmarshal(body, &payload))

	assert.Equal(t, "node-1", payload["node"])
	assert.Equal(t, "ok", payload["status"])
	assert.Contains(t, payload, "processed_in")
	assert.Contains(t, payload, "load_factor")
	assert.Equal(t, float64(1), payload["request_num"])
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, domain.FaultDelay)

	resp, err := s.app.Test(httptest.NewRequest("GET", "/health", nil), -1)
	assert.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var payload map[string]interface{}
	assert.NoError(t, json.Unmarshal(body, &payload))

	assert.Equal(t, "node-1", payload["node"])
	assert.Equal(t, "healthy", payload["status"])
	assert.Equal(t, "delay", payload["fault_type"])
}

func TestMetricsEndpointExposesNodeSeries(t *testing.T) {
	s := newTestServer(t, domain.FaultBenign)

	// Generate one request so the counter exists.
	_, err := s.app.Test(httptest.NewRequest("GET", "/process", nil), -1)
	assert.NoError(t, err)

	resp, err := s.app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	assert.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `http_requests_total{node_id="node-1",status="200"} 1`)
	assert.Contains(t, string(body), "request_latency_seconds_bucket")
	assert.Contains(t, string(body), "node_cpu_usage_percent")
}
