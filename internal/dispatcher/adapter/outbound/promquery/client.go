package promquery

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/domain"
	"github.com/anthanhphan/go-byzantine-lb/pkg/resilience"
	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

type Config struct {
	Address string        // Prometheus base URL
	Window  time.Duration // aggregation window per refresh cycle
	Timeout time.Duration // per logical query
}

// Client implements port.MetricsSource against a Prometheus server. One
// logical query per metric per node per refresh cycle; empty or non-finite
// results become 0 so partial telemetry never fails weight computation. The
// circuit breaker makes an unreachable store fail fast instead of costing a
// timeout per node.
type Client struct {
	api     promv1.API
	cfg     Config
	breaker *resilience.CircuitBreaker
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}

	apiClient, err := api.NewClient(api.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}

	return &Client{
		api: promv1.NewAPI(apiClient),
		cfg: cfg,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "prometheus",
			FailureThreshold: 5,
			OpenTimeout:      15 * time.Second,
		}),
	}, nil
}

// Observe fetches the four per-node aggregates.
func (c *Client) Observe(ctx context.Context, nodeID string) (domain.Observation, error) {
	window := fmt.Sprintf("%.0fs", c.cfg.Window.Seconds())

	queries := []struct {
		name  string
		query string
		dest  *float64
	}{
		{"avg_latency", fmt.Sprintf(
			`sum(rate(request_latency_seconds_sum{node_id=%q}[%s])) / sum(rate(request_latency_seconds_count{node_id=%q}[%s]))`,
			nodeID, window, nodeID, window), nil},
		{"error_count", fmt.Sprintf(
			`sum(increase(http_requests_total{node_id=%q,status="500"}[%s]))`,
			nodeID, window), nil},
		{"cpu_rate", fmt.Sprintf(
			`avg_over_time(node_cpu_usage_percent{node_id=%q}[%s]) / 100`,
			nodeID, window), nil},
		{"memory_bytes", fmt.Sprintf(
			`node_memory_bytes{node_id=%q}`,
			nodeID), nil},
	}

	var obs domain.Observation
	queries[0].dest = &obs.AvgLatencySeconds
	queries[1].dest = &obs.ErrorCount
	queries[2].dest = &obs.CPURate
	queries[3].dest = &obs.MemoryBytes

	for _, q := range queries {
		v, err := c.query(ctx, q.query)
		if err != nil {
			return domain.Observation{}, fmt.Errorf("query %s for %s: %w", q.name, nodeID, err)
		}
		*q.dest = v
	}

	return obs, nil
}

func (c *Client) query(ctx context.Context, q string) (float64, error) {
	var result model.Value

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		qctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		value, _, err := c.api.Query(qctx, q, time.Now())
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return 0, err
	}

	return safeValue(result), nil
}

// safeValue extracts a single numeric sample, substituting 0 for anything
// missing or non-finite.
func safeValue(v model.Value) float64 {
	var raw float64

	switch val := v.(type) {
	case model.Vector:
		if len(val) == 0 {
			return 0
		}
		raw = float64(val[0].Value)
	case *model.Scalar:
		if val == nil {
			return 0
		}
		raw = float64(val.Value)
	default:
		return 0
	}

	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0
	}
	return raw
}
