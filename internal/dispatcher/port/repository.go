package port

import (
	"context"
	"time"

	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/domain"
)

// MetricsSource answers time-windowed telemetry queries for one node. An
// implementation substitutes 0 for missing or non-finite values; it only
// returns an error when the store itself cannot be reached.
type MetricsSource interface {
	// Observe fetches the latest windowed aggregates for a node.
	Observe(ctx context.Context, nodeID string) (domain.Observation, error)
}

// Classifier predicts fault-class probabilities from an ordered feature
// vector. The returned map is keyed by class label and sums to 1.
type Classifier interface {
	Predict(ctx context.Context, features []float64) (map[string]float64, error)
}

// ProcessResult is a node's answer to one forwarded request.
type ProcessResult struct {
	StatusCode int
	Latency    time.Duration
}

// NodeClient forwards a client request to a backend node.
type NodeClient interface {
	Process(ctx context.Context, addr string) (ProcessResult, error)
}

// NodeDirectory supplies the current known-node population.
type NodeDirectory interface {
	Nodes() []domain.NodeInfo
}

// Telemetry receives dispatcher-side observability events.
type Telemetry interface {
	RecordDispatch(ev domain.DispatchEvent)
	RecordRefresh(mode domain.Mode)
	SetNodeWeight(nodeID string, weight float64)
}
