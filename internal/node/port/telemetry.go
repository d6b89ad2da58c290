package port

import "time"

// Telemetry receives the observable signals a node emits while handling
// requests. The fault engine stays unaware of the exposition format; the
// Prometheus adapter implements this.
type Telemetry interface {
	// ObserveRequest records one handled request with its true wall-clock
	// duration. Status is the outcome label ("200", "500", "error").
	ObserveRequest(status string, latency time.Duration)

	// SetCPUPercent publishes the simulated CPU gauge, 0-100.
	SetCPUPercent(v float64)

	// SetMemoryBytes publishes the simulated resident memory gauge.
	SetMemoryBytes(v float64)
}
