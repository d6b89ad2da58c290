package domain

import "time"

// OutcomeKind classifies one dispatch attempt.
type OutcomeKind string

const (
	OutcomeSuccess     OutcomeKind = "success"
	OutcomeError       OutcomeKind = "error"       // node answered with an error status
	OutcomeTimeout     OutcomeKind = "timeout"     // node stalled past the request deadline
	OutcomeUnreachable OutcomeKind = "unreachable" // connection failed, crashed node
)

// DispatchEvent records one routed request for observability. A failed
// outcome is not retried; it feeds back into the next refresh cycle through
// the node's telemetry instead.
type DispatchEvent struct {
	NodeID     string
	Mode       Mode
	Outcome    OutcomeKind
	StatusCode int
	Latency    time.Duration
}

// NodeInfo identifies one routable backend.
type NodeInfo struct {
	ID   string
	Addr string
}
