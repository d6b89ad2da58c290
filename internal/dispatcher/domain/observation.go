package domain

// Observation is a time-windowed telemetry aggregate for one node, pulled
// fresh on every refresh cycle. Missing or non-finite metrics have already
// been substituted with 0 by the metrics adapter.
type Observation struct {
	AvgLatencySeconds float64
	ErrorCount        float64
	CPURate           float64
	MemoryBytes       float64
}

// FeatureVector returns the ordered features the trust classifier expects:
// latency, error count, CPU rate, memory.
func (o Observation) FeatureVector() []float64 {
	return []float64{o.AvgLatencySeconds, o.ErrorCount, o.CPURate, o.MemoryBytes}
}
