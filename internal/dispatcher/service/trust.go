package service

import (
	"context"
	"sync"
	"time"

	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/domain"
	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/port"
	"github.com/anthanhphan/go-byzantine-lb/pkg/resilience"
	"github.com/anthanhphan/gosdk/logger"
)

// TrustConfig tunes weight computation. The probability bands and weight
// tiers are deliberate heuristics; three coarse trust tiers keep routing
// probability interpretable under noisy classifier output.
type TrustConfig struct {
	RefreshInterval time.Duration // cadence of routing-table rebuilds
	NodeTimeout     time.Duration // per-node observe+classify budget

	BandLow  float64 // below: fully trusted
	BandHigh float64 // at or above: distrusted

	WeightTrusted    float64
	WeightSuspect    float64
	WeightDistrusted float64

	BenignLabel string // classifier label counted as non-faulty
}

func (c TrustConfig) withDefaults() TrustConfig {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 5 * time.Second
	}
	if c.NodeTimeout <= 0 {
		c.NodeTimeout = 3 * time.Second
	}
	if c.BandLow <= 0 {
		c.BandLow = 0.20
	}
	if c.BandHigh <= 0 {
		c.BandHigh = 0.60
	}
	if c.WeightTrusted <= 0 {
		c.WeightTrusted = 1.0
	}
	if c.WeightSuspect <= 0 {
		c.WeightSuspect = 0.5
	}
	if c.WeightDistrusted <= 0 {
		c.WeightDistrusted = 0.1
	}
	if c.BenignLabel == "" {
		c.BenignLabel = "benign"
	}
	return c
}

// TrustEngine periodically converts observed telemetry into a fresh
// RoutingTable. Per-node failures never abort a cycle: a node whose metrics
// or prediction cannot be obtained keeps the full default weight for that
// cycle.
type TrustEngine struct {
	cfg        TrustConfig
	metrics    port.MetricsSource
	classifier port.Classifier // nil: degraded mode, uniform weights
	directory  port.NodeDirectory
	pool       *resilience.WorkerPool
	pub        *domain.Publisher
	tel        port.Telemetry
}

func NewTrustEngine(
	cfg TrustConfig,
	metrics port.MetricsSource,
	classifier port.Classifier,
	directory port.NodeDirectory,
	pool *resilience.WorkerPool,
	pub *domain.Publisher,
	tel port.Telemetry,
) *TrustEngine {
	e := &TrustEngine{
		cfg:        cfg.withDefaults(),
		metrics:    metrics,
		classifier: classifier,
		directory:  directory,
		pool:       pool,
		pub:        pub,
		tel:        tel,
	}

	if e.classifier == nil {
		logger.Warnw("No trust classifier configured, running degraded: uniform weights, round-robin routing")
	}

	return e
}

// Run refreshes the routing table on a fixed cadence until ctx is canceled.
func (e *TrustEngine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.RefreshInterval)
	defer ticker.Stop()

	e.RefreshOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RefreshOnce(ctx)
		}
	}
}

// RefreshOnce rebuilds and publishes the routing table from fresh
// observations, one isolated evaluation per known node.
func (e *TrustEngine) RefreshOnce(ctx context.Context) *domain.RoutingTable {
	nodes := e.directory.Nodes()

	mode := domain.ModeTrustWeighted
	if e.classifier == nil {
		mode = domain.ModeRoundRobin
	}

	states := make([]domain.TrustState, len(nodes))
	var wg sync.WaitGroup
	for i, n := range nodes {
		i, n := i, n
		wg.Add(1)
		err := e.pool.Submit(ctx, func() {
			defer wg.Done()
			states[i] = e.evaluateNode(ctx, n.ID)
		})
		if err != nil {
			states[i] = e.defaultState(n.ID)
			wg.Done()
		}
	}
	wg.Wait()

	table := domain.NewRoutingTable(states, mode)
	e.pub.Publish(table)

	e.tel.RecordRefresh(mode)
	for _, s := range states {
		e.tel.SetNodeWeight(s.NodeID, s.Weight)
	}
	e.logRefresh(mode, states)

	return table
}

// evaluateNode produces one node's trust state. Every failure path returns
// the default fully-trusted state so one bad node cannot poison a cycle.
func (e *TrustEngine) evaluateNode(ctx context.Context, nodeID string) domain.TrustState {
	state := e.defaultState(nodeID)
	if e.classifier == nil {
		return state
	}

	nctx, cancel := context.WithTimeout(ctx, e.cfg.NodeTimeout)
	defer cancel()

	obs, err := e.metrics.Observe(nctx, nodeID)
	if err != nil {
		logger.Warnw("Telemetry unavailable, keeping default weight", "node", nodeID, "error", err.Error())
		return state
	}

	probs, err := e.classifier.Predict(nctx, obs.FeatureVector())
	if err != nil {
		logger.Warnw("Classification failed, keeping default weight", "node", nodeID, "error", err.Error())
		return state
	}

	pFaulty := 0.0
	for label, p := range probs {
		if label != e.cfg.BenignLabel {
			pFaulty += p
		}
	}

	state.PFaulty = pFaulty
	state.HasPrediction = true
	state.Weight = e.weightFor(pFaulty)
	return state
}

// weightFor maps fault probability to a discrete trust tier. Band lower
// bounds are inclusive: exactly 0.20 is suspect, exactly 0.60 distrusted.
func (e *TrustEngine) weightFor(pFaulty float64) float64 {
	switch {
	case pFaulty < e.cfg.BandLow:
		return e.cfg.WeightTrusted
	case pFaulty < e.cfg.BandHigh:
		return e.cfg.WeightSuspect
	default:
		return e.cfg.WeightDistrusted
	}
}

func (e *TrustEngine) defaultState(nodeID string) domain.TrustState {
	return domain.TrustState{
		NodeID:    nodeID,
		Weight:    e.cfg.WeightTrusted,
		UpdatedAt: time.Now(),
	}
}

func (e *TrustEngine) logRefresh(mode domain.Mode, states []domain.TrustState) {
	demoted := make(map[string]float64)
	for _, s := range states {
		if s.Weight != e.cfg.WeightTrusted {
			demoted[s.NodeID] = s.Weight
		}
	}
	logger.Infow("Routing table refreshed",
		"mode", string(mode),
		"nodes", len(states),
		"demoted", demoted)
}
