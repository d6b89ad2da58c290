package service

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/domain"
	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/port"
	"github.com/anthanhphan/go-byzantine-lb/pkg/balance"
	"github.com/anthanhphan/go-byzantine-lb/pkg/resilience"
	"github.com/anthanhphan/gosdk/logger"
)

// ErrNoNodes is returned when the known-node population is empty.
var ErrNoNodes = errors.New("no known nodes")

type DispatchConfig struct {
	Interval       time.Duration // cadence of generated client requests
	RequestTimeout time.Duration // per forwarded request
	PickerSeed     int64         // 0 means time-derived
}

func (c DispatchConfig) withDefaults() DispatchConfig {
	if c.Interval <= 0 {
		c.Interval = 500 * time.Millisecond
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Second
	}
	if c.PickerSeed == 0 {
		c.PickerSeed = time.Now().UnixNano()
	}
	return c
}

// Dispatcher selects a node per request using the current routing-table
// snapshot and forwards the request. A failed outcome is recorded, never
// retried on the same node; trust re-estimation is the recovery path.
type Dispatcher struct {
	cfg       DispatchConfig
	pub       *domain.Publisher
	directory port.NodeDirectory
	client    port.NodeClient
	tel       port.Telemetry
	pool      *resilience.WorkerPool

	picker *balance.WeightedPicker
	rr     *balance.RoundRobin

	mu       sync.Mutex
	counts   map[string]uint64
	byMode   map[domain.Mode]uint64
	failures uint64
}

func NewDispatcher(
	cfg DispatchConfig,
	pub *domain.Publisher,
	directory port.NodeDirectory,
	client port.NodeClient,
	pool *resilience.WorkerPool,
	tel port.Telemetry,
) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		cfg:       cfg,
		pub:       pub,
		directory: directory,
		client:    client,
		tel:       tel,
		pool:      pool,
		picker:    balance.NewWeightedPicker(cfg.PickerSeed),
		rr:        balance.NewRoundRobin(),
		counts:    make(map[string]uint64),
		byMode:    make(map[domain.Mode]uint64),
	}
}

// Run generates one dispatch per tick until ctx is canceled. Each dispatch
// runs on the worker pool so a stalled node cannot block the cadence.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := d.pool.Submit(ctx, func() {
				if _, err := d.DispatchOnce(ctx); err != nil && !errors.Is(err, ErrNoNodes) {
					logger.Warnw("Dispatch failed", "error", err.Error())
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warnw("Dispatch submission failed", "error", err.Error())
			}
		}
	}
}

// DispatchOnce picks a node and forwards one request.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (domain.DispatchEvent, error) {
	nodes := d.directory.Nodes()
	if len(nodes) == 0 {
		return domain.DispatchEvent{}, ErrNoNodes
	}

	nodeID, mode := d.selectNode(nodes)

	addr := ""
	for _, n := range nodes {
		if n.ID == nodeID {
			addr = n.Addr
			break
		}
	}

	cctx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	res, err := d.client.Process(cctx, addr)

	ev := domain.DispatchEvent{
		NodeID:     nodeID,
		Mode:       mode,
		StatusCode: res.StatusCode,
		Latency:    res.Latency,
		Outcome:    classifyOutcome(res, err),
	}

	d.record(ev)

	logger.Infow("Routed request",
		"node", ev.NodeID,
		"mode", string(ev.Mode),
		"outcome", string(ev.Outcome),
		"status", ev.StatusCode,
		"latency", ev.Latency.String())

	return ev, nil
}

// selectNode draws from the current snapshot. Nodes the table has not seen
// yet get the default full weight; an unusable table (empty, all-zero) falls
// back to uniform round-robin so routing never silently stops.
func (d *Dispatcher) selectNode(nodes []domain.NodeInfo) (string, domain.Mode) {
	table := d.pub.Snapshot()

	if table.Mode() == domain.ModeTrustWeighted {
		weights := make(map[string]float64, len(nodes))
		for _, n := range nodes {
			if s, ok := table.State(n.ID); ok {
				weights[n.ID] = s.Weight
			} else {
				weights[n.ID] = 1.0
			}
		}
		if id, ok := d.picker.Pick(weights); ok {
			return id, domain.ModeTrustWeighted
		}
	}

	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	id, _ := d.rr.Next(ids)
	return id, domain.ModeRoundRobin
}

func (d *Dispatcher) record(ev domain.DispatchEvent) {
	d.tel.RecordDispatch(ev)

	d.mu.Lock()
	d.counts[ev.NodeID]++
	d.byMode[ev.Mode]++
	if ev.Outcome != domain.OutcomeSuccess {
		d.failures++
	}
	d.mu.Unlock()
}

// Stats is a snapshot of dispatch counters for the status surface.
type Stats struct {
	PerNode  map[string]uint64
	PerMode  map[domain.Mode]uint64
	Failures uint64
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Stats{
		PerNode:  make(map[string]uint64, len(d.counts)),
		PerMode:  make(map[domain.Mode]uint64, len(d.byMode)),
		Failures: d.failures,
	}
	for k, v := range d.counts {
		s.PerNode[k] = v
	}
	for k, v := range d.byMode {
		s.PerMode[k] = v
	}
	return s
}

func classifyOutcome(res port.ProcessResult, err error) domain.OutcomeKind {
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) ||
			(errors.As(err, &netErr) && netErr.Timeout()) {
			return domain.OutcomeTimeout
		}
		return domain.OutcomeUnreachable
	}
	if res.StatusCode != 200 {
		return domain.OutcomeError
	}
	return domain.OutcomeSuccess
}
