package service

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anthanhphan/go-byzantine-lb/internal/node/domain"
	"github.com/anthanhphan/go-byzantine-lb/internal/node/port"
	"github.com/anthanhphan/gosdk/logger"
)

// ErrCrashed is returned when the crash fault terminates the handling path.
// In a real deployment the process has already exited by the time this
// surfaces; it exists so tests can observe the decision.
var ErrCrashed = errors.New("node crashed")

const (
	statusOK    = "200"
	statusError = "500"
	statusCrash = "error"
)

// Config tunes the simulation. Zero values mean defaults; tests shrink the
// stall ranges and work scale to keep runs fast.
type Config struct {
	FaultRampWindow  time.Duration // time to reach 1.5x base fault probability
	CrashProbability float64       // fixed, does not ramp

	DiurnalPeriod    time.Duration // period of the slow load oscillation
	SpikeProbability float64       // chance of a per-request load spike
	SpikeMin         float64
	SpikeMax         float64

	DelayStallMin time.Duration // delay-fault stall range
	DelayStallMax time.Duration
	LieStallMin   time.Duration // lie-latency hidden slow path range
	LieStallMax   time.Duration

	RetransmitMin time.Duration // packet-loss retransmission penalty range
	RetransmitMax time.Duration

	IOProbability float64       // chance of extra simulated I/O latency
	IOMin         time.Duration
	IOMax         time.Duration
	WorkScale     float64       // multiplier on the CPU-bound work duration

	MemoryBaseBytes   float64 // resident size floor
	MemoryGrowthBytes float64 // leak per request until the reset window
	MemoryResetWindow uint64  // requests per leak-then-GC cycle

	// CrashHook runs when the crash fault fires. Production wiring exits
	// the process; tests substitute a recorder.
	CrashHook func()
}

func (c Config) withDefaults() Config {
	if c.FaultRampWindow <= 0 {
		c.FaultRampWindow = 10 * time.Minute
	}
	if c.CrashProbability <= 0 {
		c.CrashProbability = domain.FaultCrash.BaseProbability()
	}
	if c.DiurnalPeriod <= 0 {
		c.DiurnalPeriod = time.Minute
	}
	if c.SpikeProbability <= 0 {
		c.SpikeProbability = 0.05
	}
	if c.SpikeMin <= 0 {
		c.SpikeMin = 1.5
	}
	if c.SpikeMax <= 0 {
		c.SpikeMax = 3.0
	}
	if c.DelayStallMin <= 0 {
		c.DelayStallMin = 6 * time.Second
	}
	if c.DelayStallMax <= 0 {
		c.DelayStallMax = 7 * time.Second
	}
	if c.LieStallMin <= 0 {
		c.LieStallMin = 3 * time.Second
	}
	if c.LieStallMax <= 0 {
		c.LieStallMax = 4 * time.Second
	}
	if c.RetransmitMin <= 0 {
		c.RetransmitMin = 50 * time.Millisecond
	}
	if c.RetransmitMax <= 0 {
		c.RetransmitMax = 150 * time.Millisecond
	}
	if c.IOProbability <= 0 {
		c.IOProbability = 0.30
	}
	if c.IOMin <= 0 {
		c.IOMin = time.Millisecond
	}
	if c.IOMax <= 0 {
		c.IOMax = 5 * time.Millisecond
	}
	if c.WorkScale <= 0 {
		c.WorkScale = 1.0
	}
	if c.MemoryBaseBytes <= 0 {
		c.MemoryBaseBytes = 200 << 20
	}
	if c.MemoryGrowthBytes <= 0 {
		c.MemoryGrowthBytes = 64 << 10
	}
	if c.MemoryResetWindow == 0 {
		c.MemoryResetWindow = 1000
	}
	if c.CrashHook == nil {
		c.CrashHook = func() {}
	}
	return c
}

// Outcome is the result of one handled request.
type Outcome struct {
	Status     int
	Processed  time.Duration // true handling duration
	Reported   time.Duration // duration the node claims in its response
	LoadFactor float64
	RequestNum uint64
}

// Engine simulates one backend's observable behavior under a fixed fault
// class. Requests to the same engine serialize their random draws and the
// request counter; engines never share state with each other.
type Engine struct {
	id      string
	class   domain.FaultClass
	profile domain.Profile
	cfg     Config
	tel     port.Telemetry
	start   time.Time

	mu       sync.Mutex
	rng      *rand.Rand
	requests uint64

	sleep func(time.Duration)
	spin  func(time.Duration)
}

func NewEngine(id string, class domain.FaultClass, cfg Config, tel port.Telemetry) *Engine {
	return &Engine{
		id:      id,
		class:   class,
		profile: domain.NewProfile(id),
		cfg:     cfg.withDefaults(),
		tel:     tel,
		start:   time.Now(),
		rng:     rand.New(rand.NewSource(domain.Seed(id, 1))),
		sleep:   time.Sleep,
		spin:    busySpin,
	}
}

// Profile exposes the node's immutable baseline, for diagnostics.
func (e *Engine) Profile() domain.Profile {
	return e.profile
}

// FaultClass returns the node's assigned fault class.
func (e *Engine) FaultClass() domain.FaultClass {
	return e.class
}

// HandleRequest runs the full per-request pipeline: network noise, load
// factor, fault decision, workload, gauge update. Every path except crash
// produces a response.
func (e *Engine) HandleRequest(ctx context.Context) (Outcome, error) {
	started := time.Now()
	reqNum := e.nextRequest()

	if noise := e.networkNoise(); noise > 0 {
		e.sleep(noise)
	}

	lf := e.loadFactor()

	uptime := time.Since(e.start)
	p := domain.FaultProbability(e.class, uptime, e.cfg.FaultRampWindow)
	draw := e.randFloat()

	lie := false
	switch e.class {
	case domain.FaultBenign:
		// Never misbehaves.
	case domain.FaultError500:
		if draw < p {
			return e.faultError500(started, lf, reqNum), nil
		}
	case domain.FaultCrash:
		if draw < e.cfg.CrashProbability {
			e.faultCrash()
			return Outcome{}, ErrCrashed
		}
	case domain.FaultDelay:
		if draw < p {
			e.faultDelay()
		}
	case domain.FaultLieLatency:
		if draw < p {
			e.faultLieLatency()
			lie = true
		}
	}

	e.simulateWork(lf)
	e.updateGauges(lf, reqNum)

	processed := time.Since(started)
	reported := processed
	if lie {
		reported = e.fabricatedLatency()
	}

	// The histogram always sees the true duration. This is the channel a
	// latency liar cannot falsify.
	e.tel.ObserveRequest(statusOK, processed)

	return Outcome{
		Status:     200,
		Processed:  processed,
		Reported:   reported,
		LoadFactor: lf,
		RequestNum: reqNum,
	}, nil
}

// Health reports liveness and identity, for diagnostics only.
type Health struct {
	NodeID        string
	UptimeSeconds float64
	FaultClass    string
	TotalRequests uint64
}

func (e *Engine) Health() Health {
	e.mu.Lock()
	total := e.requests
	e.mu.Unlock()

	return Health{
		NodeID:        e.id,
		UptimeSeconds: time.Since(e.start).Seconds(),
		FaultClass:    e.class.String(),
		TotalRequests: total,
	}
}

func (e *Engine) faultError500(started time.Time, lf float64, reqNum uint64) Outcome {
	e.updateGauges(lf, reqNum)
	processed := time.Since(started)
	e.tel.ObserveRequest(statusError, processed)

	return Outcome{
		Status:     500,
		Processed:  processed,
		Reported:   processed,
		LoadFactor: lf,
		RequestNum: reqNum,
	}
}

func (e *Engine) faultCrash() {
	e.tel.ObserveRequest(statusCrash, 0)
	logger.Errorw("crash fault triggered, terminating", "node", e.id)
	e.cfg.CrashHook()
}

func (e *Engine) faultDelay() {
	stall := e.durationBetween(e.cfg.DelayStallMin, e.cfg.DelayStallMax)
	stall += e.absGaussian(e.profile.Jitter)
	e.sleep(stall)
}

func (e *Engine) faultLieLatency() {
	// The expensive path runs for real; only the report is falsified.
	e.sleep(e.durationBetween(e.cfg.LieStallMin, e.cfg.LieStallMax))
}

// fabricatedLatency draws a believable fast duration around the baseline, so
// a lying node's responses are indistinguishable from a benign node's.
func (e *Engine) fabricatedLatency() time.Duration {
	base := float64(e.profile.BaseLatency)
	jitter := e.gaussian(base * 0.1)
	d := time.Duration(base + jitter)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

// networkNoise models jitter plus an occasional retransmission penalty.
func (e *Engine) networkNoise() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	delay := time.Duration(e.rng.NormFloat64() * float64(e.profile.Jitter))
	if delay < 0 {
		delay = 0
	}
	if e.rng.Float64() < e.profile.PacketLoss {
		delay += e.cfg.RetransmitMin +
			time.Duration(e.rng.Int63n(int64(e.cfg.RetransmitMax-e.cfg.RetransmitMin)))
	}
	return delay
}

// loadFactor combines a slow diurnal-style oscillation with an occasional
// short spike. Recomputed per request.
func (e *Engine) loadFactor() float64 {
	elapsed := time.Since(e.start)
	amplitude := e.profile.WorkloadVariation * 0.5
	phase := 2 * math.Pi * float64(elapsed) / float64(e.cfg.DiurnalPeriod)
	lf := 1 + amplitude*math.Sin(phase)

	e.mu.Lock()
	if e.rng.Float64() < e.cfg.SpikeProbability {
		lf *= e.cfg.SpikeMin + e.rng.Float64()*(e.cfg.SpikeMax-e.cfg.SpikeMin)
	}
	e.mu.Unlock()

	if lf < 0.1 {
		lf = 0.1
	}
	return lf
}

// simulateWork burns CPU proportional to the load factor, with request-level
// variation and a chance of extra simulated I/O.
func (e *Engine) simulateWork(lf float64) {
	e.mu.Lock()
	variation := 0.8 + e.rng.Float64()*0.4
	doIO := e.rng.Float64() < e.cfg.IOProbability
	var ioWait time.Duration
	if doIO {
		ioWait = e.durationBetweenLocked(e.cfg.IOMin, e.cfg.IOMax)
	}
	e.mu.Unlock()

	target := time.Duration(float64(e.profile.BaseLatency) * lf * variation * e.cfg.WorkScale)
	if target > 0 {
		e.spin(target)
	}
	if doIO {
		e.sleep(ioWait)
	}
}

func (e *Engine) updateGauges(lf float64, reqNum uint64) {
	e.mu.Lock()
	cpuNoise := e.rng.NormFloat64() * 10
	memNoise := e.rng.NormFloat64() * float64(1<<20)
	e.mu.Unlock()

	cpu := e.profile.BaseCPU*lf*100 + cpuNoise
	if cpu < 0 {
		cpu = 0
	}
	if cpu > 100 {
		cpu = 100
	}
	e.tel.SetCPUPercent(cpu)

	// Leak-then-GC: memory climbs with the request count and drops back
	// every reset window.
	leak := float64(reqNum%e.cfg.MemoryResetWindow) * e.cfg.MemoryGrowthBytes
	mem := e.cfg.MemoryBaseBytes + leak + memNoise
	if mem < 0 {
		mem = 0
	}
	e.tel.SetMemoryBytes(mem)
}

func (e *Engine) nextRequest() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests++
	return e.requests
}

func (e *Engine) randFloat() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()
}

func (e *Engine) gaussian(sigma float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.NormFloat64() * sigma
}

func (e *Engine) absGaussian(sigma time.Duration) time.Duration {
	d := time.Duration(e.gaussian(float64(sigma)))
	if d < 0 {
		d = -d
	}
	return d
}

func (e *Engine) durationBetween(lo, hi time.Duration) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.durationBetweenLocked(lo, hi)
}

func (e *Engine) durationBetweenLocked(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(e.rng.Int63n(int64(hi-lo)))
}

var spinSink uint64

// busySpin burns CPU until the deadline. The atomic store keeps the loop
// from being optimized away.
func busySpin(d time.Duration) {
	deadline := time.Now().Add(d)
	var acc uint64 = 1
	for time.Now().Before(deadline) {
		for i := 0; i < 1024; i++ {
			acc = acc*2862933555777941757 + 3037000493
		}
	}
	atomic.StoreUint64(&spinSink, acc)
}
