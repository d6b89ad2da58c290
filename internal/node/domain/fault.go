package domain

import (
	"fmt"
	"strings"
	"time"
)

// FaultClass is the category of misbehavior a simulated backend exhibits.
// It is assigned once at startup and never changes for the process lifetime.
type FaultClass int

const (
	FaultBenign FaultClass = iota
	FaultCrash
	FaultDelay
	FaultError500
	FaultLieLatency
)

const (
	// rampCeiling caps the time-driven probability scale-up. Misbehavior
	// degrades from 1.0x to 1.5x of the base probability over the ramp
	// window, then stays constant.
	rampCeiling = 1.5

	faultBenign     = "benign"
	faultCrash      = "crash"
	faultDelay      = "delay"
	faultError500   = "500-error"
	faultLieLatency = "lie-latency"
)

func (c FaultClass) String() string {
	switch c {
	case FaultBenign:
		return faultBenign
	case FaultCrash:
		return faultCrash
	case FaultDelay:
		return faultDelay
	case FaultError500:
		return faultError500
	case FaultLieLatency:
		return faultLieLatency
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// ParseFaultClass maps a configuration value to a FaultClass.
func ParseFaultClass(s string) (FaultClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case faultBenign, "":
		return FaultBenign, nil
	case faultCrash:
		return FaultCrash, nil
	case faultDelay:
		return FaultDelay, nil
	case faultError500, "error-500":
		return FaultError500, nil
	case faultLieLatency:
		return FaultLieLatency, nil
	default:
		return FaultBenign, fmt.Errorf("unknown fault class: %q", s)
	}
}

// BaseProbability is the per-request misbehavior probability before the
// time-driven ramp is applied. The crash probability stays fixed; a crashing
// node that gets more crash-prone over time would never survive long enough
// to be observed.
func (c FaultClass) BaseProbability() float64 {
	switch c {
	case FaultError500:
		return 0.4
	case FaultDelay:
		return 0.5
	case FaultCrash:
		return 0.001
	case FaultLieLatency:
		return 0.7
	default:
		return 0
	}
}

// Ramps reports whether the fault class scales its probability with uptime.
func (c FaultClass) Ramps() bool {
	return c == FaultError500 || c == FaultDelay || c == FaultLieLatency
}

// FaultProbability returns the instantaneous misbehavior probability for a
// node with the given uptime. The probability grows linearly from base to
// 1.5x base over the ramp window, then saturates.
func FaultProbability(c FaultClass, uptime, rampWindow time.Duration) float64 {
	base := c.BaseProbability()
	if base == 0 || !c.Ramps() {
		return base
	}
	if rampWindow <= 0 {
		return base * rampCeiling
	}

	progress := float64(uptime) / float64(rampWindow)
	if progress > 1 {
		progress = 1
	}
	if progress < 0 {
		progress = 0
	}

	p := base * (1 + (rampCeiling-1)*progress)
	if p > 1 {
		p = 1
	}
	return p
}

// FaultEnvKey returns the environment key that carries the fault assignment
// for a node id, e.g. "node-3" -> "NODE_3_FAULT". Ids without a numeric
// suffix fall back to the literal id, uppercased.
func FaultEnvKey(nodeID string) string {
	if idx := strings.LastIndex(nodeID, "-"); idx >= 0 && idx < len(nodeID)-1 {
		return fmt.Sprintf("NODE_%s_FAULT", nodeID[idx+1:])
	}
	return fmt.Sprintf("NODE_%s_FAULT", strings.ToUpper(nodeID))
}
