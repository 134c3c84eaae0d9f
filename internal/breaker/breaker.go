// Package breaker implements CircuitBreaker, the three-state failure
// isolator of SPEC_FULL §4.2, one instance per source. The state shape
// (atomic counters, lazy per-key construction, CAS-guarded half-open probe
// admission) is grounded in the proxy's circuitBreaker type in the
// Olla-style reverse proxy example from the retrieval pack.
package breaker

import (
	"sync"
	"sync/atomic"
	"time"
)

// State is the breaker's current position.
type State int32

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config bounds one source's breaker.
type Config struct {
	FailureThreshold float64       // θ_fail: failure rate that trips CLOSED -> OPEN
	MinSamples       int           // n_min: minimum samples before θ_fail applies
	WindowSize       int           // rolling sample window length
	CoolDown         time.Duration // OPEN -> HALF_OPEN delay
	CoolDownMax      time.Duration // cap on doubling CoolDown after a failed probe
	ProbeCount       int           // n_probe: concurrent probes admitted in HALF_OPEN
}

// DefaultConfig matches SPEC_FULL §4.2's named defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 0.5,
		MinSamples:       5,
		WindowSize:       20,
		CoolDown:         30 * time.Second,
		CoolDownMax:      5 * time.Minute,
		ProbeCount:       1,
	}
}

// Breaker is a single source's circuit breaker.
type Breaker struct {
	cfg Config

	mu         sync.Mutex
	state      State
	samples    []bool // true = success, ring buffer bounded by WindowSize
	openedAt   time.Time
	coolDown   time.Duration
	probesUsed int32
}

// New constructs a Breaker in the CLOSED state.
func New(cfg Config) *Breaker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultConfig().WindowSize
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = DefaultConfig().CoolDown
	}
	if cfg.CoolDownMax <= 0 {
		cfg.CoolDownMax = DefaultConfig().CoolDownMax
	}
	if cfg.ProbeCount <= 0 {
		cfg.ProbeCount = 1
	}
	return &Breaker{cfg: cfg, state: Closed, coolDown: cfg.CoolDown}
}

// Allow reports whether a call should proceed, transitioning OPEN ->
// HALF_OPEN when the cool-down has elapsed. On a HALF_OPEN admission it
// reserves one of the limited probe slots; the caller must call Report
// exactly once for every Allow that returned true.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.openedAt) < b.coolDown {
			return false
		}
		b.state = HalfOpen
		b.probesUsed = 0
		fallthrough
	case HalfOpen:
		if atomic.LoadInt32(&b.probesUsed) >= int32(b.cfg.ProbeCount) {
			return false
		}
		atomic.AddInt32(&b.probesUsed, 1)
		return true
	default:
		return false
	}
}

// Report records the outcome of a call admitted by Allow. Cancelled
// (client-side) calls must not be reported at all — they are not failures.
func (b *Breaker) Report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		if success {
			b.state = Closed
			b.samples = nil
			b.coolDown = b.cfg.CoolDown
		} else {
			b.trip()
		}
	case Closed:
		b.samples = append(b.samples, success)
		if len(b.samples) > b.cfg.WindowSize {
			b.samples = b.samples[len(b.samples)-b.cfg.WindowSize:]
		}
		if len(b.samples) >= b.cfg.MinSamples && b.failureRate() >= b.cfg.FailureThreshold {
			b.trip()
		}
	}
}

func (b *Breaker) failureRate() float64 {
	if len(b.samples) == 0 {
		return 0
	}
	failures := 0
	for _, ok := range b.samples {
		if !ok {
			failures++
		}
	}
	return float64(failures) / float64(len(b.samples))
}

// trip moves the breaker to OPEN. A trip from HALF_OPEN (a failed probe)
// also doubles the cool-down, capped at CoolDownMax; a trip from CLOSED
// keeps the current cool-down. Caller must hold b.mu.
func (b *Breaker) trip() {
	if b.state == HalfOpen {
		b.coolDown *= 2
		if b.coolDown > b.cfg.CoolDownMax {
			b.coolDown = b.cfg.CoolDownMax
		}
	}
	b.state = Open
	b.openedAt = time.Now()
	b.samples = nil
}

// CurrentState reports the breaker's state without mutating it.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Registry holds one Breaker per source, constructed lazily.
type Registry struct {
	mu    sync.Mutex
	cfg   Config
	items map[string]*Breaker
}

// NewRegistry creates a Registry applying cfg to every source it constructs.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, items: make(map[string]*Breaker)}
}

// For returns the Breaker for source, creating it on first use.
func (r *Registry) For(source string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.items[source]
	if !ok {
		b = New(r.cfg)
		r.items[source] = b
	}
	return b
}
