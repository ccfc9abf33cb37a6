// Package breaker implements a circuit breaker guarding a remote dependency.
//
// Closed admits all calls and counts consecutive failures; reaching the
// failure threshold opens the circuit. Open rejects everything until the
// cooldown elapses, then the next Allow call flips to HalfOpen and is itself
// admitted as the probe. HalfOpen admits exactly one in-flight probe at a
// time: the probe slot is a boolean claimed inside the lock on Allow and
// released on RecordSuccess/RecordFailure, so concurrent callers cannot each
// believe they hold it.
package breaker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// State of the circuit.
type State string

// Circuit states.
const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Config holds breaker thresholds.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the half-open success count that closes the circuit.
	SuccessThreshold int
	// Timeout is the open-state cooldown before a probe is attempted.
	Timeout time.Duration
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Listener observes state transitions.
type Listener func(from, to State)

// Breaker is a circuit breaker for one guarded dependency.
type Breaker struct {
	name   string
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu             sync.Mutex
	state          State
	failures       int
	successes      int
	lastFailure    time.Time
	probeInFlight  bool
	listeners      []Listener
	totalRequests  int64
	totalSuccesses int64
	totalFailures  int64
}

// New creates a breaker in the Closed state.
func New(name string, cfg Config, logger *zap.Logger) *Breaker {
	cfg.ApplyDefaults()
	return &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		state:  Closed,
	}
}

// WithClock overrides the time source. Intended for tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// OnStateChange registers a transition listener. Listeners are invoked
// outside the lock, in registration order.
func (b *Breaker) OnStateChange(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Allow reports whether a call may proceed. In Open state the first call
// after the cooldown transitions to HalfOpen and claims the probe slot;
// in HalfOpen only the probe-slot holder gets through.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	b.totalRequests++

	switch b.state {
	case Closed:
		b.mu.Unlock()
		return true

	case Open:
		if b.now().Sub(b.lastFailure) < b.cfg.Timeout {
			b.mu.Unlock()
			return false
		}
		notify := b.transition(HalfOpen)
		b.successes = 0
		b.probeInFlight = true
		b.mu.Unlock()
		notify()
		return true

	case HalfOpen:
		if b.probeInFlight {
			b.mu.Unlock()
			return false
		}
		b.probeInFlight = true
		b.mu.Unlock()
		return true
	}

	b.mu.Unlock()
	return false
}

// RecordSuccess records a successful call outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.totalSuccesses++

	notify := func() {}
	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.probeInFlight = false
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			notify = b.transition(Closed)
			b.failures = 0
			b.successes = 0
		}
	case Open:
		// Late result from a call admitted before the circuit opened.
	}
	b.mu.Unlock()
	notify()
}

// RecordFailure records a failed call outcome.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	b.totalFailures++
	b.lastFailure = b.now()

	notify := func() {}
	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			notify = b.transition(Open)
		}
	case HalfOpen:
		b.probeInFlight = false
		notify = b.transition(Open)
		b.failures = 0
		b.successes = 0
	case Open:
	}
	b.mu.Unlock()
	notify()
}

// Reset forces the breaker to Closed with all counters cleared.
func (b *Breaker) Reset() {
	b.mu.Lock()
	notify := func() {}
	if b.state != Closed {
		notify = b.transition(Closed)
	}
	b.failures = 0
	b.successes = 0
	b.probeInFlight = false
	b.lastFailure = time.Time{}
	b.mu.Unlock()
	notify()
}

// Stats is a point-in-time snapshot for dashboards.
type Stats struct {
	Name           string
	State          State
	Failures       int
	Successes      int
	LastFailure    time.Time
	TotalRequests  int64
	TotalSuccesses int64
	TotalFailures  int64
}

// Stats returns a snapshot of the breaker's counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Name:           b.name,
		State:          b.state,
		Failures:       b.failures,
		Successes:      b.successes,
		LastFailure:    b.lastFailure,
		TotalRequests:  b.totalRequests,
		TotalSuccesses: b.totalSuccesses,
		TotalFailures:  b.totalFailures,
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transition switches state under the lock and returns a closure that
// notifies listeners once the lock is released.
func (b *Breaker) transition(to State) func() {
	from := b.state
	b.state = to
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)

	return func() {
		if b.logger != nil {
			b.logger.Info("Circuit breaker state change",
				zap.String("breaker", b.name),
				zap.String("from", string(from)),
				zap.String("to", string(to)),
			)
		}
		for _, l := range listeners {
			l(from, to)
		}
	}
}
