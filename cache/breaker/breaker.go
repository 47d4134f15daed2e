package breaker

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/devcache/devcache/commons"
)

// State is a circuit breaker state
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Stats is a point-in-time snapshot of circuit breaker counters
type Stats struct {
	State         State     `json:"state"`
	Failures      int       `json:"failures"`
	Successes     int       `json:"successes"`
	TotalRequests uint64    `json:"total_requests"`
	Rejected      uint64    `json:"rejected"`
	NextAttempt   time.Time `json:"next_attempt,omitempty"`
}

// CircuitBreaker wraps filesystem-facing calls with failure-threshold
// based fail-fast and timed recovery probing, isolating cascading errors
// from the calling cache operations
type CircuitBreaker struct {
	name             string
	enabled          bool
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	monitoringWindow time.Duration

	state       State
	failures    []time.Time
	successes   int
	total       uint64
	rejected    uint64
	nextAttempt time.Time

	// true while a half-open trial call is in flight; only one trial
	// runs at a time
	probing bool

	// test hook; returns time.Now when nil
	nowFunc func() time.Time

	mutex sync.Mutex
}

// NewCircuitBreaker creates a new CircuitBreaker
func NewCircuitBreaker(name string, config commons.CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		enabled:          config.Enabled,
		failureThreshold: config.FailureThreshold,
		successThreshold: config.SuccessThreshold,
		timeout:          config.Timeout,
		monitoringWindow: config.MonitoringWindow,

		state: StateClosed,
	}
}

func (breaker *CircuitBreaker) now() time.Time {
	if breaker.nowFunc != nil {
		return breaker.nowFunc()
	}
	return time.Now()
}

// pruneFailures drops failures outside the monitoring window.
// The effective threshold is window-relative, not a lifetime counter.
func (breaker *CircuitBreaker) pruneFailures(now time.Time) {
	cutoff := now.Add(-breaker.monitoringWindow)

	pruned := breaker.failures[:0]
	for _, t := range breaker.failures {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}
	breaker.failures = pruned
}

// Execute runs the operation under the breaker's protection
func (breaker *CircuitBreaker) Execute(operation func() error) error {
	if !breaker.enabled {
		return operation()
	}

	if err := breaker.beforeCall(); err != nil {
		return err
	}

	err := operation()
	breaker.afterCall(err)
	return err
}

// beforeCall admits or rejects the call based on breaker state
func (breaker *CircuitBreaker) beforeCall() error {
	breaker.mutex.Lock()
	defer breaker.mutex.Unlock()

	now := breaker.now()
	breaker.total++

	switch breaker.state {
	case StateOpen:
		if now.Before(breaker.nextAttempt) {
			breaker.rejected++
			return commons.NewCircuitOpenError(breaker.name)
		}

		// probe the dependency again
		breaker.transition(StateHalfOpen)
		breaker.probing = true
		return nil
	case StateHalfOpen:
		if breaker.probing {
			breaker.rejected++
			return commons.NewCircuitOpenError(breaker.name)
		}

		breaker.probing = true
		return nil
	default:
		return nil
	}
}

// afterCall records the operation outcome and drives state transitions
func (breaker *CircuitBreaker) afterCall(err error) {
	breaker.mutex.Lock()
	defer breaker.mutex.Unlock()

	now := breaker.now()

	if err != nil {
		breaker.onFailure(now)
		return
	}

	breaker.onSuccess()
}

func (breaker *CircuitBreaker) onFailure(now time.Time) {
	logger := log.WithFields(log.Fields{
		"package":  "breaker",
		"struct":   "CircuitBreaker",
		"function": "onFailure",
	})

	switch breaker.state {
	case StateHalfOpen:
		// a single failure during probing reopens the circuit
		breaker.probing = false
		breaker.nextAttempt = now.Add(breaker.timeout)
		breaker.successes = 0
		breaker.transition(StateOpen)
		logger.Warnf("circuit %q reopened after half-open failure", breaker.name)
	case StateClosed:
		breaker.failures = append(breaker.failures, now)
		breaker.pruneFailures(now)

		if len(breaker.failures) >= breaker.failureThreshold {
			breaker.nextAttempt = now.Add(breaker.timeout)
			breaker.failures = nil
			breaker.transition(StateOpen)
			logger.Warnf("circuit %q opened after %d failures within window", breaker.name, breaker.failureThreshold)
		}
	}
}

func (breaker *CircuitBreaker) onSuccess() {
	switch breaker.state {
	case StateHalfOpen:
		breaker.probing = false
		breaker.successes++
		if breaker.successes >= breaker.successThreshold {
			breaker.successes = 0
			breaker.failures = nil
			breaker.transition(StateClosed)
		}
	case StateClosed:
		// success resets the failure window
		breaker.failures = nil
	}
}

func (breaker *CircuitBreaker) transition(newState State) {
	breaker.state = newState
}

// GetState returns the current state
func (breaker *CircuitBreaker) GetState() State {
	breaker.mutex.Lock()
	defer breaker.mutex.Unlock()

	return breaker.state
}

// GetStats returns breaker statistics
func (breaker *CircuitBreaker) GetStats() Stats {
	breaker.mutex.Lock()
	defer breaker.mutex.Unlock()

	return Stats{
		State:         breaker.state,
		Failures:      len(breaker.failures),
		Successes:     breaker.successes,
		TotalRequests: breaker.total,
		Rejected:      breaker.rejected,
		NextAttempt:   breaker.nextAttempt,
	}
}

// Reset returns the breaker to CLOSED with counters cleared
func (breaker *CircuitBreaker) Reset() {
	breaker.mutex.Lock()
	defer breaker.mutex.Unlock()

	breaker.state = StateClosed
	breaker.failures = nil
	breaker.successes = 0
	breaker.probing = false
	breaker.nextAttempt = time.Time{}
}
