package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/devcache/devcache/commons"
)

func testConfig() commons.CircuitBreakerConfig {
	return commons.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		MonitoringWindow: time.Minute,
	}
}

func failingOp() error {
	return xerrors.Errorf("disk full")
}

func TestOpensAfterFailureThreshold(t *testing.T) {
	circuitBreaker := NewCircuitBreaker("test", testConfig())

	for i := 0; i < 3; i++ {
		assert.Equal(t, StateClosed, circuitBreaker.GetState())
		err := circuitBreaker.Execute(failingOp)
		assert.Error(t, err)
	}

	assert.Equal(t, StateOpen, circuitBreaker.GetState())
}

func TestOpenRejectsWithoutCallingOperation(t *testing.T) {
	circuitBreaker := NewCircuitBreaker("test", testConfig())

	for i := 0; i < 3; i++ {
		circuitBreaker.Execute(failingOp)
	}
	require.Equal(t, StateOpen, circuitBreaker.GetState())

	called := false
	err := circuitBreaker.Execute(func() error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.True(t, commons.IsCircuitOpenError(err))
	assert.False(t, called, "open circuit must fail fast without attempting I/O")
	assert.Equal(t, uint64(1), circuitBreaker.GetStats().Rejected)
}

func TestHalfOpenAfterTimeout(t *testing.T) {
	circuitBreaker := NewCircuitBreaker("test", testConfig())

	now := time.Now()
	circuitBreaker.nowFunc = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		circuitBreaker.Execute(failingOp)
	}
	require.Equal(t, StateOpen, circuitBreaker.GetState())

	// advance past the timeout; the next call probes the dependency
	now = now.Add(31 * time.Second)

	called := false
	err := circuitBreaker.Execute(func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, StateHalfOpen, circuitBreaker.GetState())

	// a second consecutive success closes the circuit
	err = circuitBreaker.Execute(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, circuitBreaker.GetState())
}

func TestHalfOpenAdmitsOneTrialAtATime(t *testing.T) {
	circuitBreaker := NewCircuitBreaker("test", testConfig())

	now := time.Now()
	circuitBreaker.nowFunc = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		circuitBreaker.Execute(failingOp)
	}
	require.Equal(t, StateOpen, circuitBreaker.GetState())

	now = now.Add(31 * time.Second)

	// while the trial call is still running, concurrent calls are rejected
	err := circuitBreaker.Execute(func() error {
		innerErr := circuitBreaker.Execute(func() error { return nil })
		require.Error(t, innerErr)
		assert.True(t, commons.IsCircuitOpenError(innerErr))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, StateHalfOpen, circuitBreaker.GetState())

	// with no trial in flight the next call is admitted and closes the circuit
	err = circuitBreaker.Execute(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, circuitBreaker.GetState())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	circuitBreaker := NewCircuitBreaker("test", testConfig())

	now := time.Now()
	circuitBreaker.nowFunc = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		circuitBreaker.Execute(failingOp)
	}
	require.Equal(t, StateOpen, circuitBreaker.GetState())

	now = now.Add(31 * time.Second)

	// a single failure during probing reopens immediately
	err := circuitBreaker.Execute(failingOp)
	require.Error(t, err)
	assert.Equal(t, StateOpen, circuitBreaker.GetState())

	// and the new timeout window applies
	err = circuitBreaker.Execute(func() error { return nil })
	require.Error(t, err)
	assert.True(t, commons.IsCircuitOpenError(err))
}

func TestFailureWindowPruning(t *testing.T) {
	circuitBreaker := NewCircuitBreaker("test", testConfig())

	now := time.Now()
	circuitBreaker.nowFunc = func() time.Time { return now }

	// two failures, then wait out the monitoring window
	circuitBreaker.Execute(failingOp)
	circuitBreaker.Execute(failingOp)
	require.Equal(t, StateClosed, circuitBreaker.GetState())

	now = now.Add(2 * time.Minute)

	// old failures no longer count toward the threshold
	circuitBreaker.Execute(failingOp)
	circuitBreaker.Execute(failingOp)
	assert.Equal(t, StateClosed, circuitBreaker.GetState())

	circuitBreaker.Execute(failingOp)
	assert.Equal(t, StateOpen, circuitBreaker.GetState())
}

func TestSuccessResetsFailures(t *testing.T) {
	circuitBreaker := NewCircuitBreaker("test", testConfig())

	circuitBreaker.Execute(failingOp)
	circuitBreaker.Execute(failingOp)
	circuitBreaker.Execute(func() error { return nil })

	// the failure list was cleared by the success
	circuitBreaker.Execute(failingOp)
	circuitBreaker.Execute(failingOp)
	assert.Equal(t, StateClosed, circuitBreaker.GetState())
}

func TestDisabledBreakerPassesThrough(t *testing.T) {
	config := testConfig()
	config.Enabled = false

	circuitBreaker := NewCircuitBreaker("test", config)

	for i := 0; i < 10; i++ {
		circuitBreaker.Execute(failingOp)
	}

	assert.Equal(t, StateClosed, circuitBreaker.GetState())

	err := circuitBreaker.Execute(func() error { return nil })
	assert.NoError(t, err)
}

func TestStats(t *testing.T) {
	circuitBreaker := NewCircuitBreaker("test", testConfig())

	circuitBreaker.Execute(func() error { return nil })
	circuitBreaker.Execute(failingOp)

	stats := circuitBreaker.GetStats()
	assert.Equal(t, StateClosed, stats.State)
	assert.Equal(t, uint64(2), stats.TotalRequests)
	assert.Equal(t, 1, stats.Failures)
}
