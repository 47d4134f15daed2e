package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestProcessAllSucceed(t *testing.T) {
	processor := NewProcessor(10, 4, time.Second, 0, time.Millisecond)

	operations := []Operation{}
	for i := 0; i < 25; i++ {
		operations = append(operations, Operation{
			Type: OperationGet,
			Key:  fmt.Sprintf("key-%d", i),
		})
	}

	results := processor.Process(context.Background(), operations, func(ctx context.Context, op Operation) ([]byte, error) {
		return []byte(op.Key), nil
	})

	require.Len(t, results, 25)
	for i, result := range results {
		assert.True(t, result.Success)
		assert.Equal(t, fmt.Sprintf("key-%d", i), result.Key)
		assert.Equal(t, []byte(result.Key), result.Data)
	}

	stats := processor.GetStats()
	assert.Equal(t, uint64(25), stats.Processed)
	assert.Equal(t, uint64(25), stats.Succeeded)
}

func TestConcurrencyBound(t *testing.T) {
	processor := NewProcessor(100, 5, time.Second, 0, time.Millisecond)

	operations := make([]Operation, 100)
	for i := range operations {
		operations[i] = Operation{Type: OperationGet, Key: fmt.Sprintf("key-%d", i)}
	}

	var inFlight int32
	var maxInFlight int32
	var mutex sync.Mutex

	results := processor.Process(context.Background(), operations, func(ctx context.Context, op Operation) ([]byte, error) {
		current := atomic.AddInt32(&inFlight, 1)

		mutex.Lock()
		if current > maxInFlight {
			maxInFlight = current
		}
		mutex.Unlock()

		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil, nil
	})

	require.Len(t, results, 100)
	assert.LessOrEqual(t, maxInFlight, int32(5), "no more than maxConcurrency operations may run at any instant")
	assert.Greater(t, maxInFlight, int32(1), "operations must actually run concurrently")
}

func TestPerItemFailureIsolation(t *testing.T) {
	processor := NewProcessor(10, 2, time.Second, 0, time.Millisecond)

	operations := []Operation{
		{Type: OperationGet, Key: "good"},
		{Type: OperationGet, Key: "bad"},
		{Type: OperationGet, Key: "also-good"},
	}

	results := processor.Process(context.Background(), operations, func(ctx context.Context, op Operation) ([]byte, error) {
		if op.Key == "bad" {
			return nil, xerrors.Errorf("broken entry")
		}
		return []byte("ok"), nil
	})

	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Error(t, results[1].Err)
	assert.True(t, results[2].Success, "a failing item must not fail its siblings")
}

func TestRetryWithBackoff(t *testing.T) {
	processor := NewProcessor(10, 2, time.Second, 3, time.Millisecond)

	var attempts int32
	results := processor.Process(context.Background(), []Operation{{Type: OperationSet, Key: "flaky"}}, func(ctx context.Context, op Operation) ([]byte, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return nil, xerrors.Errorf("transient failure")
		}
		return nil, nil
	})

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Equal(t, uint64(2), processor.GetStats().Retries)
}

func TestRetriesExhausted(t *testing.T) {
	processor := NewProcessor(10, 2, time.Second, 2, time.Millisecond)

	var attempts int32
	results := processor.Process(context.Background(), []Operation{{Type: OperationGet, Key: "dead"}}, func(ctx context.Context, op Operation) ([]byte, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, xerrors.Errorf("permanent failure")
	})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Error(t, results[0].Err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts), "initial attempt plus two retries")
	assert.Equal(t, uint64(1), processor.GetStats().Failed)
}

func TestPerOperationTimeout(t *testing.T) {
	processor := NewProcessor(10, 2, 20*time.Millisecond, 0, time.Millisecond)

	results := processor.Process(context.Background(), []Operation{{Type: OperationGet, Key: "slow"}}, func(ctx context.Context, op Operation) ([]byte, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return []byte("too late"), nil
		}
	})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.ErrorIs(t, results[0].Err, context.DeadlineExceeded)
}

func TestChunking(t *testing.T) {
	processor := NewProcessor(10, 4, time.Second, 0, time.Millisecond)

	operations := make([]Operation, 35)
	for i := range operations {
		operations[i] = Operation{Type: OperationHas, Key: fmt.Sprintf("key-%d", i)}
	}

	var count int32
	results := processor.Process(context.Background(), operations, func(ctx context.Context, op Operation) ([]byte, error) {
		atomic.AddInt32(&count, 1)
		return nil, nil
	})

	assert.Len(t, results, 35)
	assert.Equal(t, int32(35), atomic.LoadInt32(&count))
}

func TestStatsAccumulateAcrossCalls(t *testing.T) {
	processor := NewProcessor(10, 2, time.Second, 0, time.Millisecond)

	executor := func(ctx context.Context, op Operation) ([]byte, error) {
		return nil, nil
	}

	processor.Process(context.Background(), []Operation{{Type: OperationGet, Key: "a"}}, executor)
	processor.Process(context.Background(), []Operation{{Type: OperationGet, Key: "b"}}, executor)

	stats := processor.GetStats()
	assert.Equal(t, uint64(2), stats.Processed)
	assert.Greater(t, stats.Throughput, 0.0)
}
