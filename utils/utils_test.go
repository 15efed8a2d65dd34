package utils

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Circuit Breaker Tests

func TestCircuitBreaker_NewCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker("test")

	assert.Equal(t, "test", cb.name)
	assert.Equal(t, uint32(10), cb.maxRequests)
	assert.Equal(t, 30*time.Second, cb.interval)
	assert.Equal(t, 15*time.Second, cb.timeout)
	assert.Equal(t, 0.6, cb.failureRatio)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_ExecuteSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	result, err := cb.Execute(ctx, func() (any, error) {
		return "success", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(1), cb.counts.Requests)
	assert.Equal(t, uint32(1), cb.counts.TotalSuccesses)
}

func TestCircuitBreaker_ExecuteFailure(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	expectedError := errors.New("test error")
	result, err := cb.Execute(ctx, func() (any, error) {
		return nil, expectedError
	})

	assert.Equal(t, expectedError, err)
	assert.Nil(t, result)
	assert.Equal(t, uint32(1), cb.counts.TotalFailures)
}

func TestCircuitBreaker_ClosedToOpen(t *testing.T) {
	cb := NewCircuitBreaker("test")
	cb.maxRequests = 5

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := cb.Execute(ctx, func() (any, error) {
			return "success", nil
		})
		assert.NoError(t, err)
	}

	for i := 0; i < 4; i++ {
		_, err := cb.Execute(ctx, func() (any, error) {
			return nil, errors.New("failure")
		})
		assert.Error(t, err)
	}

	assert.Equal(t, StateOpen, cb.State())

	_, err := cb.Execute(ctx, func() (any, error) {
		t.Fatal("must not execute while the circuit is open")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_OpenRecoversAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker("test")
	cb.maxRequests = 5
	cb.timeout = 100 * time.Millisecond

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		cb.Execute(ctx, func() (any, error) {
			return nil, errors.New("failure")
		})
	}
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(150 * time.Millisecond)

	// The first probe after the timeout runs half-open and closes on success.
	result, err := cb.Execute(ctx, func() (any, error) {
		return "recovered", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker("concurrent-test")
	ctx := context.Background()

	var wg sync.WaitGroup
	numGoroutines := 100
	successCount := 0
	mu := sync.Mutex{}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			_, err := cb.Execute(ctx, func() (any, error) {
				time.Sleep(time.Millisecond)
				if id%10 == 0 {
					return nil, errors.New("simulated failure")
				}
				return "success", nil
			})

			if err == nil {
				mu.Lock()
				successCount++
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()

	assert.Greater(t, successCount, 50)
}

func TestCircuitBreaker_PanicRecovery(t *testing.T) {
	cb := NewCircuitBreaker("panic-test")
	ctx := context.Background()

	assert.Panics(t, func() {
		cb.Execute(ctx, func() (any, error) {
			panic("test panic")
		})
	})

	result, err := cb.Execute(ctx, func() (any, error) {
		return "recovery", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "recovery", result)
}

func TestCircuitBreaker_ReadyToTrip(t *testing.T) {
	cb := NewCircuitBreaker("trip-test")

	tests := []struct {
		name           string
		requests       uint32
		failures       uint32
		maxRequests    uint32
		failureRatio   float64
		expectedResult bool
	}{
		{"not enough requests", 5, 5, 10, 0.5, false},
		{"high failure ratio", 10, 8, 10, 0.6, true},
		{"low failure ratio", 10, 3, 10, 0.6, false},
		{"exact threshold", 10, 6, 10, 0.6, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb.maxRequests = tt.maxRequests
			cb.failureRatio = tt.failureRatio
			cb.counts.Requests = tt.requests
			cb.counts.TotalFailures = tt.failures

			assert.Equal(t, tt.expectedResult, cb.readyToTrip())
		})
	}
}

func TestCircuitBreaker_StateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
}

// Record ID Tests

func TestGenerateRecordID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := GenerateRecordID()
		require.NoError(t, err)
		assert.Len(t, id, 15)
		assert.Regexp(t, "^[a-z0-9]+$", id)
		assert.False(t, seen[id], "ids must not repeat")
		seen[id] = true
	}
}

// Redis Client Tests

func TestRedisHealthCheck_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()

	mock.ExpectPing().SetVal("PONG")

	err := RedisHealthCheck(db)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisHealthCheck_Failure(t *testing.T) {
	db, mock := redismock.NewClientMock()

	mock.ExpectPing().SetErr(errors.New("connection failed"))

	err := RedisHealthCheck(db)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis health check failed")
}
