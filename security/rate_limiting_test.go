package security

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scan-gate/internal/status"
)

func TestRateLimiter_FirstScanSetsWindow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 60)

	mock.ExpectIncr("scanlimit:gate-1").SetVal(1)
	mock.ExpectExpire("scanlimit:gate-1", time.Minute).SetVal(true)

	err := limiter.AllowScan(context.Background(), "gate-1", "10.0.0.5:1234")
	assert.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_OverLimitRejected(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 60)

	mock.ExpectIncr("scanlimit:gate-1").SetVal(61)

	err := limiter.AllowScan(context.Background(), "gate-1", "")
	assert.ErrorIs(t, err, status.ErrRateLimited)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_FallsBackToRemoteAddr(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 60)

	mock.ExpectIncr("scanlimit:10.0.0.5:1234").SetVal(2)

	err := limiter.AllowScan(context.Background(), "", "10.0.0.5:1234")
	assert.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_RedisFailureAllowsScan(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 60)

	mock.ExpectIncr("scanlimit:gate-1").SetErr(errors.New("connection refused"))

	err := limiter.AllowScan(context.Background(), "gate-1", "")
	assert.NoError(t, err, "redis being down must not block admission")
}

func TestRateLimiter_DisabledWithoutRedis(t *testing.T) {
	limiter := NewRateLimiter(nil, 60)
	assert.NoError(t, limiter.AllowScan(context.Background(), "gate-1", ""))

	db, _ := redismock.NewClientMock()
	unlimited := NewRateLimiter(db, 0)
	assert.NoError(t, unlimited.AllowScan(context.Background(), "gate-1", ""))
}
