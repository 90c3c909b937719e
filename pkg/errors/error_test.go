package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndNewf(t *testing.T) {
	err := New(ErrCodeInvalidPeriod, "period must be positive")
	assert.Equal(t, ErrCodeInvalidPeriod, err.Code)
	assert.Equal(t, "[102] period must be positive", err.Error())

	err = Newf(ErrCodeCacheKeyNotFound, "no cache entry for %s", "BTCUSDT 1m vegas")
	assert.Equal(t, ErrCodeCacheKeyNotFound, err.Code)
	assert.Contains(t, err.Error(), "BTCUSDT 1m vegas")
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCodeQueryFailed, "failed to load candles", cause)

	assert.Equal(t, cause, err.Unwrap())
	assert.Contains(t, err.Error(), "connection refused")

	wrapped := Wrapf(ErrCodeDataSourceUnavailable, err, "datasource %s", "duckdb")
	assert.True(t, HasCode(wrapped, ErrCodeDataSourceUnavailable))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeInvalidSignal, GetCode(New(ErrCodeInvalidSignal, "bad signal")))
	assert.Equal(t, ErrCodeUnknown, GetCode(fmt.Errorf("plain error")))
	assert.Equal(t, ErrCodeUnknown, GetCode(nil))
}

func TestHasCodeThroughChain(t *testing.T) {
	inner := New(ErrCodeCacheKeyNotFound, "missing entry")
	outer := fmt.Errorf("live execution: %w", inner)

	assert.True(t, HasCode(outer, ErrCodeCacheKeyNotFound))
	assert.False(t, HasCode(outer, ErrCodeInvalidQuantity))
}

func TestInsufficientDataError(t *testing.T) {
	err := NewInsufficientDataErrorf(14, 3, "ETHUSDT", "rsi needs %d candles, got %d", 14, 3)
	require.True(t, IsInsufficientDataError(err))
	assert.Equal(t, 14, err.Required)
	assert.Equal(t, 3, err.Actual)

	wrapped := fmt.Errorf("pipeline: %w", err)
	assert.True(t, IsInsufficientDataError(wrapped))
	assert.False(t, IsInsufficientDataError(fmt.Errorf("other")))
}
