package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe("15m")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, tf.Duration)
	assert.Equal(t, int64(900_000), tf.Millis())

	_, err = ParseTimeframe("7m")
	assert.Error(t, err)

	_, err = ParseTimeframes([]string{"1m", "5m", "1m"})
	assert.Error(t, err)
}

func TestBucketStart(t *testing.T) {
	tf, _ := ParseTimeframe("5m")
	tests := []struct {
		in, want int64
	}{
		{0, 0},
		{299_999, 0},
		{300_000, 300_000},
		{1_700_000_123_456, 1_699_999_800_000},
		{-1, -300_000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tf.BucketStart(tt.in), "bucket of %d", tt.in)
	}
}

func TestMultiple(t *testing.T) {
	m1, _ := ParseTimeframe("1m")
	m3, _ := ParseTimeframe("3m")
	m5, _ := ParseTimeframe("5m")
	assert.True(t, m5.Multiple(m1))
	assert.False(t, m5.Multiple(m3))
	assert.False(t, m1.Multiple(m5))
}

func TestCandleValid(t *testing.T) {
	assert.True(t, Candle{Open: 10, High: 12, Low: 9, Close: 11, Volume: 1}.Valid())
	assert.False(t, Candle{Open: 10, High: 10.5, Low: 9, Close: 11, Volume: 1}.Valid())
	assert.False(t, Candle{Open: 10, High: 12, Low: 10.5, Close: 11, Volume: 1}.Valid())
	assert.False(t, Candle{Open: 10, High: 12, Low: 9, Close: 11, Volume: -1}.Valid())
}
