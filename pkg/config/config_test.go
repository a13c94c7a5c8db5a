package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DRY_RUN", "true")
	t.Setenv("SYMBOLS", "")
	t.Setenv("TIMEFRAMES", "")
	t.Setenv("RECONNECT_DELAY", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC-USDT"}, cfg.Symbols)
	assert.Equal(t, []string{"1m", "5m", "15m", "1h"}, cfg.Timeframes)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay)
	assert.True(t, cfg.DryRun)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DRY_RUN", "false")
	t.Setenv("BINGX_API_KEY", "k")
	t.Setenv("BINGX_API_SECRET", "s")
	t.Setenv("SYMBOLS", " BTC-USDT, ETH-USDT ,")
	t.Setenv("RECONNECT_DELAY", "2")
	t.Setenv("RISK_COOLDOWN", "15m")
	t.Setenv("RISK_MAX_CONSECUTIVE_LOSSES", "5")
	t.Setenv("BUFFER_SIZE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC-USDT", "ETH-USDT"}, cfg.Symbols)
	assert.Equal(t, 2*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 15*time.Minute, cfg.LossCooldown)
	assert.Equal(t, 5, cfg.MaxConsecutiveLosses)
	assert.Equal(t, 500, cfg.BufferSize, "unparsable values fall back to the default")
}

func TestValidateRequiresCredentialsForLiveTrading(t *testing.T) {
	t.Setenv("DRY_RUN", "false")
	t.Setenv("BINGX_API_KEY", "")
	t.Setenv("BINGX_API_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BINGX_API_KEY")
}
