package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bingx-trading-bot/pkg/config"
)

const buildStrategies = `
strategies:
  - id: rsi-swing-btc
    type: rsi_swing
    symbol: BTC-USDT
    timeframe: 1m
    max_positions: 1
  - id: ma-cross-any
    type: ma_cross
    timeframe: %s
    enabled: false
`

func buildConfig(t *testing.T, strategies string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strategies), 0o600))
	return &config.Config{
		BotID:                "build-test",
		Symbols:              []string{"BTC-USDT"},
		BaseInterval:         "1m",
		Timeframes:           []string{"1m", "5m"},
		BufferSize:           100,
		ReconnectAttempts:    1,
		ReconnectDelay:       time.Second,
		StrategiesFile:       path,
		DefaultRiskPct:       1,
		DefaultMaxPositions:  1,
		DryRun:               true,
		DryRunInitialBalance: 1000,
		BalanceSyncInterval:  time.Minute,
		StatusInterval:       time.Minute,
	}
}

func withTimeframe(tf string) string {
	return fmt.Sprintf(buildStrategies, tf)
}

func TestBuildRejectsUntrackedTimeframe(t *testing.T) {
	cfg := buildConfig(t, withTimeframe("15m"))

	e, err := Build(context.Background(), cfg, zerolog.Nop(), "test")
	require.Error(t, err)
	assert.Nil(t, e)
	assert.Contains(t, err.Error(), "ma-cross-any")
	assert.Contains(t, err.Error(), "timeframe 15m")
}

func TestBuildRejectsUnsubscribedSymbol(t *testing.T) {
	cfg := buildConfig(t, withTimeframe("5m"))
	cfg.Symbols = []string{"ETH-USDT"}

	_, err := Build(context.Background(), cfg, zerolog.Nop(), "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbol BTC-USDT is not in SYMBOLS")
}

func TestBuildAcceptsBaseInterval(t *testing.T) {
	cfg := buildConfig(t, withTimeframe("5m"))
	cfg.Timeframes = []string{"5m"} // 1m is only the base interval

	e, err := Build(context.Background(), cfg, zerolog.Nop(), "test")
	require.NoError(t, err)
	require.NoError(t, e.Close())
}

func TestBuildKeepsRedisWhenUnreachable(t *testing.T) {
	cfg := buildConfig(t, withTimeframe("5m"))
	cfg.RedisAddr = "127.0.0.1:1"
	cfg.DBPath = filepath.Join(t.TempDir(), "journal.db")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e, err := Build(ctx, cfg, zerolog.Nop(), "test")
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.NotNil(t, e.redis, "status keeps the redis sink and retries on each report")
	assert.NotEmpty(t, e.RunID)
	assert.Equal(t, e.RunID, e.Service.GetSystemStatus(ctx).RunID)
	assert.NotNil(t, e.journal)
}

func TestCloseToleratesPartialEngine(t *testing.T) {
	assert.NotPanics(t, func() { _ = (&Engine{}).Close() })
}
