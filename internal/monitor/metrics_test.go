package monitor

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func family(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func TestCountersAreRecorded(t *testing.T) {
	m := New()
	m.Tick("BTC-USDT")
	m.Tick("BTC-USDT")
	m.RiskRejection("cooldown")
	m.ObserveOrder("entry", "FILLED", 120*time.Millisecond)
	m.Drawdown(4.5)
	m.RealizedProfit(-3)
	m.RealizedProfit(2)

	ticks := family(t, m, "bingx_bot_ticks_total")
	require.Len(t, ticks.GetMetric(), 1)
	assert.Equal(t, 2.0, ticks.GetMetric()[0].GetCounter().GetValue())

	lat := family(t, m, "bingx_bot_order_latency_seconds")
	assert.Equal(t, uint64(1), lat.GetMetric()[0].GetHistogram().GetSampleCount())

	assert.Equal(t, 4.5, family(t, m, "bingx_bot_drawdown_percent").GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 2.0, family(t, m, "bingx_bot_realized_profit_total").GetMetric()[0].GetCounter().GetValue())
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Tick("X")
	mfs, err := b.Registry.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		assert.NotEqual(t, "bingx_bot_ticks_total", mf.GetName(), "untouched vec has no series")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.CandleSealed("BTC-USDT", "5m", true)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `bingx_bot_candles_sealed_total{filled="true",symbol="BTC-USDT",timeframe="5m"} 1`)
}
