// Package monitor exposes the bot's prometheus metrics.
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bingx_bot"

// Metrics groups the collectors. Each instance owns its registry so tests stay isolated.
type Metrics struct {
	Registry *prometheus.Registry

	ticks          *prometheus.CounterVec
	candlesSealed  *prometheus.CounterVec
	signals        *prometheus.CounterVec
	riskRejections *prometheus.CounterVec
	orders         *prometheus.CounterVec
	orderLatency   *prometheus.HistogramVec
	reconnects     *prometheus.CounterVec
	feedState      *prometheus.GaugeVec
	openPositions  prometheus.Gauge
	drawdown       prometheus.Gauge
	realizedPnL    prometheus.Counter
}

// New registers all collectors on a fresh registry, plus Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total", Help: "Market trades ingested.",
		}, []string{"symbol"}),
		candlesSealed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "candles_sealed_total", Help: "Candles sealed per timeframe.",
		}, []string{"symbol", "timeframe", "filled"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "signals_total", Help: "Forwarded signals by outcome.",
		}, []string{"strategy", "outcome"}),
		riskRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "risk_rejections_total", Help: "Trades blocked per risk gate.",
		}, []string{"gate"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_total", Help: "Orders submitted by kind and status.",
		}, []string{"kind", "status"}),
		orderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "order_latency_seconds", Help: "Order round trip latency.",
			Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"kind"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "feed_reconnects_total", Help: "Feed reconnect attempts.",
		}, []string{"symbol"}),
		feedState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "feed_state", Help: "Feed state (0 disconnected .. 4 error).",
		}, []string{"symbol"}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "open_positions", Help: "Positions in OPEN state.",
		}),
		drawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "drawdown_percent", Help: "Drawdown from equity peak.",
		}),
		realizedPnL: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "realized_profit_total", Help: "Sum of positive realized pnl.",
		}),
	}
	m.Registry.MustRegister(
		m.ticks, m.candlesSealed, m.signals, m.riskRejections, m.orders, m.orderLatency,
		m.reconnects, m.feedState, m.openPositions, m.drawdown, m.realizedPnL,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) Tick(symbol string) { m.ticks.WithLabelValues(symbol).Inc() }

func (m *Metrics) CandleSealed(symbol, timeframe string, filled bool) {
	f := "false"
	if filled {
		f = "true"
	}
	m.candlesSealed.WithLabelValues(symbol, timeframe, f).Inc()
}

// Signal counts a forwarded signal; outcome is approved, rejected, capped or failed.
func (m *Metrics) Signal(strategy, outcome string) { m.signals.WithLabelValues(strategy, outcome).Inc() }

func (m *Metrics) RiskRejection(gate string) { m.riskRejections.WithLabelValues(gate).Inc() }

// ObserveOrder implements order.Observer.
func (m *Metrics) ObserveOrder(kind, status string, latency time.Duration) {
	m.orders.WithLabelValues(kind, status).Inc()
	m.orderLatency.WithLabelValues(kind).Observe(latency.Seconds())
}

func (m *Metrics) Reconnect(symbol string) { m.reconnects.WithLabelValues(symbol).Inc() }

func (m *Metrics) FeedState(symbol string, state int) {
	m.feedState.WithLabelValues(symbol).Set(float64(state))
}

func (m *Metrics) OpenPositions(n int) { m.openPositions.Set(float64(n)) }

func (m *Metrics) Drawdown(pct float64) { m.drawdown.Set(pct) }

func (m *Metrics) RealizedProfit(pnl float64) {
	if pnl > 0 {
		m.realizedPnL.Add(pnl)
	}
}
