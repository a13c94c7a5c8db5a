package order

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bingx-trading-bot/pkg/exchanges/common"
)

// PriceSource supplies the last known price for a symbol.
type PriceSource interface {
	LastPrice(symbol string) (float64, bool)
}

// PriceFunc adapts a function to PriceSource.
type PriceFunc func(symbol string) (float64, bool)

func (f PriceFunc) LastPrice(symbol string) (float64, bool) { return f(symbol) }

// DryRunConfig tunes the paper fills.
type DryRunConfig struct {
	FeeRate      float64 // decimal, e.g. 0.0005 = 5 bps
	SlippageBps  float64 // max adverse slippage in basis points
	LatencyMinMs int
	LatencyMaxMs int
}

// PaperOrder is one simulated order.
type PaperOrder struct {
	ID         string
	ClientID   string
	Symbol     string
	Side       common.Side
	Qty        float64
	Price      float64
	Fee        float64
	ReduceOnly bool
	Status     common.OrderStatus
	CreatedAt  time.Time
}

// DryRunGateway fills every market order immediately at the last price plus slippage.
// It implements common.Gateway so the executor cannot tell it from the venue.
type DryRunGateway struct {
	cfg    DryRunConfig
	prices PriceSource
	log    zerolog.Logger

	mu     sync.Mutex
	rng    *rand.Rand
	orders []PaperOrder
	fees   float64
}

func NewDryRunGateway(cfg DryRunConfig, prices PriceSource, log zerolog.Logger) *DryRunGateway {
	if cfg.LatencyMaxMs > 0 && cfg.LatencyMinMs > cfg.LatencyMaxMs {
		cfg.LatencyMinMs, cfg.LatencyMaxMs = cfg.LatencyMaxMs, cfg.LatencyMinMs
	}
	return &DryRunGateway{
		cfg:    cfg,
		prices: prices,
		log:    log.With().Str("component", "dry-run").Logger(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SubmitOrder simulates a fill.
func (d *DryRunGateway) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	if req.Qty <= 0 {
		return common.OrderResult{}, &common.VenueRejection{Op: "dry-run order", Code: 80014, Message: "quantity must be positive"}
	}
	price := req.Price
	if req.Type != common.OrderTypeLimit || price <= 0 {
		last, ok := d.prices.LastPrice(req.Symbol)
		if !ok || last <= 0 {
			return common.OrderResult{}, &common.VenueRejection{Op: "dry-run order", Code: 80012,
				Message: fmt.Sprintf("no price for %s", req.Symbol)}
		}
		price = last
	}

	d.mu.Lock()
	if frac := d.cfg.SlippageBps / 10000.0; frac > 0 {
		noise := d.rng.Float64() * frac
		if req.Side == common.SideBuy {
			price *= 1 + noise
		} else {
			price *= 1 - noise
		}
	}
	delay := time.Duration(d.cfg.LatencyMinMs) * time.Millisecond
	if span := d.cfg.LatencyMaxMs - d.cfg.LatencyMinMs; span > 0 {
		delay += time.Duration(d.rng.Intn(span+1)) * time.Millisecond
	}
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return common.OrderResult{}, &common.TransportError{Op: "dry-run order", Err: ctx.Err()}
		case <-time.After(delay):
		}
	}

	fee := price * req.Qty * d.cfg.FeeRate
	po := PaperOrder{
		ID:         "paper-" + uuid.NewString(),
		ClientID:   req.ClientID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Qty:        req.Qty,
		Price:      price,
		Fee:        fee,
		ReduceOnly: req.ReduceOnly,
		Status:     common.StatusFilled,
		CreatedAt:  time.Now(),
	}
	d.mu.Lock()
	d.orders = append(d.orders, po)
	d.fees += fee
	d.mu.Unlock()

	d.log.Info().Str("symbol", req.Symbol).Str("side", string(req.Side)).Float64("qty", req.Qty).
		Float64("price", price).Float64("fee", fee).Bool("reduce_only", req.ReduceOnly).Msg("paper fill")

	return common.OrderResult{
		ExchangeOrderID: po.ID,
		ClientID:        req.ClientID,
		Symbol:          req.Symbol,
		Side:            req.Side,
		Status:          common.StatusFilled,
		Qty:             req.Qty,
		ExecutedQty:     req.Qty,
		AvgPrice:        price,
		Commission:      fee,
	}, nil
}

// CancelOrder always fails: paper orders fill immediately.
func (d *DryRunGateway) CancelOrder(_ context.Context, symbol, exchangeOrderID string) error {
	return &common.VenueRejection{Op: "dry-run cancel", Code: 80018,
		Message: fmt.Sprintf("order %s on %s already filled", exchangeOrderID, symbol)}
}

// Orders returns the simulated orders so far.
func (d *DryRunGateway) Orders() []PaperOrder {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]PaperOrder(nil), d.orders...)
}

// Fees is the total simulated commission.
func (d *DryRunGateway) Fees() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fees
}
