package aggregator

import "bingx-trading-bot/internal/market"

// Series is a fixed-capacity ring of sealed candles, oldest evicted first.
type Series struct {
	buf   []market.Candle
	start int
	size  int
}

// NewSeries allocates a series holding at most capacity candles.
func NewSeries(capacity int) *Series {
	if capacity < 1 {
		capacity = 1
	}
	return &Series{buf: make([]market.Candle, capacity)}
}

// Push appends c, evicting the oldest candle when full.
func (s *Series) Push(c market.Candle) {
	if s.size < len(s.buf) {
		s.buf[(s.start+s.size)%len(s.buf)] = c
		s.size++
		return
	}
	s.buf[s.start] = c
	s.start = (s.start + 1) % len(s.buf)
}

func (s *Series) Len() int { return s.size }

func (s *Series) Cap() int { return len(s.buf) }

// Last returns the newest candle.
func (s *Series) Last() (market.Candle, bool) {
	if s.size == 0 {
		return market.Candle{}, false
	}
	return s.buf[(s.start+s.size-1)%len(s.buf)], true
}

// Tail copies the newest n candles in ascending order.
func (s *Series) Tail(n int) []market.Candle {
	if n > s.size || n < 0 {
		n = s.size
	}
	out := make([]market.Candle, n)
	first := s.size - n
	for i := 0; i < n; i++ {
		out[i] = s.buf[(s.start+first+i)%len(s.buf)]
	}
	return out
}

// Candles copies every candle in ascending order.
func (s *Series) Candles() []market.Candle { return s.Tail(s.size) }
