package market

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is a fixed bucket width such as 1m or 4h.
type Timeframe struct {
	Label    string
	Duration time.Duration
}

var supported = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  72 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

// ParseTimeframe maps a venue interval label to a Timeframe.
func ParseTimeframe(label string) (Timeframe, error) {
	l := strings.TrimSpace(label)
	d, ok := supported[l]
	if !ok {
		return Timeframe{}, fmt.Errorf("unsupported timeframe %q", label)
	}
	return Timeframe{Label: l, Duration: d}, nil
}

// ParseTimeframes parses a list, rejecting duplicates.
func ParseTimeframes(labels []string) ([]Timeframe, error) {
	out := make([]Timeframe, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		tf, err := ParseTimeframe(l)
		if err != nil {
			return nil, err
		}
		if seen[tf.Label] {
			return nil, fmt.Errorf("duplicate timeframe %q", tf.Label)
		}
		seen[tf.Label] = true
		out = append(out, tf)
	}
	return out, nil
}

// Millis is the bucket width in milliseconds.
func (tf Timeframe) Millis() int64 { return tf.Duration.Milliseconds() }

// BucketStart floors t (ms) to the start of its bucket.
func (tf Timeframe) BucketStart(t int64) int64 {
	w := tf.Millis()
	b := t / w * w
	if t < 0 && t%w != 0 {
		b -= w
	}
	return b
}

// Multiple reports whether tf is a whole multiple of base.
func (tf Timeframe) Multiple(base Timeframe) bool {
	return tf.Millis() >= base.Millis() && tf.Millis()%base.Millis() == 0
}

func (tf Timeframe) String() string { return tf.Label }
