package strategy

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"bingx-trading-bot/internal/market"
)

// Config is one strategy entry of the strategies YAML file.
type Config struct {
	ID           string         `yaml:"id"`
	Type         string         `yaml:"type"`
	Symbol       string         `yaml:"symbol"`
	Timeframe    string         `yaml:"timeframe"`
	Enabled      *bool          `yaml:"enabled"`
	MaxPositions int            `yaml:"max_positions"`
	RiskPct      float64        `yaml:"risk_pct"`
	Parameters   map[string]any `yaml:"parameters"`
}

// ConfigFile is the top-level YAML structure.
type ConfigFile struct {
	Strategies []Config `yaml:"strategies"`
}

// LoadConfigs reads and validates the strategies file.
func LoadConfigs(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfigs(data)
}

// ParseConfigs decodes strategies YAML and checks ids and timeframes.
func ParseConfigs(data []byte) ([]Config, error) {
	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse strategies: %w", err)
	}
	seen := make(map[string]bool, len(file.Strategies))
	for i, c := range file.Strategies {
		if c.ID == "" {
			return nil, fmt.Errorf("strategy #%d: missing id", i)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("strategy %s: duplicate id", c.ID)
		}
		seen[c.ID] = true
		if _, err := market.ParseTimeframe(c.Timeframe); err != nil {
			return nil, fmt.Errorf("strategy %s: %w", c.ID, err)
		}
		if c.RiskPct < 0 || c.RiskPct > 100 {
			return nil, fmt.Errorf("strategy %s: risk_pct %v outside [0,100]", c.ID, c.RiskPct)
		}
	}
	return file.Strategies, nil
}

// Build turns a config entry into a registration.
func Build(c Config) (Registration, error) {
	var (
		s   Strategy
		err error
	)
	switch c.Type {
	case "rsi_swing":
		s = NewRSISwing(RSISwingParams{
			Timeframe:     c.Timeframe,
			RSIPeriod:     paramInt(c.Parameters, "rsi_period", 0),
			Overbought:    paramFloat(c.Parameters, "overbought", 0),
			Oversold:      paramFloat(c.Parameters, "oversold", 0),
			SwingLookback: paramInt(c.Parameters, "swing_lookback", 0),
			Recency:       paramInt(c.Parameters, "recency", 0),
			RewardRisk:    paramFloat(c.Parameters, "reward_risk", 0),
		})
	case "ma_cross":
		s, err = NewMACross(MACrossParams{
			Timeframe:  c.Timeframe,
			Fast:       paramInt(c.Parameters, "fast", 0),
			Slow:       paramInt(c.Parameters, "slow", 0),
			ATRPeriod:  paramInt(c.Parameters, "atr_period", 0),
			ATRStop:    paramFloat(c.Parameters, "atr_stop", 0),
			RewardRisk: paramFloat(c.Parameters, "reward_risk", 0),
		})
	default:
		return Registration{}, fmt.Errorf("strategy %s: unknown type %q", c.ID, c.Type)
	}
	if err != nil {
		return Registration{}, fmt.Errorf("strategy %s: %w", c.ID, err)
	}
	enabled := true
	if c.Enabled != nil {
		enabled = *c.Enabled
	}
	return Registration{
		ID:           c.ID,
		Type:         c.Type,
		Symbol:       c.Symbol,
		Timeframe:    c.Timeframe,
		Enabled:      enabled,
		MaxPositions: c.MaxPositions,
		RiskPct:      c.RiskPct,
		Strategy:     s,
	}, nil
}

// BuildAll builds every entry, failing on the first bad one.
func BuildAll(cfgs []Config) ([]Registration, error) {
	out := make([]Registration, 0, len(cfgs))
	for _, c := range cfgs {
		r, err := Build(c)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func paramFloat(p map[string]any, key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func paramInt(p map[string]any, key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
