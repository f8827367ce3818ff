package risk

import "fmt"

// Policy holds the pre-trade risk thresholds. All percentages are fractions
// (0.06 = 6%). A Policy is built once per run and read by reference.
type Policy struct {
	// Per-trade limits
	MaxNotionalPerTrade float64 `yaml:"max_notional_per_trade" json:"max_notional_per_trade" env:"RISK_MAX_NOTIONAL_PER_TRADE"`
	MaxPositionRiskPct  float64 `yaml:"max_position_risk_pct" json:"max_position_risk_pct" env:"RISK_MAX_POSITION_RISK_PCT"`

	// Exposure limits
	MaxSymbolExposurePct float64 `yaml:"max_symbol_exposure_pct" json:"max_symbol_exposure_pct" env:"RISK_MAX_SYMBOL_EXPOSURE_PCT"`
	MaxPortfolioHeatPct  float64 `yaml:"max_portfolio_heat_pct" json:"max_portfolio_heat_pct" env:"RISK_MAX_PORTFOLIO_HEAT_PCT"`
	MaxPositions         int     `yaml:"max_positions" json:"max_positions" env:"RISK_MAX_POSITIONS"`

	// Circuit breakers (daily loss tiers)
	DailyLossCapPct       float64 `yaml:"daily_loss_cap_pct" json:"daily_loss_cap_pct" env:"RISK_DAILY_LOSS_CAP_PCT"`
	DailyLossTierWarnPct  float64 `yaml:"daily_loss_tier_warn_pct" json:"daily_loss_tier_warn_pct" env:"RISK_DAILY_LOSS_TIER_WARN_PCT"`
	DailyLossTierBlockPct float64 `yaml:"daily_loss_tier_block_pct" json:"daily_loss_tier_block_pct" env:"RISK_DAILY_LOSS_TIER_BLOCK_PCT"`

	// Market quality
	MinPrice        float64 `yaml:"min_price" json:"min_price" env:"RISK_MIN_PRICE"`
	MaxSpreadPct    float64 `yaml:"max_spread_pct" json:"max_spread_pct" env:"RISK_MAX_SPREAD_PCT"`
	AllowAfterHours bool    `yaml:"allow_after_hours" json:"allow_after_hours" env:"RISK_ALLOW_AFTER_HOURS"`

	// Order shaping
	RequireBracket     bool    `yaml:"require_bracket" json:"require_bracket" env:"RISK_REQUIRE_BRACKET"`
	DefaultStopLossPct float64 `yaml:"default_stop_loss_pct" json:"default_stop_loss_pct" env:"RISK_DEFAULT_STOP_LOSS_PCT"`
}

// EquityContext is the caller's snapshot of account risk state at evaluation
// time. It is never mutated here.
type EquityContext struct {
	Equity            float64
	SymbolExposure    float64 // fraction of equity already in the symbol
	DayRealizedPnLPct float64 // fraction of equity, negative on a losing day
	OpenPositions     int
	PortfolioHeatPct  float64
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MaxNotionalPerTrade:   25,
		MaxSymbolExposurePct:  0.4,
		DailyLossCapPct:       0.06,
		MinPrice:              1,
		MaxSpreadPct:          0.03,
		AllowAfterHours:       false,
		MaxPositionRiskPct:    0.02,
		MaxPortfolioHeatPct:   0.10,
		MaxPositions:          5,
		DailyLossTierWarnPct:  0.045,
		DailyLossTierBlockPct: 0.054,
		RequireBracket:        true,
		DefaultStopLossPct:    0.10,
	}
}

// Validate rejects thresholds the engine cannot evaluate sensibly.
func (p Policy) Validate() error {
	fracs := []struct {
		name string
		v    float64
	}{
		{"max_symbol_exposure_pct", p.MaxSymbolExposurePct},
		{"daily_loss_cap_pct", p.DailyLossCapPct},
		{"daily_loss_tier_warn_pct", p.DailyLossTierWarnPct},
		{"daily_loss_tier_block_pct", p.DailyLossTierBlockPct},
		{"max_spread_pct", p.MaxSpreadPct},
		{"max_position_risk_pct", p.MaxPositionRiskPct},
		{"max_portfolio_heat_pct", p.MaxPortfolioHeatPct},
		{"default_stop_loss_pct", p.DefaultStopLossPct},
	}
	for _, f := range fracs {
		if f.v < 0 || f.v > 1 {
			return fmt.Errorf("risk.%s must be between 0 and 1", f.name)
		}
	}
	if p.MaxNotionalPerTrade < 0 {
		return fmt.Errorf("risk.max_notional_per_trade must not be negative")
	}
	if p.MinPrice < 0 {
		return fmt.Errorf("risk.min_price must not be negative")
	}
	if p.MaxPositions < 0 {
		return fmt.Errorf("risk.max_positions must not be negative")
	}
	if p.DailyLossTierWarnPct > p.DailyLossTierBlockPct {
		return fmt.Errorf("risk.daily_loss_tier_warn_pct must not exceed daily_loss_tier_block_pct")
	}
	if p.DailyLossTierBlockPct > p.DailyLossCapPct {
		return fmt.Errorf("risk.daily_loss_tier_block_pct must not exceed daily_loss_cap_pct")
	}
	return nil
}
