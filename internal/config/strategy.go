package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/aristath/allocation-engine/internal/domain"
	"gopkg.in/yaml.v3"
)

// Rebalance cadences understood by the optimizer.
const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// Cluster linkages for hierarchical risk parity.
const (
	LinkageSingle   = "single"
	LinkageComplete = "complete"
	LinkageAverage  = "average"
)

// StrategyConfig holds every tunable of the weighting strategy.
// It is passed by value and never mutated by the engine.
type StrategyConfig struct {
	// Blend coefficients
	MomentumWeight    float64 `yaml:"momentum_weight" json:"momentum_weight"`
	MarketCapWeight   float64 `yaml:"market_cap_weight" json:"market_cap_weight"`
	RiskParityWeight  float64 `yaml:"risk_parity_weight" json:"risk_parity_weight"`
	MinVarianceWeight float64 `yaml:"min_variance_weight" json:"min_variance_weight"`
	MaxSharpeWeight   float64 `yaml:"max_sharpe_weight" json:"max_sharpe_weight"`
	HRPWeight         float64 `yaml:"hrp_weight" json:"hrp_weight"`

	// Data cleaning
	MinPrice            float64 `yaml:"min_price" json:"min_price"`
	MaxDailyReturn      float64 `yaml:"max_daily_return" json:"max_daily_return"`
	MinDailyReturn      float64 `yaml:"min_daily_return" json:"min_daily_return"`
	MaxForwardFillDays  int     `yaml:"max_forward_fill_days" json:"max_forward_fill_days"`
	OutlierStdThreshold float64 `yaml:"outlier_std_threshold" json:"outlier_std_threshold"`
	MinHistoryRows      int     `yaml:"min_history_rows" json:"min_history_rows"`
	MaxNullPct          float64 `yaml:"max_null_pct" json:"max_null_pct"`

	// Strategy parameters
	RebalanceFrequency string  `yaml:"rebalance_frequency" json:"rebalance_frequency"`
	MomentumLookback   int     `yaml:"momentum_lookback" json:"momentum_lookback"`
	MomentumThreshold  float64 `yaml:"momentum_threshold" json:"momentum_threshold"`
	RiskLookback       int     `yaml:"risk_lookback" json:"risk_lookback"`
	HRPLinkage         string  `yaml:"hrp_linkage" json:"hrp_linkage"`

	// Constraints
	MinWeight    float64 `yaml:"min_weight" json:"min_weight"`
	MaxWeight    float64 `yaml:"max_weight" json:"max_weight"`
	MaxPositions int     `yaml:"max_positions" json:"max_positions"`

	// Rebalancing
	DriftThreshold      float64 `yaml:"drift_threshold" json:"drift_threshold"`
	MinRebalanceDays    int     `yaml:"min_rebalance_days" json:"min_rebalance_days"`
	TransactionCostRate float64 `yaml:"transaction_cost_rate" json:"transaction_cost_rate"`

	// Risk metrics
	RiskFreeRate    float64 `yaml:"risk_free_rate" json:"risk_free_rate"`
	ConfidenceLevel float64 `yaml:"confidence_level" json:"confidence_level"`
}

// DefaultStrategyConfig returns the documented defaults.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		MomentumWeight:   0.4,
		MarketCapWeight:  0.3,
		RiskParityWeight: 0.3,

		MinPrice:            0.01,
		MaxDailyReturn:      0.5,
		MinDailyReturn:      -0.5,
		MaxForwardFillDays:  5,
		OutlierStdThreshold: 3.0,
		MinHistoryRows:      2,
		MaxNullPct:          0.5,

		RebalanceFrequency: FrequencyWeekly,
		MomentumLookback:   20,
		MomentumThreshold:  0.0,
		RiskLookback:       60,
		HRPLinkage:         LinkageSingle,

		MinWeight:    0.01,
		MaxWeight:    0.4,
		MaxPositions: 20,

		DriftThreshold:      0.05,
		MinRebalanceDays:    0,
		TransactionCostRate: 0.001,

		RiskFreeRate:    0.02,
		ConfidenceLevel: 0.95,
	}
}

// LoadStrategyConfig reads a YAML file over the defaults, then applies
// STRATEGY_* environment overrides. An empty path skips the file.
func LoadStrategyConfig(path string) (StrategyConfig, error) {
	cfg := DefaultStrategyConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read strategy config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse strategy config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides every field from its STRATEGY_<YAML KEY> variable.
func (c *StrategyConfig) applyEnv() {
	c.MomentumWeight = getEnvAsFloat("STRATEGY_MOMENTUM_WEIGHT", c.MomentumWeight)
	c.MarketCapWeight = getEnvAsFloat("STRATEGY_MARKET_CAP_WEIGHT", c.MarketCapWeight)
	c.RiskParityWeight = getEnvAsFloat("STRATEGY_RISK_PARITY_WEIGHT", c.RiskParityWeight)
	c.MinVarianceWeight = getEnvAsFloat("STRATEGY_MIN_VARIANCE_WEIGHT", c.MinVarianceWeight)
	c.MaxSharpeWeight = getEnvAsFloat("STRATEGY_MAX_SHARPE_WEIGHT", c.MaxSharpeWeight)
	c.HRPWeight = getEnvAsFloat("STRATEGY_HRP_WEIGHT", c.HRPWeight)

	c.MinPrice = getEnvAsFloat("STRATEGY_MIN_PRICE", c.MinPrice)
	c.MaxDailyReturn = getEnvAsFloat("STRATEGY_MAX_DAILY_RETURN", c.MaxDailyReturn)
	c.MinDailyReturn = getEnvAsFloat("STRATEGY_MIN_DAILY_RETURN", c.MinDailyReturn)
	c.MaxForwardFillDays = getEnvAsInt("STRATEGY_MAX_FORWARD_FILL_DAYS", c.MaxForwardFillDays)
	c.OutlierStdThreshold = getEnvAsFloat("STRATEGY_OUTLIER_STD_THRESHOLD", c.OutlierStdThreshold)
	c.MinHistoryRows = getEnvAsInt("STRATEGY_MIN_HISTORY_ROWS", c.MinHistoryRows)
	c.MaxNullPct = getEnvAsFloat("STRATEGY_MAX_NULL_PCT", c.MaxNullPct)

	c.RebalanceFrequency = getEnv("STRATEGY_REBALANCE_FREQUENCY", c.RebalanceFrequency)
	c.MomentumLookback = getEnvAsInt("STRATEGY_MOMENTUM_LOOKBACK", c.MomentumLookback)
	c.MomentumThreshold = getEnvAsFloat("STRATEGY_MOMENTUM_THRESHOLD", c.MomentumThreshold)
	c.RiskLookback = getEnvAsInt("STRATEGY_RISK_LOOKBACK", c.RiskLookback)
	c.HRPLinkage = getEnv("STRATEGY_HRP_LINKAGE", c.HRPLinkage)

	c.MinWeight = getEnvAsFloat("STRATEGY_MIN_WEIGHT", c.MinWeight)
	c.MaxWeight = getEnvAsFloat("STRATEGY_MAX_WEIGHT", c.MaxWeight)
	c.MaxPositions = getEnvAsInt("STRATEGY_MAX_POSITIONS", c.MaxPositions)

	c.DriftThreshold = getEnvAsFloat("STRATEGY_DRIFT_THRESHOLD", c.DriftThreshold)
	c.MinRebalanceDays = getEnvAsInt("STRATEGY_MIN_REBALANCE_DAYS", c.MinRebalanceDays)
	c.TransactionCostRate = getEnvAsFloat("STRATEGY_TRANSACTION_COST_RATE", c.TransactionCostRate)

	c.RiskFreeRate = getEnvAsFloat("STRATEGY_RISK_FREE_RATE", c.RiskFreeRate)
	c.ConfidenceLevel = getEnvAsFloat("STRATEGY_CONFIDENCE_LEVEL", c.ConfidenceLevel)
}

// BlendTotal sums the blend coefficients.
func (c StrategyConfig) BlendTotal() float64 {
	return c.MomentumWeight + c.MarketCapWeight + c.RiskParityWeight + c.MinVarianceWeight + c.MaxSharpeWeight + c.HRPWeight
}

// Validate checks ranges and cross-field consistency.
func (c StrategyConfig) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	blends := []struct {
		name  string
		value float64
	}{
		{"momentum_weight", c.MomentumWeight},
		{"market_cap_weight", c.MarketCapWeight},
		{"risk_parity_weight", c.RiskParityWeight},
		{"min_variance_weight", c.MinVarianceWeight},
		{"max_sharpe_weight", c.MaxSharpeWeight},
		{"hrp_weight", c.HRPWeight},
	}
	for _, b := range blends {
		check(b.value >= 0 && !math.IsNaN(b.value), "%s must be non-negative, got %v", b.name, b.value)
	}
	check(c.BlendTotal() > 0, "at least one blend weight must be positive")

	check(c.MinPrice >= 0, "min_price must be non-negative, got %v", c.MinPrice)
	check(c.MaxDailyReturn > c.MinDailyReturn, "max_daily_return (%v) must exceed min_daily_return (%v)", c.MaxDailyReturn, c.MinDailyReturn)
	check(c.MaxForwardFillDays >= 0, "max_forward_fill_days must be non-negative, got %d", c.MaxForwardFillDays)
	check(c.OutlierStdThreshold > 0, "outlier_std_threshold must be positive, got %v", c.OutlierStdThreshold)
	check(c.MinHistoryRows >= 1, "min_history_rows must be at least 1, got %d", c.MinHistoryRows)
	check(c.MaxNullPct >= 0 && c.MaxNullPct <= 1, "max_null_pct must be in [0,1], got %v", c.MaxNullPct)

	switch c.RebalanceFrequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		errs = append(errs, fmt.Errorf("rebalance_frequency must be daily, weekly or monthly, got %q", c.RebalanceFrequency))
	}
	check(c.MomentumLookback >= 1, "momentum_lookback must be at least 1, got %d", c.MomentumLookback)
	check(c.RiskLookback >= 2, "risk_lookback must be at least 2, got %d", c.RiskLookback)
	switch c.HRPLinkage {
	case LinkageSingle, LinkageComplete, LinkageAverage:
	default:
		errs = append(errs, fmt.Errorf("hrp_linkage must be single, complete or average, got %q", c.HRPLinkage))
	}

	check(c.MinWeight >= 0 && c.MinWeight <= 1, "min_weight must be in [0,1], got %v", c.MinWeight)
	check(c.MaxWeight > 0 && c.MaxWeight <= 1, "max_weight must be in (0,1], got %v", c.MaxWeight)
	check(c.MinWeight <= c.MaxWeight, "min_weight (%v) must not exceed max_weight (%v)", c.MinWeight, c.MaxWeight)
	check(c.MaxPositions >= 1, "max_positions must be at least 1, got %d", c.MaxPositions)

	check(c.DriftThreshold >= 0, "drift_threshold must be non-negative, got %v", c.DriftThreshold)
	check(c.MinRebalanceDays >= 0, "min_rebalance_days must be non-negative, got %d", c.MinRebalanceDays)
	check(c.TransactionCostRate >= 0 && c.TransactionCostRate < 1, "transaction_cost_rate must be in [0,1), got %v", c.TransactionCostRate)

	check(c.ConfidenceLevel > 0 && c.ConfidenceLevel < 1, "confidence_level must be in (0,1), got %v", c.ConfidenceLevel)

	if len(errs) > 0 {
		return fmt.Errorf("%w: invalid strategy config: %w", domain.ErrInvalidInput, errors.Join(errs...))
	}
	return nil
}
