// Package performance produces flat metric snapshots of a portfolio value
// series for persistence and reporting.
package performance

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// snapshotNamespace scopes content-derived snapshot IDs
var snapshotNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("allocation-engine/performance-snapshot"))

// Snapshot is an immutable record of risk and return metrics over a window.
// Benchmark fields are zero unless HasBenchmark; flow fields are zero unless
// HasCashFlows.
type Snapshot struct {
	ID           string    `json:"id" msgpack:"id"`
	Start        time.Time `json:"start" msgpack:"start"`
	End          time.Time `json:"end" msgpack:"end"`
	Observations int       `json:"observations" msgpack:"observations"`

	TotalReturn      float64 `json:"total_return" msgpack:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return" msgpack:"annualized_return"`
	CAGR             float64 `json:"cagr" msgpack:"cagr"`
	YTDReturn        float64 `json:"ytd_return" msgpack:"ytd_return"`
	Volatility       float64 `json:"volatility" msgpack:"volatility"`

	Sharpe  float64 `json:"sharpe" msgpack:"sharpe"`
	Sortino float64 `json:"sortino" msgpack:"sortino"`
	Calmar  float64 `json:"calmar" msgpack:"calmar"`

	MaxDrawdown       float64   `json:"max_drawdown" msgpack:"max_drawdown"`
	DrawdownPeak      time.Time `json:"drawdown_peak" msgpack:"drawdown_peak"`
	DrawdownTrough    time.Time `json:"drawdown_trough" msgpack:"drawdown_trough"`
	VaR               float64   `json:"var" msgpack:"var"`
	ParametricVaR     float64   `json:"parametric_var" msgpack:"parametric_var"`
	CVaR              float64   `json:"cvar" msgpack:"cvar"`
	ConfidenceLevel   float64   `json:"confidence_level" msgpack:"confidence_level"`
	Skewness          float64   `json:"skewness" msgpack:"skewness"`
	Kurtosis          float64   `json:"kurtosis" msgpack:"kurtosis"`
	BestPeriod        float64   `json:"best_period" msgpack:"best_period"`
	WorstPeriod       float64   `json:"worst_period" msgpack:"worst_period"`
	PositivePeriodPct float64   `json:"positive_period_pct" msgpack:"positive_period_pct"`

	HasBenchmark     bool    `json:"has_benchmark" msgpack:"has_benchmark"`
	BenchmarkReturn  float64 `json:"benchmark_return,omitempty" msgpack:"benchmark_return"`
	ExcessReturn     float64 `json:"excess_return,omitempty" msgpack:"excess_return"`
	Beta             float64 `json:"beta,omitempty" msgpack:"beta"`
	Alpha            float64 `json:"alpha,omitempty" msgpack:"alpha"`
	TrackingError    float64 `json:"tracking_error,omitempty" msgpack:"tracking_error"`
	InformationRatio float64 `json:"information_ratio,omitempty" msgpack:"information_ratio"`
	Correlation      float64 `json:"correlation,omitempty" msgpack:"correlation"`
	UpCapture        float64 `json:"up_capture,omitempty" msgpack:"up_capture"`
	DownCapture      float64 `json:"down_capture,omitempty" msgpack:"down_capture"`

	HasCashFlows        bool    `json:"has_cash_flows" msgpack:"has_cash_flows"`
	TimeWeightedReturn  float64 `json:"time_weighted_return,omitempty" msgpack:"time_weighted_return"`
	MoneyWeightedReturn float64 `json:"money_weighted_return,omitempty" msgpack:"money_weighted_return"`
	IRRMethod           string  `json:"irr_method,omitempty" msgpack:"irr_method"`
}

// computeID derives the ID from every other field, so equal snapshots share an ID
func (s *Snapshot) computeID() (string, error) {
	content := *s
	content.ID = ""
	data, err := msgpack.Marshal(&content)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot for id: %w", err)
	}
	return uuid.NewSHA1(snapshotNamespace, data).String(), nil
}

// EncodeSnapshot serializes a snapshot with msgpack
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	data, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses a snapshot produced by EncodeSnapshot
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &s, nil
}
