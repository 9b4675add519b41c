// Package ratio computes configured financial ratios from standardized facts
// using fixed-point decimal arithmetic.
package ratio

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Category groups ratios by what they measure.
type Category string

const (
	CategoryProfitability Category = "profitability"
	CategoryLiquidity     Category = "liquidity"
	CategoryLeverage      Category = "leverage"
	CategoryEfficiency    Category = "efficiency"
	CategoryMarket        Category = "market"
	CategoryGrowth        Category = "growth"
)

// Method selects how a ratio's inputs combine.
type Method string

const (
	MethodSimple          Method = "simple"
	MethodWeightedAverage Method = "weighted_average"
	MethodGeometricMean   Method = "geometric_mean"
	MethodMedian          Method = "median"
)

// BenchmarkPosition locates a value relative to its configured healthy range.
type BenchmarkPosition string

const (
	BelowRange  BenchmarkPosition = "below_range"
	WithinRange BenchmarkPosition = "within_range"
	AboveRange  BenchmarkPosition = "above_range"
)

// BenchmarkAssessment annotates a computed ratio against its benchmark.
type BenchmarkAssessment struct {
	Low      decimal.Decimal   `json:"low"`
	High     decimal.Decimal   `json:"high"`
	Position BenchmarkPosition `json:"position"`
}

// CalculatedRatio is one computed ratio for one filing. Identity is
// (filing, name, method); recomputation overwrites.
type CalculatedRatio struct {
	ID       uuid.UUID       `json:"id"`
	FilingID uuid.UUID       `json:"filing_id"`
	Name     string          `json:"name"`
	Category Category        `json:"category"`
	Method   Method          `json:"method"`
	Value    decimal.Decimal `json:"value"`
	// Inputs records the fact values that fed the computation.
	Inputs     map[string]decimal.Decimal `json:"inputs"`
	Benchmark  *BenchmarkAssessment       `json:"benchmark,omitempty"`
	ComputedAt time.Time                  `json:"computed_at"`
}

// SkippedRatio names a ratio that could not be computed and why. Skips are
// outcomes, not errors: other ratios in the batch still compute.
type SkippedRatio struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}
