package ratio

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"xbrl_crawler/pkg/core/config"
)

// resultPrecision is the decimal places computed ratios are rounded to.
const resultPrecision = 6

// Calculator computes configured ratios from a standard-concept value table.
type Calculator struct {
	formulas   []config.RatioFormula
	benchmarks map[string]config.Benchmark
}

// NewCalculator builds a calculator from formula and benchmark config.
// benchmarks may be nil.
func NewCalculator(formulas *config.RatioFormulas, benchmarks *config.Benchmarks) *Calculator {
	byRatio := make(map[string]config.Benchmark)
	if benchmarks != nil {
		for _, b := range benchmarks.Benchmarks {
			byRatio[b.Ratio] = b
		}
	}
	return &Calculator{formulas: formulas.Ratios, benchmarks: byRatio}
}

// Calculate evaluates every configured ratio over facts. A ratio whose
// required inputs are missing is skipped with a reason; a malformed formula
// is likewise a per-ratio skip. Only an empty configuration is an error.
func (c *Calculator) Calculate(filingID uuid.UUID, facts map[string]decimal.Decimal) ([]CalculatedRatio, []SkippedRatio, error) {
	if len(c.formulas) == 0 {
		return nil, nil, fmt.Errorf("no ratio formulas configured")
	}

	var (
		computed []CalculatedRatio
		skipped  []SkippedRatio
	)
	for _, formula := range c.formulas {
		value, inputs, err := c.evaluate(formula, facts)
		if err != nil {
			skipped = append(skipped, SkippedRatio{Name: formula.Name, Reason: err.Error()})
			continue
		}

		r := CalculatedRatio{
			ID:         uuid.New(),
			FilingID:   filingID,
			Name:       formula.Name,
			Category:   Category(formula.Category),
			Method:     Method(formula.Method),
			Value:      value.Round(resultPrecision),
			Inputs:     inputs,
			ComputedAt: time.Now().UTC(),
		}
		if b, ok := c.benchmarks[formula.Name]; ok {
			r.Benchmark = assess(r.Value, b)
		}
		computed = append(computed, r)
	}
	return computed, skipped, nil
}

func (c *Calculator) evaluate(formula config.RatioFormula, facts map[string]decimal.Decimal) (decimal.Decimal, map[string]decimal.Decimal, error) {
	switch Method(formula.Method) {
	case MethodSimple:
		return evalSimple(formula, facts)
	case MethodWeightedAverage:
		return evalWeightedAverage(formula, facts)
	case MethodGeometricMean:
		return evalGeometricMean(formula, facts)
	case MethodMedian:
		return evalMedian(formula, facts)
	default:
		return decimal.Decimal{}, nil, fmt.Errorf("unknown calculation method %q", formula.Method)
	}
}

func evalSimple(formula config.RatioFormula, facts map[string]decimal.Decimal) (decimal.Decimal, map[string]decimal.Decimal, error) {
	if formula.Expression == "" {
		return decimal.Decimal{}, nil, fmt.Errorf("simple ratio has no expression")
	}
	value, err := evalExpression(formula.Expression, facts)
	if err != nil {
		var missing *missingInputError
		if errors.As(err, &missing) {
			return decimal.Decimal{}, nil, err
		}
		return decimal.Decimal{}, nil, fmt.Errorf("evaluate %q: %w", formula.Expression, err)
	}

	inputs := make(map[string]decimal.Decimal)
	for _, name := range identifiers(formula.Expression) {
		inputs[name] = facts[name]
	}
	return value, inputs, nil
}

func evalWeightedAverage(formula config.RatioFormula, facts map[string]decimal.Decimal) (decimal.Decimal, map[string]decimal.Decimal, error) {
	values, inputs, err := gatherInputs(formula, facts)
	if err != nil {
		return decimal.Decimal{}, nil, err
	}

	sum := decimal.Zero
	weightSum := decimal.Zero
	for i, in := range formula.Inputs {
		weight := decimal.NewFromFloat(in.Weight)
		if weight.IsZero() {
			weight = decimal.NewFromInt(1)
		}
		sum = sum.Add(values[i].Mul(weight))
		weightSum = weightSum.Add(weight)
	}
	if weightSum.IsZero() {
		return decimal.Decimal{}, nil, fmt.Errorf("weighted average has zero total weight")
	}
	return sum.Div(weightSum), inputs, nil
}

// evalGeometricMean computes the nth root of the product of the inputs. The
// root itself goes through float64 (decimal has no nth-root primitive) and is
// re-rounded to the result precision.
func evalGeometricMean(formula config.RatioFormula, facts map[string]decimal.Decimal) (decimal.Decimal, map[string]decimal.Decimal, error) {
	values, inputs, err := gatherInputs(formula, facts)
	if err != nil {
		return decimal.Decimal{}, nil, err
	}

	product := decimal.NewFromInt(1)
	for _, v := range values {
		if v.Sign() <= 0 {
			return decimal.Decimal{}, nil, fmt.Errorf("geometric mean requires positive inputs, got %s", v)
		}
		product = product.Mul(v)
	}

	f, _ := product.Float64()
	root := math.Pow(f, 1.0/float64(len(values)))
	return decimal.NewFromFloat(root).Round(resultPrecision), inputs, nil
}

func evalMedian(formula config.RatioFormula, facts map[string]decimal.Decimal) (decimal.Decimal, map[string]decimal.Decimal, error) {
	values, inputs, err := gatherInputs(formula, facts)
	if err != nil {
		return decimal.Decimal{}, nil, err
	}

	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], inputs, nil
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2)), inputs, nil
}

func gatherInputs(formula config.RatioFormula, facts map[string]decimal.Decimal) ([]decimal.Decimal, map[string]decimal.Decimal, error) {
	if len(formula.Inputs) == 0 {
		return nil, nil, fmt.Errorf("ratio has no inputs configured")
	}
	values := make([]decimal.Decimal, 0, len(formula.Inputs))
	inputs := make(map[string]decimal.Decimal, len(formula.Inputs))
	for _, in := range formula.Inputs {
		v, ok := facts[in.Concept]
		if !ok {
			return nil, nil, &missingInputError{name: in.Concept}
		}
		values = append(values, v)
		inputs[in.Concept] = v
	}
	return values, inputs, nil
}

func assess(value decimal.Decimal, b config.Benchmark) *BenchmarkAssessment {
	low := decimal.NewFromFloat(b.Low)
	high := decimal.NewFromFloat(b.High)
	assessment := &BenchmarkAssessment{Low: low, High: high, Position: WithinRange}
	if value.LessThan(low) {
		assessment.Position = BelowRange
	} else if value.GreaterThan(high) {
		assessment.Position = AboveRange
	}
	return assessment
}
