package ratio

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"xbrl_crawler/pkg/core/config"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func simpleFormulas() *config.RatioFormulas {
	return &config.RatioFormulas{Ratios: []config.RatioFormula{
		{
			Name:       "current_ratio",
			Category:   "liquidity",
			Method:     "simple",
			Expression: "current_assets / current_liabilities",
		},
	}}
}

func TestCurrentRatio(t *testing.T) {
	calc := NewCalculator(simpleFormulas(), nil)
	facts := map[string]decimal.Decimal{
		"current_assets":      dec("500"),
		"current_liabilities": dec("250"),
	}

	computed, skipped, err := calc.Calculate(uuid.New(), facts)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(skipped) != 0 {
		t.Fatalf("unexpected skips: %+v", skipped)
	}
	if len(computed) != 1 {
		t.Fatalf("expected 1 ratio, got %d", len(computed))
	}

	r := computed[0]
	if !r.Value.Equal(dec("2.00")) {
		t.Errorf("current ratio = %s, want 2.00", r.Value)
	}
	if r.Category != CategoryLiquidity {
		t.Errorf("category = %s, want liquidity", r.Category)
	}
	if !r.Inputs["current_assets"].Equal(dec("500")) {
		t.Errorf("input facts not recorded: %+v", r.Inputs)
	}
}

func TestMissingInputSkipsOnlyThatRatio(t *testing.T) {
	formulas := &config.RatioFormulas{Ratios: []config.RatioFormula{
		{Name: "current_ratio", Category: "liquidity", Method: "simple",
			Expression: "current_assets / current_liabilities"},
		{Name: "debt_to_equity", Category: "leverage", Method: "simple",
			Expression: "total_debt / total_equity"},
	}}
	calc := NewCalculator(formulas, nil)
	facts := map[string]decimal.Decimal{
		"current_assets":      dec("500"),
		"current_liabilities": dec("250"),
	}

	computed, skipped, err := calc.Calculate(uuid.New(), facts)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(computed) != 1 || computed[0].Name != "current_ratio" {
		t.Errorf("expected current_ratio to compute, got %+v", computed)
	}
	if len(skipped) != 1 || skipped[0].Name != "debt_to_equity" {
		t.Fatalf("expected debt_to_equity to skip, got %+v", skipped)
	}
	if skipped[0].Reason == "" {
		t.Error("skip must carry a reason")
	}
}

func TestDivisionByZeroSkips(t *testing.T) {
	calc := NewCalculator(simpleFormulas(), nil)
	facts := map[string]decimal.Decimal{
		"current_assets":      dec("500"),
		"current_liabilities": dec("0"),
	}

	computed, skipped, err := calc.Calculate(uuid.New(), facts)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(computed) != 0 || len(skipped) != 1 {
		t.Fatalf("expected division by zero to skip, got %+v / %+v", computed, skipped)
	}
}

func TestWeightedAverage(t *testing.T) {
	formulas := &config.RatioFormulas{Ratios: []config.RatioFormula{
		{Name: "blended_margin", Category: "profitability", Method: "weighted_average",
			Inputs: []config.RatioInput{
				{Concept: "margin_a", Weight: 3},
				{Concept: "margin_b", Weight: 1},
			}},
	}}
	calc := NewCalculator(formulas, nil)
	facts := map[string]decimal.Decimal{
		"margin_a": dec("0.10"),
		"margin_b": dec("0.30"),
	}

	computed, _, err := calc.Calculate(uuid.New(), facts)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	// (0.10*3 + 0.30*1) / 4 = 0.15
	if !computed[0].Value.Equal(dec("0.15")) {
		t.Errorf("weighted average = %s, want 0.15", computed[0].Value)
	}
}

func TestGeometricMean(t *testing.T) {
	formulas := &config.RatioFormulas{Ratios: []config.RatioFormula{
		{Name: "avg_growth", Category: "growth", Method: "geometric_mean",
			Inputs: []config.RatioInput{
				{Concept: "growth_y1"},
				{Concept: "growth_y2"},
			}},
	}}
	calc := NewCalculator(formulas, nil)
	facts := map[string]decimal.Decimal{
		"growth_y1": dec("4"),
		"growth_y2": dec("9"),
	}

	computed, _, err := calc.Calculate(uuid.New(), facts)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	// sqrt(4*9) = 6
	if !computed[0].Value.Equal(dec("6")) {
		t.Errorf("geometric mean = %s, want 6", computed[0].Value)
	}
}

func TestGeometricMeanRejectsNonPositive(t *testing.T) {
	formulas := &config.RatioFormulas{Ratios: []config.RatioFormula{
		{Name: "avg_growth", Category: "growth", Method: "geometric_mean",
			Inputs: []config.RatioInput{{Concept: "g1"}, {Concept: "g2"}}},
	}}
	calc := NewCalculator(formulas, nil)
	facts := map[string]decimal.Decimal{"g1": dec("-1"), "g2": dec("4")}

	computed, skipped, err := calc.Calculate(uuid.New(), facts)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(computed) != 0 || len(skipped) != 1 {
		t.Errorf("negative input should skip geometric mean: %+v / %+v", computed, skipped)
	}
}

func TestMedian(t *testing.T) {
	odd := &config.RatioFormulas{Ratios: []config.RatioFormula{
		{Name: "median_margin", Category: "profitability", Method: "median",
			Inputs: []config.RatioInput{
				{Concept: "m1"}, {Concept: "m2"}, {Concept: "m3"},
			}},
	}}
	calc := NewCalculator(odd, nil)
	facts := map[string]decimal.Decimal{
		"m1": dec("0.9"), "m2": dec("0.1"), "m3": dec("0.5"),
	}
	computed, _, err := calc.Calculate(uuid.New(), facts)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !computed[0].Value.Equal(dec("0.5")) {
		t.Errorf("odd median = %s, want 0.5", computed[0].Value)
	}

	even := &config.RatioFormulas{Ratios: []config.RatioFormula{
		{Name: "median_margin", Category: "profitability", Method: "median",
			Inputs: []config.RatioInput{
				{Concept: "m1"}, {Concept: "m2"}, {Concept: "m3"}, {Concept: "m4"},
			}},
	}}
	calc = NewCalculator(even, nil)
	facts["m4"] = dec("0.7")
	computed, _, err = calc.Calculate(uuid.New(), facts)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !computed[0].Value.Equal(dec("0.6")) {
		t.Errorf("even median = %s, want 0.6", computed[0].Value)
	}
}

func TestBenchmarkAssessment(t *testing.T) {
	benchmarks := &config.Benchmarks{Benchmarks: []config.Benchmark{
		{Ratio: "current_ratio", Low: 1.2, High: 3.0},
	}}
	calc := NewCalculator(simpleFormulas(), benchmarks)

	cases := []struct {
		liabilities string
		want        BenchmarkPosition
	}{
		{"250", WithinRange}, // 2.0
		{"500", BelowRange},  // 1.0
		{"100", AboveRange},  // 5.0
	}
	for _, tc := range cases {
		facts := map[string]decimal.Decimal{
			"current_assets":      dec("500"),
			"current_liabilities": dec(tc.liabilities),
		}
		computed, _, err := calc.Calculate(uuid.New(), facts)
		if err != nil {
			t.Fatalf("calculate: %v", err)
		}
		b := computed[0].Benchmark
		if b == nil || b.Position != tc.want {
			t.Errorf("liabilities=%s: benchmark = %+v, want %s", tc.liabilities, b, tc.want)
		}
	}
}

func TestExpressionArithmetic(t *testing.T) {
	values := map[string]decimal.Decimal{
		"a": dec("10"), "b": dec("4"), "c": dec("2"),
	}
	cases := map[string]string{
		"a + b * c":     "18",
		"(a + b) * c":   "28",
		"a - b - c":     "4",
		"a / b / c":     "1.25",
		"-a + b":        "-6",
		"a * 0.5":       "5",
		"(a - b) / (c)": "3",
	}
	for expr, want := range cases {
		got, err := evalExpression(expr, values)
		if err != nil {
			t.Errorf("eval %q: %v", expr, err)
			continue
		}
		if !got.Equal(dec(want)) {
			t.Errorf("eval %q = %s, want %s", expr, got, want)
		}
	}

	if _, err := evalExpression("a +", values); err == nil {
		t.Error("dangling operator should fail")
	}
	if _, err := evalExpression("(a", values); err == nil {
		t.Error("unclosed parenthesis should fail")
	}
}

func TestEmptyConfigurationIsError(t *testing.T) {
	calc := NewCalculator(&config.RatioFormulas{}, nil)
	if _, _, err := calc.Calculate(uuid.New(), nil); err == nil {
		t.Fatal("expected error for empty formula configuration")
	}
}
