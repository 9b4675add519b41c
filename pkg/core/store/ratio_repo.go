package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"xbrl_crawler/pkg/core/ratio"
)

// RatioRepo persists calculated ratios. Identity is (filing_id, name, method):
// recomputing a filing's ratios overwrites the previous values.
//
// Schema assumption:
// CREATE TABLE IF NOT EXISTS calculated_ratios (
//   id UUID NOT NULL,
//   filing_id UUID NOT NULL,
//   name TEXT NOT NULL,
//   category TEXT NOT NULL,
//   method TEXT NOT NULL,
//   value NUMERIC NOT NULL,
//   inputs JSONB NOT NULL DEFAULT '{}',
//   benchmark JSONB,
//   computed_at TIMESTAMPTZ NOT NULL,
//   PRIMARY KEY (filing_id, name, method)
// );
type RatioRepo struct{}

func NewRatioRepo() *RatioRepo {
	return &RatioRepo{}
}

// SaveRatios upserts a filing's computed ratios.
func (r *RatioRepo) SaveRatios(ctx context.Context, ratios []ratio.CalculatedRatio) error {
	pool := GetPool()
	if pool == nil {
		return fmt.Errorf("database pool not initialized")
	}

	query := `
		INSERT INTO calculated_ratios
			(id, filing_id, name, category, method, value, inputs, benchmark, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (filing_id, name, method)
		DO UPDATE SET
			id = EXCLUDED.id,
			category = EXCLUDED.category,
			value = EXCLUDED.value,
			inputs = EXCLUDED.inputs,
			benchmark = EXCLUDED.benchmark,
			computed_at = EXCLUDED.computed_at`

	for _, cr := range ratios {
		inputsJSON, err := json.Marshal(cr.Inputs)
		if err != nil {
			return fmt.Errorf("marshal inputs for ratio %s: %w", cr.Name, err)
		}
		var benchmarkJSON []byte
		if cr.Benchmark != nil {
			benchmarkJSON, err = json.Marshal(cr.Benchmark)
			if err != nil {
				return fmt.Errorf("marshal benchmark for ratio %s: %w", cr.Name, err)
			}
		}
		_, err = pool.Exec(ctx, query,
			cr.ID, cr.FilingID, cr.Name, cr.Category, cr.Method,
			cr.Value, inputsJSON, benchmarkJSON, cr.ComputedAt)
		if err != nil {
			return fmt.Errorf("save ratio %s for filing %s: %w", cr.Name, cr.FilingID, err)
		}
	}
	return nil
}

// ListByFiling returns a filing's ratios.
func (r *RatioRepo) ListByFiling(ctx context.Context, filingID uuid.UUID) ([]ratio.CalculatedRatio, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	rows, err := pool.Query(ctx, `
		SELECT id, filing_id, name, category, method, value, inputs, benchmark, computed_at
		FROM calculated_ratios WHERE filing_id = $1 ORDER BY name`, filingID)
	if err != nil {
		return nil, fmt.Errorf("list ratios for filing %s: %w", filingID, err)
	}
	defer rows.Close()

	var out []ratio.CalculatedRatio
	for rows.Next() {
		var cr ratio.CalculatedRatio
		var inputsJSON, benchmarkJSON []byte
		if err := rows.Scan(&cr.ID, &cr.FilingID, &cr.Name, &cr.Category, &cr.Method,
			&cr.Value, &inputsJSON, &benchmarkJSON, &cr.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan ratio: %w", err)
		}
		if len(inputsJSON) > 0 {
			if err := json.Unmarshal(inputsJSON, &cr.Inputs); err != nil {
				return nil, fmt.Errorf("unmarshal inputs for ratio %s: %w", cr.Name, err)
			}
		}
		if len(benchmarkJSON) > 0 {
			cr.Benchmark = &ratio.BenchmarkAssessment{}
			if err := json.Unmarshal(benchmarkJSON, cr.Benchmark); err != nil {
				return nil, fmt.Errorf("unmarshal benchmark for ratio %s: %w", cr.Name, err)
			}
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}
