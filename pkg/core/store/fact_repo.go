package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"xbrl_crawler/pkg/core/concepts"
)

// FactRepo persists extracted facts, keyed to their filing.
//
// Schema assumption:
// CREATE TABLE IF NOT EXISTS extracted_facts (
//   id UUID PRIMARY KEY,
//   filing_id UUID NOT NULL,
//   concept TEXT NOT NULL,
//   standard_concept TEXT NOT NULL DEFAULT '',
//   context_ref TEXT NOT NULL DEFAULT '',
//   unit_ref TEXT NOT NULL DEFAULT '',
//   value TEXT NOT NULL,
//   numeric_value NUMERIC,
//   data_type TEXT NOT NULL
// );
// CREATE INDEX IF NOT EXISTS extracted_facts_filing_idx ON extracted_facts (filing_id);
type FactRepo struct{}

func NewFactRepo() *FactRepo {
	return &FactRepo{}
}

// SaveFacts writes a filing's facts in one round trip. Re-processing a
// filing first clears its previous rows so the extraction is idempotent.
func (r *FactRepo) SaveFacts(ctx context.Context, filingID uuid.UUID, facts []concepts.ExtractedFact) error {
	pool := GetPool()
	if pool == nil {
		return fmt.Errorf("database pool not initialized")
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM extracted_facts WHERE filing_id = $1`, filingID)
	for _, f := range facts {
		batch.Queue(`
			INSERT INTO extracted_facts
				(id, filing_id, concept, standard_concept, context_ref, unit_ref, value, numeric_value, data_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			f.ID, f.FilingID, f.Concept, f.StandardConcept, f.ContextRef,
			f.UnitRef, f.Value, f.NumericValue, f.DataType)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i <= len(facts); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("save facts for filing %s: %w", filingID, err)
		}
	}
	return nil
}

// ListByFiling returns a filing's facts in insertion order.
func (r *FactRepo) ListByFiling(ctx context.Context, filingID uuid.UUID) ([]concepts.ExtractedFact, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	rows, err := pool.Query(ctx, `
		SELECT id, filing_id, concept, standard_concept, context_ref, unit_ref, value, numeric_value, data_type
		FROM extracted_facts WHERE filing_id = $1`, filingID)
	if err != nil {
		return nil, fmt.Errorf("list facts for filing %s: %w", filingID, err)
	}
	defer rows.Close()

	var out []concepts.ExtractedFact
	for rows.Next() {
		var f concepts.ExtractedFact
		if err := rows.Scan(&f.ID, &f.FilingID, &f.Concept, &f.StandardConcept,
			&f.ContextRef, &f.UnitRef, &f.Value, &f.NumericValue, &f.DataType); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
