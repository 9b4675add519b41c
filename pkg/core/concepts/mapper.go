// Package concepts links raw XBRL facts to standardized internal concepts and
// coerces their string values into typed ones. Facts whose concept has no
// mapping pass through unmapped so nothing reported is silently dropped.
package concepts

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"xbrl_crawler/pkg/core/config"
	"xbrl_crawler/pkg/core/xbrl"
)

// DataType enumerates the value types facts coerce to.
type DataType string

const (
	TypeMonetary DataType = "monetary"
	TypeShares   DataType = "shares"
	TypeString   DataType = "string"
	TypeDecimal  DataType = "decimal"
	TypeInteger  DataType = "integer"
	TypeBoolean  DataType = "boolean"
	TypeDate     DataType = "date"
	TypeTime     DataType = "time"
)

// ExtractedFact is one (concept, context, unit, value) tuple keyed to the
// filing it came from, after concept mapping.
type ExtractedFact struct {
	ID              uuid.UUID        `json:"id"`
	FilingID        uuid.UUID        `json:"filing_id"`
	Concept         string           `json:"concept"`
	StandardConcept string           `json:"standard_concept,omitempty"`
	ContextRef      string           `json:"context_ref"`
	UnitRef         string           `json:"unit_ref,omitempty"`
	Value           string           `json:"value"`
	NumericValue    *decimal.Decimal `json:"numeric_value,omitempty"`
	DataType        DataType         `json:"data_type"`
}

// Mapper resolves raw concepts against the configured mapping table.
type Mapper struct {
	byRaw map[string]config.ConceptMapping
}

// NewMapper builds a mapper from the concept-mapping config.
func NewMapper(cfg *config.ConceptMappings) *Mapper {
	byRaw := make(map[string]config.ConceptMapping, len(cfg.Mappings))
	for _, m := range cfg.Mappings {
		byRaw[m.Raw] = m
	}
	return &Mapper{byRaw: byRaw}
}

// MapFacts maps every parsed fact for one filing. Numeric coercion failures
// leave NumericValue nil; they do not fail the batch.
func (m *Mapper) MapFacts(filingID uuid.UUID, facts []xbrl.Fact) []ExtractedFact {
	out := make([]ExtractedFact, 0, len(facts))
	for _, f := range facts {
		out = append(out, m.mapFact(filingID, f))
	}
	return out
}

func (m *Mapper) mapFact(filingID uuid.UUID, f xbrl.Fact) ExtractedFact {
	fact := ExtractedFact{
		ID:         uuid.New(),
		FilingID:   filingID,
		Concept:    f.Concept,
		ContextRef: f.ContextRef,
		UnitRef:    f.UnitRef,
		Value:      f.Value,
		DataType:   TypeString,
	}

	mapping, ok := m.byRaw[f.Concept]
	if ok {
		fact.StandardConcept = mapping.Standard
		fact.DataType = DataType(mapping.DataType)
	} else if f.UnitRef != "" {
		// Unmapped but unit-bearing: treat as a plain decimal quantity.
		fact.DataType = TypeDecimal
	}

	if isNumeric(fact.DataType) {
		if v, err := CoerceNumeric(f.Value); err == nil {
			fact.NumericValue = &v
		}
	}

	return fact
}

// StandardValues collapses mapped facts into a standard-concept → value table
// for the ratio calculator. When the same standard concept appears in several
// contexts the first occurrence wins; period selection happens upstream.
func StandardValues(facts []ExtractedFact) map[string]decimal.Decimal {
	values := make(map[string]decimal.Decimal)
	for _, f := range facts {
		if f.StandardConcept == "" || f.NumericValue == nil {
			continue
		}
		if _, seen := values[f.StandardConcept]; !seen {
			values[f.StandardConcept] = *f.NumericValue
		}
	}
	return values
}

func isNumeric(dt DataType) bool {
	switch dt {
	case TypeMonetary, TypeShares, TypeDecimal, TypeInteger:
		return true
	}
	return false
}

// CoerceNumeric parses a reported numeric value into a decimal. The XBRL
// decimals attribute states precision, not scale, so the reported value is
// already the full magnitude and is stored unscaled; the attribute stays on
// the parsed fact for consumers that need it.
func CoerceNumeric(value string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(value, ",", ""))
	if cleaned == "" || cleaned == "-" || cleaned == "—" {
		return decimal.Decimal{}, fmt.Errorf("empty numeric value")
	}
	// Parenthesized negatives appear in inline XBRL text.
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		cleaned = "-" + cleaned[1:len(cleaned)-1]
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse numeric value %q: %w", value, err)
	}
	return d, nil
}

// CoerceValue converts a raw string to the typed representation for dt.
// Monetary, shares, decimal and integer values come back as decimal.Decimal;
// integer additionally requires an integral value.
func CoerceValue(value string, dt DataType) (any, error) {
	switch dt {
	case TypeMonetary, TypeShares, TypeDecimal:
		return CoerceNumeric(value)
	case TypeInteger:
		d, err := CoerceNumeric(value)
		if err != nil {
			return nil, err
		}
		if !d.IsInteger() {
			return nil, fmt.Errorf("value %q is not an integer", value)
		}
		return d, nil
	case TypeBoolean:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return nil, fmt.Errorf("value %q is not a boolean", value)
	case TypeDate:
		t, err := time.Parse("2006-01-02", strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", value, err)
		}
		return t, nil
	case TypeTime:
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("parse time %q: %w", value, err)
		}
		return t, nil
	default:
		return value, nil
	}
}
