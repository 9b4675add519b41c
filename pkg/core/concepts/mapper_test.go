package concepts

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"xbrl_crawler/pkg/core/config"
	"xbrl_crawler/pkg/core/xbrl"
)

func testMapper() *Mapper {
	return NewMapper(&config.ConceptMappings{
		Mappings: []config.ConceptMapping{
			{Raw: "us-gaap:AssetsCurrent", Standard: "current_assets", DataType: "monetary"},
			{Raw: "us-gaap:LiabilitiesCurrent", Standard: "current_liabilities", DataType: "monetary"},
			{Raw: "dei:EntityRegistrantName", Standard: "registrant_name", DataType: "string"},
		},
	})
}

func TestMapFacts(t *testing.T) {
	filingID := uuid.New()
	facts := []xbrl.Fact{
		{Concept: "us-gaap:AssetsCurrent", Value: "500", ContextRef: "c1", UnitRef: "usd"},
		{Concept: "dei:EntityRegistrantName", Value: "Apple Inc.", ContextRef: "c1"},
		{Concept: "us-gaap:SomethingUnmapped", Value: "42", ContextRef: "c1", UnitRef: "usd"},
	}

	mapped := testMapper().MapFacts(filingID, facts)
	if len(mapped) != 3 {
		t.Fatalf("expected 3 mapped facts, got %d", len(mapped))
	}

	assets := mapped[0]
	if assets.StandardConcept != "current_assets" || assets.DataType != TypeMonetary {
		t.Errorf("unexpected mapping %+v", assets)
	}
	if assets.NumericValue == nil || !assets.NumericValue.Equal(decimal.NewFromInt(500)) {
		t.Errorf("numeric value not coerced: %+v", assets.NumericValue)
	}
	if assets.FilingID != filingID {
		t.Error("fact not keyed to its filing")
	}

	name := mapped[1]
	if name.StandardConcept != "registrant_name" || name.NumericValue != nil {
		t.Errorf("string fact should not carry a numeric value: %+v", name)
	}

	// Unmapped but unit-bearing values still coerce.
	unmapped := mapped[2]
	if unmapped.StandardConcept != "" {
		t.Errorf("unmapped concept should stay unmapped: %+v", unmapped)
	}
	if unmapped.NumericValue == nil || !unmapped.NumericValue.Equal(decimal.NewFromInt(42)) {
		t.Errorf("unit-bearing value should coerce: %+v", unmapped.NumericValue)
	}
}

func TestStandardValues(t *testing.T) {
	filingID := uuid.New()
	facts := []xbrl.Fact{
		{Concept: "us-gaap:AssetsCurrent", Value: "500", ContextRef: "c1", UnitRef: "usd"},
		{Concept: "us-gaap:AssetsCurrent", Value: "999", ContextRef: "c2", UnitRef: "usd"},
		{Concept: "us-gaap:LiabilitiesCurrent", Value: "250", ContextRef: "c1", UnitRef: "usd"},
	}

	values := StandardValues(testMapper().MapFacts(filingID, facts))
	if len(values) != 2 {
		t.Fatalf("expected 2 standard values, got %d", len(values))
	}
	if !values["current_assets"].Equal(decimal.NewFromInt(500)) {
		t.Errorf("first occurrence should win: %s", values["current_assets"])
	}
	if !values["current_liabilities"].Equal(decimal.NewFromInt(250)) {
		t.Errorf("unexpected liabilities value: %s", values["current_liabilities"])
	}
}

func TestCoerceNumeric(t *testing.T) {
	cases := map[string]string{
		"391035000":   "391035000",
		"1,234.56":    "1234.56",
		"(500)":       "-500",
		"  42  ":      "42",
		"-0.125":      "-0.125",
	}
	for in, want := range cases {
		got, err := CoerceNumeric(in)
		if err != nil {
			t.Errorf("CoerceNumeric(%q): %v", in, err)
			continue
		}
		if got.String() != want {
			t.Errorf("CoerceNumeric(%q) = %s, want %s", in, got, want)
		}
	}

	for _, bad := range []string{"", "-", "—", "n/a"} {
		if _, err := CoerceNumeric(bad); err == nil {
			t.Errorf("CoerceNumeric(%q) should fail", bad)
		}
	}
}

func TestCoerceValueTypes(t *testing.T) {
	if v, err := CoerceValue("true", TypeBoolean); err != nil || v != true {
		t.Errorf("boolean coercion failed: %v %v", v, err)
	}
	if _, err := CoerceValue("maybe", TypeBoolean); err == nil {
		t.Error("invalid boolean should fail")
	}

	if _, err := CoerceValue("2024-12-31", TypeDate); err != nil {
		t.Errorf("date coercion failed: %v", err)
	}
	if _, err := CoerceValue("31/12/2024", TypeDate); err == nil {
		t.Error("invalid date should fail")
	}

	if _, err := CoerceValue("12.5", TypeInteger); err == nil {
		t.Error("fractional value should fail integer coercion")
	}
	if v, err := CoerceValue("12", TypeInteger); err != nil {
		t.Errorf("integer coercion failed: %v %v", v, err)
	}

	if v, err := CoerceValue("anything", TypeString); err != nil || v != "anything" {
		t.Errorf("string coercion should pass through: %v %v", v, err)
	}
}
