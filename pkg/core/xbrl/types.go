// Package xbrl parses XBRL instance documents: facts, contexts, units, and
// the schema/linkbase references that define the document's Discoverable
// Taxonomy Set.
package xbrl

import "time"

// ReferenceType distinguishes the two DTS pointer elements.
type ReferenceType string

const (
	RefSchema   ReferenceType = "schemaRef"
	RefLinkbase ReferenceType = "linkbaseRef"
)

// DtsReference is one structural pointer found in an instance document.
type DtsReference struct {
	Type    ReferenceType `json:"reference_type"`
	Href    string        `json:"reference_href"`
	Role    string        `json:"reference_role,omitempty"`
	Arcrole string        `json:"reference_arcrole,omitempty"`
}

// Fact is one reported value: concept, context, unit, raw text. Type coercion
// is deferred to the concept-mapping step.
type Fact struct {
	Concept    string `json:"concept"`
	Value      string `json:"value"`
	ContextRef string `json:"context_ref"`
	UnitRef    string `json:"unit_ref,omitempty"`
	Decimals   *int   `json:"decimals,omitempty"`
	Precision  *int   `json:"precision,omitempty"`
}

// Entity identifies the reporting company inside a context.
type Entity struct {
	Identifier string `xml:"identifier" json:"identifier"`
	Scheme     string `json:"scheme"`
}

// Period is the reporting period of a context: either an instant or a
// start/end duration.
type Period struct {
	StartDate string `xml:"startDate" json:"start_date,omitempty"`
	EndDate   string `xml:"endDate" json:"end_date,omitempty"`
	Instant   string `xml:"instant" json:"instant,omitempty"`
}

// IsInstant reports whether the period is a point in time.
func (p Period) IsInstant() bool { return p.Instant != "" }

// IsDuration reports whether the period is a start/end range.
func (p Period) IsDuration() bool { return p.StartDate != "" && p.EndDate != "" }

// Context qualifies facts with entity and period.
type Context struct {
	ID     string `json:"id"`
	Entity Entity `json:"entity"`
	Period Period `json:"period"`
}

// Divide is a ratio unit (e.g. USD per share).
type Divide struct {
	Numerator   string `xml:"unitNumerator>measure" json:"numerator"`
	Denominator string `xml:"unitDenominator>measure" json:"denominator"`
}

// Unit is a measurement unit referenced by numeric facts.
type Unit struct {
	ID      string  `json:"id"`
	Measure string  `json:"measure,omitempty"`
	Divide  *Divide `json:"divide,omitempty"`
}

// DocumentType distinguishes plain XBRL instances from inline XBRL.
type DocumentType string

const (
	DocTypeXbrl  DocumentType = "xbrl"
	DocTypeIxbrl DocumentType = "ixbrl"
)

// ValidationReport records structural problems found during the parse pass.
// Dangling context/unit references are warnings; a document with no facts is
// valid.
type ValidationReport struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ProcessingMetadata describes the parse pass itself.
type ProcessingMetadata struct {
	DocumentType   DocumentType  `json:"document_type"`
	FileSize       int           `json:"file_size"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// ParseResult is everything extracted from one instance document.
type ParseResult struct {
	Facts      []Fact             `json:"facts"`
	Contexts   []Context          `json:"contexts"`
	Units      []Unit             `json:"units"`
	References []DtsReference     `json:"dts_references"`
	Validation ValidationReport   `json:"validation_report"`
	Metadata   ProcessingMetadata `json:"processing_metadata"`
}
