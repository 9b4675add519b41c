package xbrl

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Parser extracts facts, contexts, units, and DTS references from an XBRL
// instance document in a single streaming pass. A Parser holds no state
// between documents; distinct documents may be parsed concurrently by
// independent Parser values.
type Parser struct{}

// NewParser creates a parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse walks the document's XML events and collects everything downstream
// stages need. Malformed XML is fatal for the document; a well-formed document
// with no facts is a valid empty result.
func (p *Parser) Parse(data []byte) (*ParseResult, error) {
	start := time.Now()

	result := &ParseResult{
		Metadata: ProcessingMetadata{
			DocumentType: detectDocumentType(data),
			FileSize:     len(data),
		},
	}

	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		token, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("parse XBRL document: %w", err)
		}

		elem, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		switch elem.Name.Local {
		case "schemaRef", "linkbaseRef":
			ref := referenceFromElement(elem)
			if ref.Href != "" {
				result.References = append(result.References, ref)
			}
			if err := decoder.Skip(); err != nil {
				return nil, fmt.Errorf("parse %s element: %w", elem.Name.Local, err)
			}

		case "context":
			var raw xmlContext
			if err := decoder.DecodeElement(&raw, &elem); err != nil {
				return nil, fmt.Errorf("parse context element: %w", err)
			}
			result.Contexts = append(result.Contexts, Context{
				ID: raw.ID,
				Entity: Entity{
					Identifier: strings.TrimSpace(raw.Entity.Identifier.Value),
					Scheme:     raw.Entity.Identifier.Scheme,
				},
				Period: Period{
					StartDate: strings.TrimSpace(raw.Period.StartDate),
					EndDate:   strings.TrimSpace(raw.Period.EndDate),
					Instant:   strings.TrimSpace(raw.Period.Instant),
				},
			})

		case "unit":
			var raw xmlUnit
			if err := decoder.DecodeElement(&raw, &elem); err != nil {
				return nil, fmt.Errorf("parse unit element: %w", err)
			}
			unit := Unit{ID: raw.ID, Measure: strings.TrimSpace(raw.Measure)}
			if raw.Divide != nil {
				unit.Divide = &Divide{
					Numerator:   strings.TrimSpace(raw.Divide.Numerator),
					Denominator: strings.TrimSpace(raw.Divide.Denominator),
				}
			}
			result.Units = append(result.Units, unit)

		default:
			contextRef := attrValue(elem.Attr, "contextRef")
			if contextRef == "" {
				continue // not a fact; keep walking for nested ones
			}
			fact, err := factFromElement(decoder, elem, contextRef)
			if err != nil {
				return nil, fmt.Errorf("parse fact %s: %w", elem.Name.Local, err)
			}
			result.Facts = append(result.Facts, fact)
		}
	}

	result.Validation = validate(result)
	result.Metadata.ProcessingTime = time.Since(start)

	return result, nil
}

type xmlIdentifier struct {
	Scheme string `xml:"scheme,attr"`
	Value  string `xml:",chardata"`
}

type xmlEntity struct {
	Identifier xmlIdentifier `xml:"identifier"`
}

type xmlContext struct {
	ID     string    `xml:"id,attr"`
	Entity xmlEntity `xml:"entity"`
	Period Period    `xml:"period"`
}

type xmlUnit struct {
	ID      string  `xml:"id,attr"`
	Measure string  `xml:"measure"`
	Divide  *Divide `xml:"divide"`
}

func referenceFromElement(elem xml.StartElement) DtsReference {
	refType := RefSchema
	if elem.Name.Local == "linkbaseRef" {
		refType = RefLinkbase
	}
	return DtsReference{
		Type:    refType,
		Href:    attrValue(elem.Attr, "href"),
		Role:    attrValue(elem.Attr, "role"),
		Arcrole: attrValue(elem.Attr, "arcrole"),
	}
}

func factFromElement(decoder *xml.Decoder, elem xml.StartElement, contextRef string) (Fact, error) {
	fact := Fact{
		Concept:    conceptName(elem),
		ContextRef: contextRef,
		UnitRef:    attrValue(elem.Attr, "unitRef"),
	}

	if v := attrValue(elem.Attr, "decimals"); v != "" && v != "INF" {
		if n, err := strconv.Atoi(v); err == nil {
			fact.Decimals = &n
		}
	}
	if v := attrValue(elem.Attr, "precision"); v != "" && v != "INF" {
		if n, err := strconv.Atoi(v); err == nil {
			fact.Precision = &n
		}
	}

	var value string
	if err := decoder.DecodeElement(&value, &elem); err != nil {
		return Fact{}, err
	}
	fact.Value = strings.TrimSpace(value)

	return fact, nil
}

// conceptName builds the prefixed concept name for a fact element. Inline
// XBRL facts (ix:nonFraction, ix:nonNumeric) carry the concept in their name
// attribute; plain instance facts are named by the element itself.
func conceptName(elem xml.StartElement) string {
	if elem.Name.Local == "nonFraction" || elem.Name.Local == "nonNumeric" {
		if name := attrValue(elem.Attr, "name"); name != "" {
			return name
		}
	}
	if elem.Name.Space == "" {
		return elem.Name.Local
	}
	return namespacePrefix(elem.Name.Space) + ":" + elem.Name.Local
}

// namespacePrefix maps a namespace URI to its conventional prefix.
func namespacePrefix(space string) string {
	switch {
	case strings.Contains(space, "us-gaap"):
		return "us-gaap"
	case strings.Contains(space, "/dei"):
		return "dei"
	case strings.Contains(space, "/srt"):
		return "srt"
	case strings.Contains(space, "ifrs"):
		return "ifrs"
	case strings.Contains(space, "xbrli"):
		return "xbrli"
	}
	parts := strings.Split(strings.TrimRight(space, "/"), "/")
	return parts[len(parts)-1]
}

func attrValue(attrs []xml.Attr, local string) string {
	for _, attr := range attrs {
		if attr.Name.Local == local {
			return attr.Value
		}
	}
	return ""
}

func detectDocumentType(data []byte) DocumentType {
	head := data
	if len(head) > 4096 {
		head = head[:4096]
	}
	if bytes.Contains(head, []byte("xbrl.org/2013/inlineXBRL")) || bytes.Contains(head, []byte("<html")) {
		return DocTypeIxbrl
	}
	return DocTypeXbrl
}

// validate cross-checks fact references against declared contexts and units.
// Dangling references degrade the document (warnings) rather than failing it;
// a context without an id is a structural error.
func validate(result *ParseResult) ValidationReport {
	report := ValidationReport{}

	contexts := make(map[string]bool, len(result.Contexts))
	for _, c := range result.Contexts {
		if c.ID == "" {
			report.Errors = append(report.Errors, "context element missing id attribute")
			continue
		}
		contexts[c.ID] = true
	}
	units := make(map[string]bool, len(result.Units))
	for _, u := range result.Units {
		if u.ID == "" {
			report.Errors = append(report.Errors, "unit element missing id attribute")
			continue
		}
		units[u.ID] = true
	}

	for _, f := range result.Facts {
		if !contexts[f.ContextRef] {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("fact %s references missing context %q", f.Concept, f.ContextRef))
		}
		if f.UnitRef != "" && !units[f.UnitRef] {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("fact %s references missing unit %q", f.Concept, f.UnitRef))
		}
	}

	report.IsValid = len(report.Errors) == 0
	return report
}
