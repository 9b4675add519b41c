// Package dts resolves the Discoverable Taxonomy Set references of an XBRL
// instance against the taxonomy store and a local file cache.
package dts

import (
	"regexp"
	"strings"

	"xbrl_crawler/pkg/core/taxonomy"
	"xbrl_crawler/pkg/core/xbrl"
)

// companyFilePattern matches company extension taxonomy filenames such as
// aapl-20240928.xsd or cvx-2024_cal.xml: short ticker prefix, dash, date.
var companyFilePattern = regexp.MustCompile(`^[a-z]{1,6}-(19|20)\d{2}`)

// standardPrefixes are ticker-like prefixes that belong to standard
// taxonomies, not company extensions.
var standardPrefixes = []string{"us-gaap", "dei", "srt", "ifrs", "country", "currency", "exch", "stpr"}

// FilenameFromHref derives the canonical filename from a reference href,
// stripping any URL scheme/host and keeping the final path segment.
func FilenameFromHref(href string) string {
	trimmed := href
	if i := strings.IndexAny(trimmed, "#?"); i >= 0 {
		trimmed = trimmed[:i]
	}
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	return trimmed
}

// FileTypeFor classifies a reference as a schema or one of the four linkbase
// roles. Linkbase roles are inferred from conventional filename suffixes.
func FileTypeFor(refType xbrl.ReferenceType, href string) taxonomy.FileType {
	if refType == xbrl.RefSchema {
		return taxonomy.FileTypeSchema
	}
	filename := FilenameFromHref(href)
	switch {
	case strings.Contains(filename, "_lab"):
		return taxonomy.FileTypeLabelLinkbase
	case strings.Contains(filename, "_pre"):
		return taxonomy.FileTypePresentationLinkbase
	case strings.Contains(filename, "_cal"):
		return taxonomy.FileTypeCalculationLinkbase
	case strings.Contains(filename, "_def"):
		return taxonomy.FileTypeDefinitionLinkbase
	default:
		return taxonomy.FileTypeLabelLinkbase
	}
}

// SourceTypeFor classifies the taxonomy a reference points at. Standard
// namespaces are recognized by substring; everything shaped like a ticker
// extension is company specific.
func SourceTypeFor(href string) taxonomy.SourceType {
	lower := strings.ToLower(href)
	switch {
	case strings.Contains(lower, "us-gaap"):
		return taxonomy.SourceUsGaap
	case strings.Contains(lower, "dei"):
		return taxonomy.SourceSecDei
	case strings.Contains(lower, "srt"):
		return taxonomy.SourceFasbSrt
	case strings.Contains(lower, "ifrs"):
		return taxonomy.SourceIfrs
	}

	filename := FilenameFromHref(lower)
	if companyFilePattern.MatchString(filename) && !hasStandardPrefix(filename) {
		return taxonomy.SourceCompanySpecific
	}
	return taxonomy.SourceOtherStandard
}

func hasStandardPrefix(filename string) bool {
	for _, p := range standardPrefixes {
		if strings.HasPrefix(filename, p+"-") {
			return true
		}
	}
	return false
}

// NamespaceFor derives a stable namespace URI for a taxonomy file when the
// schema itself has not been parsed for its targetNamespace.
func NamespaceFor(href string) string {
	filename := FilenameFromHref(href)
	base := strings.TrimSuffix(strings.TrimSuffix(filename, ".xsd"), ".xml")
	switch SourceTypeFor(href) {
	case taxonomy.SourceUsGaap:
		return "http://fasb.org/us-gaap/" + taxonomyYear(base)
	case taxonomy.SourceSecDei:
		return "http://xbrl.sec.gov/dei/" + taxonomyYear(base)
	case taxonomy.SourceFasbSrt:
		return "http://fasb.org/srt/" + taxonomyYear(base)
	case taxonomy.SourceIfrs:
		return "https://xbrl.ifrs.org/taxonomy/" + taxonomyYear(base)
	default:
		return "http://xbrl.org/" + base
	}
}

var yearPattern = regexp.MustCompile(`(19|20)\d{2}`)

func taxonomyYear(base string) string {
	if m := yearPattern.FindString(base); m != "" {
		return m
	}
	return base
}
