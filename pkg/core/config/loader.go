// Package config loads the read-only lookup structures this core consumes:
// concept mappings, ratio formula definitions, and ratio benchmark tables.
// The core treats these as an injected data source and never writes them.
package config

import (
	"fmt"
	"os"

	hjson "github.com/hjson/hjson-go/v4"
	"gopkg.in/yaml.v2"
)

// ConceptMapping maps one raw XBRL concept to a standardized internal concept.
type ConceptMapping struct {
	Raw      string `yaml:"raw" json:"raw"`           // e.g. "us-gaap:AssetsCurrent"
	Standard string `yaml:"standard" json:"standard"` // e.g. "current_assets"
	DataType string `yaml:"data_type" json:"data_type"`
}

// ConceptMappings is the full mapping table.
type ConceptMappings struct {
	Mappings []ConceptMapping `yaml:"mappings" json:"mappings"`
}

// RatioInput names one input concept of a formula, with an optional weight
// for the weighted-average method.
type RatioInput struct {
	Concept string  `yaml:"concept" json:"concept"`
	Weight  float64 `yaml:"weight,omitempty" json:"weight,omitempty"`
}

// RatioFormula defines one configured ratio.
//
// Simple ratios evaluate Expression over the named inputs; the aggregate
// methods (weighted_average, geometric_mean, median) combine the Inputs list
// directly and ignore Expression.
type RatioFormula struct {
	Name       string       `yaml:"name" json:"name"`
	Category   string       `yaml:"category" json:"category"`
	Method     string       `yaml:"method" json:"method"`
	Expression string       `yaml:"expression,omitempty" json:"expression,omitempty"`
	Inputs     []RatioInput `yaml:"inputs" json:"inputs"`
}

// RatioFormulas is the full formula table.
type RatioFormulas struct {
	Ratios []RatioFormula `yaml:"ratios" json:"ratios"`
}

// Benchmark gives the healthy range for one ratio, for comparison only.
type Benchmark struct {
	Ratio string  `json:"ratio"`
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
}

// Benchmarks is the full benchmark table.
type Benchmarks struct {
	Benchmarks []Benchmark `json:"benchmarks"`
}

// LoadConceptMappings reads a yaml concept-mapping table.
func LoadConceptMappings(path string) (*ConceptMappings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read concept mappings: %w", err)
	}
	var cfg ConceptMappings
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse concept mappings %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadRatioFormulas reads a yaml ratio-formula table.
func LoadRatioFormulas(path string) (*RatioFormulas, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ratio formulas: %w", err)
	}
	var cfg RatioFormulas
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse ratio formulas %s: %w", path, err)
	}
	for _, r := range cfg.Ratios {
		if r.Name == "" {
			return nil, fmt.Errorf("parse ratio formulas %s: ratio with empty name", path)
		}
	}
	return &cfg, nil
}

// LoadBenchmarks reads an hjson benchmark table. Hjson keeps the analyst-
// edited file commentable.
func LoadBenchmarks(path string) (*Benchmarks, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read benchmarks: %w", err)
	}
	var cfg Benchmarks
	if err := hjson.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse benchmarks %s: %w", path, err)
	}
	return &cfg, nil
}
