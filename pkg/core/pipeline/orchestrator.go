// Package pipeline ties the stages together: crawl filings, parse instance
// documents, resolve their taxonomy references, map facts to standardized
// concepts, calculate ratios, and persist everything.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"xbrl_crawler/pkg/core/concepts"
	"xbrl_crawler/pkg/core/crawler"
	"xbrl_crawler/pkg/core/dts"
	"xbrl_crawler/pkg/core/ratio"
	"xbrl_crawler/pkg/core/taxonomy"
	"xbrl_crawler/pkg/core/xbrl"
)

// FactRepository persists a filing's extracted facts.
type FactRepository interface {
	SaveFacts(ctx context.Context, filingID uuid.UUID, facts []concepts.ExtractedFact) error
}

// RatioRepository persists a filing's calculated ratios.
type RatioRepository interface {
	SaveRatios(ctx context.Context, ratios []ratio.CalculatedRatio) error
}

// FilingReport is the outcome of processing one instance document.
type FilingReport struct {
	FilingID        uuid.UUID
	AccessionNumber string
	FactCount       int
	MappedCount     int
	DtsSummary      dts.Summary
	Validation      xbrl.ValidationReport
	Ratios          []ratio.CalculatedRatio
	Skipped         []ratio.SkippedRatio
	Err             error
}

// CompanyReport pairs a crawl result with the per-filing processing reports.
type CompanyReport struct {
	Crawl   crawler.CrawlResult
	Filings []FilingReport
}

// Orchestrator runs the full acquisition pipeline. Repositories are injected
// so tests can run against the in-memory taxonomy store and recording fakes.
type Orchestrator struct {
	crawler    *crawler.Crawler
	resolver   *dts.Resolver
	mapper     *concepts.Mapper
	calculator *ratio.Calculator
	facts      FactRepository
	ratios     RatioRepository
}

// NewOrchestrator wires the pipeline stages. store backs DTS resolution;
// cacheDir is the local taxonomy cache the resolver falls back to.
func NewOrchestrator(
	c *crawler.Crawler,
	store taxonomy.Store,
	cacheDir string,
	mapper *concepts.Mapper,
	calculator *ratio.Calculator,
	facts FactRepository,
	ratios RatioRepository,
) *Orchestrator {
	return &Orchestrator{
		crawler:    c,
		resolver:   dts.NewResolver(store, cacheDir),
		mapper:     mapper,
		calculator: calculator,
		facts:      facts,
		ratios:     ratios,
	}
}

// RunForCompany crawls one company's filings and processes each downloaded
// instance document. Per-filing failures are contained: they appear in the
// report with Err set, and the remaining filings still process.
func (o *Orchestrator) RunForCompany(ctx context.Context, cik string, filter crawler.FilingFilter) (*CompanyReport, error) {
	log.Printf("pipeline: starting crawl for CIK %s", cik)
	start := time.Now()

	report := &CompanyReport{}
	report.Crawl = o.crawler.CrawlCompany(ctx, cik, filter,
		func(ctx context.Context, filing crawler.Filing, instance []byte) error {
			fr := o.processFiling(ctx, filing, instance)
			report.Filings = append(report.Filings, fr)
			return fr.Err
		})

	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	log.Printf("pipeline: CIK %s done in %v: %d downloaded, %d failed",
		cik, time.Since(start), report.Crawl.Downloaded, report.Crawl.Failed)
	return report, nil
}

// RunForCompanies processes several companies, one report per CIK. Company
// concurrency is bounded by the crawler; processing happens inside the
// download handler so the bound covers the whole per-filing pipeline.
func (o *Orchestrator) RunForCompanies(ctx context.Context, ciks []string, filter crawler.FilingFilter) ([]*CompanyReport, error) {
	reports := make([]*CompanyReport, 0, len(ciks))
	for _, cik := range ciks {
		report, err := o.RunForCompany(ctx, cik, filter)
		reports = append(reports, report)
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// ProcessInstance runs the post-download stages on an already fetched
// instance document. Exposed for reprocessing stored documents.
func (o *Orchestrator) ProcessInstance(ctx context.Context, accessionNumber string, instance []byte) FilingReport {
	return o.processFiling(ctx, crawler.Filing{AccessionNumber: accessionNumber}, instance)
}

func (o *Orchestrator) processFiling(ctx context.Context, filing crawler.Filing, instance []byte) FilingReport {
	fr := FilingReport{
		FilingID:        uuid.New(),
		AccessionNumber: filing.AccessionNumber,
	}

	parser := xbrl.NewParser()
	result, err := parser.Parse(instance)
	if err != nil {
		fr.Err = fmt.Errorf("parse %s: %w", filing.AccessionNumber, err)
		return fr
	}
	fr.FactCount = len(result.Facts)
	fr.Validation = result.Validation

	// Unresolved references degrade concept coverage but do not fail the
	// filing; only storage errors do.
	resolutions, err := o.resolver.ResolveInstance(ctx, result.References, fr.FilingID)
	if err != nil {
		fr.Err = fmt.Errorf("resolve DTS for %s: %w", filing.AccessionNumber, err)
		return fr
	}
	fr.DtsSummary = dts.Summarize(resolutions)
	if fr.DtsSummary.Unresolved > 0 {
		log.Printf("pipeline: %s: %d of %d DTS references unresolved",
			filing.AccessionNumber, fr.DtsSummary.Unresolved, fr.DtsSummary.Total)
	}

	mapped := o.mapper.MapFacts(fr.FilingID, result.Facts)
	fr.MappedCount = len(mapped)
	if o.facts != nil {
		if err := o.facts.SaveFacts(ctx, fr.FilingID, mapped); err != nil {
			fr.Err = fmt.Errorf("save facts for %s: %w", filing.AccessionNumber, err)
			return fr
		}
	}

	values := concepts.StandardValues(mapped)
	computed, skipped, err := o.calculator.Calculate(fr.FilingID, values)
	if err != nil {
		fr.Err = fmt.Errorf("calculate ratios for %s: %w", filing.AccessionNumber, err)
		return fr
	}
	fr.Ratios = computed
	fr.Skipped = skipped
	for _, s := range skipped {
		log.Printf("pipeline: %s: ratio %s skipped: %s", filing.AccessionNumber, s.Name, s.Reason)
	}

	if o.ratios != nil && len(computed) > 0 {
		if err := o.ratios.SaveRatios(ctx, computed); err != nil {
			fr.Err = fmt.Errorf("save ratios for %s: %w", filing.AccessionNumber, err)
			return fr
		}
	}
	return fr
}
