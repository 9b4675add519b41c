package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"xbrl_crawler/pkg/core/concepts"
	"xbrl_crawler/pkg/core/config"
	"xbrl_crawler/pkg/core/crawler"
	"xbrl_crawler/pkg/core/pipeline"
	"xbrl_crawler/pkg/core/ratelimit"
	"xbrl_crawler/pkg/core/ratio"
	"xbrl_crawler/pkg/core/store"
	"xbrl_crawler/pkg/core/taxonomy"
)

func main() {
	var (
		ciks        = flag.String("ciks", "", "comma-separated CIK numbers to crawl (required)")
		forms       = flag.String("forms", "10-K,10-Q", "comma-separated form types")
		since       = flag.String("since", "", "earliest filing date, YYYY-MM-DD")
		until       = flag.String("until", "", "latest filing date, YYYY-MM-DD")
		configDir   = flag.String("config", "config", "directory with concept_mappings.yaml, ratio_formulas.yaml, ratio_benchmarks.hjson")
		cacheDir    = flag.String("taxonomy-cache", ".cache/taxonomies", "local taxonomy file cache directory")
		metricsAddr = flag.String("metrics-addr", "", "if set, serve /metrics on this address (e.g. :9090)")
		rps         = flag.Int("requests-per-second", 10, "per-host request cap (SEC fair access allows 10)")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}

	if *ciks == "" {
		log.Fatal("usage: crawler -ciks 320193[,789019,...] [-forms 10-K] [-since 2023-01-01]")
	}
	cikList := strings.Split(*ciks, ",")

	userAgent := os.Getenv("SEC_USER_AGENT")
	if userAgent == "" {
		log.Fatal("SEC_USER_AGENT must be set (e.g. \"MyCompany contact@example.com\"); SEC blocks anonymous crawlers")
	}

	mappings, err := config.LoadConceptMappings(*configDir + "/concept_mappings.yaml")
	if err != nil {
		log.Fatalf("load concept mappings: %v", err)
	}
	formulas, err := config.LoadRatioFormulas(*configDir + "/ratio_formulas.yaml")
	if err != nil {
		log.Fatalf("load ratio formulas: %v", err)
	}
	benchmarks, err := config.LoadBenchmarks(*configDir + "/ratio_benchmarks.hjson")
	if err != nil {
		log.Fatalf("load benchmarks: %v", err)
	}
	log.Printf("config: %d concept mappings, %d ratio formulas, %d benchmarks",
		len(mappings.Mappings), len(formulas.Ratios), len(benchmarks.Benchmarks))

	registry := prometheus.NewRegistry()
	metrics := crawler.NewMetrics(registry)
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
		log.Printf("serving metrics on %s/metrics", *metricsAddr)
	}

	limiter := ratelimit.NewHostLimiter(ratelimit.Config{
		RequestsPerWindow: *rps,
		Window:            time.Second,
	})
	client, err := crawler.NewClient(crawler.ClientConfig{UserAgent: userAgent}, limiter, metrics)
	if err != nil {
		log.Fatalf("crawler client: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// With DATABASE_URL set everything persists to postgres; without it the
	// run is a dry run against the in-memory taxonomy store.
	var (
		taxStore  taxonomy.Store
		factRepo  pipeline.FactRepository
		ratioRepo pipeline.RatioRepository
	)
	if os.Getenv("DATABASE_URL") != "" {
		if err := store.InitDB(ctx); err != nil {
			log.Fatalf("database: %v", err)
		}
		defer store.Close()
		taxStore = store.NewTaxonomyRepo(taxonomy.DefaultStoreConfig())
		factRepo = store.NewFactRepo()
		ratioRepo = store.NewRatioRepo()
		log.Println("persisting to postgres")
	} else {
		taxStore = taxonomy.NewMemoryStore(taxonomy.DefaultStoreConfig())
		log.Println("DATABASE_URL not set: dry run, nothing will be persisted")
	}

	orchestrator := pipeline.NewOrchestrator(
		crawler.NewCrawler(client),
		taxStore,
		*cacheDir,
		concepts.NewMapper(mappings),
		ratio.NewCalculator(formulas, benchmarks),
		factRepo,
		ratioRepo,
	)

	filter := crawler.FilingFilter{
		Forms:       splitNonEmpty(*forms),
		Since:       *since,
		Until:       *until,
		RequireXBRL: true,
	}

	reports, err := orchestrator.RunForCompanies(ctx, cikList, filter)
	for _, report := range reports {
		printReport(report)
	}
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printReport(report *pipeline.CompanyReport) {
	c := report.Crawl
	fmt.Printf("\n=== %s (CIK %s) ===\n", c.CompanyName, c.CIK)
	fmt.Printf("filings: %d found, %d matched filter, %d downloaded, %d failed, %d bytes in %v\n",
		c.FilingsFound, c.FilingsFiltered, c.Downloaded, c.Failed,
		c.BytesDownloaded, c.CompletedAt.Sub(c.StartedAt).Round(time.Millisecond))
	for _, e := range c.Errors {
		fmt.Printf("  error: %s\n", e)
	}

	for _, fr := range report.Filings {
		fmt.Printf("\n  filing %s\n", fr.AccessionNumber)
		if fr.Err != nil {
			fmt.Printf("    failed: %v\n", fr.Err)
			continue
		}
		fmt.Printf("    facts: %d extracted, %d mapped\n", fr.FactCount, fr.MappedCount)
		fmt.Printf("    DTS: %d/%d references resolved\n", fr.DtsSummary.Resolved, fr.DtsSummary.Total)
		if len(fr.Validation.Warnings) > 0 {
			fmt.Printf("    validation warnings: %d\n", len(fr.Validation.Warnings))
		}
		for _, cr := range fr.Ratios {
			line := fmt.Sprintf("    %s (%s) = %s", cr.Name, cr.Category, cr.Value)
			if cr.Benchmark != nil {
				line += fmt.Sprintf(" [%s]", cr.Benchmark.Position)
			}
			fmt.Println(line)
		}
		for _, s := range fr.Skipped {
			fmt.Printf("    %s skipped: %s\n", s.Name, s.Reason)
		}
	}
}
