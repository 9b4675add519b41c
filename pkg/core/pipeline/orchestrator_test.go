package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"xbrl_crawler/pkg/core/concepts"
	"xbrl_crawler/pkg/core/config"
	"xbrl_crawler/pkg/core/crawler"
	"xbrl_crawler/pkg/core/ratelimit"
	"xbrl_crawler/pkg/core/ratio"
	"xbrl_crawler/pkg/core/taxonomy"
)

const pipelineSubmissions = `{
  "cik": "320193",
  "name": "Apple Inc.",
  "filings": {
    "recent": {
      "accessionNumber": ["0000320193-24-000123"],
      "filingDate": ["2024-11-01"],
      "reportDate": ["2024-09-28"],
      "form": ["10-K"],
      "primaryDocument": ["aapl-20240928.htm"],
      "isXBRL": [1],
      "size": [4300000]
    }
  }
}`

const pipelineArchiveIndex = `<html><body>
<a href="aapl-20240928_htm.xml">aapl-20240928_htm.xml</a>
<a href="aapl-20240928.htm">aapl-20240928.htm</a>
</body></html>`

const pipelineInstance = `<?xml version="1.0" encoding="UTF-8"?>
<xbrl xmlns="http://www.xbrl.org/2003/instance"
      xmlns:link="http://www.xbrl.org/2003/linkbase"
      xmlns:xlink="http://www.w3.org/1999/xlink"
      xmlns:us-gaap="http://fasb.org/us-gaap/2024">
  <link:schemaRef xlink:type="simple" xlink:href="aapl-20240928.xsd"/>
  <context id="c1">
    <entity><identifier scheme="http://www.sec.gov/CIK">0000320193</identifier></entity>
    <period><instant>2024-09-28</instant></period>
  </context>
  <unit id="usd"><measure>iso4217:USD</measure></unit>
  <us-gaap:AssetsCurrent contextRef="c1" unitRef="usd" decimals="-6">500</us-gaap:AssetsCurrent>
  <us-gaap:LiabilitiesCurrent contextRef="c1" unitRef="usd" decimals="-6">250</us-gaap:LiabilitiesCurrent>
</xbrl>`

// --- Recording repositories ---

type recordingFactRepo struct {
	mu    sync.Mutex
	saved map[uuid.UUID][]concepts.ExtractedFact
}

func (r *recordingFactRepo) SaveFacts(ctx context.Context, filingID uuid.UUID, facts []concepts.ExtractedFact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved == nil {
		r.saved = make(map[uuid.UUID][]concepts.ExtractedFact)
	}
	r.saved[filingID] = facts
	return nil
}

type recordingRatioRepo struct {
	mu    sync.Mutex
	saved []ratio.CalculatedRatio
}

func (r *recordingRatioRepo) SaveRatios(ctx context.Context, ratios []ratio.CalculatedRatio) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, ratios...)
	return nil
}

func testCrawler(t *testing.T, srvURL string) *crawler.Crawler {
	t.Helper()
	metrics := crawler.NewMetrics(prometheus.NewRegistry())
	limiter := ratelimit.NewHostLimiter(ratelimit.Config{
		RequestsPerWindow: 1000,
		Window:            time.Second,
	})
	client, err := crawler.NewClient(crawler.ClientConfig{
		UserAgent:      "xbrl_crawler tests test@example.com",
		InitialBackoff: time.Millisecond,
	}, limiter, metrics)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c := crawler.NewCrawler(client)
	c.SubmissionsAPI = srvURL + "/submissions/CIK%s.json"
	c.ArchivesBase = srvURL + "/Archives/edgar/data/%s/%s/"
	return c
}

func testOrchestrator(t *testing.T, srvURL, cacheDir string) (*Orchestrator, *taxonomy.MemoryStore, *recordingFactRepo, *recordingRatioRepo) {
	t.Helper()
	store := taxonomy.NewMemoryStore(taxonomy.StoreConfig{})
	mapper := concepts.NewMapper(&config.ConceptMappings{
		Mappings: []config.ConceptMapping{
			{Raw: "us-gaap:AssetsCurrent", Standard: "current_assets", DataType: "monetary"},
			{Raw: "us-gaap:LiabilitiesCurrent", Standard: "current_liabilities", DataType: "monetary"},
		},
	})
	calculator := ratio.NewCalculator(&config.RatioFormulas{
		Ratios: []config.RatioFormula{
			{Name: "current_ratio", Category: "liquidity", Method: "simple",
				Expression: "current_assets / current_liabilities"},
		},
	}, nil)
	facts := &recordingFactRepo{}
	ratios := &recordingRatioRepo{}
	o := NewOrchestrator(testCrawler(t, srvURL), store, cacheDir, mapper, calculator, facts, ratios)
	return o, store, facts, ratios
}

func fakeEdgar(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/submissions/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "CIK0000320193.json") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(pipelineSubmissions))
	})
	mux.HandleFunc("/Archives/edgar/data/320193/000032019324000123/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "_htm.xml") {
			w.Write([]byte(pipelineInstance))
			return
		}
		w.Write([]byte(pipelineArchiveIndex))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunForCompanyEndToEnd(t *testing.T) {
	srv := fakeEdgar(t)

	// Seed the local cache so the schemaRef resolves.
	cacheDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(cacheDir, "aapl-20240928.xsd"),
		[]byte(`<schema/>`), 0644); err != nil {
		t.Fatal(err)
	}

	o, store, facts, ratios := testOrchestrator(t, srv.URL, cacheDir)

	report, err := o.RunForCompany(context.Background(), "320193",
		crawler.FilingFilter{Forms: []string{"10-K"}, RequireXBRL: true})
	if err != nil {
		t.Fatalf("RunForCompany: %v", err)
	}

	if report.Crawl.Downloaded != 1 || report.Crawl.Failed != 0 {
		t.Fatalf("crawl outcome: %+v", report.Crawl)
	}
	if len(report.Filings) != 1 {
		t.Fatalf("expected 1 filing report, got %d", len(report.Filings))
	}

	fr := report.Filings[0]
	if fr.Err != nil {
		t.Fatalf("filing error: %v", fr.Err)
	}
	if fr.FactCount != 2 || fr.MappedCount != 2 {
		t.Errorf("fact counts: %+v", fr)
	}
	if !fr.Validation.IsValid {
		t.Errorf("validation: %+v", fr.Validation)
	}
	if fr.DtsSummary.Total != 1 || fr.DtsSummary.Resolved != 1 {
		t.Errorf("DTS summary: %+v", fr.DtsSummary)
	}
	if len(fr.Ratios) != 1 {
		t.Fatalf("ratios: %+v", fr.Ratios)
	}
	if fr.Ratios[0].Value.String() != "2" {
		t.Errorf("current ratio = %s, want 2", fr.Ratios[0].Value)
	}

	// Persisted through the injected repositories.
	if got := facts.saved[fr.FilingID]; len(got) != 2 {
		t.Errorf("facts persisted: %d", len(got))
	}
	if len(ratios.saved) != 1 || ratios.saved[0].Name != "current_ratio" {
		t.Errorf("ratios persisted: %+v", ratios.saved)
	}

	// The resolved schema landed in the taxonomy store.
	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalFiles != 1 {
		t.Errorf("taxonomy store files = %d, want 1", stats.TotalFiles)
	}
}

func TestUnresolvedReferencesDoNotFailFiling(t *testing.T) {
	srv := fakeEdgar(t)

	// Empty cache dir: the schemaRef cannot resolve.
	o, _, _, ratios := testOrchestrator(t, srv.URL, t.TempDir())

	report, err := o.RunForCompany(context.Background(), "320193",
		crawler.FilingFilter{Forms: []string{"10-K"}})
	if err != nil {
		t.Fatalf("RunForCompany: %v", err)
	}

	fr := report.Filings[0]
	if fr.Err != nil {
		t.Fatalf("unresolved DTS should not fail the filing: %v", fr.Err)
	}
	if fr.DtsSummary.Unresolved != 1 {
		t.Errorf("DTS summary: %+v", fr.DtsSummary)
	}
	// Facts and ratios still flow.
	if fr.FactCount != 2 || len(fr.Ratios) != 1 {
		t.Errorf("degraded filing should still yield facts and ratios: %+v", fr)
	}
	if len(ratios.saved) != 1 {
		t.Errorf("ratios persisted: %+v", ratios.saved)
	}
}

func TestProcessInstanceMalformedDocument(t *testing.T) {
	o, _, _, _ := testOrchestrator(t, "http://unused.invalid", t.TempDir())

	fr := o.ProcessInstance(context.Background(), "acc-1", []byte(`<xbrl><unclosed`))
	if fr.Err == nil {
		t.Fatal("malformed XML should produce a filing error")
	}
	if !strings.Contains(fr.Err.Error(), "parse") {
		t.Errorf("error: %v", fr.Err)
	}
}

func TestRunForCompanyRecordsFilingFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/submissions/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pipelineSubmissions))
	})
	mux.HandleFunc("/Archives/edgar/data/320193/000032019324000123/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "_htm.xml") {
			w.Write([]byte(`not xml at all <`))
			return
		}
		w.Write([]byte(pipelineArchiveIndex))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	o, _, _, _ := testOrchestrator(t, srv.URL, t.TempDir())

	report, err := o.RunForCompany(context.Background(), "320193", crawler.FilingFilter{})
	if err != nil {
		t.Fatalf("RunForCompany: %v", err)
	}
	if report.Crawl.Failed != 1 || report.Crawl.Downloaded != 0 {
		t.Errorf("crawl should record the failure: %+v", report.Crawl)
	}
	if len(report.Filings) != 1 || report.Filings[0].Err == nil {
		t.Errorf("filing report should carry the parse error: %+v", report.Filings)
	}
}
