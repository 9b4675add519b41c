package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const (
	submissionsAPIURL = "https://data.sec.gov/submissions/CIK%s.json"
	archivesBaseURL   = "https://www.sec.gov/Archives/edgar/data/%s/%s/"

	defaultCompanyConcurrency = 3
)

// SubmissionsResponse is the SEC submissions API payload. Filing attributes
// arrive as parallel arrays indexed by filing position.
type SubmissionsResponse struct {
	CIK     string   `json:"cik"`
	Name    string   `json:"name"`
	Tickers []string `json:"tickers"`
	Filings struct {
		Recent RecentFilings `json:"recent"`
	} `json:"filings"`
}

// RecentFilings holds the parallel filing arrays from the submissions API.
type RecentFilings struct {
	AccessionNumber []string `json:"accessionNumber"`
	FilingDate      []string `json:"filingDate"`
	ReportDate      []string `json:"reportDate"`
	Form            []string `json:"form"`
	PrimaryDocument []string `json:"primaryDocument"`
	IsXBRL          []int    `json:"isXBRL"`
	Size            []int64  `json:"size"`
}

// Filing is one denormalized entry from the submissions parallel arrays.
type Filing struct {
	CIK             string
	CompanyName     string
	AccessionNumber string
	FilingDate      string
	ReportDate      string
	Form            string
	PrimaryDocument string
	HasXBRL         bool
	SizeBytes       int64
}

// FilingFilter narrows a submissions list before download. Zero values mean
// no constraint on that axis. Dates are inclusive, formatted YYYY-MM-DD.
type FilingFilter struct {
	Forms        []string
	Since        string
	Until        string
	RequireXBRL  bool
	MaxSizeBytes int64
}

func (ff FilingFilter) matches(f Filing) bool {
	if len(ff.Forms) > 0 {
		found := false
		for _, form := range ff.Forms {
			if f.Form == form {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if ff.Since != "" && f.FilingDate < ff.Since {
		return false
	}
	if ff.Until != "" && f.FilingDate > ff.Until {
		return false
	}
	if ff.RequireXBRL && !f.HasXBRL {
		return false
	}
	if ff.MaxSizeBytes > 0 && f.SizeBytes > ff.MaxSizeBytes {
		return false
	}
	return true
}

// CrawlResult summarizes one company crawl. Per-filing failures are recorded
// in Errors and counted, never raised: a crawl that downloads some filings
// and fails on others is still a result.
type CrawlResult struct {
	ID              uuid.UUID
	CIK             string
	CompanyName     string
	FilingsFound    int
	FilingsFiltered int
	Downloaded      int
	Failed          int
	BytesDownloaded int64
	Errors          []string
	StartedAt       time.Time
	CompletedAt     time.Time
}

// FilingHandler receives each downloaded instance document. An error counts
// the filing as failed without stopping the crawl.
type FilingHandler func(ctx context.Context, filing Filing, instance []byte) error

// Crawler walks company submissions and downloads XBRL instance documents.
// The URL templates default to SEC EDGAR; tests point them at a local server.
type Crawler struct {
	client             *Client
	CompanyConcurrency int64
	SubmissionsAPI     string // printf template taking the zero-padded CIK
	ArchivesBase       string // printf template taking unpadded CIK and accession
}

func NewCrawler(client *Client) *Crawler {
	return &Crawler{
		client:             client,
		CompanyConcurrency: defaultCompanyConcurrency,
		SubmissionsAPI:     submissionsAPIURL,
		ArchivesBase:       archivesBaseURL,
	}
}

// archiveURL returns the EDGAR Archives directory for a filing.
func (c *Crawler) archiveURL(f Filing) string {
	accession := strings.ReplaceAll(f.AccessionNumber, "-", "")
	return fmt.Sprintf(c.ArchivesBase, strings.TrimLeft(f.CIK, "0"), accession)
}

// FetchSubmissions downloads and denormalizes the submissions list for a CIK.
func (c *Crawler) FetchSubmissions(ctx context.Context, cik string) (string, []Filing, error) {
	padded := PadCIK(cik)
	body, err := c.client.Fetch(ctx, fmt.Sprintf(c.SubmissionsAPI, padded), "submissions")
	if err != nil {
		return "", nil, fmt.Errorf("fetch submissions for CIK %s: %w", cik, err)
	}

	var resp SubmissionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", nil, fmt.Errorf("parse submissions for CIK %s: %w", cik, err)
	}

	recent := resp.Filings.Recent
	filings := make([]Filing, 0, len(recent.AccessionNumber))
	for i := range recent.AccessionNumber {
		f := Filing{
			CIK:             padded,
			CompanyName:     resp.Name,
			AccessionNumber: recent.AccessionNumber[i],
		}
		// The parallel arrays are usually the same length, but a short
		// array must not panic the crawl.
		if i < len(recent.FilingDate) {
			f.FilingDate = recent.FilingDate[i]
		}
		if i < len(recent.ReportDate) {
			f.ReportDate = recent.ReportDate[i]
		}
		if i < len(recent.Form) {
			f.Form = recent.Form[i]
		}
		if i < len(recent.PrimaryDocument) {
			f.PrimaryDocument = recent.PrimaryDocument[i]
		}
		if i < len(recent.IsXBRL) {
			f.HasXBRL = recent.IsXBRL[i] == 1
		}
		if i < len(recent.Size) {
			f.SizeBytes = recent.Size[i]
		}
		filings = append(filings, f)
	}
	return resp.Name, filings, nil
}

// FilterFilings applies the filter, preserving submission order.
func FilterFilings(filings []Filing, filter FilingFilter) []Filing {
	var out []Filing
	for _, f := range filings {
		if filter.matches(f) {
			out = append(out, f)
		}
	}
	return out
}

// LocateInstanceDocument finds the XBRL instance document inside a filing's
// Archives directory. EDGAR serves the directory as an HTML index; the
// instance is the .xml file that is not a linkbase, schema, or EDGAR
// bookkeeping file. Inline XBRL filings name it <primary>_htm.xml.
func (c *Crawler) LocateInstanceDocument(ctx context.Context, filing Filing) (string, error) {
	indexURL := c.archiveURL(filing)
	body, err := c.client.Fetch(ctx, indexURL, "archive_index")
	if err != nil {
		return "", fmt.Errorf("fetch archive index: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse archive index: %w", err)
	}

	var names []string
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		if i := strings.LastIndex(href, "/"); i >= 0 {
			href = href[i+1:]
		}
		if href != "" {
			names = append(names, href)
		}
	})

	name := pickInstanceDocument(names, filing.PrimaryDocument)
	if name == "" {
		return "", fmt.Errorf("no XBRL instance document in %s", indexURL)
	}
	return indexURL + name, nil
}

// pickInstanceDocument chooses the instance from a directory listing.
// Preference order: the inline-XBRL extraction (<primary>_htm.xml), then any
// other .xml that is not a linkbase or EDGAR metadata file.
func pickInstanceDocument(names []string, primaryDocument string) string {
	htmXML := strings.TrimSuffix(primaryDocument, ".htm") + "_htm.xml"
	for _, n := range names {
		if n == htmXML {
			return n
		}
	}
	for _, n := range names {
		if strings.HasSuffix(n, "_htm.xml") {
			return n
		}
	}
	for _, n := range names {
		lower := strings.ToLower(n)
		if !strings.HasSuffix(lower, ".xml") {
			continue
		}
		if strings.HasSuffix(lower, "_cal.xml") || strings.HasSuffix(lower, "_def.xml") ||
			strings.HasSuffix(lower, "_lab.xml") || strings.HasSuffix(lower, "_pre.xml") {
			continue
		}
		if lower == "filingsummary.xml" {
			continue
		}
		return n
	}
	return ""
}

// CrawlCompany fetches one company's submissions, filters them, downloads
// each instance document, and hands it to handle. Failures are per filing.
func (c *Crawler) CrawlCompany(ctx context.Context, cik string, filter FilingFilter, handle FilingHandler) CrawlResult {
	result := CrawlResult{
		ID:        uuid.New(),
		CIK:       PadCIK(cik),
		StartedAt: time.Now().UTC(),
	}
	name, filings, err := c.FetchSubmissions(ctx, cik)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.CompletedAt = time.Now().UTC()
		return result
	}
	result.CompanyName = name
	result.FilingsFound = len(filings)

	selected := FilterFilings(filings, filter)
	result.FilingsFiltered = len(selected)

	for _, filing := range selected {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ctx.Err().Error())
			break
		}
		instanceURL, err := c.LocateInstanceDocument(ctx, filing)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", filing.AccessionNumber, err))
			continue
		}
		data, err := c.client.Fetch(ctx, instanceURL, "instance_document")
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", filing.AccessionNumber, err))
			continue
		}
		result.BytesDownloaded += int64(len(data))
		if handle != nil {
			if err := handle(ctx, filing, data); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", filing.AccessionNumber, err))
				continue
			}
		}
		result.Downloaded++
	}
	result.CompletedAt = time.Now().UTC()
	return result
}

// CrawlCompanies crawls several CIKs with a bounded number of companies in
// flight. One CrawlResult per CIK, in input order.
func (c *Crawler) CrawlCompanies(ctx context.Context, ciks []string, filter FilingFilter, handle FilingHandler) []CrawlResult {
	bound := c.CompanyConcurrency
	if bound <= 0 {
		bound = defaultCompanyConcurrency
	}
	sem := semaphore.NewWeighted(bound)

	results := make([]CrawlResult, len(ciks))
	var wg sync.WaitGroup
	for i, cik := range ciks {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = CrawlResult{
				ID:        uuid.New(),
				CIK:       PadCIK(cik),
				StartedAt: time.Now().UTC(),
				Errors:    []string{err.Error()},
			}
			results[i].CompletedAt = results[i].StartedAt
			continue
		}
		wg.Add(1)
		go func(i int, cik string) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = c.CrawlCompany(ctx, cik, filter, handle)
		}(i, cik)
	}
	wg.Wait()
	return results
}

// PadCIK left-pads a CIK to the 10 digits the submissions API expects.
func PadCIK(cik string) string {
	cik = strings.TrimSpace(cik)
	for len(cik) < 10 {
		cik = "0" + cik
	}
	return cik
}
