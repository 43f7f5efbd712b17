package probe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/chatcast/dom/snapshot"
	"github.com/hazyhaar/chatcast/outcome"
	"github.com/hazyhaar/chatcast/siteconfig"
)

const maxPageBytes = 8 << 20

// Fetcher performs the HTTP-only page load used when no browser is at hand.
type Fetcher struct {
	client *http.Client
	ua     string
	logger *slog.Logger
}

// FetchOption configures a Fetcher.
type FetchOption func(*Fetcher)

// WithClient sets the HTTP client.
func WithClient(c *http.Client) FetchOption { return func(f *Fetcher) { f.client = c } }

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetchOption { return func(f *Fetcher) { f.ua = ua } }

// WithFetchLogger sets the logger.
func WithFetchLogger(l *slog.Logger) FetchOption { return func(f *Fetcher) { f.logger = l } }

// NewFetcher creates a Fetcher.
func NewFetcher(opts ...FetchOption) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		ua:     "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch GETs pageURL and returns the body.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("probe: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe: fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("probe: fetch %s: status %d", pageURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("probe: read %s: %w", pageURL, err)
	}
	f.logger.Debug("probe: fetched", "url", pageURL, "bytes", len(body))
	return body, nil
}

// FetchAndDiagnose loads pageURL over HTTP and diagnoses the static HTML.
// Chat UIs are usually client rendered, so the result carries a warning
// when the page looks like an empty shell.
func (p *Prober) FetchAndDiagnose(ctx context.Context, pageURL string, site *siteconfig.SiteConfig) (*outcome.Diagnosis, error) {
	body, err := p.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := snapshot.ParseReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("probe: parse %s: %w", pageURL, err)
	}
	d := p.Diagnose(ctx, Page{URL: pageURL, Doc: doc, HTML: string(body), Site: site})
	if IsShell(body) {
		d.Warnings = append(d.Warnings, "page: static HTML looks client rendered, probe with a browser")
	}
	return d, nil
}

// IsShell reports whether html looks like an SPA shell: little visible
// text relative to markup, or an empty mount point.
func IsShell(src []byte) bool {
	lower := bytes.ToLower(src)
	for _, ind := range shellIndicators {
		if bytes.Contains(lower, []byte(ind)) {
			return true
		}
	}
	text, total := visibleText(src)
	if total == 0 {
		return true
	}
	return text < 200 || float64(text)/float64(total) < 0.10
}

var shellIndicators = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
	`<noscript>you need to enable javascript`,
	`<noscript>enable javascript`,
}

// visibleText counts non-space text bytes outside script and style, and
// the total input length.
func visibleText(src []byte) (text, total int) {
	z := html.NewTokenizer(bytes.NewReader(src))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return text, len(src)
		case html.StartTagToken:
			if name, _ := z.TagName(); isRawText(string(name)) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isRawText(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				text += len(strings.Join(strings.Fields(string(z.Text())), ""))
			}
		}
	}
}

func isRawText(name string) bool {
	return name == "script" || name == "style" || name == "noscript" || name == "template"
}
