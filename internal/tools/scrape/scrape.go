package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"
)

const (
	DefaultTimeout  = 20 * time.Second
	MaxCharsDefault = 20000
)

// Page is the cleaned content of one fetched web page. Headings and
// ListItems carry the structural outline, which is where course pages keep
// their curriculum.
type Page struct {
	URL       string
	Title     string
	Byline    string
	SiteName  string
	Text      string
	Headings  []string
	ListItems []string
	Status    int
	RenderMS  int
}

// Scraper fetches and cleans a single page.
type Scraper interface {
	Fetch(ctx context.Context, pageURL string) (Page, error)
}

type Kind string

const (
	ChromeKind Kind = "chromedp"
	HTTPKind   Kind = "http"
)

// New builds a Scraper. Chrome handles JS-rendered course platforms; the
// plain HTTP variant exists for environments without a browser.
func New(kind Kind, timeout time.Duration, maxChars int) (Scraper, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}
	switch kind {
	case ChromeKind:
		return &ChromeScraper{Timeout: timeout, MaxChars: maxChars}, nil
	case HTTPKind:
		return &HTTPScraper{Timeout: timeout, MaxChars: maxChars}, nil
	default:
		return nil, fmt.Errorf("unsupported scraper kind: %s", kind)
	}
}

// ChromeScraper renders pages in headless Chrome before extraction.
type ChromeScraper struct {
	Timeout  time.Duration
	MaxChars int
}

func (s *ChromeScraper) Fetch(ctx context.Context, pageURL string) (Page, error) {
	if strings.TrimSpace(pageURL) == "" {
		return Page{}, errors.New("invalid url")
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	t0 := time.Now()

	html, err := renderHTML(ctx, pageURL)
	if err != nil {
		return Page{URL: pageURL, Status: 599, RenderMS: int(time.Since(t0) / time.Millisecond)}, fmt.Errorf("render %s: %w", pageURL, err)
	}

	page := extract(pageURL, html, s.MaxChars)
	page.RenderMS = int(time.Since(t0) / time.Millisecond)
	return page, nil
}

func renderHTML(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("CurriculaResearch/1.0 (+contact@example.com)"),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

// HTTPScraper fetches pages with a plain GET.
type HTTPScraper struct {
	Timeout  time.Duration
	MaxChars int
	Client   *http.Client
}

func (s *HTTPScraper) Fetch(ctx context.Context, pageURL string) (Page, error) {
	if strings.TrimSpace(pageURL) == "" {
		return Page{}, errors.New("invalid url")
	}
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: s.Timeout}
	}

	t0 := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("User-Agent", "CurriculaResearch/1.0 (+contact@example.com)")

	resp, err := client.Do(req)
	if err != nil {
		return Page{URL: pageURL, Status: 599}, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Page{URL: pageURL, Status: resp.StatusCode}, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Page{URL: pageURL, Status: resp.StatusCode}, err
	}

	page := extract(pageURL, string(body), s.MaxChars)
	page.RenderMS = int(time.Since(t0) / time.Millisecond)
	return page, nil
}

// extract runs readability for the main text and goquery for the outline.
func extract(pageURL, html string, maxChars int) Page {
	page := Page{URL: pageURL, Status: 200}

	article, err := readability.FromReader(strings.NewReader(html), parseURL(pageURL))
	if err == nil {
		page.Title = strings.TrimSpace(article.Title)
		page.Byline = strings.TrimSpace(article.Byline)
		page.SiteName = article.SiteName
		text := strings.TrimSpace(article.TextContent)
		if len(text) > maxChars {
			text = text[:maxChars]
		}
		page.Text = text
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return page
	}
	if page.Title == "" {
		page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	doc.Find("h1, h2, h3").Each(func(_ int, sel *goquery.Selection) {
		if t := cleanLine(sel.Text()); t != "" && len(page.Headings) < 60 {
			page.Headings = append(page.Headings, t)
		}
	})
	doc.Find("li").Each(func(_ int, sel *goquery.Selection) {
		t := cleanLine(sel.Text())
		// Nav links and footers produce tiny or huge items; keep the middle.
		if len(t) >= 5 && len(t) <= 200 && len(page.ListItems) < 200 {
			page.ListItems = append(page.ListItems, t)
		}
	})
	return page
}

func cleanLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func parseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
