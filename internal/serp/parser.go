package serp

import (
	"bytes"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Selector fallback chains per semantic role, tried in priority order until
// one yields non-empty matches. Google rotates class names; keep the most
// specific first and the structural catch-alls last.
var (
	containerSelectors = []string{
		"#search div.g",
		"#rso div.g",
		"div.MjjYud",
		"#search div[data-hveid]",
		"#rso > div",
	}
	titleSelectors = []string{
		"h3.LC20lb",
		"h3",
	}
	urlSelectors = []string{
		".yuRUbf a",
		"a[href]",
	}
	descriptionSelectors = []string{
		"div.VwiC3b",
		".IsZvec",
		".st",
	}
)

// adMarkers flag containers that are ads, knowledge panels, or other
// non-organic features. A container whose HTML contains any marker is dropped.
var adMarkers = []string{
	"uEierd",
	"commercial-unit",
	"data-text-ad",
	"kp-wholepage",
	"ULSxyf",
	"data-sokoban-feature",
}

// blockedMarkers identify captcha and consent interstitials.
var blockedMarkers = []string{
	"g-recaptcha",
	"recaptcha/api.js",
	"Our systems have detected unusual traffic",
	"consent.google.com",
}

var totalResultPatterns = []*regexp.Regexp{
	regexp.MustCompile(`About ([\d,.]+) results`),
	regexp.MustCompile(`([\d,.]+) results`),
}

// Parser extracts organic results and pagination metadata from SERP HTML.
type Parser struct {
	logger *zap.Logger
}

// NewParser builds a Parser.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// Parse extracts one SERP page. An empty page is not an error; a captcha or
// consent interstitial is (ErrBlocked).
func (p *Parser) Parse(html []byte, query string, page, perPage int) (Page, error) {
	if perPage <= 0 {
		perPage = 10
	}
	if page <= 0 {
		page = 1
	}
	for _, marker := range blockedMarkers {
		if bytes.Contains(html, []byte(marker)) {
			return Page{}, fmt.Errorf("parse page %d: %w", page, ErrBlocked)
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Page{}, fmt.Errorf("parse serp html: %w", err)
	}

	containers := p.findFirst(doc, containerSelectors)
	results := make([]Result, 0, perPage)
	rank := (page-1)*perPage + 1
	containers.Each(func(_ int, sel *goquery.Selection) {
		if len(results) >= perPage {
			return
		}
		if isAdContainer(sel) {
			return
		}
		res, ok := p.extractResult(sel)
		if !ok {
			return
		}
		res.Rank = rank
		res.Page = page
		results = append(results, res)
		rank++
	})

	total, estimated := extractTotalResults(doc, page, perPage, len(results))
	pagination := computePagination(total, estimated, page, perPage, len(results))

	return Page{
		Query:      query,
		Results:    results,
		Pagination: pagination,
	}, nil
}

// findFirst walks the selector chain and returns matches from the first
// selector that yields any.
func (p *Parser) findFirst(doc *goquery.Document, selectors []string) *goquery.Selection {
	for _, selector := range selectors {
		sel := doc.Find(selector)
		if sel.Length() > 0 {
			return sel
		}
	}
	return doc.Find(selectors[len(selectors)-1])
}

func (p *Parser) extractResult(sel *goquery.Selection) (Result, bool) {
	title := firstText(sel, titleSelectors)
	if title == "" {
		return Result{}, false
	}
	href := firstAttr(sel, urlSelectors, "href")
	href = unwrapRedirect(href)
	if href == "" || !strings.HasPrefix(href, "http") {
		return Result{}, false
	}
	if strings.Contains(hostOf(href), "google.") {
		return Result{}, false
	}
	return Result{
		Title:       title,
		URL:         href,
		Domain:      hostOf(href),
		Description: firstText(sel, descriptionSelectors),
	}, true
}

func isAdContainer(sel *goquery.Selection) bool {
	html, err := goquery.OuterHtml(sel)
	if err != nil {
		return false
	}
	for _, marker := range adMarkers {
		if strings.Contains(html, marker) {
			return true
		}
	}
	return false
}

func firstText(sel *goquery.Selection, selectors []string) string {
	for _, s := range selectors {
		found := sel.Find(s)
		if found.Length() > 0 {
			if text := strings.TrimSpace(found.First().Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

func firstAttr(sel *goquery.Selection, selectors []string, attr string) string {
	for _, s := range selectors {
		found := sel.Find(s)
		if found.Length() > 0 {
			if val, ok := found.First().Attr(attr); ok && val != "" {
				return val
			}
		}
	}
	return ""
}

// unwrapRedirect resolves Google's /url?q= indirection to the target URL.
func unwrapRedirect(href string) string {
	if !strings.HasPrefix(href, "/url?") {
		return href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if q := parsed.Query().Get("q"); q != "" {
		return q
	}
	return parsed.Query().Get("url")
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// extractTotalResults pulls the total-result count from the result-stats line.
// When no phrasing matches, the total is estimated from what we can see.
func extractTotalResults(doc *goquery.Document, page, perPage, actual int) (int64, bool) {
	stats := doc.Find("#result-stats").Text()
	if stats == "" {
		stats = doc.Find("#resultStats").Text()
	}
	for _, pattern := range totalResultPatterns {
		match := pattern.FindStringSubmatch(stats)
		if len(match) < 2 {
			continue
		}
		digits := strings.NewReplacer(",", "", ".", "").Replace(match[1])
		total, err := strconv.ParseInt(digits, 10, 64)
		if err == nil && total >= 0 {
			return total, false
		}
	}
	// Estimate: everything up to and including this page, plus one more page
	// if this one came back full.
	estimate := int64((page-1)*perPage + actual)
	if actual >= perPage {
		estimate += int64(perPage)
	}
	return estimate, true
}

// computePagination derives page-position metadata.
// total_pages = ceil(total/per_page); has_next = current < total_pages, or
// (when the total is estimated) actual == requested.
func computePagination(total int64, estimated bool, page, perPage, actual int) Pagination {
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	if totalPages < page {
		totalPages = page
	}
	hasNext := page < totalPages
	if estimated {
		hasNext = actual == perPage
	}
	first := (page-1)*perPage + 1
	last := first + actual - 1
	if actual == 0 {
		first, last = 0, 0
	}
	return Pagination{
		CurrentPage:    page,
		PerPage:        perPage,
		TotalResults:   total,
		TotalEstimated: estimated,
		TotalPages:     totalPages,
		HasNext:        hasNext,
		HasPrev:        page > 1,
		FirstResult:    first,
		LastResult:     last,
	}
}
