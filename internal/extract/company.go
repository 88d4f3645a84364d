// Package extract applies regex/keyword heuristics to scraped page content to
// pull out structured company, contact, and social-media data. The heuristics
// are approximate by design; confidence scores report how much corroborating
// signal was found.
package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CompanyProfile is the structured output of company-page extraction.
type CompanyProfile struct {
	Name         string            `json:"name,omitempty"`
	Emails       []string          `json:"emails,omitempty"`
	Phones       []string          `json:"phones,omitempty"`
	Addresses    []string          `json:"addresses,omitempty"`
	SocialLinks  map[string]string `json:"social_links,omitempty"`
	Industries   []string          `json:"industries,omitempty"`
	FoundingYear int               `json:"founding_year,omitempty"`
	Personnel    []string          `json:"personnel,omitempty"`
	Confidence   float64           `json:"confidence"`
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d{1,3}[\s.\-]?\(?\d{2,4}\)?[\s.\-]?\d{3,4}[\s.\-]?\d{3,4}`)

	// Street addresses: "123 Main Street", "45 Market St, Suite 200".
	addressPattern = regexp.MustCompile(
		`(?i)\b\d{1,5}\s+[A-Za-z][A-Za-z\s]{2,30}\s+` +
			`(Street|St|Avenue|Ave|Boulevard|Blvd|Road|Rd|Drive|Dr|Lane|Ln|Way|Court|Ct|Plaza|Suite)\b[^\n<]{0,40}`)

	foundingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)founded\s+in\s+(\d{4})`),
		regexp.MustCompile(`(?i)established\s+in\s+(\d{4})`),
		regexp.MustCompile(`(?i)\bsince\s+(\d{4})\b`),
		regexp.MustCompile(`(?i)\best\.?\s+(\d{4})\b`),
	}

	personnelPattern = regexp.MustCompile(
		`(?i)\b(CEO|CTO|CFO|COO|CMO|Chief\s+\w+\s+Officer|Founder|Co-Founder|President|Managing\s+Director|VP\s+of\s+\w+)\b`)
)

// socialHosts maps a host substring to a social network label.
var socialHosts = map[string]string{
	"linkedin.com":  "linkedin",
	"facebook.com":  "facebook",
	"twitter.com":   "twitter",
	"x.com":         "twitter",
	"instagram.com": "instagram",
	"youtube.com":   "youtube",
	"tiktok.com":    "tiktok",
}

// industryKeywords maps lowercase markers to industry labels.
var industryKeywords = map[string]string{
	"software":      "software",
	"saas":          "software",
	"fintech":       "finance",
	"banking":       "finance",
	"insurance":     "insurance",
	"healthcare":    "healthcare",
	"medical":       "healthcare",
	"real estate":   "real estate",
	"construction":  "construction",
	"manufacturing": "manufacturing",
	"logistics":     "logistics",
	"e-commerce":    "retail",
	"ecommerce":     "retail",
	"retail":        "retail",
	"consulting":    "consulting",
	"marketing":     "marketing",
	"education":     "education",
	"legal":         "legal",
	"law firm":      "legal",
	"restaurant":    "hospitality",
	"hospitality":   "hospitality",
}

// junkEmailSuffixes filter assets that the email regex happily matches.
var junkEmailSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}

// CompanyExtractor pulls a CompanyProfile from a page document.
type CompanyExtractor struct {
	minYear int
	maxYear int
}

// NewCompanyExtractor builds an extractor. maxYear bounds plausible founding
// years, normally the current year.
func NewCompanyExtractor(maxYear int) *CompanyExtractor {
	if maxYear <= 0 {
		maxYear = 2100
	}
	return &CompanyExtractor{minYear: 1800, maxYear: maxYear}
}

// Extract parses the document and derives the company profile.
func (e *CompanyExtractor) Extract(doc *goquery.Document) CompanyProfile {
	text := doc.Text()
	profile := CompanyProfile{
		Name:        extractCompanyName(doc),
		Emails:      e.extractEmails(doc, text),
		Phones:      extractPhones(doc, text),
		Addresses:   dedupe(addressPattern.FindAllString(text, 5)),
		SocialLinks: extractSocialLinks(doc),
		Industries:  extractIndustries(text),
		Personnel:   dedupe(normalizeTitles(personnelPattern.FindAllString(text, 10))),
	}
	profile.FoundingYear = e.extractFoundingYear(text)
	profile.Confidence = Confidence(profile)
	return profile
}

func extractCompanyName(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:site_name"]`).Attr("content"); ok && og != "" {
		return strings.TrimSpace(og)
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	// "Acme Corp | Home" and friends.
	for _, sep := range []string{" | ", " – ", " - ", " — "} {
		if idx := strings.Index(title, sep); idx > 0 {
			return strings.TrimSpace(title[:idx])
		}
	}
	return title
}

func (e *CompanyExtractor) extractEmails(doc *goquery.Document, text string) []string {
	found := emailPattern.FindAllString(text, 20)
	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		addr := strings.TrimPrefix(href, "mailto:")
		if idx := strings.Index(addr, "?"); idx >= 0 {
			addr = addr[:idx]
		}
		if emailPattern.MatchString(addr) {
			found = append(found, addr)
		}
	})
	clean := found[:0]
	for _, addr := range found {
		lower := strings.ToLower(addr)
		if hasAnySuffix(lower, junkEmailSuffixes) {
			continue
		}
		clean = append(clean, lower)
	}
	return dedupe(clean)
}

func extractPhones(doc *goquery.Document, text string) []string {
	found := make([]string, 0, 4)
	doc.Find(`a[href^="tel:"]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		found = append(found, strings.TrimPrefix(href, "tel:"))
	})
	for _, m := range phonePattern.FindAllString(text, 10) {
		if digitCount(m) >= 8 {
			found = append(found, strings.TrimSpace(m))
		}
	}
	return dedupe(found)
}

func extractSocialLinks(doc *goquery.Document) map[string]string {
	links := map[string]string{}
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		host := hostOf(href)
		if host == "" {
			return
		}
		for marker, network := range socialHosts {
			if strings.HasSuffix(host, marker) {
				if _, exists := links[network]; !exists {
					links[network] = href
				}
			}
		}
	})
	if len(links) == 0 {
		return nil
	}
	return links
}

func extractIndustries(text string) []string {
	lower := strings.ToLower(text)
	seen := map[string]bool{}
	industries := make([]string, 0, 4)
	for marker, label := range industryKeywords {
		if strings.Contains(lower, marker) && !seen[label] {
			seen[label] = true
			industries = append(industries, label)
		}
	}
	sort.Strings(industries)
	return industries
}

func (e *CompanyExtractor) extractFoundingYear(text string) int {
	for _, pattern := range foundingPatterns {
		match := pattern.FindStringSubmatch(text)
		if len(match) < 2 {
			continue
		}
		year, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		if year >= e.minYear && year <= e.maxYear {
			return year
		}
	}
	return 0
}

// Confidence maps extraction signals into [0,1] with manual weights. Absent
// signals contribute zero.
func Confidence(p CompanyProfile) float64 {
	score := 0.0
	if len(p.Emails) > 0 {
		score += 0.30
	}
	if len(p.Phones) > 0 {
		score += 0.20
	}
	if len(p.SocialLinks) > 0 {
		score += 0.15
	}
	if len(p.SocialLinks) >= 3 {
		score += 0.05
	}
	if len(p.Addresses) > 0 {
		score += 0.10
	}
	if p.Name != "" {
		score += 0.05
	}
	if len(p.Industries) > 0 {
		score += 0.05
	}
	if p.FoundingYear > 0 {
		score += 0.05
	}
	if len(p.Personnel) > 0 {
		score += 0.05
	}
	if score > 1 {
		score = 1
	}
	return score
}

func normalizeTitles(titles []string) []string {
	out := make([]string, 0, len(titles))
	for _, t := range titles {
		out = append(out, strings.ToUpper(t[:1])+strings.ToLower(t[1:]))
	}
	return out
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

func digitCount(s string) int {
	count := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			count++
		}
	}
	return count
}

func dedupe(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		key := strings.ToLower(strings.TrimSpace(item))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(item))
	}
	return out
}
