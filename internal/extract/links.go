package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// LinkClass labels what a page link points at.
type LinkClass string

// Link classes assigned by ClassifyLinks.
const (
	LinkInternal LinkClass = "internal"
	LinkExternal LinkClass = "external"
	LinkSocial   LinkClass = "social"
	LinkContact  LinkClass = "contact"
	LinkAbout    LinkClass = "about"
	LinkCareers  LinkClass = "careers"
	LinkMailto   LinkClass = "mailto"
	LinkTel      LinkClass = "tel"
)

// Link is one classified anchor from a page.
type Link struct {
	URL      string    `json:"url"`
	Text     string    `json:"text,omitempty"`
	Class    LinkClass `json:"class"`
	Network  string    `json:"network,omitempty"`
	NoFollow bool      `json:"nofollow,omitempty"`
}

// LinkSummary aggregates the classified links of one page.
type LinkSummary struct {
	Links    []Link `json:"links"`
	Internal int    `json:"internal"`
	External int    `json:"external"`
	Social   int    `json:"social"`
}

var contactPathMarkers = []string{"contact", "kontakt", "get-in-touch", "reach-us"}
var aboutPathMarkers = []string{"about", "about-us", "our-story", "who-we-are", "company"}
var careersPathMarkers = []string{"career", "careers", "jobs", "join-us", "hiring"}

// ClassifyLinks walks every anchor on the page and labels it relative to the
// page's own host. Relative hrefs are resolved against pageURL.
func ClassifyLinks(doc *goquery.Document, pageURL string) LinkSummary {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = &url.URL{}
	}
	summary := LinkSummary{}
	seen := map[string]bool{}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return
		}
		link := Link{Text: strings.TrimSpace(sel.Text())}
		if rel, ok := sel.Attr("rel"); ok && strings.Contains(rel, "nofollow") {
			link.NoFollow = true
		}

		switch {
		case strings.HasPrefix(href, "mailto:"):
			link.URL = href
			link.Class = LinkMailto
		case strings.HasPrefix(href, "tel:"):
			link.URL = href
			link.Class = LinkTel
		default:
			resolved, resolveErr := base.Parse(href)
			if resolveErr != nil {
				return
			}
			link.URL = resolved.String()
			link.Class, link.Network = classifyHTTPLink(resolved, base)
		}

		if seen[link.URL] {
			return
		}
		seen[link.URL] = true

		switch link.Class {
		case LinkInternal, LinkContact, LinkAbout, LinkCareers:
			summary.Internal++
		case LinkSocial:
			summary.Social++
		case LinkExternal:
			summary.External++
		}
		summary.Links = append(summary.Links, link)
	})
	return summary
}

func classifyHTTPLink(resolved, base *url.URL) (LinkClass, string) {
	host := strings.ToLower(resolved.Hostname())
	for marker, network := range socialHosts {
		if strings.HasSuffix(host, marker) {
			return LinkSocial, network
		}
	}

	sameHost := host == strings.ToLower(base.Hostname()) || host == ""
	if !sameHost {
		return LinkExternal, ""
	}

	path := strings.ToLower(resolved.Path)
	switch {
	case pathMatches(path, contactPathMarkers):
		return LinkContact, ""
	case pathMatches(path, aboutPathMarkers):
		return LinkAbout, ""
	case pathMatches(path, careersPathMarkers):
		return LinkCareers, ""
	default:
		return LinkInternal, ""
	}
}

func pathMatches(path string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
