package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docFrom(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestCompanyExtractorFullPage(t *testing.T) {
	t.Parallel()

	html := `<!doctype html><html>
<head>
<title>Acme Robotics | Industrial Automation</title>
<meta property="og:site_name" content="Acme Robotics">
</head>
<body>
<h1>We build robots</h1>
<p>Founded in 2009 by our CEO and Co-Founder, Acme makes manufacturing automation.</p>
<p>Reach us at <a href="mailto:hello@acme.example?subject=hi">hello@acme.example</a>
or sales@acme.example, call <a href="tel:+14155550137">+1 415 555 0137</a>.</p>
<p>Visit us at 500 Harrison Street, Suite 200, San Francisco.</p>
<footer>
<a href="https://www.linkedin.com/company/acme">LinkedIn</a>
<a href="https://twitter.com/acme">Twitter</a>
<a href="https://instagram.com/acme">Instagram</a>
</footer>
</body></html>`

	profile := NewCompanyExtractor(2026).Extract(docFrom(t, html))

	assert.Equal(t, "Acme Robotics", profile.Name)
	assert.ElementsMatch(t, []string{"hello@acme.example", "sales@acme.example"}, profile.Emails)
	assert.Contains(t, profile.Phones, "+14155550137")
	require.NotEmpty(t, profile.Addresses)
	assert.Contains(t, profile.Addresses[0], "500 Harrison Street")
	assert.Equal(t, 2009, profile.FoundingYear)
	assert.Contains(t, profile.Industries, "manufacturing")
	assert.ElementsMatch(t, []string{"Ceo", "Co-founder"}, profile.Personnel)

	require.Len(t, profile.SocialLinks, 3)
	assert.Equal(t, "https://www.linkedin.com/company/acme", profile.SocialLinks["linkedin"])
	assert.Equal(t, "https://twitter.com/acme", profile.SocialLinks["twitter"])
	assert.Equal(t, "https://instagram.com/acme", profile.SocialLinks["instagram"])

	// email+phone+socials(3)+address+name+industry+year+personnel
	assert.InDelta(t, 1.0, profile.Confidence, 0.001)
}

func TestCompanyNameFallsBackToTitle(t *testing.T) {
	t.Parallel()

	profile := NewCompanyExtractor(0).Extract(docFrom(t,
		`<html><head><title>Beta Corp - Home</title></head><body></body></html>`))
	assert.Equal(t, "Beta Corp", profile.Name)

	profile = NewCompanyExtractor(0).Extract(docFrom(t,
		`<html><head><title>Gamma Widgets</title></head><body></body></html>`))
	assert.Equal(t, "Gamma Widgets", profile.Name)
}

func TestCompanyExtractorFiltersJunkEmails(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<p>logo@2x.png and icon@small.jpg are assets, real@company.example is not.</p>
</body></html>`
	profile := NewCompanyExtractor(0).Extract(docFrom(t, html))
	assert.Equal(t, []string{"real@company.example"}, profile.Emails)
}

func TestCompanyExtractorFoundingYearBounds(t *testing.T) {
	t.Parallel()

	ex := NewCompanyExtractor(2026)
	profile := ex.Extract(docFrom(t, `<html><body><p>Established in 1750.</p></body></html>`))
	assert.Zero(t, profile.FoundingYear)

	profile = ex.Extract(docFrom(t, `<html><body><p>Established in 2099.</p></body></html>`))
	assert.Zero(t, profile.FoundingYear)

	profile = ex.Extract(docFrom(t, `<html><body><p>Serving coffee since 1994.</p></body></html>`))
	assert.Equal(t, 1994, profile.FoundingYear)
}

func TestConfidenceWeights(t *testing.T) {
	t.Parallel()

	assert.Zero(t, Confidence(CompanyProfile{}))
	assert.InDelta(t, 0.30, Confidence(CompanyProfile{Emails: []string{"a@b.c"}}), 0.001)
	assert.InDelta(t, 0.50, Confidence(CompanyProfile{
		Emails: []string{"a@b.c"},
		Phones: []string{"+1 222 333 4444"},
	}), 0.001)
	assert.InDelta(t, 0.15, Confidence(CompanyProfile{
		SocialLinks: map[string]string{"linkedin": "x"},
	}), 0.001)
	assert.InDelta(t, 0.20, Confidence(CompanyProfile{
		SocialLinks: map[string]string{"linkedin": "x", "twitter": "y", "facebook": "z"},
	}), 0.001)

	full := CompanyProfile{
		Name:         "A",
		Emails:       []string{"a@b.c"},
		Phones:       []string{"p"},
		Addresses:    []string{"addr"},
		SocialLinks:  map[string]string{"a": "1", "b": "2", "c": "3"},
		Industries:   []string{"x"},
		FoundingYear: 2000,
		Personnel:    []string{"Ceo"},
	}
	assert.LessOrEqual(t, Confidence(full), 1.0)
}
