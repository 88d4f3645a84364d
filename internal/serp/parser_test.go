package serp

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serpHTML(results string, stats string) []byte {
	return []byte(fmt.Sprintf(`<!doctype html><html><body>
<div id="result-stats">%s</div>
<div id="search">%s</div>
</body></html>`, stats, results))
}

func organicResult(title, href, desc string) string {
	return fmt.Sprintf(`<div class="g">
<div class="yuRUbf"><a href="%s"><h3 class="LC20lb">%s</h3></a></div>
<div class="VwiC3b">%s</div>
</div>`, href, title, desc)
}

func TestParserParseOrganicResults(t *testing.T) {
	t.Parallel()

	html := serpHTML(
		organicResult("Acme Robotics", "https://acme.example/", "Industrial robots.")+
			organicResult("Beta Corp", "https://beta.example/about", "Beta does things."),
		"About 1,234 results (0.42 seconds)",
	)

	page, err := NewParser(nil).Parse(html, "robots", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Results, 2)

	first := page.Results[0]
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, "Acme Robotics", first.Title)
	assert.Equal(t, "https://acme.example/", first.URL)
	assert.Equal(t, "acme.example", first.Domain)
	assert.Equal(t, "Industrial robots.", first.Description)
	assert.Equal(t, 2, page.Results[1].Rank)

	assert.Equal(t, int64(1234), page.Pagination.TotalResults)
	assert.False(t, page.Pagination.TotalEstimated)
	assert.Equal(t, 124, page.Pagination.TotalPages)
	assert.True(t, page.Pagination.HasNext)
	assert.False(t, page.Pagination.HasPrev)
	assert.Equal(t, 1, page.Pagination.FirstResult)
	assert.Equal(t, 2, page.Pagination.LastResult)
}

func TestParserRankOffsetOnLaterPages(t *testing.T) {
	t.Parallel()

	html := serpHTML(organicResult("Gamma", "https://gamma.example/", ""), "")
	page, err := NewParser(nil).Parse(html, "q", 3, 10)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, 21, page.Results[0].Rank)
	assert.Equal(t, 3, page.Results[0].Page)
	assert.True(t, page.Pagination.HasPrev)
	assert.Equal(t, 21, page.Pagination.FirstResult)
	assert.Equal(t, 21, page.Pagination.LastResult)
}

func TestParserSkipsAdsAndGoogleLinks(t *testing.T) {
	t.Parallel()

	ad := `<div class="g"><div class="uEierd">
<div class="yuRUbf"><a href="https://ads.example/"><h3>Sponsored thing</h3></a></div>
</div></div>`
	googleLink := organicResult("Maps result", "https://maps.google.com/place", "")
	html := serpHTML(ad+googleLink+organicResult("Real", "https://real.example/", ""), "")

	page, err := NewParser(nil).Parse(html, "q", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "https://real.example/", page.Results[0].URL)
}

func TestParserUnwrapsRedirectLinks(t *testing.T) {
	t.Parallel()

	redirect := organicResult("Indirect", "/url?q=https%3A%2F%2Ftarget.example%2Fpage&sa=U", "")
	page, err := NewParser(nil).Parse(serpHTML(redirect, ""), "q", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "https://target.example/page", page.Results[0].URL)
	assert.Equal(t, "target.example", page.Results[0].Domain)
}

func TestParserSelectorFallback(t *testing.T) {
	t.Parallel()

	// None of the classic classes present; only the structural fallback holds.
	html := []byte(`<html><body><div id="rso">
<div><a href="https://fallback.example/"><h3>Fallback Co</h3></a></div>
</div></body></html>`)

	page, err := NewParser(nil).Parse(html, "q", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "Fallback Co", page.Results[0].Title)
}

func TestParserBlockedPage(t *testing.T) {
	t.Parallel()

	for _, marker := range []string{
		`<div class="g-recaptcha"></div>`,
		`Our systems have detected unusual traffic`,
	} {
		_, err := NewParser(nil).Parse([]byte("<html><body>"+marker+"</body></html>"), "q", 1, 10)
		require.ErrorIs(t, err, ErrBlocked, marker)
	}
}

func TestParserEmptyPageIsNotError(t *testing.T) {
	t.Parallel()

	page, err := NewParser(nil).Parse([]byte("<html><body><div id='search'></div></body></html>"), "q", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Results)
	assert.Equal(t, 0, page.Pagination.FirstResult)
	assert.Equal(t, 0, page.Pagination.LastResult)
	assert.False(t, page.Pagination.HasNext)
}

func TestParserPerPageCap(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	for i := 0; i < 15; i++ {
		sb.WriteString(organicResult(fmt.Sprintf("Result %d", i), fmt.Sprintf("https://r%d.example/", i), ""))
	}
	page, err := NewParser(nil).Parse(serpHTML(sb.String(), ""), "q", 1, 10)
	require.NoError(t, err)
	assert.Len(t, page.Results, 10)
}

func TestParserEstimatedTotals(t *testing.T) {
	t.Parallel()

	// Full page with no stats line: estimate assumes at least one more page.
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteString(organicResult(fmt.Sprintf("R%d", i), fmt.Sprintf("https://e%d.example/", i), ""))
	}
	page, err := NewParser(nil).Parse(serpHTML(sb.String(), ""), "q", 1, 10)
	require.NoError(t, err)
	assert.True(t, page.Pagination.TotalEstimated)
	assert.Equal(t, int64(20), page.Pagination.TotalResults)
	assert.True(t, page.Pagination.HasNext)

	// Short page: estimate stops at what was seen.
	page, err = NewParser(nil).Parse(serpHTML(organicResult("Only", "https://only.example/", ""), ""), "q", 2, 10)
	require.NoError(t, err)
	assert.True(t, page.Pagination.TotalEstimated)
	assert.Equal(t, int64(11), page.Pagination.TotalResults)
	assert.False(t, page.Pagination.HasNext)
}

func TestComputePagination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		total     int64
		estimated bool
		page      int
		perPage   int
		actual    int
		wantPages int
		wantNext  bool
	}{
		{name: "exact total mid-way", total: 95, page: 2, perPage: 10, actual: 10, wantPages: 10, wantNext: true},
		{name: "exact total last page", total: 95, page: 10, perPage: 10, actual: 5, wantPages: 10, wantNext: false},
		{name: "estimated full page", total: 20, estimated: true, page: 1, perPage: 10, actual: 10, wantPages: 2, wantNext: true},
		{name: "estimated short page", total: 13, estimated: true, page: 2, perPage: 10, actual: 3, wantPages: 2, wantNext: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := computePagination(tc.total, tc.estimated, tc.page, tc.perPage, tc.actual)
			assert.Equal(t, tc.wantPages, got.TotalPages)
			assert.Equal(t, tc.wantNext, got.HasNext)
		})
	}
}
