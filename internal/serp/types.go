// Package serp implements Google SERP retrieval through a scraping proxy API
// and parsing of result pages into structured data.
package serp

import "time"

// Result is a single organic search result.
type Result struct {
	Rank        int    `json:"rank"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Domain      string `json:"domain"`
	Description string `json:"description"`
	Page        int    `json:"page"`
}

// Pagination describes where a parsed page sits in the overall result set.
type Pagination struct {
	CurrentPage    int   `json:"current_page"`
	PerPage        int   `json:"per_page"`
	TotalResults   int64 `json:"total_results"`
	TotalEstimated bool  `json:"total_estimated"`
	TotalPages     int   `json:"total_pages"`
	HasNext        bool  `json:"has_next"`
	HasPrev        bool  `json:"has_prev"`
	FirstResult    int   `json:"first_result"`
	LastResult     int   `json:"last_result"`
}

// Page is one parsed SERP.
type Page struct {
	Query      string     `json:"query"`
	Results    []Result   `json:"results"`
	Pagination Pagination `json:"pagination"`
	Duration   time.Duration
}

// BatchRequest asks the pager for several pages of one query.
type BatchRequest struct {
	Query    string `json:"query"`
	Pages    int    `json:"pages"`
	PerPage  int    `json:"per_page"`
	Country  string `json:"country"`
	Language string `json:"language"`
}

// PageOutcome records the per-page success/failure of a batch search.
type PageOutcome struct {
	Page        int    `json:"page"`
	ResultCount int    `json:"result_count"`
	Error       string `json:"error,omitempty"`
}

// BatchResult merges the results of a multi-page search into one
// continuously-ranked list ordered by source page.
type BatchResult struct {
	Query          string        `json:"query"`
	Results        []Result      `json:"results"`
	Pages          []PageOutcome `json:"pages"`
	PagesSucceeded int           `json:"pages_succeeded"`
	PagesFailed    int           `json:"pages_failed"`
	TotalResults   int64         `json:"total_results"`
	TotalEstimated bool          `json:"total_estimated"`
}
