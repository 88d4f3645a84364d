// Package lead defines core types shared across subsystems.
package lead

import (
	"net/http"
	"time"
)

// JobStatus represents the lifecycle state of a prospect-search job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// JobParameters captures per-job configuration knobs requested by the client.
type JobParameters struct {
	Query                 string            `json:"query"`
	Pages                 int               `json:"pages"`
	PerPage               int               `json:"per_page"`
	MaxSites              int               `json:"max_sites"`
	Country               string            `json:"country"`
	Language              string            `json:"language"`
	BudgetSeconds         int               `json:"budget_seconds"`
	HeadlessAllowed       bool              `json:"headless_allowed" mapstructure:"headless_allowed"`
	HeadlessProvided      bool              `json:"-" mapstructure:"headless_provided"`
	RespectRobots         bool              `json:"respect_robots" mapstructure:"respect_robots"`
	RespectRobotsProvided bool              `json:"-" mapstructure:"respect_robots_provided"`
	Tags                  map[string]string `json:"tags"`
	AllowDomains          []string          `json:"allow_domains"`
	DenyDomains           []string          `json:"deny_domains"`
}

// Job represents the metadata persisted for each submitted search request.
type Job struct {
	ID         string        `json:"id"`
	Status     JobStatus     `json:"status"`
	Submitted  time.Time     `json:"submitted_at"`
	Started    *time.Time    `json:"started_at,omitempty"`
	Finished   *time.Time    `json:"finished_at,omitempty"`
	ErrorText  string        `json:"error_text,omitempty"`
	Parameters JobParameters `json:"parameters"`
	Counters   JobCounters   `json:"counters"`
}

// JobCounters tracks success/failure stats per job.
type JobCounters struct {
	SERPPagesSucceeded int `json:"serp_pages_succeeded"`
	SERPPagesFailed    int `json:"serp_pages_failed"`
	SitesSucceeded     int `json:"sites_succeeded"`
	SitesFailed        int `json:"sites_failed"`
	Retries            int `json:"retries"`
}

// Record is the structured lead persisted for each scraped company site.
type Record struct {
	JobID        string    `json:"job_id"`
	Rank         int       `json:"rank"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Domain       string    `json:"domain"`
	Description  string    `json:"description"`
	StatusCode   int       `json:"status_code"`
	UsedHeadless bool      `json:"used_headless"`
	FetchedAt    time.Time `json:"fetched_at"`
	DurationMs   int64     `json:"duration_ms"`
	ContentHash  string    `json:"content_hash"`
	BlobURI      string    `json:"blob_uri"`

	CompanyName  string            `json:"company_name,omitempty"`
	Emails       []string          `json:"emails,omitempty"`
	Phones       []string          `json:"phones,omitempty"`
	Addresses    []string          `json:"addresses,omitempty"`
	SocialLinks  map[string]string `json:"social_links,omitempty"`
	Industries   []string          `json:"industries,omitempty"`
	FoundingYear int               `json:"founding_year,omitempty"`
	Personnel    []string          `json:"personnel,omitempty"`
	Keywords     []string          `json:"keywords,omitempty"`
	Confidence   float64           `json:"confidence"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	JobID                 string
	URL                   string
	UseHeadless           bool
	Headers               http.Header
	RespectRobots         bool
	RespectRobotsProvided bool
}

// RobotsStatus records the outcome of the robots.txt probe for a fetch.
type RobotsStatus string

// Robots probe outcomes.
const (
	RobotsStatusUnknown       RobotsStatus = ""
	RobotsStatusIndeterminate RobotsStatus = "indeterminate"
)

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
	RobotsStatus RobotsStatus
	RobotsReason string
}

// JobResult is returned by the API leads endpoint.
type JobResult struct {
	Job   Job      `json:"job"`
	Leads []Record `json:"leads"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Params    JobParameters
	Attempt   int
	Submitted int64
}
