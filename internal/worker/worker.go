// Package worker implements the prospect-search pipeline execution loop.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scoutgrid/leadscout/internal/blocklist"
	"github.com/scoutgrid/leadscout/internal/extract"
	"github.com/scoutgrid/leadscout/internal/lead"
	"github.com/scoutgrid/leadscout/internal/progress"
	"github.com/scoutgrid/leadscout/internal/serp"
	"github.com/scoutgrid/leadscout/internal/telemetry"
)

// Config controls Worker behavior.
type Config struct {
	ContentType   string
	BlobPrefix    string
	Topic         string
	MaxSites      int
	MaxKeywords   int
	MinConfidence float64
}

// RateWaiter blocks until the caller may fetch the URL's domain.
type RateWaiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Archiver persists lead rows to long-term storage in addition to the job store.
type Archiver interface {
	StoreLead(ctx context.Context, record lead.Record) error
}

// Worker consumes queue items and executes the search/fetch/extract pipeline.
type Worker struct {
	queue           lead.Queue
	jobStore        lead.JobStore
	blobStore       lead.BlobStore
	publisher       lead.Publisher
	hasher          lead.Hasher
	clock           lead.Clock
	searcher        serp.Searcher
	probeFetcher    lead.Fetcher
	headlessFetcher lead.Fetcher
	detector        lead.HeadlessDetector
	policy          lead.Policy
	limiter         RateWaiter
	extractor       *extract.CompanyExtractor
	archiver        Archiver
	emitter         progress.Emitter
	cfg             Config
	logger          *zap.Logger
}

// New constructs a Worker.
func New(
	queue lead.Queue,
	jobStore lead.JobStore,
	blobStore lead.BlobStore,
	publisher lead.Publisher,
	hasher lead.Hasher,
	clock lead.Clock,
	searcher serp.Searcher,
	probe lead.Fetcher,
	headless lead.Fetcher,
	detector lead.HeadlessDetector,
	policy lead.Policy,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if cfg.MaxSites <= 0 {
		cfg.MaxSites = 10
	}
	if cfg.MaxKeywords <= 0 {
		cfg.MaxKeywords = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	maxYear := 0
	if clock != nil {
		maxYear = clock.Now().Year()
	}
	return &Worker{
		queue:           queue,
		jobStore:        jobStore,
		blobStore:       blobStore,
		publisher:       publisher,
		hasher:          hasher,
		clock:           clock,
		searcher:        searcher,
		probeFetcher:    probe,
		headlessFetcher: headless,
		detector:        detector,
		policy:          policy,
		extractor:       extract.NewCompanyExtractor(maxYear),
		cfg:             cfg,
		logger:          logger,
	}
}

// WithRateLimiter attaches a per-domain rate limiter to site fetches.
func (w *Worker) WithRateLimiter(limiter RateWaiter) *Worker {
	w.limiter = limiter
	return w
}

// WithArchiver attaches a long-term lead archive (e.g. Postgres).
func (w *Worker) WithArchiver(archiver Archiver) *Worker {
	w.archiver = archiver
	return w
}

// WithProgress attaches a progress event emitter.
func (w *Worker) WithProgress(emitter progress.Emitter) *Worker {
	w.emitter = emitter
	return w
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item lead.QueueItem) {
	telemetry.IncActiveWorkers()
	defer telemetry.DecActiveWorkers()

	if w.searcher == nil || w.probeFetcher == nil {
		w.failJob(ctx, item.JobID, "pipeline is not fully configured")
		return
	}

	counters := lead.JobCounters{}
	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, lead.JobStatusRunning, "", counters); err != nil {
		w.logger.Error("update job status failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	started := w.clock.Now()
	w.emitJobEvent(item.JobID, progress.StageJobStart, started, 0, "")

	jobCtx := ctx
	if item.Params.BudgetSeconds > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, time.Duration(item.Params.BudgetSeconds)*time.Second)
		defer cancel()
	}

	batch, searchErr := w.runSearch(jobCtx, item, &counters)
	errText := ""
	if searchErr != nil {
		errText = searchErr.Error()
	}

	if searchErr == nil {
		candidates := w.selectCandidates(item.Params, batch.Results)
		for _, candidate := range candidates {
			if err := w.handleSite(jobCtx, item, candidate, &counters); err != nil {
				errText = err.Error()
			}
		}
	}

	status, errText := w.deriveFinalStatus(jobCtx, counters, errText)
	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, status, errText, counters); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", item.JobID), zap.Error(err))
	}
	telemetry.ObserveJob(string(status))

	finished := w.clock.Now()
	stage := progress.StageJobDone
	if status != lead.JobStatusSucceeded {
		stage = progress.StageJobError
	}
	w.emitJobEvent(item.JobID, stage, finished, finished.Sub(started), errText)
}

func (w *Worker) failJob(ctx context.Context, jobID, reason string) {
	w.logger.Error("job failed before start", zap.String("job_id", jobID), zap.String("reason", reason))
	if err := w.jobStore.UpdateJobStatus(ctx, jobID, lead.JobStatusFailed, reason, lead.JobCounters{}); err != nil {
		w.logger.Error("fail job status update", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (w *Worker) runSearch(
	ctx context.Context,
	item lead.QueueItem,
	counters *lead.JobCounters,
) (serp.BatchResult, error) {
	req := serp.BatchRequest{
		Query:    item.Params.Query,
		Pages:    item.Params.Pages,
		PerPage:  item.Params.PerPage,
		Country:  item.Params.Country,
		Language: item.Params.Language,
	}
	batch, err := w.searcher.Search(ctx, req)
	counters.SERPPagesSucceeded = batch.PagesSucceeded
	counters.SERPPagesFailed = batch.PagesFailed
	for _, outcome := range batch.Pages {
		statusClass := progress.Status2xx
		metricStatus := "ok"
		if outcome.Error != "" {
			statusClass = progress.StatusOther
			metricStatus = "error"
		}
		telemetry.ObserveSERPPage(metricStatus, outcome.ResultCount)
		w.emitSERPEvent(item.JobID, statusClass)
	}
	if err != nil {
		w.logger.Error("serp search failed",
			zap.String("job_id", item.JobID),
			zap.String("query", item.Params.Query),
			zap.Error(err),
		)
		return serp.BatchResult{}, fmt.Errorf("serp search: %w", err)
	}
	w.logger.Debug("serp search done",
		zap.String("job_id", item.JobID),
		zap.Int("results", len(batch.Results)),
		zap.Int("pages_succeeded", batch.PagesSucceeded),
		zap.Int("pages_failed", batch.PagesFailed),
	)
	return batch, nil
}

// selectCandidates dedupes results by domain (first occurrence keeps its rank),
// applies per-job allow/deny lists, and caps the list at the site budget.
func (w *Worker) selectCandidates(params lead.JobParameters, results []serp.Result) []serp.Result {
	maxSites := params.MaxSites
	if maxSites <= 0 {
		maxSites = w.cfg.MaxSites
	}
	deny := blocklist.New(params.DenyDomains)
	allow := blocklist.New(params.AllowDomains)

	seen := make(map[string]bool, len(results))
	out := make([]serp.Result, 0, maxSites)
	for _, res := range results {
		if len(out) >= maxSites {
			break
		}
		domain := strings.ToLower(res.Domain)
		if domain == "" || seen[domain] {
			continue
		}
		seen[domain] = true
		if deny.IsBlocked(domain) {
			continue
		}
		if len(params.AllowDomains) > 0 && !allow.IsBlocked(domain) {
			continue
		}
		out = append(out, res)
	}
	return out
}

func (w *Worker) handleSite(
	ctx context.Context,
	item lead.QueueItem,
	result serp.Result,
	counters *lead.JobCounters,
) error {
	if w.policy != nil && !w.policy.AllowFetch(item.JobID, result.URL) {
		w.logger.Warn("fetch blocked by policy", zap.String("job_id", item.JobID), zap.String("url", result.URL))
		return nil
	}
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx, result.URL); err != nil {
			counters.SitesFailed++
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	resp, err := w.fetchProbe(ctx, item, result.URL)
	if err != nil {
		counters.SitesFailed++
		telemetry.ObserveSiteFetch(result.URL, "error", 0)
		w.emitFetchEvent(item.JobID, result.URL, 0, 0, 0)
		w.logger.Error("site fetch failed",
			zap.String("job_id", item.JobID),
			zap.String("url", result.URL),
			zap.Error(err),
		)
		return err
	}

	finalResp := resp
	if promotedResp, promoted := w.maybePromote(ctx, item, result.URL, resp); promoted {
		finalResp = promotedResp
		w.logger.Info("headless promotion applied", zap.String("job_id", item.JobID), zap.String("url", result.URL))
	}

	if err := w.persistLead(ctx, item.JobID, result, finalResp); err != nil {
		counters.SitesFailed++
		w.logger.Error("persist lead failed",
			zap.String("job_id", item.JobID),
			zap.String("url", result.URL),
			zap.Error(err),
		)
		return err
	}

	counters.SitesSucceeded++
	telemetry.ObserveSiteFetch(finalResp.URL, "ok", len(finalResp.Body))
	w.emitFetchEvent(item.JobID, finalResp.URL, finalResp.StatusCode, int64(len(finalResp.Body)), finalResp.Duration)
	w.logger.Debug("site processed", zap.String("job_id", item.JobID), zap.String("url", result.URL))
	return nil
}

func (w *Worker) fetchProbe(ctx context.Context, item lead.QueueItem, url string) (lead.FetchResponse, error) {
	pageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resp, err := w.probeFetcher.Fetch(pageCtx, lead.FetchRequest{
		JobID:                 item.JobID,
		URL:                   url,
		RespectRobots:         item.Params.RespectRobots,
		RespectRobotsProvided: item.Params.RespectRobotsProvided,
	})
	if err != nil {
		return lead.FetchResponse{}, fmt.Errorf("probe fetch: %w", err)
	}
	return resp, nil
}

func (w *Worker) maybePromote(
	ctx context.Context,
	item lead.QueueItem,
	url string,
	resp lead.FetchResponse,
) (lead.FetchResponse, bool) {
	if !item.Params.HeadlessAllowed || w.detector == nil || w.headlessFetcher == nil {
		return resp, false
	}
	if w.policy != nil && !w.policy.AllowHeadless(item.JobID, url) {
		return resp, false
	}
	if !w.detector.ShouldPromote(resp) {
		return resp, false
	}

	headlessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	headlessResp, err := w.headlessFetcher.Fetch(headlessCtx, lead.FetchRequest{
		JobID:                 item.JobID,
		URL:                   url,
		UseHeadless:           true,
		RespectRobots:         item.Params.RespectRobots,
		RespectRobotsProvided: item.Params.RespectRobotsProvided,
	})
	if err != nil {
		w.logger.Warn("headless promotion failed",
			zap.String("job_id", item.JobID),
			zap.String("url", url),
			zap.Error(err),
		)
		return resp, false
	}
	headlessResp.UsedHeadless = true
	return headlessResp, true
}

func (w *Worker) persistLead(ctx context.Context, jobID string, result serp.Result, resp lead.FetchResponse) error {
	hash, err := w.hasher.Hash(resp.Body)
	if err != nil {
		return fmt.Errorf("hash body: %w", err)
	}

	blobPath := w.buildBlobPath(jobID, hash)
	uri, err := w.blobStore.PutObject(ctx, blobPath, w.cfg.ContentType, resp.Body)
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	record := w.buildRecord(jobID, result, resp, hash, uri)
	if record.Confidence < w.cfg.MinConfidence {
		w.logger.Debug("lead below confidence threshold",
			zap.String("job_id", jobID),
			zap.String("url", result.URL),
			zap.Float64("confidence", record.Confidence),
		)
		return nil
	}

	if err := w.jobStore.RecordLead(ctx, record); err != nil {
		return fmt.Errorf("record lead: %w", err)
	}
	telemetry.ObserveLeadConfidence(record.Confidence)

	if w.archiver != nil {
		if err := w.archiver.StoreLead(ctx, record); err != nil {
			w.logger.Warn("lead archive failed",
				zap.String("job_id", jobID),
				zap.String("url", result.URL),
				zap.Error(err),
			)
		}
	}

	return w.publishResult(ctx, record)
}

// buildRecord runs extraction over the fetched body and assembles the lead row.
func (w *Worker) buildRecord(
	jobID string,
	result serp.Result,
	resp lead.FetchResponse,
	hash string,
	uri string,
) lead.Record {
	record := lead.Record{
		JobID:        jobID,
		Rank:         result.Rank,
		Title:        result.Title,
		URL:          resp.URL,
		Domain:       result.Domain,
		Description:  result.Description,
		StatusCode:   resp.StatusCode,
		UsedHeadless: resp.UsedHeadless,
		FetchedAt:    w.clock.Now(),
		DurationMs:   resp.Duration.Milliseconds(),
		ContentHash:  hash,
		BlobURI:      uri,
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		w.logger.Warn("page parse failed", zap.String("job_id", jobID), zap.String("url", resp.URL), zap.Error(err))
		return record
	}

	profile := w.extractor.Extract(doc)
	record.CompanyName = profile.Name
	record.Emails = profile.Emails
	record.Phones = profile.Phones
	record.Addresses = profile.Addresses
	record.SocialLinks = profile.SocialLinks
	record.Industries = profile.Industries
	record.FoundingYear = profile.FoundingYear
	record.Personnel = profile.Personnel
	record.Confidence = profile.Confidence

	// Footer and nav anchors often carry social profiles the body text misses.
	links := extract.ClassifyLinks(doc, resp.URL)
	for _, link := range links.Links {
		if link.Class != extract.LinkSocial || link.Network == "" {
			continue
		}
		if record.SocialLinks == nil {
			record.SocialLinks = map[string]string{}
		}
		if _, ok := record.SocialLinks[link.Network]; !ok {
			record.SocialLinks[link.Network] = link.URL
		}
	}

	record.Keywords = extract.KeywordTerms(doc.Text(), w.cfg.MaxKeywords)
	return record
}

func (w *Worker) publishResult(ctx context.Context, record lead.Record) error {
	if w.cfg.Topic == "" || w.publisher == nil {
		return nil
	}
	payload := map[string]any{
		"job_id":     record.JobID,
		"url":        record.URL,
		"domain":     record.Domain,
		"rank":       record.Rank,
		"blob_uri":   record.BlobURI,
		"hash":       record.ContentHash,
		"confidence": record.Confidence,
		"timestamp":  w.clock.Now().Format(time.RFC3339),
		"status":     record.StatusCode,
		"headless":   record.UsedHeadless,
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		return fmt.Errorf("publish payload: %w", err)
	}
	w.logger.Info("lead published",
		zap.String("job_id", record.JobID),
		zap.String("url", record.URL),
		zap.String("blob_uri", record.BlobURI),
		zap.Float64("confidence", record.Confidence),
	)
	return nil
}

func (w *Worker) buildBlobPath(jobID, hash string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", jobID, hash)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, jobID, hash)
}

func (w *Worker) deriveFinalStatus(
	ctx context.Context,
	counters lead.JobCounters,
	errText string,
) (lead.JobStatus, string) {
	if counters.SitesSucceeded == 0 && errText == "" {
		errText = "no sites were fetched"
	}

	switch {
	case ctx.Err() != nil:
		return lead.JobStatusCanceled, errText
	case counters.SitesSucceeded == 0:
		return lead.JobStatusFailed, errText
	default:
		return lead.JobStatusSucceeded, errText
	}
}

func (w *Worker) emitJobEvent(jobID string, stage progress.Stage, ts time.Time, dur time.Duration, note string) {
	if w.emitter == nil {
		return
	}
	id, err := uuid.Parse(jobID)
	if err != nil {
		return
	}
	w.emitter.Emit(progress.Event{
		JobID: progress.UUIDToBytes(id),
		TS:    ts.UTC(),
		Stage: stage,
		Dur:   dur,
		Note:  note,
	})
}

func (w *Worker) emitSERPEvent(jobID string, statusClass progress.StatusClass) {
	if w.emitter == nil {
		return
	}
	id, err := uuid.Parse(jobID)
	if err != nil {
		return
	}
	w.emitter.Emit(progress.Event{
		JobID:       progress.UUIDToBytes(id),
		TS:          w.clock.Now().UTC(),
		Stage:       progress.StageSERPPage,
		StatusClass: statusClass,
	})
}

func (w *Worker) emitFetchEvent(jobID, url string, statusCode int, bytesFetched int64, dur time.Duration) {
	if w.emitter == nil {
		return
	}
	id, err := uuid.Parse(jobID)
	if err != nil {
		return
	}
	w.emitter.Emit(progress.Event{
		JobID:       progress.UUIDToBytes(id),
		TS:          w.clock.Now().UTC(),
		Stage:       progress.StageFetchDone,
		Site:        telemetry.SanitizeSite(url),
		URL:         url,
		Bytes:       bytesFetched,
		Visits:      1,
		StatusClass: progress.ClassifyStatus(statusCode),
		Dur:         dur,
	})
}
