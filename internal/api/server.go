package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scoutgrid/leadscout/internal/config"
	"github.com/scoutgrid/leadscout/internal/dispatcher"
	"github.com/scoutgrid/leadscout/internal/extract"
	"github.com/scoutgrid/leadscout/internal/lead"
	"github.com/scoutgrid/leadscout/internal/serp"
	"github.com/scoutgrid/leadscout/internal/telemetry"
)

// Server wires HTTP handlers to the dispatcher, stores, and searcher.
type Server struct {
	router     chi.Router
	jobStore   lead.JobStore
	dispatcher *dispatcher.Dispatcher
	searcher   serp.Searcher
	idGen      lead.IDGenerator
	clock      lead.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobStore lead.JobStore,
	dispatcher *dispatcher.Dispatcher,
	searcher serp.Searcher,
	idGen lead.IDGenerator,
	clock lead.Clock,
	progress *ProgressHandler,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobStore:   jobStore,
		dispatcher: dispatcher,
		searcher:   searcher,
		idGen:      idGen,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(telemetry.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/search", s.searchSync)
		r.Post("/instagram/parse", s.parseInstagram)
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.submitJob)
			r.Post("/standard", s.submitStandardJob)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/status", s.getJobStatus)
				r.Get("/leads", s.getJobLeads)
				r.Post("/cancel", s.cancelJob)
				if progress != nil {
					r.Get("/progress", progress.GetJob)
					r.Get("/sites", progress.ListJobSites)
				}
			})
		})
		if progress != nil {
			r.Get("/progress/jobs", progress.ListJobs)
		}
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.searcher == nil || s.jobStore == nil {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	params, err := s.toJobParameters(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobID, err := s.enqueueJob(r.Context(), params)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) submitStandardJob(w http.ResponseWriter, r *http.Request) {
	var req standardJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing job name")
		return
	}
	templateParams, ok := s.cfg.StandardJobs[req.Name]
	if !ok {
		writeError(w, http.StatusNotFound, "standard job template not found")
		return
	}
	params := s.applyDefaults(cloneJobParameters(templateParams))
	if params.Query == "" {
		writeError(w, http.StatusBadRequest, "standard job template has no query")
		return
	}
	jobID, err := s.enqueueJob(r.Context(), params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

// searchSync runs a multi-page SERP search in-request and returns the parsed
// results without crawling any candidate sites.
func (s *Server) searchSync(w http.ResponseWriter, r *http.Request) {
	if s.searcher == nil {
		writeError(w, http.StatusServiceUnavailable, "search backend unavailable")
		return
	}
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}
	batch := serp.BatchRequest{
		Query:    req.Query,
		Pages:    clampPages(valueOrDefault(req.Pages, s.cfg.SERP.PagesDefault), s.cfg.SERP.MaxPages),
		PerPage:  valueOrDefault(req.PerPage, s.cfg.SERP.PerPageDefault),
		Country:  stringOrDefault(req.Country, s.cfg.SERP.Country),
		Language: stringOrDefault(req.Language, s.cfg.SERP.Language),
	}
	result, err := s.searcher.Search(r.Context(), batch)
	if err != nil {
		s.logger.Error("sync search failed", zap.String("query", req.Query), zap.Error(err))
		writeError(w, http.StatusBadGateway, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// parseInstagram applies the bio-text heuristics to a profile supplied by the
// caller, for enriching leads whose social links include an Instagram account.
func (s *Server) parseInstagram(w http.ResponseWriter, r *http.Request) {
	var req instagramParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Bio == "" {
		writeError(w, http.StatusBadRequest, "bio required")
		return
	}
	profile := extract.ParseInstagramBio(req.Username, req.Bio)
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) getJobLeads(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	leads, err := s.jobStore.ListLeads(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch job leads")
		return
	}
	writeJSON(w, http.StatusOK, lead.JobResult{Job: job, Leads: leads})
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if err := s.jobStore.UpdateJobStatus(
		r.Context(),
		jobID,
		lead.JobStatusCanceled,
		"canceled via API",
		lead.JobCounters{},
	); err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": string(lead.JobStatusCanceled)})
}

func (s *Server) enqueueJob(ctx context.Context, params lead.JobParameters) (string, error) {
	if params.Query == "" {
		return "", errors.New("query required")
	}
	jobID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()
	job := lead.Job{
		ID:         jobID,
		Status:     lead.JobStatusQueued,
		Submitted:  now,
		Parameters: params,
		Counters:   lead.JobCounters{},
	}
	if err := s.jobStore.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	item := lead.QueueItem{
		JobID:     jobID,
		Params:    params,
		Attempt:   1,
		Submitted: now.Unix(),
	}
	if err := s.dispatcher.Enqueue(queueCtx, item); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

func (s *Server) toJobParameters(req jobRequest) (lead.JobParameters, error) {
	if req.Query == "" {
		return lead.JobParameters{}, errors.New("query required")
	}
	params := lead.JobParameters{
		Query:        req.Query,
		Tags:         req.Tags,
		AllowDomains: req.AllowDomains,
		DenyDomains:  req.DenyDomains,
	}
	params.Pages = clampPages(valueOrDefault(req.Pages, s.cfg.SERP.PagesDefault), s.cfg.SERP.MaxPages)
	params.PerPage = valueOrDefault(req.PerPage, s.cfg.SERP.PerPageDefault)
	params.MaxSites = valueOrDefault(req.MaxSites, s.cfg.Crawler.MaxSitesDefault)
	params.Country = stringOrDefault(req.Country, s.cfg.SERP.Country)
	params.Language = stringOrDefault(req.Language, s.cfg.SERP.Language)
	params.BudgetSeconds = valueOrDefault(req.BudgetSeconds, s.cfg.HTTP.TimeoutSeconds)
	params.HeadlessAllowed = boolOrDefault(req.HeadlessAllowed, s.cfg.Headless.Enabled)
	params.HeadlessProvided = req.HeadlessAllowed != nil
	params.RespectRobots = boolOrDefault(req.RespectRobots, s.cfg.Crawler.RespectRobots)
	params.RespectRobotsProvided = req.RespectRobots != nil

	return s.applyDefaults(params), nil
}

type standardJobRequest struct {
	Name string `json:"name"`
}

type jobRequest struct {
	Query           string            `json:"query"`
	Pages           *int              `json:"pages"`
	PerPage         *int              `json:"per_page"`
	MaxSites        *int              `json:"max_sites"`
	Country         string            `json:"country"`
	Language        string            `json:"language"`
	BudgetSeconds   *int              `json:"budget_seconds"`
	HeadlessAllowed *bool             `json:"headless_allowed"`
	RespectRobots   *bool             `json:"respect_robots"`
	Tags            map[string]string `json:"tags"`
	AllowDomains    []string          `json:"allow_domains"`
	DenyDomains     []string          `json:"deny_domains"`
}

type searchRequest struct {
	Query    string `json:"query"`
	Pages    *int   `json:"pages"`
	PerPage  *int   `json:"per_page"`
	Country  string `json:"country"`
	Language string `json:"language"`
}

type instagramParseRequest struct {
	Username string `json:"username"`
	Bio      string `json:"bio"`
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func boolOrDefault(ptr *bool, def bool) bool {
	if ptr == nil {
		return def
	}
	return *ptr
}

func stringOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}

func clampPages(pages, maxPages int) int {
	if pages <= 0 {
		pages = 1
	}
	if maxPages > 0 && pages > maxPages {
		return maxPages
	}
	return pages
}

func (s *Server) applyDefaults(params lead.JobParameters) lead.JobParameters {
	if params.Pages == 0 {
		params.Pages = s.cfg.SERP.PagesDefault
	}
	if params.PerPage == 0 {
		params.PerPage = s.cfg.SERP.PerPageDefault
	}
	if params.MaxSites == 0 {
		params.MaxSites = s.cfg.Crawler.MaxSitesDefault
	}
	if params.Country == "" {
		params.Country = s.cfg.SERP.Country
	}
	if params.Language == "" {
		params.Language = s.cfg.SERP.Language
	}
	if params.BudgetSeconds == 0 {
		params.BudgetSeconds = s.cfg.HTTP.TimeoutSeconds
	}
	if !params.HeadlessProvided {
		params.HeadlessAllowed = s.cfg.Headless.Enabled
		params.HeadlessProvided = true
	}
	if !params.RespectRobotsProvided {
		params.RespectRobots = s.cfg.Crawler.RespectRobots
		params.RespectRobotsProvided = true
	}
	if params.Tags == nil {
		params.Tags = map[string]string{}
	}
	return params
}

func cloneJobParameters(src lead.JobParameters) lead.JobParameters {
	cp := src
	cp.AllowDomains = cloneStringSlice(src.AllowDomains)
	cp.DenyDomains = cloneStringSlice(src.DenyDomains)
	if src.Tags != nil {
		cp.Tags = make(map[string]string, len(src.Tags))
		for k, v := range src.Tags {
			cp.Tags[k] = v
		}
	}
	return cp
}

func cloneStringSlice(src []string) []string {
	if len(src) == 0 {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
