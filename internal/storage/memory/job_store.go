package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/scoutgrid/leadscout/internal/lead"
)

// JobStore provides an in-memory implementation for development/testing.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]lead.Job
	leads map[string][]lead.Record
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:  make(map[string]lead.Job),
		leads: make(map[string][]lead.Record),
	}
}

// CreateJob stores a new job in queued status.
func (s *JobStore) CreateJob(_ context.Context, job lead.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus updates the status and counters for a job.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status lead.JobStatus,
	errText string,
	counters lead.JobCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return errors.New("job not found")
	}
	job.Status = status
	job.ErrorText = errText
	job.Counters = counters
	now := time.Now().UTC()
	if status == lead.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if isTerminal(status) {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// RecordLead appends a lead row for a job.
func (s *JobStore) RecordLead(_ context.Context, record lead.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[record.JobID] = append(s.leads[record.JobID], record)
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (lead.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return lead.Job{}, errors.New("job not found")
	}
	return job, nil
}

// ListLeads returns all recorded leads for a job.
func (s *JobStore) ListLeads(_ context.Context, jobID string) ([]lead.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	leads := s.leads[jobID]
	out := make([]lead.Record, len(leads))
	copy(out, leads)
	return out, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func isTerminal(status lead.JobStatus) bool {
	switch status {
	case lead.JobStatusSucceeded, lead.JobStatusFailed, lead.JobStatusCanceled:
		return true
	default:
		return false
	}
}
