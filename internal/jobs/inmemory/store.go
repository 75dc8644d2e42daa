package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/smart-budget/internal/jobs"
)

// ErrJobNotFound is returned for an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// Store keeps mirror job state in a map for the life of the process.
// Jobs go in and come out as copies, so callers never share state with it.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.MirrorTransactionJob
}

// NewStore returns an empty job store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*jobs.MirrorTransactionJob)}
}

// SaveJob inserts or replaces the job under its id.
func (s *Store) SaveJob(ctx context.Context, job *jobs.MirrorTransactionJob) error {
	if job.JobID == "" {
		return fmt.Errorf("SaveJob: job id is required")
	}

	c := *job
	s.mu.Lock()
	s.jobs[job.JobID] = &c
	s.mu.Unlock()
	return nil
}

// GetJob returns a copy of the job, or ErrJobNotFound.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.MirrorTransactionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("GetJob %s: %w", jobID, ErrJobNotFound)
	}
	c := *job
	return &c, nil
}

// ListJobs returns matching jobs newest first, ties ordered by id. The
// result is never nil.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.MirrorTransactionJob, error) {
	s.mu.RLock()
	matched := make([]*jobs.MirrorTransactionJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.TransactionID != 0 && job.Transaction.ID != filter.TransactionID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		c := *job
		matched = append(matched, &c)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.JobID < b.JobID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return []*jobs.MirrorTransactionJob{}, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// UpdateJobStatus sets the status, and the error text when errorMsg is not
// empty.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("UpdateJobStatus %s: %w", jobID, ErrJobNotFound)
	}
	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	return nil
}

var _ jobs.JobStore = (*Store)(nil)
