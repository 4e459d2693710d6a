// Package jobs tracks operation chains that run asynchronously.
//
// A job moves QUEUED -> RUNNING -> FINISHED or FAILED. The tracker owns the
// lifecycle; the store only reports transitions.
package jobs

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned for unknown job ids.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrAlreadyExists is returned when a job id is registered twice.
	ErrAlreadyExists = errors.New("job already exists")
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued   Status = "QUEUED"
	StatusRunning  Status = "RUNNING"
	StatusFinished Status = "FINISHED"
	StatusFailed   Status = "FAILED"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// CanTransition reports whether a job may move from s to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next == StatusFinished || next == StatusFailed
	}
	return false
}

// JobDetail describes one job.
type JobDetail struct {
	JobID       string    `json:"jobId"`
	UserID      string    `json:"userId,omitempty"`
	OpChain     string    `json:"opChain,omitempty"`
	Status      Status    `json:"status"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime,omitzero"`
	Description string    `json:"description,omitempty"`
}

// Clone returns a copy.
func (d *JobDetail) Clone() *JobDetail {
	c := *d
	return &c
}

// Tracker records job details.
type Tracker interface {
	// Add registers a new job.
	Add(detail *JobDetail) error
	// Transition moves a job to status, recording description. Terminal
	// statuses set the end time.
	Transition(jobID string, status Status, description string) (*JobDetail, error)
	// Get returns a copy of the job's detail.
	Get(jobID string) (*JobDetail, error)
	// All returns every job, oldest first.
	All() ([]*JobDetail, error)
}

// MemoryTracker keeps jobs in memory.
type MemoryTracker struct {
	mu   sync.RWMutex
	jobs map[string]*JobDetail
	now  func() time.Time
}

// NewMemoryTracker creates an empty tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{jobs: make(map[string]*JobDetail), now: time.Now}
}

func (t *MemoryTracker) Add(detail *JobDetail) error {
	if detail == nil || detail.JobID == "" {
		return fmt.Errorf("job id is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.jobs[detail.JobID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, detail.JobID)
	}
	d := detail.Clone()
	if d.Status == "" {
		d.Status = StatusQueued
	}
	if d.StartTime.IsZero() {
		d.StartTime = t.now()
	}
	t.jobs[d.JobID] = d
	return nil
}

func (t *MemoryTracker) Transition(jobID string, status Status, description string) (*JobDetail, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if !d.Status.CanTransition(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, status)
	}
	d.Status = status
	if description != "" {
		d.Description = description
	}
	if status.IsTerminal() {
		d.EndTime = t.now()
	}
	return d.Clone(), nil
}

func (t *MemoryTracker) Get(jobID string) (*JobDetail, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return d.Clone(), nil
}

func (t *MemoryTracker) All() ([]*JobDetail, error) {
	t.mu.RLock()
	out := make([]*JobDetail, 0, len(t.jobs))
	for _, d := range t.jobs {
		out = append(out, d.Clone())
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].JobID < out[j].JobID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}
