// internal/runner/store.go
package runner

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newthinker/portsim/internal/core"
	"github.com/newthinker/portsim/internal/portfolio"
)

// Status represents job status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Done reports whether the job has finished.
func (s Status) Done() bool {
	return s == StatusComplete || s == StatusCancelled || s == StatusFailed
}

// Job is one simulation tracked by a Store.
type Job struct {
	ID        string            `json:"id"`
	Name      string            `json:"name,omitempty"`
	Status    Status            `json:"status"`
	Result    *portfolio.Result `json:"result,omitempty"`
	Error     *core.Error       `json:"-"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Store tracks jobs in memory. Once full it evicts the oldest job, and
// finished jobs older than the TTL are dropped on the next Create.
type Store struct {
	jobs    map[string]*Job
	order   []string // insertion order for eviction
	maxSize int
	ttl     time.Duration
	mu      sync.RWMutex
	now     func() time.Time
}

// NewStore creates a new job store.
func NewStore(maxSize int, ttl time.Duration) *Store {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Store{
		jobs:    make(map[string]*Job),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create registers a pending job and returns a copy of it.
func (s *Store) Create(name string) Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.expire(now)

	job := &Job{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Evict oldest if at capacity
	if len(s.jobs) >= s.maxSize && len(s.order) > 0 {
		oldest := s.order[0]
		delete(s.jobs, oldest)
		s.order = s.order[1:]
	}

	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	return *job
}

// expire drops finished jobs last updated more than ttl ago.
func (s *Store) expire(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	kept := s.order[:0]
	for _, id := range s.order {
		j := s.jobs[id]
		if j.Status.Done() && now.Sub(j.UpdatedAt) > s.ttl {
			delete(s.jobs, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// Get retrieves a copy of a job by ID.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, core.WrapError(core.ErrJobNotFound, nil)
	}
	return *job, nil
}

// Update modifies a job using an update function.
func (s *Store) Update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return core.WrapError(core.ErrJobNotFound, nil)
	}

	fn(job)
	job.UpdatedAt = s.now()
	return nil
}

// List returns every job, oldest first.
func (s *Store) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Job, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, *s.jobs[id])
	}
	return result
}

// Active counts jobs that have not finished.
func (s *Store) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, job := range s.jobs {
		if !job.Status.Done() {
			n++
		}
	}
	return n
}
