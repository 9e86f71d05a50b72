package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// JobStatus represents the state of an ingestion job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusFetching   JobStatus = "fetching"
	StatusExtracting JobStatus = "extracting"
	StatusEmbedding  JobStatus = "embedding"
	StatusStoring    JobStatus = "storing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Progress receives phase and counter updates while a document is
// ingested. *Job implements it.
type Progress interface {
	SetPhase(status JobStatus)
	SetTotalFragments(n int)
	IncrEmbedded()
}

type nopProgress struct{}

func (nopProgress) SetPhase(JobStatus)    {}
func (nopProgress) SetTotalFragments(int) {}
func (nopProgress) IncrEmbedded()         {}

// Job tracks the state of a single document ingestion.
type Job struct {
	mu sync.Mutex

	ID  string `json:"job_id"`
	URL string `json:"url"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress JobProgress `json:"progress"`
	Result   *Result     `json:"result,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	errors []string
}

// JobProgress tracks processing progress.
type JobProgress struct {
	TotalFragments int      `json:"total_fragments"`
	Embedded       int      `json:"embedded"`
	Stored         int      `json:"stored"`
	Errors         []string `json:"errors"`
}

// NewJob creates a queued job for a document URL.
func NewJob(url string) *Job {
	now := time.Now()
	return &Job{
		ID:        generateULID(),
		URL:       url,
		Status:    StatusQueued,
		Phase:     string(StatusQueued),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes finished jobs that have not changed within the TTL.
// Jobs still in flight are kept regardless of age.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.finishedLocked() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

func (j *Job) finishedLocked() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// SetPhase moves the job to the status of an ingestion phase.
func (j *Job) SetPhase(status JobStatus) {
	j.SetStatus(status, string(status))
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetTotalFragments records how many fragments the document produced.
func (j *Job) SetTotalFragments(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalFragments = n
	j.Progress.Embedded = 0
	j.UpdatedAt = time.Now()
}

// IncrEmbedded atomically increments fragments embedded.
func (j *Job) IncrEmbedded() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Embedded++
	j.UpdatedAt = time.Now()
}

// Complete records the ingestion result and marks the job done.
func (j *Job) Complete(res *Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Result = res
	j.Progress.Stored = res.Stored
	j.Status = StatusCompleted
	j.Phase = "done"
	j.UpdatedAt = time.Now()
}

// Fail records the terminal error and marks the job failed in phase.
func (j *Job) Fail(phase string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err.Error())
	j.Progress.Errors = j.errors
	j.Status = StatusFailed
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string      `json:"job_id"`
	URL       string      `json:"url"`
	Status    JobStatus   `json:"status"`
	Phase     string      `json:"phase"`
	Progress  JobProgress `json:"progress"`
	Result    *Result     `json:"result,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.Progress.Errors))
	copy(errs, j.Progress.Errors)
	var res *Result
	if j.Result != nil {
		r := *j.Result
		res = &r
	}
	return JobSnapshot{
		ID:     j.ID,
		URL:    j.URL,
		Status: j.Status,
		Phase:  j.Phase,
		Progress: JobProgress{
			TotalFragments: j.Progress.TotalFragments,
			Embedded:       j.Progress.Embedded,
			Stored:         j.Progress.Stored,
			Errors:         errs,
		},
		Result:    res,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
