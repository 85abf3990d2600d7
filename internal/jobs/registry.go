// Package jobs tracks clone requests by correlation ID while they run and
// for a short retention window afterwards.
package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lexiqai/voice-translator/internal/errorsx"
	"github.com/lexiqai/voice-translator/internal/tts"
)

// ErrDuplicateJob is returned when a correlation ID is already in flight
var ErrDuplicateJob = errors.New("job with this id is already running")

// State is the caller-visible lifecycle of a clone request
type State string

const (
	StatePending    State = "pending"
	StateSubmitting State = "submitting"
	StateStreaming  State = "streaming"
	StateStoring    State = "storing"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
	StateWarming    State = "warming"
)

// Terminal reports whether the job has finished
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateWarming
}

// Job is a snapshot of one clone request
type Job struct {
	ID        string             `json:"id"`
	State     State              `json:"state"`
	Warmup    bool               `json:"warmup,omitempty"`
	Language  string             `json:"language,omitempty"`
	Segments  int                `json:"segments"`
	Bytes     int                `json:"bytes"`
	Key       string             `json:"key,omitempty"`
	URL       string             `json:"transcriptURL,omitempty"`
	ExpiresAt *time.Time         `json:"expiresAt,omitempty"`
	Error     string             `json:"error,omitempty"`
	Reason    errorsx.ReasonCode `json:"reason,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Sink receives a copy of every job change. Sinks are best effort: errors
// are logged and never fail the request.
type Sink interface {
	Record(ctx context.Context, job Job) error
}

// Registry maps correlation IDs to in-flight and recently finished jobs.
// It implements tts.Observer.
type Registry struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	retention time.Duration
	sinks     []Sink
	clock     func() time.Time
}

var _ tts.Observer = (*Registry)(nil)

// NewRegistry creates a registry that keeps finished jobs for retention
func NewRegistry(retention time.Duration, sinks ...Sink) *Registry {
	return &Registry{
		jobs:      make(map[string]*Job),
		retention: retention,
		sinks:     sinks,
		clock:     time.Now,
	}
}

// AddSink registers another sink
func (r *Registry) AddSink(s Sink) {
	r.mu.Lock()
	r.sinks = append(r.sinks, s)
	r.mu.Unlock()
}

// Start registers a new job. An ID that is still running is rejected;
// a finished one is replaced.
func (r *Registry) Start(id, language string, warmup bool) error {
	now := r.clock().UTC()
	r.mu.Lock()
	if existing, ok := r.jobs[id]; ok && !existing.State.Terminal() {
		r.mu.Unlock()
		return ErrDuplicateJob
	}
	job := &Job{
		ID:        id,
		State:     StatePending,
		Warmup:    warmup,
		Language:  language,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.jobs[id] = job
	snapshot := *job
	r.mu.Unlock()

	r.emit(snapshot)
	return nil
}

// StateChanged maps generation states onto the job
func (r *Registry) StateChanged(id string, state tts.State, err error) {
	switch state {
	case tts.StateSubmitting:
		r.update(id, func(j *Job) { j.State = StateSubmitting })
	case tts.StateStreaming:
		r.update(id, func(j *Job) { j.State = StateStreaming })
	case tts.StateComplete:
		r.update(id, func(j *Job) { j.State = StateStoring })
	case tts.StateFailed:
		r.Fail(id, err)
	}
}

// SegmentResolved updates progress counters
func (r *Registry) SegmentResolved(id string, seg tts.SegmentEvent) {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if ok {
		job.Segments++
		job.Bytes += seg.Size
		job.UpdatedAt = r.clock().UTC()
	}
	r.mu.Unlock()
}

// Complete marks a job delivered
func (r *Registry) Complete(id, key, url string, expiresIn time.Duration) {
	r.update(id, func(j *Job) {
		expires := r.clock().UTC().Add(expiresIn)
		j.State = StateComplete
		j.Key = key
		j.URL = url
		j.ExpiresAt = &expires
	})
}

// Warmed marks a warm-up request as done
func (r *Registry) Warmed(id string) {
	r.update(id, func(j *Job) { j.State = StateWarming })
}

// Fail marks a job failed with err
func (r *Registry) Fail(id string, err error) {
	r.update(id, func(j *Job) {
		if j.State == StateFailed {
			return
		}
		j.State = StateFailed
		if err != nil {
			j.Error = err.Error()
			j.Reason = errorsx.Reason(err)
		}
	})
}

// Get returns a snapshot of the job. Signed URLs past their expiry are
// left out of the snapshot.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	snapshot := *job
	if snapshot.ExpiresAt != nil && r.clock().After(*snapshot.ExpiresAt) {
		snapshot.URL = ""
	}
	return snapshot, true
}

// List returns all tracked jobs, newest first
func (r *Registry) List() []Job {
	r.mu.RLock()
	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, *job)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Active returns the number of jobs that have not finished
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, job := range r.jobs {
		if !job.State.Terminal() {
			n++
		}
	}
	return n
}

// Prune drops finished jobs older than the retention window and returns
// how many were removed
func (r *Registry) Prune() int {
	cutoff := r.clock().Add(-r.retention)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, job := range r.jobs {
		if job.State.Terminal() && job.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

// Run prunes on an interval until ctx is done
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Prune(); n > 0 {
				log.Debug().Int("removed", n).Msg("Pruned finished jobs")
			}
		}
	}
}

func (r *Registry) update(id string, fn func(*Job)) {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	before := job.State
	fn(job)
	job.UpdatedAt = r.clock().UTC()
	snapshot := *job
	r.mu.Unlock()

	if snapshot.State != before {
		r.emit(snapshot)
	}
}

func (r *Registry) emit(job Job) {
	r.mu.RLock()
	sinks := r.sinks
	r.mu.RUnlock()

	// sinks outlive the request context, a canceled caller still gets recorded
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, s := range sinks {
		if err := s.Record(ctx, job); err != nil {
			log.Warn().Err(err).Str("correlation_id", job.ID).Str("state", string(job.State)).Msg("Failed to record job")
		}
	}
}
