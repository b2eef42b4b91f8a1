package monitoring

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// JobSummary is the last known state of one periodic job.
type JobSummary struct {
	Job                 string        `json:"job"`
	TotalRuns           uint64        `json:"total_runs"`
	Failures            uint64        `json:"failures"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastSuccessAt       time.Time     `json:"last_success_at,omitempty"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
}

// JobTracker records periodic job outcomes for the maintenance readiness probe.
type JobTracker struct {
	mu   sync.RWMutex
	now  func() time.Time
	jobs map[string]*JobSummary
}

// NewJobTracker constructs an empty tracker. A nil clock falls back to time.Now.
func NewJobTracker(now func() time.Time) *JobTracker {
	if now == nil {
		now = time.Now
	}
	return &JobTracker{now: now, jobs: make(map[string]*JobSummary)}
}

// RecordRun stores the outcome of a single job execution.
func (t *JobTracker) RecordRun(job string, duration time.Duration, err error) {
	job = strings.TrimSpace(job)
	if job == "" {
		job = "unknown"
	}
	at := t.now().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.jobs[job]
	if !ok {
		entry = &JobSummary{Job: job}
		t.jobs[job] = entry
	}
	entry.TotalRuns++
	entry.LastRunAt = at
	entry.LastDuration = duration
	if err != nil {
		entry.Failures++
		entry.ConsecutiveFailures++
		entry.LastError = err.Error()
		return
	}
	entry.ConsecutiveFailures = 0
	entry.LastError = ""
	entry.LastSuccessAt = at
}

// Snapshot returns a copy of every tracked job ordered by name.
func (t *JobTracker) Snapshot() []JobSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]JobSummary, 0, len(t.jobs))
	for _, entry := range t.jobs {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}

// Now exposes the tracker clock to probes.
func (t *JobTracker) Now() time.Time {
	return t.now()
}
