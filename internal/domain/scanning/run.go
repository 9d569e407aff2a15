package scanning

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunKind identifies which orchestration operation a run executed.
type RunKind string

const (
	RunKindCrawl       RunKind = "crawl"
	RunKindFullScan    RunKind = "full_scan"
	RunKindCrawlStream RunKind = "crawl_stream"
	RunKindInjection   RunKind = "injection"
)

// String returns the string representation of the RunKind.
func (k RunKind) String() string { return string(k) }

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// String returns the string representation of the RunStatus.
func (s RunStatus) String() string { return string(s) }

// Run records one invocation of an orchestration operation.
type Run struct {
	ID          uuid.UUID
	Kind        RunKind
	Target      string
	Status      RunStatus
	ResultCount int
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// NewRun creates a running Run for target.
func NewRun(kind RunKind, target Target, now time.Time) *Run {
	return &Run{
		ID:        uuid.New(),
		Kind:      kind,
		Target:    target.String(),
		Status:    RunStatusRunning,
		StartedAt: now,
	}
}

// Complete marks the run successful with resultCount items produced.
func (r *Run) Complete(resultCount int, now time.Time) {
	r.Status = RunStatusCompleted
	r.ResultCount = resultCount
	r.FinishedAt = now
}

// Fail marks the run failed with err.
func (r *Run) Fail(err error, now time.Time) {
	r.Status = RunStatusFailed
	if err != nil {
		r.Error = err.Error()
	}
	r.FinishedAt = now
}

// Duration returns how long the run took, or zero while it is still running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunRepository persists run history.
type RunRepository interface {
	// CreateRun inserts a new run.
	CreateRun(ctx context.Context, run *Run) error
	// UpdateRun stores the terminal state of an existing run.
	UpdateRun(ctx context.Context, run *Run) error
	// GetRun returns the run with id or ErrRunNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	// ListRuns returns runs ordered by start time, newest first.
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
}

// RunEventType names a run lifecycle event.
type RunEventType string

const (
	EventRunStarted   RunEventType = "RunStarted"
	EventRunCompleted RunEventType = "RunCompleted"
	EventRunFailed    RunEventType = "RunFailed"
)

// RunEvent is published whenever a run changes state.
type RunEvent struct {
	Type        RunEventType `json:"type"`
	RunID       string       `json:"run_id"`
	Kind        RunKind      `json:"kind"`
	Target      string       `json:"target"`
	ResultCount int          `json:"result_count,omitempty"`
	Error       string       `json:"error,omitempty"`
	OccurredAt  time.Time    `json:"occurred_at"`
}

// NewRunEvent builds the event describing run's current state.
func NewRunEvent(typ RunEventType, run *Run, now time.Time) RunEvent {
	return RunEvent{
		Type:        typ,
		RunID:       run.ID.String(),
		Kind:        run.Kind,
		Target:      run.Target,
		ResultCount: run.ResultCount,
		Error:       run.Error,
		OccurredAt:  now,
	}
}

// EventPublisher publishes run lifecycle events.
type EventPublisher interface {
	PublishRunEvent(ctx context.Context, event RunEvent) error
}
