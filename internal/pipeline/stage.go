package pipeline

import (
	"fmt"
	"sync"
	"time"
)

// Status is the lifecycle state of a single stage. Transitions are monotonic:
// pending -> running -> {completed, failed}, or pending -> skipped.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Terminal reports whether a status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// RetryPolicy configures the bounded retry loop around one stage execution.
type RetryPolicy struct {
	// MaxRetries is the number of re-attempts after the first failure.
	// Zero means a single failure is immediately fatal.
	MaxRetries int
	// Delay is the base wait between attempts.
	Delay time.Duration
	// ExponentialBackoff doubles the delay on every subsequent attempt.
	ExponentialBackoff bool
}

// LogEntry is one timestamped line in a stage's execution log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Stage is one named unit of work within a pipeline run. The declarative
// fields (Name through Condition) are set once from configuration; the
// runtime fields behind the mutex are mutated by the execution strategy
// that runs the stage.
type Stage struct {
	Name      string
	Type      StageType
	Config    map[string]any
	DependsOn []string
	Retry     RetryPolicy
	// Timeout bounds the wall-clock duration of a single attempt.
	// Zero disables enforcement.
	Timeout time.Duration
	// Condition is an optional expression gating execution in conditional
	// mode. Empty means the stage always runs.
	Condition string

	mu        sync.Mutex
	status    Status
	err       error
	startedAt time.Time
	endedAt   time.Time
	logs      []LogEntry
	metrics   map[string]any
	output    map[string]any
}

// NewStage builds a pending stage from its declarative attributes.
func NewStage(name string, typ StageType) *Stage {
	return &Stage{
		Name:    name,
		Type:    typ,
		status:  StatusPending,
		metrics: make(map[string]any),
	}
}

// Status returns the stage's current lifecycle state.
func (s *Stage) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the error that terminated the stage, if any.
func (s *Stage) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// transition enforces the monotonic state machine. It is called with the
// mutex held.
func (s *Stage) transition(to Status) error {
	allowed := false
	switch s.status {
	case StatusPending:
		allowed = to == StatusRunning || to == StatusSkipped
	case StatusRunning:
		allowed = to == StatusCompleted || to == StatusFailed
	}
	if !allowed {
		return fmt.Errorf("invalid stage transition for %q: %s -> %s", s.Name, s.status, to)
	}
	s.status = to
	return nil
}

// MarkRunning moves the stage from pending to running and stamps the start
// time.
func (s *Stage) MarkRunning() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transition(StatusRunning); err != nil {
		return err
	}
	s.startedAt = time.Now()
	return nil
}

// MarkCompleted finalizes a successful stage, recording its output.
func (s *Stage) MarkCompleted(output map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transition(StatusCompleted); err != nil {
		return err
	}
	s.output = output
	s.endedAt = time.Now()
	return nil
}

// MarkFailed finalizes a stage whose attempts are exhausted.
func (s *Stage) MarkFailed(cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transition(StatusFailed); err != nil {
		return err
	}
	s.err = cause
	s.endedAt = time.Now()
	return nil
}

// MarkSkipped moves a pending stage directly to skipped. Only conditional
// mode uses this transition.
func (s *Stage) MarkSkipped(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transition(StatusSkipped); err != nil {
		return err
	}
	s.endedAt = time.Now()
	s.logs = append(s.logs, LogEntry{Time: time.Now(), Message: reason})
	return nil
}

// Logf appends a formatted line to the stage's ordered execution log.
func (s *Stage) Logf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, LogEntry{Time: time.Now(), Message: fmt.Sprintf(format, args...)})
}

// Logs returns a copy of the accumulated log lines.
func (s *Stage) Logs() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

// SetMetric records one named measurement produced by the stage executor.
func (s *Stage) SetMetric(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[name] = value
}

// Metrics returns a copy of the stage's metrics map.
func (s *Stage) Metrics() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.metrics))
	for k, v := range s.metrics {
		out[k] = v
	}
	return out
}

// Output returns the output map recorded at completion, or nil for a stage
// that has not completed.
func (s *Stage) Output() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

// Duration reports the elapsed wall-clock time of a finished stage, or zero
// if it never ran.
func (s *Stage) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() || s.endedAt.IsZero() {
		return 0
	}
	return s.endedAt.Sub(s.startedAt)
}
