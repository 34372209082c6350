package pipeline

import (
	"encoding/json"
	"time"
)

// StageReport is the immutable, serializable view of a stage after (or
// during) a run.
type StageReport struct {
	Name       string         `json:"name"`
	Type       StageType      `json:"type"`
	Status     Status         `json:"status"`
	StartedAt  *time.Time     `json:"startedAt,omitempty"`
	EndedAt    *time.Time     `json:"endedAt,omitempty"`
	DurationMs int64          `json:"durationMs"`
	Logs       []LogEntry     `json:"logs,omitempty"`
	Metrics    map[string]any `json:"metrics,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Report snapshots the stage's current state.
func (s *Stage) Report() StageReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := StageReport{
		Name:       s.Name,
		Type:       s.Type,
		Status:     s.status,
		DurationMs: 0,
		Logs:       append([]LogEntry(nil), s.logs...),
		Output:     s.output,
	}
	if len(s.metrics) > 0 {
		r.Metrics = make(map[string]any, len(s.metrics))
		for k, v := range s.metrics {
			r.Metrics[k] = v
		}
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		r.StartedAt = &t
	}
	if !s.endedAt.IsZero() {
		t := s.endedAt
		r.EndedAt = &t
	}
	if !s.startedAt.IsZero() && !s.endedAt.IsZero() {
		r.DurationMs = s.endedAt.Sub(s.startedAt).Milliseconds()
	}
	if s.err != nil {
		r.Error = s.err.Error()
	}
	return r
}

// MarshalJSON serializes the stage through its report view, since the
// mutable state lives behind the mutex.
func (s *Stage) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Report())
}

// MarshalJSON serializes the execution through its report view.
func (e *Execution) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Report())
}

// ExecutionReport is the serializable view of a whole run.
type ExecutionReport struct {
	ID              string         `json:"id"`
	PipelineName    string         `json:"pipelineName"`
	Status          ExecStatus     `json:"status"`
	Stages          []StageReport  `json:"stages"`
	OverallMetrics  map[string]any `json:"overallMetrics,omitempty"`
	Artifacts       map[string]any `json:"artifacts,omitempty"`
	StartedAt       *time.Time     `json:"startedAt,omitempty"`
	EndedAt         *time.Time     `json:"endedAt,omitempty"`
	TotalDurationMs int64          `json:"totalDurationMs"`
}

// Report snapshots the execution and all of its stages.
func (e *Execution) Report() *ExecutionReport {
	r := &ExecutionReport{
		ID:              e.ID,
		PipelineName:    e.PipelineName,
		Status:          e.Status,
		OverallMetrics:  e.OverallMetrics,
		Artifacts:       e.Artifacts,
		TotalDurationMs: e.TotalDuration.Milliseconds(),
	}
	for _, st := range e.Stages {
		r.Stages = append(r.Stages, st.Report())
	}
	if !e.StartedAt.IsZero() {
		t := e.StartedAt
		r.StartedAt = &t
	}
	if !e.EndedAt.IsZero() {
		t := e.EndedAt
		r.EndedAt = &t
	}
	return r
}
