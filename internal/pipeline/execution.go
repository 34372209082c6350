package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExecStatus is the lifecycle state of a whole pipeline run.
type ExecStatus string

const (
	ExecPending   ExecStatus = "pending"
	ExecRunning   ExecStatus = "running"
	ExecCompleted ExecStatus = "completed"
	ExecFailed    ExecStatus = "failed"
	ExecCancelled ExecStatus = "cancelled"
)

// Execution tracks one end-to-end run of a stage set. The stage collection
// is owned exclusively by this execution; no stage is shared across runs.
type Execution struct {
	ID           string
	PipelineName string
	Status       ExecStatus
	Stages       []*Stage

	// OverallMetrics is computed once the run reaches a terminal status.
	OverallMetrics map[string]any
	// Artifacts holds side-channel outputs such as the experiment id,
	// trained model handle, and deployment info.
	Artifacts map[string]any

	StartedAt     time.Time
	EndedAt       time.Time
	TotalDuration time.Duration
}

// NewExecution creates a pending execution record owning the given stages.
func NewExecution(pipelineName string, stages []*Stage) *Execution {
	return &Execution{
		ID:             uuid.NewString(),
		PipelineName:   pipelineName,
		Status:         ExecPending,
		Stages:         stages,
		OverallMetrics: make(map[string]any),
		Artifacts:      make(map[string]any),
	}
}

// StageByName looks a stage up within this run.
func (e *Execution) StageByName(name string) *Stage {
	for _, s := range e.Stages {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// CountByStatus tallies the stages currently in the given state.
func (e *Execution) CountByStatus(status Status) int {
	n := 0
	for _, s := range e.Stages {
		if s.Status() == status {
			n++
		}
	}
	return n
}

// Begin moves the execution into the running state.
func (e *Execution) Begin() {
	e.Status = ExecRunning
	e.StartedAt = time.Now()
}

// Finalize stamps the terminal status and computes the aggregate metrics.
// Callers must not mutate the execution afterwards.
func (e *Execution) Finalize(status ExecStatus) {
	e.Status = status
	e.EndedAt = time.Now()
	if !e.StartedAt.IsZero() {
		e.TotalDuration = e.EndedAt.Sub(e.StartedAt)
	}

	completed := e.CountByStatus(StatusCompleted)
	total := len(e.Stages)
	e.OverallMetrics["totalStages"] = total
	e.OverallMetrics["completedStages"] = completed
	e.OverallMetrics["failedStages"] = e.CountByStatus(StatusFailed)
	e.OverallMetrics["skippedStages"] = e.CountByStatus(StatusSkipped)
	if total > 0 {
		e.OverallMetrics["successRate"] = float64(completed) / float64(total)
	}
	e.OverallMetrics["totalDurationMs"] = e.TotalDuration.Milliseconds()
}

// Results is the accumulator of per-stage outputs shared across
// concurrently running stages. Each stage writes only its own key.
type Results struct {
	mu sync.RWMutex
	m  map[string]map[string]any
}

// NewResults returns an empty accumulator.
func NewResults() *Results {
	return &Results{m: make(map[string]map[string]any)}
}

// Set records the output of a completed stage under its name.
func (r *Results) Set(stageName string, output map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[stageName] = output
}

// Get returns the recorded output for a stage, if present.
func (r *Results) Get(stageName string) (map[string]any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out, ok := r.m[stageName]
	return out, ok
}

// Snapshot returns a shallow copy of all recorded outputs.
func (r *Results) Snapshot() map[string]map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]map[string]any, len(r.m))
	for k, v := range r.m {
		out[k] = v
	}
	return out
}
