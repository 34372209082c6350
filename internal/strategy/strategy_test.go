package strategy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klikkflow/pipeline-engine/internal/dag"
	"github.com/klikkflow/pipeline-engine/internal/pipeline"
	"github.com/klikkflow/pipeline-engine/internal/registry"
)

// recorder tracks executor invocations across a test run.
type recorder struct {
	mu    sync.Mutex
	order []string
	calls map[string]int
}

func newRecorder() *recorder {
	return &recorder{calls: make(map[string]int)}
}

func (r *recorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, name)
	r.calls[name]++
}

func (r *recorder) callCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

// testContext builds a strategy context over custom_script stages with an
// executor that records invocations and fails the stages named in failing.
func testContext(t *testing.T, rec *recorder, failing map[string]bool, specs []dag.NodeSpec) *Context {
	t.Helper()

	reg := registry.New()
	reg.Register(pipeline.StageCustomScript, func(ctx context.Context, st *pipeline.Stage, in *registry.RunInput) (map[string]any, error) {
		rec.record(st.Name)
		if failing[st.Name] {
			return nil, errors.New("injected failure")
		}
		return map[string]any{"ok": true}, nil
	})

	stages := make([]*pipeline.Stage, 0, len(specs))
	for _, spec := range specs {
		st := pipeline.NewStage(spec.ID, pipeline.StageCustomScript)
		st.DependsOn = spec.DependsOn
		stages = append(stages, st)
	}

	graph, err := dag.Build(specs)
	require.NoError(t, err)

	return &Context{
		Execution: pipeline.NewExecution("test", stages),
		Graph:     graph,
		Registry:  reg,
		Results:   pipeline.NewResults(),
	}
}

func TestForMode(t *testing.T) {
	for _, mode := range []string{ModeSequential, ModeParallel, ModeConditional, ModeDAG} {
		s, err := ForMode(mode)
		require.NoError(t, err)
		assert.Equal(t, mode, s.Name())
	}

	// Empty mode defaults to sequential.
	s, err := ForMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeSequential, s.Name())

	_, err = ForMode("round_robin")
	assert.ErrorContains(t, err, `unsupported execution mode "round_robin"`)
}

func TestSequentialAbortsOnFailure(t *testing.T) {
	rec := newRecorder()
	sc := testContext(t, rec, map[string]bool{"b": true}, []dag.NodeSpec{
		{ID: "a"}, {ID: "b"}, {ID: "c"},
	})

	s, err := ForMode(ModeSequential)
	require.NoError(t, err)
	err = s.Run(context.Background(), sc)
	require.Error(t, err)

	assert.Equal(t, pipeline.StatusCompleted, sc.Execution.StageByName("a").Status())
	assert.Equal(t, pipeline.StatusFailed, sc.Execution.StageByName("b").Status())
	assert.Equal(t, pipeline.StatusPending, sc.Execution.StageByName("c").Status())
	assert.Equal(t, 0, rec.callCount("c"))
	assert.Equal(t, []string{"a", "b"}, rec.order)
}

func TestSequentialRecordsResults(t *testing.T) {
	rec := newRecorder()
	sc := testContext(t, rec, nil, []dag.NodeSpec{{ID: "a"}, {ID: "b"}})

	s, _ := ForMode(ModeSequential)
	require.NoError(t, s.Run(context.Background(), sc))

	out, ok := sc.Results.Get("a")
	require.True(t, ok)
	assert.Equal(t, true, out["ok"])
}

func TestParallelRunsGroupsInDependencyOrder(t *testing.T) {
	rec := newRecorder()
	sc := testContext(t, rec, nil, []dag.NodeSpec{
		{ID: "load"},
		{ID: "clean", DependsOn: []string{"load"}},
		{ID: "featurize", DependsOn: []string{"load"}},
		{ID: "train", DependsOn: []string{"clean", "featurize"}},
	})

	s, _ := ForMode(ModeParallel)
	require.NoError(t, s.Run(context.Background(), sc))

	for _, st := range sc.Execution.Stages {
		assert.Equal(t, pipeline.StatusCompleted, st.Status())
	}

	pos := make(map[string]int)
	for i, name := range rec.order {
		pos[name] = i
	}
	assert.Less(t, pos["load"], pos["clean"])
	assert.Less(t, pos["load"], pos["featurize"])
	assert.Less(t, pos["clean"], pos["train"])
	assert.Less(t, pos["featurize"], pos["train"])
}

func TestParallelGroupFailureStopsLaterGroups(t *testing.T) {
	rec := newRecorder()
	sc := testContext(t, rec, map[string]bool{"clean": true}, []dag.NodeSpec{
		{ID: "load"},
		{ID: "clean", DependsOn: []string{"load"}},
		{ID: "train", DependsOn: []string{"clean"}},
	})

	s, _ := ForMode(ModeParallel)
	err := s.Run(context.Background(), sc)
	require.ErrorContains(t, err, `stage "clean" failed`)

	assert.Equal(t, pipeline.StatusFailed, sc.Execution.StageByName("clean").Status())
	assert.Equal(t, pipeline.StatusPending, sc.Execution.StageByName("train").Status())
	assert.Equal(t, 0, rec.callCount("train"))
}

func TestParallelCycleFailsBeforeAnyStageRuns(t *testing.T) {
	rec := newRecorder()
	sc := testContext(t, rec, nil, []dag.NodeSpec{{ID: "a"}, {ID: "b"}})
	// Introduce the cycle directly; Build would reject it.
	require.NoError(t, sc.Graph.AddEdge("a", "b"))
	require.NoError(t, sc.Graph.AddEdge("b", "a"))

	s, _ := ForMode(ModeParallel)
	err := s.Run(context.Background(), sc)
	require.ErrorContains(t, err, "circular dependency")

	for _, st := range sc.Execution.Stages {
		assert.Equal(t, pipeline.StatusPending, st.Status())
	}
	assert.Empty(t, rec.order)
}

func TestConditionalSkipsStageWithoutInvoking(t *testing.T) {
	rec := newRecorder()
	sc := testContext(t, rec, nil, []dag.NodeSpec{
		{ID: "evaluate"}, {ID: "deploy"}, {ID: "notify"},
	})
	sc.Execution.StageByName("deploy").Condition = "results.evaluate.ok == false"

	s, _ := ForMode(ModeConditional)
	require.NoError(t, s.Run(context.Background(), sc))

	deploy := sc.Execution.StageByName("deploy")
	assert.Equal(t, pipeline.StatusSkipped, deploy.Status())
	assert.Equal(t, 0, rec.callCount("deploy"))

	logs := deploy.Logs()
	require.NotEmpty(t, logs)
	assert.Contains(t, logs[0].Message, "condition")

	// Stages after the skipped one still run.
	assert.Equal(t, pipeline.StatusCompleted, sc.Execution.StageByName("notify").Status())
}

func TestConditionalTrueConditionRuns(t *testing.T) {
	rec := newRecorder()
	sc := testContext(t, rec, nil, []dag.NodeSpec{{ID: "evaluate"}, {ID: "deploy"}})
	sc.Execution.StageByName("deploy").Condition = "results.evaluate.ok"

	s, _ := ForMode(ModeConditional)
	require.NoError(t, s.Run(context.Background(), sc))
	assert.Equal(t, pipeline.StatusCompleted, sc.Execution.StageByName("deploy").Status())
	assert.Equal(t, 1, rec.callCount("deploy"))
}

func TestConditionalEvalErrorAbortsRun(t *testing.T) {
	rec := newRecorder()
	sc := testContext(t, rec, nil, []dag.NodeSpec{{ID: "a"}, {ID: "b"}})
	sc.Execution.StageByName("a").Condition = "results.missing.value"

	s, _ := ForMode(ModeConditional)
	err := s.Run(context.Background(), sc)
	require.ErrorContains(t, err, "condition")
	assert.Equal(t, pipeline.StatusFailed, sc.Execution.StageByName("a").Status())
	assert.Equal(t, pipeline.StatusPending, sc.Execution.StageByName("b").Status())
}

func TestDAGRespectsDependencyOrder(t *testing.T) {
	rec := newRecorder()
	sc := testContext(t, rec, nil, []dag.NodeSpec{
		{ID: "preprocess"},
		{ID: "features", DependsOn: []string{"preprocess"}},
		{ID: "validate", DependsOn: []string{"preprocess"}},
		{ID: "train", DependsOn: []string{"features", "validate"}},
		{ID: "evaluate", DependsOn: []string{"train"}},
	})
	sc.Workers = 3

	s, _ := ForMode(ModeDAG)
	require.NoError(t, s.Run(context.Background(), sc))

	for _, st := range sc.Execution.Stages {
		assert.Equal(t, pipeline.StatusCompleted, st.Status())
	}

	pos := make(map[string]int)
	for i, name := range rec.order {
		pos[name] = i
	}
	assert.Less(t, pos["preprocess"], pos["features"])
	assert.Less(t, pos["preprocess"], pos["validate"])
	assert.Less(t, pos["features"], pos["train"])
	assert.Less(t, pos["validate"], pos["train"])
	assert.Less(t, pos["train"], pos["evaluate"])
}

func TestDAGFailurePropagates(t *testing.T) {
	rec := newRecorder()
	sc := testContext(t, rec, map[string]bool{"features": true}, []dag.NodeSpec{
		{ID: "preprocess"},
		{ID: "features", DependsOn: []string{"preprocess"}},
		{ID: "train", DependsOn: []string{"features"}},
	})

	s, _ := ForMode(ModeDAG)
	err := s.Run(context.Background(), sc)
	require.ErrorContains(t, err, `stage "features" failed`)

	assert.Equal(t, pipeline.StatusCompleted, sc.Execution.StageByName("preprocess").Status())
	assert.Equal(t, pipeline.StatusFailed, sc.Execution.StageByName("features").Status())
	assert.Equal(t, pipeline.StatusPending, sc.Execution.StageByName("train").Status())
	assert.Equal(t, 0, rec.callCount("train"))
}

func TestDAGCycleFailsBeforeAnyStageRuns(t *testing.T) {
	rec := newRecorder()
	sc := testContext(t, rec, nil, []dag.NodeSpec{{ID: "a"}, {ID: "b"}})
	require.NoError(t, sc.Graph.AddEdge("a", "b"))
	require.NoError(t, sc.Graph.AddEdge("b", "a"))

	s, _ := ForMode(ModeDAG)
	err := s.Run(context.Background(), sc)
	require.ErrorContains(t, err, "circular dependency")

	for _, st := range sc.Execution.Stages {
		assert.Equal(t, pipeline.StatusPending, st.Status())
	}
	assert.Empty(t, rec.order)
}

func TestDAGIndependentBranchesOverlap(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32

	reg := registry.New()
	block := make(chan struct{})
	reg.Register(pipeline.StageCustomScript, func(ctx context.Context, st *pipeline.Stage, in *registry.RunInput) (map[string]any, error) {
		cur := inFlight.Add(1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		// Both branches must be in flight before either finishes. The
		// timeout keeps a serialization bug from hanging the test.
		select {
		case block <- struct{}{}:
		case <-block:
		case <-time.After(2 * time.Second):
		}
		inFlight.Add(-1)
		return map[string]any{}, nil
	})

	specs := []dag.NodeSpec{{ID: "left"}, {ID: "right"}}
	stages := []*pipeline.Stage{
		pipeline.NewStage("left", pipeline.StageCustomScript),
		pipeline.NewStage("right", pipeline.StageCustomScript),
	}
	graph, err := dag.Build(specs)
	require.NoError(t, err)

	sc := &Context{
		Execution: pipeline.NewExecution("test", stages),
		Graph:     graph,
		Registry:  reg,
		Results:   pipeline.NewResults(),
		Workers:   2,
	}

	s, _ := ForMode(ModeDAG)
	require.NoError(t, s.Run(context.Background(), sc))
	assert.Equal(t, int32(2), maxInFlight.Load())
}

func TestUnknownStageTypeFailsStage(t *testing.T) {
	reg := registry.New() // nothing registered

	stages := []*pipeline.Stage{pipeline.NewStage("a", pipeline.StageModelTraining)}
	graph, err := dag.Build([]dag.NodeSpec{{ID: "a"}})
	require.NoError(t, err)

	sc := &Context{
		Execution: pipeline.NewExecution("test", stages),
		Graph:     graph,
		Registry:  reg,
		Results:   pipeline.NewResults(),
	}

	s, _ := ForMode(ModeSequential)
	runErr := s.Run(context.Background(), sc)
	require.ErrorContains(t, runErr, "unknown stage type")
	assert.Equal(t, pipeline.StatusFailed, stages[0].Status())
}
