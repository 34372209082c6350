package strategy

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/klikkflow/pipeline-engine/internal/ctxlog"
	"github.com/klikkflow/pipeline-engine/internal/pipeline"
)

// defaultWorkers bounds the dag-mode pool when the caller does not set one.
const defaultWorkers = 4

// dagStrategy runs stages in dependency order through a worker pool. A
// stage becomes ready the moment its last dependency completes, so
// independent branches progress concurrently. A failure anywhere cancels
// the run; stages that never became ready stay pending.
type dagStrategy struct{}

func (d *dagStrategy) Name() string { return ModeDAG }

// runtimeNode pairs a stage with its scheduling counters for one run.
type runtimeNode struct {
	stage      *pipeline.Stage
	depCount   atomic.Int32
	dependents []*runtimeNode
	// doneOnce guards the WaitGroup accounting: a node is counted done
	// exactly once whether it ran, was drained after cancellation, or was
	// released as unreachable.
	doneOnce sync.Once
}

func (d *dagStrategy) Run(ctx context.Context, sc *Context) error {
	logger := ctxlog.FromContext(ctx)

	// Fail on cycles before any stage runs.
	if err := sc.Graph.DetectCycles(); err != nil {
		return err
	}

	nodes := make(map[string]*runtimeNode, len(sc.Execution.Stages))
	for _, st := range sc.Execution.Stages {
		nodes[st.Name] = &runtimeNode{stage: st}
	}
	for name, n := range nodes {
		deps, err := sc.Graph.Dependencies(name)
		if err != nil {
			return err
		}
		n.depCount.Store(int32(len(deps)))
		for _, dep := range deps {
			nodes[dep].dependents = append(nodes[dep].dependents, n)
		}
	}

	readyChan := make(chan *runtimeNode, len(nodes))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rootCount := 0
	for _, st := range sc.Execution.Stages {
		n := nodes[st.Name]
		if n.depCount.Load() == 0 {
			readyChan <- n
			rootCount++
		}
	}
	logger.Debug("Found root stages.", "count", rootCount)

	var wg sync.WaitGroup
	wg.Add(len(nodes))

	var (
		mu       sync.Mutex
		firstErr error
	)
	fail := func(n *runtimeNode, err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = fmt.Errorf("stage %q failed: %w", n.stage.Name, err)
		}
		mu.Unlock()
		cancel()
	}

	workers := sc.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	logger.Debug("Starting dag worker pool.", "workers", workers)
	for i := 0; i < workers; i++ {
		go d.worker(runCtx, sc, readyChan, &wg, fail)
	}

	wg.Wait()
	close(readyChan)

	return firstErr
}

// worker is the processing loop of one pool member.
func (d *dagStrategy) worker(ctx context.Context, sc *Context, readyChan chan *runtimeNode, wg *sync.WaitGroup, fail func(*runtimeNode, error)) {
	for n := range readyChan {
		if ctx.Err() != nil {
			// Drained after cancellation; the stage stays pending and its
			// dependents can never become ready.
			n.doneOnce.Do(wg.Done)
			releaseDependents(n, wg)
			continue
		}

		if err := runStage(ctx, sc, n.stage); err != nil {
			fail(n, err)
			releaseDependents(n, wg)
			n.doneOnce.Do(wg.Done)
			continue
		}

		for _, dependent := range n.dependents {
			if dependent.depCount.Add(-1) == 0 {
				readyChan <- dependent
			}
		}
		n.doneOnce.Do(wg.Done)
	}
}

// releaseDependents recursively releases the WaitGroup slots of stages that
// can no longer become ready after an upstream failure. Their status is not
// touched; they remain pending for the final report.
func releaseDependents(n *runtimeNode, wg *sync.WaitGroup) {
	for _, dependent := range n.dependents {
		dependent.doneOnce.Do(func() {
			wg.Done()
			releaseDependents(dependent, wg)
		})
	}
}
