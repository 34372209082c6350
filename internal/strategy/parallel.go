package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/klikkflow/pipeline-engine/internal/ctxlog"
	"github.com/klikkflow/pipeline-engine/internal/pipeline"
)

// parallel partitions stages into dependency-ordered groups and runs each
// group's members concurrently. A failure in any member fails the whole
// group: the group context is cancelled so in-flight siblings stop at their
// next suspension point, and no later group starts.
type parallel struct{}

func (p *parallel) Name() string { return ModeParallel }

func (p *parallel) Run(ctx context.Context, sc *Context) error {
	logger := ctxlog.FromContext(ctx)

	groups, err := sc.Graph.Groups()
	if err != nil {
		return err
	}
	logger.Debug("Resolved parallel groups.", "count", len(groups))

	for i, group := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.Info("🚀 Starting parallel group.", "group", i+1, "stages", group)
		if err := p.runGroup(ctx, sc, group); err != nil {
			return fmt.Errorf("group %d: %w", i+1, err)
		}
	}
	return nil
}

// runGroup dispatches every member stage together and waits for the whole
// group to resolve.
func (p *parallel) runGroup(ctx context.Context, sc *Context, group []string) error {
	groupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for _, name := range group {
		st := sc.Execution.StageByName(name)
		wg.Add(1)
		go func(st *pipeline.Stage) {
			defer wg.Done()
			if err := runStage(groupCtx, sc, st); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("stage %q failed: %w", st.Name, err)
				}
				mu.Unlock()
				cancel()
			}
		}(st)
	}

	wg.Wait()
	return firstErr
}
