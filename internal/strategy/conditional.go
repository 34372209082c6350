package strategy

import (
	"context"
	"fmt"

	"github.com/klikkflow/pipeline-engine/internal/condition"
	"github.com/klikkflow/pipeline-engine/internal/ctxlog"
)

// conditional runs stages sequentially in declaration order, but evaluates
// each stage's condition against the accumulated results first. A false
// condition moves the stage straight from pending to skipped without
// invoking its executor; a failing stage aborts the run as in sequential
// mode.
type conditional struct{}

func (c *conditional) Name() string { return ModeConditional }

func (c *conditional) Run(ctx context.Context, sc *Context) error {
	logger := ctxlog.FromContext(ctx)

	for _, st := range sc.Execution.Stages {
		if err := ctx.Err(); err != nil {
			return err
		}

		if st.Condition != "" {
			ok, err := condition.Evaluate(st.Condition, sc.Results.Snapshot(), sc.Dataset)
			if err != nil {
				markFailed(st, err)
				return fmt.Errorf("stage %q condition: %w", st.Name, err)
			}
			if !ok {
				logger.Info("⏭️ Skipping stage, condition evaluated false.", "stage", st.Name, "condition", st.Condition)
				if err := st.MarkSkipped(fmt.Sprintf("skipped: condition %q evaluated false", st.Condition)); err != nil {
					return err
				}
				continue
			}
		}

		if err := runStage(ctx, sc, st); err != nil {
			return fmt.Errorf("stage %q failed: %w", st.Name, err)
		}
	}
	return nil
}
