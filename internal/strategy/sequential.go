package strategy

import (
	"context"
	"fmt"
)

// sequential runs stages one at a time in declaration order. The first
// stage whose retries exhaust aborts the whole run; later stages are never
// attempted and stay pending.
type sequential struct{}

func (s *sequential) Name() string { return ModeSequential }

func (s *sequential) Run(ctx context.Context, sc *Context) error {
	for _, st := range sc.Execution.Stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := runStage(ctx, sc, st); err != nil {
			return fmt.Errorf("stage %q failed: %w", st.Name, err)
		}
	}
	return nil
}
