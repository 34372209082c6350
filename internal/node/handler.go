package node

import (
	"context"
	"fmt"
	"time"

	"github.com/klikkflow/pipeline-engine/internal/config"
	"github.com/klikkflow/pipeline-engine/internal/ctxlog"
	"github.com/klikkflow/pipeline-engine/internal/orchestrator"
)

// Handler is the ML Pipeline Orchestrator node's action handler.
type Handler struct {
	orch *orchestrator.Orchestrator
}

// NewHandler wraps an orchestrator in the node contract.
func NewHandler(orch *orchestrator.Orchestrator) *Handler {
	return &Handler{orch: orch}
}

// Handle runs the node action named by the "operation" parameter: "execute"
// (default) runs the pipeline, "test" performs the dry-run validation. The
// returned result is always well-formed; no error escapes to the runtime.
func (h *Handler) Handle(ctx context.Context, nec *NodeExecutionContext) *NodeActionResult {
	logger := ctxlog.FromContext(ctx).With("node", nec.Node.Name)
	start := time.Now()

	cfg, err := ConfigFromParameters(nec.Node.Parameters)
	if err != nil {
		logger.Error("Node parameters rejected.", "error", err)
		return &NodeActionResult{
			Success:  false,
			Error:    err.Error(),
			Metadata: Metadata{ExecutionTime: time.Since(start).Milliseconds()},
		}
	}

	operation := stringParam(nec.Node.Parameters, "operation")
	if operation == "" {
		operation = "execute"
	}

	var result *NodeActionResult
	switch operation {
	case "execute":
		result = h.execute(ctx, cfg, nec)
	case "test":
		result = h.test(ctx, cfg)
	default:
		result = &NodeActionResult{
			Success: false,
			Error:   fmt.Sprintf("unsupported operation %q", operation),
		}
	}

	result.Metadata = Metadata{ExecutionTime: time.Since(start).Milliseconds()}
	return result
}

func (h *Handler) execute(ctx context.Context, cfg *config.Pipeline, nec *NodeExecutionContext) *NodeActionResult {
	res := h.orch.Execute(ctx, cfg, nec.MainInput())

	payload := map[string]any{
		"main":             nil,
		"ai_model":         nil,
		"deployment_info":  nil,
		"pipeline_metrics": nil,
	}
	if res.Execution != nil {
		payload["main"] = map[string]any{
			"execution": res.Execution.Report(),
			"summary":   res.Summary,
		}
		payload["ai_model"] = res.Execution.Artifacts["model"]
		payload["deployment_info"] = res.Execution.Artifacts["deployment"]
		payload["pipeline_metrics"] = res.Execution.OverallMetrics
	}

	return &NodeActionResult{
		Success: res.Success,
		Error:   res.Error,
		Data:    []map[string]any{payload},
	}
}

func (h *Handler) test(ctx context.Context, cfg *config.Pipeline) *NodeActionResult {
	report := h.orch.Test(ctx, cfg)

	errMsg := ""
	if !report.Success && len(report.Errors) > 0 {
		errMsg = report.Errors[0]
	}

	return &NodeActionResult{
		Success: report.Success,
		Error:   errMsg,
		Data: []map[string]any{{
			"main": report,
		}},
	}
}
