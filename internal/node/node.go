// Package node adapts the pipeline engine to the workflow runtime's
// generic node contract: a NodeExecutionContext carrying the node's
// parameters and upstream data in, a NodeActionResult out. The handler
// never lets an error escape; every failure becomes a structured result.
package node

// NodeExecutionContext is what the workflow runtime hands an action
// handler.
type NodeExecutionContext struct {
	Node NodeRef `json:"node"`
	// InputData holds upstream node output keyed by connector name; "main"
	// carries the default data stream.
	InputData map[string][]map[string]any `json:"inputData"`
}

// NodeRef identifies the node instance being executed.
type NodeRef struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// NodeActionResult is the runtime's generic node-result contract.
type NodeActionResult struct {
	Success  bool             `json:"success"`
	Data     []map[string]any `json:"data,omitempty"`
	Error    string           `json:"error,omitempty"`
	Metadata Metadata         `json:"metadata"`
}

// Metadata carries per-invocation bookkeeping.
type Metadata struct {
	// ExecutionTime is the handler's wall-clock duration in milliseconds.
	ExecutionTime int64 `json:"executionTime"`
}

// MainInput returns the first record of the "main" input stream, or nil.
func (c *NodeExecutionContext) MainInput() map[string]any {
	main := c.InputData["main"]
	if len(main) == 0 {
		return nil
	}
	return main[0]
}
