// Package condition evaluates the gating expression of a stage in
// conditional mode. Conditions are HCL expressions evaluated against the
// outputs of already-completed stages, e.g.
//
//	results.evaluate.f1 > 0.9 && !results.validate.driftDetected
//
// Two variables are in scope: `results` (object of completed stage name to
// that stage's output object) and `input` (the pipeline's initial dataset).
// The expression must produce a boolean. Referencing a stage that has not
// completed is an evaluation error; callers are expected to gate only on
// stages the dependency graph guarantees complete.
package condition

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Evaluate parses and evaluates one condition expression.
func Evaluate(expr string, results map[string]map[string]any, input map[string]any) (bool, error) {
	parsed, diags := hclsyntax.ParseExpression([]byte(expr), "condition", hcl.InitialPos)
	if diags.HasErrors() {
		return false, fmt.Errorf("invalid condition %q: %s", expr, diags.Error())
	}

	resultsVal, err := toCty(results)
	if err != nil {
		return false, fmt.Errorf("condition scope: %w", err)
	}
	inputVal, err := toCty(input)
	if err != nil {
		return false, fmt.Errorf("condition scope: %w", err)
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"results": resultsVal,
			"input":   inputVal,
		},
	}

	val, diags := parsed.Value(evalCtx)
	if diags.HasErrors() {
		return false, fmt.Errorf("condition %q failed to evaluate: %s", expr, diags.Error())
	}

	boolVal, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("condition %q must produce a boolean, got %s", expr, val.Type().FriendlyName())
	}
	if boolVal.IsNull() {
		return false, fmt.Errorf("condition %q produced a null value", expr)
	}

	return boolVal.True(), nil
}

// toCty converts an arbitrary Go value into a cty.Value by round-tripping
// through JSON, which gives the structural object types HCL expressions
// expect for attribute traversal.
func toCty(v any) (cty.Value, error) {
	if v == nil {
		return cty.EmptyObjectVal, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return cty.NilVal, err
	}
	typ, err := ctyjson.ImpliedType(raw)
	if err != nil {
		return cty.NilVal, err
	}
	return ctyjson.Unmarshal(raw, typ)
}
