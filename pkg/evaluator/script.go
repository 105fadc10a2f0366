package evaluator

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/strata/pkg/filter"
	"github.com/aretw0/strata/pkg/graph"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/tryfunc"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Script is a parsed HCL boolean expression.
//
// It sees the variables id, attributes and graph (order, size, directed),
// plus source and target for edges. Besides try and can it may call
// degree(key), has_node(key), lower, upper, strlen, abs, min and max; the
// graph functions query the unfiltered graph.
type Script struct {
	src  string
	expr hclsyntax.Expression
}

// Compile parses src. Syntax errors are reported as *filter.PredicateError.
func Compile(src string) (*Script, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "script", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, &filter.PredicateError{Reason: "invalid script", Err: diags}
	}
	return &Script{src: src, expr: expr}, nil
}

// String returns the source text.
func (s *Script) String() string {
	return s.src
}

// Predicate binds the script to an item type and the unfiltered graph.
func (s *Script) Predicate(item filter.ItemType, full *graph.Graph) filter.Predicate {
	base := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"graph": cty.ObjectVal(map[string]cty.Value{
				"order":    cty.NumberIntVal(int64(full.Order())),
				"size":     cty.NumberIntVal(int64(full.Size())),
				"directed": cty.BoolVal(full.Directed),
			}),
		},
		Functions: functions(full),
	}

	return func(id string, attrs graph.Attributes, _ *graph.Graph) (bool, error) {
		attrVal, err := attributesValue(attrs)
		if err != nil {
			return false, &filter.PredicateError{Reason: "attributes have no HCL representation", Err: err}
		}

		vars := map[string]cty.Value{
			"id":         cty.StringVal(id),
			"attributes": attrVal,
		}
		if item == filter.Edges {
			if e, ok := full.Edge(id); ok {
				vars["source"] = cty.StringVal(e.Source)
				vars["target"] = cty.StringVal(e.Target)
			}
		}
		ctx := base.NewChild()
		ctx.Variables = vars

		val, diags := s.expr.Value(ctx)
		if diags.HasErrors() {
			return false, &filter.PredicateError{Reason: "evaluation failed", Err: diags}
		}
		if !val.IsKnown() || val.IsNull() || !val.Type().Equals(cty.Bool) {
			return false, &filter.PredicateError{Reason: fmt.Sprintf("script returned %s, want bool", val.Type().FriendlyName())}
		}
		return val.True(), nil
	}
}

func attributesValue(attrs graph.Attributes) (cty.Value, error) {
	if len(attrs) == 0 {
		return cty.EmptyObjectVal, nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		data, err = json.Marshal(encodable(attrs))
	}
	if err != nil {
		return cty.NilVal, err
	}
	ty, err := ctyjson.ImpliedType(data)
	if err != nil {
		return cty.NilVal, err
	}
	return ctyjson.Unmarshal(data, ty)
}

// encodable drops the values JSON cannot carry, such as NaN, so scripts see
// them as missing.
func encodable(attrs graph.Attributes) graph.Attributes {
	out := make(graph.Attributes, len(attrs))
	for k, v := range attrs {
		if _, err := json.Marshal(v); err == nil {
			out[k] = v
		}
	}
	return out
}

func functions(full *graph.Graph) map[string]function.Function {
	return map[string]function.Function{
		"degree": function.New(&function.Spec{
			Params: []function.Parameter{{Name: "key", Type: cty.String}},
			Type:   function.StaticReturnType(cty.Number),
			Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
				return cty.NumberIntVal(int64(full.Degree(args[0].AsString()))), nil
			},
		}),
		"has_node": function.New(&function.Spec{
			Params: []function.Parameter{{Name: "key", Type: cty.String}},
			Type:   function.StaticReturnType(cty.Bool),
			Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
				return cty.BoolVal(full.HasNode(args[0].AsString())), nil
			},
		}),
		"lower":  stdlib.LowerFunc,
		"upper":  stdlib.UpperFunc,
		"strlen": stdlib.StrlenFunc,
		"abs":    stdlib.AbsoluteFunc,
		"min":    stdlib.MinFunc,
		"max":    stdlib.MaxFunc,
		"try":    tryfunc.TryFunc,
		"can":    tryfunc.CanFunc,
	}
}

func (e *Evaluator) evaluateScript(f filter.ScriptFilter, g, full *graph.Graph) (*graph.Graph, error) {
	pred := f.Predicate
	if pred == nil {
		script, err := Compile(f.Script)
		if err != nil {
			return nil, withItem(err, f.ItemType, "")
		}
		pred = script.Predicate(f.ItemType, full)
	}

	// The first failure aborts the stage; later items are skipped.
	var failure error
	out := keep(g, f.ItemType, func(key string, attrs graph.Attributes) bool {
		if failure != nil {
			return false
		}
		ok, err := pred(key, attrs, full)
		if err != nil {
			failure = withItem(err, f.ItemType, key)
			return false
		}
		return ok
	})
	if failure != nil {
		return nil, failure
	}
	return out, nil
}

// withItem tags err with the item it failed on, wrapping foreign errors in a
// PredicateError.
func withItem(err error, item filter.ItemType, key string) error {
	var perr *filter.PredicateError
	if errors.As(err, &perr) {
		tagged := *perr
		tagged.ItemType = item
		if tagged.ItemID == "" {
			tagged.ItemID = key
		}
		return &tagged
	}
	return &filter.PredicateError{ItemType: item, ItemID: key, Reason: "predicate failed", Err: err}
}
