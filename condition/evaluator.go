// Package condition evaluates CEL expressions against node output and
// resume-data maps. It backs resume_conditions checks in the state manager;
// trigger filters do not use it.
package condition

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

// Evaluator evaluates CEL expressions with a compiled-program cache.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewEvaluator creates a condition evaluator with an empty cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]cel.Program)}
}

// EvaluateBool compiles (or reuses) expr and evaluates it against output and
// ctx, expecting a boolean result. $.field is accepted as shorthand for
// output.field, matching the workflow-authoring convention elsewhere in the
// platform.
func (e *Evaluator) EvaluateBool(expr string, output interface{}, ctx map[string]interface{}) (bool, error) {
	normalized := strings.ReplaceAll(expr, "$.", "output.")

	prg, err := e.program(normalized)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]interface{}{
		"output": output,
		"ctx":    ctx,
	})
	if err != nil {
		return false, fmt.Errorf("cel evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("cel expression did not return a bool, got %T", out.Value())
	}
	return result, nil
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	prg, err := e.compile(expr)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

func (e *Evaluator) compile(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("output", cel.DynType),
		cel.Variable("ctx", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel compilation error: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create cel program: %w", err)
	}
	return prg, nil
}

// ClearCache drops all compiled programs.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]cel.Program)
}

// CacheSize returns the number of cached expressions.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// MatchResumeConditions implements the §4.5 resume_conditions rule: every key
// in conditions must be present in data, and non-nil expected values must
// match exactly. A "cel" key is treated specially: its value is a CEL boolean
// expression evaluated against data, rather than an exact-match field.
func MatchResumeConditions(conditions, data map[string]interface{}, evaluator *Evaluator) (bool, error) {
	for key, expected := range conditions {
		switch key {
		case "timeout_action", "timeout_default_data":
			continue // reaper-only fields, not part of the match predicate
		case "cel":
			expr, ok := expected.(string)
			if !ok {
				return false, fmt.Errorf("resume_conditions.cel must be a string expression")
			}
			ok2, err := evaluator.EvaluateBool(expr, data, nil)
			if err != nil {
				return false, err
			}
			if !ok2 {
				return false, nil
			}
		default:
			actual, present := data[key]
			if !present {
				return false, nil
			}
			if expected != nil && actual != expected {
				return false, nil
			}
		}
	}
	return true, nil
}
