package policy

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// CELHookCompiler compiles deny-rule expressions into CustomHooks for the
// CUSTOM stage, grounded on the teacher's
// pkg/governance/policy_evaluator_cel.go (cached *cel.Env, per-expression
// cel.Program cache, bool-typed result). A hook's expression sees the
// request as a "req" variable: action, resource, org_id, instance_id,
// asset_id, cost, and context (the caller-supplied Request.Context map).
type CELHookCompiler struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCELHookCompiler builds a compiler with the standard req variable.
func NewCELHookCompiler() (*CELHookCompiler, error) {
	env, err := cel.NewEnv(cel.Variable("req", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("policy: create cel environment: %w", err)
	}
	return &CELHookCompiler{env: env, programs: make(map[string]cel.Program)}, nil
}

// Compile turns a CEL boolean expression into a CustomHook that denies the
// request (with reason) whenever the expression evaluates true. Programs
// are compiled once per distinct expr and cached for reuse across calls.
func (c *CELHookCompiler) Compile(expr, reason string) (CustomHook, error) {
	prg, err := c.program(expr)
	if err != nil {
		return nil, err
	}
	return func(req Request) (bool, string) {
		out, _, err := prg.Eval(map[string]any{"req": requestVars(req)})
		if err != nil {
			// A malformed or type-mismatched evaluation fails closed: an
			// unevaluable custom rule denies rather than silently passing.
			return true, fmt.Sprintf("custom rule error: %v", err)
		}
		deny, ok := out.Value().(bool)
		if !ok {
			return true, "custom rule did not evaluate to a bool"
		}
		if deny {
			return true, reason
		}
		return false, ""
	}, nil
}

func (c *CELHookCompiler) program(expr string) (cel.Program, error) {
	c.mu.RLock()
	prg, ok := c.programs[expr]
	c.mu.RUnlock()
	if ok {
		return prg, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prg, ok = c.programs[expr]; ok {
		return prg, nil
	}

	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("policy: compile custom rule %q: %w", expr, issues.Err())
	}
	prg, err := c.env.Program(ast, cel.InterruptCheckFrequency(100), cel.CostLimit(10000))
	if err != nil {
		return nil, fmt.Errorf("policy: build custom rule program %q: %w", expr, err)
	}
	c.programs[expr] = prg
	return prg, nil
}

func requestVars(req Request) map[string]any {
	return map[string]any{
		"action":      req.Action,
		"resource":    req.Resource,
		"org_id":      req.OrgID,
		"instance_id": req.InstanceID,
		"asset_id":    req.AssetID,
		"cost":        req.Cost,
		"context":     req.Context,
	}
}
