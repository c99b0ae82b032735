// Package tools is the pluggable tool-execution framework. The gateway core
// only depends on the Execute contract; every invocation is audited with
// parameters, result, status, and latency, independent of the vendor call
// audit trail.
package tools

import (
	"context"
	"fmt"
)

// CallContext identifies who is invoking a tool.
type CallContext struct {
	TenantID   string
	AgentID    string
	SessionID  string
	CompanyKey string
}

// Tool is one executable capability.
type Tool interface {
	Name() string
	Execute(ctx context.Context, params map[string]any, tc CallContext) (map[string]any, error)
}

// ExecutionError wraps a tool failure. It is recorded but never aborts
// message persistence; the response simply lacks the tool's contribution.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
