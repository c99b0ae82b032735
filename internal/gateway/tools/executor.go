package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vocalbridge/gateway/internal/shared/models"
)

// AuditStore durably records one tool execution.
type AuditStore interface {
	RecordToolExecution(ctx context.Context, rec models.ToolExecution) error
}

// Executor dispatches tool calls by name and audits every invocation.
type Executor struct {
	tools  map[string]Tool
	audit  AuditStore
	logger *slog.Logger
}

// NewExecutor creates an executor over a fixed set of tools.
func NewExecutor(audit AuditStore, logger *slog.Logger, tools ...Tool) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		tools:  make(map[string]Tool, len(tools)),
		audit:  audit,
		logger: logger,
	}
	for _, tool := range tools {
		e.tools[tool.Name()] = tool
	}
	return e
}

// Execute runs the named tool and writes its audit record regardless of
// outcome. Failures come back as *ExecutionError.
func (e *Executor) Execute(ctx context.Context, toolName string, params map[string]any, tc CallContext) (map[string]any, error) {
	tool, ok := e.tools[toolName]
	if !ok {
		return nil, &ExecutionError{Tool: toolName, Err: fmt.Errorf("unknown tool")}
	}

	startTime := time.Now()
	result, err := tool.Execute(ctx, params, tc)
	latencyMs := int(time.Since(startTime).Milliseconds())

	rec := models.ToolExecution{
		ID:         uuid.NewString(),
		TenantID:   tc.TenantID,
		AgentID:    tc.AgentID,
		SessionID:  tc.SessionID,
		ToolName:   toolName,
		Parameters: params,
		Result:     result,
		Status:     "success",
		LatencyMs:  latencyMs,
		CreatedAt:  time.Now().UTC(),
	}
	if err != nil {
		rec.Status = "error"
		msg := err.Error()
		rec.ErrorMessage = &msg
	}

	if auditErr := e.audit.RecordToolExecution(ctx, rec); auditErr != nil {
		e.logger.Error("failed to audit tool execution",
			"tool", toolName,
			"tenant_id", tc.TenantID,
			"error", auditErr.Error())
	}

	if err != nil {
		return nil, &ExecutionError{Tool: toolName, Err: err}
	}
	return result, nil
}
