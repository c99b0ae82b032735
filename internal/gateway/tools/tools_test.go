package tools

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vocalbridge/gateway/internal/shared/models"
)

type memoryToolAudit struct {
	mu      sync.Mutex
	records []models.ToolExecution
}

func (m *memoryToolAudit) RecordToolExecution(ctx context.Context, rec models.ToolExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

type stubTool struct {
	name   string
	result map[string]any
	err    error
}

func (s *stubTool) Name() string { return s.name }

func (s *stubTool) Execute(ctx context.Context, params map[string]any, tc CallContext) (map[string]any, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func TestExecutorAuditsSuccess(t *testing.T) {
	audit := &memoryToolAudit{}
	executor := NewExecutor(audit, nil, &stubTool{name: "echo", result: map[string]any{"ok": true}})

	result, err := executor.Execute(context.Background(), "echo",
		map[string]any{"q": "x"},
		CallContext{TenantID: "t1", AgentID: "a1", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, true, result["ok"])

	require.Len(t, audit.records, 1)
	rec := audit.records[0]
	assert.Equal(t, "echo", rec.ToolName)
	assert.Equal(t, "success", rec.Status)
	assert.Equal(t, "t1", rec.TenantID)
	assert.Nil(t, rec.ErrorMessage)
}

func TestExecutorAuditsFailure(t *testing.T) {
	audit := &memoryToolAudit{}
	executor := NewExecutor(audit, nil, &stubTool{name: "broken", err: errors.New("backing service down")})

	_, err := executor.Execute(context.Background(), "broken", nil, CallContext{TenantID: "t1"})
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "broken", execErr.Tool)

	require.Len(t, audit.records, 1)
	assert.Equal(t, "error", audit.records[0].Status)
	require.NotNil(t, audit.records[0].ErrorMessage)
	assert.Contains(t, *audit.records[0].ErrorMessage, "backing service down")
}

func TestExecutorUnknownTool(t *testing.T) {
	executor := NewExecutor(&memoryToolAudit{}, nil)

	_, err := executor.Execute(context.Background(), "nope", nil, CallContext{})
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestInvoiceLookup(t *testing.T) {
	tool := NewInvoiceLookup()
	ctx := context.Background()

	t.Run("finds invoice in own company data", func(t *testing.T) {
		result, err := tool.Execute(ctx,
			map[string]any{"invoice_id": "INV-TC-001"},
			CallContext{CompanyKey: "techcorp"})
		require.NoError(t, err)
		assert.Equal(t, true, result["success"])

		invoice := result["invoice"].(Invoice)
		assert.Equal(t, "INV-TC-001", invoice.ID)
		assert.Equal(t, "paid", invoice.Status)
	})

	t.Run("other company's invoices are invisible", func(t *testing.T) {
		result, err := tool.Execute(ctx,
			map[string]any{"invoice_id": "INV-TC-001"},
			CallContext{CompanyKey: "healthfirst"})
		require.NoError(t, err)
		assert.Equal(t, false, result["success"])
	})

	t.Run("unknown invoice reports not found", func(t *testing.T) {
		result, err := tool.Execute(ctx,
			map[string]any{"invoice_id": "INV-TC-999"},
			CallContext{CompanyKey: "techcorp"})
		require.NoError(t, err)
		assert.Equal(t, false, result["success"])
	})

	t.Run("missing parameter is an error", func(t *testing.T) {
		_, err := tool.Execute(ctx, map[string]any{}, CallContext{CompanyKey: "techcorp"})
		require.Error(t, err)
	})

	t.Run("lookup is case insensitive", func(t *testing.T) {
		result, err := tool.Execute(ctx,
			map[string]any{"invoice_id": "inv-tc-002"},
			CallContext{CompanyKey: "techcorp"})
		require.NoError(t, err)
		assert.Equal(t, true, result["success"])
	})
}

func TestExtractInvoiceID(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"what's the status of INV-TC-001?", "INV-TC-001"},
		{"check inv-hf-002 please", "INV-HF-002"},
		{"look up INV-042", "INV-042"},
		{"look up INV042", "INV-042"},
		{"invoice 7 status?", "INV-007"},
		{"order #123", "INV-123"},
		{"how's the weather", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractInvoiceID(tt.message), "message: %s", tt.message)
	}
}

func TestHasInvoiceIntent(t *testing.T) {
	assert.True(t, HasInvoiceIntent("where is my invoice?"))
	assert.True(t, HasInvoiceIntent("check INV-TC-001"))
	assert.False(t, HasInvoiceIntent("hello there"))
}
