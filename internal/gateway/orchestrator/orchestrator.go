// Package orchestrator ties one logical message send together: idempotency
// check, resilient vendor call, tool evaluation, atomic persistence of the
// message pair plus usage event, and the idempotency cache write.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vocalbridge/gateway/internal/gateway/billing"
	"github.com/vocalbridge/gateway/internal/gateway/idempotency"
	"github.com/vocalbridge/gateway/internal/gateway/resilience"
	"github.com/vocalbridge/gateway/internal/gateway/tools"
	"github.com/vocalbridge/gateway/internal/gateway/vendors"
	"github.com/vocalbridge/gateway/internal/shared/models"
)

// ErrIdempotencyUnavailable signals that deduplication was requested but the
// store could not be reached. The request is rejected rather than processed
// without its safety net.
var ErrIdempotencyUnavailable = errors.New("idempotency store unavailable")

// Persistence is the durable store for the message pair and usage event.
// CommitExchange must be atomic: all three rows or none.
type Persistence interface {
	CommitExchange(ctx context.Context, userMsg, assistantMsg models.Message, usage models.UsageEvent) error
}

// ToolRunner executes one named tool. Implemented by tools.Executor.
type ToolRunner interface {
	Execute(ctx context.Context, toolName string, params map[string]any, tc tools.CallContext) (map[string]any, error)
}

// Orchestrator is the top-level message use case.
type Orchestrator struct {
	registry *vendors.Registry
	caller   *resilience.Caller
	idem     idempotency.Store
	calc     *billing.Calculator
	store    Persistence
	tools    ToolRunner
	logger   *slog.Logger
	idemTTL  time.Duration
}

// New wires the orchestrator.
func New(
	registry *vendors.Registry,
	caller *resilience.Caller,
	idem idempotency.Store,
	calc *billing.Calculator,
	store Persistence,
	toolRunner ToolRunner,
	idemTTL time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if idemTTL <= 0 {
		idemTTL = idempotency.DefaultTTL
	}
	return &Orchestrator{
		registry: registry,
		caller:   caller,
		idem:     idem,
		calc:     calc,
		store:    store,
		tools:    toolRunner,
		logger:   logger,
		idemTTL:  idemTTL,
	}
}

// SendInput is one inbound logical request.
type SendInput struct {
	Tenant         models.Tenant
	Agent          models.Agent
	SessionID      string
	Content        string
	IdempotencyKey string // empty disables idempotency for this call
	CorrelationID  string // generated if empty
}

// SendResult is the caller-visible outcome. Its JSON encoding is what gets
// cached under the idempotency key, so a replay is byte-identical.
type SendResult struct {
	MessageID     string    `json:"message_id"`
	SessionID     string    `json:"session_id"`
	Role          string    `json:"role"`
	Content       string    `json:"content"`
	ProviderUsed  string    `json:"provider_used"`
	TokensIn      int       `json:"tokens_in"`
	TokensOut     int       `json:"tokens_out"`
	LatencyMs     int       `json:"latency_ms"`
	ToolsCalled   []string  `json:"tools_called"`
	CostUSD       string    `json:"cost_usd"`
	CorrelationID string    `json:"correlation_id"`
	CreatedAt     time.Time `json:"created_at"`

	CacheHit bool `json:"-"`
}

// SendMessage processes one logical request. Repeated calls bearing the same
// non-expired idempotency key return the first response without creating any
// new Message or UsageEvent.
func (o *Orchestrator) SendMessage(ctx context.Context, in SendInput) (*SendResult, error) {
	correlationID := in.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	useIdem := in.IdempotencyKey != ""
	claimed := false

	if useIdem {
		result, done, err := o.resolveIdempotency(ctx, in)
		if err != nil {
			return nil, err
		}
		if done {
			return result, nil
		}
		claimed = true
	}

	result, err := o.process(ctx, in, correlationID)
	if err != nil {
		if claimed {
			// Free the slot so a retry of the same logical request can run.
			if relErr := o.idem.Release(context.WithoutCancel(ctx), in.Tenant.ID, in.IdempotencyKey); relErr != nil {
				o.logger.Error("failed to release idempotency claim",
					"tenant_id", in.Tenant.ID, "correlation_id", correlationID, "error", relErr.Error())
			}
		}
		return nil, err
	}

	if useIdem {
		payload, marshalErr := json.Marshal(result)
		if marshalErr == nil {
			// The exchange is committed; the cache write must land even if
			// the caller has already disconnected.
			if storeErr := o.idem.Store(context.WithoutCancel(ctx), in.Tenant.ID, in.IdempotencyKey, payload, o.idemTTL); storeErr != nil {
				o.logger.Error("failed to store idempotent response",
					"tenant_id", in.Tenant.ID, "correlation_id", correlationID, "error", storeErr.Error())
			}
		}
	}

	return result, nil
}

// resolveIdempotency runs the lookup/claim/await protocol. done=true means
// the cached result is authoritative and no processing should happen. Any
// store error fails the request closed, since the caller asked for
// deduplication. On (false, nil) return this worker holds the claim.
func (o *Orchestrator) resolveIdempotency(ctx context.Context, in SendInput) (*SendResult, bool, error) {
	for {
		payload, found, err := o.idem.Lookup(ctx, in.Tenant.ID, in.IdempotencyKey)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrIdempotencyUnavailable, err)
		}
		if found {
			return o.cachedResult(payload)
		}

		won, err := o.idem.Claim(ctx, in.Tenant.ID, in.IdempotencyKey)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrIdempotencyUnavailable, err)
		}
		if won {
			return nil, false, nil
		}

		// A concurrent duplicate holds the slot; wait for its result. If
		// the holder lapses or releases without one, contend for the slot
		// again from the top: only a won claim may proceed to process.
		payload, found, err = o.idem.Await(ctx, in.Tenant.ID, in.IdempotencyKey)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrIdempotencyUnavailable, err)
		}
		if found {
			return o.cachedResult(payload)
		}
	}
}

func (o *Orchestrator) cachedResult(payload []byte) (*SendResult, bool, error) {
	var result SendResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, false, fmt.Errorf("corrupt idempotency payload: %w", err)
	}
	result.CacheHit = true
	return &result, true, nil
}

// process runs the cache-miss path: vendor call, tool evaluation, cost, and
// the atomic commit.
func (o *Orchestrator) process(ctx context.Context, in SendInput, correlationID string) (*SendResult, error) {
	primary, err := o.registry.Get(in.Agent.PrimaryProvider)
	if err != nil {
		return nil, err
	}
	var fallback vendors.Adapter
	if in.Agent.FallbackProvider != nil && *in.Agent.FallbackProvider != "" {
		fallback, err = o.registry.Get(*in.Agent.FallbackProvider)
		if err != nil {
			return nil, err
		}
	}

	req := vendors.Request{
		CallID:       uuid.NewString(),
		TenantID:     in.Tenant.ID,
		AgentID:      in.Agent.ID,
		SystemPrompt: in.Agent.SystemPrompt,
		UserMessage:  in.Content,
	}
	meta := resilience.CallMeta{
		TenantID:      in.Tenant.ID,
		SessionID:     in.SessionID,
		CorrelationID: correlationID,
	}

	startTime := time.Now()
	outcome, err := o.caller.Call(ctx, primary, fallback, req, meta)
	if err != nil {
		return nil, err
	}

	responseText, toolsCalled := o.evaluateTools(ctx, in, outcome.Result.Text)

	cost, err := o.calc.Cost(outcome.Provider, outcome.Result.TokensIn, outcome.Result.TokensOut)
	if err != nil {
		return nil, fmt.Errorf("cost calculation failed: %w", err)
	}

	totalLatencyMs := int(time.Since(startTime).Milliseconds())
	now := time.Now().UTC()
	assistantID := uuid.NewString()
	provider := outcome.Provider

	userMsg := models.Message{
		ID:            uuid.NewString(),
		SessionID:     in.SessionID,
		Role:          "user",
		Content:       in.Content,
		CorrelationID: correlationID,
		CreatedAt:     now,
	}
	assistantMsg := models.Message{
		ID:            assistantID,
		SessionID:     in.SessionID,
		Role:          "assistant",
		Content:       responseText,
		ProviderUsed:  &provider,
		TokensIn:      outcome.Result.TokensIn,
		TokensOut:     outcome.Result.TokensOut,
		LatencyMs:     totalLatencyMs,
		ToolsCalled:   toolsCalled,
		CorrelationID: correlationID,
		CreatedAt:     now,
	}
	usage := models.UsageEvent{
		ID:        uuid.NewString(),
		TenantID:  in.Tenant.ID,
		AgentID:   in.Agent.ID,
		SessionID: in.SessionID,
		MessageID: assistantID,
		Provider:  outcome.Provider,
		TokensIn:  outcome.Result.TokensIn,
		TokensOut: outcome.Result.TokensOut,
		CostUSD:   cost,
		EventType: "message",
		CreatedAt: now,
	}

	if err := o.store.CommitExchange(ctx, userMsg, assistantMsg, usage); err != nil {
		return nil, fmt.Errorf("failed to persist exchange: %w", err)
	}

	o.logger.Info("message processed",
		"tenant_id", in.Tenant.ID,
		"provider", outcome.Provider,
		"tokens_in", outcome.Result.TokensIn,
		"tokens_out", outcome.Result.TokensOut,
		"cost_usd", cost,
		"correlation_id", correlationID)

	return &SendResult{
		MessageID:     assistantID,
		SessionID:     in.SessionID,
		Role:          "assistant",
		Content:       responseText,
		ProviderUsed:  outcome.Provider,
		TokensIn:      outcome.Result.TokensIn,
		TokensOut:     outcome.Result.TokensOut,
		LatencyMs:     totalLatencyMs,
		ToolsCalled:   toolsCalled,
		CostUSD:       cost,
		CorrelationID: correlationID,
		CreatedAt:     now,
	}, nil
}

// evaluateTools runs the invoice lookup when the agent has it enabled and
// the message carries invoice intent. A tool failure is recorded by the
// executor but never aborts the send.
func (o *Orchestrator) evaluateTools(ctx context.Context, in SendInput, vendorText string) (string, []string) {
	if !hasTool(in.Agent.EnabledTools, "invoice_lookup") || !tools.HasInvoiceIntent(in.Content) {
		return vendorText, nil
	}
	invoiceID := tools.ExtractInvoiceID(in.Content)
	if invoiceID == "" {
		return vendorText, nil
	}

	tc := tools.CallContext{
		TenantID:   in.Tenant.ID,
		AgentID:    in.Agent.ID,
		SessionID:  in.SessionID,
		CompanyKey: in.Tenant.CompanyKey,
	}
	result, err := o.tools.Execute(ctx, "invoice_lookup", map[string]any{"invoice_id": invoiceID}, tc)
	if err != nil {
		o.logger.Warn("tool execution failed",
			"tool", "invoice_lookup",
			"tenant_id", in.Tenant.ID,
			"error", err.Error())
		return vendorText, nil
	}

	return renderInvoiceReply(result, vendorText), []string{"invoice_lookup"}
}

func renderInvoiceReply(result map[string]any, vendorText string) string {
	if success, _ := result["success"].(bool); !success {
		if msg, ok := result["error"].(string); ok {
			return msg
		}
		return vendorText
	}

	invoice, ok := result["invoice"].(tools.Invoice)
	if !ok {
		return vendorText
	}

	reply := fmt.Sprintf(
		"I found the invoice you requested:\n\nInvoice ID: %s\nCustomer: %s\nDescription: %s\nAmount: $%.2f\nStatus: %s\nDue Date: %s",
		invoice.ID, invoice.Customer, invoice.Description, invoice.Amount, invoice.Status, invoice.DueDate)
	if invoice.PaymentDate != "" {
		reply += "\nPaid On: " + invoice.PaymentDate
	}
	return reply
}

func hasTool(enabled []string, name string) bool {
	for _, t := range enabled {
		if t == name {
			return true
		}
	}
	return false
}
