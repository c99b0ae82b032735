package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/vocalbridge/gateway/internal/gateway/orchestrator"
	"github.com/vocalbridge/gateway/internal/gateway/resilience"
	"github.com/vocalbridge/gateway/internal/shared/database"
	"github.com/vocalbridge/gateway/internal/shared/models"
)

// MessageSender processes one logical message send.
// Implemented by orchestrator.Orchestrator.
type MessageSender interface {
	SendMessage(ctx context.Context, in orchestrator.SendInput) (*orchestrator.SendResult, error)
}

// AgentStore loads agent configuration. Implemented by database.DB.
type AgentStore interface {
	GetAgent(ctx context.Context, tenantID, agentID string) (*models.Agent, error)
}

type MessageHandler struct {
	sender MessageSender
	agents AgentStore
	logger *slog.Logger
}

func NewMessageHandler(sender MessageSender, agents AgentStore, logger *slog.Logger) *MessageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageHandler{
		sender: sender,
		agents: agents,
		logger: logger,
	}
}

type messageRequest struct {
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id,omitempty"`
	Content   string `json:"content"`
}

// HandleSendMessage handles POST /v1/messages
func (h *MessageHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenant, ok := TenantFromContext(ctx)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AgentID == "" {
		http.Error(w, "agent_id is required", http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	agent, err := h.agents.GetAgent(ctx, tenant.ID, req.AgentID)
	if err != nil {
		if errors.Is(err, database.ErrAgentNotFound) {
			http.Error(w, "agent not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load agent", http.StatusInternalServerError)
		return
	}

	correlationID := CorrelationIDFromContext(ctx)

	result, err := h.sender.SendMessage(ctx, orchestrator.SendInput{
		Tenant:         *tenant,
		Agent:          *agent,
		SessionID:      req.SessionID,
		Content:        req.Content,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		CorrelationID:  correlationID,
	})
	if err != nil {
		h.writeError(w, correlationID, tenant.ID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache-Hit", fmt.Sprintf("%v", result.CacheHit))
	w.Header().Set("X-Provider", result.ProviderUsed)
	w.Header().Set("X-Cost-USD", result.CostUSD)
	w.Header().Set("X-Latency-Ms", fmt.Sprintf("%d", result.LatencyMs))
	json.NewEncoder(w).Encode(result)
}

func (h *MessageHandler) writeError(w http.ResponseWriter, correlationID, tenantID string, err error) {
	h.logger.Error("message send failed",
		"tenant_id", tenantID,
		"correlation_id", correlationID,
		"error", err.Error())

	var allFailed *resilience.AllVendorsFailed
	switch {
	case errors.Is(err, orchestrator.ErrIdempotencyUnavailable):
		http.Error(w, "idempotency store unavailable", http.StatusServiceUnavailable)
	case errors.As(err, &allFailed):
		http.Error(w, fmt.Sprintf("%v (correlation id %s)", allFailed, correlationID), http.StatusBadGateway)
	case errors.Is(err, context.Canceled):
		// Client went away; status is best effort.
		http.Error(w, "request cancelled", 499)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
