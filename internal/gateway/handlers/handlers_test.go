package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vocalbridge/gateway/internal/gateway/orchestrator"
	"github.com/vocalbridge/gateway/internal/gateway/resilience"
	"github.com/vocalbridge/gateway/internal/shared/database"
	"github.com/vocalbridge/gateway/internal/shared/models"
)

type stubSender struct {
	lastInput orchestrator.SendInput
	result    *orchestrator.SendResult
	err       error
}

func (s *stubSender) SendMessage(ctx context.Context, in orchestrator.SendInput) (*orchestrator.SendResult, error) {
	s.lastInput = in
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubAgents struct {
	agent *models.Agent
	err   error
}

func (s *stubAgents) GetAgent(ctx context.Context, tenantID, agentID string) (*models.Agent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.agent, nil
}

type stubTenants struct {
	tenant *models.Tenant
	err    error
}

func (s *stubTenants) GetTenantByAPIKey(ctx context.Context, rawKey string) (*models.Tenant, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.tenant, nil
}

type stubLimiter struct {
	exceeded  bool
	remaining int
	err       error
}

func (s *stubLimiter) CheckRateLimit(ctx context.Context, tenantID string, limit int) (bool, int, error) {
	return s.exceeded, s.remaining, s.err
}

func testRouter(sender MessageSender, agents AgentStore, tenants TenantResolver, limiter RateLimiter) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := NewMiddleware(tenants, limiter, 100)
	handler := NewMessageHandler(sender, agents, logger)

	r := chi.NewRouter()
	r.Use(mw.CorrelationIDMiddleware)
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.AuthMiddleware)
		r.Use(mw.RateLimitMiddleware)
		r.Post("/messages", handler.HandleSendMessage)
	})
	return r
}

func sendRequest(t *testing.T, router http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer sk-test")
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func okStubs() (*stubSender, *stubAgents, *stubTenants, *stubLimiter) {
	sender := &stubSender{result: &orchestrator.SendResult{
		MessageID:    "msg-1",
		SessionID:    "session-1",
		Role:         "assistant",
		Content:      "hi there",
		ProviderUsed: "vendorA",
		TokensIn:     10,
		TokensOut:    5,
		CostUSD:      "0.000030",
	}}
	agents := &stubAgents{agent: &models.Agent{ID: "agent-1", TenantID: "tenant-1", PrimaryProvider: "vendorA"}}
	tenants := &stubTenants{tenant: &models.Tenant{ID: "tenant-1", CompanyKey: "techcorp"}}
	limiter := &stubLimiter{remaining: 99}
	return sender, agents, tenants, limiter
}

func TestHandleSendMessage(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		sender, agents, tenants, limiter := okStubs()
		router := testRouter(sender, agents, tenants, limiter)

		rec := sendRequest(t, router, `{"agent_id":"agent-1","session_id":"session-1","content":"hello"}`, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "vendorA", rec.Header().Get("X-Provider"))
		assert.Equal(t, "false", rec.Header().Get("X-Cache-Hit"))
		assert.Equal(t, "0.000030", rec.Header().Get("X-Cost-USD"))
		assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))

		var body orchestrator.SendResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "msg-1", body.MessageID)
		assert.Equal(t, "hi there", body.Content)

		assert.Equal(t, "tenant-1", sender.lastInput.Tenant.ID)
		assert.Equal(t, "hello", sender.lastInput.Content)
	})

	t.Run("idempotency key and correlation id propagate", func(t *testing.T) {
		sender, agents, tenants, limiter := okStubs()
		router := testRouter(sender, agents, tenants, limiter)

		rec := sendRequest(t, router, `{"agent_id":"agent-1","content":"hello"}`, map[string]string{
			"Idempotency-Key":  "key-42",
			"X-Correlation-ID": "corr-42",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "corr-42", rec.Header().Get("X-Correlation-ID"))
		assert.Equal(t, "key-42", sender.lastInput.IdempotencyKey)
		assert.Equal(t, "corr-42", sender.lastInput.CorrelationID)
	})

	t.Run("session id generated when absent", func(t *testing.T) {
		sender, agents, tenants, limiter := okStubs()
		router := testRouter(sender, agents, tenants, limiter)

		rec := sendRequest(t, router, `{"agent_id":"agent-1","content":"hello"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, sender.lastInput.SessionID)
	})

	t.Run("missing content", func(t *testing.T) {
		sender, agents, tenants, limiter := okStubs()
		router := testRouter(sender, agents, tenants, limiter)

		rec := sendRequest(t, router, `{"agent_id":"agent-1"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown agent", func(t *testing.T) {
		sender, _, tenants, limiter := okStubs()
		agents := &stubAgents{err: database.ErrAgentNotFound}
		router := testRouter(sender, agents, tenants, limiter)

		rec := sendRequest(t, router, `{"agent_id":"nope","content":"hello"}`, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("all vendors failed maps to bad gateway", func(t *testing.T) {
		_, agents, tenants, limiter := okStubs()
		sender := &stubSender{err: &resilience.AllVendorsFailed{PrimaryProvider: "vendorA", PrimaryErr: errors.New("boom")}}
		router := testRouter(sender, agents, tenants, limiter)

		rec := sendRequest(t, router, `{"agent_id":"agent-1","content":"hello"}`, nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("idempotency store down maps to service unavailable", func(t *testing.T) {
		_, agents, tenants, limiter := okStubs()
		sender := &stubSender{err: orchestrator.ErrIdempotencyUnavailable}
		router := testRouter(sender, agents, tenants, limiter)

		rec := sendRequest(t, router, `{"agent_id":"agent-1","content":"hello"}`, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("missing header", func(t *testing.T) {
		sender, agents, tenants, limiter := okStubs()
		router := testRouter(sender, agents, tenants, limiter)

		req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid key", func(t *testing.T) {
		sender, agents, _, limiter := okStubs()
		tenants := &stubTenants{err: database.ErrInvalidAPIKey}
		router := testRouter(sender, agents, tenants, limiter)

		rec := sendRequest(t, router, `{"agent_id":"agent-1","content":"hello"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("auth store down", func(t *testing.T) {
		sender, agents, _, limiter := okStubs()
		tenants := &stubTenants{err: errors.New("connection refused")}
		router := testRouter(sender, agents, tenants, limiter)

		rec := sendRequest(t, router, `{"agent_id":"agent-1","content":"hello"}`, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("exceeded", func(t *testing.T) {
		sender, agents, tenants, _ := okStubs()
		limiter := &stubLimiter{exceeded: true}
		router := testRouter(sender, agents, tenants, limiter)

		rec := sendRequest(t, router, `{"agent_id":"agent-1","content":"hello"}`, nil)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	})

	t.Run("limiter failure is ignored", func(t *testing.T) {
		sender, agents, tenants, _ := okStubs()
		limiter := &stubLimiter{err: errors.New("redis down")}
		router := testRouter(sender, agents, tenants, limiter)

		rec := sendRequest(t, router, `{"agent_id":"agent-1","content":"hello"}`, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("remaining header set", func(t *testing.T) {
		sender, agents, tenants, limiter := okStubs()
		router := testRouter(sender, agents, tenants, limiter)

		rec := sendRequest(t, router, `{"agent_id":"agent-1","content":"hello"}`, nil)
		assert.Equal(t, "99", rec.Header().Get("X-RateLimit-Remaining"))
	})
}
