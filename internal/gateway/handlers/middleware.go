package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/vocalbridge/gateway/internal/shared/database"
	"github.com/vocalbridge/gateway/internal/shared/models"
)

type contextKey string

const (
	tenantKey        contextKey = "tenant"
	correlationIDKey contextKey = "correlation_id"
)

// TenantResolver authenticates a raw API key. Implemented by database.DB.
type TenantResolver interface {
	GetTenantByAPIKey(ctx context.Context, rawKey string) (*models.Tenant, error)
}

// RateLimiter counts requests per tenant in a fixed window.
// Implemented by redis.Client.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, tenantID string, limit int) (exceeded bool, remaining int, err error)
}

type Middleware struct {
	tenants   TenantResolver
	limiter   RateLimiter
	rateLimit int
}

func NewMiddleware(tenants TenantResolver, limiter RateLimiter, rateLimit int) *Middleware {
	if rateLimit <= 0 {
		rateLimit = 100
	}
	return &Middleware{
		tenants:   tenants,
		limiter:   limiter,
		rateLimit: rateLimit,
	}
}

// TenantFromContext returns the authenticated tenant set by AuthMiddleware.
func TenantFromContext(ctx context.Context) (*models.Tenant, bool) {
	tenant, ok := ctx.Value(tenantKey).(*models.Tenant)
	return tenant, ok
}

// CorrelationIDFromContext returns the request's correlation id.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// AuthMiddleware resolves the Bearer token to a tenant
func (m *Middleware) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
			return
		}

		tenant, err := m.tenants.GetTenantByAPIKey(r.Context(), parts[1])
		if err != nil {
			if errors.Is(err, database.ErrInvalidAPIKey) {
				http.Error(w, "invalid API key", http.StatusUnauthorized)
				return
			}
			http.Error(w, "authentication unavailable", http.StatusServiceUnavailable)
			return
		}

		ctx := context.WithValue(r.Context(), tenantKey, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimitMiddleware enforces the per-tenant request rate
func (m *Middleware) RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := TenantFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		exceeded, remaining, err := m.limiter.CheckRateLimit(r.Context(), tenant.ID, m.rateLimit)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", m.rateLimit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if exceeded {
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CorrelationIDMiddleware propagates the caller's X-Correlation-ID header,
// generating one when absent, and echoes it on the response.
func (m *Middleware) CorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		w.Header().Set("X-Correlation-ID", correlationID)
		ctx := context.WithValue(r.Context(), correlationIDKey, correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CORSMiddleware handles CORS
func (m *Middleware) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key, X-Correlation-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
