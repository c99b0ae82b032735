package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vocalbridge/gateway/internal/gateway/vendors"
	"github.com/vocalbridge/gateway/internal/shared/models"
)

// Policy configures the retry behavior for one vendor.
type Policy struct {
	Timeout     time.Duration // per-attempt deadline
	MaxAttempts int
	BaseBackoff time.Duration
	BackoffCap  time.Duration
}

// DefaultPolicy mirrors the production defaults: 10s attempt timeout, 3
// attempts, 1s base backoff capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:     10 * time.Second,
		MaxAttempts: 3,
		BaseBackoff: 1 * time.Second,
		BackoffCap:  10 * time.Second,
	}
}

// AuditRecorder durably appends one provider call record. Records for a
// logical call must be observable in the order they were written.
type AuditRecorder interface {
	RecordProviderCall(ctx context.Context, rec models.ProviderCallRecord) error
}

// CallMeta identifies the logical call for audit purposes.
type CallMeta struct {
	TenantID      string
	SessionID     string
	CorrelationID string
}

// Outcome is a successful resilient call: the normalized result plus the
// provider that actually produced it.
type Outcome struct {
	Result   *vendors.Result
	Provider string
}

// AllVendorsFailed is the single terminal failure of a resilient call. It
// carries the terminal error of each vendor that was exhausted.
type AllVendorsFailed struct {
	PrimaryProvider  string
	PrimaryErr       error
	FallbackProvider string
	FallbackErr      error
}

func (e *AllVendorsFailed) Error() string {
	msg := fmt.Sprintf("primary vendor %s failed: %v", e.PrimaryProvider, e.PrimaryErr)
	if e.FallbackErr != nil {
		msg += fmt.Sprintf("; fallback vendor %s also failed: %v", e.FallbackProvider, e.FallbackErr)
	}
	return msg
}

// Caller orchestrates timeout, retry with backoff, and fallback across a
// primary and optional secondary adapter, appending one audit record per
// attempt.
type Caller struct {
	audit  AuditRecorder
	policy Policy
	logger *slog.Logger
}

// NewCaller creates a resilient caller.
func NewCaller(audit AuditRecorder, policy Policy, logger *slog.Logger) *Caller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Caller{audit: audit, policy: policy, logger: logger}
}

// Call attempts the primary adapter up to MaxAttempts times, then the
// fallback (if configured) the same way. On success it returns immediately
// without touching the fallback. If both are exhausted it fails with
// *AllVendorsFailed carrying both terminal errors.
func (c *Caller) Call(ctx context.Context, primary, fallback vendors.Adapter, req vendors.Request, meta CallMeta) (*Outcome, error) {
	result, primaryErr := c.callWithRetry(ctx, primary, req, meta)
	if primaryErr == nil {
		return &Outcome{Result: result, Provider: primary.Name()}, nil
	}

	// A cancelled caller gets no fallback.
	if ctx.Err() != nil {
		return nil, primaryErr
	}

	c.logger.Warn("primary vendor exhausted",
		"provider", primary.Name(),
		"correlation_id", meta.CorrelationID,
		"error", primaryErr.Error())

	if fallback == nil {
		return nil, &AllVendorsFailed{PrimaryProvider: primary.Name(), PrimaryErr: primaryErr}
	}

	// Marker row before the first fallback attempt.
	if err := c.record(ctx, meta, fallback.Name(), 0, models.CallFallback, nil, nil, nil); err != nil {
		return nil, err
	}

	result, fallbackErr := c.callWithRetry(ctx, fallback, req, meta)
	if fallbackErr == nil {
		return &Outcome{Result: result, Provider: fallback.Name()}, nil
	}
	if ctx.Err() != nil {
		return nil, fallbackErr
	}

	return nil, &AllVendorsFailed{
		PrimaryProvider:  primary.Name(),
		PrimaryErr:       primaryErr,
		FallbackProvider: fallback.Name(),
		FallbackErr:      fallbackErr,
	}
}

// callWithRetry runs the attempt loop for one adapter. Attempt numbering is
// 1-based and restarts for each adapter.
func (c *Caller) callWithRetry(ctx context.Context, adapter vendors.Adapter, req vendors.Request, meta CallMeta) (*vendors.Result, error) {
	var lastErr *vendors.Error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepWithContext(ctx, c.backoffDelay(attempt, lastErr)); err != nil {
				return nil, err
			}
		}

		startTime := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, c.policy.Timeout)
		result, err := vendors.Call(attemptCtx, adapter, req)
		cancel()
		latencyMs := int(time.Since(startTime).Milliseconds())

		if err == nil {
			okStatus := 200
			if recErr := c.record(ctx, meta, adapter.Name(), attempt, models.CallSuccess, &okStatus, &latencyMs, nil); recErr != nil {
				return nil, recErr
			}
			return result, nil
		}

		// Caller went away mid-attempt: the started record is still
		// finalized, then the cancellation propagates.
		if ctx.Err() != nil {
			msg := "abandoned: " + ctx.Err().Error()
			_ = c.record(context.WithoutCancel(ctx), meta, adapter.Name(), attempt, models.CallAttempted, nil, &latencyMs, &msg)
			return nil, ctx.Err()
		}

		ve := vendors.Classify(adapter.Name(), 0, err)
		lastErr = ve

		status := models.CallRetrying
		if attempt == c.policy.MaxAttempts {
			status = models.CallError
		}
		msg := ve.Error()
		if recErr := c.record(ctx, meta, adapter.Name(), attempt, status, httpStatusOf(ve), &latencyMs, &msg); recErr != nil {
			return nil, recErr
		}

		c.logger.Warn("vendor call failed",
			"provider", adapter.Name(),
			"attempt", attempt,
			"kind", ve.Kind.String(),
			"correlation_id", meta.CorrelationID)
	}

	return nil, lastErr
}

// backoffDelay returns the wait before the given attempt (attempt > 1):
// min(base * 2^(attempt-2), cap), unless the prior failure was rate limited,
// in which case the vendor's stated delay is honored exactly.
func (c *Caller) backoffDelay(attempt int, lastErr *vendors.Error) time.Duration {
	if lastErr != nil && lastErr.Kind == vendors.KindRateLimited && lastErr.RetryAfter > 0 {
		return lastErr.RetryAfter
	}
	delay := c.policy.BaseBackoff
	for i := 2; i < attempt; i++ {
		delay *= 2
		if delay >= c.policy.BackoffCap {
			return c.policy.BackoffCap
		}
	}
	if delay > c.policy.BackoffCap {
		return c.policy.BackoffCap
	}
	return delay
}

func (c *Caller) record(ctx context.Context, meta CallMeta, provider string, attempt int, status models.CallStatus, httpStatus, latencyMs *int, errMsg *string) error {
	rec := models.ProviderCallRecord{
		ID:            uuid.NewString(),
		TenantID:      meta.TenantID,
		SessionID:     meta.SessionID,
		CorrelationID: meta.CorrelationID,
		Provider:      provider,
		AttemptNumber: attempt,
		Status:        status,
		HTTPStatus:    httpStatus,
		LatencyMs:     latencyMs,
		ErrorMessage:  errMsg,
		CreatedAt:     time.Now().UTC(),
	}
	if err := c.audit.RecordProviderCall(ctx, rec); err != nil {
		return fmt.Errorf("failed to record provider call: %w", err)
	}
	return nil
}

func httpStatusOf(ve *vendors.Error) *int {
	if ve.HTTPStatus == 0 {
		return nil
	}
	status := ve.HTTPStatus
	return &status
}

// sleepWithContext waits for d or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
