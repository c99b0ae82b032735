package vendors

import "context"

// Request is the normalized request sent to a vendor. It is created once per
// logical send, not per retry attempt.
type Request struct {
	CallID       string
	TenantID     string
	AgentID      string
	SystemPrompt string
	UserMessage  string
}

// Result is the normalized vendor response. Never nil on success.
type Result struct {
	Text      string
	TokensIn  int
	TokensOut int
	LatencyMs int
}

// RawResponse is a vendor-specific response shape. Each adapter produces its
// own concrete type and is the only code that inspects it.
type RawResponse any

// Adapter is the capability every integrated vendor must provide. Send makes
// the outbound call and returns the vendor's raw response shape; Normalize
// maps that shape into a Result. Adapters translate their native failures
// into the three *Error kinds; nothing provider-specific escapes.
type Adapter interface {
	Name() string
	Send(ctx context.Context, req Request) (RawResponse, error)
	Normalize(raw RawResponse) (*Result, error)
}

// Call sends a request and normalizes the response in one step.
func Call(ctx context.Context, a Adapter, req Request) (*Result, error) {
	raw, err := a.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	return a.Normalize(raw)
}
