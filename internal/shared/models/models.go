package models

import "time"

// Tenant represents an isolated customer account. All data and vendor
// configuration is scoped to exactly one tenant.
type Tenant struct {
	ID         string
	Name       string
	CompanyKey string
	APIKeyHash string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Agent holds the per-tenant conversational configuration: which vendor to
// call first, which to fall back to, and which tools are enabled.
type Agent struct {
	ID               string
	TenantID         string
	Name             string
	PrimaryProvider  string
	FallbackProvider *string
	SystemPrompt     string
	EnabledTools     []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Message is one turn in a session. User and assistant messages are paired
// 1:1 per logical send.
type Message struct {
	ID            string
	SessionID     string
	Role          string // 'user' | 'assistant' | 'system'
	Content       string
	ProviderUsed  *string
	TokensIn      int
	TokensOut     int
	LatencyMs     int
	ToolsCalled   []string
	CorrelationID string
	CreatedAt     time.Time
}

// UsageEvent is one row in the append-only billing ledger. Exactly one event
// is created per successfully completed logical message send; rows are never
// updated or deleted.
type UsageEvent struct {
	ID        string
	TenantID  string
	AgentID   string
	SessionID string
	MessageID string
	Provider  string // provider actually used, which may be the fallback
	TokensIn  int
	TokensOut int
	CostUSD   string // fixed-point decimal, 6 fractional digits
	EventType string // 'message'
	CreatedAt time.Time
}

// CallStatus is the terminal state of a single provider call attempt.
type CallStatus string

const (
	CallAttempted CallStatus = "attempted" // started but abandoned (caller cancelled)
	CallRetrying  CallStatus = "retrying"  // failed with retries remaining
	CallFallback  CallStatus = "fallback"  // marker row before the first fallback attempt
	CallSuccess   CallStatus = "success"
	CallError     CallStatus = "error" // failed with no retries remaining
)

// ProviderCallRecord is one row in the append-only provider call audit log.
// One record is written per attempt, immutable once written, ordered by
// creation time within a logical call.
type ProviderCallRecord struct {
	ID            string
	TenantID      string
	SessionID     string
	CorrelationID string
	Provider      string
	AttemptNumber int // 1-based per provider; 0 for the fallback marker
	Status        CallStatus
	HTTPStatus    *int
	LatencyMs     *int
	ErrorMessage  *string
	CreatedAt     time.Time
}

// ToolExecution is the audit record for one tool invocation. It is written
// independently of vendor call success.
type ToolExecution struct {
	ID           string
	TenantID     string
	AgentID      string
	SessionID    string
	MessageID    *string
	ToolName     string
	Parameters   map[string]any
	Result       map[string]any
	Status       string // 'success' | 'error'
	LatencyMs    int
	ErrorMessage *string
	CreatedAt    time.Time
}
