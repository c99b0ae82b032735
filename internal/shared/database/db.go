package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/vocalbridge/gateway/internal/shared/models"
)

var (
	ErrInvalidAPIKey = errors.New("invalid API key")
	ErrAgentNotFound = errors.New("agent not found")
)

type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// GetTenantByAPIKey resolves a tenant from its raw API key value.
func (db *DB) GetTenantByAPIKey(ctx context.Context, rawKey string) (*models.Tenant, error) {
	hash := sha256.Sum256([]byte(rawKey))
	keyHash := hex.EncodeToString(hash[:])

	query := `
		SELECT id, name, company_key, api_key_hash, created_at, updated_at
		FROM tenants
		WHERE api_key_hash = $1
	`

	var tenant models.Tenant
	err := db.conn.QueryRowContext(ctx, query, keyHash).Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.CompanyKey,
		&tenant.APIKeyHash,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrInvalidAPIKey
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &tenant, nil
}

// GetAgent loads an agent's configuration, scoped to the tenant.
func (db *DB) GetAgent(ctx context.Context, tenantID, agentID string) (*models.Agent, error) {
	query := `
		SELECT id, tenant_id, name, primary_provider, fallback_provider,
		       system_prompt, enabled_tools, created_at, updated_at
		FROM agents
		WHERE id = $1 AND tenant_id = $2
	`

	var agent models.Agent
	var enabledTools []byte
	err := db.conn.QueryRowContext(ctx, query, agentID, tenantID).Scan(
		&agent.ID,
		&agent.TenantID,
		&agent.Name,
		&agent.PrimaryProvider,
		&agent.FallbackProvider,
		&agent.SystemPrompt,
		&enabledTools,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	if len(enabledTools) > 0 {
		if err := json.Unmarshal(enabledTools, &agent.EnabledTools); err != nil {
			return nil, fmt.Errorf("failed to decode enabled_tools: %w", err)
		}
	}

	return &agent, nil
}

// CommitExchange writes the user message, the assistant message, and the
// usage event in one transaction. Either all three rows land or none do.
func (db *DB) CommitExchange(ctx context.Context, userMsg, assistantMsg models.Message, usage models.UsageEvent) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertMessage(ctx, tx, userMsg); err != nil {
		return err
	}
	if err := insertMessage(ctx, tx, assistantMsg); err != nil {
		return err
	}

	usageQuery := `
		INSERT INTO usage_events (
			id, tenant_id, agent_id, session_id, message_id, provider,
			tokens_in, tokens_out, cost_usd, event_type, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = tx.ExecContext(ctx, usageQuery,
		usage.ID,
		usage.TenantID,
		usage.AgentID,
		usage.SessionID,
		usage.MessageID,
		usage.Provider,
		usage.TokensIn,
		usage.TokensOut,
		usage.CostUSD,
		usage.EventType,
		usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit exchange: %w", err)
	}
	return nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, msg models.Message) error {
	toolsCalled, err := json.Marshal(msg.ToolsCalled)
	if err != nil {
		return fmt.Errorf("failed to encode tools_called: %w", err)
	}

	query := `
		INSERT INTO messages (
			id, session_id, role, content, provider_used, tokens_in,
			tokens_out, latency_ms, tools_called, correlation_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = tx.ExecContext(ctx, query,
		msg.ID,
		msg.SessionID,
		msg.Role,
		msg.Content,
		msg.ProviderUsed,
		msg.TokensIn,
		msg.TokensOut,
		msg.LatencyMs,
		toolsCalled,
		msg.CorrelationID,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// RecordProviderCall appends one row to the provider call audit log.
func (db *DB) RecordProviderCall(ctx context.Context, rec models.ProviderCallRecord) error {
	query := `
		INSERT INTO provider_calls (
			id, tenant_id, session_id, correlation_id, provider,
			attempt_number, status, http_status, latency_ms, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := db.conn.ExecContext(ctx, query,
		rec.ID,
		rec.TenantID,
		rec.SessionID,
		rec.CorrelationID,
		rec.Provider,
		rec.AttemptNumber,
		string(rec.Status),
		rec.HTTPStatus,
		rec.LatencyMs,
		rec.ErrorMessage,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert provider call: %w", err)
	}
	return nil
}

// RecordToolExecution appends one row to the tool execution audit log.
func (db *DB) RecordToolExecution(ctx context.Context, rec models.ToolExecution) error {
	params, err := json.Marshal(rec.Parameters)
	if err != nil {
		return fmt.Errorf("failed to encode tool parameters: %w", err)
	}
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to encode tool result: %w", err)
	}

	query := `
		INSERT INTO tool_executions (
			id, tenant_id, agent_id, session_id, message_id, tool_name,
			parameters, result, status, latency_ms, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = db.conn.ExecContext(ctx, query,
		rec.ID,
		rec.TenantID,
		rec.AgentID,
		rec.SessionID,
		rec.MessageID,
		rec.ToolName,
		params,
		result,
		rec.Status,
		rec.LatencyMs,
		rec.ErrorMessage,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert tool execution: %w", err)
	}
	return nil
}
