package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
)

// SourceType selects the concrete connector implementation.
type SourceType string

const (
	SourceTypeProcurementRegistry SourceType = "procurement_registry"
	SourceTypeBudgetSource        SourceType = "budget_source"
	SourceTypeRestFeed            SourceType = "rest_feed"
)

// AuthType selects how credentials are attached to outbound requests.
type AuthType string

const (
	AuthTypeNone   AuthType = "none"
	AuthTypeAPIKey AuthType = "api_key"
	AuthTypeBearer AuthType = "bearer"
	AuthTypeBasic  AuthType = "basic"
	AuthTypeOAuth  AuthType = "oauth"
)

const (
	DefaultConnectorTimeoutMs  = 30000
	DefaultConnectorRetryCount = 3
	DefaultRateLimitWindowSecs = 60
)

// ConnectorConfig is an operator-managed adapter to one external data source.
type ConnectorConfig struct {
	ID                     uuid.UUID                         `db:"id" json:"id"`
	Name                   string                            `db:"name" json:"name"`
	SourceType             SourceType                        `db:"source_type" json:"source_type"`
	BaseURL                string                            `db:"base_url" json:"base_url"`
	Credential             *string                           `db:"credential" json:"-"`
	AuthType               AuthType                          `db:"auth_type" json:"auth_type"`
	AuthParams             database.JSONB[map[string]string] `db:"auth_params" json:"auth_params"`
	Headers                database.JSONB[map[string]string] `db:"headers" json:"headers"`
	Settings               database.JSONB[map[string]any]    `db:"settings" json:"settings"`
	TimeoutMs              int                               `db:"timeout_ms" json:"timeout_ms"`
	RetryCount             int                               `db:"retry_count" json:"retry_count"`
	RateLimitRequests      *int                              `db:"rate_limit_requests" json:"rate_limit_requests,omitempty"`
	RateLimitWindowSeconds *int                              `db:"rate_limit_window_seconds" json:"rate_limit_window_seconds,omitempty"`
	Active                 bool                              `db:"active" json:"active"`
	LastSyncAt             *time.Time                        `db:"last_sync_at" json:"last_sync_at,omitempty"`
	CreatedAt              time.Time                         `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time                         `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (ConnectorConfig) TableName() string {
	return "connectors"
}

// RateLimit is a requests-per-window budget.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// RateLimit returns the configured budget, or nil when the connector is unlimited.
func (c *ConnectorConfig) RateLimit() *RateLimit {
	if c.RateLimitRequests == nil || *c.RateLimitRequests <= 0 {
		return nil
	}
	window := DefaultRateLimitWindowSecs
	if c.RateLimitWindowSeconds != nil && *c.RateLimitWindowSeconds > 0 {
		window = *c.RateLimitWindowSeconds
	}
	return &RateLimit{Requests: *c.RateLimitRequests, Window: time.Duration(window) * time.Second}
}

// Timeout returns the per-request timeout.
func (c *ConnectorConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return time.Duration(DefaultConnectorTimeoutMs) * time.Millisecond
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Setting returns a string setting or the fallback.
func (c *ConnectorConfig) Setting(key, fallback string) string {
	if c.Settings.Data == nil {
		return fallback
	}
	if v, ok := c.Settings.Data[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// ConnectorLog is an append-only audit record of one outbound request attempt.
type ConnectorLog struct {
	ID              uuid.UUID                         `db:"id" json:"id"`
	ConnectorID     uuid.UUID                         `db:"connector_id" json:"connector_id"`
	Endpoint        string                            `db:"endpoint" json:"endpoint"`
	Method          string                            `db:"method" json:"method"`
	Attempt         int                               `db:"attempt" json:"attempt"`
	RequestHeaders  database.JSONB[map[string]string] `db:"request_headers" json:"request_headers"`
	RequestBody     *string                           `db:"request_body" json:"request_body,omitempty"`
	ResponseStatus  *int                              `db:"response_status" json:"response_status,omitempty"`
	ResponseHeaders database.JSONB[map[string]string] `db:"response_headers" json:"response_headers"`
	ResponseBody    *string                           `db:"response_body" json:"response_body,omitempty"`
	DurationMs      int64                             `db:"duration_ms" json:"duration_ms"`
	Error           *string                           `db:"error" json:"error,omitempty"`
	CreatedAt       time.Time                         `db:"created_at" json:"created_at"`
}

// TableName returns the database table name
func (ConnectorLog) TableName() string {
	return "connector_logs"
}
