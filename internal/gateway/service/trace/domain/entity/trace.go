// Package entity holds the trace domain types. Request and response
// payloads are stored encrypted under the owning tenant's associated
// data; rows are append-only.
package entity

import (
	"time"
)

// Trace is one recorded request/response exchange.
type Trace struct {
	ID       string  `json:"id"`
	TenantID string  `json:"tenant_id"`
	AgentID  *string `json:"agent_id,omitempty"`

	Model    string `json:"model"`
	Provider string `json:"provider"`

	RequestCiphertext  []byte `json:"-"`
	RequestIV          []byte `json:"-"`
	ResponseCiphertext []byte `json:"-"`
	ResponseIV         []byte `json:"-"`

	StatusCode int `json:"status_code"`

	LatencyMs         int64 `json:"latency_ms"`
	TTFBMs            int64 `json:"ttfb_ms"`
	GatewayOverheadMs int64 `json:"gateway_overhead_ms"`

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	CreatedAt time.Time `json:"created_at"`
}

// AggregateStats is a windowed rollup of a tenant's traces.
type AggregateStats struct {
	Count            int64   `json:"count"`
	AvgLatencyMs     float64 `json:"avg_latency_ms"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
}
