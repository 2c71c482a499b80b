package entity

import (
	"time"
)

// TenantStatus enumerates the lifecycle states of a tenant.
type TenantStatus string

const (
	// TenantActive tenants participate in the data plane.
	TenantActive TenantStatus = "active"
	// TenantSuspended tenants are rejected at authentication time.
	TenantSuspended TenantStatus = "suspended"
)

// ProviderConfig holds upstream provider credentials. A nil config on a
// tenant or agent means "inherit from the parent chain".
type ProviderConfig struct {
	// Provider is "openai" or "azure".
	Provider string `json:"provider"`

	// APIKey authenticates against the upstream. For openai it may be
	// empty, in which case the gateway-wide fallback key applies.
	APIKey string `json:"api_key,omitempty"`

	// BaseURL overrides the upstream base URL (openai dialect).
	BaseURL string `json:"base_url,omitempty"`

	// Endpoint, Deployment and APIVersion are required for azure.
	Endpoint   string `json:"endpoint,omitempty"`
	Deployment string `json:"deployment,omitempty"`
	APIVersion string `json:"api_version,omitempty"`
}

// Skill is an OpenAI-tools-format tool definition. The body is kept
// schema-loose; only the name is inspected, for merge deduplication.
type Skill map[string]any

// Name returns the skill's dedup key: a top-level "name", falling back
// to the nested function name of an OpenAI tool definition.
func (s Skill) Name() string {
	if name, ok := s["name"].(string); ok && name != "" {
		return name
	}
	if fn, ok := s["function"].(map[string]any); ok {
		if name, ok := fn["name"].(string); ok {
			return name
		}
	}
	return ""
}

// MCPEndpoint is a tool-server address an agent may route a single
// tool-call round-trip to.
type MCPEndpoint struct {
	Name string `json:"name"`
	URL  string `json:"url"`

	// AuthHeader, when set, is sent as the Authorization header value
	// on the tool-server POST.
	AuthHeader string `json:"auth_header,omitempty"`
}

// ConfigOverride carries the overrideable configuration fields shared by
// tenants and agents. Nil fields mean "inherit".
type ConfigOverride struct {
	ProviderConfig  *ProviderConfig `json:"provider_config,omitempty"`
	SystemPrompt    *string         `json:"system_prompt,omitempty"`
	Skills          []Skill         `json:"skills,omitempty"`
	MCPEndpoints    []MCPEndpoint   `json:"mcp_endpoints,omitempty"`
	AvailableModels []string        `json:"available_models,omitempty"`
}

// Tenant is an organisation-level identity: the root of configuration
// inheritance and ownership. Tenants form a rooted forest via ParentID.
type Tenant struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	ParentID *string      `json:"parent_id,omitempty"`
	Status   TenantStatus `json:"status"`

	ConfigOverride

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the tenant participates in the data plane.
func (t *Tenant) IsActive() bool { return t.Status == TenantActive }
