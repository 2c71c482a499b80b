package entity

import (
	"time"
)

// Merge policies applied when folding an agent's effective configuration
// into a caller-supplied chat-completions body.
const (
	PolicyPrepend   = "prepend"
	PolicyAppend    = "append"
	PolicyOverwrite = "overwrite"
	PolicyIgnore    = "ignore"
	PolicyMerge     = "merge"
)

// DefaultConversationTokenLimit is the snapshot threshold when an agent
// does not set its own.
const DefaultConversationTokenLimit = 4000

// MergePolicies selects, per field, how agent configuration combines
// with caller input at request time.
type MergePolicies struct {
	// SystemPrompt is one of prepend, append, overwrite, ignore.
	SystemPrompt string `json:"system_prompt,omitempty"`
	// Skills is one of merge, overwrite, ignore.
	Skills string `json:"skills,omitempty"`
	// MCPEndpoints is one of merge, overwrite, ignore.
	MCPEndpoints string `json:"mcp_endpoints,omitempty"`
}

// EffectiveSystemPrompt returns the system-prompt policy with its default.
func (p MergePolicies) EffectiveSystemPrompt() string {
	if p.SystemPrompt == "" {
		return PolicyPrepend
	}
	return p.SystemPrompt
}

// EffectiveSkills returns the skills policy with its default.
func (p MergePolicies) EffectiveSkills() string {
	if p.Skills == "" {
		return PolicyMerge
	}
	return p.Skills
}

// EffectiveMCPEndpoints returns the endpoint policy with its default.
func (p MergePolicies) EffectiveMCPEndpoints() string {
	if p.MCPEndpoints == "" {
		return PolicyMerge
	}
	return p.MCPEndpoints
}

// Agent is a named, reusable LLM configuration owned by exactly one
// tenant. Each nil override field inherits through the tenant chain.
type Agent struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	// Name is unique within the owning tenant.
	Name string `json:"name"`

	ConfigOverride
	Policies MergePolicies `json:"policies"`

	// ConversationsEnabled turns on conversation tracking and memory
	// injection for requests authenticated against this agent.
	ConversationsEnabled bool `json:"conversations_enabled"`

	// ConversationTokenLimit is the token budget above which the
	// conversation is summarised into a snapshot.
	ConversationTokenLimit int `json:"conversation_token_limit"`

	// SummaryModel, when set, is the model used for summarisation
	// sub-calls instead of the caller's model.
	SummaryModel string `json:"summary_model,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveTokenLimit returns the conversation token limit with its default.
func (a *Agent) EffectiveTokenLimit() int {
	if a.ConversationTokenLimit > 0 {
		return a.ConversationTokenLimit
	}
	return DefaultConversationTokenLimit
}
