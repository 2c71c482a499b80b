package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
)

func chatBody() map[string]any {
	return map[string]any{
		"model": "gpt-4o",
		"messages": []any{
			map[string]any{"role": "system", "content": "caller system"},
			map[string]any{"role": "user", "content": "hi"},
		},
		"tools": []any{
			map[string]any{"type": "function", "function": map[string]any{"name": "search"}},
		},
	}
}

func TestMergeSystemPromptPrepend(t *testing.T) {
	body := chatBody()
	eff := &Effective{SystemPrompt: strptr("agent prompt")}

	ApplyMergePolicies(body, eff, entity.MergePolicies{})

	messages := body["messages"].([]any)
	require.Len(t, messages, 3)
	assert.Equal(t, map[string]any{"role": "system", "content": "agent prompt"}, messages[0])
	assert.Equal(t, "caller system", messages[1].(map[string]any)["content"])
}

func TestMergeSystemPromptAppend(t *testing.T) {
	body := chatBody()
	eff := &Effective{SystemPrompt: strptr("agent prompt")}

	ApplyMergePolicies(body, eff, entity.MergePolicies{SystemPrompt: entity.PolicyAppend})

	messages := body["messages"].([]any)
	require.Len(t, messages, 3)
	assert.Equal(t, "agent prompt", messages[2].(map[string]any)["content"])
}

func TestMergeSystemPromptOverwrite(t *testing.T) {
	body := chatBody()
	eff := &Effective{SystemPrompt: strptr("agent prompt")}

	ApplyMergePolicies(body, eff, entity.MergePolicies{SystemPrompt: entity.PolicyOverwrite})

	messages := body["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "agent prompt", messages[0].(map[string]any)["content"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])
}

func TestMergeSystemPromptIgnore(t *testing.T) {
	body := chatBody()
	eff := &Effective{SystemPrompt: strptr("agent prompt")}

	ApplyMergePolicies(body, eff, entity.MergePolicies{SystemPrompt: entity.PolicyIgnore})

	messages := body["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "caller system", messages[0].(map[string]any)["content"])
}

func TestMergeSkillsDedupAgentWins(t *testing.T) {
	body := chatBody()
	eff := &Effective{Skills: []entity.Skill{
		{"type": "function", "function": map[string]any{"name": "search", "description": "agent version"}},
		{"type": "function", "function": map[string]any{"name": "calc"}},
	}}

	ApplyMergePolicies(body, eff, entity.MergePolicies{})

	tools := body["tools"].([]any)
	require.Len(t, tools, 2)
	// Collision on "search": the agent definition replaced the caller's,
	// in place.
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "search", fn["name"])
	assert.Equal(t, "agent version", fn["description"])
	assert.Equal(t, "calc", tools[1].(map[string]any)["function"].(map[string]any)["name"])
}

func TestMergeSkillsOverwrite(t *testing.T) {
	body := chatBody()
	eff := &Effective{Skills: []entity.Skill{{"name": "only"}}}

	ApplyMergePolicies(body, eff, entity.MergePolicies{Skills: entity.PolicyOverwrite})

	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "only", tools[0].(map[string]any)["name"])
}

func TestMergeSkillsNilEffectiveLeavesBody(t *testing.T) {
	body := chatBody()
	ApplyMergePolicies(body, &Effective{}, entity.MergePolicies{})
	assert.Len(t, body["tools"].([]any), 1)
}

func TestMergeMCPEndpoints(t *testing.T) {
	body := chatBody()
	body["mcp_endpoints"] = []any{
		map[string]any{"name": "weather", "url": "https://caller.example/weather"},
		map[string]any{"name": "search", "url": "https://caller.example/search"},
	}
	eff := &Effective{MCPEndpoints: []entity.MCPEndpoint{
		{Name: "search", URL: "https://agent.example/search"},
		{Name: "mail", URL: "https://agent.example/mail"},
	}}

	active := ApplyMergePolicies(body, eff, entity.MergePolicies{})

	// The gateway-only field never reaches the upstream.
	_, present := body["mcp_endpoints"]
	assert.False(t, present)

	require.Len(t, active, 3)
	assert.Equal(t, "weather", active[0].Name)
	// Collision on "search": agent entry wins.
	assert.Equal(t, "https://agent.example/search", active[1].URL)
	assert.Equal(t, "mail", active[2].Name)
}

func TestMergeMCPEndpointsIgnore(t *testing.T) {
	body := chatBody()
	eff := &Effective{MCPEndpoints: []entity.MCPEndpoint{{Name: "mail", URL: "https://x"}}}

	active := ApplyMergePolicies(body, eff, entity.MergePolicies{MCPEndpoints: entity.PolicyIgnore})
	assert.Empty(t, active)
}
