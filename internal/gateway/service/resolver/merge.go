package resolver

import (
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	"github.com/loomhq/loom/pkg/utils/json"
)

// bodyMCPEndpointsKey is the gateway-only body field a caller may use to
// supply its own tool-server endpoints. It is stripped before proxying.
const bodyMCPEndpointsKey = "mcp_endpoints"

// ApplyMergePolicies folds an agent's effective configuration into a
// caller-supplied chat-completions body under the agent's merge
// policies, mutating the body in place. It returns the active MCP
// endpoint set for the request.
func ApplyMergePolicies(body map[string]any, eff *Effective, policies entity.MergePolicies) []entity.MCPEndpoint {
	applySystemPrompt(body, eff.SystemPrompt, policies.EffectiveSystemPrompt())
	applySkills(body, eff.Skills, policies.EffectiveSkills())
	return applyMCPEndpoints(body, eff.MCPEndpoints, policies.EffectiveMCPEndpoints())
}

func applySystemPrompt(body map[string]any, prompt *string, policy string) {
	if prompt == nil || policy == entity.PolicyIgnore {
		return
	}
	synthetic := map[string]any{"role": "system", "content": *prompt}
	messages, _ := body["messages"].([]any)

	switch policy {
	case entity.PolicyAppend:
		body["messages"] = append(messages, synthetic)
	case entity.PolicyOverwrite:
		kept := make([]any, 0, len(messages)+1)
		kept = append(kept, synthetic)
		for _, m := range messages {
			if role(m) != "system" {
				kept = append(kept, m)
			}
		}
		body["messages"] = kept
	default: // prepend
		body["messages"] = append([]any{synthetic}, messages...)
	}
}

func applySkills(body map[string]any, skills []entity.Skill, policy string) {
	if skills == nil || policy == entity.PolicyIgnore {
		return
	}
	agentTools := make([]any, 0, len(skills))
	for _, s := range skills {
		agentTools = append(agentTools, map[string]any(s))
	}

	if policy == entity.PolicyOverwrite {
		body["tools"] = agentTools
		return
	}

	// merge: set-union keyed by name, agent definition wins on collision.
	callerTools, _ := body["tools"].([]any)
	merged := append([]any(nil), callerTools...)
	index := make(map[string]int, len(merged))
	for i, t := range merged {
		if name := toolName(t); name != "" {
			index[name] = i
		}
	}
	for _, s := range skills {
		name := s.Name()
		if i, ok := index[name]; ok && name != "" {
			merged[i] = map[string]any(s)
			continue
		}
		merged = append(merged, map[string]any(s))
	}
	body["tools"] = merged
}

// applyMCPEndpoints combines the effective endpoints with any endpoints
// supplied in the gateway-only body field, which is always stripped.
func applyMCPEndpoints(body map[string]any, endpoints []entity.MCPEndpoint, policy string) []entity.MCPEndpoint {
	caller := callerEndpoints(body)
	delete(body, bodyMCPEndpointsKey)

	if policy == entity.PolicyIgnore || endpoints == nil {
		return caller
	}
	if policy == entity.PolicyOverwrite {
		return append([]entity.MCPEndpoint(nil), endpoints...)
	}

	// merge: set-union keyed by name, agent entry wins on collision.
	merged := append([]entity.MCPEndpoint(nil), caller...)
	index := make(map[string]int, len(merged))
	for i, ep := range merged {
		index[ep.Name] = i
	}
	for _, ep := range endpoints {
		if i, ok := index[ep.Name]; ok {
			merged[i] = ep
			continue
		}
		merged = append(merged, ep)
	}
	return merged
}

func callerEndpoints(body map[string]any) []entity.MCPEndpoint {
	raw, ok := body[bodyMCPEndpointsKey]
	if !ok {
		return nil
	}
	// Round-trip through JSON rather than hand-walking the loose maps.
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var out []entity.MCPEndpoint
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil
	}
	return out
}

func role(message any) string {
	m, ok := message.(map[string]any)
	if !ok {
		return ""
	}
	r, _ := m["role"].(string)
	return r
}

func toolName(tool any) string {
	m, ok := tool.(map[string]any)
	if !ok {
		return ""
	}
	return entity.Skill(m).Name()
}
