package portal

import (
	"fmt"

	"github.com/bytedance/gg/gptr"
	"github.com/gin-gonic/gin"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/identity"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	"github.com/loomhq/loom/internal/pkg/core"
	"github.com/loomhq/loom/pkg/errorx"
)

// APIKeyHandler serves data-plane key management for the session's
// tenant.
type APIKeyHandler struct {
	identity *identity.Module
}

// NewAPIKeyHandler creates an APIKeyHandler.
func NewAPIKeyHandler(mod *identity.Module) *APIKeyHandler {
	return &APIKeyHandler{identity: mod}
}

type createKeyRequest struct {
	Name string `json:"name"`
}

// keyResponse wraps a key record. Key carries the raw secret exactly
// once, on creation.
type keyResponse struct {
	*entity.APIKey
	Key *string `json:"key,omitempty"`
}

// Create mints a key for one of the tenant's agents. The raw key is
// returned exactly once. Owner only.
func (h *APIKeyHandler) Create(c *gin.Context) {
	s := requireOwner(c)
	if s == nil {
		return
	}
	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrPortalBind, "bind key request"), nil)
		return
	}
	ctx := c.Request.Context()

	agentID := c.Param("id")
	agent, err := h.identity.Agents.Get(ctx, agentID)
	if err != nil {
		writeDomainError(c, err, "load agent %s", agentID)
		return
	}
	if agent.TenantID != s.TenantID {
		writeDomainError(c, fmt.Errorf("%w: %s", errno.ErrAgentNotFound, agentID), "load agent")
		return
	}

	key, raw, err := h.identity.APIKeys.Create(ctx, agent, req.Name)
	if err != nil {
		writeDomainError(c, err, "create key for agent %s", agentID)
		return
	}
	core.WriteCreated(c, keyResponse{APIKey: key, Key: gptr.Of(raw)})
}

// List returns the tenant's keys. Only hashes and display prefixes are
// stored, so raw keys never appear here.
func (h *APIKeyHandler) List(c *gin.Context) {
	s := session(c)
	keys, err := h.identity.APIKeys.ListByTenant(c.Request.Context(), s.TenantID)
	if err != nil {
		writeDomainError(c, err, "list keys of %s", s.TenantID)
		return
	}
	core.WriteResponse(c, nil, gin.H{"keys": keys})
}

// ListByAgent returns one agent's keys.
func (h *APIKeyHandler) ListByAgent(c *gin.Context) {
	s := session(c)
	ctx := c.Request.Context()

	agentID := c.Param("id")
	agent, err := h.identity.Agents.Get(ctx, agentID)
	if err != nil || agent.TenantID != s.TenantID {
		writeDomainError(c, fmt.Errorf("%w: %s", errno.ErrAgentNotFound, agentID), "load agent")
		return
	}

	keys, err := h.identity.APIKeys.ListByAgent(ctx, agentID)
	if err != nil {
		writeDomainError(c, err, "list keys of agent %s", agentID)
		return
	}
	core.WriteResponse(c, nil, gin.H{"keys": keys})
}

// Revoke permanently deactivates a key. Owner only.
func (h *APIKeyHandler) Revoke(c *gin.Context) {
	s := requireOwner(c)
	if s == nil {
		return
	}
	ctx := c.Request.Context()

	id := c.Param("id")
	keys, err := h.identity.APIKeys.ListByTenant(ctx, s.TenantID)
	if err != nil {
		writeDomainError(c, err, "list keys of %s", s.TenantID)
		return
	}
	owned := false
	for _, k := range keys {
		if k.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		writeDomainError(c, fmt.Errorf("%w: %s", errno.ErrAPIKeyNotFound, id), "revoke key")
		return
	}

	if err := h.identity.APIKeys.Revoke(ctx, id); err != nil {
		writeDomainError(c, err, "revoke key %s", id)
		return
	}
	core.WriteResponse(c, nil, gin.H{"revoked": id})
}
