package portal

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/identity"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	"github.com/loomhq/loom/internal/gateway/service/resolver"
	"github.com/loomhq/loom/internal/pkg/core"
	"github.com/loomhq/loom/pkg/errorx"
)

// TenantHandler serves the current tenant, its configuration and its
// children.
type TenantHandler struct {
	identity *identity.Module
	resolver *resolver.Resolver
}

// NewTenantHandler creates a TenantHandler.
func NewTenantHandler(mod *identity.Module, res *resolver.Resolver) *TenantHandler {
	return &TenantHandler{identity: mod, resolver: res}
}

// effectiveView is the portal-safe projection of a resolved
// configuration: credentials are masked.
type effectiveView struct {
	Provider        *providerView         `json:"provider,omitempty"`
	SystemPrompt    *string               `json:"system_prompt,omitempty"`
	Skills          []entity.Skill        `json:"skills,omitempty"`
	MCPEndpoints    []entity.MCPEndpoint  `json:"mcp_endpoints,omitempty"`
	AvailableModels []string              `json:"available_models,omitempty"`
	Chain           []resolver.ChainEntry `json:"chain"`
}

type providerView struct {
	Provider   string `json:"provider"`
	APIKey     string `json:"api_key,omitempty"`
	BaseURL    string `json:"base_url,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
	Deployment string `json:"deployment,omitempty"`
	APIVersion string `json:"api_version,omitempty"`
}

func newEffectiveView(eff *resolver.Effective) (*effectiveView, error) {
	view := &effectiveView{}
	if err := copier.Copy(view, eff); err != nil {
		return nil, err
	}
	if view.Provider != nil && view.Provider.APIKey != "" {
		view.Provider.APIKey = maskSecret(view.Provider.APIKey)
	}
	return view, nil
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}

// Get returns the current tenant with its resolved effective
// configuration and inheritance chain.
func (h *TenantHandler) Get(c *gin.Context) {
	s := session(c)
	ctx := c.Request.Context()

	tenant, err := h.identity.Tenants.Get(ctx, s.TenantID)
	if err != nil {
		writeDomainError(c, err, "load tenant %s", s.TenantID)
		return
	}

	eff, err := h.resolver.ResolveTenant(ctx, s.TenantID)
	if err != nil {
		// A tenant without a usable provider chain still loads; the
		// portal shows what is missing.
		core.WriteResponse(c, nil, gin.H{"tenant": tenant, "effective": nil, "resolve_error": err.Error()})
		return
	}
	view, err := newEffectiveView(eff)
	if err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrPortalInternal, "project effective config"), nil)
		return
	}

	core.WriteResponse(c, nil, gin.H{"tenant": tenant, "effective": view})
}

type updateTenantRequest struct {
	Name            *string                `json:"name,omitempty"`
	ProviderConfig  *entity.ProviderConfig `json:"provider_config,omitempty"`
	SystemPrompt    *string                `json:"system_prompt,omitempty"`
	Skills          []entity.Skill         `json:"skills,omitempty"`
	MCPEndpoints    []entity.MCPEndpoint   `json:"mcp_endpoints,omitempty"`
	AvailableModels []string               `json:"available_models,omitempty"`

	// Clear names override fields to reset to "inherit".
	Clear []string `json:"clear,omitempty"`
}

// Update applies configuration changes to the current tenant. Owner
// only. Supplied fields replace; names listed in clear reset to
// inherit.
func (h *TenantHandler) Update(c *gin.Context) {
	s := requireOwner(c)
	if s == nil {
		return
	}
	var req updateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrPortalBind, "bind tenant update"), nil)
		return
	}
	ctx := c.Request.Context()

	tenant, err := h.identity.Tenants.Get(ctx, s.TenantID)
	if err != nil {
		writeDomainError(c, err, "load tenant %s", s.TenantID)
		return
	}

	if req.Name != nil {
		tenant.Name = *req.Name
	}
	applyOverrideUpdate(&tenant.ConfigOverride, req.ProviderConfig, req.SystemPrompt, req.Skills, req.MCPEndpoints, req.AvailableModels, req.Clear)

	if err := h.identity.Tenants.Update(ctx, tenant); err != nil {
		writeDomainError(c, err, "update tenant %s", s.TenantID)
		return
	}
	core.WriteResponse(c, nil, tenant)
}

type createChildRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateChild creates a sub-tenant under the current tenant. Owner only.
func (h *TenantHandler) CreateChild(c *gin.Context) {
	s := requireOwner(c)
	if s == nil {
		return
	}
	var req createChildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrPortalBind, "bind child tenant request"), nil)
		return
	}

	child, err := h.identity.Tenants.CreateChild(c.Request.Context(), s.TenantID, req.Name, s.UserID)
	if err != nil {
		writeDomainError(c, err, "create child of %s", s.TenantID)
		return
	}
	core.WriteCreated(c, child)
}

// ListChildren returns the current tenant's direct children.
func (h *TenantHandler) ListChildren(c *gin.Context) {
	s := session(c)
	children, err := h.identity.Tenants.ListChildren(c.Request.Context(), s.TenantID)
	if err != nil {
		writeDomainError(c, err, "list children of %s", s.TenantID)
		return
	}
	core.WriteResponse(c, nil, gin.H{"tenants": children})
}

// SetChildStatus suspends or reactivates a direct child tenant. Owner
// only.
func (h *TenantHandler) SetChildStatus(c *gin.Context) {
	s := requireOwner(c)
	if s == nil {
		return
	}
	var req struct {
		Status entity.TenantStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrPortalBind, "bind status request"), nil)
		return
	}
	if req.Status != entity.TenantActive && req.Status != entity.TenantSuspended {
		core.WriteResponse(c, errorx.WrapC(fmt.Errorf("status %q", req.Status), ErrValidation, "unknown tenant status"), nil)
		return
	}
	ctx := c.Request.Context()

	childID := c.Param("id")
	child, err := h.identity.Tenants.Get(ctx, childID)
	if err != nil {
		writeDomainError(c, err, "load tenant %s", childID)
		return
	}
	if child.ParentID == nil || *child.ParentID != s.TenantID {
		writeDomainError(c, fmt.Errorf("%w: %s is not a child of %s", errno.ErrTenantNotFound, childID, s.TenantID), "set status")
		return
	}

	if err := h.identity.Tenants.SetStatus(ctx, childID, req.Status); err != nil {
		writeDomainError(c, err, "set status of %s", childID)
		return
	}
	core.WriteResponse(c, nil, gin.H{"id": childID, "status": req.Status})
}

// applyOverrideUpdate folds a partial update into an override block.
func applyOverrideUpdate(o *entity.ConfigOverride, pc *entity.ProviderConfig, prompt *string,
	skills []entity.Skill, endpoints []entity.MCPEndpoint, models []string, clear []string) {
	if pc != nil {
		o.ProviderConfig = pc
	}
	if prompt != nil {
		o.SystemPrompt = prompt
	}
	if skills != nil {
		o.Skills = skills
	}
	if endpoints != nil {
		o.MCPEndpoints = endpoints
	}
	if models != nil {
		o.AvailableModels = models
	}
	for _, name := range clear {
		switch name {
		case "provider_config":
			o.ProviderConfig = nil
		case "system_prompt":
			o.SystemPrompt = nil
		case "skills":
			o.Skills = nil
		case "mcp_endpoints":
			o.MCPEndpoints = nil
		case "available_models":
			o.AvailableModels = nil
		}
	}
}
