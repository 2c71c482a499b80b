package portal

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/loomhq/loom/internal/gateway/service/identity"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/service"
	"github.com/loomhq/loom/internal/pkg/core"
	"github.com/loomhq/loom/pkg/errorx"
)

// AuthHandler serves signup, login and session management.
type AuthHandler struct {
	identity *identity.Module
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(mod *identity.Module) *AuthHandler {
	return &AuthHandler{identity: mod}
}

type signupRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	TenantName string `json:"tenant_name"`
}

type sessionResponse struct {
	Token  string         `json:"token"`
	User   *entity.User   `json:"user"`
	Tenant *entity.Tenant `json:"tenant"`
	Role   string         `json:"role"`
}

// Signup registers a user and bootstraps their tenant, default agent
// and owner membership, then opens a session.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrPortalBind, "bind signup request"), nil)
		return
	}

	user, tenant, err := h.identity.Users.Signup(c.Request.Context(), req.Email, req.Password, req.TenantName)
	if err != nil {
		writeDomainError(c, err, "signup %s", req.Email)
		return
	}

	token, err := h.identity.Tokens.Issue(service.Session{
		UserID:   user.ID,
		TenantID: tenant.ID,
		Role:     entity.RoleOwner,
	})
	if err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrPortalInternal, "issue session token"), nil)
		return
	}

	core.WriteCreated(c, sessionResponse{Token: token, User: user, Tenant: tenant, Role: entity.RoleOwner})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`

	// TenantID scopes the session when the user belongs to several
	// tenants; empty picks the earliest membership.
	TenantID string `json:"tenant_id"`
}

// Login verifies credentials and opens a session scoped to one of the
// user's tenants.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrPortalBind, "bind login request"), nil)
		return
	}
	ctx := c.Request.Context()

	user, err := h.identity.Users.Login(ctx, req.Email, req.Password)
	if err != nil {
		writeDomainError(c, err, "login %s", req.Email)
		return
	}

	memberships, err := h.identity.Memberships.ListTenantsOf(ctx, user.ID)
	if err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrPortalInternal, "list memberships"), nil)
		return
	}
	membership := pickMembership(memberships, req.TenantID)
	if membership == nil {
		core.WriteResponse(c, errorx.WrapC(fmt.Errorf("user has no membership in tenant %q", req.TenantID), ErrUnauthenticated, "login %s", req.Email), nil)
		return
	}

	tenant, err := h.identity.Tenants.Get(ctx, membership.TenantID)
	if err != nil {
		writeDomainError(c, err, "load tenant %s", membership.TenantID)
		return
	}

	token, err := h.identity.Tokens.Issue(service.Session{
		UserID:   user.ID,
		TenantID: membership.TenantID,
		Role:     membership.Role,
	})
	if err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrPortalInternal, "issue session token"), nil)
		return
	}

	core.WriteResponse(c, nil, sessionResponse{Token: token, User: user, Tenant: tenant, Role: membership.Role})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ChangePassword re-hashes the caller's password.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrPortalBind, "bind change-password request"), nil)
		return
	}
	s := session(c)

	if err := h.identity.Users.ChangePassword(c.Request.Context(), s.UserID, req.OldPassword, req.NewPassword); err != nil {
		writeDomainError(c, err, "change password for %s", s.UserID)
		return
	}
	core.WriteResponse(c, nil, gin.H{"changed": true})
}

// Me returns the caller's user record and memberships.
func (h *AuthHandler) Me(c *gin.Context) {
	s := session(c)
	ctx := c.Request.Context()

	user, err := h.identity.Users.Get(ctx, s.UserID)
	if err != nil {
		writeDomainError(c, err, "load user %s", s.UserID)
		return
	}
	memberships, err := h.identity.Memberships.ListTenantsOf(ctx, s.UserID)
	if err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrPortalInternal, "list memberships"), nil)
		return
	}

	core.WriteResponse(c, nil, gin.H{
		"user":        user,
		"memberships": memberships,
		"tenant_id":   s.TenantID,
		"role":        s.Role,
	})
}

func pickMembership(memberships []*entity.Membership, tenantID string) *entity.Membership {
	if len(memberships) == 0 {
		return nil
	}
	if tenantID == "" {
		return memberships[0]
	}
	for _, m := range memberships {
		if m.TenantID == tenantID {
			return m
		}
	}
	return nil
}
