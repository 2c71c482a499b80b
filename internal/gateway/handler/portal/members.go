package portal

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loomhq/loom/internal/gateway/service/identity"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	"github.com/loomhq/loom/internal/pkg/core"
	"github.com/loomhq/loom/pkg/errorx"
)

// MemberHandler serves memberships and invites of the session's tenant.
type MemberHandler struct {
	identity *identity.Module
}

// NewMemberHandler creates a MemberHandler.
func NewMemberHandler(mod *identity.Module) *MemberHandler {
	return &MemberHandler{identity: mod}
}

// List returns the tenant's memberships.
func (h *MemberHandler) List(c *gin.Context) {
	s := session(c)
	members, err := h.identity.Memberships.ListMembers(c.Request.Context(), s.TenantID)
	if err != nil {
		writeDomainError(c, err, "list members of %s", s.TenantID)
		return
	}
	core.WriteResponse(c, nil, gin.H{"members": members})
}

type changeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// ChangeRole sets a member's role. Demoting the last owner fails.
// Owner only.
func (h *MemberHandler) ChangeRole(c *gin.Context) {
	s := requireOwner(c)
	if s == nil {
		return
	}
	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrPortalBind, "bind role request"), nil)
		return
	}

	userID := c.Param("userID")
	role := entity.NormalizeRole(req.Role)
	if err := h.identity.Memberships.ChangeRole(c.Request.Context(), s.TenantID, userID, role); err != nil {
		writeDomainError(c, err, "change role of %s", userID)
		return
	}
	core.WriteResponse(c, nil, gin.H{"user_id": userID, "role": role})
}

// Remove deletes a membership. Removing the last owner fails. Owner
// only.
func (h *MemberHandler) Remove(c *gin.Context) {
	s := requireOwner(c)
	if s == nil {
		return
	}

	userID := c.Param("userID")
	if err := h.identity.Memberships.Remove(c.Request.Context(), s.TenantID, userID); err != nil {
		writeDomainError(c, err, "remove member %s", userID)
		return
	}
	core.WriteResponse(c, nil, gin.H{"removed": userID})
}

type createInviteRequest struct {
	MaxUses   *int       `json:"max_uses,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CreateInvite mints an invite token for the tenant. Owner only.
func (h *MemberHandler) CreateInvite(c *gin.Context) {
	s := requireOwner(c)
	if s == nil {
		return
	}
	var req createInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrPortalBind, "bind invite request"), nil)
		return
	}

	var expiresAt time.Time
	if req.ExpiresAt != nil {
		expiresAt = *req.ExpiresAt
	}
	invite, err := h.identity.Memberships.CreateInvite(c.Request.Context(), s.TenantID, s.UserID, req.MaxUses, expiresAt)
	if err != nil {
		writeDomainError(c, err, "create invite for %s", s.TenantID)
		return
	}
	core.WriteCreated(c, invite)
}

// ListInvites returns the tenant's invites.
func (h *MemberHandler) ListInvites(c *gin.Context) {
	s := session(c)
	invites, err := h.identity.Memberships.ListInvites(c.Request.Context(), s.TenantID)
	if err != nil {
		writeDomainError(c, err, "list invites of %s", s.TenantID)
		return
	}
	core.WriteResponse(c, nil, gin.H{"invites": invites})
}

// RevokeInvite permanently invalidates an invite. Owner only.
func (h *MemberHandler) RevokeInvite(c *gin.Context) {
	s := requireOwner(c)
	if s == nil {
		return
	}

	id := c.Param("id")
	if err := h.identity.Memberships.RevokeInvite(c.Request.Context(), s.TenantID, id); err != nil {
		writeDomainError(c, err, "revoke invite %s", id)
		return
	}
	core.WriteResponse(c, nil, gin.H{"revoked": id})
}

type redeemInviteRequest struct {
	Token string `json:"token" binding:"required"`
}

// RedeemInvite joins the calling user to the invite's tenant as a
// member.
func (h *MemberHandler) RedeemInvite(c *gin.Context) {
	s := session(c)
	var req redeemInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrPortalBind, "bind redeem request"), nil)
		return
	}

	membership, err := h.identity.Memberships.RedeemInvite(c.Request.Context(), req.Token, s.UserID)
	if err != nil {
		writeDomainError(c, err, "redeem invite")
		return
	}
	core.WriteResponse(c, nil, membership)
}
