// Package portal holds the management-plane handlers: accounts,
// tenants, agents, memberships, API keys, conversations and traces.
// All routes except signup, login and invite redemption require a
// portal session token; mutations require the owner role.
package portal

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/loomhq/loom/internal/gateway/handler/middleware"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/service"
	"github.com/loomhq/loom/internal/pkg/core"
	"github.com/loomhq/loom/pkg/errorx"
)

// session returns the authenticated portal session. PortalAuth
// guarantees it is present on every route this package serves.
func session(c *gin.Context) *service.Session {
	return middleware.Session(c)
}

// requireOwner aborts with 403 unless the session carries the owner
// role. Returns the session when allowed, nil otherwise.
func requireOwner(c *gin.Context) *service.Session {
	s := session(c)
	if s == nil || s.Role != entity.RoleOwner {
		core.WriteResponse(c, errorx.WrapC(fmt.Errorf("role %q", roleOf(s)), ErrForbidden, "owner role required"), nil)
		return nil
	}
	return s
}

func roleOf(s *service.Session) string {
	if s == nil {
		return ""
	}
	return s.Role
}
