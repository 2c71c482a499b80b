// Package middleware holds the gateway's authentication middlewares:
// API-key auth for the data plane, session-token auth for the portal.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/service"
)

// Context keys set by the auth middlewares.
const (
	// PrincipalKey holds the *service.Principal of a data-plane request.
	PrincipalKey = "loom.principal"
	// SessionKey holds the *service.Session of a portal request.
	SessionKey = "loom.session"
)

// APIKeyAuth authenticates data-plane requests by raw API key. Unknown
// and revoked keys are indistinguishable to the caller, and the error
// type mirrors what OpenAI returns for a bad key.
func APIKeyAuth(auth service.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			abortAuth(c, http.StatusUnauthorized, "missing or malformed Authorization header", "invalid_request_error")
			return
		}

		principal, err := auth.AuthenticateKey(c.Request.Context(), raw)
		if err != nil {
			if errors.Is(err, errno.ErrTenantSuspended) {
				abortAuth(c, http.StatusForbidden, "tenant is suspended", "permission_error")
				return
			}
			abortAuth(c, http.StatusUnauthorized, "invalid API key", "invalid_request_error")
			return
		}

		c.Set(PrincipalKey, principal)
		c.Next()
	}
}

// Principal returns the data-plane principal set by APIKeyAuth.
func Principal(c *gin.Context) *service.Principal {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return nil
	}
	return v.(*service.Principal)
}

// PortalAuth authenticates portal requests by session token.
func PortalAuth(tokens service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			abortAuth(c, http.StatusUnauthorized, "missing or malformed Authorization header", "authentication_error")
			return
		}

		session, err := tokens.Verify(raw)
		if err != nil {
			abortAuth(c, http.StatusUnauthorized, "invalid or expired token", "authentication_error")
			return
		}

		c.Set(SessionKey, session)
		c.Next()
	}
}

// Session returns the portal session set by PortalAuth.
func Session(c *gin.Context) *service.Session {
	v, ok := c.Get(SessionKey)
	if !ok {
		return nil
	}
	return v.(*service.Session)
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) || len(header) == len(prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

func abortAuth(c *gin.Context, status int, message, errType string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{"message": message, "type": errType},
	})
}
