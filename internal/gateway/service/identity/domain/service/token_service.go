package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
)

// Session identifies a portal user acting within one tenant.
type Session struct {
	UserID   string
	TenantID string
	Role     string
}

// portalClaims is the JWT claim set of a portal session token.
type portalClaims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// TokenService issues and verifies the portal's HS256 session tokens.
type TokenService interface {
	// Issue signs a token for a user acting within a tenant.
	Issue(session Session) (string, error)
	// Verify parses and validates a token. Unknown roles come back as
	// member.
	Verify(token string) (*Session, error)
}

type tokenService struct {
	secret []byte
	expiry time.Duration
	issuer string
}

// NewTokenService creates a TokenService with the given signing secret
// and token lifetime.
func NewTokenService(secret string, expiry time.Duration) TokenService {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &tokenService{secret: []byte(secret), expiry: expiry, issuer: "loom"}
}

func (s *tokenService) Issue(session Session) (string, error) {
	now := time.Now().UTC()
	claims := portalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		TenantID: session.TenantID,
		Role:     session.Role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *tokenService) Verify(raw string) (*Session, error) {
	token, err := jwt.ParseWithClaims(raw, &portalClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, errno.ErrUnauthorized
	}
	claims, ok := token.Claims.(*portalClaims)
	if !ok || claims.Subject == "" {
		return nil, errno.ErrUnauthorized
	}
	return &Session{
		UserID:   claims.Subject,
		TenantID: claims.TenantID,
		Role:     entity.NormalizeRole(claims.Role),
	}, nil
}
