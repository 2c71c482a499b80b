package entity

import (
	"time"
)

// Membership roles.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// NormalizeRole maps unknown roles to member for authorisation purposes.
func NormalizeRole(role string) string {
	if role == RoleOwner {
		return RoleOwner
	}
	return RoleMember
}

// User is a portal identity. Emails are stored lowercased and are unique.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Membership links a user to a tenant with a role. The (user, tenant)
// pair is unique; each active tenant keeps at least one owner.
type Membership struct {
	UserID   string    `json:"user_id"`
	TenantID string    `json:"tenant_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Invite allows joining a tenant via an opaque token.
type Invite struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	Token     string     `json:"token"`
	MaxUses   *int       `json:"max_uses,omitempty"`
	UseCount  int        `json:"use_count"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
}

// Valid reports whether the invite can still be redeemed at now.
func (i *Invite) Valid(now time.Time) bool {
	if i.RevokedAt != nil {
		return false
	}
	if !now.Before(i.ExpiresAt) {
		return false
	}
	if i.MaxUses != nil && i.UseCount >= *i.MaxUses {
		return false
	}
	return true
}
