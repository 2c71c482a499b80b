package repo

import (
	"context"

	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
)

// UserRepository defines the persistence interface for User entities.
type UserRepository interface {
	// Create stores a new user.
	Create(ctx context.Context, user *entity.User) error
	// Get retrieves a user by ID.
	Get(ctx context.Context, id string) (*entity.User, error)
	// GetByEmail retrieves a user by lowercased email.
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	// Update updates an existing user.
	Update(ctx context.Context, user *entity.User) error
}

// MembershipRepository defines the persistence interface for memberships.
type MembershipRepository interface {
	// Create stores a new membership.
	Create(ctx context.Context, m *entity.Membership) error
	// Get retrieves the membership for a (user, tenant) pair.
	Get(ctx context.Context, userID, tenantID string) (*entity.Membership, error)
	// Update updates a membership's role.
	Update(ctx context.Context, m *entity.Membership) error
	// Delete removes a membership.
	Delete(ctx context.Context, userID, tenantID string) error
	// ListByTenant returns all memberships of a tenant.
	ListByTenant(ctx context.Context, tenantID string) ([]*entity.Membership, error)
	// ListByUser returns all memberships of a user.
	ListByUser(ctx context.Context, userID string) ([]*entity.Membership, error)
	// CountOwners returns the number of owner memberships of a tenant.
	CountOwners(ctx context.Context, tenantID string) (int, error)
}

// InviteRepository defines the persistence interface for invites.
type InviteRepository interface {
	// Create stores a new invite.
	Create(ctx context.Context, invite *entity.Invite) error
	// GetByToken retrieves an invite by its opaque token.
	GetByToken(ctx context.Context, token string) (*entity.Invite, error)
	// Update updates an invite (use count, revocation).
	Update(ctx context.Context, invite *entity.Invite) error
	// ListByTenant returns all invites of a tenant.
	ListByTenant(ctx context.Context, tenantID string) ([]*entity.Invite, error)
}
