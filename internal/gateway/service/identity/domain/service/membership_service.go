package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/repo"
	"github.com/loomhq/loom/pkg/cryptoutil"
	"github.com/loomhq/loom/pkg/logger"
)

// DefaultInviteTTL applies when an invite is created without an explicit
// expiry.
const DefaultInviteTTL = 7 * 24 * time.Hour

// MembershipService manages tenant memberships and invites.
type MembershipService interface {
	// ListMembers returns a tenant's memberships.
	ListMembers(ctx context.Context, tenantID string) ([]*entity.Membership, error)

	// ListTenantsOf returns a user's memberships.
	ListTenantsOf(ctx context.Context, userID string) ([]*entity.Membership, error)

	// ChangeRole sets a member's role. Demoting the last owner fails.
	ChangeRole(ctx context.Context, tenantID, userID, role string) error

	// Remove deletes a membership. Removing the last owner fails.
	Remove(ctx context.Context, tenantID, userID string) error

	// CreateInvite mints an invite token for a tenant. A nil maxUses
	// means unlimited; a zero expiresAt defaults to one week out.
	CreateInvite(ctx context.Context, tenantID, createdBy string, maxUses *int, expiresAt time.Time) (*entity.Invite, error)

	// RedeemInvite joins the user to the invite's tenant as a member.
	RedeemInvite(ctx context.Context, token, userID string) (*entity.Membership, error)

	// RevokeInvite permanently invalidates an invite.
	RevokeInvite(ctx context.Context, tenantID, inviteID string) error

	// ListInvites returns a tenant's invites.
	ListInvites(ctx context.Context, tenantID string) ([]*entity.Invite, error)
}

type membershipService struct {
	memberships repo.MembershipRepository
	invites     repo.InviteRepository
}

// NewMembershipService creates a MembershipService.
func NewMembershipService(memberships repo.MembershipRepository, invites repo.InviteRepository) MembershipService {
	return &membershipService{memberships: memberships, invites: invites}
}

func (s *membershipService) ListMembers(ctx context.Context, tenantID string) ([]*entity.Membership, error) {
	return s.memberships.ListByTenant(ctx, tenantID)
}

func (s *membershipService) ListTenantsOf(ctx context.Context, userID string) ([]*entity.Membership, error) {
	return s.memberships.ListByUser(ctx, userID)
}

func (s *membershipService) ChangeRole(ctx context.Context, tenantID, userID, role string) error {
	m, err := s.memberships.Get(ctx, userID, tenantID)
	if err != nil {
		return err
	}
	role = entity.NormalizeRole(role)
	if m.Role == role {
		return nil
	}
	if m.Role == entity.RoleOwner {
		if err := s.requireAnotherOwner(ctx, tenantID); err != nil {
			return err
		}
	}
	m.Role = role
	return s.memberships.Update(ctx, m)
}

func (s *membershipService) Remove(ctx context.Context, tenantID, userID string) error {
	m, err := s.memberships.Get(ctx, userID, tenantID)
	if err != nil {
		return err
	}
	if m.Role == entity.RoleOwner {
		if err := s.requireAnotherOwner(ctx, tenantID); err != nil {
			return err
		}
	}
	return s.memberships.Delete(ctx, userID, tenantID)
}

// requireAnotherOwner fails with ErrLastOwner unless the tenant has at
// least two owners.
func (s *membershipService) requireAnotherOwner(ctx context.Context, tenantID string) error {
	n, err := s.memberships.CountOwners(ctx, tenantID)
	if err != nil {
		return err
	}
	if n <= 1 {
		return errno.ErrLastOwner
	}
	return nil
}

func (s *membershipService) CreateInvite(ctx context.Context, tenantID, createdBy string, maxUses *int, expiresAt time.Time) (*entity.Invite, error) {
	token, err := cryptoutil.NewInviteToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if expiresAt.IsZero() {
		expiresAt = now.Add(DefaultInviteTTL)
	}
	invite := &entity.Invite{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Token:     token,
		MaxUses:   maxUses,
		ExpiresAt: expiresAt,
		CreatedBy: createdBy,
		CreatedAt: now,
	}
	if err := s.invites.Create(ctx, invite); err != nil {
		return nil, err
	}
	logger.Info("[Identity] created invite %s for tenant %s", invite.ID, tenantID)
	return invite, nil
}

func (s *membershipService) RedeemInvite(ctx context.Context, token, userID string) (*entity.Membership, error) {
	invite, err := s.invites.GetByToken(ctx, token)
	if err != nil {
		// An unknown token and a revoked one are indistinguishable to
		// the caller.
		return nil, errno.ErrInviteInvalid
	}
	if !invite.Valid(time.Now().UTC()) {
		return nil, errno.ErrInviteInvalid
	}

	m := &entity.Membership{
		UserID:   userID,
		TenantID: invite.TenantID,
		Role:     entity.RoleMember,
		JoinedAt: time.Now().UTC(),
	}
	if err := s.memberships.Create(ctx, m); err != nil {
		return nil, err
	}

	invite.UseCount++
	if err := s.invites.Update(ctx, invite); err != nil {
		logger.Warn("[Identity] invite %s use count not recorded: %v", invite.ID, err)
	}
	return m, nil
}

func (s *membershipService) RevokeInvite(ctx context.Context, tenantID, inviteID string) error {
	invites, err := s.invites.ListByTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, invite := range invites {
		if invite.ID != inviteID {
			continue
		}
		if invite.RevokedAt != nil {
			return nil
		}
		now := time.Now().UTC()
		invite.RevokedAt = &now
		return s.invites.Update(ctx, invite)
	}
	return errno.ErrInviteNotFound
}

func (s *membershipService) ListInvites(ctx context.Context, tenantID string) ([]*entity.Invite, error) {
	return s.invites.ListByTenant(ctx, tenantID)
}
