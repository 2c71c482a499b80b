// Package service holds the identity domain services: portal accounts,
// tenant administration, memberships and data-plane authentication.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/repo"
	"github.com/loomhq/loom/pkg/cryptoutil"
	"github.com/loomhq/loom/pkg/logger"
)

// UserService manages portal accounts.
type UserService interface {
	// Signup registers a user and bootstraps their personal tenant with a
	// Default agent and an owner membership.
	Signup(ctx context.Context, email, password, tenantName string) (*entity.User, *entity.Tenant, error)

	// Login verifies credentials and returns the user.
	Login(ctx context.Context, email, password string) (*entity.User, error)

	// Get retrieves a user by ID.
	Get(ctx context.Context, id string) (*entity.User, error)

	// ChangePassword re-hashes the password after verifying the old one.
	ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error
}

type userService struct {
	users       repo.UserRepository
	tenants     repo.TenantRepository
	agents      repo.AgentRepository
	memberships repo.MembershipRepository
}

// NewUserService creates a UserService.
func NewUserService(users repo.UserRepository, tenants repo.TenantRepository,
	agents repo.AgentRepository, memberships repo.MembershipRepository) UserService {
	return &userService{users: users, tenants: tenants, agents: agents, memberships: memberships}
}

func (s *userService) Signup(ctx context.Context, email, password, tenantName string) (*entity.User, *entity.Tenant, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, nil, fmt.Errorf("invalid email %q", email)
	}
	if len(password) < 8 {
		return nil, nil, fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := cryptoutil.HashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &entity.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, err
	}

	if tenantName == "" {
		tenantName = email
	}
	tenant := &entity.Tenant{
		ID:        uuid.NewString(),
		Name:      tenantName,
		Status:    entity.TenantActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.tenants.Create(ctx, tenant); err != nil {
		return nil, nil, err
	}

	membership := &entity.Membership{
		UserID:   user.ID,
		TenantID: tenant.ID,
		Role:     entity.RoleOwner,
		JoinedAt: now,
	}
	if err := s.memberships.Create(ctx, membership); err != nil {
		return nil, nil, err
	}

	agent := &entity.Agent{
		ID:        uuid.NewString(),
		TenantID:  tenant.ID,
		Name:      "Default",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.agents.Create(ctx, agent); err != nil {
		return nil, nil, err
	}

	logger.Info("[Identity] signed up user %s with tenant %s", user.ID, tenant.ID)
	return user, tenant, nil
}

// dummyHash is a well-formed scrypt hash that matches no password. Login
// verifies against it when the email is unknown so missing and
// wrong-password accounts take the same time.
var dummyHash = strings.Repeat("00", 16) + ":" + strings.Repeat("00", 64)

func (s *userService) Login(ctx context.Context, email, password string) (*entity.User, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		_, _ = cryptoutil.VerifyPassword(dummyHash, password)
		return nil, errno.ErrUnauthorized
	}
	ok, err := cryptoutil.VerifyPassword(user.PasswordHash, password)
	if err != nil || !ok {
		return nil, errno.ErrUnauthorized
	}
	return user, nil
}

func (s *userService) Get(ctx context.Context, id string) (*entity.User, error) {
	return s.users.Get(ctx, id)
}

func (s *userService) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	user, err := s.users.Get(ctx, id)
	if err != nil {
		return err
	}
	ok, err := cryptoutil.VerifyPassword(user.PasswordHash, oldPassword)
	if err != nil || !ok {
		return errno.ErrUnauthorized
	}
	hash, err := cryptoutil.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now().UTC()
	return s.users.Update(ctx, user)
}
