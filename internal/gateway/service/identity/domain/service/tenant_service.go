package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/repo"
	"github.com/loomhq/loom/pkg/logger"
)

// maxChainDepth bounds parent-chain walks; deeper chains are treated as
// cycles.
const maxChainDepth = 32

// CacheEvictor invalidates per-tenant cached state after a configuration
// change. The provider client cache implements it.
type CacheEvictor interface {
	Evict(tenantID string)
}

// TenantService manages tenants and their configuration overrides.
type TenantService interface {
	// Get retrieves a tenant by ID.
	Get(ctx context.Context, id string) (*entity.Tenant, error)

	// CreateChild creates a sub-tenant under parentID. The creating user
	// becomes its owner.
	CreateChild(ctx context.Context, parentID, name, ownerUserID string) (*entity.Tenant, error)

	// Update applies a configuration change and evicts cached provider
	// clients for the tenant.
	Update(ctx context.Context, tenant *entity.Tenant) error

	// SetStatus suspends or reactivates a tenant.
	SetStatus(ctx context.Context, id string, status entity.TenantStatus) error

	// ListChildren returns the direct children of a tenant.
	ListChildren(ctx context.Context, id string) ([]*entity.Tenant, error)

	// Chain returns the tenant and its ancestors, nearest first, root last.
	Chain(ctx context.Context, id string) ([]*entity.Tenant, error)
}

type tenantService struct {
	tenants     repo.TenantRepository
	memberships repo.MembershipRepository
	evictor     CacheEvictor
}

// NewTenantService creates a TenantService. evictor may be nil.
func NewTenantService(tenants repo.TenantRepository, memberships repo.MembershipRepository, evictor CacheEvictor) TenantService {
	return &tenantService{tenants: tenants, memberships: memberships, evictor: evictor}
}

func (s *tenantService) Get(ctx context.Context, id string) (*entity.Tenant, error) {
	return s.tenants.Get(ctx, id)
}

func (s *tenantService) CreateChild(ctx context.Context, parentID, name, ownerUserID string) (*entity.Tenant, error) {
	if name == "" {
		return nil, fmt.Errorf("tenant name is required")
	}
	parent, err := s.tenants.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	child := &entity.Tenant{
		ID:        uuid.NewString(),
		Name:      name,
		ParentID:  &parent.ID,
		Status:    entity.TenantActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.tenants.Create(ctx, child); err != nil {
		return nil, err
	}
	if err := s.memberships.Create(ctx, &entity.Membership{
		UserID:   ownerUserID,
		TenantID: child.ID,
		Role:     entity.RoleOwner,
		JoinedAt: now,
	}); err != nil {
		return nil, err
	}

	logger.Info("[Identity] created tenant %s under %s", child.ID, parent.ID)
	return child, nil
}

func (s *tenantService) Update(ctx context.Context, tenant *entity.Tenant) error {
	current, err := s.tenants.Get(ctx, tenant.ID)
	if err != nil {
		return err
	}
	if !sameParent(current.ParentID, tenant.ParentID) {
		if err := s.checkNoCycle(ctx, tenant.ID, tenant.ParentID); err != nil {
			return err
		}
	}

	tenant.UpdatedAt = time.Now().UTC()
	if err := s.tenants.Update(ctx, tenant); err != nil {
		return err
	}
	if s.evictor != nil {
		s.evictor.Evict(tenant.ID)
	}
	return nil
}

func (s *tenantService) SetStatus(ctx context.Context, id string, status entity.TenantStatus) error {
	tenant, err := s.tenants.Get(ctx, id)
	if err != nil {
		return err
	}
	tenant.Status = status
	tenant.UpdatedAt = time.Now().UTC()
	if err := s.tenants.Update(ctx, tenant); err != nil {
		return err
	}
	if s.evictor != nil {
		s.evictor.Evict(id)
	}
	logger.Info("[Identity] tenant %s status set to %s", id, status)
	return nil
}

func (s *tenantService) ListChildren(ctx context.Context, id string) ([]*entity.Tenant, error) {
	return s.tenants.ListChildren(ctx, id)
}

func (s *tenantService) Chain(ctx context.Context, id string) ([]*entity.Tenant, error) {
	var chain []*entity.Tenant
	next := &id
	for depth := 0; next != nil; depth++ {
		if depth >= maxChainDepth {
			return nil, errno.ErrTenantCycle
		}
		t, err := s.tenants.Get(ctx, *next)
		if err != nil {
			return nil, err
		}
		chain = append(chain, t)
		next = t.ParentID
	}
	return chain, nil
}

// checkNoCycle rejects a re-parenting that would make the tenant its own
// ancestor.
func (s *tenantService) checkNoCycle(ctx context.Context, id string, newParent *string) error {
	next := newParent
	for depth := 0; next != nil; depth++ {
		if depth >= maxChainDepth {
			return errno.ErrTenantCycle
		}
		if *next == id {
			return errno.ErrTenantCycle
		}
		t, err := s.tenants.Get(ctx, *next)
		if err != nil {
			return err
		}
		next = t.ParentID
	}
	return nil
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
