// Package inmemory implements the identity repositories with maps,
// used for tests and single-node development runs.
package inmemory

import (
	"context"
	"sync"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
)

// TenantStore implements repo.TenantRepository in memory.
type TenantStore struct {
	mu      sync.RWMutex
	tenants map[string]entity.Tenant
}

// NewTenantStore creates an empty TenantStore.
func NewTenantStore() *TenantStore {
	return &TenantStore{tenants: make(map[string]entity.Tenant)}
}

func (s *TenantStore) Create(_ context.Context, tenant *entity.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[tenant.ID] = *tenant
	return nil
}

func (s *TenantStore) Get(_ context.Context, id string) (*entity.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, errno.ErrTenantNotFound
	}
	return &t, nil
}

func (s *TenantStore) Update(_ context.Context, tenant *entity.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[tenant.ID]; !ok {
		return errno.ErrTenantNotFound
	}
	s.tenants[tenant.ID] = *tenant
	return nil
}

func (s *TenantStore) ListChildren(_ context.Context, parentID string) ([]*entity.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entity.Tenant
	for _, t := range s.tenants {
		if t.ParentID != nil && *t.ParentID == parentID {
			tt := t
			out = append(out, &tt)
		}
	}
	return out, nil
}
