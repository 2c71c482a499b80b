package inmemory

import (
	"context"
	"strings"
	"sync"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
)

// UserStore implements repo.UserRepository in memory.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]entity.User
}

// NewUserStore creates an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]entity.User)}
}

func (s *UserStore) Create(_ context.Context, user *entity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return errno.ErrDuplicateEmail
		}
	}
	s.users[user.ID] = *user
	return nil
}

func (s *UserStore) Get(_ context.Context, id string) (*entity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errno.ErrUserNotFound
	}
	return &u, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(email)
	for _, u := range s.users {
		if u.Email == email {
			uu := u
			return &uu, nil
		}
	}
	return nil, errno.ErrUserNotFound
}

func (s *UserStore) Update(_ context.Context, user *entity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return errno.ErrUserNotFound
	}
	s.users[user.ID] = *user
	return nil
}

// MembershipStore implements repo.MembershipRepository in memory.
type MembershipStore struct {
	mu      sync.RWMutex
	members map[string]entity.Membership // key: userID + "/" + tenantID
}

// NewMembershipStore creates an empty MembershipStore.
func NewMembershipStore() *MembershipStore {
	return &MembershipStore{members: make(map[string]entity.Membership)}
}

func membershipKey(userID, tenantID string) string { return userID + "/" + tenantID }

func (s *MembershipStore) Create(_ context.Context, m *entity.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := membershipKey(m.UserID, m.TenantID)
	if _, ok := s.members[key]; ok {
		return errno.ErrAlreadyMember
	}
	s.members[key] = *m
	return nil
}

func (s *MembershipStore) Get(_ context.Context, userID, tenantID string) (*entity.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[membershipKey(userID, tenantID)]
	if !ok {
		return nil, errno.ErrMembershipNotFound
	}
	return &m, nil
}

func (s *MembershipStore) Update(_ context.Context, m *entity.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := membershipKey(m.UserID, m.TenantID)
	if _, ok := s.members[key]; !ok {
		return errno.ErrMembershipNotFound
	}
	s.members[key] = *m
	return nil
}

func (s *MembershipStore) Delete(_ context.Context, userID, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, membershipKey(userID, tenantID))
	return nil
}

func (s *MembershipStore) ListByTenant(_ context.Context, tenantID string) ([]*entity.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entity.Membership
	for _, m := range s.members {
		if m.TenantID == tenantID {
			mm := m
			out = append(out, &mm)
		}
	}
	return out, nil
}

func (s *MembershipStore) ListByUser(_ context.Context, userID string) ([]*entity.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entity.Membership
	for _, m := range s.members {
		if m.UserID == userID {
			mm := m
			out = append(out, &mm)
		}
	}
	return out, nil
}

func (s *MembershipStore) CountOwners(_ context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.members {
		if m.TenantID == tenantID && m.Role == entity.RoleOwner {
			n++
		}
	}
	return n, nil
}

// InviteStore implements repo.InviteRepository in memory.
type InviteStore struct {
	mu      sync.RWMutex
	invites map[string]entity.Invite
}

// NewInviteStore creates an empty InviteStore.
func NewInviteStore() *InviteStore {
	return &InviteStore{invites: make(map[string]entity.Invite)}
}

func (s *InviteStore) Create(_ context.Context, invite *entity.Invite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invites[invite.ID] = *invite
	return nil
}

func (s *InviteStore) GetByToken(_ context.Context, token string) (*entity.Invite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, i := range s.invites {
		if i.Token == token {
			ii := i
			return &ii, nil
		}
	}
	return nil, errno.ErrInviteNotFound
}

func (s *InviteStore) Update(_ context.Context, invite *entity.Invite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invites[invite.ID]; !ok {
		return errno.ErrInviteNotFound
	}
	s.invites[invite.ID] = *invite
	return nil
}

func (s *InviteStore) ListByTenant(_ context.Context, tenantID string) ([]*entity.Invite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entity.Invite
	for _, i := range s.invites {
		if i.TenantID == tenantID {
			ii := i
			out = append(out, &ii)
		}
	}
	return out, nil
}
