package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/service"
)

type recordingEvictor struct {
	evicted []string
}

func (e *recordingEvictor) Evict(tenantID string) {
	e.evicted = append(e.evicted, tenantID)
}

func newTestModule(t *testing.T, evictor service.CacheEvictor) *Module {
	t.Helper()

	cfg := &Config{PortalJWTSecret: "test-secret", TokenExpiry: time.Hour}
	m, err := cfg.Complete().New(context.Background(), Dependencies{Evictor: evictor})
	require.NoError(t, err)

	return m
}

func TestNewRequiresJWTSecret(t *testing.T) {
	cfg := &Config{}
	_, err := cfg.Complete().New(context.Background(), Dependencies{})
	require.Error(t, err)
}

func TestSignupBootstrapsTenant(t *testing.T) {
	m := newTestModule(t, nil)
	ctx := context.Background()

	user, tenant, err := m.Users.Signup(ctx, "Owner@Example.com ", "password123", "Acme")
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", user.Email)
	assert.Equal(t, "Acme", tenant.Name)
	assert.Equal(t, entity.TenantActive, tenant.Status)
	assert.Nil(t, tenant.ParentID)

	// The creating user becomes the tenant's owner.
	members, err := m.Memberships.ListMembers(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, user.ID, members[0].UserID)
	assert.Equal(t, entity.RoleOwner, members[0].Role)

	// A Default agent is created alongside.
	agents, err := m.Agents.ListByTenant(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "Default", agents[0].Name)

	_, _, err = m.Users.Signup(ctx, "owner@example.com", "otherpass99", "Other")
	assert.ErrorIs(t, err, errno.ErrDuplicateEmail)

	_, _, err = m.Users.Signup(ctx, "not-an-email", "password123", "X")
	assert.Error(t, err)

	_, _, err = m.Users.Signup(ctx, "short@example.com", "short", "X")
	assert.Error(t, err)
}

func TestLoginVerifiesCredentials(t *testing.T) {
	m := newTestModule(t, nil)
	ctx := context.Background()

	user, _, err := m.Users.Signup(ctx, "login@example.com", "password123", "")
	require.NoError(t, err)

	got, err := m.Users.Login(ctx, "login@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	// Email comparison is case and whitespace insensitive.
	_, err = m.Users.Login(ctx, "  LOGIN@example.com", "password123")
	require.NoError(t, err)

	_, err = m.Users.Login(ctx, "login@example.com", "wrongpass1")
	assert.ErrorIs(t, err, errno.ErrUnauthorized)

	// Unknown accounts are indistinguishable from wrong passwords.
	_, err = m.Users.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, errno.ErrUnauthorized)
}

func TestChangePassword(t *testing.T) {
	m := newTestModule(t, nil)
	ctx := context.Background()

	user, _, err := m.Users.Signup(ctx, "rotate@example.com", "password123", "")
	require.NoError(t, err)

	err = m.Users.ChangePassword(ctx, user.ID, "wrongpass1", "newpassword1")
	assert.ErrorIs(t, err, errno.ErrUnauthorized)

	err = m.Users.ChangePassword(ctx, user.ID, "password123", "short")
	assert.Error(t, err)

	require.NoError(t, m.Users.ChangePassword(ctx, user.ID, "password123", "newpassword1"))

	_, err = m.Users.Login(ctx, "rotate@example.com", "password123")
	assert.ErrorIs(t, err, errno.ErrUnauthorized)
	_, err = m.Users.Login(ctx, "rotate@example.com", "newpassword1")
	assert.NoError(t, err)
}

func TestInviteLifecycle(t *testing.T) {
	m := newTestModule(t, nil)
	ctx := context.Background()

	owner, tenant, err := m.Users.Signup(ctx, "host@example.com", "password123", "Host")
	require.NoError(t, err)
	guest, _, err := m.Users.Signup(ctx, "guest@example.com", "password123", "Guest")
	require.NoError(t, err)

	one := 1
	invite, err := m.Memberships.CreateInvite(ctx, tenant.ID, owner.ID, &one, time.Time{})
	require.NoError(t, err)
	assert.NotEmpty(t, invite.Token)
	// A zero expiry defaults to one week out.
	assert.WithinDuration(t, time.Now().Add(service.DefaultInviteTTL), invite.ExpiresAt, time.Minute)

	membership, err := m.Memberships.RedeemInvite(ctx, invite.Token, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, membership.TenantID)
	assert.Equal(t, entity.RoleMember, membership.Role)

	// Single-use invite is exhausted after one redemption.
	other, _, err := m.Users.Signup(ctx, "late@example.com", "password123", "Late")
	require.NoError(t, err)
	_, err = m.Memberships.RedeemInvite(ctx, invite.Token, other.ID)
	assert.ErrorIs(t, err, errno.ErrInviteInvalid)

	_, err = m.Memberships.RedeemInvite(ctx, "no-such-token", other.ID)
	assert.ErrorIs(t, err, errno.ErrInviteInvalid)

	// Revoked invites stop working immediately.
	second, err := m.Memberships.CreateInvite(ctx, tenant.ID, owner.ID, nil, time.Time{})
	require.NoError(t, err)
	require.NoError(t, m.Memberships.RevokeInvite(ctx, tenant.ID, second.ID))
	_, err = m.Memberships.RedeemInvite(ctx, second.Token, other.ID)
	assert.ErrorIs(t, err, errno.ErrInviteInvalid)

	invites, err := m.Memberships.ListInvites(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Len(t, invites, 2)

	// Revoking an invite of another tenant is not found.
	err = m.Memberships.RevokeInvite(ctx, "other-tenant", second.ID)
	assert.ErrorIs(t, err, errno.ErrInviteNotFound)
}

func TestExpiredInviteRejected(t *testing.T) {
	m := newTestModule(t, nil)
	ctx := context.Background()

	owner, tenant, err := m.Users.Signup(ctx, "host@example.com", "password123", "Host")
	require.NoError(t, err)
	guest, _, err := m.Users.Signup(ctx, "guest@example.com", "password123", "Guest")
	require.NoError(t, err)

	invite, err := m.Memberships.CreateInvite(ctx, tenant.ID, owner.ID, nil, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	_, err = m.Memberships.RedeemInvite(ctx, invite.Token, guest.ID)
	assert.ErrorIs(t, err, errno.ErrInviteInvalid)
}

func TestLastOwnerGuard(t *testing.T) {
	m := newTestModule(t, nil)
	ctx := context.Background()

	owner, tenant, err := m.Users.Signup(ctx, "solo@example.com", "password123", "Solo")
	require.NoError(t, err)

	err = m.Memberships.ChangeRole(ctx, tenant.ID, owner.ID, entity.RoleMember)
	assert.ErrorIs(t, err, errno.ErrLastOwner)
	err = m.Memberships.Remove(ctx, tenant.ID, owner.ID)
	assert.ErrorIs(t, err, errno.ErrLastOwner)

	// With a second owner in place the first may step down.
	second, _, err := m.Users.Signup(ctx, "second@example.com", "password123", "Second")
	require.NoError(t, err)
	invite, err := m.Memberships.CreateInvite(ctx, tenant.ID, owner.ID, nil, time.Time{})
	require.NoError(t, err)
	_, err = m.Memberships.RedeemInvite(ctx, invite.Token, second.ID)
	require.NoError(t, err)
	require.NoError(t, m.Memberships.ChangeRole(ctx, tenant.ID, second.ID, entity.RoleOwner))

	require.NoError(t, m.Memberships.ChangeRole(ctx, tenant.ID, owner.ID, entity.RoleMember))
	require.NoError(t, m.Memberships.Remove(ctx, tenant.ID, owner.ID))
}

func TestAPIKeyAuthentication(t *testing.T) {
	m := newTestModule(t, nil)
	ctx := context.Background()

	_, tenant, err := m.Users.Signup(ctx, "keys@example.com", "password123", "Keys")
	require.NoError(t, err)
	agents, err := m.Agents.ListByTenant(ctx, tenant.ID)
	require.NoError(t, err)
	agent := agents[0]

	key, raw, err := m.APIKeys.Create(ctx, agent, "ci")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "loom_sk_"))
	assert.Equal(t, raw[:12], key.Prefix)
	assert.NotEmpty(t, key.KeyHash)
	assert.NotEqual(t, raw, key.KeyHash)

	principal, err := m.Auth.AuthenticateKey(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, agent.ID, principal.Agent.ID)
	assert.Equal(t, tenant.ID, principal.Tenant.ID)
	assert.Equal(t, key.ID, principal.Key.ID)

	_, err = m.Auth.AuthenticateKey(ctx, "loom_sk_bogus")
	assert.ErrorIs(t, err, errno.ErrUnauthorized)
	_, err = m.Auth.AuthenticateKey(ctx, "")
	assert.ErrorIs(t, err, errno.ErrUnauthorized)

	// Revoked keys authenticate like unknown ones.
	require.NoError(t, m.APIKeys.Revoke(ctx, key.ID))
	_, err = m.Auth.AuthenticateKey(ctx, raw)
	assert.ErrorIs(t, err, errno.ErrUnauthorized)

	// Revoking twice is a no-op.
	require.NoError(t, m.APIKeys.Revoke(ctx, key.ID))
}

func TestSuspendedTenantBlocksKeys(t *testing.T) {
	evictor := &recordingEvictor{}
	m := newTestModule(t, evictor)
	ctx := context.Background()

	_, tenant, err := m.Users.Signup(ctx, "suspend@example.com", "password123", "Suspend")
	require.NoError(t, err)
	agents, err := m.Agents.ListByTenant(ctx, tenant.ID)
	require.NoError(t, err)

	_, raw, err := m.APIKeys.Create(ctx, agents[0], "")
	require.NoError(t, err)

	require.NoError(t, m.Tenants.SetStatus(ctx, tenant.ID, entity.TenantSuspended))
	assert.Contains(t, evictor.evicted, tenant.ID)

	_, err = m.Auth.AuthenticateKey(ctx, raw)
	assert.ErrorIs(t, err, errno.ErrTenantSuspended)

	require.NoError(t, m.Tenants.SetStatus(ctx, tenant.ID, entity.TenantActive))
	_, err = m.Auth.AuthenticateKey(ctx, raw)
	assert.NoError(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	m := newTestModule(t, nil)

	token, err := m.Tokens.Issue(service.Session{UserID: "u1", TenantID: "t1", Role: entity.RoleOwner})
	require.NoError(t, err)

	session, err := m.Tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", session.UserID)
	assert.Equal(t, "t1", session.TenantID)
	assert.Equal(t, entity.RoleOwner, session.Role)

	_, err = m.Tokens.Verify(token + "tampered")
	assert.ErrorIs(t, err, errno.ErrUnauthorized)

	// Tokens signed with another secret are rejected.
	other := service.NewTokenService("other-secret", time.Hour)
	foreign, err := other.Issue(service.Session{UserID: "u1", TenantID: "t1"})
	require.NoError(t, err)
	_, err = m.Tokens.Verify(foreign)
	assert.ErrorIs(t, err, errno.ErrUnauthorized)

	// Unknown roles normalize to member.
	weird, err := m.Tokens.Issue(service.Session{UserID: "u2", TenantID: "t1", Role: "superadmin"})
	require.NoError(t, err)
	session, err = m.Tokens.Verify(weird)
	require.NoError(t, err)
	assert.Equal(t, entity.RoleMember, session.Role)
}

func TestExpiredTokenRejected(t *testing.T) {
	tokens := service.NewTokenService("test-secret", time.Nanosecond)
	token, err := tokens.Issue(service.Session{UserID: "u1", TenantID: "t1"})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = tokens.Verify(token)
	assert.ErrorIs(t, err, errno.ErrUnauthorized)
}

func TestTenantChainAndCycleGuard(t *testing.T) {
	evictor := &recordingEvictor{}
	m := newTestModule(t, evictor)
	ctx := context.Background()

	owner, root, err := m.Users.Signup(ctx, "chain@example.com", "password123", "Root")
	require.NoError(t, err)

	child, err := m.Tenants.CreateChild(ctx, root.ID, "Child", owner.ID)
	require.NoError(t, err)
	grandchild, err := m.Tenants.CreateChild(ctx, child.ID, "Grandchild", owner.ID)
	require.NoError(t, err)

	// Nearest first, root last.
	chain, err := m.Tenants.Chain(ctx, grandchild.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, grandchild.ID, chain[0].ID)
	assert.Equal(t, child.ID, chain[1].ID)
	assert.Equal(t, root.ID, chain[2].ID)

	children, err := m.Tenants.ListChildren(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)

	// Re-parenting the root under its own grandchild would form a cycle.
	root.ParentID = &grandchild.ID
	err = m.Tenants.Update(ctx, root)
	assert.ErrorIs(t, err, errno.ErrTenantCycle)

	// Config updates evict cached provider clients.
	prompt := "be nice"
	child.SystemPrompt = &prompt
	require.NoError(t, m.Tenants.Update(ctx, child))
	assert.Contains(t, evictor.evicted, child.ID)
}
