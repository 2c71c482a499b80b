package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
)

// UserStore implements repo.UserRepository on PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a UserStore on the shared pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userColumns = `id, email, password_hash, created_at, updated_at`

func (s *UserStore) Create(ctx context.Context, u *entity.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "users_email_key") {
			return errno.ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) Get(ctx context.Context, id string) (*entity.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
	return scanUser(row)
}

func (s *UserStore) Update(ctx context.Context, u *entity.User) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET email = $2, password_hash = $3, updated_at = $4 WHERE id = $1`,
		u.ID, u.Email, u.PasswordHash, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errno.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*entity.User, error) {
	var u entity.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errno.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// MembershipStore implements repo.MembershipRepository on PostgreSQL.
type MembershipStore struct {
	pool *pgxpool.Pool
}

// NewMembershipStore creates a MembershipStore on the shared pool.
func NewMembershipStore(pool *pgxpool.Pool) *MembershipStore {
	return &MembershipStore{pool: pool}
}

func (s *MembershipStore) Create(ctx context.Context, m *entity.Membership) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenant_memberships (user_id, tenant_id, role, joined_at)
		VALUES ($1, $2, $3, $4)`,
		m.UserID, m.TenantID, m.Role, m.JoinedAt)
	if err != nil {
		if strings.Contains(err.Error(), "tenant_memberships_pkey") {
			return errno.ErrAlreadyMember
		}
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

func (s *MembershipStore) Get(ctx context.Context, userID, tenantID string) (*entity.Membership, error) {
	var m entity.Membership
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, tenant_id, role, joined_at FROM tenant_memberships
		WHERE user_id = $1 AND tenant_id = $2`, userID, tenantID).
		Scan(&m.UserID, &m.TenantID, &m.Role, &m.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errno.ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan membership: %w", err)
	}
	return &m, nil
}

func (s *MembershipStore) Update(ctx context.Context, m *entity.Membership) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tenant_memberships SET role = $3 WHERE user_id = $1 AND tenant_id = $2`,
		m.UserID, m.TenantID, m.Role)
	if err != nil {
		return fmt.Errorf("update membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errno.ErrMembershipNotFound
	}
	return nil
}

func (s *MembershipStore) Delete(ctx context.Context, userID, tenantID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM tenant_memberships WHERE user_id = $1 AND tenant_id = $2`, userID, tenantID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return nil
}

func (s *MembershipStore) ListByTenant(ctx context.Context, tenantID string) ([]*entity.Membership, error) {
	return s.list(ctx, `
		SELECT user_id, tenant_id, role, joined_at FROM tenant_memberships
		WHERE tenant_id = $1 ORDER BY joined_at`, tenantID)
}

func (s *MembershipStore) ListByUser(ctx context.Context, userID string) ([]*entity.Membership, error) {
	return s.list(ctx, `
		SELECT user_id, tenant_id, role, joined_at FROM tenant_memberships
		WHERE user_id = $1 ORDER BY joined_at`, userID)
}

func (s *MembershipStore) list(ctx context.Context, query, arg string) ([]*entity.Membership, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []*entity.Membership
	for rows.Next() {
		var m entity.Membership
		if err := rows.Scan(&m.UserID, &m.TenantID, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *MembershipStore) CountOwners(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM tenant_memberships WHERE tenant_id = $1 AND role = $2`,
		tenantID, entity.RoleOwner).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count owners: %w", err)
	}
	return n, nil
}

// InviteStore implements repo.InviteRepository on PostgreSQL.
type InviteStore struct {
	pool *pgxpool.Pool
}

// NewInviteStore creates an InviteStore on the shared pool.
func NewInviteStore(pool *pgxpool.Pool) *InviteStore {
	return &InviteStore{pool: pool}
}

const inviteColumns = `id, tenant_id, token, max_uses, use_count, expires_at, revoked_at, created_by, created_at`

func (s *InviteStore) Create(ctx context.Context, i *entity.Invite) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO invites (`+inviteColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		i.ID, i.TenantID, i.Token, i.MaxUses, i.UseCount, i.ExpiresAt, i.RevokedAt, i.CreatedBy, i.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

func (s *InviteStore) GetByToken(ctx context.Context, token string) (*entity.Invite, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+inviteColumns+` FROM invites WHERE token = $1`, token)
	return scanInvite(row)
}

func (s *InviteStore) Update(ctx context.Context, i *entity.Invite) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE invites SET max_uses = $2, use_count = $3, expires_at = $4, revoked_at = $5
		WHERE id = $1`,
		i.ID, i.MaxUses, i.UseCount, i.ExpiresAt, i.RevokedAt)
	if err != nil {
		return fmt.Errorf("update invite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errno.ErrInviteNotFound
	}
	return nil
}

func (s *InviteStore) ListByTenant(ctx context.Context, tenantID string) ([]*entity.Invite, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+inviteColumns+` FROM invites WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()

	var out []*entity.Invite
	for rows.Next() {
		i, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func scanInvite(row pgx.Row) (*entity.Invite, error) {
	var i entity.Invite
	err := row.Scan(&i.ID, &i.TenantID, &i.Token, &i.MaxUses, &i.UseCount,
		&i.ExpiresAt, &i.RevokedAt, &i.CreatedBy, &i.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errno.ErrInviteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan invite: %w", err)
	}
	return &i, nil
}
