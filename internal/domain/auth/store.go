package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

var (
	_ StoreAPI = (*Store)(nil)
	_ SeedAPI  = (*Store)(nil)
)

func (s *Store) FindActiveUserByEmail(ctx context.Context, email string) (UserRecord, error) {
	return s.findUser(ctx, "lower(u.email) = lower($1) AND u.status = 'active'", email)
}

func (s *Store) UserByID(ctx context.Context, userID string) (UserRecord, error) {
	return s.findUser(ctx, "u.id = $1", userID)
}

func (s *Store) findUser(ctx context.Context, where string, arg string) (UserRecord, error) {
	var out UserRecord
	var departmentID *string
	err := s.DB.QueryRow(ctx, `
    SELECT u.id, u.company_id, u.department_id, u.display_name, u.email, u.password_hash,
           u.status, u.is_super_admin, u.mfa_secret_enc
    FROM users u
    WHERE `+where, arg).Scan(&out.ID, &out.CompanyID, &departmentID, &out.DisplayName, &out.Email,
		&out.PasswordHash, &out.Status, &out.IsSuperAdmin, &out.MFASecretEnc)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, ErrUserNotFound
	}
	if err != nil {
		return UserRecord{}, err
	}
	if departmentID != nil {
		out.DepartmentID = *departmentID
	}

	roles, err := s.userRoles(ctx, out.ID)
	if err != nil {
		return UserRecord{}, err
	}
	out.Roles = roles
	return out, nil
}

func (s *Store) userRoles(ctx context.Context, userID string) ([]RoleRecord, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT r.id, r.name, r.display_name, COALESCE(r.module, ''),
           COALESCE(array_agg(rp.permission_key ORDER BY rp.permission_key) FILTER (WHERE rp.permission_key IS NOT NULL), '{}')
    FROM user_roles ur
    JOIN roles r ON r.id = ur.role_id
    LEFT JOIN role_permissions rp ON rp.role_id = r.id
    WHERE ur.user_id = $1
    GROUP BY r.id, r.name, r.display_name, r.module
    ORDER BY r.name
  `, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []RoleRecord
	for rows.Next() {
		var role RoleRecord
		if err := rows.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Module, &role.Permissions); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *Store) CreateSession(ctx context.Context, userID, sessionHash string, expires time.Time) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO sessions (user_id, token_hash, expires_at)
    VALUES ($1,$2,$3)
  `, userID, sessionHash, expires)
	return err
}

func (s *Store) SessionValid(ctx context.Context, userID, sessionHash string) (bool, error) {
	var count int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM sessions
    WHERE user_id = $1 AND token_hash = $2 AND expires_at > now() AND revoked_at IS NULL
  `, userID, sessionHash).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) ExtendSession(ctx context.Context, userID, sessionHash string, expires time.Time) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE sessions
    SET expires_at = $1, refreshed_at = now()
    WHERE user_id = $2 AND token_hash = $3 AND revoked_at IS NULL
  `, expires, userID, sessionHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionRevoked
	}
	return nil
}

func (s *Store) RevokeSession(ctx context.Context, userID, sessionHash string) error {
	_, err := s.DB.Exec(ctx, "UPDATE sessions SET revoked_at = now() WHERE user_id = $1 AND token_hash = $2 AND revoked_at IS NULL", userID, sessionHash)
	return err
}

func (s *Store) PurgeSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.DB.Exec(ctx, `
    DELETE FROM sessions
    WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)
  `, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID string) error {
	_, err := s.DB.Exec(ctx, "UPDATE users SET last_login = now() WHERE id = $1", userID)
	return err
}

func (s *Store) EnsureCompany(ctx context.Context, name string) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, "SELECT id FROM companies WHERE name = $1", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}
	err = s.DB.QueryRow(ctx, "INSERT INTO companies (name) VALUES ($1) RETURNING id", name).Scan(&id)
	return id, err
}

func (s *Store) EnsureRole(ctx context.Context, companyID string, role RoleDefinition) (string, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var module *string
	if role.Module != "" {
		module = &role.Module
	}
	var id string
	if err := tx.QueryRow(ctx, `
    INSERT INTO roles (company_id, name, display_name, module)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (company_id, name) DO UPDATE SET display_name = EXCLUDED.display_name, module = EXCLUDED.module
    RETURNING id
  `, companyID, role.Name, role.DisplayName, module).Scan(&id); err != nil {
		return "", err
	}
	for _, perm := range role.Permissions {
		if _, err := tx.Exec(ctx, "INSERT INTO permissions (key) VALUES ($1) ON CONFLICT (key) DO NOTHING", perm); err != nil {
			return "", err
		}
		if _, err := tx.Exec(ctx, `
      INSERT INTO role_permissions (role_id, permission_key) VALUES ($1, $2)
      ON CONFLICT DO NOTHING
    `, id, perm); err != nil {
			return "", err
		}
	}
	return id, tx.Commit(ctx)
}

func (s *Store) EnsureUser(ctx context.Context, user NewUser) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, "SELECT id FROM users WHERE lower(email) = lower($1)", user.Email).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := tx.QueryRow(ctx, `
    INSERT INTO users (company_id, email, display_name, password_hash, status, is_super_admin)
    VALUES ($1, $2, $3, $4, 'active', $5)
    RETURNING id
  `, user.CompanyID, user.Email, user.DisplayName, user.PasswordHash, user.IsSuperAdmin).Scan(&id); err != nil {
		return "", err
	}
	for _, roleID := range user.RoleIDs {
		if _, err := tx.Exec(ctx, "INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", id, roleID); err != nil {
			return "", err
		}
	}
	return id, tx.Commit(ctx)
}
