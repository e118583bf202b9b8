package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doctrack/doctrack/internal/storage"
	"github.com/doctrack/doctrack/internal/types"
)

func scanUser(row interface{ Scan(...any) error }) (*types.User, error) {
	var u types.User
	var active, super int
	if err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &active, &super); err != nil {
		return nil, err
	}
	u.IsActive = active != 0
	u.IsSuperuser = super != 0
	return &u, nil
}

func userRoles(ctx context.Context, q queryer, userID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT role FROM user_roles WHERE user_id = ? AND is_active = 1 ORDER BY role`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user roles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var roles []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

func getUser(ctx context.Context, q queryer, id string) (*types.User, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, username, display_name, is_active, is_superuser FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.Roles, err = userRoles(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func setSuperuser(ctx context.Context, q queryer, userID string, isSuperuser bool) error {
	flag := 0
	if isSuperuser {
		flag = 1
	}
	res, err := q.ExecContext(ctx,
		`UPDATE users SET is_superuser = ? WHERE id = ?`, flag, userID)
	if err != nil {
		return fmt.Errorf("failed to set superuser flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check superuser update: %w", err)
	}
	if n == 0 {
		return types.NotFound("user", userID)
	}
	return nil
}

func countActiveSuperusers(ctx context.Context, q queryer) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE is_superuser = 1 AND is_active = 1`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count superusers: %w", err)
	}
	return n, nil
}

// userCapabilities resolves a user's effective capability set through their
// roles. Superusers hold every capability regardless of role membership.
func userCapabilities(ctx context.Context, q queryer, userID string) ([]string, error) {
	u, err := getUser(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, nil
	}
	if u.IsSuperuser {
		return []string{"read", "write", "review", "approve", "admin"}, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT rc.capability
		FROM user_roles ur
		JOIN role_capabilities rc ON rc.role = ur.role
		WHERE ur.user_id = ? AND ur.is_active = 1
		ORDER BY rc.capability
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query capabilities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var caps []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan capability: %w", err)
		}
		caps = append(caps, c)
	}
	return caps, rows.Err()
}

// Storage-level user methods.

func (s *SQLiteStorage) CreateUser(ctx context.Context, u *types.User) error {
	active := 0
	if u.IsActive {
		active = 1
	}
	super := 0
	if u.IsSuperuser {
		super = 1
	}
	return s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		t := tx.(*sqliteTxStorage)
		_, err := t.conn.ExecContext(ctx, `
			INSERT INTO users (id, username, display_name, is_active, is_superuser)
			VALUES (?, ?, ?, ?, ?)
		`, u.ID, u.Username, u.DisplayName, active, super)
		if err != nil {
			if isUniqueConstraintError(err) {
				return types.NewDomainError(types.CodeConflict,
					fmt.Sprintf("user %q already exists", u.Username))
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		for _, role := range u.Roles {
			if _, err := t.conn.ExecContext(ctx,
				`INSERT OR IGNORE INTO user_roles (user_id, role) VALUES (?, ?)`, u.ID, role); err != nil {
				return fmt.Errorf("failed to assign role %q: %w", role, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStorage) GetUser(ctx context.Context, id string) (*types.User, error) {
	return getUser(ctx, s.db, id)
}

func (s *SQLiteStorage) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, display_name, is_active, is_superuser FROM users WHERE username = ?`,
		username)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, types.NotFound("user", username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	u.Roles, err = userRoles(ctx, s.db, u.ID)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *SQLiteStorage) GrantRole(ctx context.Context, userID, role string) error {
	if _, err := getUser(ctx, s.db, userID); err != nil {
		return err
	}
	// A previously revoked membership reactivates instead of duplicating.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role) VALUES (?, ?)
		ON CONFLICT(user_id, role) DO UPDATE SET is_active = 1
	`, userID, role)
	if err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	return nil
}

// RevokeRole deactivates a role membership. The row stays behind so the
// grant history remains reconstructable alongside the audit trail.
func (s *SQLiteStorage) RevokeRole(ctx context.Context, userID, role string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_roles SET is_active = 0 WHERE user_id = ? AND role = ? AND is_active = 1`,
		userID, role)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check role revocation: %w", err)
	}
	if n == 0 {
		return types.NotFound("role assignment", userID+"/"+role)
	}
	return nil
}

func (s *SQLiteStorage) SetSuperuser(ctx context.Context, userID string, isSuperuser bool) error {
	return s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.SetSuperuser(ctx, userID, isSuperuser)
	})
}

func (s *SQLiteStorage) CountActiveSuperusers(ctx context.Context) (int, error) {
	return countActiveSuperusers(ctx, s.db)
}

func (s *SQLiteStorage) UserCapabilities(ctx context.Context, userID string) ([]string, error) {
	return userCapabilities(ctx, s.db, userID)
}
