package pg

import (
	"context"
	"database/sql"
	"errors"

	"reserv.org/internal/auth"
	"reserv.org/internal/ids"
)

var _ auth.Store = (*Store)(nil)

func (s *Store) Users(ctx context.Context) auth.UserStore             { return pgUsers{s.db} }
func (s *Store) Roles(ctx context.Context) auth.RoleStore             { return pgRoles{s.db} }
func (s *Store) Permissions(ctx context.Context) auth.PermissionStore { return pgPerms{s.db} }

type pgUsers struct{ db *sql.DB }

func (u pgUsers) Create(ctx context.Context, user *auth.User) error {
	_, err := u.db.ExecContext(ctx, `
		insert into users (id, display_name, password_hash, status)
		values ($1, $2, $3, $4)
	`, user.ID, user.DisplayName, user.PasswordHash, user.Status)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return auth.ErrAlreadyExists
	}
	return err
}

func (u pgUsers) Find(ctx context.Context, id string) (*auth.User, error) {
	var user auth.User
	err := u.db.QueryRowContext(ctx, `
		select id, display_name, password_hash, status, created_at, updated_at
		from users where id = $1
	`, id).Scan(&user.ID, &user.DisplayName, &user.PasswordHash, &user.Status, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (u pgUsers) FindByDisplayName(ctx context.Context, name string) (*auth.User, error) {
	var user auth.User
	err := u.db.QueryRowContext(ctx, `
		select id, display_name, password_hash, status, created_at, updated_at
		from users where display_name = $1
	`, name).Scan(&user.ID, &user.DisplayName, &user.PasswordHash, &user.Status, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (u pgUsers) UpdateDisplayName(ctx context.Context, userID, name string) error {
	res, err := u.db.ExecContext(ctx, `
		update users set display_name = $1, updated_at = now() where id = $2
	`, name, userID)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return auth.ErrAlreadyExists
	}
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (u pgUsers) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := u.db.ExecContext(ctx, `
		update users set password_hash = $1, updated_at = now() where id = $2
	`, passwordHash, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (u pgUsers) UpdateStatus(ctx context.Context, userID, status string) error {
	res, err := u.db.ExecContext(ctx, `
		update users set status = $1, updated_at = now() where id = $2
	`, status, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

type pgRoles struct{ db *sql.DB }

func (r pgRoles) Create(ctx context.Context, role *auth.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	_, err := r.db.ExecContext(ctx, `
		insert into roles (id, name, description) values ($1, $2, $3)
	`, role.ID, role.Name, role.Description)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return auth.ErrAlreadyExists
	}
	return err
}

func (r pgRoles) Find(ctx context.Context, id string) (*auth.Role, error) {
	return r.findRole(ctx, `select id, name, description, created_at from roles where id = $1`, id)
}

func (r pgRoles) FindByName(ctx context.Context, name string) (*auth.Role, error) {
	return r.findRole(ctx, `select id, name, description, created_at from roles where name = $1`, name)
}

func (r pgRoles) findRole(ctx context.Context, query, arg string) (*auth.Role, error) {
	var role auth.Role
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r pgRoles) List(ctx context.Context) ([]*auth.Role, error) {
	rows, err := r.db.QueryContext(ctx, `
		select id, name, description, created_at from roles order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.Role
	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &role)
	}
	return result, rows.Err()
}

func (r pgRoles) Assign(ctx context.Context, assignment auth.Assignment) error {
	_, err := r.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		on conflict (user_id, role_id) do nothing
	`, assignment.UserID, assignment.RoleID)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return auth.ErrNotFound
	}
	return err
}

func (r pgRoles) Assignments(ctx context.Context, userID string) ([]auth.Assignment, error) {
	rows, err := r.db.QueryContext(ctx, `
		select user_id, role_id, created_at from user_roles where user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Assignment
	for rows.Next() {
		var a auth.Assignment
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

type pgPerms struct{ db *sql.DB }

func (p pgPerms) Ensure(ctx context.Context, perms []auth.Permission) error {
	for _, perm := range perms {
		id := perm.ID
		if id == "" {
			id = ids.New()
		}
		_, err := p.db.ExecContext(ctx, `
			insert into permissions (id, key, description)
			values ($1, $2, $3)
			on conflict (key) do nothing
		`, id, perm.Key, perm.Description)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p pgPerms) List(ctx context.Context) ([]auth.Permission, error) {
	rows, err := p.db.QueryContext(ctx, `
		select id, key, description, created_at from permissions order by key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Permission
	for rows.Next() {
		var perm auth.Permission
		if err := rows.Scan(&perm.ID, &perm.Key, &perm.Description, &perm.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, perm)
	}
	return result, rows.Err()
}

func (p pgPerms) FindByKey(ctx context.Context, key string) (*auth.Permission, error) {
	var perm auth.Permission
	err := p.db.QueryRowContext(ctx, `
		select id, key, description, created_at from permissions where key = $1
	`, key).Scan(&perm.ID, &perm.Key, &perm.Description, &perm.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &perm, nil
}

func (p pgPerms) SetForRole(ctx context.Context, roleID string, keys []string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, key := range keys {
		res, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			select $1, id from permissions where key = $2
		`, roleID, key)
		if err != nil {
			return err
		}
		if err := requireRow(res); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p pgPerms) PermissionsForRole(ctx context.Context, roleID string) ([]auth.Permission, error) {
	rows, err := p.db.QueryContext(ctx, `
		select p.id, p.key, p.description, p.created_at
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		where rp.role_id = $1
		order by p.key
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Permission
	for rows.Next() {
		var perm auth.Permission
		if err := rows.Scan(&perm.ID, &perm.Key, &perm.Description, &perm.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, perm)
	}
	return result, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
