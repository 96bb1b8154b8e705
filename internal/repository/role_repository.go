package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/auth-service/internal/model"
)

// RoleRepo persists roles and user↔role memberships.
type RoleRepo struct{ DB *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{DB: db} }

func scanRole(row rowScanner) (model.Role, error) {
	var role model.Role
	err := row.Scan(&role.ID, &role.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Role{}, ErrNotFound
	}
	return role, err
}

// CreateRole inserts a role; an existing name yields ErrConflict.
func (r *RoleRepo) CreateRole(ctx context.Context, name string) (model.Role, error) {
	role := model.Role{Name: name}
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		taken, err := exists(ctx, tx, "SELECT id FROM roles WHERE name=? LIMIT 1 FOR UPDATE", name)
		if err != nil {
			return err
		}
		if taken {
			return ErrConflict
		}
		res, err := tx.ExecContext(ctx, "INSERT INTO roles (name) VALUES (?)", name)
		if err != nil {
			if isDuplicate(err) {
				return ErrConflict
			}
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		role.ID = uint64(id)
		return nil
	})
	if err != nil {
		return model.Role{}, err
	}
	return role, nil
}

// FindRoleByID fetches a role by id.
func (r *RoleRepo) FindRoleByID(ctx context.Context, id uint64) (model.Role, error) {
	return scanRole(r.DB.QueryRowContext(ctx, "SELECT id, name FROM roles WHERE id=? LIMIT 1", id))
}

// FindRoleByName fetches a role by exact name.
func (r *RoleRepo) FindRoleByName(ctx context.Context, name string) (model.Role, error) {
	return scanRole(r.DB.QueryRowContext(ctx, "SELECT id, name FROM roles WHERE name=? LIMIT 1", name))
}

// ListRoles returns all roles ordered by name.
func (r *RoleRepo) ListRoles(ctx context.Context) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT id, name FROM roles ORDER BY name ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	roles := []model.Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// RenameRole changes the name of role id. A missing role yields
// ErrNotFound; a name held by another role yields ErrConflict.
func (r *RoleRepo) RenameRole(ctx context.Context, id uint64, name string) (model.Role, error) {
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		found, err := exists(ctx, tx, "SELECT id FROM roles WHERE id=? FOR UPDATE", id)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		taken, err := exists(ctx, tx, "SELECT id FROM roles WHERE name=? AND id<>? LIMIT 1", name, id)
		if err != nil {
			return err
		}
		if taken {
			return ErrConflict
		}
		_, err = tx.ExecContext(ctx, "UPDATE roles SET name=? WHERE id=?", name, id)
		if isDuplicate(err) {
			return ErrConflict
		}
		return err
	})
	if err != nil {
		return model.Role{}, err
	}
	return model.Role{ID: id, Name: name}, nil
}

// DeleteRole removes role id and every membership that references it in
// one transaction.
func (r *RoleRepo) DeleteRole(ctx context.Context, id uint64) error {
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM user_roles WHERE role_id=?", id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM roles WHERE id=?", id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// AddUserRole records membership; an existing pair is left as is.
func (r *RoleRepo) AddUserRole(ctx context.Context, userID, roleID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO user_roles (user_id, role_id) VALUES (?,?)", userID, roleID)
	return err
}

// RemoveUserRole deletes membership; a missing pair is not an error.
func (r *RoleRepo) RemoveUserRole(ctx context.Context, userID, roleID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM user_roles WHERE user_id=? AND role_id=?", userID, roleID)
	return err
}
