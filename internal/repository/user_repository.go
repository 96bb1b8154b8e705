package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/auth-service/internal/model"
)

// UserRepo is the credential store: users, their role memberships and
// the login history, all in MySQL.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const selectUser = "SELECT id,email,login,password_hash,is_active,is_superuser,created_at FROM users "

func scanUser(row rowScanner) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Login, &u.PasswordHash, &u.IsActive, &u.IsSuperuser, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// FindUserByEmailOrLogin returns the first user whose email equals email
// or whose login equals login.
func (r *UserRepo) FindUserByEmailOrLogin(ctx context.Context, email, login string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		selectUser+"WHERE email=? OR login=? LIMIT 1", email, login))
}

// FindUserByID fetches a user by id.
func (r *UserRepo) FindUserByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, selectUser+"WHERE id=? LIMIT 1", id))
}

// FindUserByLogin fetches a user by exact login.
func (r *UserRepo) FindUserByLogin(ctx context.Context, login string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, selectUser+"WHERE login=? LIMIT 1", login))
}

// CreateUser inserts u and returns it with ID and CreatedAt filled in. An
// existing email or login yields ErrConflict without writing anything.
func (r *UserRepo) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	u.CreatedAt = time.Now().UTC()
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		taken, err := exists(ctx, tx,
			"SELECT id FROM users WHERE email=? OR login=? LIMIT 1 FOR UPDATE", u.Email, u.Login)
		if err != nil {
			return err
		}
		if taken {
			return ErrConflict
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO users (email,login,password_hash,is_active,is_superuser,created_at) VALUES (?,?,?,?,?,?)",
			u.Email, u.Login, u.PasswordHash, u.IsActive, u.IsSuperuser, u.CreatedAt)
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
		u.ID = uint64(id)
		return nil
	})
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}

// UpdateUser writes the mutable columns of u. A login already held by a
// different user yields ErrConflict.
func (r *UserRepo) UpdateUser(ctx context.Context, u model.User) error {
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		taken, err := exists(ctx, tx,
			"SELECT id FROM users WHERE login=? AND id<>? LIMIT 1 FOR UPDATE", u.Login, u.ID)
		if err != nil {
			return err
		}
		if taken {
			return ErrConflict
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE users SET login=?, password_hash=?, is_active=? WHERE id=?",
			u.Login, u.PasswordHash, u.IsActive, u.ID)
		if isDuplicate(err) {
			return ErrConflict
		}
		return err
	})
}

// ListRolesOfUser returns the user's roles ordered by name.
func (r *UserRepo) ListRolesOfUser(ctx context.Context, userID uint64) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT r.id, r.name FROM roles r JOIN user_roles ur ON ur.role_id = r.id WHERE ur.user_id=? ORDER BY r.name ASC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	roles := []model.Role{}
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// Column widths of login_history, in characters.
const (
	maxIPAddressLen = 64
	maxUserAgentLen = 512
)

// AppendLoginHistory inserts one audit row. Empty IP or user agent are
// stored as NULL; longer values are cut to the column width so a strict
// sql_mode never rejects the row.
func (r *UserRepo) AppendLoginHistory(ctx context.Context, h model.LoginHistory) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO login_history (user_id, ip_address, user_agent, created_at) VALUES (?,?,?,?)",
		h.UserID, nullable(h.IPAddress, maxIPAddressLen), nullable(h.UserAgent, maxUserAgentLen), time.Now().UTC())
	return err
}

// ListHistoryForUser returns the user's logins, newest first.
func (r *UserRepo) ListHistoryForUser(ctx context.Context, userID uint64) ([]model.LoginHistory, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, user_id, ip_address, user_agent, created_at FROM login_history WHERE user_id=? ORDER BY created_at DESC, id DESC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.LoginHistory{}
	for rows.Next() {
		var h model.LoginHistory
		if err := rows.Scan(&h.ID, &h.UserID, &h.IPAddress, &h.UserAgent, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func nullable(s *string, limit int) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: truncate(*s, limit), Valid: true}
}

// truncate keeps at most limit runes of s.
func truncate(s string, limit int) string {
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
