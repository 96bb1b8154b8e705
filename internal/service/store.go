package service

import (
	"context"

	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/queue"
)

// CredentialStore is the relational store of users, their role
// memberships and login history. Reads return repository.ErrNotFound for
// an absent entity; writes return repository.ErrConflict on a uniqueness
// clash and commit as one unit.
type CredentialStore interface {
	FindUserByEmailOrLogin(ctx context.Context, email, login string) (model.User, error)
	FindUserByID(ctx context.Context, id uint64) (model.User, error)
	FindUserByLogin(ctx context.Context, login string) (model.User, error)
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	UpdateUser(ctx context.Context, u model.User) error
	ListRolesOfUser(ctx context.Context, userID uint64) ([]model.Role, error)
	AppendLoginHistory(ctx context.Context, h model.LoginHistory) error
	ListHistoryForUser(ctx context.Context, userID uint64) ([]model.LoginHistory, error)
}

// RoleStore persists roles and memberships.
type RoleStore interface {
	CreateRole(ctx context.Context, name string) (model.Role, error)
	FindRoleByID(ctx context.Context, id uint64) (model.Role, error)
	FindRoleByName(ctx context.Context, name string) (model.Role, error)
	ListRoles(ctx context.Context) ([]model.Role, error)
	RenameRole(ctx context.Context, id uint64, name string) (model.Role, error)
	DeleteRole(ctx context.Context, id uint64) error
	AddUserRole(ctx context.Context, userID, roleID uint64) error
	RemoveUserRole(ctx context.Context, userID, roleID uint64) error
}

// SessionStore maps opaque refresh tokens to user IDs with expiry.
type SessionStore interface {
	Create(ctx context.Context, userID uint64) (string, error)
	Resolve(ctx context.Context, token string) (uint64, error)
	Revoke(ctx context.Context, token string) error
}

// LoginPublisher receives an event after each successful login.
type LoginPublisher interface {
	PublishLogin(ctx context.Context, ev queue.LoginRecordedEvent) error
}
