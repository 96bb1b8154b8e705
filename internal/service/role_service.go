package service

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/iliyamo/auth-service/internal/model"
)

const (
	minRoleName = 2
	maxRoleName = 100
)

// RoleService manages roles and user↔role membership.
//
// AssignRole, RevokeRole and CheckAccess read the user's role set and then
// write in a separate step. Concurrent assign and revoke of the same pair
// can therefore interleave; the final state follows the order of the
// writes. Callers that need strict ordering must serialize per user.
type RoleService struct {
	roles RoleStore
	users CredentialStore
	call  storeCall
}

func NewRoleService(roles RoleStore, users CredentialStore, opts Options) *RoleService {
	return &RoleService{roles: roles, users: users, call: opts.storeCall()}
}

func validateRoleName(name string) error {
	if n := utf8.RuneCountInString(name); n < minRoleName || n > maxRoleName {
		return fmt.Errorf("%w: role name must be %d-%d characters", ErrInvalidInput, minRoleName, maxRoleName)
	}
	return nil
}

// CreateRole adds a role; an existing name is ErrConflict.
func (s *RoleService) CreateRole(ctx context.Context, name string) (model.Role, error) {
	if err := validateRoleName(name); err != nil {
		return model.Role{}, err
	}
	var role model.Role
	err := s.call.once(ctx, func(ctx context.Context) error {
		var err error
		role, err = s.roles.CreateRole(ctx, name)
		return err
	})
	if err != nil {
		return model.Role{}, conflictAs(err, "role already exists")
	}
	return role, nil
}

// ListRoles returns every role ordered by name.
func (s *RoleService) ListRoles(ctx context.Context) ([]model.Role, error) {
	var roles []model.Role
	err := s.call.retry(ctx, func(ctx context.Context) error {
		var err error
		roles, err = s.roles.ListRoles(ctx)
		return err
	})
	return roles, err
}

// UpdateRole renames role id.
func (s *RoleService) UpdateRole(ctx context.Context, id uint64, name string) (model.Role, error) {
	if err := validateRoleName(name); err != nil {
		return model.Role{}, err
	}
	var role model.Role
	err := s.call.once(ctx, func(ctx context.Context) error {
		var err error
		role, err = s.roles.RenameRole(ctx, id, name)
		return err
	})
	if err != nil {
		return model.Role{}, conflictAs(notFoundAs(err, ErrNotFound, "role not found"), "role name already taken")
	}
	return role, nil
}

// DeleteRole removes role id and all its memberships.
func (s *RoleService) DeleteRole(ctx context.Context, id uint64) error {
	err := s.call.once(ctx, func(ctx context.Context) error { return s.roles.DeleteRole(ctx, id) })
	return notFoundAs(err, ErrNotFound, "role not found")
}

// AssignRole grants roleName to the user with the given login. Granting a
// role the user already holds succeeds without writing.
func (s *RoleService) AssignRole(ctx context.Context, login, roleName string) error {
	user, role, err := s.pair(ctx, login, roleName)
	if err != nil {
		return err
	}
	if user.HasRole(role.Name) {
		return nil
	}
	return s.call.once(ctx, func(ctx context.Context) error {
		return s.roles.AddUserRole(ctx, user.ID, role.ID)
	})
}

// RevokeRole removes roleName from the user. Removing a role the user
// does not hold succeeds without writing.
func (s *RoleService) RevokeRole(ctx context.Context, login, roleName string) error {
	user, role, err := s.pair(ctx, login, roleName)
	if err != nil {
		return err
	}
	if !user.HasRole(role.Name) {
		return nil
	}
	return s.call.once(ctx, func(ctx context.Context) error {
		return s.roles.RemoveUserRole(ctx, user.ID, role.ID)
	})
}

// CheckAccess reports whether the user currently holds roleName. Only the
// user has to exist; an unknown role name simply yields false.
func (s *RoleService) CheckAccess(ctx context.Context, login, roleName string) (bool, error) {
	user, err := s.userWithRoles(ctx, login)
	if err != nil {
		return false, err
	}
	return user.HasRole(roleName), nil
}

func (s *RoleService) pair(ctx context.Context, login, roleName string) (model.User, model.Role, error) {
	user, err := s.userWithRoles(ctx, login)
	if err != nil {
		return model.User{}, model.Role{}, err
	}
	var role model.Role
	err = s.call.retry(ctx, func(ctx context.Context) error {
		var err error
		role, err = s.roles.FindRoleByName(ctx, roleName)
		return err
	})
	if err != nil {
		return model.User{}, model.Role{}, notFoundAs(err, ErrNotFound, "role not found")
	}
	return user, role, nil
}

func (s *RoleService) userWithRoles(ctx context.Context, login string) (model.User, error) {
	var user model.User
	err := s.call.retry(ctx, func(ctx context.Context) error {
		var err error
		if user, err = s.users.FindUserByLogin(ctx, login); err != nil {
			return err
		}
		user.Roles, err = s.users.ListRolesOfUser(ctx, user.ID)
		return err
	})
	if err != nil {
		return model.User{}, notFoundAs(err, ErrNotFound, "user not found")
	}
	return user, nil
}
