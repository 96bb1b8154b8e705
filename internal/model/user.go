package model

import "time"

// User represents an account record as stored in the `users` table.
// Role membership is not embedded in the row; it is loaded with an
// explicit follow-up query and attached to Roles when a caller needs
// it.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Email        – unique email address (case-sensitive exact match).
//	Login        – unique login name used for authentication.
//	PasswordHash – bcrypt hashed password.
//	IsActive     – whether the account may obtain new access tokens.
//	IsSuperuser  – set only by the superuser bootstrap command.
//	CreatedAt    – timestamp of creation.
//	Roles        – roles held by the user, ordered by name. Nil when not loaded.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	Login        string    // users.login
	PasswordHash string    // users.password_hash
	IsActive     bool      // users.is_active
	IsSuperuser  bool      // users.is_superuser
	CreatedAt    time.Time // users.created_at
	Roles        []Role    // user_roles JOIN roles, loaded separately
}

// RoleNames returns the names of the loaded roles in their stored order.
func (u User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// HasRole reports whether a role with the given name is in the loaded role set.
func (u User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Role represents a row in the `roles` table.
//
// Fields:
//
//	ID   – numeric identifier of the role.
//	Name – unique role name, 2 to 100 characters.
type Role struct {
	ID   uint64 // roles.id
	Name string // roles.name
}

// LoginHistory is one row of the append-only `login_history` audit
// trail. A row is written for every successful login and never
// updated afterwards.
type LoginHistory struct {
	ID        uint64    // login_history.id
	UserID    uint64    // login_history.user_id
	IPAddress *string   // login_history.ip_address (nullable)
	UserAgent *string   // login_history.user_agent (nullable)
	CreatedAt time.Time // login_history.created_at
}
