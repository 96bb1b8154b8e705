package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/queue"
	"github.com/iliyamo/auth-service/internal/repository"
	"github.com/iliyamo/auth-service/internal/utils"
)

// Options tunes password hashing and store access for the services.
type Options struct {
	BcryptCost    int
	StoreTimeout  time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
}

func (o Options) storeCall() storeCall {
	return storeCall{timeout: o.StoreTimeout, attempts: o.RetryAttempts, backoff: o.RetryBackoff}.normalized()
}

// AuthService composes the credential store, password hashing, access
// tokens and refresh sessions into the account workflows. It is the only
// component handlers talk to for authentication.
type AuthService struct {
	users    CredentialStore
	sessions SessionStore
	issuer   *utils.TokenIssuer
	events   LoginPublisher
	cost     int
	call     storeCall
}

// NewAuthService wires the orchestrator. events may be nil.
func NewAuthService(users CredentialStore, sessions SessionStore, issuer *utils.TokenIssuer, events LoginPublisher, opts Options) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		issuer:   issuer,
		events:   events,
		cost:     opts.BcryptCost,
		call:     opts.storeCall(),
	}
}

// TokenPair is returned by Login and Refresh. ExpiresIn is the access
// token lifetime in seconds.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// LoginRequest carries credentials plus the client metadata recorded in
// the login history.
type LoginRequest struct {
	Login     string
	Password  string
	IP        string
	UserAgent string
}

// Register creates an active, non-superuser account.
func (s *AuthService) Register(ctx context.Context, email, login, password string) (model.User, error) {
	return s.register(ctx, email, login, password, false)
}

// RegisterSuperuser creates an active superuser account. It is used by
// the bootstrap command only; no HTTP route reaches it.
func (s *AuthService) RegisterSuperuser(ctx context.Context, email, login, password string) (model.User, error) {
	return s.register(ctx, email, login, password, true)
}

func (s *AuthService) register(ctx context.Context, email, login, password string, superuser bool) (model.User, error) {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(login) == "" || password == "" {
		return model.User{}, fmt.Errorf("%w: email, login and password are required", ErrInvalidInput)
	}
	err := s.call.retry(ctx, func(ctx context.Context) error {
		_, err := s.users.FindUserByEmailOrLogin(ctx, email, login)
		return err
	})
	switch {
	case err == nil:
		return model.User{}, fmt.Errorf("%w: email or login already taken", ErrConflict)
	case !errors.Is(err, repository.ErrNotFound):
		return model.User{}, err
	}

	hash, err := s.hash(password)
	if err != nil {
		return model.User{}, err
	}
	var created model.User
	err = s.call.once(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.users.CreateUser(ctx, model.User{
			Email:        email,
			Login:        login,
			PasswordHash: hash,
			IsActive:     true,
			IsSuperuser:  superuser,
		})
		return err
	})
	if err != nil {
		return model.User{}, conflictAs(err, "email or login already taken")
	}
	created.Roles = []model.Role{}
	return created, nil
}

// Login verifies credentials and returns a new access token and refresh
// session. The login history row and the login event are best effort:
// their failure is logged and does not undo the login.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (TokenPair, error) {
	var u model.User
	err := s.call.retry(ctx, func(ctx context.Context) error {
		var err error
		u, err = s.users.FindUserByLogin(ctx, req.Login)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		utils.BurnPasswordCheck(req.Password)
		return TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return TokenPair{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) || !u.IsActive {
		return TokenPair{}, ErrInvalidCredentials
	}

	access, err := s.issueAccess(ctx, u)
	if err != nil {
		return TokenPair{}, err
	}
	var refresh string
	err = s.call.once(ctx, func(ctx context.Context) error {
		var err error
		refresh, err = s.sessions.Create(ctx, u.ID)
		return err
	})
	if err != nil {
		return TokenPair{}, err
	}

	s.recordLogin(ctx, u, req)
	return TokenPair{AccessToken: access.Token, RefreshToken: refresh, ExpiresIn: s.expiresIn()}, nil
}

func (s *AuthService) recordLogin(ctx context.Context, u model.User, req LoginRequest) {
	err := s.call.once(ctx, func(ctx context.Context) error {
		return s.users.AppendLoginHistory(ctx, model.LoginHistory{
			UserID:    u.ID,
			IPAddress: optionalString(req.IP),
			UserAgent: optionalString(req.UserAgent),
		})
	})
	if err != nil {
		log.Printf("auth: login history for user %d not recorded: %v", u.ID, err)
	}
	if s.events == nil {
		return
	}
	ev := queue.LoginRecordedEvent{
		UserID:     u.ID,
		Login:      u.Login,
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
		LoggedInAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.call.once(ctx, func(ctx context.Context) error { return s.events.PublishLogin(ctx, ev) }); err != nil {
		log.Printf("auth: login event for user %d not published: %v", u.ID, err)
	}
}

// Refresh exchanges a refresh token for a new access token. The refresh
// token itself is returned unchanged and stays valid until it expires or
// is revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if refreshToken == "" {
		return TokenPair{}, ErrInvalidSession
	}
	var userID uint64
	err := s.call.retry(ctx, func(ctx context.Context) error {
		var err error
		userID, err = s.sessions.Resolve(ctx, refreshToken)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return TokenPair{}, ErrInvalidSession
	}
	if err != nil {
		return TokenPair{}, err
	}

	u, err := s.findUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return TokenPair{}, ErrInvalidSession
	}
	if err != nil {
		return TokenPair{}, err
	}
	if !u.IsActive {
		return TokenPair{}, ErrInvalidSession
	}

	access, err := s.issueAccess(ctx, u)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access.Token, RefreshToken: refreshToken, ExpiresIn: s.expiresIn()}, nil
}

// Logout revokes the session behind refreshToken. Unknown, expired and
// already revoked tokens succeed; only an unreachable cache is reported.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.call.retry(ctx, func(ctx context.Context) error {
		return s.sessions.Revoke(ctx, refreshToken)
	})
}

// UpdateProfile applies the fields set in patch to user userID.
func (s *AuthService) UpdateProfile(ctx context.Context, userID uint64, patch model.ProfilePatch) (model.User, error) {
	if patch.Login.Null || patch.Password.Null {
		return model.User{}, fmt.Errorf("%w: login and password cannot be cleared", ErrInvalidInput)
	}
	if (patch.Login.Set && strings.TrimSpace(patch.Login.Value) == "") || (patch.Password.Set && patch.Password.Value == "") {
		return model.User{}, fmt.Errorf("%w: login and password cannot be empty", ErrInvalidInput)
	}
	u, err := s.findUser(ctx, userID)
	if err != nil {
		return model.User{}, notFoundAs(err, ErrNotFound, "user not found")
	}

	if patch.Login.Set && patch.Login.Value != u.Login {
		var other model.User
		err := s.call.retry(ctx, func(ctx context.Context) error {
			var err error
			other, err = s.users.FindUserByLogin(ctx, patch.Login.Value)
			return err
		})
		switch {
		case err == nil && other.ID != u.ID:
			return model.User{}, fmt.Errorf("%w: login already taken", ErrConflict)
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return model.User{}, err
		}
		u.Login = patch.Login.Value
	}
	if patch.Password.Set {
		hash, err := s.hash(patch.Password.Value)
		if err != nil {
			return model.User{}, err
		}
		u.PasswordHash = hash
	}
	if !patch.Empty() {
		err := s.call.once(ctx, func(ctx context.Context) error { return s.users.UpdateUser(ctx, u) })
		if err != nil {
			return model.User{}, conflictAs(err, "login already taken")
		}
	}

	roles, err := s.rolesOf(ctx, u.ID)
	if err != nil {
		return model.User{}, err
	}
	u.Roles = roles
	return u, nil
}

// History returns the login history of userID, newest first.
func (s *AuthService) History(ctx context.Context, userID uint64) ([]model.LoginHistory, error) {
	var out []model.LoginHistory
	err := s.call.retry(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.users.ListHistoryForUser(ctx, userID)
		return err
	})
	return out, err
}

func (s *AuthService) findUser(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := s.call.retry(ctx, func(ctx context.Context) error {
		var err error
		u, err = s.users.FindUserByID(ctx, id)
		return err
	})
	return u, err
}

func (s *AuthService) rolesOf(ctx context.Context, userID uint64) ([]model.Role, error) {
	var roles []model.Role
	err := s.call.retry(ctx, func(ctx context.Context) error {
		var err error
		roles, err = s.users.ListRolesOfUser(ctx, userID)
		return err
	})
	return roles, err
}

// issueAccess loads the current roles of u and signs a token carrying them.
func (s *AuthService) issueAccess(ctx context.Context, u model.User) (utils.AccessToken, error) {
	roles, err := s.rolesOf(ctx, u.ID)
	if err != nil {
		return utils.AccessToken{}, err
	}
	u.Roles = roles
	return s.issuer.Issue(u.ID, u.Login, u.RoleNames())
}

// hash rejects passwords bcrypt cannot take (longer than 72 bytes) as
// invalid input.
func (s *AuthService) hash(password string) (string, error) {
	h, err := utils.HashPassword(password, s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("%w: password is too long", ErrInvalidInput)
	}
	return h, err
}

func (s *AuthService) expiresIn() int64 {
	return int64(s.issuer.TTL() / time.Second)
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
