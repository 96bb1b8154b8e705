// Package testutil provides shared fixtures for package tests: an
// in-memory credential/role store and a throwaway Redis.
package testutil

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/repository"
)

// NewRedis starts a miniredis server and returns a client for it. Both
// are closed when the test ends.
func NewRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return rdb, mr
}

// MemoryStore implements the credential and role stores in memory with
// the same uniqueness and not-found behavior as the MySQL repositories.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  uint64
	users   map[uint64]model.User
	roles   map[uint64]model.Role
	members map[uint64]map[uint64]bool // user id -> role ids
	history []model.LoginHistory
	clock   time.Time

	// HistoryErr, when set, is returned by AppendLoginHistory.
	HistoryErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   map[uint64]model.User{},
		roles:   map[uint64]model.Role{},
		members: map[uint64]map[uint64]bool{},
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *MemoryStore) id() uint64 {
	m.nextID++
	return m.nextID
}

// tick returns strictly increasing timestamps so ordering is stable.
func (m *MemoryStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

// SetActive flips the is_active flag of a user.
func (m *MemoryStore) SetActive(id uint64, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	u.IsActive = active
	m.users[id] = u
}

func (m *MemoryStore) FindUserByEmailOrLogin(_ context.Context, email, login string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email || u.Login == login {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *MemoryStore) FindUserByID(_ context.Context, id uint64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (m *MemoryStore) FindUserByLogin(_ context.Context, login string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Login == login {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *MemoryStore) CreateUser(_ context.Context, u model.User) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.users {
		if o.Email == u.Email || o.Login == u.Login {
			return model.User{}, repository.ErrConflict
		}
	}
	u.ID = m.id()
	u.CreatedAt = m.tick()
	u.Roles = nil
	m.users[u.ID] = u
	return u, nil
}

func (m *MemoryStore) UpdateUser(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.users[u.ID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, o := range m.users {
		if o.ID != u.ID && o.Login == u.Login {
			return repository.ErrConflict
		}
	}
	cur.Login = u.Login
	cur.PasswordHash = u.PasswordHash
	cur.IsActive = u.IsActive
	m.users[u.ID] = cur
	return nil
}

func (m *MemoryStore) ListRolesOfUser(_ context.Context, userID uint64) ([]model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Role{}
	for roleID := range m.members[userID] {
		out = append(out, m.roles[roleID])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) AppendLoginHistory(_ context.Context, h model.LoginHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.HistoryErr != nil {
		return m.HistoryErr
	}
	h.ID = m.id()
	h.CreatedAt = m.tick()
	m.history = append(m.history, h)
	return nil
}

func (m *MemoryStore) ListHistoryForUser(_ context.Context, userID uint64) ([]model.LoginHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.LoginHistory{}
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].UserID == userID {
			out = append(out, m.history[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateRole(_ context.Context, name string) (model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.Name == name {
			return model.Role{}, repository.ErrConflict
		}
	}
	r := model.Role{ID: m.id(), Name: name}
	m.roles[r.ID] = r
	return r, nil
}

func (m *MemoryStore) FindRoleByID(_ context.Context, id uint64) (model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return model.Role{}, repository.ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) FindRoleByName(_ context.Context, name string) (model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return model.Role{}, repository.ErrNotFound
}

func (m *MemoryStore) ListRoles(_ context.Context) ([]model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) RenameRole(_ context.Context, id uint64, name string) (model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return model.Role{}, repository.ErrNotFound
	}
	for _, o := range m.roles {
		if o.ID != id && o.Name == name {
			return model.Role{}, repository.ErrConflict
		}
	}
	r.Name = name
	m.roles[id] = r
	return r, nil
}

func (m *MemoryStore) DeleteRole(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.roles, id)
	for _, set := range m.members {
		delete(set, id)
	}
	return nil
}

func (m *MemoryStore) AddUserRole(_ context.Context, userID, roleID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[userID] == nil {
		m.members[userID] = map[uint64]bool{}
	}
	m.members[userID][roleID] = true
	return nil
}

func (m *MemoryStore) RemoveUserRole(_ context.Context, userID, roleID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members[userID], roleID)
	return nil
}
