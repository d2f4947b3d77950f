package auth

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memorySession struct {
	userID    string
	expiresAt time.Time
	revokedAt time.Time
}

// MemoryStore is an in-process StoreAPI for tests and `STORE=memory` runs.
type MemoryStore struct {
	mu        sync.RWMutex
	companies map[string]string
	roles     map[string]RoleRecord
	roleKeys  map[string]string
	users     map[string]UserRecord
	userRoles map[string][]string
	sessions  map[string]*memorySession
	lastLogin map[string]time.Time
	now       func() time.Time
}

var (
	_ StoreAPI = (*MemoryStore)(nil)
	_ SeedAPI  = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		companies: map[string]string{},
		roles:     map[string]RoleRecord{},
		roleKeys:  map[string]string{},
		users:     map[string]UserRecord{},
		userRoles: map[string][]string{},
		sessions:  map[string]*memorySession{},
		lastLogin: map[string]time.Time{},
		now:       time.Now,
	}
}

// SetClock overrides the clock used for session expiry.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// PutUser inserts or replaces a user record directly, roles included.
func (m *MemoryStore) PutUser(user UserRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roleIDs := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		if role.ID == "" {
			role.ID = uuid.NewString()
		}
		m.roles[role.ID] = role
		roleIDs = append(roleIDs, role.ID)
	}
	user.Roles = nil
	m.users[user.ID] = user
	m.userRoles[user.ID] = roleIDs
}

// SetStatus flips a user's status, e.g. to simulate deactivation.
func (m *MemoryStore) SetStatus(userID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.users[userID]; ok {
		user.Status = status
		m.users[userID] = user
	}
}

func (m *MemoryStore) FindActiveUserByEmail(_ context.Context, email string) (UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) && user.Active() {
			return m.withRoles(user), nil
		}
	}
	return UserRecord{}, ErrUserNotFound
}

func (m *MemoryStore) UserByID(_ context.Context, userID string) (UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return m.withRoles(user), nil
}

func (m *MemoryStore) withRoles(user UserRecord) UserRecord {
	for _, id := range m.userRoles[user.ID] {
		role := m.roles[id]
		role.Permissions = slices.Clone(role.Permissions)
		user.Roles = append(user.Roles, role)
	}
	slices.SortFunc(user.Roles, func(a, b RoleRecord) int { return strings.Compare(a.Name, b.Name) })
	return user
}

func (m *MemoryStore) CreateSession(_ context.Context, userID, sessionHash string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionHash] = &memorySession{userID: userID, expiresAt: expires}
	return nil
}

func (m *MemoryStore) SessionValid(_ context.Context, userID, sessionHash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[sessionHash]
	if !ok || sess.userID != userID || !sess.revokedAt.IsZero() {
		return false, nil
	}
	return m.now().Before(sess.expiresAt), nil
}

func (m *MemoryStore) ExtendSession(_ context.Context, userID, sessionHash string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionHash]
	if !ok || sess.userID != userID || !sess.revokedAt.IsZero() {
		return ErrSessionRevoked
	}
	sess.expiresAt = expires
	return nil
}

func (m *MemoryStore) RevokeSession(_ context.Context, userID, sessionHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[sessionHash]; ok && sess.userID == userID && sess.revokedAt.IsZero() {
		sess.revokedAt = m.now()
	}
	return nil
}

func (m *MemoryStore) PurgeSessions(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for hash, sess := range m.sessions {
		revoked := !sess.revokedAt.IsZero() && sess.revokedAt.Before(cutoff)
		if revoked || sess.expiresAt.Before(cutoff) {
			delete(m.sessions, hash)
			n++
		}
	}
	return n, nil
}

// SessionCount reports how many session rows are held, revoked or not.
func (m *MemoryStore) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) UpdateLastLogin(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLogin[userID] = m.now()
	return nil
}

// LastLogin reports when userID last logged in.
func (m *MemoryStore) LastLogin(userID string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.lastLogin[userID]
	return at, ok
}

func (m *MemoryStore) EnsureCompany(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.companies[name]; ok {
		return id, nil
	}
	id := uuid.NewString()
	m.companies[name] = id
	return id, nil
}

func (m *MemoryStore) EnsureRole(_ context.Context, companyID string, def RoleDefinition) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := companyID + "/" + def.Name
	id, ok := m.roleKeys[key]
	if !ok {
		id = uuid.NewString()
		m.roleKeys[key] = id
	}
	m.roles[id] = RoleRecord{
		ID:          id,
		Name:        def.Name,
		DisplayName: def.DisplayName,
		Module:      def.Module,
		Permissions: slices.Clone(def.Permissions),
	}
	return id, nil
}

func (m *MemoryStore) EnsureUser(_ context.Context, user NewUser) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return id, nil
		}
	}
	id := uuid.NewString()
	m.users[id] = UserRecord{
		ID:           id,
		CompanyID:    user.CompanyID,
		DisplayName:  user.DisplayName,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Status:       UserStatusActive,
		IsSuperAdmin: user.IsSuperAdmin,
	}
	m.userRoles[id] = slices.Clone(user.RoleIDs)
	return id, nil
}
