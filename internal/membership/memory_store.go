package membership

import (
	"context"
	"maps"
	"sort"
	"sync"
)

// DefaultRoles mirrors the reference data seeded by the migrations.
var DefaultRoles = []Role{
	{ID: 1, Name: RoleAdmin},
	{ID: 2, Name: RoleMember},
}

type memoryState struct {
	users      map[int64]User
	byUsername map[string]int64
	roles      map[int]Role
	userRoles  map[UserRole]struct{}
	nextUserID int64
}

func (s *memoryState) clone() *memoryState {
	return &memoryState{
		users:      maps.Clone(s.users),
		byUsername: maps.Clone(s.byUsername),
		roles:      maps.Clone(s.roles),
		userRoles:  maps.Clone(s.userRoles),
		nextUserID: s.nextUserID,
	}
}

// MemoryStore is an in-process Store that enforces the same uniqueness rules
// as the database schema. Transactions run on a copy of the state that
// replaces the original on commit; they are serialized with every other call.
type MemoryStore struct {
	mu    *sync.Mutex
	state *memoryState
	inTx  bool
}

// NewMemoryStore creates an empty store holding roles, or DefaultRoles when
// none are given.
func NewMemoryStore(roles ...Role) *MemoryStore {
	if len(roles) == 0 {
		roles = DefaultRoles
	}
	st := &memoryState{
		users:      make(map[int64]User),
		byUsername: make(map[string]int64),
		roles:      make(map[int]Role, len(roles)),
		userRoles:  make(map[UserRole]struct{}),
	}
	for _, r := range roles {
		st.roles[r.ID] = r
	}
	return &MemoryStore{mu: &sync.Mutex{}, state: st}
}

func (s *MemoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// Users returns the user repository view of the store.
func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }

// Roles returns the role repository view of the store.
func (s *MemoryStore) Roles() RoleRepository { return memoryRoles{s} }

// InTx runs fn against a copy of the store and keeps the copy only if fn
// succeeds.
func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	unlock := s.lock()
	defer unlock()

	tx := &MemoryStore{mu: s.mu, state: s.state.clone(), inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	*s.state = *tx.state
	return nil
}

// UserCount reports how many users are stored.
func (s *MemoryStore) UserCount() int {
	defer s.lock()()
	return len(s.state.users)
}

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) Create(_ context.Context, u *User) error {
	defer m.s.lock()()
	st := m.s.state

	if _, taken := st.byUsername[u.Username]; taken {
		return ErrDuplicateUsername
	}

	st.nextUserID++
	u.ID = st.nextUserID
	st.users[u.ID] = *u
	st.byUsername[u.Username] = u.ID
	return nil
}

func (m memoryUsers) GetByID(_ context.Context, id int64) (*User, error) {
	defer m.s.lock()()

	u, ok := m.s.state.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m memoryUsers) GetByUsername(_ context.Context, username string) (*User, error) {
	defer m.s.lock()()
	st := m.s.state

	id, ok := st.byUsername[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := st.users[id]
	return &u, nil
}

func (m memoryUsers) SetLocked(_ context.Context, id int64, locked bool) error {
	defer m.s.lock()()
	st := m.s.state

	u, ok := st.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.IsLocked = locked
	st.users[id] = u
	return nil
}

type memoryRoles struct{ s *MemoryStore }

func (m memoryRoles) GetByID(_ context.Context, id int) (*Role, error) {
	defer m.s.lock()()

	r, ok := m.s.state.roles[id]
	if !ok {
		return nil, ErrRoleNotFound
	}
	return &r, nil
}

func (m memoryRoles) List(_ context.Context) ([]Role, error) {
	defer m.s.lock()()

	roles := make([]Role, 0, len(m.s.state.roles))
	for _, r := range m.s.state.roles {
		roles = append(roles, r)
	}
	sortRoles(roles)
	return roles, nil
}

func (m memoryRoles) ListForUser(_ context.Context, userID int64) ([]Role, error) {
	defer m.s.lock()()
	st := m.s.state

	roles := []Role{}
	for ur := range st.userRoles {
		if ur.UserID == userID {
			roles = append(roles, st.roles[ur.RoleID])
		}
	}
	sortRoles(roles)
	return roles, nil
}

func (m memoryRoles) AddUserRole(_ context.Context, userID int64, roleID int) error {
	defer m.s.lock()()
	st := m.s.state

	if _, ok := st.users[userID]; !ok {
		return ErrUserNotFound
	}
	if _, ok := st.roles[roleID]; !ok {
		return ErrRoleNotFound
	}
	key := UserRole{UserID: userID, RoleID: roleID}
	if _, ok := st.userRoles[key]; ok {
		return ErrDuplicateUserRole
	}
	st.userRoles[key] = struct{}{}
	return nil
}

func sortRoles(roles []Role) {
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
}
