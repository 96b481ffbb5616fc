package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RoleAssignmentError reports a failed role phase of CreateUser. The user row
// it refers to has already been committed and remains retrievable.
type RoleAssignmentError struct {
	UserID int64
	RoleID int
	Err    error
}

func (e *RoleAssignmentError) Error() string {
	return fmt.Sprintf("assigning role %d to user %d: %v", e.RoleID, e.UserID, e.Err)
}

func (e *RoleAssignmentError) Unwrap() error { return e.Err }

// Recorder receives the internal outcome of every credential validation.
type Recorder interface {
	ObserveValidation(outcome Outcome)
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder reports validation outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithClock overrides the time source used for DateCreated.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service validates credentials, registers users and resolves their roles.
// It keeps no cache: every call reads the store.
type Service struct {
	store    Store
	hasher   *Hasher
	recorder Recorder
	now      func() time.Time

	// hashed for unknown usernames so that a miss costs the same as a hit
	dummySalt string
}

// NewService creates a new membership Service.
func NewService(store Store, hasher *Hasher, opts ...Option) *Service {
	s := &Service{
		store:     store,
		hasher:    hasher,
		now:       time.Now,
		dummySalt: hasher.CreateSalt(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateUser checks username and password and returns the resulting
// principal. Unknown user, wrong password and locked account all return the
// same empty principal with a nil error; only store failures are errors.
func (s *Service) ValidateUser(ctx context.Context, username, password string) (*Principal, error) {
	outcome, user, err := s.check(ctx, username, password)
	if err != nil {
		return nil, err
	}

	s.observe(outcome)
	if outcome != OutcomeAuthenticated {
		slog.Debug("credential validation denied", "username", username, "outcome", string(outcome))
		return &Principal{}, nil
	}

	roles, err := s.store.Roles().ListForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("resolving roles for user %d: %w", user.ID, err)
	}

	return &Principal{User: user, Roles: roleNames(roles)}, nil
}

// Authenticate reports whether the credentials identify an unlocked user.
func (s *Service) Authenticate(ctx context.Context, username, password string) (bool, error) {
	p, err := s.ValidateUser(ctx, username, password)
	if err != nil {
		return false, err
	}
	return p.IsAuthenticated(), nil
}

func (s *Service) check(ctx context.Context, username, password string) (Outcome, *User, error) {
	user, err := s.store.Users().GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.hasher.Hash(password, s.dummySalt)
			return OutcomeUnknownUser, nil, nil
		}
		return "", nil, fmt.Errorf("looking up user: %w", err)
	}

	if !s.hasher.Verify(password, user.Salt, user.HashedPassword) {
		return OutcomeBadPassword, nil, nil
	}

	// Locking wins over a correct password.
	if user.IsLocked {
		return OutcomeLocked, nil, nil
	}

	return OutcomeAuthenticated, user, nil
}

// CreateUser registers a new user and assigns roleIDs to it.
//
// The user row is committed before roles are assigned. The role phase runs
// in a single transaction: if any role fails, no association is kept and a
// *RoleAssignmentError wrapping the cause is returned.
func (s *Service) CreateUser(ctx context.Context, username, email, password string, roleIDs []int) (*User, error) {
	if _, err := s.store.Users().GetByUsername(ctx, username); err == nil {
		return nil, ErrDuplicateUsername
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("checking username: %w", err)
	}

	salt := s.hasher.CreateSalt()
	u := &User{
		Username:       username,
		Email:          email,
		Salt:           salt,
		HashedPassword: s.hasher.Hash(password, salt),
		IsLocked:       false,
		DateCreated:    s.now().UTC(),
	}

	// The unique constraint is the authority; a racing insert surfaces here
	// as ErrDuplicateUsername just like the pre-check.
	if err := s.store.Users().Create(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicateUsername) {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	ids := dedupe(roleIDs)
	if len(ids) == 0 {
		return u, nil
	}

	var failedRole int
	err := s.store.InTx(ctx, func(tx Store) error {
		for _, id := range ids {
			failedRole = id
			if _, err := tx.Roles().GetByID(ctx, id); err != nil {
				return err
			}
			if err := tx.Roles().AddUserRole(ctx, u.ID, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		slog.Warn("user created without roles", "userId", u.ID, "roleId", failedRole, "error", err)
		return nil, &RoleAssignmentError{UserID: u.ID, RoleID: failedRole, Err: err}
	}

	return u, nil
}

// GetUser returns the user with the given identifier or ErrUserNotFound.
func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.store.Users().GetByID(ctx, id)
}

// GetUserRoles returns the distinct roles held by username. An unknown
// username yields an empty slice and no error.
func (s *Service) GetUserRoles(ctx context.Context, username string) ([]Role, error) {
	user, err := s.store.Users().GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return []Role{}, nil
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	return s.rolesFor(ctx, user.ID)
}

// GetUserRolesByID is GetUserRoles keyed by user identifier. Unlike the
// username variant it reports ErrUserNotFound for an unknown user.
func (s *Service) GetUserRolesByID(ctx context.Context, id int64) ([]Role, error) {
	if _, err := s.store.Users().GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.rolesFor(ctx, id)
}

// SetLocked locks or unlocks a user account.
func (s *Service) SetLocked(ctx context.Context, id int64, locked bool) error {
	if err := s.store.Users().SetLocked(ctx, id, locked); err != nil {
		return err
	}
	slog.Info("user lock changed", "userId", id, "locked", locked)
	return nil
}

// ListRoles returns every role.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.Roles().List(ctx)
}

func (s *Service) rolesFor(ctx context.Context, userID int64) ([]Role, error) {
	roles, err := s.store.Roles().ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing roles for user %d: %w", userID, err)
	}

	seen := make(map[int]bool, len(roles))
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out, nil
}

func (s *Service) observe(o Outcome) {
	if s.recorder != nil {
		s.recorder.ObserveValidation(o)
	}
}

func roleNames(roles []Role) []string {
	seen := make(map[string]bool, len(roles))
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		if seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		names = append(names, r.Name)
	}
	return names
}

func dedupe(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
