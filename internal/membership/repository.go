package membership

import (
	"context"
	"errors"
)

// ErrUserNotFound is returned when a user record is not found.
var ErrUserNotFound = errors.New("user not found")

// ErrDuplicateUsername is returned when a user with the same username already exists.
var ErrDuplicateUsername = errors.New("username is already in use")

// ErrRoleNotFound is returned when a role identifier does not resolve.
var ErrRoleNotFound = errors.New("role not found")

// ErrDuplicateUserRole is returned when a user already holds the role being assigned.
var ErrDuplicateUserRole = errors.New("user already has role")

// UserRepository provides operations on the users table.
type UserRepository interface {
	// Create inserts u and fills its ID. A username that violates the
	// uniqueness constraint yields ErrDuplicateUsername.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	// GetByUsername matches the username exactly (case-sensitive).
	GetByUsername(ctx context.Context, username string) (*User, error)
	SetLocked(ctx context.Context, id int64, locked bool) error
}

// RoleRepository provides operations on roles and user-role associations.
type RoleRepository interface {
	GetByID(ctx context.Context, id int) (*Role, error)
	List(ctx context.Context) ([]Role, error)
	// ListForUser returns the distinct roles assigned to a user.
	ListForUser(ctx context.Context, userID int64) ([]Role, error)
	// AddUserRole associates a user with a role. An unknown role yields
	// ErrRoleNotFound, an existing pair ErrDuplicateUserRole.
	AddUserRole(ctx context.Context, userID int64, roleID int) error
}

// Store is the credential store the membership service reads and writes.
type Store interface {
	Users() UserRepository
	Roles() RoleRepository
	// InTx runs fn against a transactional view of the store. The work
	// commits when fn returns nil and is discarded otherwise.
	InTx(ctx context.Context, fn func(tx Store) error) error
}
