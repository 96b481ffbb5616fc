package membership

import (
	"time"
)

// User represents a row in the users table.
type User struct {
	ID             int64
	Username       string
	Email          string
	Salt           string
	HashedPassword string
	IsLocked       bool
	DateCreated    time.Time
}

// Role represents a row in the roles table. Roles are reference data seeded
// by migration.
type Role struct {
	ID   int
	Name string
}

// Well-known role names seeded by the migrations.
const (
	RoleAdmin  = "Admin"
	RoleMember = "Member"
)

// UserRole pairs a user with a role.
type UserRole struct {
	UserID int64
	RoleID int
}

// Principal is the request-scoped result of an authentication attempt. A
// principal with a nil User is the empty result: nobody is authenticated.
type Principal struct {
	User  *User
	Roles []string
}

// IsAuthenticated reports whether the principal carries a validated user.
func (p *Principal) IsAuthenticated() bool {
	return p != nil && p.User != nil
}

// HasAnyRole reports whether the principal holds at least one of roles.
func (p *Principal) HasAnyRole(roles ...string) bool {
	if !p.IsAuthenticated() {
		return false
	}
	for _, held := range p.Roles {
		for _, want := range roles {
			if held == want {
				return true
			}
		}
	}
	return false
}

// Outcome classifies a single ValidateUser call. Callers outside the package
// only ever see authenticated or not; outcomes exist for logs and metrics.
type Outcome string

const (
	OutcomeAuthenticated Outcome = "authenticated"
	OutcomeUnknownUser   Outcome = "unknown_user"
	OutcomeBadPassword   Outcome = "bad_password"
	OutcomeLocked        Outcome = "locked"
)
