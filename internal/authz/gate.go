// Package authz decides whether a request may reach an operation, given the
// operation's policy and whatever credentials the request carried.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/homecinema/homecinema/internal/membership"
)

var (
	// ErrUnauthenticated means the request carried no credentials or the
	// credentials did not identify an unlocked user.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrUnauthorized means the principal is valid but holds none of the
	// roles the policy requires.
	ErrUnauthorized = errors.New("insufficient role")
)

// Policy is the access rule attached to an operation.
type Policy struct {
	Public bool
	// Roles, when non-empty, are alternatives: holding any one suffices.
	Roles []string
}

// Public admits every request.
func Public() Policy { return Policy{Public: true} }

// Authenticated admits any validated principal.
func Authenticated() Policy { return Policy{} }

// RequireRoles admits principals holding at least one of roles.
func RequireRoles(roles ...string) Policy { return Policy{Roles: roles} }

// Credentials are the username and password presented with a request.
type Credentials struct {
	Username string
	Password string
}

// Decision is the result of one Authorize call, for metrics.
type Decision string

const (
	DecisionPublic          Decision = "public"
	DecisionAllowed         Decision = "allowed"
	DecisionUnauthenticated Decision = "unauthenticated"
	DecisionUnauthorized    Decision = "unauthorized"
	DecisionError           Decision = "error"
)

// Validator resolves credentials to a principal. *membership.Service
// satisfies it.
type Validator interface {
	ValidateUser(ctx context.Context, username, password string) (*membership.Principal, error)
}

// Recorder receives every decision the gate makes.
type Recorder interface {
	ObserveDecision(d Decision)
}

// Option configures a Gate.
type Option func(*Gate)

// WithRecorder reports decisions to r.
func WithRecorder(r Recorder) Option {
	return func(g *Gate) { g.recorder = r }
}

// Gate evaluates policies. It holds no per-request state.
type Gate struct {
	validator Validator
	recorder  Recorder
}

// NewGate creates a Gate that validates credentials with v.
func NewGate(v Validator, opts ...Option) *Gate {
	g := &Gate{validator: v}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize applies p to creds. A public policy returns (nil, nil) without
// consulting the validator. On success the returned principal is the one
// the operation should run as.
func (g *Gate) Authorize(ctx context.Context, creds *Credentials, p Policy) (*membership.Principal, error) {
	principal, d, err := g.decide(ctx, creds, p)
	g.observe(d)
	return principal, err
}

func (g *Gate) decide(ctx context.Context, creds *Credentials, p Policy) (*membership.Principal, Decision, error) {
	if p.Public {
		return nil, DecisionPublic, nil
	}
	if creds == nil {
		return nil, DecisionUnauthenticated, ErrUnauthenticated
	}

	principal, err := g.validator.ValidateUser(ctx, creds.Username, creds.Password)
	if err != nil {
		return nil, DecisionError, fmt.Errorf("validating credentials: %w", err)
	}
	if !principal.IsAuthenticated() {
		return nil, DecisionUnauthenticated, ErrUnauthenticated
	}

	if len(p.Roles) > 0 && !principal.HasAnyRole(p.Roles...) {
		return nil, DecisionUnauthorized, ErrUnauthorized
	}

	return principal, DecisionAllowed, nil
}

func (g *Gate) observe(d Decision) {
	if g.recorder != nil {
		g.recorder.ObserveDecision(d)
	}
}
