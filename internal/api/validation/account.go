package validation

import (
	"fmt"
	"net/mail"
	"strings"
)

const (
	maxUsername    = 100
	maxEmail       = 200
	minPassword    = 6
	maxPassword    = 128
	maxRolesPerReq = 16
)

// RegisterRequest mirrors the fields needed for registration validation.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

// ValidateRegisterRequest validates a self-registration or admin create
// request. Usernames are case-sensitive and may not contain whitespace.
func ValidateRegisterRequest(req RegisterRequest) []FieldError {
	var errs []FieldError

	n := len(errs)
	errs = required(errs, "username", req.Username, maxUsername)
	if len(errs) == n && hasSpace(req.Username) {
		errs = append(errs, FieldError{Field: "username", Message: "username must not contain whitespace"})
	}

	n = len(errs)
	errs = required(errs, "email", req.Email, maxEmail)
	if len(errs) == n {
		if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != strings.TrimSpace(req.Email) {
			errs = append(errs, FieldError{Field: "email", Message: "email must be a valid address"})
		}
	}

	switch {
	case req.Password == "":
		errs = append(errs, FieldError{Field: "password", Message: "password is required"})
	case len(req.Password) < minPassword:
		errs = append(errs, FieldError{Field: "password", Message: fmt.Sprintf("password must be at least %d characters", minPassword)})
	case len(req.Password) > maxPassword:
		errs = append(errs, FieldError{Field: "password", Message: fmt.Sprintf("password must be at most %d characters", maxPassword)})
	}

	return errs
}

// CreateUserRequest is a registration with explicit role identifiers.
type CreateUserRequest struct {
	RegisterRequest
	RoleIDs []int
}

// ValidateCreateUserRequest validates an administrator's create user request.
func ValidateCreateUserRequest(req CreateUserRequest) []FieldError {
	errs := ValidateRegisterRequest(req.RegisterRequest)

	if len(req.RoleIDs) > maxRolesPerReq {
		errs = append(errs, FieldError{Field: "roleIds", Message: fmt.Sprintf("at most %d roles may be assigned", maxRolesPerReq)})
	}
	for _, id := range req.RoleIDs {
		if id < 1 {
			errs = append(errs, FieldError{Field: "roleIds", Message: "role identifiers must be positive"})
			break
		}
	}

	return errs
}
