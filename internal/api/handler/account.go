package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/homecinema/homecinema/internal/api/middleware"
	"github.com/homecinema/homecinema/internal/api/response"
	"github.com/homecinema/homecinema/internal/api/validation"
	"github.com/homecinema/homecinema/internal/membership"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool `json:"success"`
}

type registerResponse struct {
	Success bool         `json:"success"`
	User    userResponse `json:"user"`
}

// AccountHandler serves the public login and self-registration endpoints.
type AccountHandler struct {
	svc          MembershipService
	defaultRoles []int
}

// NewAccountHandler creates an AccountHandler that grants defaultRoles to
// every self-registered user.
func NewAccountHandler(svc MembershipService, defaultRoles []int) *AccountHandler {
	return &AccountHandler{svc: svc, defaultRoles: defaultRoles}
}

// Authenticate handles POST /api/account/authenticate. The answer is a bare
// success flag; a failed attempt never says which part was wrong.
func (h *AccountHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req loginRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}

	if req.Username == "" || req.Password == "" {
		response.Success(w, http.StatusOK, loginResponse{Success: false}, requestID)
		return
	}

	ok, err := h.svc.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		slog.Error("failed to authenticate", "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to authenticate", requestID)
		return
	}

	response.Success(w, http.StatusOK, loginResponse{Success: ok}, requestID)
}

// Register handles POST /api/account/register.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req registerRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}

	fieldErrors := validation.ValidateRegisterRequest(validation.RegisterRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return
	}

	u, err := h.svc.CreateUser(r.Context(), req.Username, strings.TrimSpace(req.Email), req.Password, h.defaultRoles)
	if err != nil {
		writeCreateUserErr(w, err, requestID)
		return
	}

	response.Success(w, http.StatusCreated, registerResponse{Success: true, User: toUserResponse(u)}, requestID)
}

type roleAssignmentDetails struct {
	UserID int64 `json:"userId"`
	RoleID int   `json:"roleId"`
}

// writeCreateUserErr maps CreateUser failures shared by registration and
// the admin create endpoint.
func writeCreateUserErr(w http.ResponseWriter, err error, requestID string) {
	var assignErr *membership.RoleAssignmentError
	switch {
	case errors.Is(err, membership.ErrDuplicateUsername):
		response.Err(w, http.StatusConflict, "DUPLICATE_USERNAME", "Username is already in use", requestID)
	case errors.As(err, &assignErr) && errors.Is(err, membership.ErrRoleNotFound):
		response.ErrWithDetails(w, http.StatusNotFound, "NOT_FOUND", "Role not found",
			roleAssignmentDetails{UserID: assignErr.UserID, RoleID: assignErr.RoleID}, requestID)
	default:
		slog.Error("failed to create user", "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create user", requestID)
	}
}
