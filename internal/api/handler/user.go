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

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	RoleIDs  []int  `json:"roleIds"`
}

type lockRequest struct {
	Locked *bool `json:"locked"`
}

type userWithRolesResponse struct {
	userResponse
	Roles []roleResponse `json:"roles"`
}

// UserHandler serves the administrator's user and role endpoints.
type UserHandler struct {
	svc MembershipService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(svc MembershipService) *UserHandler {
	return &UserHandler{svc: svc}
}

// Create handles POST /api/users.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req createUserRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}

	fieldErrors := validation.ValidateCreateUserRequest(validation.CreateUserRequest{
		RegisterRequest: validation.RegisterRequest{
			Username: req.Username,
			Email:    req.Email,
			Password: req.Password,
		},
		RoleIDs: req.RoleIDs,
	})
	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return
	}

	u, err := h.svc.CreateUser(r.Context(), req.Username, strings.TrimSpace(req.Email), req.Password, req.RoleIDs)
	if err != nil {
		writeCreateUserErr(w, err, requestID)
		return
	}

	roles, err := h.svc.GetUserRolesByID(r.Context(), u.ID)
	if err != nil {
		slog.Error("failed to read roles of new user", "error", err, "userId", u.ID)
		roles = []membership.Role{}
	}

	if p := middleware.GetPrincipal(r.Context()); p != nil {
		slog.Info("user created by administrator", "userId", u.ID, "by", p.User.Username)
	}

	response.Success(w, http.StatusCreated, userWithRolesResponse{
		userResponse: toUserResponse(u),
		Roles:        toRoleResponses(roles),
	}, requestID)
}

// GetByID handles GET /api/users/{id}.
func (h *UserHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, ok := parseID(w, r, requestID)
	if !ok {
		return
	}

	u, err := h.svc.GetUser(r.Context(), id)
	if err != nil {
		h.writeLookupErr(w, err, id, requestID)
		return
	}

	response.Success(w, http.StatusOK, toUserResponse(u), requestID)
}

// Roles handles GET /api/users/{id}/roles.
func (h *UserHandler) Roles(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, ok := parseID(w, r, requestID)
	if !ok {
		return
	}

	roles, err := h.svc.GetUserRolesByID(r.Context(), id)
	if err != nil {
		h.writeLookupErr(w, err, id, requestID)
		return
	}

	response.Success(w, http.StatusOK, toRoleResponses(roles), requestID)
}

// SetLocked handles PUT /api/users/{id}/lock.
func (h *UserHandler) SetLocked(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, ok := parseID(w, r, requestID)
	if !ok {
		return
	}

	var req lockRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}
	if req.Locked == nil {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed",
			[]validation.FieldError{{Field: "locked", Message: "locked is required"}}, requestID)
		return
	}

	if err := h.svc.SetLocked(r.Context(), id, *req.Locked); err != nil {
		h.writeLookupErr(w, err, id, requestID)
		return
	}

	u, err := h.svc.GetUser(r.Context(), id)
	if err != nil {
		h.writeLookupErr(w, err, id, requestID)
		return
	}

	response.Success(w, http.StatusOK, toUserResponse(u), requestID)
}

// ListRoles handles GET /api/roles.
func (h *UserHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	roles, err := h.svc.ListRoles(r.Context())
	if err != nil {
		slog.Error("failed to list roles", "error", err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list roles", requestID)
		return
	}

	response.Success(w, http.StatusOK, toRoleResponses(roles), requestID)
}

func (h *UserHandler) writeLookupErr(w http.ResponseWriter, err error, id int64, requestID string) {
	if errors.Is(err, membership.ErrUserNotFound) {
		response.Err(w, http.StatusNotFound, "NOT_FOUND", "User not found", requestID)
		return
	}
	slog.Error("user lookup failed", "error", err, "id", id)
	response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read user", requestID)
}
