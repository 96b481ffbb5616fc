package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/homecinema/homecinema/internal/api/response"
	"github.com/homecinema/homecinema/internal/membership"
)

const maxJSONBody = 1 << 20

const timeFormat = "2006-01-02T15:04:05Z"

// MembershipService is the membership surface used by the account and user
// handlers. *membership.Service satisfies it.
type MembershipService interface {
	Authenticate(ctx context.Context, username, password string) (bool, error)
	CreateUser(ctx context.Context, username, email, password string, roleIDs []int) (*membership.User, error)
	GetUser(ctx context.Context, id int64) (*membership.User, error)
	GetUserRolesByID(ctx context.Context, id int64) ([]membership.Role, error)
	SetLocked(ctx context.Context, id int64, locked bool) error
	ListRoles(ctx context.Context) ([]membership.Role, error)
}

// decodeJSON reads a size-limited JSON body into dst, writing a 400 and
// returning false when it is not valid JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, requestID string) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Err(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Request body is too large", requestID)
			return false
		}
		response.Err(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", requestID)
		return false
	}
	return true
}

// parseID reads the positive integer {id} URL parameter.
func parseID(w http.ResponseWriter, r *http.Request, requestID string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		response.Err(w, http.StatusBadRequest, "INVALID_ID", "id must be a positive integer", requestID)
		return 0, false
	}
	return id, true
}

type roleResponse struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func toRoleResponses(roles []membership.Role) []roleResponse {
	out := make([]roleResponse, 0, len(roles))
	for _, r := range roles {
		out = append(out, roleResponse{ID: r.ID, Name: r.Name})
	}
	return out
}

// userResponse never carries the salt or the password hash.
type userResponse struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	IsLocked    bool   `json:"isLocked"`
	DateCreated string `json:"dateCreated"`
}

func toUserResponse(u *membership.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		IsLocked:    u.IsLocked,
		DateCreated: u.DateCreated.UTC().Format(timeFormat),
	}
}

func formatDate(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
