package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homecinema/homecinema/internal/catalog"
	"github.com/homecinema/homecinema/internal/membership"
)

// --- Mock membership service ---

type mockMembership struct {
	authenticateFn     func(ctx context.Context, username, password string) (bool, error)
	createUserFn       func(ctx context.Context, username, email, password string, roleIDs []int) (*membership.User, error)
	getUserFn          func(ctx context.Context, id int64) (*membership.User, error)
	getUserRolesByIDFn func(ctx context.Context, id int64) ([]membership.Role, error)
	setLockedFn        func(ctx context.Context, id int64, locked bool) error
	listRolesFn        func(ctx context.Context) ([]membership.Role, error)
}

func (m *mockMembership) Authenticate(ctx context.Context, username, password string) (bool, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, username, password)
	}
	return false, nil
}

func (m *mockMembership) CreateUser(ctx context.Context, username, email, password string, roleIDs []int) (*membership.User, error) {
	if m.createUserFn != nil {
		return m.createUserFn(ctx, username, email, password, roleIDs)
	}
	return sampleUser(1, username), nil
}

func (m *mockMembership) GetUser(ctx context.Context, id int64) (*membership.User, error) {
	if m.getUserFn != nil {
		return m.getUserFn(ctx, id)
	}
	return nil, membership.ErrUserNotFound
}

func (m *mockMembership) GetUserRolesByID(ctx context.Context, id int64) ([]membership.Role, error) {
	if m.getUserRolesByIDFn != nil {
		return m.getUserRolesByIDFn(ctx, id)
	}
	return []membership.Role{}, nil
}

func (m *mockMembership) SetLocked(ctx context.Context, id int64, locked bool) error {
	if m.setLockedFn != nil {
		return m.setLockedFn(ctx, id, locked)
	}
	return nil
}

func (m *mockMembership) ListRoles(ctx context.Context) ([]membership.Role, error) {
	if m.listRolesFn != nil {
		return m.listRolesFn(ctx)
	}
	return membership.DefaultRoles, nil
}

// --- Mock catalog repository ---

type mockCatalog struct {
	latestFn     func(ctx context.Context, n int) ([]catalog.Movie, error)
	getByIDFn    func(ctx context.Context, id int64) (*catalog.Movie, error)
	listFn       func(ctx context.Context, f catalog.ListFilter) (*catalog.ListResult, error)
	createFn     func(ctx context.Context, m *catalog.Movie, stocks int) ([]catalog.Stock, error)
	updateFn     func(ctx context.Context, m *catalog.Movie) (*catalog.Movie, error)
	setImageFn   func(ctx context.Context, id int64, image string) error
	listGenresFn func(ctx context.Context) ([]catalog.Genre, error)
}

func (m *mockCatalog) Latest(ctx context.Context, n int) ([]catalog.Movie, error) {
	if m.latestFn != nil {
		return m.latestFn(ctx, n)
	}
	return []catalog.Movie{}, nil
}

func (m *mockCatalog) GetByID(ctx context.Context, id int64) (*catalog.Movie, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, catalog.ErrMovieNotFound
}

func (m *mockCatalog) List(ctx context.Context, f catalog.ListFilter) (*catalog.ListResult, error) {
	if m.listFn != nil {
		return m.listFn(ctx, f)
	}
	return &catalog.ListResult{Movies: []catalog.Movie{}, Page: f.Page, PageSize: f.PageSize}, nil
}

func (m *mockCatalog) Create(ctx context.Context, mv *catalog.Movie, stocks int) ([]catalog.Stock, error) {
	if m.createFn != nil {
		return m.createFn(ctx, mv, stocks)
	}
	mv.ID = 1
	return make([]catalog.Stock, stocks), nil
}

func (m *mockCatalog) Update(ctx context.Context, mv *catalog.Movie) (*catalog.Movie, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, mv)
	}
	return mv, nil
}

func (m *mockCatalog) SetImage(ctx context.Context, id int64, image string) error {
	if m.setImageFn != nil {
		return m.setImageFn(ctx, id, image)
	}
	return nil
}

func (m *mockCatalog) ListGenres(ctx context.Context) ([]catalog.Genre, error) {
	if m.listGenresFn != nil {
		return m.listGenresFn(ctx)
	}
	return []catalog.Genre{}, nil
}

// --- Mock image store ---

type mockImages struct {
	putFn func(ctx context.Context, movieID int64, contentType string, body io.Reader, size int64) (string, error)
}

func (m *mockImages) PutImage(ctx context.Context, movieID int64, contentType string, body io.Reader, size int64) (string, error) {
	return m.putFn(ctx, movieID, contentType, body, size)
}

// --- Helpers ---

var created = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func sampleUser(id int64, username string) *membership.User {
	return &membership.User{
		ID:             id,
		Username:       username,
		Email:          username + "@x.com",
		Salt:           "c2FsdA==",
		HashedPassword: "aGFzaA==",
		DateCreated:    created,
	}
}

func sampleMovie(id int64) *catalog.Movie {
	return &catalog.Movie{
		ID:              id,
		GenreID:         5,
		Genre:           "Sci-fi",
		Title:           "Alien",
		ReleaseDate:     time.Date(1979, 5, 25, 0, 0, 0, 0, time.UTC),
		Rating:          5,
		TotalStocks:     3,
		AvailableStocks: 1,
	}
}

func jsonBody(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func makeChiRequest(method, path string, body []byte, params map[string]string) (*http.Request, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Content-Type", "application/json")

	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	return req, httptest.NewRecorder()
}

func parseEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "failed to parse response body")
	return env
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	e, ok := parseEnvelope(t, w)["error"].(map[string]any)
	require.True(t, ok, "response has no error object")
	return e["code"].(string)
}

func assertFieldError(t *testing.T, w *httptest.ResponseRecorder, field string) {
	t.Helper()
	e := parseEnvelope(t, w)["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", e["code"])
	details, ok := e["details"].([]any)
	require.True(t, ok, "expected details array")
	for _, d := range details {
		if d.(map[string]any)["field"] == field {
			return
		}
	}
	t.Errorf("expected a field error for %q, got %v", field, details)
}
