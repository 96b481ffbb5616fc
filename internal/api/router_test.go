package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"

	specpkg "github.com/homecinema/homecinema/api"
	"github.com/homecinema/homecinema/internal/api"
	"github.com/homecinema/homecinema/internal/authz"
	"github.com/homecinema/homecinema/internal/catalog"
	"github.com/homecinema/homecinema/internal/membership"
	"github.com/homecinema/homecinema/internal/metrics"
	"github.com/homecinema/homecinema/internal/ratelimit"
)

// --- Noop implementations to satisfy RouterDeps interfaces ---

type noopPinger struct{}

func (noopPinger) Ping(context.Context) error { return nil }

type noopCatalog struct{}

func (noopCatalog) Latest(context.Context, int) ([]catalog.Movie, error) { return []catalog.Movie{}, nil }
func (noopCatalog) GetByID(context.Context, int64) (*catalog.Movie, error) {
	return nil, catalog.ErrMovieNotFound
}
func (noopCatalog) List(_ context.Context, f catalog.ListFilter) (*catalog.ListResult, error) {
	return &catalog.ListResult{Movies: []catalog.Movie{}, Page: f.Page, PageSize: f.PageSize}, nil
}
func (noopCatalog) Create(context.Context, *catalog.Movie, int) ([]catalog.Stock, error) {
	return nil, nil
}
func (noopCatalog) Update(context.Context, *catalog.Movie) (*catalog.Movie, error) {
	return nil, catalog.ErrMovieNotFound
}
func (noopCatalog) SetImage(context.Context, int64, string) error { return nil }
func (noopCatalog) ListGenres(context.Context) ([]catalog.Genre, error) {
	return []catalog.Genre{{ID: 1, Name: "Action"}}, nil
}

type noopImages struct{}

func (noopImages) PutImage(context.Context, int64, string, io.Reader, int64) (string, error) {
	return "", nil
}

// --- Fixture ---

type fixture struct {
	router  http.Handler
	svc     *membership.Service
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, limiter ratelimit.Limiter) *fixture {
	t.Helper()

	m, err := metrics.New(prometheus.NewRegistry(), nil)
	require.NoError(t, err)

	hasher := membership.NewHasher(membership.HasherParams{Time: 1, MemoryKiB: 1024, Threads: 1})
	svc := membership.NewService(membership.NewMemoryStore(), hasher, membership.WithRecorder(m))
	gate := authz.NewGate(svc, authz.WithRecorder(m))

	router := api.NewRouter(api.RouterDeps{
		Membership:        svc,
		Gate:              gate,
		Catalog:           noopCatalog{},
		Images:            noopImages{},
		DBPinger:          noopPinger{},
		Metrics:           m,
		LoginLimiter:      limiter,
		RegistrationRoles: []int{2},
		MaxUploadBytes:    1 << 20,
		Version:           "test",
		OpenAPISpec:       specpkg.OpenAPISpec,
	})

	return &fixture{router: router, svc: svc, metrics: m}
}

func (f *fixture) do(t *testing.T, method, path string, body any, user, pass string) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Error.Code
}

// --- Tests ---

func TestRouter_AdminRoutesRequireAdmin(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.CreateUser(ctx, "alice", "a@x.com", "Secr3t!", []int{1, 2})
	require.NoError(t, err)
	_, err = f.svc.CreateUser(ctx, "bob", "b@x.com", "hunter22", []int{2})
	require.NoError(t, err)

	t.Run("admin is allowed", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/roles", nil, "alice", "Secr3t!")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("no credentials", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/roles", nil, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, `Basic realm="homecinema", charset="UTF-8"`, w.Header().Get("WWW-Authenticate"))
		assert.Equal(t, "UNAUTHENTICATED", errorCode(t, w))
	})

	t.Run("wrong password", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/roles", nil, "alice", "wrong")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("member is forbidden", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/users/1", nil, "bob", "hunter22")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "FORBIDDEN", errorCode(t, w))
	})

	t.Run("locked admin is rejected", func(t *testing.T) {
		_, err := f.svc.CreateUser(ctx, "carol", "c@x.com", "carolpw", []int{1})
		require.NoError(t, err)
		w := f.do(t, http.MethodPut, "/api/users/3/lock", map[string]bool{"locked": true}, "alice", "Secr3t!")
		require.Equal(t, http.StatusOK, w.Code)

		w = f.do(t, http.MethodGet, "/api/roles", nil, "carol", "carolpw")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRouter_PublicRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	for _, path := range []string{"/health", "/api/genres", "/api/movies", "/api/movies/latest", "/openapi.json", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			w := f.do(t, http.MethodGet, path, nil, "", "")
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}

	t.Run("movie details are admin only", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/movies/1", nil, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRouter_RegisterThenAuthenticate(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPost, "/api/account/register",
		map[string]string{"username": "dave", "email": "d@x.com", "password": "davepass"}, "", "")
	require.Equal(t, http.StatusCreated, w.Code)

	roles, err := f.svc.GetUserRoles(context.Background(), "dave")
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, membership.RoleMember, roles[0].Name)

	for _, tc := range []struct {
		password string
		want     bool
	}{{"davepass", true}, {"nope", false}} {
		w := f.do(t, http.MethodPost, "/api/account/authenticate",
			map[string]string{"username": "dave", "password": tc.password}, "", "")
		require.Equal(t, http.StatusOK, w.Code)
		var env struct {
			Data struct {
				Success bool `json:"success"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
		assert.Equal(t, tc.want, env.Data.Success, "password %q", tc.password)
	}

	w = f.do(t, http.MethodPost, "/api/account/register",
		map[string]string{"username": "dave", "email": "d2@x.com", "password": "davepass"}, "", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouter_LoginIsRateLimited(t *testing.T) {
	t.Parallel()
	f := newFixture(t, ratelimit.NewMemoryLimiter(2, time.Minute))
	body := map[string]string{"username": "eve", "password": "guess"}

	for i := 0; i < 2; i++ {
		w := f.do(t, http.MethodPost, "/api/account/authenticate", body, "", "")
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := f.do(t, http.MethodPost, "/api/account/authenticate", body, "", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", errorCode(t, w))

	scrape := f.do(t, http.MethodGet, "/metrics", nil, "", "").Body.String()
	assert.Contains(t, scrape, `homecinema_rate_limited_total{route="/api/account/authenticate"} 1`)
	assert.Contains(t, scrape, `homecinema_credential_validations_total{outcome="unknown_user"} 2`)

	// registration shares no window with login
	w = f.do(t, http.MethodPost, "/api/account/register",
		map[string]string{"username": "eve", "email": "e@x.com", "password": "evepass"}, "", "")
	assert.Equal(t, http.StatusCreated, w.Code)
}

// --- OpenAPI coverage ---

// openAPISpec is the minimal structure needed to extract paths from the spec.
type openAPISpec struct {
	Paths map[string]map[string]any `json:"paths"`
}

type route struct {
	method string
	path   string
}

func TestOpenAPISpec_RoutesCoverAllPaths(t *testing.T) {
	t.Parallel()

	specJSON, err := yaml.YAMLToJSON(specpkg.OpenAPISpec)
	require.NoError(t, err, "embedded spec must convert to JSON")

	var spec openAPISpec
	require.NoError(t, json.Unmarshal(specJSON, &spec), "spec JSON must unmarshal")

	var specRoutes []route
	for path, methods := range spec.Paths {
		for method := range methods {
			specRoutes = append(specRoutes, route{method: strings.ToUpper(method), path: path})
		}
	}
	sortRoutes(specRoutes)
	require.NotEmpty(t, specRoutes, "spec should define at least one route")

	f := newFixture(t, ratelimit.NewMemoryLimiter(10, time.Minute))
	var chiRoutes []route
	err = chi.Walk(f.router.(*chi.Mux), func(method, routePath string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		normalized := strings.TrimRight(routePath, "/")
		if normalized == "" {
			normalized = "/"
		}
		chiRoutes = append(chiRoutes, route{method: method, path: normalized})
		return nil
	})
	require.NoError(t, err, "chi.Walk should not error")
	sortRoutes(chiRoutes)

	for _, sr := range specRoutes {
		t.Run(fmt.Sprintf("spec_%s_%s_has_Chi_route", sr.method, sr.path), func(t *testing.T) {
			assert.Contains(t, chiRoutes, sr, "spec route %s %s not found in Chi router", sr.method, sr.path)
		})
	}
	for _, cr := range chiRoutes {
		t.Run(fmt.Sprintf("Chi_%s_%s_has_spec_path", cr.method, cr.path), func(t *testing.T) {
			assert.Contains(t, specRoutes, cr, "Chi route %s %s not found in OpenAPI spec", cr.method, cr.path)
		})
	}
}

func sortRoutes(routes []route) {
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].path == routes[j].path {
			return routes[i].method < routes[j].method
		}
		return routes[i].path < routes[j].path
	})
}
