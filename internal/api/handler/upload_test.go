package handler_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homecinema/homecinema/internal/api/handler"
	"github.com/homecinema/homecinema/internal/catalog"
	"github.com/homecinema/homecinema/internal/media"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

func uploadRequest(t *testing.T, field string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, "poster.bin")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/movies/4/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "4")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	return req, httptest.NewRecorder()
}

func existingMovieRepo(setImage func(context.Context, int64, string) error) *mockCatalog {
	return &mockCatalog{
		getByIDFn:  func(_ context.Context, id int64) (*catalog.Movie, error) { return sampleMovie(id), nil },
		setImageFn: setImage,
	}
}

func TestUpload_Success(t *testing.T) {
	t.Parallel()
	var savedKey string
	repo := existingMovieRepo(func(_ context.Context, id int64, image string) error {
		assert.Equal(t, int64(4), id)
		savedKey = image
		return nil
	})
	images := &mockImages{
		putFn: func(_ context.Context, movieID int64, contentType string, body io.Reader, size int64) (string, error) {
			assert.Equal(t, "image/png", contentType)
			assert.Equal(t, int64(len(pngBytes)), size)
			got, err := io.ReadAll(body)
			require.NoError(t, err)
			assert.Equal(t, pngBytes, got, "body must be rewound after sniffing")
			return media.ImageKey(movieID, contentType)
		},
	}
	h := handler.NewUploadHandler(repo, images, 1<<20)
	req, w := uploadRequest(t, "file", pngBytes)

	h.Upload(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := parseEnvelope(t, w)["data"].(map[string]any)
	assert.Equal(t, savedKey, data["image"])
	assert.Regexp(t, `^movies/4/[0-9a-f-]{36}\.png$`, savedKey)
	assert.Equal(t, float64(len(pngBytes)), data["size"])
}

func TestUpload_Errors(t *testing.T) {
	t.Parallel()

	okPut := func(context.Context, int64, string, io.Reader, int64) (string, error) { return "k", nil }

	tests := []struct {
		name       string
		repo       *mockCatalog
		put        func(context.Context, int64, string, io.Reader, int64) (string, error)
		field      string
		content    []byte
		maxBytes   int64
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown movie",
			repo:       &mockCatalog{},
			put:        okPut,
			field:      "file",
			content:    pngBytes,
			maxBytes:   1 << 20,
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "missing file field",
			repo:       existingMovieRepo(nil),
			put:        okPut,
			field:      "upload",
			content:    pngBytes,
			maxBytes:   1 << 20,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_UPLOAD",
		},
		{
			name:       "too large",
			repo:       existingMovieRepo(nil),
			put:        okPut,
			field:      "file",
			content:    pngBytes,
			maxBytes:   16,
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   "BODY_TOO_LARGE",
		},
		{
			name: "not an image",
			repo: existingMovieRepo(nil),
			put: func(context.Context, int64, string, io.Reader, int64) (string, error) {
				return "", media.ErrUnsupportedType
			},
			field:      "file",
			content:    []byte("just some text"),
			maxBytes:   1 << 20,
			wantStatus: http.StatusUnsupportedMediaType,
			wantCode:   "UNSUPPORTED_MEDIA_TYPE",
		},
		{
			name: "storage failure",
			repo: existingMovieRepo(nil),
			put: func(context.Context, int64, string, io.Reader, int64) (string, error) {
				return "", errors.New("connection reset")
			},
			field:      "file",
			content:    pngBytes,
			maxBytes:   1 << 20,
			wantStatus: http.StatusBadGateway,
			wantCode:   "STORAGE_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewUploadHandler(tt.repo, &mockImages{putFn: tt.put}, tt.maxBytes)
			req, w := uploadRequest(t, tt.field, tt.content)

			h.Upload(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, w))
		})
	}
}
