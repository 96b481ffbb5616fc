package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"

	"sigs.k8s.io/yaml"

	"github.com/homecinema/homecinema/internal/api/middleware"
	"github.com/homecinema/homecinema/internal/api/response"
)

type openAPIDoc struct {
	json []byte
	etag string
	err  error
}

// OpenAPIHandler serves the embedded YAML document as JSON.
type OpenAPIHandler struct {
	doc func() openAPIDoc
}

// NewOpenAPIHandler converts yamlSpec on first use and caches the result
// together with a strong ETag.
func NewOpenAPIHandler(yamlSpec []byte) *OpenAPIHandler {
	return &OpenAPIHandler{
		doc: sync.OnceValue(func() openAPIDoc {
			out, err := yaml.YAMLToJSON(yamlSpec)
			if err != nil {
				return openAPIDoc{err: err}
			}
			sum := sha256.Sum256(out)
			return openAPIDoc{json: out, etag: `"` + hex.EncodeToString(sum[:8]) + `"`}
		}),
	}
}

// ServeHTTP writes the JSON document, or 304 when the client's copy is
// current.
func (h *OpenAPIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	doc := h.doc()
	if doc.err != nil {
		slog.Error("failed to convert OpenAPI spec to JSON", "error", doc.err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to convert OpenAPI spec", middleware.GetRequestID(r.Context()))
		return
	}

	w.Header().Set("ETag", doc.etag)
	if r.Header.Get("If-None-Match") == doc.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.json); err != nil {
		slog.Error("failed to write OpenAPI spec response", "error", err)
	}
}
