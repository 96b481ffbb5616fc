package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/homecinema/homecinema/internal/api/middleware"
	"github.com/homecinema/homecinema/internal/api/response"
	"github.com/homecinema/homecinema/internal/catalog"
	"github.com/homecinema/homecinema/internal/media"
)

const imageField = "file"

type uploadResponse struct {
	MovieID int64  `json:"movieId"`
	Image   string `json:"image"`
	Size    int64  `json:"size"`
}

// UploadHandler stores movie images.
type UploadHandler struct {
	repo     catalog.Repository
	images   media.ImageStore
	maxBytes int64
}

// NewUploadHandler creates an UploadHandler accepting files up to maxBytes.
func NewUploadHandler(repo catalog.Repository, images media.ImageStore, maxBytes int64) *UploadHandler {
	return &UploadHandler{repo: repo, images: images, maxBytes: maxBytes}
}

// Upload handles POST /api/movies/{id}/image with a multipart "file" part.
// The content type is sniffed from the data, not taken from the client.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, ok := parseID(w, r, requestID)
	if !ok {
		return
	}

	if _, err := h.repo.GetByID(r.Context(), id); err != nil {
		writeMovieErr(w, err, "Failed to get movie", requestID)
		return
	}

	// Leave room for the multipart envelope around the file.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+64<<10)
	file, header, err := r.FormFile(imageField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Err(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Image is too large", requestID)
			return
		}
		response.Err(w, http.StatusBadRequest, "INVALID_UPLOAD", "A multipart \"file\" field is required", requestID)
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		response.Err(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Image is too large", requestID)
		return
	}

	sniff := make([]byte, 512)
	n, err := io.ReadFull(file, sniff)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		response.Err(w, http.StatusBadRequest, "INVALID_UPLOAD", "Failed to read upload", requestID)
		return
	}
	contentType := http.DetectContentType(sniff[:n])
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		slog.Error("failed to rewind upload", "error", err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store image", requestID)
		return
	}

	key, err := h.images.PutImage(r.Context(), id, contentType, file, header.Size)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedType) {
			response.Err(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "File must be a JPEG, PNG, GIF or WebP image", requestID)
			return
		}
		slog.Error("failed to store image", "error", err, "movieId", id)
		response.Err(w, http.StatusBadGateway, "STORAGE_ERROR", "Failed to store image", requestID)
		return
	}

	if err := h.repo.SetImage(r.Context(), id, key); err != nil {
		writeMovieErr(w, err, "Failed to update movie image", requestID)
		return
	}

	response.Success(w, http.StatusOK, uploadResponse{MovieID: id, Image: key, Size: header.Size}, requestID)
}
