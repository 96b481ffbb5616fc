package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/homecinema/homecinema/internal/api/middleware"
	"github.com/homecinema/homecinema/internal/api/response"
	"github.com/homecinema/homecinema/internal/api/validation"
	"github.com/homecinema/homecinema/internal/catalog"
)

type movieRequest struct {
	GenreID        int    `json:"genreId"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Director       string `json:"director"`
	Writer         string `json:"writer"`
	Producer       string `json:"producer"`
	ReleaseDate    string `json:"releaseDate"`
	Rating         int    `json:"rating"`
	TrailerURI     string `json:"trailerUri"`
	NumberOfStocks int    `json:"numberOfStocks"`
}

type movieResponse struct {
	ID              int64  `json:"id"`
	GenreID         int    `json:"genreId"`
	Genre           string `json:"genre"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Image           string `json:"image"`
	Director        string `json:"director"`
	Writer          string `json:"writer"`
	Producer        string `json:"producer"`
	ReleaseDate     string `json:"releaseDate"`
	Rating          int    `json:"rating"`
	TrailerURI      string `json:"trailerUri"`
	IsAvailable     bool   `json:"isAvailable"`
	TotalStocks     int    `json:"totalStocks"`
	AvailableStocks int    `json:"availableStocks"`
}

type genreResponse struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func toMovieResponse(m *catalog.Movie) movieResponse {
	return movieResponse{
		ID:              m.ID,
		GenreID:         m.GenreID,
		Genre:           m.Genre,
		Title:           m.Title,
		Description:     m.Description,
		Image:           m.Image,
		Director:        m.Director,
		Writer:          m.Writer,
		Producer:        m.Producer,
		ReleaseDate:     formatDate(m.ReleaseDate),
		Rating:          m.Rating,
		TrailerURI:      m.TrailerURI,
		IsAvailable:     m.IsAvailable(),
		TotalStocks:     m.TotalStocks,
		AvailableStocks: m.AvailableStocks,
	}
}

func toMovieResponses(movies []catalog.Movie) []movieResponse {
	out := make([]movieResponse, 0, len(movies))
	for i := range movies {
		out = append(out, toMovieResponse(&movies[i]))
	}
	return out
}

// MovieHandler serves the catalog endpoints.
type MovieHandler struct {
	repo catalog.Repository
}

// NewMovieHandler creates a new MovieHandler.
func NewMovieHandler(repo catalog.Repository) *MovieHandler {
	return &MovieHandler{repo: repo}
}

// Latest handles GET /api/movies/latest.
func (h *MovieHandler) Latest(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	movies, err := h.repo.Latest(r.Context(), catalog.LatestCount)
	if err != nil {
		slog.Error("failed to list latest movies", "error", err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list movies", requestID)
		return
	}

	response.Success(w, http.StatusOK, toMovieResponses(movies), requestID)
}

// List handles GET /api/movies?page=&pageSize=&filter=.
func (h *MovieHandler) List(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	q := r.URL.Query()

	filter := catalog.ListFilter{PageSize: catalog.DefaultPageSize, Filter: strings.TrimSpace(q.Get("filter"))}
	var fieldErrors []validation.FieldError

	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 0 {
			fieldErrors = append(fieldErrors, validation.FieldError{Field: "page", Message: "page must be a non-negative integer"})
		}
		filter.Page = page
	}
	if v := q.Get("pageSize"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size < 1 || size > catalog.MaxPageSize {
			fieldErrors = append(fieldErrors, validation.FieldError{Field: "pageSize", Message: "pageSize must be between 1 and 100"})
		}
		filter.PageSize = size
	}
	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid query parameters", fieldErrors, requestID)
		return
	}

	result, err := h.repo.List(r.Context(), filter)
	if err != nil {
		slog.Error("failed to list movies", "error", err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list movies", requestID)
		return
	}

	response.SuccessList(w, toMovieResponses(result.Movies), response.Pagination{
		Total:      result.Total,
		Page:       result.Page,
		Limit:      result.PageSize,
		TotalPages: result.TotalPages,
	}, requestID)
}

// GetByID handles GET /api/movies/{id}.
func (h *MovieHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, ok := parseID(w, r, requestID)
	if !ok {
		return
	}

	m, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeMovieErr(w, err, "Failed to get movie", requestID)
		return
	}

	response.Success(w, http.StatusOK, toMovieResponse(m), requestID)
}

// Create handles POST /api/movies.
func (h *MovieHandler) Create(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	m, stocks, ok := h.readMovie(w, r, true, requestID)
	if !ok {
		return
	}

	if _, err := h.repo.Create(r.Context(), m, stocks); err != nil {
		writeMovieErr(w, err, "Failed to create movie", requestID)
		return
	}

	created, err := h.repo.GetByID(r.Context(), m.ID)
	if err != nil {
		writeMovieErr(w, err, "Failed to read created movie", requestID)
		return
	}

	response.Success(w, http.StatusCreated, toMovieResponse(created), requestID)
}

// Update handles PUT /api/movies/{id}.
func (h *MovieHandler) Update(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, ok := parseID(w, r, requestID)
	if !ok {
		return
	}

	m, _, ok := h.readMovie(w, r, false, requestID)
	if !ok {
		return
	}
	m.ID = id

	updated, err := h.repo.Update(r.Context(), m)
	if err != nil {
		writeMovieErr(w, err, "Failed to update movie", requestID)
		return
	}

	response.Success(w, http.StatusOK, toMovieResponse(updated), requestID)
}

// Genres handles GET /api/genres.
func (h *MovieHandler) Genres(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	genres, err := h.repo.ListGenres(r.Context())
	if err != nil {
		slog.Error("failed to list genres", "error", err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list genres", requestID)
		return
	}

	out := make([]genreResponse, 0, len(genres))
	for _, g := range genres {
		out = append(out, genreResponse{ID: g.ID, Name: g.Name})
	}
	response.Success(w, http.StatusOK, out, requestID)
}

func (h *MovieHandler) readMovie(w http.ResponseWriter, r *http.Request, create bool, requestID string) (*catalog.Movie, int, bool) {
	var req movieRequest
	if !decodeJSON(w, r, &req, requestID) {
		return nil, 0, false
	}

	fieldErrors := validation.ValidateMovieRequest(validation.MovieRequest{
		GenreID:     req.GenreID,
		Title:       req.Title,
		Description: req.Description,
		Director:    req.Director,
		Writer:      req.Writer,
		Producer:    req.Producer,
		ReleaseDate: req.ReleaseDate,
		Rating:      req.Rating,
		TrailerURI:  req.TrailerURI,
		Stocks:      req.NumberOfStocks,
	}, create)
	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return nil, 0, false
	}

	released, _ := validation.ParseReleaseDate(req.ReleaseDate) // already validated

	return &catalog.Movie{
		GenreID:     req.GenreID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Director:    req.Director,
		Writer:      req.Writer,
		Producer:    req.Producer,
		ReleaseDate: released,
		Rating:      req.Rating,
		TrailerURI:  req.TrailerURI,
	}, req.NumberOfStocks, true
}

func writeMovieErr(w http.ResponseWriter, err error, message, requestID string) {
	switch {
	case errors.Is(err, catalog.ErrMovieNotFound):
		response.Err(w, http.StatusNotFound, "NOT_FOUND", "Movie not found", requestID)
	case errors.Is(err, catalog.ErrGenreNotFound):
		response.Err(w, http.StatusNotFound, "NOT_FOUND", "Genre not found", requestID)
	default:
		slog.Error(strings.ToLower(message), "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", message, requestID)
	}
}
