package validation

import (
	"fmt"
	"net/url"
	"time"
)

const maxStocks = 100

// MovieRequest mirrors the fields needed for movie create/update validation.
type MovieRequest struct {
	GenreID     int
	Title       string
	Description string
	Director    string
	Writer      string
	Producer    string
	ReleaseDate string
	Rating      int
	TrailerURI  string
	Stocks      int
}

// ValidateMovieRequest validates a movie. Stocks only matters on create.
func ValidateMovieRequest(req MovieRequest, create bool) []FieldError {
	var errs []FieldError

	if req.GenreID < 1 {
		errs = append(errs, FieldError{Field: "genreId", Message: "genreId is required"})
	}

	errs = required(errs, "title", req.Title, 100)
	if len(req.Description) > 2000 {
		errs = append(errs, FieldError{Field: "description", Message: "description must be at most 2000 characters"})
	}
	for _, f := range [...]struct{ name, value string }{
		{"director", req.Director},
		{"writer", req.Writer},
		{"producer", req.Producer},
	} {
		if len(f.value) > 100 {
			errs = append(errs, FieldError{Field: f.name, Message: f.name + " must be at most 100 characters"})
		}
	}

	if req.ReleaseDate == "" {
		errs = append(errs, FieldError{Field: "releaseDate", Message: "releaseDate is required"})
	} else if _, err := ParseReleaseDate(req.ReleaseDate); err != nil {
		errs = append(errs, FieldError{Field: "releaseDate", Message: "releaseDate must be YYYY-MM-DD or RFC 3339"})
	}

	if req.Rating < 0 || req.Rating > 5 {
		errs = append(errs, FieldError{Field: "rating", Message: "rating must be between 0 and 5"})
	}

	if req.TrailerURI != "" {
		if u, err := url.ParseRequestURI(req.TrailerURI); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, FieldError{Field: "trailerUri", Message: "trailerUri must be an http(s) URL"})
		}
	}

	if create && (req.Stocks < 0 || req.Stocks > maxStocks) {
		errs = append(errs, FieldError{Field: "numberOfStocks", Message: fmt.Sprintf("numberOfStocks must be between 0 and %d", maxStocks)})
	}

	return errs
}

// ParseReleaseDate accepts a calendar date or a full RFC 3339 timestamp.
func ParseReleaseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
