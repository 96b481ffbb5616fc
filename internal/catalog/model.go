package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Genre represents a row in the genres table.
type Genre struct {
	ID   int
	Name string
}

// Movie represents a row in the movies table joined with its genre name and
// stock counts. TotalStocks and AvailableStocks are read-only aggregates.
type Movie struct {
	ID          int64
	GenreID     int
	Genre       string
	Title       string
	Description string
	Image       string
	Director    string
	Writer      string
	Producer    string
	ReleaseDate time.Time
	Rating      int
	TrailerURI  string

	TotalStocks     int
	AvailableStocks int
}

// IsAvailable reports whether at least one copy can be rented.
func (m *Movie) IsAvailable() bool {
	return m.AvailableStocks > 0
}

// Stock is one physical copy of a movie.
type Stock struct {
	ID          int64
	MovieID     int64
	UniqueKey   uuid.UUID
	IsAvailable bool
}

// Page sizing used by List.
const (
	DefaultPageSize = 3
	MaxPageSize     = 100
	LatestCount     = 6
)

// ListFilter holds the title filter and zero-based pagination for listing
// movies.
type ListFilter struct {
	Page     int    // zero-based
	PageSize int    // default DefaultPageSize
	Filter   string // case-insensitive title substring
}

// ListResult holds one page of movies.
type ListResult struct {
	Movies     []Movie
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// TotalPages returns the number of pages needed to show total items, size
// per page.
func TotalPages(total, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}
