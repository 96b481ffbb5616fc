package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/homecinema/homecinema/internal/db"
)

// ErrMovieNotFound is returned when a movie record is not found.
var ErrMovieNotFound = errors.New("movie not found")

// ErrGenreNotFound is returned when a movie references a genre that does not exist.
var ErrGenreNotFound = errors.New("genre not found")

const pgForeignKeyViolation = "23503"

// Repository provides access to the movie catalog.
type Repository interface {
	Latest(ctx context.Context, n int) ([]Movie, error)
	GetByID(ctx context.Context, id int64) (*Movie, error)
	List(ctx context.Context, filter ListFilter) (*ListResult, error)
	Create(ctx context.Context, m *Movie, stocks int) ([]Stock, error)
	Update(ctx context.Context, m *Movie) (*Movie, error)
	SetImage(ctx context.Context, id int64, image string) error
	ListGenres(ctx context.Context) ([]Genre, error)
}

// PostgresRepository implements Repository using pgx.
type PostgresRepository struct {
	q db.Querier
}

// NewRepository creates a new Repository backed by q.
func NewRepository(q db.Querier) Repository {
	return &PostgresRepository{q: q}
}

const movieColumns = `
	m.id, m.genre_id, g.name, m.title, m.description, m.image, m.director,
	m.writer, m.producer, m.release_date, m.rating, m.trailer_uri,
	COALESCE(s.total, 0), COALESCE(s.available, 0)`

const movieFrom = `
	FROM movies m
	JOIN genres g ON g.id = m.genre_id
	LEFT JOIN (
		SELECT movie_id,
		       COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE is_available) AS available
		FROM stocks
		GROUP BY movie_id
	) s ON s.movie_id = m.id`

// Latest returns the n most recently released movies.
func (r *PostgresRepository) Latest(ctx context.Context, n int) ([]Movie, error) {
	query := `SELECT ` + movieColumns + movieFrom + `
		ORDER BY m.release_date DESC, m.id DESC
		LIMIT $1`

	return r.list(ctx, query, n)
}

// GetByID retrieves a single movie with its stock counts.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*Movie, error) {
	query := `SELECT ` + movieColumns + movieFrom + `
		WHERE m.id = $1`

	m, err := scanMovie(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMovieNotFound
		}
		return nil, fmt.Errorf("scanning movie row: %w", err)
	}
	return m, nil
}

// List retrieves a page of movies ordered by identifier, optionally filtered
// by a case-insensitive title substring.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	if filter.Page < 0 {
		filter.Page = 0
	}
	if filter.PageSize < 1 {
		filter.PageSize = DefaultPageSize
	}
	if filter.PageSize > MaxPageSize {
		filter.PageSize = MaxPageSize
	}

	var where string
	var args []any
	if f := strings.TrimSpace(filter.Filter); f != "" {
		where = "WHERE m.title ILIKE $1"
		args = append(args, "%"+escapeLike(f)+"%")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM movies m " + where
	if err := r.q.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting movies: %w", err)
	}

	n := len(args)
	dataQuery := fmt.Sprintf(`SELECT %s %s
		%s
		ORDER BY m.id
		LIMIT $%d OFFSET $%d`, movieColumns, movieFrom, where, n+1, n+2)
	args = append(args, filter.PageSize, filter.Page*filter.PageSize)

	movies, err := r.list(ctx, dataQuery, args...)
	if err != nil {
		return nil, err
	}

	return &ListResult{
		Movies:     movies,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: TotalPages(total, filter.PageSize),
	}, nil
}

// Create inserts m together with stocks available copies, each with a fresh
// unique key, in one transaction. m.ID and the stock counts are filled in.
func (r *PostgresRepository) Create(ctx context.Context, m *Movie, stocks int) ([]Stock, error) {
	created := make([]Stock, 0, stocks)

	err := db.InTx(ctx, r.q, func(tx pgx.Tx) error {
		query := `
			INSERT INTO movies (genre_id, title, description, image, director, writer,
			                    producer, release_date, rating, trailer_uri)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id`

		err := tx.QueryRow(ctx, query,
			m.GenreID, m.Title, m.Description, m.Image, m.Director, m.Writer,
			m.Producer, m.ReleaseDate, m.Rating, m.TrailerURI,
		).Scan(&m.ID)
		if err != nil {
			return translateWriteErr("inserting movie", err)
		}

		for i := 0; i < stocks; i++ {
			s := Stock{MovieID: m.ID, UniqueKey: uuid.New(), IsAvailable: true}
			err := tx.QueryRow(ctx,
				`INSERT INTO stocks (movie_id, unique_key, is_available) VALUES ($1, $2, $3) RETURNING id`,
				s.MovieID, s.UniqueKey, s.IsAvailable,
			).Scan(&s.ID)
			if err != nil {
				return fmt.Errorf("inserting stock: %w", err)
			}
			created = append(created, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.TotalStocks = stocks
	m.AvailableStocks = stocks
	return created, nil
}

// Update overwrites the editable fields of m. The image and the stocks are
// left untouched.
func (r *PostgresRepository) Update(ctx context.Context, m *Movie) (*Movie, error) {
	query := `
		UPDATE movies
		SET genre_id = $1, title = $2, description = $3, director = $4, writer = $5,
		    producer = $6, release_date = $7, rating = $8, trailer_uri = $9
		WHERE id = $10`

	tag, err := r.q.Exec(ctx, query,
		m.GenreID, m.Title, m.Description, m.Director, m.Writer,
		m.Producer, m.ReleaseDate, m.Rating, m.TrailerURI, m.ID,
	)
	if err != nil {
		return nil, translateWriteErr("updating movie", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrMovieNotFound
	}

	return r.GetByID(ctx, m.ID)
}

// SetImage records the stored image name for a movie.
func (r *PostgresRepository) SetImage(ctx context.Context, id int64, image string) error {
	tag, err := r.q.Exec(ctx, `UPDATE movies SET image = $1 WHERE id = $2`, image, id)
	if err != nil {
		return fmt.Errorf("setting movie image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMovieNotFound
	}
	return nil
}

// ListGenres returns every genre ordered by identifier.
func (r *PostgresRepository) ListGenres(ctx context.Context) ([]Genre, error) {
	rows, err := r.q.Query(ctx, `SELECT id, name FROM genres ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing genres: %w", err)
	}
	defer rows.Close()

	genres := []Genre{}
	for rows.Next() {
		var g Genre
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("scanning genre row: %w", err)
		}
		genres = append(genres, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating genre rows: %w", err)
	}
	return genres, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]Movie, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing movies: %w", err)
	}
	defer rows.Close()

	movies := []Movie{}
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning movie row: %w", err)
		}
		movies = append(movies, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating movie rows: %w", err)
	}
	return movies, nil
}

func scanMovie(row pgx.Row) (*Movie, error) {
	var m Movie
	err := row.Scan(
		&m.ID, &m.GenreID, &m.Genre, &m.Title, &m.Description, &m.Image, &m.Director,
		&m.Writer, &m.Producer, &m.ReleaseDate, &m.Rating, &m.TrailerURI,
		&m.TotalStocks, &m.AvailableStocks,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func translateWriteErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return ErrGenreNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
