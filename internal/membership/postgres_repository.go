package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/homecinema/homecinema/internal/db"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresStore implements Store on top of a pgx pool or transaction.
type PostgresStore struct {
	q     db.Querier
	users *PostgresUserRepository
	roles *PostgresRoleRepository
}

// NewPostgresStore creates a Store backed by q.
func NewPostgresStore(q db.Querier) *PostgresStore {
	return &PostgresStore{
		q:     q,
		users: &PostgresUserRepository{q: q},
		roles: &PostgresRoleRepository{q: q},
	}
}

// Users returns the user repository bound to this store.
func (s *PostgresStore) Users() UserRepository { return s.users }

// Roles returns the role repository bound to this store.
func (s *PostgresStore) Roles() RoleRepository { return s.roles }

// InTx runs fn inside a database transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	return db.InTx(ctx, s.q, func(tx pgx.Tx) error {
		return fn(NewPostgresStore(tx))
	})
}

// PostgresUserRepository implements UserRepository using pgx.
type PostgresUserRepository struct {
	q db.Querier
}

// NewUserRepository creates a new UserRepository backed by q.
func NewUserRepository(q db.Querier) UserRepository {
	return &PostgresUserRepository{q: q}
}

// Create inserts a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (username, email, salt, hashed_password, is_locked, date_created)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := r.q.QueryRow(ctx, query,
		u.Username,
		u.Email,
		u.Salt,
		u.HashedPassword,
		u.IsLocked,
		u.DateCreated,
	).Scan(&u.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

// GetByID retrieves a single user by its identifier.
func (r *PostgresUserRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	query := `
		SELECT id, username, email, salt, hashed_password, is_locked, date_created
		FROM users
		WHERE id = $1`

	return r.scanOne(ctx, query, id)
}

// GetByUsername retrieves a single user by exact username.
func (r *PostgresUserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	query := `
		SELECT id, username, email, salt, hashed_password, is_locked, date_created
		FROM users
		WHERE username = $1`

	return r.scanOne(ctx, query, username)
}

// SetLocked sets or clears the lock flag on a user.
func (r *PostgresUserRepository) SetLocked(ctx context.Context, id int64, locked bool) error {
	result, err := r.q.Exec(ctx, `UPDATE users SET is_locked = $2 WHERE id = $1`, id, locked)
	if err != nil {
		return fmt.Errorf("updating user lock: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *PostgresUserRepository) scanOne(ctx context.Context, query string, arg any) (*User, error) {
	var u User
	err := r.q.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.Email, &u.Salt, &u.HashedPassword,
		&u.IsLocked, &u.DateCreated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}

	return &u, nil
}

// PostgresRoleRepository implements RoleRepository using pgx.
type PostgresRoleRepository struct {
	q db.Querier
}

// NewRoleRepository creates a new RoleRepository backed by q.
func NewRoleRepository(q db.Querier) RoleRepository {
	return &PostgresRoleRepository{q: q}
}

// GetByID retrieves a single role by its identifier.
func (r *PostgresRoleRepository) GetByID(ctx context.Context, id int) (*Role, error) {
	var role Role
	err := r.q.QueryRow(ctx, `SELECT id, name FROM roles WHERE id = $1`, id).Scan(&role.ID, &role.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("querying role: %w", err)
	}

	return &role, nil
}

// List retrieves all roles ordered by identifier.
func (r *PostgresRoleRepository) List(ctx context.Context) ([]Role, error) {
	return r.list(ctx, `SELECT id, name FROM roles ORDER BY id ASC`)
}

// ListForUser joins user_roles with roles for a single user.
func (r *PostgresRoleRepository) ListForUser(ctx context.Context, userID int64) ([]Role, error) {
	query := `
		SELECT DISTINCT r.id, r.name
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.id ASC`

	return r.list(ctx, query, userID)
}

// AddUserRole inserts a user-role association.
func (r *PostgresRoleRepository) AddUserRole(ctx context.Context, userID int64, roleID int) error {
	_, err := r.q.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, userID, roleID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch {
			case pgErr.Code == pgUniqueViolation:
				return ErrDuplicateUserRole
			case pgErr.Code == pgForeignKeyViolation && pgErr.ConstraintName == "user_roles_user_id_fkey":
				return ErrUserNotFound
			case pgErr.Code == pgForeignKeyViolation:
				return ErrRoleNotFound
			}
		}
		return fmt.Errorf("inserting user role: %w", err)
	}

	return nil
}

func (r *PostgresRoleRepository) list(ctx context.Context, query string, args ...any) ([]Role, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, fmt.Errorf("scanning role row: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating role rows: %w", err)
	}

	if roles == nil {
		roles = []Role{}
	}

	return roles, nil
}
