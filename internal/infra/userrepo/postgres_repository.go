package userrepo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/todoauth/internal/domain/auth"
)

const googleIDConstraint = "users_google_id_key"

const userColumns = `id, email, name, role, password_hash, COALESCE(google_id, ''), picture_url, created_at, last_login_at`

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'user',
	password_hash TEXT NOT NULL DEFAULT '',
	google_id     TEXT CONSTRAINT users_google_id_key UNIQUE,
	picture_url   TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_login_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresRepository persists users in Postgres.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the users table when it does not exist yet.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}

// Create inserts a new user row.
func (r *PostgresRepository) Create(ctx context.Context, in auth.NewUser) (auth.User, error) {
	lastLogin := in.LastLoginAt
	if lastLogin.IsZero() {
		lastLogin = time.Now().UTC()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, name, role, password_hash, google_id, picture_url, last_login_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
		RETURNING `+userColumns,
		uuid.NewString(), in.Email, in.Name, string(in.Role), in.PasswordHash, in.GoogleID, in.PictureURL, lastLogin)
	user, err := scanUser(row)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == googleIDConstraint {
				return auth.User{}, auth.ErrExternalIDExists
			}
			return auth.User{}, auth.ErrEmailExists
		}
		return auth.User{}, err
	}
	return user, nil
}

// FindByEmail fetches a user by email.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (auth.User, bool, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 LIMIT 1`, email)
}

// FindByExternalID fetches the user linked to a Google account.
func (r *PostgresRepository) FindByExternalID(ctx context.Context, externalID string) (auth.User, bool, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE google_id = $1 LIMIT 1`, externalID)
}

// FindByID fetches by primary key.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (auth.User, bool, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 LIMIT 1`, id)
}

// Update applies the non-nil fields of update.
func (r *PostgresRepository) Update(ctx context.Context, id string, update auth.UserUpdate) (auth.User, bool, error) {
	var role *string
	if update.Role != nil {
		value := string(*update.Role)
		role = &value
	}
	return r.findOne(ctx, `
		UPDATE users SET
			name = COALESCE($2, name),
			role = COALESCE($3, role),
			picture_url = COALESCE($4, picture_url),
			last_login_at = COALESCE($5, last_login_at)
		WHERE id = $1
		RETURNING `+userColumns,
		id, update.Name, role, update.PictureURL, update.LastLoginAt)
}

// SetPasswordHash replaces the stored hash.
func (r *PostgresRepository) SetPasswordHash(ctx context.Context, id, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// List returns all users ordered by creation time.
func (r *PostgresRepository) List(ctx context.Context) ([]auth.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []auth.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, args ...any) (auth.User, bool, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.User{}, false, nil
		}
		return auth.User{}, false, err
	}
	return user, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (auth.User, error) {
	var user auth.User
	var role string
	var created, lastLogin time.Time
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &role, &user.PasswordHash, &user.GoogleID, &user.PictureURL, &created, &lastLogin); err != nil {
		return auth.User{}, err
	}
	user.Role = auth.Role(role)
	user.CreatedAt = created.UTC()
	user.LastLoginAt = lastLogin.UTC()
	return user, nil
}

// uniqueViolation reports whether err is a PostgreSQL unique violation and which
// constraint it hit.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

var _ auth.Repository = (*PostgresRepository)(nil)
