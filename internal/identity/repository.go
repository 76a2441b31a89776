package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when no record matches the lookup key.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned by Insert when the email is taken.
	ErrDuplicateEmail = errors.New("email already exists")
)

// Repository persists user records. Emails are matched exactly.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	Insert(ctx context.Context, user User) error
	// UpdateFields applies changes atomically and reports whether a record matched.
	UpdateFields(ctx context.Context, id string, changes Changes) (bool, error)
	// IncrementLoginAttempts atomically adds one failed attempt and returns the new count.
	IncrementLoginAttempts(ctx context.Context, id string) (int, error)
}

// PgxPool is the subset of *pgxpool.Pool the Postgres repository needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const uniqueViolation = "23505"

const userColumns = `id, email, first_name, last_name, password_hash, login_attempts, locked_until, mfa_enabled, mfa_secret, created_at`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db PgxPool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db PgxPool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert stores a new user.
func (r *PostgresRepository) Insert(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (`+userColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		userID, user.Email, user.FirstName, user.LastName, user.PasswordHash,
		user.LoginAttempts, utcPtr(user.LockedUntil), user.MFAEnabled, nullString(user.MFASecret), user.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByEmail fetches a user by email.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

// UpdateFields applies changes in one UPDATE statement.
func (r *PostgresRepository) UpdateFields(ctx context.Context, id string, changes Changes) (bool, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}
	if changes.Empty() {
		return r.exists(ctx, userID)
	}

	var (
		sets []string
		args = []any{userID}
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if changes.LoginAttempts != nil {
		set("login_attempts", *changes.LoginAttempts)
	}
	if changes.ClearLock {
		sets = append(sets, "locked_until = NULL")
	} else if changes.LockedUntil != nil {
		set("locked_until", changes.LockedUntil.UTC())
	}
	if changes.MFAEnabled != nil {
		set("mfa_enabled", *changes.MFAEnabled)
	}
	if changes.ClearMFASecret {
		sets = append(sets, "mfa_secret = NULL")
	} else if changes.MFASecret != nil {
		set("mfa_secret", *changes.MFASecret)
	}

	cmd, err := r.db.Exec(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return false, fmt.Errorf("update user: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

// IncrementLoginAttempts bumps the counter server-side and returns the new value.
func (r *PostgresRepository) IncrementLoginAttempts(ctx context.Context, id string) (int, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return 0, ErrNotFound
	}
	var attempts int
	err = r.db.QueryRow(ctx, `UPDATE users SET login_attempts = login_attempts + 1
        WHERE id = $1 RETURNING login_attempts`, userID).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment login attempts: %w", err)
	}
	return attempts, nil
}

func (r *PostgresRepository) exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var found bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&found); err != nil {
		return false, fmt.Errorf("lookup user: %w", err)
	}
	return found, nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		user        User
		lockedUntil *time.Time
		secret      *string
		createdAt   time.Time
	)
	err := row.Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.PasswordHash,
		&user.LoginAttempts, &lockedUntil, &user.MFAEnabled, &secret, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	user.CreatedAt = createdAt.UTC()
	if lockedUntil != nil {
		t := lockedUntil.UTC()
		user.LockedUntil = &t
	}
	if secret != nil {
		user.MFASecret = *secret
	}
	return user, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
