package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/fxmarket/forex-marketplace/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// Directory is the orchestrator's view of the user service: a best-effort
// email lookup. Callers swallow failures.
type Directory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

const uniqueViolation = "23505"

// PostgresDirectory stores users locally; in a multi-process deployment it
// would be replaced by an RPC client satisfying the same interface.
type PostgresDirectory struct {
	db *pgxpool.Pool
}

func NewPostgresDirectory(db *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

// Register creates a user with a bcrypt password hash.
func (d *PostgresDirectory) Register(ctx context.Context, email, firstName, lastName, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{ID: uuid.New(), Email: email, FirstName: firstName, LastName: lastName}
	err = d.db.QueryRow(ctx, `
		INSERT INTO users (id, email, first_name, last_name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at`,
		user.ID, email, firstName, lastName, string(hash)).Scan(&user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, models.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate verifies the password and returns the matching user.
func (d *PostgresDirectory) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user := &models.User{}
	var hash string
	err := d.db.QueryRow(ctx,
		`SELECT id, email, first_name, last_name, password_hash, created_at FROM users WHERE email = $1`,
		email).Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &hash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, models.ErrInvalidCredentials
	}
	return user, nil
}

func (d *PostgresDirectory) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := d.db.QueryRow(ctx,
		`SELECT id, email, first_name, last_name, created_at FROM users WHERE id = $1`,
		id).Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}
