package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"pinpoint/internal/app/models"
)

// DB is the narrow pgx surface the repository needs. *pgxpool.Pool satisfies
// it, and so does pgxmock.PgxPoolIface in tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Repository = (*PostgresRepository)(nil)

// Repository is the account-credential store consumed by the validator.
type Repository interface {
	// GetByToken fetches the account an issued token belongs to.
	GetByToken(ctx context.Context, token string) (*models.Account, error)
	// GetByEmail fetches an account with its password hash for login.
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	// ExistsIDToken reports whether the id/token pair is currently issued.
	ExistsIDToken(ctx context.Context, id, token string) (bool, error)
	// EmailExists reports whether an account with the email is registered.
	EmailExists(ctx context.Context, email string) (bool, error)
	// Create stores a new account and returns its id.
	Create(ctx context.Context, acct *models.Account) (string, error)
	// UpdateToken replaces the account's issued token.
	UpdateToken(ctx context.Context, id, token string) error
	// AdjustPoints atomically adds delta to the account's point balance.
	AdjustPoints(ctx context.Context, id string, delta int64) error
}

type PostgresRepository struct {
	logger *zap.Logger
	db     DB
}

func NewPostgresRepository(db DB, logger *zap.Logger) *PostgresRepository {
	return &PostgresRepository{logger: logger, db: db}
}

const accountColumns = `id, email, name, profile_photo, password_hash, token, points, created_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var acct models.Account
	err := row.Scan(&acct.ID, &acct.Email, &acct.Name, &acct.ProfilePhoto,
		&acct.PasswordHash, &acct.Token, &acct.Points, &acct.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE token = $1`
	acct, err := scanAccount(r.db.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account for token not found: %w", models.ErrNotFound)
		}
		r.logger.Error("Error fetching account by token", zap.Error(err))
		return nil, fmt.Errorf("database error fetching account: %w", models.ErrStorageUnavailable)
	}
	return acct, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	acct, err := scanAccount(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account with email %s not found: %w", email, models.ErrNotFound)
		}
		r.logger.Error("Error fetching account by email", zap.Error(err), zap.String("email", email))
		return nil, fmt.Errorf("database error fetching account: %w", models.ErrStorageUnavailable)
	}
	return acct, nil
}

func (r *PostgresRepository) ExistsIDToken(ctx context.Context, id, token string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM accounts WHERE id::text = $1 AND token = $2)`
	err := r.db.QueryRow(ctx, query, id, token).Scan(&exists)
	if err != nil {
		r.logger.Error("Error validating account id/token", zap.Error(err), zap.String("accountID", id))
		return false, fmt.Errorf("database error validating credentials: %w", models.ErrStorageUnavailable)
	}
	return exists, nil
}

func (r *PostgresRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1)`
	err := r.db.QueryRow(ctx, query, email).Scan(&exists)
	if err != nil {
		r.logger.Error("Error checking email existence", zap.Error(err), zap.String("email", email))
		return false, fmt.Errorf("database error checking email: %w", models.ErrStorageUnavailable)
	}
	return exists, nil
}

func (r *PostgresRepository) Create(ctx context.Context, acct *models.Account) (string, error) {
	var id string
	query := `INSERT INTO accounts (email, name, profile_photo, password_hash, token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id::text`
	err := r.db.QueryRow(ctx, query, acct.Email, acct.Name, acct.ProfilePhoto,
		acct.PasswordHash, acct.Token, time.Now()).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", fmt.Errorf("email already registered: %w", models.ErrConflict)
		}
		r.logger.Error("Error inserting account", zap.Error(err), zap.String("email", acct.Email))
		return "", fmt.Errorf("database error creating account: %w", models.ErrStorageUnavailable)
	}
	return id, nil
}

func (r *PostgresRepository) UpdateToken(ctx context.Context, id, token string) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET token = $1 WHERE id::text = $2`, token, id)
	if err != nil {
		r.logger.Error("Error updating account token", zap.Error(err), zap.String("accountID", id))
		return fmt.Errorf("database error updating token: %w", models.ErrStorageUnavailable)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s not found: %w", id, models.ErrNotFound)
	}
	return nil
}

// AdjustPoints is a single UPDATE so concurrent adjustments for the same
// account never lose increments.
func (r *PostgresRepository) AdjustPoints(ctx context.Context, id string, delta int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET points = points + $1 WHERE id::text = $2`, delta, id)
	if err != nil {
		r.logger.Error("Error adjusting points", zap.Error(err), zap.String("accountID", id))
		return fmt.Errorf("database error adjusting points: %w", models.ErrStorageUnavailable)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s not found: %w", id, models.ErrNotFound)
	}
	return nil
}
