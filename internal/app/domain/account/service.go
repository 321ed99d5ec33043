package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"pinpoint/internal/app/models"
)

// Ensure implementation satisfies the interface
var _ Service = (*ServiceImpl)(nil)

// Service is the Account Validator consumed by the request dispatcher.
type Service interface {
	// GetAccount resolves an issued token to its account.
	GetAccount(ctx context.Context, token string) (*models.Account, error)
	// IsAccountIDValid checks an id/token pair. The guest sentinel pair is
	// always valid and never touches the store.
	IsAccountIDValid(ctx context.Context, id, token string) (bool, error)
	// AdjustPoints adds delta to the account's point balance. Guest sessions
	// accrue nothing.
	AdjustPoints(ctx context.Context, id string, delta int64) error
	// Login validates email/password credentials and issues a fresh token.
	Login(ctx context.Context, email, password string) (*models.Account, error)
	// CreateAccount provisions a new account with a hashed password and an
	// issued token. Called by the identity exchange, not by a protocol op.
	CreateAccount(ctx context.Context, email, name, password string) (*models.Account, error)
}

type ServiceImpl struct {
	logger *zap.Logger
	repo   Repository

	// validCache holds recently confirmed id/token pairs so a client
	// streaming position updates does not hit the store on every request.
	validCache *cache.Cache
}

func NewService(repo Repository, logger *zap.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger:     logger,
		repo:       repo,
		validCache: cache.New(time.Minute, 5*time.Minute),
	}
}

func (s *ServiceImpl) GetAccount(ctx context.Context, token string) (*models.Account, error) {
	return s.repo.GetByToken(ctx, token)
}

func (s *ServiceImpl) IsAccountIDValid(ctx context.Context, id, token string) (bool, error) {
	// Guests have an imaginary id and token.
	if id == models.GuestID && token == models.GuestToken {
		return true, nil
	}
	if id == "" || token == "" {
		return false, nil
	}

	key := id + "\x00" + token
	if _, ok := s.validCache.Get(key); ok {
		return true, nil
	}

	valid, err := s.repo.ExistsIDToken(ctx, id, token)
	if err != nil {
		return false, err
	}
	if valid {
		s.validCache.SetDefault(key, struct{}{})
	}
	return valid, nil
}

func (s *ServiceImpl) AdjustPoints(ctx context.Context, id string, delta int64) error {
	if id == models.GuestID || delta == 0 {
		return nil
	}
	return s.repo.AdjustPoints(ctx, id, delta)
}

// Login validates credentials and rotates the account's opaque token. The
// previous token stops validating once rotated, so the cache entry for it is
// left to expire on its own short TTL.
func (s *ServiceImpl) Login(ctx context.Context, email, password string) (*models.Account, error) {
	l := s.logger.With(zap.String("method", "Login"), zap.String("email", email))
	l.Debug("Attempting login")

	tracer := otel.Tracer("pinpoint")
	ctx, span := tracer.Start(ctx, "AccountService.Login")
	span.SetAttributes(attribute.String("account.email", email))
	defer span.End()

	acct, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			l.Warn("Login for unknown email")
			// Don't reveal whether the email or the password was wrong
			return nil, fmt.Errorf("invalid credentials: %w", models.ErrUnauthenticated)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "account lookup failed")
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		l.Warn("Password comparison failed", zap.String("accountID", acct.ID))
		return nil, fmt.Errorf("invalid credentials: %w", models.ErrUnauthenticated)
	}

	token := uuid.NewString()
	if err := s.repo.UpdateToken(ctx, acct.ID, token); err != nil {
		l.Error("Failed to store issued token", zap.String("accountID", acct.ID), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "token rotation failed")
		return nil, err
	}
	acct.Token = token

	l.Info("Login successful", zap.String("accountID", acct.ID))
	return acct, nil
}

// CreateAccount provisions an account for a verified identity. The email is
// checked first so a duplicate reads as a conflict rather than a bare
// constraint violation from the store.
func (s *ServiceImpl) CreateAccount(ctx context.Context, email, name, password string) (*models.Account, error) {
	l := s.logger.With(zap.String("method", "CreateAccount"), zap.String("email", email))

	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		l.Warn("Email already registered")
		return nil, fmt.Errorf("email %s already registered: %w", email, models.ErrConflict)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	acct := &models.Account{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Token:        uuid.NewString(),
	}
	id, err := s.repo.Create(ctx, acct)
	if err != nil {
		l.Error("Failed to create account", zap.Error(err))
		return nil, err
	}
	acct.ID = id

	l.Info("Account created", zap.String("accountID", id))
	return acct, nil
}

// HashPassword hashes a plain-text password for storage. Exposed for account
// provisioning (the OAuth exchange black box) and tests.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}
