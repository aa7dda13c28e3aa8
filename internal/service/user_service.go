package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"classbook/internal/auth"
	"classbook/internal/config"
	"classbook/internal/domain"
	"classbook/internal/models"

	"github.com/rs/zerolog"
)

type UserService struct {
	users       domain.UserStore
	tokens      domain.TokenIssuer
	rateLimiter domain.RateLimiter
	config      config.AuthConfig
	now         func() time.Time
	logger      *zerolog.Logger
}

func NewUserService(users domain.UserStore, tokens domain.TokenIssuer, rateLimiter domain.RateLimiter, cfg config.AuthConfig, logger *zerolog.Logger) *UserService {
	return &UserService{
		users:       users,
		tokens:      tokens,
		rateLimiter: rateLimiter,
		config:      cfg,
		now:         time.Now,
		logger:      logger,
	}
}

func (s *UserService) Register(ctx context.Context, id, email, password, confirmation string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}
	if password != confirmation {
		return nil, domain.ErrPasswordMismatch
	}

	hash, err := auth.HashPassword(password, s.config.BcryptCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           id,
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", id).Msg("user registered")
	return user, nil
}

// Authenticate checks the password and issues a token. Attempts are rate
// limited per user id; unknown ids and wrong passwords look the same.
func (s *UserService) Authenticate(ctx context.Context, id, password string) (string, time.Time, error) {
	if s.rateLimiter != nil {
		allowed, err := s.rateLimiter.CheckRateLimit(ctx, "login:"+id, s.config.LoginAttempts, s.config.LoginWindow())
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", id).Msg("login rate limit check failed")
		} else if !allowed {
			return "", time.Time{}, domain.ErrTooManyAttempts
		}
	}

	user, err := s.users.GetUser(ctx, id)
	if errors.Is(err, domain.ErrUserNotFound) {
		return "", time.Time{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return "", time.Time{}, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return "", time.Time{}, domain.ErrInvalidCredentials
	}

	return s.tokens.IssueToken(user.ID)
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.users.GetUser(ctx, id)
}

func (s *UserService) ListUsers(ctx context.Context) ([]*models.User, error) {
	return s.users.ListUsers(ctx)
}

func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	return s.users.DeleteUser(ctx, id)
}
