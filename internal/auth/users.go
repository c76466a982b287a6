package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/jayjaytrn/order-management-system/internal/clock"
	"github.com/jayjaytrn/order-management-system/models"
	"go.uber.org/zap"
)

type UserStore interface {
	PutUniqueUser(ctx context.Context, user models.User) error
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

// Authenticator handles registration and password login on top of the
// token service.
type Authenticator struct {
	Users  UserStore
	Tokens *TokenService
	Clock  clock.Clock
	Logger *zap.SugaredLogger
}

func NewAuthenticator(users UserStore, tokens *TokenService, clk clock.Clock, logger *zap.SugaredLogger) *Authenticator {
	return &Authenticator{
		Users:  users,
		Tokens: tokens,
		Clock:  clk,
		Logger: logger,
	}
}

var ErrInvalidRegistration = errors.New("name, valid email and password of at least 8 characters are required")

func (a *Authenticator) Register(ctx context.Context, req models.RegisterRequest) (models.User, error) {
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	if name == "" || len(req.Password) < 8 {
		return models.User{}, ErrInvalidRegistration
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return models.User{}, ErrInvalidRegistration
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		Password:  hash,
		CreatedAt: a.Clock.Now(),
	}
	if err := a.Users.PutUniqueUser(ctx, user); err != nil {
		if errors.Is(err, models.ErrUserExists) {
			a.Logger.Debugw("user already exists", "email", email)
			return models.User{}, err
		}
		return models.User{}, fmt.Errorf("register user: %w", err)
	}

	a.Logger.Infow("user registered", "user_id", user.ID)
	return user, nil
}

// Login checks the password and issues a fresh token pair.
func (a *Authenticator) Login(ctx context.Context, creds models.Credentials) (models.TokenPair, error) {
	email := normalizeEmail(creds.Email)

	user, err := a.Users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			a.Logger.Warnw("login for unknown email", "email", email)
			return models.TokenPair{}, models.ErrInvalidCredentials
		}
		return models.TokenPair{}, fmt.Errorf("login: %w", err)
	}

	ok, err := CheckPassword(user.Password, creds.Password)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("login: %w", err)
	}
	if !ok {
		a.Logger.Warnw("invalid password", "user_id", user.ID)
		return models.TokenPair{}, models.ErrInvalidCredentials
	}

	pair, err := a.Tokens.Issue(ctx, user.ID)
	if err != nil {
		return models.TokenPair{}, err
	}
	a.Logger.Infow("tokens issued", "user_id", user.ID)
	return pair, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
