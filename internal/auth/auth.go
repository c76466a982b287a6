package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/jayjaytrn/order-management-system/internal/clock"
	"github.com/jayjaytrn/order-management-system/models"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

type Claims struct {
	jwt.RegisteredClaims
	ChainID string `json:"cid"`
	Type    string `json:"typ"`
}

// TokenService issues, validates and rotates access/refresh token pairs.
// Access tokens are stateless apart from the chain revocation check;
// refresh tokens are single use and tracked by the Ledger.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	ledger     Ledger
	clock      clock.Clock
	parser     *jwt.Parser
}

func NewTokenService(secret string, accessTTL, refreshTTL time.Duration, ledger Ledger, clk clock.Clock) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		ledger:     ledger,
		clock:      clk,
		// Expiry is checked against the injected clock, not jwt.TimeFunc.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// Issue starts a new rotation chain for userID.
func (s *TokenService) Issue(ctx context.Context, userID string) (models.TokenPair, error) {
	if userID == "" {
		return models.TokenPair{}, models.ErrMalformedCredential
	}

	now := s.clock.Now()
	chain := Chain{
		ID:        uuid.NewString(),
		UserID:    userID,
		Rotation:  uuid.NewString(),
		CreatedAt: now,
	}
	if err := s.ledger.Start(ctx, chain); err != nil {
		return models.TokenPair{}, fmt.Errorf("start rotation chain: %w", err)
	}
	return s.buildPair(userID, chain.ID, chain.Rotation, now)
}

// Validate returns the owner of a valid access token.
func (s *TokenService) Validate(ctx context.Context, accessToken string) (string, error) {
	claims, err := s.parse(accessToken, typeAccess)
	if err != nil {
		return "", err
	}

	revoked, err := s.ledger.IsRevoked(ctx, claims.ChainID)
	if err != nil {
		return "", fmt.Errorf("check rotation chain: %w", err)
	}
	if revoked {
		return "", models.ErrRevokedCredential
	}
	return claims.Subject, nil
}

// Rotate exchanges a refresh token for a new pair. Presenting a refresh
// token that was already rotated revokes its whole chain.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	claims, err := s.parse(refreshToken, typeRefresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	now := s.clock.Now()
	next := uuid.NewString()
	if err := s.ledger.Advance(ctx, claims.ChainID, claims.ID, next, now); err != nil {
		return models.TokenPair{}, err
	}
	return s.buildPair(claims.Subject, claims.ChainID, next, now)
}

// Revoke ends the rotation chain of a refresh token. Access tokens of the
// chain stop validating as well.
func (s *TokenService) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := s.parse(refreshToken, typeRefresh)
	if err != nil {
		return err
	}
	if err := s.ledger.Revoke(ctx, claims.ChainID, s.clock.Now()); err != nil {
		return fmt.Errorf("revoke rotation chain: %w", err)
	}
	return nil
}

func (s *TokenService) parse(tokenString, wantType string) (*Claims, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedCredential, err)
	}

	if claims.Type != wantType || claims.Subject == "" || claims.ChainID == "" || claims.ID == "" {
		return nil, models.ErrMalformedCredential
	}
	if !claims.VerifyExpiresAt(s.clock.Now(), true) {
		return nil, models.ErrExpiredCredential
	}
	return claims, nil
}

func (s *TokenService) buildPair(userID, chainID, rotation string, now time.Time) (models.TokenPair, error) {
	accessExp := now.Add(s.accessTTL)
	access, err := s.sign(Claims{
		ChainID: chainID,
		Type:    typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(accessExp),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	})
	if err != nil {
		return models.TokenPair{}, err
	}

	refreshExp := now.Add(s.refreshTTL)
	refresh, err := s.sign(Claims{
		ChainID: chainID,
		Type:    typeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(refreshExp),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        rotation,
		},
	})
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "bearer",
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *TokenService) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tokenString, nil
}

// IsCredentialError reports whether err should be answered with 401.
func IsCredentialError(err error) bool {
	return errors.Is(err, models.ErrExpiredCredential) ||
		errors.Is(err, models.ErrMalformedCredential) ||
		errors.Is(err, models.ErrReplayedCredential) ||
		errors.Is(err, models.ErrRevokedCredential) ||
		errors.Is(err, models.ErrInvalidCredentials)
}
