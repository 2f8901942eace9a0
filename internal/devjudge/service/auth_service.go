package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	appErr "ojwatch/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

const (
	accessTokenType       = "access"
	defaultAccessTokenTTL = 24 * time.Hour
)

// UserInfo identifies an authenticated caller.
type UserInfo struct {
	ID   int64
	Role string
}

// AuthService issues and verifies HS256 access tokens.
type AuthService struct {
	jwtSecret []byte
	jwtIssuer string
	ttl       time.Duration
	now       func() time.Time
}

// NewAuthService creates an auth service.
func NewAuthService(jwtSecret, jwtIssuer string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = defaultAccessTokenTTL
	}
	return &AuthService{
		jwtSecret: []byte(jwtSecret),
		jwtIssuer: jwtIssuer,
		ttl:       ttl,
		now:       time.Now,
	}
}

type tokenClaims struct {
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// IssueToken signs an access token for userID.
func (s *AuthService) IssueToken(userID int64, role string) (string, time.Time, error) {
	if userID <= 0 {
		return "", time.Time{}, appErr.ValidationError("user_id", "must be positive")
	}
	if len(s.jwtSecret) == 0 {
		return "", time.Time{}, appErr.New(appErr.TokenGenerationFailed).WithMessage("jwt secret is not configured")
	}
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := tokenClaims{
		Role:      role,
		TokenType: accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    s.jwtIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, appErr.Wrapf(err, appErr.TokenGenerationFailed, "sign token failed")
	}
	return signed, expiresAt, nil
}

// Authenticate verifies raw and returns the caller.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (UserInfo, error) {
	if raw == "" {
		return UserInfo{}, appErr.New(appErr.Unauthorized).WithMessage("missing bearer token")
	}
	claims, err := s.parseToken(raw)
	if err != nil {
		return UserInfo{}, err
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return UserInfo{}, appErr.New(appErr.TokenInvalid)
	}
	return UserInfo{ID: userID, Role: claims.Role}, nil
}

func (s *AuthService) parseToken(raw string) (*tokenClaims, error) {
	if len(s.jwtSecret) == 0 {
		return nil, appErr.New(appErr.TokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErr.New(appErr.TokenExpired)
		}
		return nil, appErr.New(appErr.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, appErr.New(appErr.TokenInvalid)
	}
	if s.jwtIssuer != "" && claims.Issuer != s.jwtIssuer {
		return nil, appErr.New(appErr.TokenInvalid)
	}
	if claims.TokenType != accessTokenType || claims.Subject == "" {
		return nil, appErr.New(appErr.TokenInvalid)
	}
	return claims, nil
}
