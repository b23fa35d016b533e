package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/yanqian/todoauth/pkg/errors"
	"github.com/yanqian/todoauth/pkg/util"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// PrincipalClaims is the identity payload carried by both token classes.
type PrincipalClaims struct {
	Subject string
	Role    Role
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Role      Role   `json:"role"`
	TokenType string `json:"type"`
}

type signingKey struct {
	tokenType string
	secret    []byte
	ttl       time.Duration
}

// TokenCodec signs and verifies access and refresh tokens. Each class has its own
// secret, so a token of one class never verifies as the other.
type TokenCodec struct {
	access  signingKey
	refresh signingKey
	now     util.Clock
}

// NewTokenCodec builds a codec from the configured secrets. A missing secret is a
// configuration error and must stop the process at startup.
func NewTokenCodec(cfg Config, clock util.Clock) (*TokenCodec, error) {
	if strings.TrimSpace(cfg.AccessSecret) == "" {
		return nil, apperrors.Wrap(apperrors.CodeConfig, "access token secret is missing", nil)
	}
	if strings.TrimSpace(cfg.RefreshSecret) == "" {
		return nil, apperrors.Wrap(apperrors.CodeConfig, "refresh token secret is missing", nil)
	}
	if clock == nil {
		clock = util.NowUTC
	}
	return &TokenCodec{
		access:  signingKey{tokenType: tokenTypeAccess, secret: []byte(cfg.AccessSecret), ttl: AccessTokenTTL},
		refresh: signingKey{tokenType: tokenTypeRefresh, secret: []byte(cfg.RefreshSecret), ttl: RefreshTokenTTL},
		now:     clock,
	}, nil
}

// SignAccess mints a 15 minute access token.
func (c *TokenCodec) SignAccess(claims PrincipalClaims) (string, error) {
	return c.sign(c.access, claims)
}

// SignRefresh mints a 7 day refresh token.
func (c *TokenCodec) SignRefresh(claims PrincipalClaims) (string, error) {
	return c.sign(c.refresh, claims)
}

// VerifyAccess validates an access token and returns its claims.
func (c *TokenCodec) VerifyAccess(token string) (PrincipalClaims, error) {
	return c.verify(c.access, token)
}

// VerifyRefresh validates a refresh token and returns its claims.
func (c *TokenCodec) VerifyRefresh(token string) (PrincipalClaims, error) {
	return c.verify(c.refresh, token)
}

func (c *TokenCodec) sign(key signingKey, claims PrincipalClaims) (string, error) {
	if claims.Subject == "" || !claims.Role.Valid() {
		return "", apperrors.Wrap(apperrors.CodeInvalidInput, "token claims require a subject and a known role", nil)
	}
	now := c.now()
	expiresAt := now.Add(key.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Role:      claims.Role,
		TokenType: key.tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(key.secret)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternal, "failed to sign token", err)
	}
	return signed, nil
}

func (c *TokenCodec) verify(key signingKey, raw string) (PrincipalClaims, error) {
	if strings.TrimSpace(raw) == "" {
		return PrincipalClaims{}, apperrors.Wrap(apperrors.CodeInvalidToken, "token missing", nil)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(*jwt.Token) (any, error) {
		return key.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return PrincipalClaims{}, apperrors.Wrap(apperrors.CodeInvalidToken, "token expired", err)
		}
		return PrincipalClaims{}, apperrors.Wrap(apperrors.CodeInvalidToken, "token validation failed", err)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return PrincipalClaims{}, apperrors.Wrap(apperrors.CodeInvalidToken, "token invalid", nil)
	}
	if claims.TokenType != key.tokenType {
		return PrincipalClaims{}, apperrors.Wrap(apperrors.CodeInvalidToken, "token type mismatch", nil)
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return PrincipalClaims{}, apperrors.Wrap(apperrors.CodeInvalidToken, "token payload incomplete", nil)
	}
	return PrincipalClaims{Subject: claims.Subject, Role: claims.Role}, nil
}
