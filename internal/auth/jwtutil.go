package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cryptopay/cryptopay/internal/apperr"
)

// accessClaims is the internal claims type used for JWT signing and parsing.
type accessClaims struct {
	jwt.RegisteredClaims
	Alias string `json:"alias,omitempty"`
}

func signHS256(claims accessClaims, secret []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func parseHS256(token string, secret []byte, now func() time.Time) (accessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return accessClaims{}, apperr.New(apperr.KindUnauthorized, "missing bearer token")
	}
	var parsed accessClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		return accessClaims{}, mapJWTError(err)
	}
	if parsed.Subject == "" {
		return accessClaims{}, apperr.New(apperr.KindUnauthorized, "token subject is required")
	}
	return parsed, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperr.Wrap(apperr.KindUnauthorized, "token is expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return apperr.Wrap(apperr.KindUnauthorized, "token signature is invalid", err)
	default:
		return apperr.Wrap(apperr.KindUnauthorized, "invalid token", err)
	}
}
