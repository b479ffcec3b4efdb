package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cryptopay/cryptopay/internal/ledger"
)

const defaultAccessTokenTTL = time.Hour

// Service issues and verifies bearer tokens carrying the caller's account id.
type Service struct {
	issuer string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService creates a token service signing with secret.
func NewService(issuer, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultAccessTokenTTL
	}
	return &Service{issuer: issuer, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Token is an issued access token.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Issue signs an access token for account.
func (s *Service) Issue(account ledger.Account) (Token, error) {
	now := s.now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Alias: account.Alias,
	}
	signed, err := signHS256(claims, s.secret)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, TokenType: "Bearer", ExpiresIn: int64(s.ttl.Seconds())}, nil
}

// Verify checks a token and returns the account id it was issued to.
func (s *Service) Verify(token string) (string, error) {
	claims, err := parseHS256(token, s.secret, s.now)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
