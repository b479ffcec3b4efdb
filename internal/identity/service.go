package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/cryptopay/cryptopay/internal/apperr"
	"github.com/cryptopay/cryptopay/internal/ledger"
)

const (
	minPasswordLength = 8
	aliasSuffixBytes  = 4
	maxNameLength     = 120

	// DefaultAliasDomain is appended to generated aliases when none is configured.
	DefaultAliasDomain = "cryptopay"
)

var (
	aliasPattern   = regexp.MustCompile(`^[a-zA-Z0-9._-]+@[a-zA-Z0-9._-]+$`)
	aliasLocalChar = regexp.MustCompile(`[^a-z0-9._-]`)
)

// ValidAlias reports whether s has the shape of a payment alias.
func ValidAlias(s string) bool {
	return aliasPattern.MatchString(s)
}

// Sanitize strips markup characters from free-text input.
func Sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '{', '}':
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// Service manages account and merchant lifecycle.
type Service struct {
	store  Store
	domain string
	random io.Reader
	cost   int
	now    func() time.Time
}

// NewService creates a new identity service issuing aliases under domain.
func NewService(store Store, domain string) *Service {
	if domain == "" {
		domain = DefaultAliasDomain
	}
	return &Service{
		store:  store,
		domain: domain,
		random: rand.Reader,
		cost:   bcrypt.DefaultCost,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an account with a fresh alias and a zeroed balance set.
func (s *Service) Register(ctx context.Context, reg Registration) (ledger.Account, error) {
	email := strings.ToLower(strings.TrimSpace(reg.Email))
	name := Sanitize(reg.DisplayName)
	phone := Sanitize(reg.Phone)
	switch {
	case email == "" || reg.Password == "" || phone == "" || name == "":
		return ledger.Account{}, apperr.Invalid("email, password, phone and display name are required")
	case len(reg.Password) < minPasswordLength:
		return ledger.Account{}, apperr.Invalid(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	case len(name) > maxNameLength:
		return ledger.Account{}, apperr.Invalid("display name is too long")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return ledger.Account{}, apperr.Invalid("invalid email address")
	}

	alias, err := s.newAlias(email)
	if err != nil {
		return ledger.Account{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		return ledger.Account{}, apperr.Unavailable("hash password", err)
	}

	account := ledger.Account{
		ID:           uuid.NewString(),
		Email:        email,
		Alias:        alias,
		DisplayName:  name,
		Phone:        phone,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.CreateAccount(ctx, account)
	})
	if err != nil {
		return ledger.Account{}, err
	}
	return account, nil
}

// newAlias derives <local>-<random hex>@<domain> from an email address.
func (s *Service) newAlias(email string) (string, error) {
	local, _, _ := strings.Cut(email, "@")
	local = aliasLocalChar.ReplaceAllString(local, "")
	if local == "" {
		local = "user"
	}
	suffix := make([]byte, aliasSuffixBytes)
	if _, err := io.ReadFull(s.random, suffix); err != nil {
		return "", apperr.Unavailable("generate alias", err)
	}
	return local + "-" + hex.EncodeToString(suffix) + "@" + s.domain, nil
}

// Authenticate verifies an email and password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (ledger.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return ledger.Account{}, apperr.Invalid("email and password are required")
	}
	account, err := s.store.AccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return ledger.Account{}, apperr.New(apperr.KindUnauthorized, "invalid email or password")
		}
		return ledger.Account{}, err
	}
	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)); err != nil {
		return ledger.Account{}, apperr.New(apperr.KindUnauthorized, "invalid email or password")
	}
	return account, nil
}

// Account returns the account with the given id.
func (s *Service) Account(ctx context.Context, id string) (ledger.Account, error) {
	return s.store.Account(ctx, id)
}

// UpdateDisplayName changes the only mutable account attribute.
func (s *Service) UpdateDisplayName(ctx context.Context, id, name string) (ledger.Account, error) {
	name = Sanitize(name)
	if name == "" {
		return ledger.Account{}, apperr.Invalid("display name is required")
	}
	if len(name) > maxNameLength {
		return ledger.Account{}, apperr.Invalid("display name is too long")
	}
	if err := s.store.UpdateDisplayName(ctx, id, name); err != nil {
		return ledger.Account{}, err
	}
	return s.store.Account(ctx, id)
}

// RegisterMerchant attaches a merchant profile to an existing account.
func (s *Service) RegisterMerchant(ctx context.Context, accountID, businessName string) (ledger.Merchant, error) {
	name := Sanitize(businessName)
	if name == "" {
		return ledger.Merchant{}, apperr.Invalid("business name is required")
	}
	if len(name) > maxNameLength {
		return ledger.Merchant{}, apperr.Invalid("business name is too long")
	}
	merchant := ledger.Merchant{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		BusinessName:  name,
		PaymentTarget: "merchant:" + accountID,
		CreatedAt:     s.now(),
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.CreateMerchant(ctx, merchant)
	})
	if err != nil {
		return ledger.Merchant{}, err
	}
	return merchant, nil
}

// Merchant returns the merchant profile attached to accountID.
func (s *Service) Merchant(ctx context.Context, accountID string) (ledger.Merchant, error) {
	return s.store.MerchantByAccount(ctx, accountID)
}
