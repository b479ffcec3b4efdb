package ledger

import (
	"strings"
	"time"

	"github.com/cryptopay/cryptopay/internal/apperr"
	"github.com/cryptopay/cryptopay/internal/money"
)

// Bucket names one of the independently tracked balance pools of an account.
type Bucket string

const (
	Sandbox     Bucket = "sandbox"
	GatewayTest Bucket = "gateway_test"
	GatewayLive Bucket = "gateway_live"
)

// Buckets lists every bucket in canonical order.
var Buckets = []Bucket{Sandbox, GatewayTest, GatewayLive}

// ParseBucket accepts a canonical bucket name.
func ParseBucket(s string) (Bucket, error) {
	b := Bucket(strings.ToLower(strings.TrimSpace(s)))
	if !b.Valid() {
		return "", apperr.Invalid("unknown bucket " + s)
	}
	return b, nil
}

// BucketForMode maps a payment mode onto its bucket. Both the canonical bucket
// names and the short mode names ("testing", "test", "live") are accepted.
func BucketForMode(mode string) (Bucket, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "testing", "sandbox":
		return Sandbox, nil
	case "test", "gateway_test":
		return GatewayTest, nil
	case "live", "gateway_live":
		return GatewayLive, nil
	default:
		return "", apperr.Invalid("invalid mode " + mode)
	}
}

// Valid reports whether b is one of the known buckets.
func (b Bucket) Valid() bool {
	switch b {
	case Sandbox, GatewayTest, GatewayLive:
		return true
	}
	return false
}

// Label is the short mode name used in entry descriptions.
func (b Bucket) Label() string {
	switch b {
	case Sandbox:
		return "testing"
	case GatewayTest:
		return "test"
	case GatewayLive:
		return "live"
	}
	return string(b)
}

// BalanceKey identifies a single balance row.
type BalanceKey struct {
	AccountID string
	Bucket    Bucket
}

func (k BalanceKey) less(o BalanceKey) bool {
	if k.AccountID != o.AccountID {
		return k.AccountID < o.AccountID
	}
	return k.Bucket < o.Bucket
}

// Account is a registered wallet owner with a stable payment alias.
type Account struct {
	ID           string
	Email        string
	Alias        string
	DisplayName  string
	Phone        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// BalanceSet holds the three buckets of one account.
type BalanceSet struct {
	AccountID   string
	Sandbox     money.Amount
	GatewayTest money.Amount
	GatewayLive money.Amount
}

// Get returns the amount held in bucket b.
func (s BalanceSet) Get(b Bucket) money.Amount {
	switch b {
	case Sandbox:
		return s.Sandbox
	case GatewayTest:
		return s.GatewayTest
	case GatewayLive:
		return s.GatewayLive
	}
	return 0
}

func (s *BalanceSet) set(b Bucket, v money.Amount) {
	switch b {
	case Sandbox:
		s.Sandbox = v
	case GatewayTest:
		s.GatewayTest = v
	case GatewayLive:
		s.GatewayLive = v
	}
}

// Entry is an immutable signed record of one balance effect.
type Entry struct {
	ID          string
	Seq         int64
	AccountID   string
	Bucket      Bucket
	Amount      money.Amount // positive credit, negative debit
	Description string
	ExternalRef string
	CreatedAt   time.Time
}

// Merchant marks an account as a payment-acceptance endpoint.
type Merchant struct {
	ID            string
	AccountID     string
	BusinessName  string
	PaymentTarget string
	CreatedAt     time.Time
}

// Order records a gateway order issued to an account.
type Order struct {
	Handle    string
	AccountID string
	Amount    money.Amount
	Bucket    Bucket
	CreatedAt time.Time
}

// PaymentClaim marks a gateway confirmation as applied.
type PaymentClaim struct {
	OrderHandle   string
	PaymentHandle string
	AccountID     string
	ClaimedAt     time.Time
}

// Page requests one page of ledger entries. An empty cursor starts at the newest entry.
type Page struct {
	Limit  int
	Cursor string
}

// EntryPage is one page of entries, newest first. NextCursor is empty on the last page.
type EntryPage struct {
	Entries    []Entry
	NextCursor string
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

func (p Page) limit() int {
	switch {
	case p.Limit <= 0:
		return defaultPageLimit
	case p.Limit > maxPageLimit:
		return maxPageLimit
	}
	return p.Limit
}
