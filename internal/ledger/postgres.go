package ledger

import (
	"context"
	_ "embed"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptopay/cryptopay/internal/apperr"
	"github.com/cryptopay/cryptopay/internal/money"
)

//go:embed schema.sql
var schema string

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
	pgForeignKey      = "23503"
)

// Migrate creates the ledger tables if they do not exist.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return apperr.Unavailable("apply schema", err)
	}
	return nil
}

// PostgresStore persists the wallet in PostgreSQL. Balance rows are
// serialized with SELECT ... FOR UPDATE inside READ COMMITTED transactions.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := apperr.FromContext(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return apperr.Unavailable("begin transaction", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := apperr.FromContext(ctx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Unavailable("commit transaction", err)
	}
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const accountColumns = `id, email, alias, display_name, phone, password_hash, created_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.Alias, &a.DisplayName, &a.Phone, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, apperr.NotFound("account not found")
		}
		return Account{}, apperr.Unavailable("load account", err)
	}
	return a, nil
}

func accountBy(ctx context.Context, q querier, column, value string) (Account, error) {
	return scanAccount(q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+column+` = $1`, value))
}

const merchantColumns = `id, account_id, business_name, payment_target, created_at`

func scanMerchant(row pgx.Row) (Merchant, error) {
	var m Merchant
	if err := row.Scan(&m.ID, &m.AccountID, &m.BusinessName, &m.PaymentTarget, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Merchant{}, apperr.NotFound("merchant not found")
		}
		return Merchant{}, apperr.Unavailable("load merchant", err)
	}
	return m, nil
}

func (s *PostgresStore) Account(ctx context.Context, id string) (Account, error) {
	return accountBy(ctx, s.db, "id", id)
}

func (s *PostgresStore) AccountByEmail(ctx context.Context, email string) (Account, error) {
	return accountBy(ctx, s.db, "email", email)
}

func (s *PostgresStore) UpdateDisplayName(ctx context.Context, id, name string) error {
	tag, err := s.db.Exec(ctx, `UPDATE accounts SET display_name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return apperr.Unavailable("update display name", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("account not found")
	}
	return nil
}

func (s *PostgresStore) Balances(ctx context.Context, accountID string) (BalanceSet, error) {
	rows, err := s.db.Query(ctx, `SELECT bucket, amount FROM balances WHERE account_id = $1`, accountID)
	if err != nil {
		return BalanceSet{}, apperr.Unavailable("load balances", err)
	}
	defer rows.Close()

	set := BalanceSet{AccountID: accountID}
	found := false
	for rows.Next() {
		var bucket string
		var amount int64
		if err := rows.Scan(&bucket, &amount); err != nil {
			return BalanceSet{}, apperr.Unavailable("scan balance", err)
		}
		set.set(Bucket(bucket), money.Amount(amount))
		found = true
	}
	if err := rows.Err(); err != nil {
		return BalanceSet{}, apperr.Unavailable("load balances", err)
	}
	if !found {
		return BalanceSet{}, apperr.NotFound("account not found")
	}
	return set, nil
}

func (s *PostgresStore) Entries(ctx context.Context, accountID string, page Page) (EntryPage, error) {
	after, paged, err := decodeCursor(page.Cursor)
	if err != nil {
		return EntryPage{}, err
	}
	if _, err := s.Account(ctx, accountID); err != nil {
		return EntryPage{}, err
	}

	limit := page.limit()
	const base = `SELECT id, seq, account_id, bucket, amount, description, external_ref, created_at
        FROM ledger_entries WHERE account_id = $1`
	var rows pgx.Rows
	if paged {
		rows, err = s.db.Query(ctx, base+` AND seq < $2
        ORDER BY seq DESC LIMIT $3`, accountID, after.seq, limit+1)
	} else {
		rows, err = s.db.Query(ctx, base+` ORDER BY seq DESC LIMIT $2`, accountID, limit+1)
	}
	if err != nil {
		return EntryPage{}, apperr.Unavailable("list entries", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, limit+1)
	for rows.Next() {
		var e Entry
		var bucket string
		var amount int64
		if err := rows.Scan(&e.ID, &e.Seq, &e.AccountID, &bucket, &amount, &e.Description, &e.ExternalRef, &e.CreatedAt); err != nil {
			return EntryPage{}, apperr.Unavailable("scan entry", err)
		}
		e.Bucket = Bucket(bucket)
		e.Amount = money.Amount(amount)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return EntryPage{}, apperr.Unavailable("list entries", err)
	}

	var next string
	if len(out) > limit {
		out = out[:limit]
		next = encodeCursor(out[limit-1])
	}
	return EntryPage{Entries: out, NextCursor: next}, nil
}

func (s *PostgresStore) Merchant(ctx context.Context, id string) (Merchant, error) {
	return scanMerchant(s.db.QueryRow(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE id = $1`, id))
}

func (s *PostgresStore) MerchantByAccount(ctx context.Context, accountID string) (Merchant, error) {
	return scanMerchant(s.db.QueryRow(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE account_id = $1`, accountID))
}

func (s *PostgresStore) SaveOrder(ctx context.Context, o Order) error {
	_, err := s.db.Exec(ctx, `INSERT INTO gateway_orders (handle, account_id, amount, bucket)
        VALUES ($1, $2, $3, $4)`, o.Handle, o.AccountID, o.Amount.Minor(), string(o.Bucket))
	if err != nil {
		if isCode(err, pgUniqueViolation) {
			return apperr.New(apperr.KindAlreadyExists, "order already recorded")
		}
		if isCode(err, pgForeignKey) {
			return apperr.NotFound("account not found")
		}
		return apperr.Unavailable("save order", err)
	}
	return nil
}

func (s *PostgresStore) Order(ctx context.Context, handle string) (Order, error) {
	var o Order
	var bucket string
	var amount int64
	err := s.db.QueryRow(ctx, `SELECT handle, account_id, amount, bucket, created_at
        FROM gateway_orders WHERE handle = $1`, handle).Scan(&o.Handle, &o.AccountID, &amount, &bucket, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, apperr.NotFound("order not found")
		}
		return Order{}, apperr.Unavailable("load order", err)
	}
	o.Amount = money.Amount(amount)
	o.Bucket = Bucket(bucket)
	return o, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) CreateAccount(ctx context.Context, a Account) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO accounts (id, email, alias, display_name, phone, password_hash)
        VALUES ($1, $2, $3, $4, $5, $6)`, a.ID, a.Email, a.Alias, a.DisplayName, a.Phone, a.PasswordHash)
	if err != nil {
		if isCode(err, pgUniqueViolation) {
			return apperr.New(apperr.KindDuplicateIdentity, "email or alias already registered")
		}
		return apperr.Unavailable("create account", err)
	}
	for _, b := range Buckets {
		if _, err := t.tx.Exec(ctx, `INSERT INTO balances (account_id, bucket, amount) VALUES ($1, $2, 0)`, a.ID, string(b)); err != nil {
			return apperr.Unavailable("create balances", err)
		}
	}
	return nil
}

func (t *pgTx) Account(ctx context.Context, id string) (Account, error) {
	return accountBy(ctx, t.tx, "id", id)
}

func (t *pgTx) AccountByAlias(ctx context.Context, alias string) (Account, error) {
	a, err := accountBy(ctx, t.tx, "alias", alias)
	if errors.Is(err, apperr.ErrNotFound) {
		return Account{}, apperr.NotFound("no account with alias " + alias)
	}
	return a, err
}

func (t *pgTx) CreateMerchant(ctx context.Context, m Merchant) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO merchants (id, account_id, business_name, payment_target)
        VALUES ($1, $2, $3, $4)`, m.ID, m.AccountID, m.BusinessName, m.PaymentTarget)
	if err != nil {
		switch {
		case isCode(err, pgUniqueViolation):
			return apperr.New(apperr.KindAlreadyExists, "account is already a merchant")
		case isCode(err, pgForeignKey):
			return apperr.NotFound("account not found")
		}
		return apperr.Unavailable("create merchant", err)
	}
	return nil
}

func (t *pgTx) Merchant(ctx context.Context, id string) (Merchant, error) {
	return scanMerchant(t.tx.QueryRow(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE id = $1`, id))
}

func (t *pgTx) LockBalances(ctx context.Context, keys ...BalanceKey) error {
	for _, key := range sortKeys(keys) {
		if _, err := t.Balance(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) Balance(ctx context.Context, key BalanceKey) (money.Amount, error) {
	if err := validKey(key); err != nil {
		return 0, err
	}
	const query = `SELECT amount FROM balances WHERE account_id = $1 AND bucket = $2 FOR UPDATE`
	var amount int64
	if err := t.tx.QueryRow(ctx, query, key.AccountID, string(key.Bucket)).Scan(&amount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperr.NotFound("account not found")
		}
		return 0, apperr.Unavailable("lock balance", err)
	}
	return money.Amount(amount), nil
}

func (t *pgTx) Adjust(ctx context.Context, key BalanceKey, delta money.Amount) (money.Amount, error) {
	balance, err := t.Balance(ctx, key)
	if err != nil {
		return 0, err
	}
	if _, err := nextBalance(key, balance, delta); err != nil {
		return 0, err
	}
	var next int64
	err = t.tx.QueryRow(ctx, `UPDATE balances SET amount = amount + $3
        WHERE account_id = $1 AND bucket = $2 RETURNING amount`,
		key.AccountID, string(key.Bucket), delta.Minor()).Scan(&next)
	if err != nil {
		if isCode(err, pgCheckViolation) {
			return 0, insufficient(key, balance, delta)
		}
		return 0, apperr.Unavailable("adjust balance", err)
	}
	return money.Amount(next), nil
}

func (t *pgTx) Append(ctx context.Context, e Entry) (Entry, error) {
	if err := validKey(BalanceKey{AccountID: e.AccountID, Bucket: e.Bucket}); err != nil {
		return Entry{}, err
	}
	e.ID = uuid.NewString()
	err := t.tx.QueryRow(ctx, `INSERT INTO ledger_entries (id, account_id, bucket, amount, description, external_ref)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING seq, created_at`,
		e.ID, e.AccountID, string(e.Bucket), e.Amount.Minor(), e.Description, e.ExternalRef).Scan(&e.Seq, &e.CreatedAt)
	if err != nil {
		if isCode(err, pgForeignKey) {
			return Entry{}, apperr.NotFound("account not found")
		}
		return Entry{}, apperr.Unavailable("append entry", err)
	}
	return e, nil
}

func (t *pgTx) ClaimPayment(ctx context.Context, c PaymentClaim) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO gateway_payments (order_handle, payment_handle, account_id)
        VALUES ($1, $2, $3)`, c.OrderHandle, c.PaymentHandle, c.AccountID)
	if err != nil {
		if isCode(err, pgUniqueViolation) {
			return apperr.New(apperr.KindDuplicatePayment, "payment already applied")
		}
		return apperr.Unavailable("claim payment", err)
	}
	return nil
}

func isCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
