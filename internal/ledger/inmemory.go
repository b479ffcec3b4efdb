package ledger

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cryptopay/cryptopay/internal/apperr"
	"github.com/cryptopay/cryptopay/internal/money"
)

type claimKey struct {
	order   string
	payment string
}

// MemoryStore is a concurrency-safe in-memory Store. Balance rows are guarded
// by per-row locks held for the life of a unit of work; all staged changes
// become visible together at commit.
type MemoryStore struct {
	mu        sync.RWMutex
	accounts  map[string]Account
	byEmail   map[string]string
	byAlias   map[string]string
	balances  map[BalanceKey]money.Amount
	entries   map[string][]Entry
	merchants map[string]Merchant
	byOwner   map[string]string
	orders    map[string]Order
	claims    map[claimKey]PaymentClaim
	pending   map[string]struct{}

	lockMu   sync.Mutex
	rowLocks map[BalanceKey]chan struct{}

	seq atomic.Int64
	now func() time.Time
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]Account),
		byEmail:   make(map[string]string),
		byAlias:   make(map[string]string),
		balances:  make(map[BalanceKey]money.Amount),
		entries:   make(map[string][]Entry),
		merchants: make(map[string]Merchant),
		byOwner:   make(map[string]string),
		orders:    make(map[string]Order),
		claims:    make(map[claimKey]PaymentClaim),
		pending:   make(map[string]struct{}),
		rowLocks:  make(map[BalanceKey]chan struct{}),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := apperr.FromContext(ctx); err != nil {
		return err
	}
	tx := &memTx{
		store:  s,
		held:   make(map[BalanceKey]struct{}),
		deltas: make(map[BalanceKey]money.Amount),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := apperr.FromContext(ctx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *MemoryStore) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range tx.accounts {
		s.accounts[a.ID] = a
		s.byEmail[a.Email] = a.ID
		s.byAlias[a.Alias] = a.ID
		for _, b := range Buckets {
			s.balances[BalanceKey{AccountID: a.ID, Bucket: b}] = 0
		}
	}
	for _, m := range tx.merchants {
		s.merchants[m.ID] = m
		s.byOwner[m.AccountID] = m.ID
	}
	for key, delta := range tx.deltas {
		s.balances[key] += delta
	}
	for _, e := range tx.entries {
		s.entries[e.AccountID] = append(s.entries[e.AccountID], e)
	}
	for _, c := range tx.claims {
		s.claims[claimKey{c.OrderHandle, c.PaymentHandle}] = c
	}
	for _, r := range tx.reserved {
		delete(s.pending, r)
	}
	tx.reserved = nil
}

// reserve claims a unique name for an uncommitted record. It fails if the
// name is committed or reserved by another open unit of work.
func (s *MemoryStore) reserve(name string, committed func() bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if committed() {
		return false
	}
	if _, taken := s.pending[name]; taken {
		return false
	}
	s.pending[name] = struct{}{}
	return true
}

func (s *MemoryStore) unreserve(names []string) {
	if len(names) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		delete(s.pending, n)
	}
}

func (s *MemoryStore) rowLock(key BalanceKey) chan struct{} {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	ch, ok := s.rowLocks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.rowLocks[key] = ch
	}
	return ch
}

func (s *MemoryStore) Account(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return Account{}, apperr.NotFound("account not found")
	}
	return a, nil
}

func (s *MemoryStore) AccountByEmail(_ context.Context, email string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return Account{}, apperr.NotFound("account not found")
	}
	return s.accounts[id], nil
}

func (s *MemoryStore) UpdateDisplayName(_ context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return apperr.NotFound("account not found")
	}
	a.DisplayName = name
	s.accounts[id] = a
	return nil
}

func (s *MemoryStore) Balances(_ context.Context, accountID string) (BalanceSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.accounts[accountID]; !ok {
		return BalanceSet{}, apperr.NotFound("account not found")
	}
	set := BalanceSet{AccountID: accountID}
	for _, b := range Buckets {
		set.set(b, s.balances[BalanceKey{AccountID: accountID, Bucket: b}])
	}
	return set, nil
}

func (s *MemoryStore) Entries(_ context.Context, accountID string, page Page) (EntryPage, error) {
	after, paged, err := decodeCursor(page.Cursor)
	if err != nil {
		return EntryPage{}, err
	}

	s.mu.RLock()
	if _, ok := s.accounts[accountID]; !ok {
		s.mu.RUnlock()
		return EntryPage{}, apperr.NotFound("account not found")
	}
	all := make([]Entry, len(s.entries[accountID]))
	copy(all, s.entries[accountID])
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Seq > all[j].Seq })

	limit := page.limit()
	out := make([]Entry, 0, limit)
	var next string
	for _, e := range all {
		if paged && !after.before(e) {
			continue
		}
		if len(out) == limit {
			next = encodeCursor(out[len(out)-1])
			break
		}
		out = append(out, e)
	}
	return EntryPage{Entries: out, NextCursor: next}, nil
}

func (s *MemoryStore) Merchant(_ context.Context, id string) (Merchant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.merchants[id]
	if !ok {
		return Merchant{}, apperr.NotFound("merchant not found")
	}
	return m, nil
}

func (s *MemoryStore) MerchantByAccount(_ context.Context, accountID string) (Merchant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byOwner[accountID]
	if !ok {
		return Merchant{}, apperr.NotFound("merchant not found")
	}
	return s.merchants[id], nil
}

func (s *MemoryStore) SaveOrder(_ context.Context, order Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[order.Handle]; exists {
		return apperr.New(apperr.KindAlreadyExists, "order already recorded")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now()
	}
	s.orders[order.Handle] = order
	return nil
}

func (s *MemoryStore) Order(_ context.Context, handle string) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[handle]
	if !ok {
		return Order{}, apperr.NotFound("order not found")
	}
	return o, nil
}

type memTx struct {
	store     *MemoryStore
	held      map[BalanceKey]struct{}
	deltas    map[BalanceKey]money.Amount
	accounts  []Account
	merchants []Merchant
	entries   []Entry
	claims    []PaymentClaim
	reserved  []string
}

func (tx *memTx) release() {
	tx.store.unreserve(tx.reserved)
	for key := range tx.held {
		<-tx.store.rowLock(key)
	}
	tx.held = nil
}

func (tx *memTx) CreateAccount(_ context.Context, a Account) error {
	s := tx.store
	emailTaken := func() bool { _, ok := s.byEmail[a.Email]; return ok }
	aliasTaken := func() bool { _, ok := s.byAlias[a.Alias]; return ok }

	if !s.reserve("email:"+a.Email, emailTaken) {
		return apperr.New(apperr.KindDuplicateIdentity, "email already registered")
	}
	tx.reserved = append(tx.reserved, "email:"+a.Email)
	if !s.reserve("alias:"+a.Alias, aliasTaken) {
		return apperr.New(apperr.KindDuplicateIdentity, "alias already taken")
	}
	tx.reserved = append(tx.reserved, "alias:"+a.Alias)

	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	tx.accounts = append(tx.accounts, a)
	return nil
}

func (tx *memTx) staged(id string) (Account, bool) {
	for _, a := range tx.accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}

func (tx *memTx) Account(ctx context.Context, id string) (Account, error) {
	if a, ok := tx.staged(id); ok {
		return a, nil
	}
	return tx.store.Account(ctx, id)
}

func (tx *memTx) AccountByAlias(_ context.Context, alias string) (Account, error) {
	for _, a := range tx.accounts {
		if a.Alias == alias {
			return a, nil
		}
	}
	s := tx.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byAlias[alias]
	if !ok {
		return Account{}, apperr.NotFound("no account with alias " + alias)
	}
	return s.accounts[id], nil
}

func (tx *memTx) CreateMerchant(ctx context.Context, m Merchant) error {
	if _, err := tx.Account(ctx, m.AccountID); err != nil {
		return err
	}
	s := tx.store
	taken := func() bool { _, ok := s.byOwner[m.AccountID]; return ok }
	if !s.reserve("merchant:"+m.AccountID, taken) {
		return apperr.New(apperr.KindAlreadyExists, "account is already a merchant")
	}
	tx.reserved = append(tx.reserved, "merchant:"+m.AccountID)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	tx.merchants = append(tx.merchants, m)
	return nil
}

func (tx *memTx) Merchant(ctx context.Context, id string) (Merchant, error) {
	for _, m := range tx.merchants {
		if m.ID == id {
			return m, nil
		}
	}
	return tx.store.Merchant(ctx, id)
}

func (tx *memTx) LockBalances(ctx context.Context, keys ...BalanceKey) error {
	for _, key := range sortKeys(keys) {
		if err := tx.lock(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (tx *memTx) lock(ctx context.Context, key BalanceKey) error {
	if err := validKey(key); err != nil {
		return err
	}
	if _, ok := tx.held[key]; ok {
		return nil
	}
	if !tx.exists(key) {
		return apperr.NotFound("account not found")
	}
	select {
	case tx.store.rowLock(key) <- struct{}{}:
		tx.held[key] = struct{}{}
		return nil
	case <-ctx.Done():
		return apperr.FromContext(ctx)
	}
}

// exists reports whether key names a committed balance row or one staged by
// this unit of work. Row locks are only created for existing rows.
func (tx *memTx) exists(key BalanceKey) bool {
	s := tx.store
	s.mu.RLock()
	_, ok := s.balances[key]
	s.mu.RUnlock()
	if ok {
		return true
	}
	_, staged := tx.staged(key.AccountID)
	return staged
}

// current returns the balance as seen by this unit of work.
func (tx *memTx) current(key BalanceKey) (money.Amount, error) {
	s := tx.store
	s.mu.RLock()
	base, ok := s.balances[key]
	s.mu.RUnlock()
	if !ok {
		if _, staged := tx.staged(key.AccountID); !staged {
			return 0, apperr.NotFound("account not found")
		}
	}
	return base + tx.deltas[key], nil
}

func (tx *memTx) Balance(ctx context.Context, key BalanceKey) (money.Amount, error) {
	if err := tx.lock(ctx, key); err != nil {
		return 0, err
	}
	return tx.current(key)
}

func (tx *memTx) Adjust(ctx context.Context, key BalanceKey, delta money.Amount) (money.Amount, error) {
	if err := tx.lock(ctx, key); err != nil {
		return 0, err
	}
	balance, err := tx.current(key)
	if err != nil {
		return 0, err
	}
	next, err := nextBalance(key, balance, delta)
	if err != nil {
		return 0, err
	}
	tx.deltas[key] += delta
	return next, nil
}

func (tx *memTx) Append(ctx context.Context, e Entry) (Entry, error) {
	if err := validKey(BalanceKey{AccountID: e.AccountID, Bucket: e.Bucket}); err != nil {
		return Entry{}, err
	}
	if _, err := tx.Account(ctx, e.AccountID); err != nil {
		return Entry{}, err
	}
	e.ID = uuid.NewString()
	e.Seq = tx.store.seq.Add(1)
	e.CreatedAt = tx.store.now()
	tx.entries = append(tx.entries, e)
	return e, nil
}

func (tx *memTx) ClaimPayment(_ context.Context, c PaymentClaim) error {
	s := tx.store
	claimed := func() bool { _, ok := s.claims[claimKey{c.OrderHandle, c.PaymentHandle}]; return ok }
	name := "claim:" + c.OrderHandle + "|" + c.PaymentHandle
	if !s.reserve(name, claimed) {
		return apperr.New(apperr.KindDuplicatePayment, "payment already applied")
	}
	tx.reserved = append(tx.reserved, name)
	if c.ClaimedAt.IsZero() {
		c.ClaimedAt = s.now()
	}
	tx.claims = append(tx.claims, c)
	return nil
}
