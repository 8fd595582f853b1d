// Package memory is an in-process ledger.Store used for development and
// tests. Writes are staged per transaction and applied together on commit.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rewards_service/internal/concurrency"
	"rewards_service/internal/ledger"
)

type Store struct {
	locks *concurrency.LockManager
	now   func() time.Time

	mu       sync.RWMutex
	counters map[string]ledger.TicketCounter
	wallets  map[string]ledger.Wallet
	bonus    map[string]ledger.BonusState
	logs     map[string][]ledger.SpinLogEntry
	txns     map[string][]ledger.Transaction
}

func New() *Store {
	return &Store{
		locks:    concurrency.NewLockManager(),
		now:      time.Now,
		counters: make(map[string]ledger.TicketCounter),
		wallets:  make(map[string]ledger.Wallet),
		bonus:    make(map[string]ledger.BonusState),
		logs:     make(map[string][]ledger.SpinLogEntry),
		txns:     make(map[string][]ledger.Transaction),
	}
}

func (s *Store) InAccountTx(ctx context.Context, accountID string, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ledger.ErrPersistence, err)
	}
	return s.locks.WithLock(accountID, func() error {
		tx := &memTx{s: s, accountID: accountID}
		if err := fn(tx); err != nil {
			return err
		}
		// A request cancelled before the commit point leaves nothing behind.
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ledger.ErrPersistence, err)
		}
		s.commit(tx)
		return nil
	})
}

func (s *Store) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.counter != nil {
		s.counters[tx.accountID] = *tx.counter
	}
	if tx.wallet != nil {
		s.wallets[tx.accountID] = *tx.wallet
	}
	if tx.bonus != nil {
		s.bonus[tx.accountID] = *tx.bonus
	}
	s.logs[tx.accountID] = append(s.logs[tx.accountID], tx.logs...)
	s.txns[tx.accountID] = append(s.txns[tx.accountID], tx.txns...)
}

func (s *Store) Load(ctx context.Context, accountID string) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct := ledger.Account{AccountID: accountID, Balance: decimal.Zero}
	if c, ok := s.counters[accountID]; ok {
		acct.TicketsUsed = c.TicketsUsed
		acct.Flagged = c.Flagged
	}
	if w, ok := s.wallets[accountID]; ok {
		acct.Balance = w.Balance
	}
	if b, ok := s.bonus[accountID]; ok && b.LastBonusSpinAt != nil {
		t := *b.LastBonusSpinAt
		acct.LastBonusSpinAt = &t
	}
	return acct, nil
}

func (s *Store) SpinHistory(ctx context.Context, accountID string, limit int) ([]ledger.SpinLogEntry, error) {
	s.mu.RLock()
	entries := append([]ledger.SpinLogEntry(nil), s.logs[accountID]...)
	s.mu.RUnlock()

	slices.Reverse(entries)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) WalletTransactions(ctx context.Context, accountID string, limit int) ([]ledger.Transaction, error) {
	s.mu.RLock()
	txns := append([]ledger.Transaction(nil), s.txns[accountID]...)
	s.mu.RUnlock()

	slices.Reverse(txns)
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].CreatedAt.After(txns[j].CreatedAt)
	})
	if limit > 0 && len(txns) > limit {
		txns = txns[:limit]
	}
	return txns, nil
}

type memTx struct {
	s         *Store
	accountID string

	counter *ledger.TicketCounter
	wallet  *ledger.Wallet
	bonus   *ledger.BonusState
	logs    []ledger.SpinLogEntry
	txns    []ledger.Transaction
}

func (tx *memTx) TicketCounter(ctx context.Context) (ledger.TicketCounter, error) {
	if tx.counter != nil {
		return *tx.counter, nil
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	if c, ok := tx.s.counters[tx.accountID]; ok {
		return c, nil
	}
	return ledger.TicketCounter{AccountID: tx.accountID}, nil
}

func (tx *memTx) SaveTicketCounter(ctx context.Context, c ledger.TicketCounter) error {
	current, err := tx.TicketCounter(ctx)
	if err != nil {
		return err
	}
	now := tx.s.now()
	c.AccountID = tx.accountID
	c.TicketsUsed = max(c.TicketsUsed, current.TicketsUsed)
	if current.CreatedAt.IsZero() {
		c.CreatedAt = now
	} else {
		c.CreatedAt = current.CreatedAt
	}
	c.UpdatedAt = now
	tx.counter = &c
	return nil
}

func (tx *memTx) Wallet(ctx context.Context) (ledger.Wallet, error) {
	if tx.wallet != nil {
		return *tx.wallet, nil
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	if w, ok := tx.s.wallets[tx.accountID]; ok {
		return w, nil
	}
	return ledger.Wallet{AccountID: tx.accountID, Balance: decimal.Zero}, nil
}

func (tx *memTx) SaveWallet(ctx context.Context, w ledger.Wallet, txn ledger.Transaction) (ledger.Wallet, error) {
	current, err := tx.Wallet(ctx)
	if err != nil {
		return ledger.Wallet{}, err
	}
	if current.Version != w.Version {
		return ledger.Wallet{}, ledger.ErrOptimisticLock
	}
	now := tx.s.now()
	w.AccountID = tx.accountID
	w.Version++
	w.UpdatedAt = now
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	if txn.TransactionID == "" {
		txn.TransactionID = uuid.NewString()
	}
	txn.AccountID = tx.accountID
	txn.CreatedAt = now
	tx.wallet = &w
	tx.txns = append(tx.txns, txn)
	return w, nil
}

func (tx *memTx) TransactionByReference(ctx context.Context, referenceID, transactionType string) (*ledger.Transaction, error) {
	match := func(t ledger.Transaction) bool {
		return t.ReferenceID == referenceID && t.TransactionType == transactionType
	}
	for _, t := range tx.txns {
		if match(t) {
			return &t, nil
		}
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	for _, t := range tx.s.txns[tx.accountID] {
		if match(t) {
			return &t, nil
		}
	}
	return nil, nil
}

func (tx *memTx) BonusState(ctx context.Context) (ledger.BonusState, error) {
	if tx.bonus != nil {
		return *tx.bonus, nil
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	if b, ok := tx.s.bonus[tx.accountID]; ok {
		return b, nil
	}
	return ledger.BonusState{AccountID: tx.accountID}, nil
}

func (tx *memTx) SaveBonusState(ctx context.Context, b ledger.BonusState) error {
	b.AccountID = tx.accountID
	b.UpdatedAt = tx.s.now()
	tx.bonus = &b
	return nil
}

func (tx *memTx) AppendSpinLog(ctx context.Context, e ledger.SpinLogEntry) error {
	if e.RequestID != "" {
		existing, err := tx.SpinLogByRequest(ctx, e.RequestID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: duplicate request id %s", ledger.ErrPersistence, e.RequestID)
		}
	}
	e.AccountID = tx.accountID
	tx.logs = append(tx.logs, e)
	return nil
}

func (tx *memTx) SpinLogByRequest(ctx context.Context, requestID string) (*ledger.SpinLogEntry, error) {
	if requestID == "" {
		return nil, nil
	}
	for i := range tx.logs {
		if tx.logs[i].RequestID == requestID {
			e := tx.logs[i]
			return &e, nil
		}
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	for _, e := range tx.s.logs[tx.accountID] {
		if e.RequestID == requestID {
			return &e, nil
		}
	}
	return nil, nil
}

func (tx *memTx) MaxTicketsUsedFromLog(ctx context.Context) (int64, error) {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	var maxUsed int64
	for _, logs := range [][]ledger.SpinLogEntry{tx.s.logs[tx.accountID], tx.logs} {
		for _, e := range logs {
			if !e.IsBonus && e.TicketsUsedAfter > maxUsed {
				maxUsed = e.TicketsUsedAfter
			}
		}
	}
	return maxUsed, nil
}
