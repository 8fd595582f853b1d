package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rewards_service/internal/ledger"
)

const lockNamespace = "rewards:account:"

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func persistenceErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ledger.ErrPersistence, op, err)
}

// InAccountTx runs fn in one database transaction that holds a transaction
// scoped advisory lock on the account. Advisory locks serialize callers even
// before the account has any rows, which SELECT ... FOR UPDATE cannot.
func (s *Store) InAccountTx(ctx context.Context, accountID string, fn func(tx ledger.Tx) error) error {
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		if err := dbtx.Exec("SELECT pg_advisory_xact_lock(?)", accountLockKey(accountID)).Error; err != nil {
			return persistenceErr("acquire account lock", err)
		}
		fnErr = fn(&gormTx{db: dbtx, accountID: accountID})
		return fnErr
	})
	if err == nil {
		return nil
	}
	if fnErr != nil || errors.Is(err, ledger.ErrPersistence) {
		return err
	}
	return persistenceErr("transaction", err)
}

// accountLockKey maps an account id onto the int64 space of pg advisory locks.
func accountLockKey(accountID string) int64 {
	h := sha256.Sum256([]byte(lockNamespace + accountID))
	return int64(binary.BigEndian.Uint64(h[:8]) & 0x7FFFFFFFFFFFFFFF)
}

func (s *Store) Load(ctx context.Context, accountID string) (ledger.Account, error) {
	acct := ledger.Account{AccountID: accountID, Balance: decimal.Zero}
	db := s.db.WithContext(ctx)

	var c ledger.TicketCounter
	if err := db.Where("account_id = ?", accountID).Take(&c).Error; err == nil {
		acct.TicketsUsed = c.TicketsUsed
		acct.Flagged = c.Flagged
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Account{}, persistenceErr("load ticket counter", err)
	}

	var w ledger.Wallet
	if err := db.Where("account_id = ?", accountID).Take(&w).Error; err == nil {
		acct.Balance = w.Balance
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Account{}, persistenceErr("load wallet", err)
	}

	var b ledger.BonusState
	if err := db.Where("account_id = ?", accountID).Take(&b).Error; err == nil {
		acct.LastBonusSpinAt = b.LastBonusSpinAt
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Account{}, persistenceErr("load bonus state", err)
	}
	return acct, nil
}

func (s *Store) SpinHistory(ctx context.Context, accountID string, limit int) ([]ledger.SpinLogEntry, error) {
	var entries []ledger.SpinLogEntry
	q := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, persistenceErr("spin history", err)
	}
	return entries, nil
}

func (s *Store) WalletTransactions(ctx context.Context, accountID string, limit int) ([]ledger.Transaction, error) {
	var txns []ledger.Transaction
	q := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&txns).Error; err != nil {
		return nil, persistenceErr("wallet transactions", err)
	}
	return txns, nil
}

type gormTx struct {
	db        *gorm.DB
	accountID string
}

func (t *gormTx) TicketCounter(ctx context.Context) (ledger.TicketCounter, error) {
	var c ledger.TicketCounter
	err := t.db.WithContext(ctx).Where("account_id = ?", t.accountID).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.TicketCounter{AccountID: t.accountID}, nil
	}
	if err != nil {
		return ledger.TicketCounter{}, persistenceErr("get ticket counter", err)
	}
	return c, nil
}

func (t *gormTx) SaveTicketCounter(ctx context.Context, c ledger.TicketCounter) error {
	now := time.Now()
	c.AccountID = t.accountID
	c.CreatedAt = now
	c.UpdatedAt = now
	err := t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"tickets_used": gorm.Expr("GREATEST(ticket_counters.tickets_used, excluded.tickets_used)"),
			"flagged":      gorm.Expr("excluded.flagged"),
			"updated_at":   gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&c).Error
	if err != nil {
		return persistenceErr("save ticket counter", err)
	}
	return nil
}

func (t *gormTx) Wallet(ctx context.Context) (ledger.Wallet, error) {
	var w ledger.Wallet
	err := t.db.WithContext(ctx).Where("account_id = ?", t.accountID).Take(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Wallet{AccountID: t.accountID, Balance: decimal.Zero, Version: 0}, nil
	}
	if err != nil {
		return ledger.Wallet{}, persistenceErr("get wallet", err)
	}
	return w, nil
}

func (t *gormTx) SaveWallet(ctx context.Context, w ledger.Wallet, txn ledger.Transaction) (ledger.Wallet, error) {
	db := t.db.WithContext(ctx)
	now := time.Now()
	w.AccountID = t.accountID

	if w.Version == 0 {
		w.Version = 1
		w.CreatedAt = now
		w.UpdatedAt = now
		result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&w)
		if result.Error != nil {
			return ledger.Wallet{}, persistenceErr("create wallet", result.Error)
		}
		if result.RowsAffected == 0 {
			return ledger.Wallet{}, ledger.ErrOptimisticLock
		}
	} else {
		result := db.Model(&ledger.Wallet{}).
			Where("account_id = ? AND version = ?", w.AccountID, w.Version).
			Updates(map[string]interface{}{
				"balance":    w.Balance,
				"version":    gorm.Expr("version + 1"),
				"updated_at": now,
			})
		if result.Error != nil {
			return ledger.Wallet{}, persistenceErr("update wallet", result.Error)
		}
		if result.RowsAffected == 0 {
			return ledger.Wallet{}, ledger.ErrOptimisticLock
		}
		w.Version++
		w.UpdatedAt = now
	}

	if txn.TransactionID == "" {
		txn.TransactionID = uuid.NewString()
	}
	txn.AccountID = t.accountID
	txn.CreatedAt = now
	if err := db.Create(&txn).Error; err != nil {
		return ledger.Wallet{}, persistenceErr("create wallet transaction", err)
	}
	return w, nil
}

func (t *gormTx) TransactionByReference(ctx context.Context, referenceID, transactionType string) (*ledger.Transaction, error) {
	var txn ledger.Transaction
	err := t.db.WithContext(ctx).
		Where("account_id = ? AND reference_id = ? AND transaction_type = ?", t.accountID, referenceID, transactionType).
		Take(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, persistenceErr("get transaction by reference", err)
	}
	return &txn, nil
}

func (t *gormTx) BonusState(ctx context.Context) (ledger.BonusState, error) {
	var b ledger.BonusState
	err := t.db.WithContext(ctx).Where("account_id = ?", t.accountID).Take(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.BonusState{AccountID: t.accountID}, nil
	}
	if err != nil {
		return ledger.BonusState{}, persistenceErr("get bonus state", err)
	}
	return b, nil
}

func (t *gormTx) SaveBonusState(ctx context.Context, b ledger.BonusState) error {
	b.AccountID = t.accountID
	b.UpdatedAt = time.Now()
	err := t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_bonus_spin_at", "updated_at"}),
	}).Create(&b).Error
	if err != nil {
		return persistenceErr("save bonus state", err)
	}
	return nil
}

func (t *gormTx) AppendSpinLog(ctx context.Context, e ledger.SpinLogEntry) error {
	e.AccountID = t.accountID
	if err := t.db.WithContext(ctx).Create(&e).Error; err != nil {
		return persistenceErr("append spin log", err)
	}
	return nil
}

func (t *gormTx) SpinLogByRequest(ctx context.Context, requestID string) (*ledger.SpinLogEntry, error) {
	if requestID == "" {
		return nil, nil
	}
	var e ledger.SpinLogEntry
	err := t.db.WithContext(ctx).
		Where("account_id = ? AND request_id = ?", t.accountID, requestID).
		Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, persistenceErr("get spin by request", err)
	}
	return &e, nil
}

func (t *gormTx) MaxTicketsUsedFromLog(ctx context.Context) (int64, error) {
	var maxUsed int64
	err := t.db.WithContext(ctx).
		Model(&ledger.SpinLogEntry{}).
		Select("COALESCE(MAX(tickets_used_after), 0)").
		Where("account_id = ? AND is_bonus = ?", t.accountID, false).
		Scan(&maxUsed).Error
	if err != nil {
		return 0, persistenceErr("max tickets used", err)
	}
	return maxUsed, nil
}
