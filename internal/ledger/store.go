package ledger

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPersistence wraps any storage failure. Nothing from the failed
	// transaction is applied, so callers may retry.
	ErrPersistence    = errors.New("persistence failure")
	ErrOptimisticLock = errors.New("optimistic lock error")
	ErrAccountFlagged = errors.New("account flagged")

	ErrRequestIDTooLong  = fmt.Errorf("request id longer than %d characters", MaxRequestIDLen)
	ErrRequestIDConflict = errors.New("request id already used by a different kind of spin")
)

// MaxRequestIDLen matches the spin_logs.request_id column.
const MaxRequestIDLen = 64

// CheckRequestID rejects ids the spin log cannot store. Empty ids are allowed.
func CheckRequestID(requestID string) error {
	if len(requestID) > MaxRequestIDLen {
		return ErrRequestIDTooLong
	}
	return nil
}

// Store persists ticket counters, wallets, bonus state and the spin log.
type Store interface {
	// InAccountTx runs fn while holding the account's exclusive lock. Every
	// write made through the Tx is committed together when fn returns nil and
	// discarded otherwise.
	InAccountTx(ctx context.Context, accountID string, fn func(tx Tx) error) error

	Load(ctx context.Context, accountID string) (Account, error)
	SpinHistory(ctx context.Context, accountID string, limit int) ([]SpinLogEntry, error)
	WalletTransactions(ctx context.Context, accountID string, limit int) ([]Transaction, error)
}

// Tx is scoped to the account passed to InAccountTx. Getters return zero
// values for rows that do not exist yet.
type Tx interface {
	TicketCounter(ctx context.Context) (TicketCounter, error)
	SaveTicketCounter(ctx context.Context, c TicketCounter) error

	Wallet(ctx context.Context) (Wallet, error)
	// SaveWallet stores w if the persisted version still equals w.Version and
	// records txn in the journal.
	SaveWallet(ctx context.Context, w Wallet, txn Transaction) (Wallet, error)
	// TransactionByReference returns nil when no journal row matches.
	TransactionByReference(ctx context.Context, referenceID, transactionType string) (*Transaction, error)

	BonusState(ctx context.Context) (BonusState, error)
	SaveBonusState(ctx context.Context, s BonusState) error

	AppendSpinLog(ctx context.Context, e SpinLogEntry) error
	// SpinLogByRequest returns nil when no row carries requestID.
	SpinLogByRequest(ctx context.Context, requestID string) (*SpinLogEntry, error)
	// MaxTicketsUsedFromLog rebuilds tickets used from ticket-spin log rows.
	MaxTicketsUsedFromLog(ctx context.Context) (int64, error)
}
