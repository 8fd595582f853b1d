package wallet

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rewards_service/internal/ledger"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrMissingReference    = errors.New("reference id is required")
)

// CreditTx adds amount to the account's wallet inside an open ledger
// transaction and journals it. Callers that settle a spin use this so the
// credit commits together with the rest of the spin.
func CreditTx(ctx context.Context, tx ledger.Tx, amount decimal.Decimal, transactionType, referenceID string) (ledger.Wallet, ledger.Transaction, error) {
	if !amount.IsPositive() {
		return ledger.Wallet{}, ledger.Transaction{}, ErrInvalidAmount
	}
	w, err := tx.Wallet(ctx)
	if err != nil {
		return ledger.Wallet{}, ledger.Transaction{}, err
	}
	newBalance := w.Balance.Add(amount)
	return save(ctx, tx, w, newBalance, amount, transactionType, referenceID)
}

// CreditPrizeTx pays a spin prize and returns the balance after it. A prize
// with no value leaves the wallet untouched and reports the current balance.
func CreditPrizeTx(ctx context.Context, tx ledger.Tx, value decimal.Decimal, transactionType, spinID string) (decimal.Decimal, error) {
	if !value.IsPositive() {
		w, err := tx.Wallet(ctx)
		if err != nil {
			return decimal.Zero, err
		}
		return w.Balance, nil
	}
	w, _, err := CreditTx(ctx, tx, value, transactionType, spinID)
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

// DebitTx removes amount from the account's wallet. The balance is left
// unchanged and ErrInsufficientBalance returned when it would go negative.
func DebitTx(ctx context.Context, tx ledger.Tx, amount decimal.Decimal, transactionType, referenceID string) (ledger.Wallet, ledger.Transaction, error) {
	if !amount.IsPositive() {
		return ledger.Wallet{}, ledger.Transaction{}, ErrInvalidAmount
	}
	w, err := tx.Wallet(ctx)
	if err != nil {
		return ledger.Wallet{}, ledger.Transaction{}, err
	}
	if w.Balance.LessThan(amount) {
		return ledger.Wallet{}, ledger.Transaction{}, ErrInsufficientBalance
	}
	newBalance := w.Balance.Sub(amount)
	return save(ctx, tx, w, newBalance, amount, transactionType, referenceID)
}

func save(ctx context.Context, tx ledger.Tx, w ledger.Wallet, newBalance, amount decimal.Decimal, transactionType, referenceID string) (ledger.Wallet, ledger.Transaction, error) {
	txn := ledger.Transaction{
		TransactionID:   uuid.NewString(),
		TransactionType: transactionType,
		Amount:          amount,
		BalanceBefore:   w.Balance,
		BalanceAfter:    newBalance,
		ReferenceID:     referenceID,
	}
	w.Balance = newBalance
	saved, err := tx.SaveWallet(ctx, w, txn)
	if err != nil {
		return ledger.Wallet{}, ledger.Transaction{}, err
	}
	return saved, txn, nil
}
