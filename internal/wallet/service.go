package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"rewards_service/internal/account"
	"rewards_service/internal/ledger"
	"rewards_service/internal/logging"
	"rewards_service/internal/metrics"
)

const (
	MaxRetries = 3
	RetryDelay = 10 * time.Millisecond

	MaxJournalLimit = 200
)

type Service struct {
	store ledger.Store
}

func NewService(store ledger.Store) *Service {
	return &Service{store: store}
}

func (s *Service) GetBalance(ctx context.Context, accountID string) (*Balance, error) {
	if err := account.Validate(accountID); err != nil {
		return nil, err
	}
	acct, err := s.store.Load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &Balance{AccountID: accountID, Balance: acct.Balance}, nil
}

// Transactions returns the account's wallet journal, newest first.
func (s *Service) Transactions(ctx context.Context, accountID string, limit int) ([]ledger.Transaction, error) {
	if err := account.Validate(accountID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxJournalLimit {
		limit = MaxJournalLimit
	}
	return s.store.WalletTransactions(ctx, accountID, limit)
}

// Credit adds amount to the account's wallet outside of a spin, e.g. for a
// manual adjustment.
func (s *Service) Credit(ctx context.Context, req TransactionRequest) (*TransactionResponse, error) {
	if req.TransactionType == "" {
		req.TransactionType = ledger.TransactionTypeAdjustment
	}
	return s.process(ctx, req, CreditTx)
}

// Debit is called by the withdrawal approval flow once a withdrawal has been
// approved. Spins never debit.
func (s *Service) Debit(ctx context.Context, req TransactionRequest) (*TransactionResponse, error) {
	if req.TransactionType == "" {
		req.TransactionType = ledger.TransactionTypeWithdrawal
	}
	return s.process(ctx, req, DebitTx)
}

type applyFunc func(ctx context.Context, tx ledger.Tx, amount decimal.Decimal, transactionType, referenceID string) (ledger.Wallet, ledger.Transaction, error)

func (s *Service) process(ctx context.Context, req TransactionRequest, apply applyFunc) (*TransactionResponse, error) {
	log := logging.FromContext(ctx)
	if err := account.Validate(req.AccountID); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	// the reference is the idempotency key; an empty one would match any
	// earlier unreferenced row and silently replay it
	if req.ReferenceID == "" {
		return nil, ErrMissingReference
	}

	var err error
	for i := 0; i < MaxRetries; i++ {
		var resp *TransactionResponse
		err = s.store.InAccountTx(ctx, req.AccountID, func(tx ledger.Tx) error {
			//idempotency check
			existing, err := tx.TransactionByReference(ctx, req.ReferenceID, req.TransactionType)
			if err != nil {
				return err
			}
			if existing != nil {
				resp = &TransactionResponse{
					TransactionID: existing.TransactionID,
					Balance:       existing.BalanceAfter,
					Replayed:      true,
				}
				return nil
			}
			w, txn, err := apply(ctx, tx, req.Amount, req.TransactionType, req.ReferenceID)
			if err != nil {
				return err
			}
			resp = &TransactionResponse{TransactionID: txn.TransactionID, Balance: w.Balance}
			return nil
		})
		if err == nil {
			if !resp.Replayed {
				metrics.WalletTransactions.WithLabelValues(req.TransactionType).Inc()
			}
			log.Info().
				Str("account_id", req.AccountID).
				Str("transaction_type", req.TransactionType).
				Str("amount", req.Amount.String()).
				Str("reference_id", req.ReferenceID).
				Bool("replayed", resp.Replayed).
				Msg("wallet transaction processed")
			return resp, nil
		}
		if errors.Is(err, ledger.ErrOptimisticLock) {
			time.Sleep(RetryDelay)
			continue
		}
		if errors.Is(err, ErrInsufficientBalance) {
			return nil, err
		}
		if errors.Is(err, ledger.ErrPersistence) {
			log.Error().Err(err).Str("account_id", req.AccountID).Msg("wallet transaction failed")
		}
		return nil, err
	}
	return nil, fmt.Errorf("wallet transaction: %w", err)
}
