package wallet

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rewards_service/internal/account"
	"rewards_service/internal/ledger"
	"rewards_service/internal/ledger/memory"
)

func setUpWallet(t *testing.T, balance int64) (*Service, string) {
	t.Helper()
	service := NewService(memory.New())
	accountID := "player_" + uuid.NewString()[:8]
	if balance > 0 {
		_, err := service.Credit(context.Background(), TransactionRequest{
			AccountID:   accountID,
			Amount:      decimal.NewFromInt(balance),
			ReferenceID: uuid.NewString(),
		})
		require.NoError(t, err)
	}
	return service, accountID
}

func TestConcurrentDebits(t *testing.T) {
	service, accountID := setUpWallet(t, 50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successCount := 0
	failCount := 0

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Debit(context.Background(), TransactionRequest{
				AccountID:   accountID,
				Amount:      decimal.NewFromInt(10),
				ReferenceID: uuid.NewString(),
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, ErrInsufficientBalance)
				failCount++
			} else {
				successCount++
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 5, successCount, "successCount")
	require.Equal(t, 5, failCount, "failCount")

	final, err := service.GetBalance(context.Background(), accountID)
	require.NoError(t, err)
	require.True(t, final.Balance.IsZero(), "finalBalance %s", final.Balance)
}

func TestIdempotentTransaction(t *testing.T) {
	service, accountID := setUpWallet(t, 50)
	req := TransactionRequest{
		AccountID:   accountID,
		Amount:      decimal.NewFromInt(10),
		ReferenceID: uuid.NewString(),
	}

	res1, err := service.Debit(context.Background(), req)
	require.NoError(t, err)
	res2, err := service.Debit(context.Background(), req)
	require.NoError(t, err)
	res3, err := service.Debit(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, res1.TransactionID, res2.TransactionID)
	require.Equal(t, res2.TransactionID, res3.TransactionID)
	assert.False(t, res1.Replayed)
	assert.True(t, res3.Replayed)

	final, err := service.GetBalance(context.Background(), accountID)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(40).Equal(final.Balance), "finalBalance %s", final.Balance)
}

func TestRaceCondition(t *testing.T) {
	service, accountID := setUpWallet(t, 50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successDebits := 0
	successCredits := 0

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := service.Debit(context.Background(), TransactionRequest{
				AccountID: accountID, Amount: decimal.NewFromInt(1), ReferenceID: uuid.NewString(),
			})
			mu.Lock()
			if err == nil {
				successDebits++
			}
			mu.Unlock()
		}()
		go func() {
			defer wg.Done()
			_, err := service.Credit(context.Background(), TransactionRequest{
				AccountID: accountID, Amount: decimal.NewFromInt(1), ReferenceID: uuid.NewString(),
			})
			mu.Lock()
			if err == nil {
				successCredits++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	final, err := service.GetBalance(context.Background(), accountID)
	require.NoError(t, err)
	want := decimal.NewFromInt(int64(50 + successCredits - successDebits))
	require.True(t, want.Equal(final.Balance), "want %s got %s", want, final.Balance)
}

func TestBalanceNeverNegative(t *testing.T) {
	service, accountID := setUpWallet(t, 0)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	expected := decimal.Zero

	for i := 0; i < 500; i++ {
		amount := decimal.NewFromInt(int64(rng.Intn(20) + 1))
		req := TransactionRequest{AccountID: accountID, Amount: amount, ReferenceID: uuid.NewString()}
		if rng.Intn(2) == 0 {
			_, err := service.Credit(ctx, req)
			require.NoError(t, err)
			expected = expected.Add(amount)
			continue
		}
		before, err := service.GetBalance(ctx, accountID)
		require.NoError(t, err)
		_, err = service.Debit(ctx, req)
		if amount.GreaterThan(expected) {
			require.ErrorIs(t, err, ErrInsufficientBalance)
			after, err := service.GetBalance(ctx, accountID)
			require.NoError(t, err)
			require.True(t, before.Balance.Equal(after.Balance))
			continue
		}
		require.NoError(t, err)
		expected = expected.Sub(amount)
	}

	final, err := service.GetBalance(ctx, accountID)
	require.NoError(t, err)
	assert.False(t, final.Balance.IsNegative())
	assert.True(t, expected.Equal(final.Balance))
}

func TestRejectsInvalidRequests(t *testing.T) {
	service, accountID := setUpWallet(t, 10)
	ctx := context.Background()

	_, err := service.Debit(ctx, TransactionRequest{AccountID: accountID, Amount: decimal.Zero, ReferenceID: "r"})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = service.Credit(ctx, TransactionRequest{AccountID: accountID, Amount: decimal.NewFromInt(-5), ReferenceID: "r"})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = service.Debit(ctx, TransactionRequest{AccountID: accountID, Amount: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, ErrMissingReference)

	_, err = service.Credit(ctx, TransactionRequest{AccountID: "no spaces allowed", Amount: decimal.NewFromInt(5), ReferenceID: "r"})
	require.ErrorIs(t, err, account.ErrInvalidAccountID)
}

func TestCreditTxJournalsBalances(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	err := store.InAccountTx(ctx, "alice", func(tx ledger.Tx) error {
		w, txn, err := CreditTx(ctx, tx, decimal.NewFromInt(7), ledger.TransactionTypeSpinWin, "spin-1")
		require.NoError(t, err)
		assert.True(t, w.Balance.Equal(decimal.NewFromInt(7)))
		assert.True(t, txn.BalanceBefore.IsZero())
		assert.True(t, txn.BalanceAfter.Equal(decimal.NewFromInt(7)))
		assert.NotEmpty(t, txn.TransactionID)
		return nil
	})
	require.NoError(t, err)

	txns, err := store.WalletTransactions(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "spin-1", txns[0].ReferenceID)
}

func TestCreditPrizeTx(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	err := store.InAccountTx(ctx, "alice", func(tx ledger.Tx) error {
		balance, err := CreditPrizeTx(ctx, tx, decimal.Zero, ledger.TransactionTypeSpinWin, "spin-lose")
		require.NoError(t, err)
		assert.True(t, balance.IsZero())

		balance, err = CreditPrizeTx(ctx, tx, decimal.NewFromInt(5), ledger.TransactionTypeBonusWin, "spin-win")
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(5).Equal(balance))
		return nil
	})
	require.NoError(t, err)

	txns, err := store.WalletTransactions(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, txns, 1, "a losing spin writes no journal row")
	assert.Equal(t, ledger.TransactionTypeBonusWin, txns[0].TransactionType)
}

func TestDebitsWithoutReferenceAreNotReplayed(t *testing.T) {
	service, accountID := setUpWallet(t, 100)
	ctx := context.Background()

	for _, amount := range []int64{10, 30} {
		_, err := service.Debit(ctx, TransactionRequest{AccountID: accountID, Amount: decimal.NewFromInt(amount)})
		require.ErrorIs(t, err, ErrMissingReference)
	}

	first, err := service.Debit(ctx, TransactionRequest{AccountID: accountID, Amount: decimal.NewFromInt(10), ReferenceID: "w-1"})
	require.NoError(t, err)
	second, err := service.Debit(ctx, TransactionRequest{AccountID: accountID, Amount: decimal.NewFromInt(30), ReferenceID: "w-2"})
	require.NoError(t, err)
	assert.False(t, second.Replayed)
	assert.NotEqual(t, first.TransactionID, second.TransactionID)

	final, err := service.GetBalance(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(60).Equal(final.Balance), "finalBalance %s", final.Balance)
}
