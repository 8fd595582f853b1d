package postgres_test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"rewards_service/internal/bonus"
	"rewards_service/internal/ledger"
	"rewards_service/internal/ledger/postgres"
	"rewards_service/internal/prize"
	"rewards_service/internal/spin"
	"rewards_service/internal/wager"
	"rewards_service/internal/wallet"
)

var testDB *gorm.DB

func TestMain(m *testing.M) {
	flag.Parse()

	var terminate func()
	if !testing.Short() {
		ctx := context.Background()
		dsn := os.Getenv("DB_CONN_STR")
		if dsn == "" {
			dsn, terminate = setupContainer(ctx)
		}
		if dsn != "" {
			testDB = connect(ctx, dsn)
		}
	}

	code := m.Run()

	if terminate != nil {
		terminate()
	}
	os.Exit(code)
}

func setupContainer(ctx context.Context) (dsn string, terminate func()) {
	// testcontainers panics when no Docker daemon is reachable
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("Recovered from panic in setupContainer: %v\n", r)
			dsn, terminate = "", nil
		}
	}()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("rewards"),
		tcpostgres.WithUsername("rewards"),
		tcpostgres.WithPassword("rewards"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		fmt.Printf("WARNING: Failed to start postgres container: %v\n", err)
		return "", nil
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Printf("WARNING: Failed to get connection string: %v\n", err)
		_ = pgContainer.Terminate(ctx)
		return "", nil
	}
	return connStr, func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			fmt.Printf("Failed to terminate container: %v\n", err)
		}
	}
}

func connect(ctx context.Context, dsn string) *gorm.DB {
	db, err := postgres.Open(dsn, true)
	if err != nil {
		fmt.Printf("WARNING: %v\n", err)
		return nil
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		fmt.Printf("WARNING: %v\n", err)
		return nil
	}
	return db
}

func requireDB(t *testing.T) *postgres.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if testDB == nil {
		t.Skip("Skipping integration test: database not available")
	}
	return postgres.NewStore(testDB)
}

func newAccountID() string {
	return "acct_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

var winTable = prize.MustTable("primary", []prize.Option{
	{Label: "Lose", Value: decimal.Zero, Probability: 0.5},
	{Label: "$5", Value: decimal.NewFromInt(5), Probability: 0.5},
})

func TestConcurrentSpinsNeverOverspend(t *testing.T) {
	store := requireDB(t)
	l, err := spin.NewLedger(spin.Config{Store: store, Table: winTable, TicketUnit: 1000, RNG: prize.Fixed(0.9)})
	require.NoError(t, err)

	const tickets = 3
	accountID := newAccountID()
	snap := wager.Snapshot{AccountID: accountID, WageredAmount: tickets * 1000}

	var wg sync.WaitGroup
	var mu sync.Mutex
	successCount := 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Spin(context.Background(), spin.Request{AccountID: accountID, Snapshot: snap})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successCount++
				return
			}
			assert.ErrorIs(t, err, spin.ErrInsufficientTickets)
		}()
	}
	wg.Wait()
	require.Equal(t, tickets, successCount)

	acct, err := store.Load(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(tickets), acct.TicketsUsed)
	assert.True(t, decimal.NewFromInt(5*tickets).Equal(acct.Balance), "balance %s", acct.Balance)

	err = store.InAccountTx(context.Background(), accountID, func(tx ledger.Tx) error {
		fromLog, err := tx.MaxTicketsUsedFromLog(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(tickets), fromLog)
		return nil
	})
	require.NoError(t, err)
}

type failingLogStore struct {
	*postgres.Store
}

func (s failingLogStore) InAccountTx(ctx context.Context, accountID string, fn func(tx ledger.Tx) error) error {
	return s.Store.InAccountTx(ctx, accountID, func(tx ledger.Tx) error {
		return fn(failingLogTx{Tx: tx})
	})
}

type failingLogTx struct {
	ledger.Tx
}

func (failingLogTx) AppendSpinLog(context.Context, ledger.SpinLogEntry) error {
	return errors.New("simulated write failure")
}

func TestSettleFailureRollsBack(t *testing.T) {
	store := requireDB(t)
	l, err := spin.NewLedger(spin.Config{Store: failingLogStore{Store: store}, Table: winTable, RNG: prize.Fixed(0.9)})
	require.NoError(t, err)

	accountID := newAccountID()
	_, err = l.Spin(context.Background(), spin.Request{
		AccountID: accountID,
		Snapshot:  wager.Snapshot{AccountID: accountID, WageredAmount: 5000},
	})
	require.ErrorIs(t, err, ledger.ErrPersistence)

	acct, err := store.Load(context.Background(), accountID)
	require.NoError(t, err)
	assert.Zero(t, acct.TicketsUsed)
	assert.True(t, acct.Balance.IsZero())

	txns, err := store.WalletTransactions(context.Background(), accountID, 10)
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestSpinReplayAcrossRequests(t *testing.T) {
	store := requireDB(t)
	l, err := spin.NewLedger(spin.Config{Store: store, Table: winTable, RNG: prize.Fixed(0.9)})
	require.NoError(t, err)

	accountID := newAccountID()
	req := spin.Request{
		AccountID: accountID,
		Snapshot:  wager.Snapshot{AccountID: accountID, WageredAmount: 5000},
		RequestID: uuid.NewString(),
		ClientIP:  "198.51.100.4",
	}
	first, err := l.Spin(context.Background(), req)
	require.NoError(t, err)
	again, err := l.Spin(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.SpinID, again.SpinID)

	history, err := l.History(context.Background(), accountID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Len(t, history[0].ClientIPHash, 64)
}

func TestConcurrentBonusSpins(t *testing.T) {
	store := requireDB(t)
	svc, err := bonus.NewService(bonus.Config{Store: store, Table: winTable, RNG: prize.Fixed(0.9)})
	require.NoError(t, err)

	accountID := newAccountID()
	var wg sync.WaitGroup
	var mu sync.Mutex
	successCount := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Spin(context.Background(), bonus.Request{AccountID: accountID})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successCount++
				return
			}
			assert.ErrorIs(t, err, bonus.ErrOnCooldown)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, successCount)

	st, err := svc.Check(context.Background(), accountID)
	require.NoError(t, err)
	assert.False(t, st.Available)
}

func TestConcurrentDebits(t *testing.T) {
	store := requireDB(t)
	service := wallet.NewService(store)
	accountID := newAccountID()
	ctx := context.Background()

	_, err := service.Credit(ctx, wallet.TransactionRequest{
		AccountID: accountID, Amount: decimal.NewFromInt(50), ReferenceID: uuid.NewString(),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successCount := 0
	failCount := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Debit(ctx, wallet.TransactionRequest{
				AccountID: accountID, Amount: decimal.NewFromInt(10), ReferenceID: uuid.NewString(),
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
				failCount++
			} else {
				successCount++
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 5, successCount, "successCount")
	require.Equal(t, 5, failCount, "failCount")

	final, err := service.GetBalance(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, final.Balance.IsZero(), "finalBalance %s", final.Balance)

	txns, err := service.Transactions(ctx, accountID, 0)
	require.NoError(t, err)
	assert.Len(t, txns, 6)
}

func TestIdempotentTransaction(t *testing.T) {
	store := requireDB(t)
	service := wallet.NewService(store)
	accountID := newAccountID()
	ctx := context.Background()

	req := wallet.TransactionRequest{AccountID: accountID, Amount: decimal.NewFromInt(10), ReferenceID: uuid.NewString()}
	res1, err := service.Credit(ctx, req)
	require.NoError(t, err)
	res2, err := service.Credit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, res1.TransactionID, res2.TransactionID)
	assert.True(t, res2.Replayed)

	final, err := service.GetBalance(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(final.Balance))
}
