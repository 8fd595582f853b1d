// Package spin authorizes, draws and settles ticket spins.
package spin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rewards_service/internal/account"
	"rewards_service/internal/ledger"
	"rewards_service/internal/logging"
	"rewards_service/internal/metrics"
	"rewards_service/internal/notify"
	"rewards_service/internal/prize"
	"rewards_service/internal/ticket"
	"rewards_service/internal/wager"
	"rewards_service/internal/wallet"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

var (
	ErrInsufficientTickets = errors.New("no tickets remaining")
	ErrAccountFlagged      = ledger.ErrAccountFlagged
	ErrSnapshotMismatch    = errors.New("wager snapshot belongs to another account")
)

type Config struct {
	Store      ledger.Store
	Table      prize.Table
	TicketUnit int64
	RNG        prize.RNG
	Now        func() time.Time
	Notifier   notify.Notifier
}

type Ledger struct {
	store    ledger.Store
	table    prize.Table
	unit     int64
	rng      prize.RNG
	now      func() time.Time
	notifier notify.Notifier
}

func NewLedger(cfg Config) (*Ledger, error) {
	if cfg.Store == nil {
		return nil, errors.New("spin: store is required")
	}
	if cfg.Table.Len() == 0 {
		return nil, fmt.Errorf("spin: %w", prize.ErrInvalidPrizeTable)
	}
	l := &Ledger{
		store:    cfg.Store,
		table:    cfg.Table,
		unit:     cfg.TicketUnit,
		rng:      cfg.RNG,
		now:      cfg.Now,
		notifier: cfg.Notifier,
	}
	if l.unit <= 0 {
		l.unit = ticket.DefaultUnit
	}
	if l.rng == nil {
		l.rng = prize.CryptoRNG{}
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.notifier == nil {
		l.notifier = notify.Nop
	}
	return l, nil
}

func (l *Ledger) Table() prize.Table { return l.table }

func (l *Ledger) TicketUnit() int64 { return l.unit }

// Lookup reports the account's ticket position against snapshot. Read only.
func (l *Ledger) Lookup(ctx context.Context, accountID string, snapshot wager.Snapshot) (*Summary, error) {
	if err := account.Validate(accountID); err != nil {
		return nil, err
	}
	if snapshot.AccountID != "" && snapshot.AccountID != accountID {
		return nil, ErrSnapshotMismatch
	}
	acct, err := l.store.Load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	ent := ticket.Compute(snapshot.WageredAmount, acct.TicketsUsed, l.unit)
	return &Summary{
		AccountID:        accountID,
		TicketsTotal:     ent.TicketsTotal,
		TicketsUsed:      ent.TicketsUsed,
		TicketsRemaining: ent.TicketsRemaining,
		WalletBalance:    acct.Balance,
		Flagged:          acct.Flagged,
	}, nil
}

// Spin spends one ticket and draws from the prize table. Authorization and
// settlement run under the account's lock, so concurrent spins for one
// account never spend the same ticket. Nothing is written when the spin is
// denied or settlement fails.
func (l *Ledger) Spin(ctx context.Context, req Request) (*Result, error) {
	log := logging.FromContext(ctx)
	if err := account.Validate(req.AccountID); err != nil {
		return nil, err
	}
	if req.Snapshot.AccountID != "" && req.Snapshot.AccountID != req.AccountID {
		return nil, ErrSnapshotMismatch
	}
	if err := ledger.CheckRequestID(req.RequestID); err != nil {
		return nil, err
	}

	var res *Result
	err := l.store.InAccountTx(ctx, req.AccountID, func(tx ledger.Tx) error {
		prior, err := tx.SpinLogByRequest(ctx, req.RequestID)
		if err != nil {
			return err
		}
		if prior != nil {
			if prior.IsBonus {
				return ledger.ErrRequestIDConflict
			}
			w, err := tx.Wallet(ctx)
			if err != nil {
				return err
			}
			res = replayed(prior, w.Balance)
			return nil
		}

		counter, err := tx.TicketCounter(ctx)
		if err != nil {
			return err
		}
		if counter.Flagged {
			return ErrAccountFlagged
		}
		ent := ticket.Compute(req.Snapshot.WageredAmount, counter.TicketsUsed, l.unit)
		if !ent.CanSpin() {
			return ErrInsufficientTickets
		}

		option := prize.Select(l.table, l.rng)
		after := ent.Consume()
		counter.TicketsUsed = after.TicketsUsed
		if err := tx.SaveTicketCounter(ctx, counter); err != nil {
			return err
		}

		now := l.now().UTC()
		spinID := uuid.NewString()
		balance, err := wallet.CreditPrizeTx(ctx, tx, option.Value, ledger.TransactionTypeSpinWin, spinID)
		if err != nil {
			return err
		}

		entry := ledger.SpinLogEntry{
			ID:                  spinID,
			CreatedAt:           now,
			AccountID:           req.AccountID,
			WageredAmountAtSpin: req.Snapshot.WageredAmount,
			TicketsTotalAtSpin:  ent.TicketsTotal,
			TicketsUsedBefore:   ent.TicketsUsed,
			TicketsUsedAfter:    after.TicketsUsed,
			Result:              resultOf(option),
			PrizeLabel:          option.Label,
			PrizeValue:          option.Value,
			IsBonus:             false,
			RequestID:           req.RequestID,
			ClientIPHash:        account.HashClientIP(req.ClientIP),
		}
		if err := tx.AppendSpinLog(ctx, entry); err != nil {
			return err
		}

		res = &Result{
			SpinID:                spinID,
			Result:                entry.Result,
			PrizeLabel:            option.Label,
			PrizeValue:            option.Value,
			TicketsTotal:          after.TicketsTotal,
			TicketsUsedAfter:      after.TicketsUsed,
			TicketsRemainingAfter: after.TicketsRemaining,
			WalletBalanceAfter:    balance,
			SpunAt:                now,
		}
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrInsufficientTickets):
		metrics.SpinsDenied.WithLabelValues(metrics.KindTicket, "no_tickets").Inc()
		log.Debug().Str("account_id", req.AccountID).Int64("wagered", req.Snapshot.WageredAmount).Msg("spin denied: no tickets")
		return nil, err
	case errors.Is(err, ErrAccountFlagged):
		metrics.SpinsDenied.WithLabelValues(metrics.KindTicket, "flagged").Inc()
		log.Warn().Str("account_id", req.AccountID).Msg("spin denied: account flagged")
		return nil, err
	case errors.Is(err, ledger.ErrRequestIDConflict):
		metrics.SpinsDenied.WithLabelValues(metrics.KindTicket, "request_id_conflict").Inc()
		log.Warn().Str("account_id", req.AccountID).Str("spin_request_id", req.RequestID).Msg("spin denied: request id belongs to a bonus spin")
		return nil, err
	default:
		metrics.SettleFailures.WithLabelValues(metrics.KindTicket).Inc()
		log.Error().Err(err).Str("account_id", req.AccountID).Str("spin_request_id", req.RequestID).Msg("spin settle failed")
		if !errors.Is(err, ledger.ErrPersistence) {
			err = fmt.Errorf("%w: settle spin: %w", ledger.ErrPersistence, err)
		}
		return nil, err
	}

	if !res.Replayed {
		metrics.SpinsSettled.WithLabelValues(metrics.KindTicket, res.Result).Inc()
		if res.PrizeValue.IsPositive() {
			metrics.PrizeValuePaid.WithLabelValues(metrics.KindTicket).Add(res.PrizeValue.InexactFloat64())
		}
		l.notifier.Notify(notify.Event{
			Kind:             metrics.KindTicket,
			AccountID:        req.AccountID,
			SpinID:           res.SpinID,
			Result:           res.Result,
			PrizeLabel:       res.PrizeLabel,
			PrizeValue:       res.PrizeValue,
			TicketsRemaining: res.TicketsRemainingAfter,
			WalletBalance:    res.WalletBalanceAfter,
			At:               res.SpunAt,
		})
	}
	log.Info().
		Str("account_id", req.AccountID).
		Str("spin_id", res.SpinID).
		Str("result", res.Result).
		Str("prize", res.PrizeLabel).
		Int64("tickets_remaining", res.TicketsRemainingAfter).
		Bool("replayed", res.Replayed).
		Msg("spin settled")
	return res, nil
}

// SetFlagged marks or clears an account for abuse review. Flagged accounts
// cannot spin.
func (l *Ledger) SetFlagged(ctx context.Context, accountID string, flagged bool) error {
	if err := account.Validate(accountID); err != nil {
		return err
	}
	err := l.store.InAccountTx(ctx, accountID, func(tx ledger.Tx) error {
		counter, err := tx.TicketCounter(ctx)
		if err != nil {
			return err
		}
		counter.Flagged = flagged
		return tx.SaveTicketCounter(ctx, counter)
	})
	if err != nil {
		return err
	}
	logging.FromContext(ctx).Info().Str("account_id", accountID).Bool("flagged", flagged).Msg("account flag updated")
	return nil
}

// History returns the account's most recent spin log rows, newest first.
func (l *Ledger) History(ctx context.Context, accountID string, limit int) ([]ledger.SpinLogEntry, error) {
	if err := account.Validate(accountID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)
	return l.store.SpinHistory(ctx, accountID, limit)
}

// Reconcile rebuilds tickets used from the spin log and raises the cached
// counter if it fell behind. The counter is never lowered.
func (l *Ledger) Reconcile(ctx context.Context, accountID string) (*Reconciliation, error) {
	if err := account.Validate(accountID); err != nil {
		return nil, err
	}
	rec := &Reconciliation{AccountID: accountID}
	err := l.store.InAccountTx(ctx, accountID, func(tx ledger.Tx) error {
		counter, err := tx.TicketCounter(ctx)
		if err != nil {
			return err
		}
		logUsed, err := tx.MaxTicketsUsedFromLog(ctx)
		if err != nil {
			return err
		}
		rec.CounterUsed = counter.TicketsUsed
		rec.LogUsed = logUsed
		if logUsed <= counter.TicketsUsed {
			return nil
		}
		counter.TicketsUsed = logUsed
		rec.Repaired = true
		return tx.SaveTicketCounter(ctx, counter)
	})
	if err != nil {
		return nil, err
	}
	if rec.Repaired {
		logging.FromContext(ctx).Warn().
			Str("account_id", accountID).
			Int64("counter_used", rec.CounterUsed).
			Int64("log_used", rec.LogUsed).
			Msg("ticket counter behind spin log, repaired")
	}
	return rec, nil
}

func resultOf(o prize.Option) string {
	if o.IsWin() {
		return ledger.ResultWin
	}
	return ledger.ResultLose
}

func replayed(e *ledger.SpinLogEntry, balance decimal.Decimal) *Result {
	return &Result{
		SpinID:                e.ID,
		Result:                e.Result,
		PrizeLabel:            e.PrizeLabel,
		PrizeValue:            e.PrizeValue,
		TicketsTotal:          e.TicketsTotalAtSpin,
		TicketsUsedAfter:      e.TicketsUsedAfter,
		TicketsRemainingAfter: max(0, e.TicketsTotalAtSpin-e.TicketsUsedAfter),
		WalletBalanceAfter:    balance,
		SpunAt:                e.CreatedAt,
		Replayed:              true,
	}
}
