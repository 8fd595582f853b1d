// Package bonus gates the daily bonus spin. It shares the wallet and the
// prize selector with ticket spins but never reads or spends tickets.
package bonus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rewards_service/internal/account"
	"rewards_service/internal/ledger"
	"rewards_service/internal/logging"
	"rewards_service/internal/metrics"
	"rewards_service/internal/notify"
	"rewards_service/internal/prize"
	"rewards_service/internal/wallet"
)

var ErrAccountFlagged = ledger.ErrAccountFlagged

type Config struct {
	Store    ledger.Store
	Table    prize.Table
	Cooldown time.Duration
	RNG      prize.RNG
	Now      func() time.Time
	Notifier notify.Notifier
}

type Service struct {
	store    ledger.Store
	table    prize.Table
	cooldown time.Duration
	rng      prize.RNG
	now      func() time.Time
	notifier notify.Notifier
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("bonus: store is required")
	}
	if cfg.Table.Len() == 0 {
		return nil, fmt.Errorf("bonus: %w", prize.ErrInvalidPrizeTable)
	}
	s := &Service{
		store:    cfg.Store,
		table:    cfg.Table,
		cooldown: cfg.Cooldown,
		rng:      cfg.RNG,
		now:      cfg.Now,
		notifier: cfg.Notifier,
	}
	if s.cooldown <= 0 {
		s.cooldown = DefaultCooldown
	}
	if s.rng == nil {
		s.rng = prize.CryptoRNG{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.notifier == nil {
		s.notifier = notify.Nop
	}
	return s, nil
}

func (s *Service) Cooldown() time.Duration { return s.cooldown }

func (s *Service) Table() prize.Table { return s.table }

// Check reports bonus availability without changing anything.
func (s *Service) Check(ctx context.Context, accountID string) (*Status, error) {
	if err := account.Validate(accountID); err != nil {
		return nil, err
	}
	acct, err := s.store.Load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	st := CheckEligible(acct.LastBonusSpinAt, s.now(), s.cooldown)
	return &st, nil
}

// Spin draws from the bonus table once per cooldown window. Concurrent calls
// for one account settle at most one draw; the rest get a *CooldownError.
func (s *Service) Spin(ctx context.Context, req Request) (*Result, error) {
	log := logging.FromContext(ctx)
	if err := account.Validate(req.AccountID); err != nil {
		return nil, err
	}
	if err := ledger.CheckRequestID(req.RequestID); err != nil {
		return nil, err
	}

	// Cheap unlocked check first. Retries carrying a request id skip it so a
	// settled spin can be replayed.
	if req.RequestID == "" {
		st, err := s.Check(ctx, req.AccountID)
		if err != nil {
			return nil, err
		}
		if !st.Available {
			s.denied(ctx, req.AccountID, st)
			return nil, &CooldownError{Remaining: st.Remaining, NextBonusAt: *st.NextBonusAt}
		}
	}

	var res *Result
	err := s.store.InAccountTx(ctx, req.AccountID, func(tx ledger.Tx) error {
		prior, err := tx.SpinLogByRequest(ctx, req.RequestID)
		if err != nil {
			return err
		}
		if prior != nil {
			if !prior.IsBonus {
				return ledger.ErrRequestIDConflict
			}
			w, err := tx.Wallet(ctx)
			if err != nil {
				return err
			}
			res = &Result{
				SpinID:             prior.ID,
				Result:             prior.Result,
				PrizeLabel:         prior.PrizeLabel,
				PrizeValue:         prior.PrizeValue,
				WalletBalanceAfter: w.Balance,
				SpunAt:             prior.CreatedAt,
				NextBonusAt:        prior.CreatedAt.Add(s.cooldown),
				Replayed:           true,
			}
			return nil
		}

		counter, err := tx.TicketCounter(ctx)
		if err != nil {
			return err
		}
		if counter.Flagged {
			return ErrAccountFlagged
		}

		state, err := tx.BonusState(ctx)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		st := CheckEligible(state.LastBonusSpinAt, now, s.cooldown)
		if !st.Available {
			return &CooldownError{Remaining: st.Remaining, NextBonusAt: *st.NextBonusAt}
		}

		option := prize.Select(s.table, s.rng)
		spinID := uuid.NewString()
		balance, err := wallet.CreditPrizeTx(ctx, tx, option.Value, ledger.TransactionTypeBonusWin, spinID)
		if err != nil {
			return err
		}

		state.LastBonusSpinAt = &now
		if err := tx.SaveBonusState(ctx, state); err != nil {
			return err
		}

		result := ledger.ResultLose
		if option.IsWin() {
			result = ledger.ResultWin
		}
		entry := ledger.SpinLogEntry{
			ID:                spinID,
			CreatedAt:         now,
			AccountID:         req.AccountID,
			TicketsUsedBefore: counter.TicketsUsed,
			TicketsUsedAfter:  counter.TicketsUsed,
			Result:            result,
			PrizeLabel:        option.Label,
			PrizeValue:        option.Value,
			IsBonus:           true,
			RequestID:         req.RequestID,
			ClientIPHash:      account.HashClientIP(req.ClientIP),
		}
		if err := tx.AppendSpinLog(ctx, entry); err != nil {
			return err
		}

		res = &Result{
			SpinID:             spinID,
			Result:             result,
			PrizeLabel:         option.Label,
			PrizeValue:         option.Value,
			WalletBalanceAfter: balance,
			SpunAt:             now,
			NextBonusAt:        now.Add(s.cooldown),
		}
		return nil
	})

	var cdErr *CooldownError
	switch {
	case err == nil:
	case errors.As(err, &cdErr):
		next := cdErr.NextBonusAt
		s.denied(ctx, req.AccountID, &Status{Remaining: cdErr.Remaining, NextBonusAt: &next})
		return nil, err
	case errors.Is(err, ErrAccountFlagged):
		metrics.SpinsDenied.WithLabelValues(metrics.KindBonus, "flagged").Inc()
		log.Warn().Str("account_id", req.AccountID).Msg("bonus spin denied: account flagged")
		return nil, err
	case errors.Is(err, ledger.ErrRequestIDConflict):
		metrics.SpinsDenied.WithLabelValues(metrics.KindBonus, "request_id_conflict").Inc()
		log.Warn().Str("account_id", req.AccountID).Str("spin_request_id", req.RequestID).Msg("bonus spin denied: request id belongs to a ticket spin")
		return nil, err
	default:
		metrics.SettleFailures.WithLabelValues(metrics.KindBonus).Inc()
		log.Error().Err(err).Str("account_id", req.AccountID).Msg("bonus spin settle failed")
		if !errors.Is(err, ledger.ErrPersistence) {
			err = fmt.Errorf("%w: settle bonus spin: %w", ledger.ErrPersistence, err)
		}
		return nil, err
	}

	if !res.Replayed {
		metrics.SpinsSettled.WithLabelValues(metrics.KindBonus, res.Result).Inc()
		if res.PrizeValue.IsPositive() {
			metrics.PrizeValuePaid.WithLabelValues(metrics.KindBonus).Add(res.PrizeValue.InexactFloat64())
		}
		s.notifier.Notify(notify.Event{
			Kind:          metrics.KindBonus,
			AccountID:     req.AccountID,
			SpinID:        res.SpinID,
			Result:        res.Result,
			PrizeLabel:    res.PrizeLabel,
			PrizeValue:    res.PrizeValue,
			WalletBalance: res.WalletBalanceAfter,
			At:            res.SpunAt,
		})
	}
	log.Info().
		Str("account_id", req.AccountID).
		Str("spin_id", res.SpinID).
		Str("result", res.Result).
		Str("prize", res.PrizeLabel).
		Bool("replayed", res.Replayed).
		Msg("bonus spin settled")
	return res, nil
}

func (s *Service) denied(ctx context.Context, accountID string, st *Status) {
	metrics.SpinsDenied.WithLabelValues(metrics.KindBonus, "cooldown").Inc()
	logging.FromContext(ctx).Debug().
		Str("account_id", accountID).
		Dur("remaining", st.Remaining).
		Msg("bonus spin denied: cooldown")
}
