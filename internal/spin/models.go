package spin

import (
	"time"

	"github.com/shopspring/decimal"

	"rewards_service/internal/wager"
)

type Request struct {
	AccountID string
	Snapshot  wager.Snapshot
	// RequestID makes the spin idempotent: a retry with the same id returns
	// the settled result instead of spending another ticket.
	RequestID string
	ClientIP  string
}

type Result struct {
	SpinID                string          `json:"spin_id"`
	Result                string          `json:"result"`
	PrizeLabel            string          `json:"prize_label"`
	PrizeValue            decimal.Decimal `json:"prize_value"`
	TicketsTotal          int64           `json:"tickets_total"`
	TicketsUsedAfter      int64           `json:"tickets_used_after"`
	TicketsRemainingAfter int64           `json:"tickets_remaining_after"`
	WalletBalanceAfter    decimal.Decimal `json:"wallet_balance_after"`
	SpunAt                time.Time       `json:"spun_at"`
	Replayed              bool            `json:"replayed"`
}

type Summary struct {
	AccountID        string          `json:"account_id"`
	TicketsTotal     int64           `json:"tickets_total"`
	TicketsUsed      int64           `json:"tickets_used"`
	TicketsRemaining int64           `json:"tickets_remaining"`
	WalletBalance    decimal.Decimal `json:"wallet_balance"`
	Flagged          bool            `json:"flagged"`
}

// Reconciliation compares the cached ticket counter with the spin log.
type Reconciliation struct {
	AccountID   string `json:"account_id"`
	CounterUsed int64  `json:"counter_used"`
	LogUsed     int64  `json:"log_used"`
	Repaired    bool   `json:"repaired"`
}
