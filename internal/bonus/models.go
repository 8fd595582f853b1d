package bonus

import (
	"time"

	"github.com/shopspring/decimal"
)

type Request struct {
	AccountID string
	RequestID string
	ClientIP  string
}

type Result struct {
	SpinID             string          `json:"spin_id"`
	Result             string          `json:"result"`
	PrizeLabel         string          `json:"prize_label"`
	PrizeValue         decimal.Decimal `json:"prize_value"`
	WalletBalanceAfter decimal.Decimal `json:"wallet_balance_after"`
	SpunAt             time.Time       `json:"spun_at"`
	NextBonusAt        time.Time       `json:"next_bonus_at"`
	Replayed           bool            `json:"replayed"`
}
