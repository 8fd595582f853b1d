package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ResultWin  = "WIN"
	ResultLose = "LOSE"
)

const (
	TransactionTypeSpinWin    = "spin_win"
	TransactionTypeBonusWin   = "bonus_win"
	TransactionTypeWithdrawal = "withdrawal"
	TransactionTypeAdjustment = "adjustment"
)

// TicketCounter is the persisted half of an account's entitlement.
type TicketCounter struct {
	AccountID   string    `gorm:"column:account_id;primaryKey;type:varchar(32)"`
	TicketsUsed int64     `gorm:"column:tickets_used;not null;default:0"`
	Flagged     bool      `gorm:"column:flagged;not null;default:false"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null;default:now()"`
}

func (TicketCounter) TableName() string { return "ticket_counters" }

type Wallet struct {
	AccountID string          `gorm:"column:account_id;primaryKey;type:varchar(32)"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(20,2);not null;default:0"`
	Version   int             `gorm:"column:version;not null;default:1"` // 0 = not yet persisted
	CreatedAt time.Time       `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt time.Time       `gorm:"column:updated_at;not null;default:now()"`
}

func (Wallet) TableName() string { return "wallets" }

type Transaction struct {
	TransactionID   string          `gorm:"column:transaction_id;primaryKey;type:uuid" json:"transaction_id"`
	AccountID       string          `gorm:"column:account_id;type:varchar(32);not null" json:"account_id"`
	TransactionType string          `gorm:"column:transaction_type;type:varchar(20);not null" json:"transaction_type"` // "spin_win", "bonus_win", "withdrawal"
	Amount          decimal.Decimal `gorm:"column:amount;type:numeric(20,2);not null" json:"amount"`
	BalanceBefore   decimal.Decimal `gorm:"column:balance_before;type:numeric(20,2);not null" json:"balance_before"`
	BalanceAfter    decimal.Decimal `gorm:"column:balance_after;type:numeric(20,2);not null" json:"balance_after"`
	ReferenceID     string          `gorm:"column:reference_id;type:varchar(255);not null" json:"reference_id"` // spin log id or withdrawal reference
	CreatedAt       time.Time       `gorm:"column:created_at;not null;default:now()" json:"created_at"`
}

func (Transaction) TableName() string { return "wallet_transactions" }

type BonusState struct {
	AccountID       string     `gorm:"column:account_id;primaryKey;type:varchar(32)"`
	LastBonusSpinAt *time.Time `gorm:"column:last_bonus_spin_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;not null;default:now()"`
}

func (BonusState) TableName() string { return "bonus_states" }

// SpinLogEntry is the append-only audit row written by every settled spin.
type SpinLogEntry struct {
	ID                  string          `gorm:"column:id;primaryKey;type:uuid"`
	CreatedAt           time.Time       `gorm:"column:created_at;not null"`
	AccountID           string          `gorm:"column:account_id;type:varchar(32);not null;index"`
	WageredAmountAtSpin int64           `gorm:"column:wagered_amount_at_spin;not null"`
	TicketsTotalAtSpin  int64           `gorm:"column:tickets_total_at_spin;not null"`
	TicketsUsedBefore   int64           `gorm:"column:tickets_used_before;not null"`
	TicketsUsedAfter    int64           `gorm:"column:tickets_used_after;not null"`
	Result              string          `gorm:"column:result;type:varchar(4);not null"`
	PrizeLabel          string          `gorm:"column:prize_label;type:varchar(64);not null"`
	PrizeValue          decimal.Decimal `gorm:"column:prize_value;type:numeric(20,2);not null"`
	IsBonus             bool            `gorm:"column:is_bonus;not null"`
	RequestID           string          `gorm:"column:request_id;type:varchar(64);not null;default:''"`
	ClientIPHash        string          `gorm:"column:client_ip_hash;type:varchar(64);not null;default:''"`
}

func (SpinLogEntry) TableName() string { return "spin_logs" }

// Account is a read-only view across the per-account tables.
type Account struct {
	AccountID       string
	TicketsUsed     int64
	Flagged         bool
	Balance         decimal.Decimal
	LastBonusSpinAt *time.Time
}
