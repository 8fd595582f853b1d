package wallet

import (
	"github.com/shopspring/decimal"
)

type TransactionRequest struct {
	AccountID       string          `json:"account_id" binding:"required"`
	TransactionType string          `json:"transaction_type"`
	Amount          decimal.Decimal `json:"amount"`
	ReferenceID     string          `json:"reference_id" binding:"required"`
}

type TransactionResponse struct {
	TransactionID string          `json:"transaction_id"`
	Balance       decimal.Decimal `json:"balance"`
	Replayed      bool            `json:"replayed"`
}

type Balance struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}
