package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountResponse struct {
	UserID         string          `json:"userId"`
	Balance        decimal.Decimal `json:"balance"`
	TotalDeposited decimal.Decimal `json:"total_deposited"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
	TotalWagered   decimal.Decimal `json:"total_wagered"`
}

type WithdrawalResponse struct {
	Position    int             `json:"position"`
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
	CreatedAt   time.Time       `json:"created_at"`
}

type RakebackResponse struct {
	UserID         string          `json:"userId"`
	TotalWagered   decimal.Decimal `json:"total_wagered"`
	RakebackEarned decimal.Decimal `json:"rakeback_earned"`
}

type DepositAddressResponse struct {
	UserID  string `json:"userId"`
	Address string `json:"address"` // material de custódia nunca é exposto
}

type PurgeResponse struct {
	UserID  string `json:"userId"`
	Removed int64  `json:"removed"`
}
