package dto

import "github.com/shopspring/decimal"

type WagerRequest struct {
	UserID string          `json:"userId"`
	Amount decimal.Decimal `json:"amount"`
}

type WagerOutcomeRequest struct {
	UserID     string          `json:"userId"`
	Amount     decimal.Decimal `json:"amount"`
	Multiplier decimal.Decimal `json:"multiplier"` // 0 derrota, >0 vitória/push
}

type WithdrawalSubmitRequest struct {
	UserID      string          `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
}

type WithdrawalConfirmRequest struct {
	Position int `json:"position"` // posição 1-based na fila
}

type WithdrawalCancelRequest struct {
	UserID string `json:"userId"`
}

type WithdrawalPurgeRequest struct {
	UserID string `json:"userId"`
}

type DepositAddressRequest struct {
	UserID string `json:"userId"`
}
