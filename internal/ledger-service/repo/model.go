package repo

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account é o registro de saldo persistido no Postgres.
// Valores em unidade de conta (créditos), nunca negativos.
type Account struct {
	UserID         string
	Balance        decimal.Decimal
	TotalDeposited decimal.Decimal
	TotalWithdrawn decimal.Decimal
	TotalWagered   decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WithdrawalRequest é uma solicitação de saque pendente na fila FIFO.
// Position é a posição 1-based na fila no momento da leitura.
type WithdrawalRequest struct {
	ID          string
	Position    int
	UserID      string
	Amount      decimal.Decimal
	Destination string
	CreatedAt   time.Time
}

// RakebackAccount acumula o volume apostado e o rakeback ganho por usuário.
type RakebackAccount struct {
	UserID         string
	TotalWagered   decimal.Decimal
	RakebackEarned decimal.Decimal
}
