package repo

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
)

// RakebackRate é a fração fixa do volume apostado devolvida como rakeback
var RakebackRate = decimal.RequireFromString("0.005")

// AccrueRakeback acumula rakeback para o usuário após um débito de aposta
// bem-sucedido, independente do resultado da aposta.
func (p *Postgres) AccrueRakeback(ctx context.Context, userID string, wager decimal.Decimal) error {
	earned := wager.Mul(RakebackRate)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rakeback_accounts(user_id, total_wagered, rakeback_earned)
		VALUES ($1,$2,$3)
		ON CONFLICT (user_id) DO UPDATE SET
			total_wagered = rakeback_accounts.total_wagered + EXCLUDED.total_wagered,
			rakeback_earned = rakeback_accounts.rakeback_earned + EXCLUDED.rakeback_earned`,
		userID, wager, earned)
	return err
}

// GetRakeback retorna o acumulado do usuário (zerado se nunca apostou)
func (p *Postgres) GetRakeback(ctx context.Context, userID string) (RakebackAccount, error) {
	rb := RakebackAccount{UserID: userID, TotalWagered: decimal.Zero, RakebackEarned: decimal.Zero}
	err := p.db.QueryRowContext(ctx, `
		SELECT total_wagered, rakeback_earned FROM rakeback_accounts WHERE user_id=$1`, userID).
		Scan(&rb.TotalWagered, &rb.RakebackEarned)
	if err == sql.ErrNoRows {
		return rb, nil
	}
	return rb, err
}
