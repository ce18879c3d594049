package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Prefixos e tamanho mínimo aceitos para endereço de destino (rede Litecoin)
var destinationPrefixes = []string{"L", "M", "ltc1"}

const destinationMinLen = 26

// ValidDestination aplica o predicado de formato do endereço de saque:
// não vazio, prefixo da rede e tamanho mínimo.
func ValidDestination(addr string) bool {
	if len(addr) < destinationMinLen {
		return false
	}
	for _, p := range destinationPrefixes {
		if strings.HasPrefix(addr, p) {
			return true
		}
	}
	return false
}

// SubmitWithdrawal valida o destino, debita o saldo (balance e total_withdrawn
// ajustados JÁ na submissão, antes da aprovação) e enfileira a solicitação.
// Submissões duplicadas do mesmo usuário são solicitações independentes.
func (p *Postgres) SubmitWithdrawal(ctx context.Context, userID string, amount decimal.Decimal, destination string) (WithdrawalRequest, error) {
	if !ValidDestination(destination) {
		return WithdrawalRequest{}, ErrInvalidAddress
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return WithdrawalRequest{}, err
	}
	defer tx.Rollback()

	acc, err := lockAccount(ctx, tx, userID)
	if err != nil {
		return WithdrawalRequest{}, err
	}

	if acc.Balance.LessThan(amount) {
		return WithdrawalRequest{}, ErrInsufficientFunds
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE accounts SET balance = balance - $1, total_withdrawn = total_withdrawn + $1,
			version = version + 1, updated_at = NOW()
		WHERE user_id=$2`, amount, userID); err != nil {
		return WithdrawalRequest{}, err
	}

	req := WithdrawalRequest{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Destination: destination,
	}

	var seq int64
	if err = tx.QueryRowContext(ctx, `
		INSERT INTO withdrawal_requests(id, user_id, amount, destination)
		VALUES ($1,$2,$3,$4)
		RETURNING seq, created_at`,
		req.ID, userID, amount, destination).Scan(&seq, &req.CreatedAt); err != nil {
		return WithdrawalRequest{}, err
	}

	// Posição 1-based na fila no momento da submissão
	var pos int
	if err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM withdrawal_requests WHERE seq <= $1`, seq).Scan(&pos); err != nil {
		return WithdrawalRequest{}, err
	}
	req.Position = pos

	if err = insertJournal(ctx, tx, userID, "WITHDRAW_HOLD", amount.Neg(), "withdrawal:"+req.ID); err != nil {
		return WithdrawalRequest{}, err
	}

	if err = tx.Commit(); err != nil {
		return WithdrawalRequest{}, err
	}
	return req, nil
}

// ConfirmWithdrawal remove e retorna a solicitação na posição 1-based.
// Nenhuma mutação de conta: o saldo já saiu na submissão; o operador
// transmite a transferência externa com o resultado.
func (p *Postgres) ConfirmWithdrawal(ctx context.Context, position int) (WithdrawalRequest, error) {
	if position < 1 {
		return WithdrawalRequest{}, ErrInvalidPosition
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return WithdrawalRequest{}, err
	}
	defer tx.Rollback()

	var req WithdrawalRequest
	err = tx.QueryRowContext(ctx, `
		SELECT id, user_id, amount, destination, created_at
		FROM withdrawal_requests
		ORDER BY seq
		OFFSET $1 LIMIT 1
		FOR UPDATE`, position-1).
		Scan(&req.ID, &req.UserID, &req.Amount, &req.Destination, &req.CreatedAt)
	if err == sql.ErrNoRows {
		return WithdrawalRequest{}, ErrInvalidPosition
	} else if err != nil {
		return WithdrawalRequest{}, err
	}
	req.Position = position

	if _, err = tx.ExecContext(ctx, `DELETE FROM withdrawal_requests WHERE id=$1`, req.ID); err != nil {
		return WithdrawalRequest{}, err
	}

	if err = insertJournal(ctx, tx, req.UserID, "WITHDRAW_SENT", decimal.Zero, "withdrawal confirmed:"+req.ID); err != nil {
		return WithdrawalRequest{}, err
	}

	if err = tx.Commit(); err != nil {
		return WithdrawalRequest{}, err
	}
	return req, nil
}

// CancelWithdrawal cancela a solicitação MAIS ANTIGA do usuário, devolvendo
// o valor ao saldo e decrementando total_withdrawn.
func (p *Postgres) CancelWithdrawal(ctx context.Context, userID string) (WithdrawalRequest, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return WithdrawalRequest{}, err
	}
	defer tx.Rollback()

	var req WithdrawalRequest
	err = tx.QueryRowContext(ctx, `
		SELECT id, user_id, amount, destination, created_at
		FROM withdrawal_requests
		WHERE user_id=$1
		ORDER BY seq
		LIMIT 1
		FOR UPDATE`, userID).
		Scan(&req.ID, &req.UserID, &req.Amount, &req.Destination, &req.CreatedAt)
	if err == sql.ErrNoRows {
		return WithdrawalRequest{}, ErrNoPendingWithdrawal
	} else if err != nil {
		return WithdrawalRequest{}, err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM withdrawal_requests WHERE id=$1`, req.ID); err != nil {
		return WithdrawalRequest{}, err
	}

	if _, err = lockAccount(ctx, tx, userID); err != nil {
		return WithdrawalRequest{}, err
	}

	// Devolve saldo e desfaz o total_withdrawn da submissão
	if _, err = tx.ExecContext(ctx, `
		UPDATE accounts SET balance = balance + $1, total_withdrawn = total_withdrawn - $1,
			version = version + 1, updated_at = NOW()
		WHERE user_id=$2`, req.Amount, userID); err != nil {
		return WithdrawalRequest{}, err
	}

	if err = insertJournal(ctx, tx, userID, "WITHDRAW_REFUND", req.Amount, "withdrawal cancelled:"+req.ID); err != nil {
		return WithdrawalRequest{}, err
	}

	if err = tx.Commit(); err != nil {
		return WithdrawalRequest{}, err
	}
	return req, nil
}

// ListWithdrawals retorna um snapshot ordenado da fila (FIFO)
func (p *Postgres) ListWithdrawals(ctx context.Context) ([]WithdrawalRequest, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, amount, destination, created_at
		FROM withdrawal_requests
		ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WithdrawalRequest
	for rows.Next() {
		var req WithdrawalRequest
		if err := rows.Scan(&req.ID, &req.UserID, &req.Amount, &req.Destination, &req.CreatedAt); err != nil {
			return nil, err
		}
		req.Position = len(out) + 1
		out = append(out, req)
	}
	return out, rows.Err()
}

// PurgeWithdrawals remove TODAS as solicitações do usuário sem estorno.
// Companheiro explícito do ResetAccount, que nunca toca na fila.
func (p *Postgres) PurgeWithdrawals(ctx context.Context, userID string) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM withdrawal_requests WHERE user_id=$1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
