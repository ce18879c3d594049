package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
)

// Postgres implementa as operações de ledger de contas em banco
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidAddress      = errors.New("invalid destination address")
	ErrInvalidPosition     = errors.New("invalid queue position")
	ErrNoPendingWithdrawal = errors.New("no pending withdrawal")
	ErrNotFound            = errors.New("not found")
)

// GetOrCreateAccount retorna a conta do usuário, criando-a zerada se não existir
// Usa transação para garantir atomicidade
func (p *Postgres) GetOrCreateAccount(ctx context.Context, userID string) (Account, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, err
	}
	defer tx.Rollback()

	acc, err := lockAccount(ctx, tx, userID)
	if err != nil {
		return Account{}, err
	}

	if err = tx.Commit(); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// DebitForWager debita o valor da aposta e incrementa total_wagered como
// um único passo lógico. Falha com ErrInsufficientFunds sem mutação.
func (p *Postgres) DebitForWager(ctx context.Context, userID string, amount decimal.Decimal) (Account, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, err
	}
	defer tx.Rollback()

	acc, err := lockAccount(ctx, tx, userID)
	if err != nil {
		return Account{}, err
	}

	if acc.Balance.LessThan(amount) {
		return Account{}, ErrInsufficientFunds
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE accounts SET balance = balance - $1, total_wagered = total_wagered + $1,
			version = version + 1, updated_at = NOW()
		WHERE user_id=$2`, amount, userID); err != nil {
		return Account{}, err
	}

	if err = insertJournal(ctx, tx, userID, "WAGER", amount.Neg(), "wager debit"); err != nil {
		return Account{}, err
	}

	acc, err = selectAccount(ctx, tx, userID)
	if err != nil {
		return Account{}, err
	}

	if err = tx.Commit(); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// ApplyWagerOutcome credita amount * multiplier após uma aposta já debitada.
// Multiplier 0 (derrota) não gera escrita.
func (p *Postgres) ApplyWagerOutcome(ctx context.Context, userID string, amount, multiplier decimal.Decimal) (Account, error) {
	payout := amount.Mul(multiplier)
	if payout.IsZero() {
		return p.GetOrCreateAccount(ctx, userID)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, err
	}
	defer tx.Rollback()

	if _, err = lockAccount(ctx, tx, userID); err != nil {
		return Account{}, err
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE accounts SET balance = balance + $1, version = version + 1, updated_at = NOW()
		WHERE user_id=$2`, payout, userID); err != nil {
		return Account{}, err
	}

	if err = insertJournal(ctx, tx, userID, "PAYOUT", payout, "wager payout x"+multiplier.String()); err != nil {
		return Account{}, err
	}

	acc, err := selectAccount(ctx, tx, userID)
	if err != nil {
		return Account{}, err
	}

	if err = tx.Commit(); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// CreditDeposit credita um depósito on-chain exatamente uma vez.
// O registro em processed_deposits (chave tx_hash) e o crédito da conta
// acontecem na MESMA transação: entrega at-least-once no Kafka vira
// efetivamente-once aqui. Retorna false se o tx_hash já foi processado.
func (p *Postgres) CreditDeposit(ctx context.Context, userID string, amount decimal.Decimal, txHash, address string, amountSats int64) (bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	// Guarda de idempotência: só segue se este hash nunca foi creditado
	res, err := tx.ExecContext(ctx, `
		INSERT INTO processed_deposits(tx_hash, user_id, amount, amount_sats, address)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (tx_hash) DO NOTHING`,
		txHash, userID, amount, amountSats, address)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil // já creditado
	}

	if _, err = lockAccount(ctx, tx, userID); err != nil {
		return false, err
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE accounts SET balance = balance + $1, total_deposited = total_deposited + $1,
			version = version + 1, updated_at = NOW()
		WHERE user_id=$2`, amount, userID); err != nil {
		return false, err
	}

	if err = insertJournal(ctx, tx, userID, "DEPOSIT", amount, "deposit:"+txHash); err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ResetAccount zera os quatro campos da conta incondicionalmente.
// NÃO limpa a fila de saques — isso é feito por PurgeWithdrawals, explícito.
func (p *Postgres) ResetAccount(ctx context.Context, userID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = lockAccount(ctx, tx, userID); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE accounts SET balance = 0, total_deposited = 0, total_withdrawn = 0,
			total_wagered = 0, version = version + 1, updated_at = NOW()
		WHERE user_id=$1`, userID); err != nil {
		return err
	}

	if err = insertJournal(ctx, tx, userID, "RESET", decimal.Zero, "admin reset"); err != nil {
		return err
	}

	return tx.Commit()
}

// lockAccount garante que a linha da conta existe e a tranca (FOR UPDATE).
// A trava por linha serializa todas as mutações de uma mesma conta.
func lockAccount(ctx context.Context, tx *sql.Tx, userID string) (Account, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO accounts(user_id, balance, total_deposited, total_withdrawn, total_wagered, version)
		VALUES ($1,0,0,0,0,1)
		ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return Account{}, err
	}

	var acc Account
	err := tx.QueryRowContext(ctx, `
		SELECT user_id, balance, total_deposited, total_withdrawn, total_wagered, created_at, updated_at
		FROM accounts WHERE user_id=$1 FOR UPDATE`, userID).
		Scan(&acc.UserID, &acc.Balance, &acc.TotalDeposited, &acc.TotalWithdrawn, &acc.TotalWagered, &acc.CreatedAt, &acc.UpdatedAt)
	return acc, err
}

func selectAccount(ctx context.Context, tx *sql.Tx, userID string) (Account, error) {
	var acc Account
	err := tx.QueryRowContext(ctx, `
		SELECT user_id, balance, total_deposited, total_withdrawn, total_wagered, created_at, updated_at
		FROM accounts WHERE user_id=$1`, userID).
		Scan(&acc.UserID, &acc.Balance, &acc.TotalDeposited, &acc.TotalWithdrawn, &acc.TotalWagered, &acc.CreatedAt, &acc.UpdatedAt)
	return acc, err
}

// insertJournal registra a operação no extrato imutável da conta
func insertJournal(ctx context.Context, tx *sql.Tx, userID, op string, amount decimal.Decimal, desc string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO account_ledger(user_id, operation_type, amount, description)
		VALUES ($1,$2,$3,$4)`, userID, op, amount, desc)
	return err
}
