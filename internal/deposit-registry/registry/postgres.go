package registry

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("address not registered")
	ErrAllocationFailed = errors.New("address allocation failed")
)

// Record é o mapeamento imutável usuário -> endereço de depósito.
// CustodyKey é material sensível: nunca sai do motor de reconciliação.
type Record struct {
	Address    string
	UserID     string
	CustodyKey string `json:"-"`
	CreatedAt  time.Time
}

// Postgres persiste o registro de endereços de depósito
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// GetByUser retorna o registro do usuário, se houver
func (p *Postgres) GetByUser(ctx context.Context, userID string) (Record, error) {
	var rec Record
	err := p.db.QueryRowContext(ctx, `
		SELECT address, user_id, custody_key, created_at
		FROM deposit_addresses WHERE user_id=$1`, userID).
		Scan(&rec.Address, &rec.UserID, &rec.CustodyKey, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// GetByAddress resolve um endereço observado on-chain para o dono
func (p *Postgres) GetByAddress(ctx context.Context, address string) (Record, error) {
	var rec Record
	err := p.db.QueryRowContext(ctx, `
		SELECT address, user_id, custody_key, created_at
		FROM deposit_addresses WHERE address=$1`, address).
		Scan(&rec.Address, &rec.UserID, &rec.CustodyKey, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// Insert grava o mapeamento; ON CONFLICT DO NOTHING preserva a imutabilidade
// caso duas atribuições concorram para o mesmo usuário
func (p *Postgres) Insert(ctx context.Context, rec Record) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO deposit_addresses(address, user_id, custody_key)
		VALUES ($1,$2,$3)
		ON CONFLICT (user_id) DO NOTHING`,
		rec.Address, rec.UserID, rec.CustodyKey)
	return err
}

// ListAddresses retorna todos os endereços rastreados (entrada do scanner)
func (p *Postgres) ListAddresses(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT address FROM deposit_addresses ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CustodyKey devolve a chave de custódia de um endereço (uso exclusivo do sweep)
func (p *Postgres) CustodyKey(ctx context.Context, address string) (string, error) {
	var key string
	err := p.db.QueryRowContext(ctx, `
		SELECT custody_key FROM deposit_addresses WHERE address=$1`, address).Scan(&key)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return key, err
}
