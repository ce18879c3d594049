package sweep

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/radieske/crypto-casino-poc/internal/chain"
)

// ErrBroadcastFailed cobre qualquer falha de montagem/assinatura/transmissão.
// Nunca desfaz o crédito do usuário: o sweep pode ser repetido depois.
var ErrBroadcastFailed = errors.New("sweep broadcast failed")

// ChainAPI é o subconjunto do cliente do indexador usado no sweep
type ChainAPI interface {
	CreateTransaction(ctx context.Context, inputs []chain.TxInput, outputs []chain.TxOutput) (chain.TxSkeleton, error)
	SignAndBroadcast(ctx context.Context, skeleton chain.TxSkeleton, privateKeys []string) (string, error)
}

// KeySource devolve o material de custódia de um endereço de depósito
type KeySource interface {
	CustodyKey(ctx context.Context, address string) (string, error)
}

// Forwarder move depósitos confirmados do endereço do usuário para a
// carteira de custódia, descontando a taxa fixa de rede.
type Forwarder struct {
	Log            *zap.Logger
	Chain          ChainAPI
	Keys           KeySource
	CustodyAddress string
	FeeSats        int64
}

// Forward transmite amount - fee do endereço de origem para a custódia.
// Valor abaixo da taxa é no-op logado. Retorna o hash transmitido.
func (f *Forwarder) Forward(ctx context.Context, fromAddress string, amountSats int64) (string, error) {
	net := amountSats - f.FeeSats
	if net <= 0 {
		f.Log.Info("deposit below network fee, sweep skipped",
			zap.String("address", fromAddress), zap.Int64("amount_sats", amountSats))
		return "", nil
	}

	key, err := f.Keys.CustodyKey(ctx, fromAddress)
	if err != nil {
		return "", fmt.Errorf("%w: custody key: %v", ErrBroadcastFailed, err)
	}

	skeleton, err := f.Chain.CreateTransaction(ctx,
		[]chain.TxInput{{Address: fromAddress}},
		[]chain.TxOutput{{Address: f.CustodyAddress, ValueSats: net}})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBroadcastFailed, err)
	}

	txHash, err := f.Chain.SignAndBroadcast(ctx, skeleton, []string{key})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBroadcastFailed, err)
	}

	f.Log.Info("sweep broadcast",
		zap.String("from", fromAddress),
		zap.String("tx_hash", txHash),
		zap.Int64("net_sats", net))
	return txHash, nil
}
