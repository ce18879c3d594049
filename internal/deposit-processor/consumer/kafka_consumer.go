package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/crypto-casino-poc/internal/deposit-registry/registry"
	"github.com/radieske/crypto-casino-poc/pkg/contracts/events"
)

var satsPerCoin = decimal.NewFromInt(100_000_000)

// Ledger credita um depósito exatamente uma vez (dedup por tx_hash)
type Ledger interface {
	CreditDeposit(ctx context.Context, userID string, amount decimal.Decimal, txHash, address string, amountSats int64) (bool, error)
}

// Resolver mapeia endereço observado -> dono (registro de endereços)
type Resolver interface {
	Resolve(ctx context.Context, address string) (string, error)
}

// RateSource devolve a cotação atual (nunca falha; fallback interno)
type RateSource interface {
	Rate(ctx context.Context) decimal.Decimal
}

// Sweeper encaminha o depósito confirmado para a carteira de custódia
type Sweeper interface {
	Forward(ctx context.Context, fromAddress string, amountSats int64) (string, error)
}

// Processor consome depósitos observados do Kafka e executa o pipeline de
// crédito: resolver dono -> converter -> creditar-uma-vez -> sweep -> avisar.
// Scanner e webhook entregam at-least-once; o CreditDeposit transacional do
// ledger é quem torna o crédito efetivamente-once.
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa.
type Processor struct {
	Log      *zap.Logger
	Reader   *kafka.Reader
	Ledger   Ledger
	Registry Resolver
	Rates    RateSource
	Sweep    Sweeper
	DLQ      *kafka.Writer // opcional

	// Broadcast publica a notificação de crédito (Redis Pub/Sub); opcional
	Broadcast func(ctx context.Context, n events.DepositNotice)

	OnConsumed  func()       // métricas (counter++)
	OnCredited  func()       // métricas
	OnDuplicate func()       // métricas
	OnError     func(string) // métricas por fase
}

// Run inicia o loop principal de consumo e processamento das mensagens Kafka
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			if p.OnError != nil {
				p.OnError("read")
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if p.OnConsumed != nil {
			p.OnConsumed() // callback de métrica: mensagem consumida
		}

		var ev events.DepositObserved
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			p.Log.Warn("invalid message", zap.Error(err))
			if p.OnError != nil {
				p.OnError("decode")
			}
			continue
		}

		if err := p.processWithRetry(ctx, &ev); err != nil {
			p.Log.Error("process deposit failed",
				zap.String("tx_hash", ev.TxHash), zap.Error(err))
			if p.OnError != nil {
				p.OnError("process")
			}
			if p.DLQ != nil {
				if derr := p.writeDLQ(ctx, m.Value, ev.TxHash); derr != nil {
					p.Log.Error("dlq write failed", zap.Error(derr))
				}
			}
		}
	}
}

// processWithRetry tenta o pipeline até 3 vezes com backoff antes da DLQ.
// Retry limitado dentro do caminho de um único evento — nunca loop infinito.
func (p *Processor) processWithRetry(ctx context.Context, ev *events.DepositObserved) error {
	const retries = 3
	var err error
	for i := 0; i < retries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(300*i) * time.Millisecond)
		}
		if err = p.handle(ctx, ev); err == nil {
			return nil
		}
	}
	return err
}

// handle executa o pipeline de crédito para um evento observado
func (p *Processor) handle(ctx context.Context, ev *events.DepositObserved) error {
	if ev.TxHash == "" || ev.AmountSats <= 0 {
		p.Log.Warn("malformed deposit event dropped", zap.String("tx_hash", ev.TxHash))
		return nil
	}
	// Observação sem confirmação nunca credita
	if ev.Confirmations < 1 {
		return nil
	}

	userID, err := p.Registry.Resolve(ctx, ev.Address)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			// Endereço não é nosso: descarta sem erro
			p.Log.Debug("deposit to unknown address ignored", zap.String("address", ev.Address))
			return nil
		}
		return err
	}

	// Converte satoshis para unidade de conta pela cotação atual
	rate := p.Rates.Rate(ctx)
	amount := decimal.NewFromInt(ev.AmountSats).Div(satsPerCoin).Mul(rate)

	credited, err := p.Ledger.CreditDeposit(ctx, userID, amount, ev.TxHash, ev.Address, ev.AmountSats)
	if err != nil {
		return err
	}
	if !credited {
		// Já processado: o mesmo depósito chegou pelo outro caminho de ingestão
		p.Log.Debug("duplicate deposit skipped",
			zap.String("tx_hash", ev.TxHash), zap.String("source", ev.Source))
		if p.OnDuplicate != nil {
			p.OnDuplicate()
		}
		return nil
	}

	p.Log.Info("deposit credited",
		zap.String("userId", userID),
		zap.String("tx_hash", ev.TxHash),
		zap.String("amount", amount.String()),
		zap.Int64("amount_sats", ev.AmountSats),
		zap.String("source", ev.Source))
	if p.OnCredited != nil {
		p.OnCredited()
	}

	// Sweep desacoplado do crédito: falha aqui é logada e repetida fora de
	// banda, nunca desfaz o crédito nem segura lock de conta
	if _, err := p.Sweep.Forward(ctx, ev.Address, ev.AmountSats); err != nil {
		p.Log.Warn("sweep failed, credit stands",
			zap.String("address", ev.Address), zap.Error(err))
		if p.OnError != nil {
			p.OnError("sweep")
		}
	}

	if p.Broadcast != nil {
		p.Broadcast(ctx, events.DepositNotice{
			UserID:     userID,
			TxHash:     ev.TxHash,
			Address:    ev.Address,
			AmountSats: ev.AmountSats,
			Status:     "CREDITED",
			Ts:         time.Now().UTC(),
		})
	}
	return nil
}

func (p *Processor) writeDLQ(ctx context.Context, payload []byte, key string) error {
	return p.DLQ.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	})
}
