package scanner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/crypto-casino-poc/internal/chain"
	"github.com/radieske/crypto-casino-poc/pkg/contracts/events"
)

// Indexer é o subconjunto do cliente do indexador usado pelo scanner
type Indexer interface {
	ListTransactions(ctx context.Context, address string) ([]chain.Tx, error)
}

// AddressSource lista os endereços de depósito rastreados (registro)
type AddressSource interface {
	ListAddresses(ctx context.Context) ([]string, error)
}

// Publisher envia os depósitos observados para o tópico Kafka
type Publisher interface {
	Publish(ctx context.Context, e events.DepositObserved) error
}

// Scanner varre periodicamente o histórico COMPLETO de cada endereço
// rastreado. Não há cursor "desde a última varredura": a correção depende
// inteiramente do dedup no deposit-processor, nunca da janela de varredura.
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa.
type Scanner struct {
	Log        *zap.Logger
	Indexer    Indexer
	Addresses  AddressSource
	Publisher  Publisher
	Interval   time.Duration
	MaxBackoff time.Duration

	OnCycle    func()       // métricas (counter++)
	OnObserved func()       // métricas
	OnError    func(string) // métricas por fase
}

// Run executa o loop de varredura até o contexto ser cancelado.
// Falha de ciclo dobra a espera (até MaxBackoff) em vez de parar o loop.
func (s *Scanner) Run(ctx context.Context) error {
	wait := s.Interval
	for {
		if err := s.scanOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.Log.Warn("scan cycle failed, backing off",
				zap.Duration("next_wait", wait*2), zap.Error(err))
			if s.OnError != nil {
				s.OnError("cycle")
			}
			wait *= 2
			if s.MaxBackoff > 0 && wait > s.MaxBackoff {
				wait = s.MaxBackoff
			}
		} else {
			wait = s.Interval
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// scanOnce varre todos os endereços registrados uma vez.
// Falha por endereço é logada e o ciclo segue para o próximo (tolerante a
// falha parcial); só erro ao listar endereços derruba o ciclo inteiro.
func (s *Scanner) scanOnce(ctx context.Context) error {
	addrs, err := s.Addresses.ListAddresses(ctx)
	if err != nil {
		return err
	}

	if s.OnCycle != nil {
		s.OnCycle()
	}

	for _, addr := range addrs {
		txs, err := s.Indexer.ListTransactions(ctx, addr)
		if err != nil {
			s.Log.Warn("indexer query failed", zap.String("address", addr), zap.Error(err))
			if s.OnError != nil {
				s.OnError("indexer")
			}
			continue
		}

		for _, tx := range txs {
			if tx.Confirmations < 1 {
				continue
			}

			// Soma os outputs da tx que pagam este endereço: um depósito por (tx, endereço)
			var total int64
			for _, out := range tx.Outputs {
				for _, a := range out.Addresses {
					if a == addr {
						total += out.ValueSats
					}
				}
			}
			if total <= 0 {
				continue
			}

			ev := events.DepositObserved{
				TxHash:        tx.Hash,
				Address:       addr,
				AmountSats:    total,
				Confirmations: tx.Confirmations,
				Source:        "deposit-scanner-worker",
				ObservedAt:    time.Now().UTC(),
			}
			if err := s.Publisher.Publish(ctx, ev); err != nil {
				s.Log.Warn("publish deposit observed failed",
					zap.String("tx_hash", tx.Hash), zap.Error(err))
				if s.OnError != nil {
					s.OnError("publish")
				}
				continue
			}
			if s.OnObserved != nil {
				s.OnObserved()
			}
		}
	}
	return nil
}
