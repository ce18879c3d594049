package pending

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/crypto-casino-poc/pkg/contracts/events"
)

const pendingTTL = 24 * time.Hour

// Store guarda observações NÃO confirmadas no Redis e publica a notificação
// especulativa no canal de broadcast. Observações pendentes nunca creditam
// o ledger — servem só para avisar o usuário que o depósito foi visto.
type Store struct {
	r       *redis.Client
	channel string
}

func NewStore(r *redis.Client, channel string) *Store {
	return &Store{r: r, channel: channel}
}

func key(txHash, address string) string { return "deposit:pending:" + txHash + ":" + address }

// Mark registra a observação pendente (TTL) e publica o aviso PENDING.
// Chamadas repetidas para o mesmo par (tx, endereço) são inofensivas.
func (s *Store) Mark(ctx context.Context, txHash, address string, amountSats int64) error {
	if err := s.r.Set(ctx, key(txHash, address), strconv.FormatInt(amountSats, 10), pendingTTL).Err(); err != nil {
		return err
	}

	b, _ := json.Marshal(events.DepositNotice{
		TxHash:     txHash,
		Address:    address,
		AmountSats: amountSats,
		Status:     "PENDING",
		Ts:         time.Now().UTC(),
	})
	return s.r.Publish(ctx, s.channel, b).Err()
}

// Clear remove a observação pendente quando a confirmação chega
func (s *Store) Clear(ctx context.Context, txHash, address string) error {
	return s.r.Del(ctx, key(txHash, address)).Err()
}
