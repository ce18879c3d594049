package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/crypto-casino-poc/pkg/contracts/events"
)

const (
	EventUnconfirmed = "unconfirmed-tx"
	EventConfirmed   = "confirmed-tx"
)

// Publisher envia depósitos confirmados para o tópico Kafka
type Publisher interface {
	Publish(ctx context.Context, e events.DepositObserved) error
}

// PendingStore registra observações não confirmadas (aviso especulativo)
type PendingStore interface {
	Mark(ctx context.Context, txHash, address string, amountSats int64) error
	Clear(ctx context.Context, txHash, address string) error
}

// WebhookBody é o corpo POST enviado pelo indexador para cada evento de
// transação em um endereço inscrito.
type WebhookBody struct {
	Hash     string `json:"hash"`
	Event    string `json:"event"` // "unconfirmed-tx" | "confirmed-tx"
	Outputs  []struct {
		Addresses []string `json:"addresses"`
		Value     int64    `json:"value"`
	} `json:"outputs"`
	Received time.Time `json:"received"`
}

// Server recebe as notificações push do indexador de blockchain.
// O handler é seguro sob entrega repetida do mesmo corpo: confirmações
// duplicadas são deduplicadas adiante pelo deposit-processor.
type Server struct {
	log     *zap.Logger
	publ    Publisher
	pending PendingStore
}

func NewServer(log *zap.Logger, publ Publisher, pending PendingStore) *Server {
	return &Server{log: log, publ: publ, pending: pending}
}

// Router retorna o mux HTTP com a rota do webhook
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/chain", s.handleChainEvent) // POST
	return mux
}

// handleChainEvent processa um evento de transação do indexador
func (s *Server) handleChainEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body WebhookBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if body.Hash == "" || (body.Event != EventUnconfirmed && body.Event != EventConfirmed) {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	// Soma os outputs por endereço: vários outputs da mesma tx para o mesmo
	// endereço são UM depósito
	totals := make(map[string]int64)
	for _, out := range body.Outputs {
		for _, addr := range out.Addresses {
			totals[addr] += out.Value
		}
	}

	for addr, sats := range totals {
		switch body.Event {
		case EventUnconfirmed:
			// Nunca credita: só registra a observação e avisa o usuário
			if err := s.pending.Mark(r.Context(), body.Hash, addr, sats); err != nil {
				s.log.Warn("pending mark failed",
					zap.String("tx_hash", body.Hash), zap.String("address", addr), zap.Error(err))
			}
		case EventConfirmed:
			ev := events.DepositObserved{
				TxHash:        body.Hash,
				Address:       addr,
				AmountSats:    sats,
				Confirmations: 1,
				Source:        "deposit-webhook-service",
				ObservedAt:    time.Now().UTC(),
			}
			if err := s.publ.Publish(r.Context(), ev); err != nil {
				s.log.Error("publish deposit observed failed",
					zap.String("tx_hash", body.Hash), zap.Error(err))
				http.Error(w, "publish failed", http.StatusInternalServerError)
				return
			}
			if err := s.pending.Clear(r.Context(), body.Hash, addr); err != nil {
				s.log.Warn("pending clear failed", zap.String("tx_hash", body.Hash), zap.Error(err))
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
