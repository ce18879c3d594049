package events

import "time"

// Evento publicado no tópico "deposit_observed".
// Emitido pelo scanner (polling) e pelo webhook (push) para a MESMA transação;
// a deduplicação por TxHash acontece no deposit-processor.
type DepositObserved struct {
	TxHash        string    `json:"tx_hash"`
	Address       string    `json:"address"`
	AmountSats    int64     `json:"amount_sats"`
	Confirmations int       `json:"confirmations"`
	Source        string    `json:"source"` // "deposit-scanner-worker" | "deposit-webhook-service"
	ObservedAt    time.Time `json:"observed_at"`
}

// Notificação publicada no canal Redis Pub/Sub para a camada de chat.
type DepositNotice struct {
	UserID     string    `json:"user_id,omitempty"` // vazio em notificações especulativas
	TxHash     string    `json:"tx_hash"`
	Address    string    `json:"address"`
	AmountSats int64     `json:"amount_sats"`
	Status     string    `json:"status"` // "PENDING" | "CREDITED"
	Ts         time.Time `json:"ts"`
}
