package dto

import "time"

// WebhookPush é o corpo POST enviado ao deposit-webhook-service a cada
// evento de transação em um endereço inscrito
type WebhookPush struct {
	Hash     string       `json:"hash"`
	Event    string       `json:"event"` // "unconfirmed-tx" | "confirmed-tx"
	Outputs  []PushOutput `json:"outputs"`
	Received time.Time    `json:"received"`
}

type PushOutput struct {
	Addresses []string `json:"addresses"`
	Value     int64    `json:"value"`
}

const (
	EventUnconfirmed = "unconfirmed-tx"
	EventConfirmed   = "confirmed-tx"
)

// RateResp é a resposta do oráculo de preço simulado
type RateResp struct {
	Asset string `json:"asset"`
	Vs    string `json:"vs"`
	Rate  string `json:"rate"`
}
