package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client encapsula a API REST do indexador de blockchain (estilo BlockCypher).
// Todas as chamadas são I/O bloqueante com timeout — nunca segurar lock de conta
// enquanto uma delas está em andamento.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Address é o par endereço + chave de custódia devolvido pelo indexador.
// A chave privada nunca sai do motor de reconciliação.
type Address struct {
	Address string `json:"address"`
	Private string `json:"private"`
}

type Output struct {
	Addresses []string `json:"addresses"`
	ValueSats int64    `json:"value"`
}

type Tx struct {
	Hash          string   `json:"hash"`
	Confirmations int      `json:"confirmations"`
	Outputs       []Output `json:"outputs"`
}

// TxSkeleton é o esqueleto de transação criado pelo indexador, devolvido
// opaco para ser assinado e transmitido.
type TxSkeleton struct {
	Raw json.RawMessage `json:"tx"`
}

type TxInput struct {
	Address string `json:"address"`
}

type TxOutput struct {
	Address   string `json:"address"`
	ValueSats int64  `json:"value"`
}

// CreateAddress aloca um novo endereço de depósito com chave de custódia
func (c *Client) CreateAddress(ctx context.Context) (Address, error) {
	var out Address
	if err := c.do(ctx, http.MethodPost, "/addrs", nil, &out); err != nil {
		return Address{}, fmt.Errorf("create address: %w", err)
	}
	return out, nil
}

// ListTransactions retorna o histórico COMPLETO de transações de um endereço
func (c *Client) ListTransactions(ctx context.Context, address string) ([]Tx, error) {
	var out struct {
		Txs []Tx `json:"txs"`
	}
	if err := c.do(ctx, http.MethodGet, "/addrs/"+address+"/full", nil, &out); err != nil {
		return nil, fmt.Errorf("list transactions %s: %w", address, err)
	}
	return out.Txs, nil
}

// GetBalance retorna o saldo confirmado do endereço em satoshis
func (c *Client) GetBalance(ctx context.Context, address string) (int64, error) {
	var out struct {
		BalanceSats int64 `json:"balance"`
	}
	if err := c.do(ctx, http.MethodGet, "/addrs/"+address+"/balance", nil, &out); err != nil {
		return 0, fmt.Errorf("get balance %s: %w", address, err)
	}
	return out.BalanceSats, nil
}

// CreateTransaction monta o esqueleto de uma transação movendo fundos
func (c *Client) CreateTransaction(ctx context.Context, inputs []TxInput, outputs []TxOutput) (TxSkeleton, error) {
	body := map[string]any{"inputs": inputs, "outputs": outputs}
	var out TxSkeleton
	if err := c.do(ctx, http.MethodPost, "/txs/new", body, &out); err != nil {
		return TxSkeleton{}, fmt.Errorf("create transaction: %w", err)
	}
	return out, nil
}

// SignAndBroadcast assina o esqueleto com as chaves informadas e transmite.
// Retorna o hash da transação transmitida.
func (c *Client) SignAndBroadcast(ctx context.Context, skeleton TxSkeleton, privateKeys []string) (string, error) {
	body := map[string]any{"tx": skeleton.Raw, "private_keys": privateKeys}
	var out struct {
		TxHash string `json:"tx_hash"`
	}
	if err := c.do(ctx, http.MethodPost, "/txs/send", body, &out); err != nil {
		return "", fmt.Errorf("sign and broadcast: %w", err)
	}
	return out.TxHash, nil
}

// do executa a chamada HTTP com token opcional e decodifica a resposta JSON
func (c *Client) do(ctx context.Context, method, path string, body any, dst any) error {
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}

	url := c.BaseURL + path
	if c.Token != "" {
		url += "?token=" + c.Token
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return fmt.Errorf("indexer http %d", res.StatusCode)
	}
	if dst == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(dst)
}
