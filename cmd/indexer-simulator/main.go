package main

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	mrand "math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/radieske/crypto-casino-poc/internal/shared/config"
	"github.com/radieske/crypto-casino-poc/internal/shared/logger"

	sdto "github.com/radieske/crypto-casino-poc/internal/indexer-simulator/dto"
)

var (
	// Métricas Prometheus para monitoramento do simulador
	simAddresses = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "indexer_sim_addresses",
		Help: "Endereços de depósito alocados",
	})
	simDeposits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "indexer_sim_deposits_total",
		Help: "Depósitos simulados gerados",
	})
	simWebhooksSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "indexer_sim_webhooks_sent_total",
		Help: "Webhooks push enviados",
	})
)

// simTx é uma transação registrada no histórico de um endereço
type simTx struct {
	Hash          string `json:"hash"`
	Confirmations int    `json:"confirmations"`
	Outputs       []struct {
		Addresses []string `json:"addresses"`
		Value     int64    `json:"value"`
	} `json:"outputs"`
}

// chainState guarda o estado em memória da "blockchain" simulada:
// endereços alocados, histórico por endereço e saldos confirmados.
type chainState struct {
	mu       sync.RWMutex
	keys     map[string]string  // address -> private key
	history  map[string][]simTx // address -> txs
	balances map[string]int64   // address -> sats confirmados
	log      *zap.Logger
}

func newChainState(log *zap.Logger) *chainState {
	return &chainState{
		keys:     make(map[string]string),
		history:  make(map[string][]simTx),
		balances: make(map[string]int64),
		log:      log,
	}
}

// newAddress aloca um endereço Litecoin fictício com chave de custódia
func (c *chainState) newAddress() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr := "ltc1q" + randomHex(20)
	key := randomHex(32)
	c.keys[addr] = key
	simAddresses.Inc()
	c.log.Info("address allocated", zap.String("address", addr))
	return addr, key
}

// confirm registra a transação como confirmada e atualiza o saldo
func (c *chainState) confirm(addr string, tx simTx) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history[addr] = append(c.history[addr], tx)
	for _, out := range tx.Outputs {
		for _, a := range out.Addresses {
			if a == addr {
				c.balances[a] += out.Value
			}
		}
	}
}

// randomAddress sorteia um endereço já alocado (vazio se não houver nenhum)
func (c *chainState) randomAddress() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for a := range c.keys {
		return a
	}
	return ""
}

func (c *chainState) txsFor(addr string) []simTx {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]simTx(nil), c.history[addr]...)
}

func (c *chainState) balanceOf(addr string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.balances[addr]
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// pushWebhook envia o evento push para o deposit-webhook-service
func pushWebhook(log *zap.Logger, url string, body sdto.WebhookPush) {
	b, _ := json.Marshal(body)
	res, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		log.Warn("webhook push failed", zap.String("url", url), zap.Error(err))
		return
	}
	defer res.Body.Close()
	simWebhooksSent.Inc()
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	prometheus.MustRegister(simAddresses, simDeposits, simWebhooksSent)

	state := newChainState(log)

	// Gera depósitos simulados: a cada 15s escolhe um endereço alocado,
	// envia o push unconfirmed e, 3s depois, o confirmed.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			addr := state.randomAddress()
			if addr == "" {
				continue
			}
			sats := int64(mrand.Intn(900_000)+100_000) * 100 // 0.1 a 1 LTC
			tx := simTx{Hash: randomHex(32), Confirmations: 0}
			tx.Outputs = append(tx.Outputs, struct {
				Addresses []string `json:"addresses"`
				Value     int64    `json:"value"`
			}{Addresses: []string{addr}, Value: sats})
			simDeposits.Inc()

			push := sdto.WebhookPush{
				Hash:  tx.Hash,
				Event: sdto.EventUnconfirmed,
				Outputs: []sdto.PushOutput{
					{Addresses: []string{addr}, Value: sats},
				},
				Received: time.Now().UTC(),
			}
			pushWebhook(log, cfg.WebhookURL, push)

			time.Sleep(3 * time.Second)

			tx.Confirmations = 1
			state.confirm(addr, tx)
			push.Event = sdto.EventConfirmed
			push.Received = time.Now().UTC()
			pushWebhook(log, cfg.WebhookURL, push)

			log.Info("deposit simulated",
				zap.String("address", addr),
				zap.String("tx_hash", tx.Hash),
				zap.Int64("sats", sats))
		}
	}()

	// ==== MUX PÚBLICO: API REST do indexador + oráculo de preço
	appMux := http.NewServeMux()

	appMux.HandleFunc("/addrs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		addr, key := state.newAddress()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"address": addr, "private": key})
	})

	appMux.HandleFunc("/addrs/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/addrs/")
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(rest, "/full"):
			addr := strings.TrimSuffix(rest, "/full")
			_ = json.NewEncoder(w).Encode(map[string]any{"txs": state.txsFor(addr)})
		case strings.HasSuffix(rest, "/balance"):
			addr := strings.TrimSuffix(rest, "/balance")
			_ = json.NewEncoder(w).Encode(map[string]int64{"balance": state.balanceOf(addr)})
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	})

	appMux.HandleFunc("/txs/new", func(w http.ResponseWriter, r *http.Request) {
		// O esqueleto é opaco para quem chama: devolve o próprio corpo
		var body json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"tx": body})
	})

	appMux.HandleFunc("/txs/send", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"tx_hash": randomHex(32)})
	})

	// Oráculo de preço simulado: taxa fixa com ruído leve
	appMux.HandleFunc("/rate", func(w http.ResponseWriter, r *http.Request) {
		base := 100.0
		noise := (mrand.Float64() - 0.5) * 4 // +-2
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sdto.RateResp{
			Asset: r.URL.Query().Get("asset"),
			Vs:    r.URL.Query().Get("vs"),
			Rate:  fmt.Sprintf("%.2f", base+noise),
		})
	})

	// ==== MUX DE MÉTRICAS (/healthz, /metrics)
	metricsMux := http.NewServeMux()
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsMux.Handle("/metrics", promhttp.Handler())

	go func() {
		metricsAddr := fmt.Sprintf(":%s", cfg.MetricsPort)
		log.Info("indexer simulator (metrics) running",
			zap.String("addr", metricsAddr),
			zap.String("paths", "/healthz,/metrics"),
		)
		if err := http.ListenAndServe(metricsAddr, metricsMux); err != nil {
			log.Fatal("metrics server error", zap.Error(err))
		}
	}()

	publicAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	log.Info("indexer simulator (public) running",
		zap.String("addr", publicAddr),
		zap.String("paths", "/addrs,/txs,/rate"),
	)
	if err := http.ListenAndServe(publicAddr, appMux); err != nil {
		log.Fatal("public server error", zap.Error(err))
	}
}
