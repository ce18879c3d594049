package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/crypto-casino-poc/internal/chain"
	"github.com/radieske/crypto-casino-poc/internal/deposit-registry/registry"
	"github.com/radieske/crypto-casino-poc/internal/deposit-scanner/scanner"
	"github.com/radieske/crypto-casino-poc/internal/shared/config"
	"github.com/radieske/crypto-casino-poc/internal/shared/db"
	"github.com/radieske/crypto-casino-poc/internal/shared/kafka"
	"github.com/radieske/crypto-casino-poc/internal/shared/logger"
	"github.com/radieske/crypto-casino-poc/internal/shared/metrics"
	ev "github.com/radieske/crypto-casino-poc/pkg/contracts/events"
)

// kafkaDepositPublisher adapta o writer compartilhado ao contrato do scanner
type kafkaDepositPublisher struct{ w *kafkago.Writer }

func (p *kafkaDepositPublisher) Publish(ctx context.Context, e ev.DepositObserved) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return kafka.WriteJSON(ctx, p.w, e.TxHash, b)
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Postgres: registro de endereços rastreados
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg connect", zap.Error(err))
	}
	defer pg.Close()

	// Kafka producer: publica depósitos observados no mesmo tópico do webhook
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicDepositObserved)
	defer writer.Close()

	// Métricas Prometheus do ciclo de varredura
	cycles := prometheus.NewCounter(prometheus.CounterOpts{Name: "deposit_scan_cycles_total", Help: "ciclos de varredura"})
	observed := prometheus.NewCounter(prometheus.CounterOpts{Name: "deposit_scan_observed_total", Help: "depósitos observados"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "deposit_scan_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(cycles, observed, errorsBy)

	// Servidor de métricas e health check
	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})

	sc := &scanner.Scanner{
		Log:        log,
		Indexer:    chain.New(cfg.IndexerBaseURL, cfg.IndexerToken),
		Addresses:  registry.NewPostgres(pg),
		Publisher:  &kafkaDepositPublisher{w: writer},
		Interval:   time.Duration(cfg.ScanIntervalSec) * time.Second,
		MaxBackoff: 10 * time.Duration(cfg.ScanIntervalSec) * time.Second,
		OnCycle:    func() { cycles.Inc() },
		OnObserved: func() { observed.Inc() },
		OnError:    func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("deposit-scanner started",
		zap.Int("interval_sec", cfg.ScanIntervalSec),
		zap.String("publish", cfg.TopicDepositObserved),
	)
	if err := sc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("scanner stopped with error", zap.Error(err))
	}
	log.Info("deposit-scanner stopped")
}
