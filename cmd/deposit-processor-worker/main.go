package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/crypto-casino-poc/internal/chain"
	"github.com/radieske/crypto-casino-poc/internal/deposit-processor/consumer"
	"github.com/radieske/crypto-casino-poc/internal/deposit-processor/pubsub"
	"github.com/radieske/crypto-casino-poc/internal/deposit-processor/sweep"
	"github.com/radieske/crypto-casino-poc/internal/deposit-registry/registry"
	lrepo "github.com/radieske/crypto-casino-poc/internal/ledger-service/repo"
	"github.com/radieske/crypto-casino-poc/internal/pricing"
	sharedcache "github.com/radieske/crypto-casino-poc/internal/shared/cache"
	"github.com/radieske/crypto-casino-poc/internal/shared/config"
	"github.com/radieske/crypto-casino-poc/internal/shared/db"
	sharedkafka "github.com/radieske/crypto-casino-poc/internal/shared/kafka"
	"github.com/radieske/crypto-casino-poc/internal/shared/logger"
	"github.com/radieske/crypto-casino-poc/internal/shared/metrics"
	ev "github.com/radieske/crypto-casino-poc/pkg/contracts/events"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Inicializa dependências: Postgres e Redis
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Ledger, registro de endereços e cliente do indexador
	ledger := lrepo.NewPostgres(pg)
	indexer := chain.New(cfg.IndexerBaseURL, cfg.IndexerToken)
	regStore := registry.NewPostgres(pg)
	reg := registry.NewService(regStore, indexer, log)

	// Oráculo de preço com cache Redis e taxa de fallback documentada
	fallback, err := decimal.NewFromString(cfg.OracleFallbackRate)
	if err != nil {
		log.Fatal("invalid ORACLE_FALLBACK_RATE", zap.Error(err))
	}
	oracle := pricing.NewOracle(cfg.OracleBaseURL, fallback, redisClient, log)

	// Forwarder de sweep: endereço do usuário -> carteira de custódia
	forwarder := &sweep.Forwarder{
		Log:            log,
		Chain:          indexer,
		Keys:           regStore,
		CustodyAddress: cfg.CustodyAddress,
		FeeSats:        cfg.SweepFeeSats,
	}

	// Configura o consumer Kafka (consumer group deposit-processor)
	brokers := strings.Split(cfg.KafkaBrokers, ",")
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		GroupID:  "deposit-processor",
		Topic:    cfg.TopicDepositObserved,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	// DLQ para eventos que falharam após retries
	var dlqWriter *kafkago.Writer
	if cfg.TopicDepositObservedDLQ != "" {
		dlqWriter = sharedkafka.NewWriter(cfg.KafkaBrokers, cfg.TopicDepositObservedDLQ)
		defer dlqWriter.Close()
	}

	// Métricas Prometheus para monitoramento do pipeline de crédito
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "deposit_proc_messages_consumed_total", Help: "mensagens consumidas"})
	credited := prometheus.NewCounter(prometheus.CounterOpts{Name: "deposit_proc_credited_total", Help: "depósitos creditados"})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{Name: "deposit_proc_duplicates_total", Help: "depósitos deduplicados"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "deposit_proc_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, credited, duplicates, errorsBy)

	// Broadcaster para avisar a camada de chat via Redis Pub/Sub
	broadcaster := pubsub.NewRedisBroadcaster(redisClient)

	// Instancia o processor, conectando callbacks de métricas e broadcast
	proc := &consumer.Processor{
		Log:         log,
		Reader:      reader,
		Ledger:      ledger,
		Registry:    reg,
		Rates:       oracle,
		Sweep:       forwarder,
		DLQ:         dlqWriter,
		OnConsumed:  func() { consumed.Inc() },
		OnCredited:  func() { credited.Inc() },
		OnDuplicate: func() { duplicates.Inc() },
		OnError:     func(stage string) { errorsBy.WithLabelValues(stage).Inc() },

		// Após o crédito, envia a notificação para o chat via Redis Pub/Sub
		Broadcast: func(ctx context.Context, n ev.DepositNotice) {
			b, _ := json.Marshal(n)

			bctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()

			if err := broadcaster.Publish(bctx, cfg.RedisPubSubChannel, b); err != nil {
				log.Warn("deposit broadcast publish failed", zap.Error(err))
			}
		},
	}

	// Servidor HTTP para métricas e health check
	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		return redisClient.Ping(ctx).Err()
	})

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("deposit-processor started")
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}
	log.Info("deposit-processor stopped")
}
