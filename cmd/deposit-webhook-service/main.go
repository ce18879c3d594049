package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	whttp "github.com/radieske/crypto-casino-poc/internal/deposit-webhook/http"
	"github.com/radieske/crypto-casino-poc/internal/deposit-webhook/pending"
	"github.com/radieske/crypto-casino-poc/internal/deposit-webhook/publisher"
	sharedcache "github.com/radieske/crypto-casino-poc/internal/shared/cache"
	"github.com/radieske/crypto-casino-poc/internal/shared/config"
	"github.com/radieske/crypto-casino-poc/internal/shared/logger"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("Kafka brokers", zap.String("brokers", cfg.KafkaBrokers))

	// Redis: observações pendentes + broadcast especulativo
	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Kafka Publisher (tópico deposit_observed)
	pub := publisher.NewKafkaPublisher(
		strings.Split(cfg.KafkaBrokers, ","),
		cfg.TopicDepositObserved,
		log,
	)
	defer pub.Close()

	pendingStore := pending.NewStore(redisClient, cfg.RedisPubSubChannel)
	api := whttp.NewServer(log, pub, pendingStore)

	apiSrv := &http.Server{
		Addr:    ":" + cfg.HTTPPort, // ex: 8084
		Handler: api.Router(),
	}
	go func() {
		log.Info("webhook listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("webhook srv", zap.Error(err))
		}
	}()

	// Metrics e health
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		addr := fmt.Sprintf(":%s", cfg.MetricsPort)
		log.Info("metrics/health listening", zap.String("addr", addr))
		_ = http.ListenAndServe(addr, mux)
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")
	time.Sleep(2 * time.Second)
}
