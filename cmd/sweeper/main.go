package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nimasrn/card-ledger/internal/access"
	"github.com/nimasrn/card-ledger/internal/config"
	"github.com/nimasrn/card-ledger/internal/repository"
	"github.com/nimasrn/card-ledger/internal/services"
	"github.com/nimasrn/card-ledger/internal/sweeper"
	"github.com/nimasrn/card-ledger/pkg/logger"
	"github.com/nimasrn/card-ledger/pkg/pg"
	"github.com/nimasrn/card-ledger/pkg/prom"
	"github.com/nimasrn/card-ledger/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	logger.Info("starting card-ledger sweeper", "version", version, "commit", commit, "date", date)

	// the sweeper only writes, both pools point at the primary
	writeConf := config.Get().PostgresWrite()
	db, err := pg.CreateReadWrite(writeConf, writeConf, false)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "sweeper",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	cardRepo := repository.NewCardRepository(db)
	gate := access.NewGate(
		repository.NewMemberRepository(db),
		repository.NewMerchantRepository(db),
		cardRepo,
		repository.NewCardBindingRepository(db),
	)
	qrService := services.NewQrService(cardRepo, repository.NewQrTokenRepository(db), gate, config.Get().QrTTL)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	metricsAddr := config.Get().AppDebugMetricsAddr
	if metricsAddr == "" {
		metricsAddr = ":9100"
	}
	metricsURI := config.Get().AppDebugMetricsURI
	if metricsURI == "" {
		metricsURI = "/metrics"
	}
	go prom.ListenAndServer(metricsAddr, metricsURI)

	sw := sweeper.New(qrService, sweeper.Config{
		Interval:  config.Get().SweeperInterval,
		BatchSize: config.Get().SweeperBatchSize,
		Workers:   config.Get().SweeperWorkers,
	}).
		WithHealthCheck("postgres", db).
		WithHealthCheck("redis", redisAdap)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	sw.Start()

	<-c
	sw.Stop()
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.HasPrefix(v, "--env=") {
			path := strings.TrimPrefix(v, "--env=")
			if _, err := os.Stat(path); err != nil {
				logger.Error("failed to open the passed env file", "error", err)
				return ""
			}
			return path
		}
	}
	return ""
}
