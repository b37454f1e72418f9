package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nimasrn/card-ledger/internal/access"
	"github.com/nimasrn/card-ledger/internal/config"
	"github.com/nimasrn/card-ledger/internal/events"
	"github.com/nimasrn/card-ledger/internal/handlers"
	"github.com/nimasrn/card-ledger/internal/idempotency"
	"github.com/nimasrn/card-ledger/internal/repository"
	"github.com/nimasrn/card-ledger/internal/services"
	xhttp "github.com/nimasrn/card-ledger/pkg/http"
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
	logger.Info("starting card-ledger api", "version", version, "commit", commit, "date", date)

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	if config.Get().HttpServerReadBufferSize > 0 {
		s.Server.ReadBufferSize = config.Get().HttpServerReadBufferSize
	}
	if config.Get().HttpServerWriteBufferSize > 0 {
		s.Server.WriteBufferSize = config.Get().HttpServerWriteBufferSize
	}
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(time.Second * 5))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(config.Get().PostgresRead(), config.Get().PostgresWrite(), pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	if config.Get().PromNamespace != "" {
		host, _ := os.Hostname()
		if err := prom.Create(host, config.Get().AppEnv, config.Get().PromNamespace); err != nil {
			logger.Error("failed registering metrics", "error", err)
		}
	}

	publisher, err := events.NewPublisher(redisAdap, events.Config{
		Stream: config.Get().EventsStream,
		MaxLen: config.Get().EventsMaxLen,
	})
	if err != nil {
		logger.Error("failed creating events publisher", "error", err)
		return
	}

	guardConf := idempotency.DefaultConfig()
	guardConf.LockTTL = config.Get().IdempotencyLockTTL
	guard := idempotency.NewGuard(redisAdap, guardConf)

	// repositories
	cardRepo := repository.NewCardRepository(db)
	bindingRepo := repository.NewCardBindingRepository(db)
	memberRepo := repository.NewMemberRepository(db)
	merchantRepo := repository.NewMerchantRepository(db)
	levelRepo := repository.NewMembershipLevelRepository(db)
	qrRepo := repository.NewQrTokenRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)

	gate := access.NewGate(memberRepo, merchantRepo, cardRepo, bindingRepo)

	// services
	discountService := services.NewDiscountService(levelRepo)
	qrService := services.NewQrService(cardRepo, qrRepo, gate, config.Get().QrTTL)
	cardService := services.NewCardService(cardRepo, bindingRepo, discountService, gate)
	enterpriseService := services.NewEnterpriseService(db, cardRepo, bindingRepo, memberRepo, gate, access.HashCardPassword)
	transactionService := services.NewTransactionService(services.TransactionDeps{
		DB:       db,
		Cards:    cardRepo,
		Txs:      transactionRepo,
		Bindings: bindingRepo,
		Qr:       qrService,
		Discount: discountService,
		Gate:     gate,
		Guard:    guard,
		Events:   publisher,
		Policy:   config.Get().RetryPolicy(),
	})
	healthService := services.NewHealthService(map[string]services.Pinger{
		"postgres": db,
		"redis":    redisAdap,
	})

	// v1 handlers
	rpcHandler := handlers.NewRpcHandler(qrService, transactionService, cardService, enterpriseService)
	healthHandler := handlers.NewHealthHandler(healthService)

	g := s.Router.Group("/api/v1")
	handlers.RegisterRpcRoutes(g, rpcHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	if prom.MetricSystemEnabled {
		if addr := config.Get().AppDebugMetricsAddr; addr != "" {
			go prom.ListenAndServer(addr, metricsURI())
		} else {
			s.Router.GET(metricsURI(), prom.Handler())
		}
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	logger.Info("shutting down api")
	s.Shutdown()
}

func metricsURI() string {
	if uri := config.Get().AppDebugMetricsURI; uri != "" {
		return uri
	}
	return "/metrics"
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
