package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nimasrn/card-ledger/internal/config"
	"github.com/nimasrn/card-ledger/internal/events"
	"github.com/nimasrn/card-ledger/pkg/logger"
	"github.com/nimasrn/card-ledger/pkg/pg"
	"github.com/nimasrn/card-ledger/pkg/redis"
)

// usage: cli [migrate|status|events] --env=.env --dir=./migrations --count=20
func main() {
	err := config.Load(getEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	pgConf := config.Get().PostgresWrite()

	switch command() {
	case "migrate":
		err = pg.Migrate(pgConf, getMigrationPath())
		if err != nil {
			logger.Error("migration: error running migrations", "error", err)
		}
	case "status":
		err = pg.MigrationStatus(pgConf, getMigrationPath())
		if err != nil {
			logger.Error("migration: error reading status", "error", err)
		}
	case "events":
		err = tailEvents(getFlag("--count=", "20"))
		if err != nil {
			logger.Error("events: error reading stream", "error", err)
		}
	default:
		fmt.Println("usage: cli [migrate|status|events] [--env=path] [--dir=path] [--count=n]")
		os.Exit(2)
	}
	if err != nil {
		os.Exit(1)
	}
}

// tailEvents prints the newest ledger events, oldest first.
func tailEvents(countArg string) error {
	count, err := strconv.Atoi(countArg)
	if err != nil {
		return fmt.Errorf("count %q is not a number", countArg)
	}

	adapter, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "cli",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		return err
	}
	publisher, err := events.NewPublisher(adapter, events.Config{
		Stream: config.Get().EventsStream,
		MaxLen: config.Get().EventsMaxLen,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	recent, err := publisher.Recent(ctx, count)
	if err != nil {
		return err
	}
	for _, e := range recent {
		line := fmt.Sprintf("%s %s %-8s %-9s card=%d amount=%s",
			e.OccurredAt.Format(time.RFC3339), e.TxNo, e.TxType, e.Status, e.CardID, e.FinalAmount.StringFixed(2))
		if e.FailureKind != "" {
			line += " failure=" + string(e.FailureKind)
		}
		fmt.Println(line)
	}
	return nil
}

func command() string {
	for _, v := range os.Args[1:] {
		if !strings.HasPrefix(v, "--") {
			return v
		}
	}
	return "migrate"
}

func getFlag(prefix, def string) string {
	for _, v := range os.Args[1:] {
		if strings.HasPrefix(v, prefix) {
			return strings.TrimPrefix(v, prefix)
		}
	}
	return def
}

func getEnvPath() string {
	path := getFlag("--env=", ".env")
	if _, err := os.Stat(path); err != nil {
		logger.Warn("env file not found, using the process environment", "path", path)
		return ""
	}
	return path
}

func getMigrationPath() string {
	path := getFlag("--dir=", "./migrations")
	if _, err := os.Stat(path); err != nil {
		logger.Error("migration directory not found", "path", path, "error", err)
		return ""
	}
	return path
}
