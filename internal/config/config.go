package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/card-ledger/pkg/logger"
	"github.com/nimasrn/card-ledger/pkg/pg"
	"github.com/nimasrn/card-ledger/pkg/retrier"
	"github.com/pkg/errors"
)

const ConfigTagName = "env"
const ConfigDefaultTagName = "default"

var config *Config

// Config holds every env driven setting of the ledger. Nothing else
// reads the environment directly.
type Config struct {
	AppEnv              string `env:"APP_ENV" default:"dev"`
	AppName             string `env:"APP_NAME" default:"card_ledger"`
	AppDebug            bool   `env:"APP_DEBUG" default:"1"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI"`
	AppBaseUrl          string `env:"APP_BASE_URL"`

	HttpListenAddr            string `env:"HTTP_LISTEN_ADDR" validation:"mustExists"`
	HttpBaseRequestUrl        string `env:"HTTP_BASE_REQUEST_URI" validation:"mustExists"`
	HttpServerReadTimeout     int    `env:"HTTP_SERVER_READ_TIMEOUT"`
	HttpServerWriteTimeout    int    `env:"HTTP_SERVER_WRITE_TIMEOUT"`
	HttpServerReadBufferSize  int    `env:"HTTP_SERVER_READ_BUFFER_SIZE"`
	HttpServerWriteBufferSize int    `env:"HTTP_SERVER_WRITE_BUFFER_SIZE"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	PostgresSSLMode         string        `env:"POSTGRES_SSLMODE,default=disable"`
	PostgresMaxOpenConns    int           `env:"POSTGRES_MAX_OPEN_CONNS,default=50"`
	PostgresMaxIdleConns    int           `env:"POSTGRES_MAX_IDLE_CONNS,default=10"`
	PostgresConnMaxLifetime time.Duration `env:"POSTGRES_CONN_MAX_LIFETIME,default=30m"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	PromNamespace string `env:"PROM_NAMESPACE"`

	QrTTL time.Duration `env:"QR_TTL,default=15m"`

	RetryMax       uint64        `env:"RETRY_MAX,default=3"`
	RetryBaseDelay time.Duration `env:"RETRY_BASE_DELAY,default=2ms"`
	RetryMaxDelay  time.Duration `env:"RETRY_MAX_DELAY,default=50ms"`

	IdempotencyLockTTL time.Duration `env:"IDEMPOTENCY_LOCK_TTL,default=30s"`

	EventsStream string `env:"EVENTS_STREAM,default=ledger:events"`
	EventsMaxLen int64  `env:"EVENTS_MAX_LEN,default=100000"`

	SweeperInterval  time.Duration `env:"SWEEPER_INTERVAL,default=1m"`
	SweeperBatchSize int           `env:"SWEEPER_BATCH_SIZE,default=500"`
	SweeperWorkers   int           `env:"SWEEPER_WORKERS,default=2"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	_, err = env.UnmarshalFromEnviron(c)

	if err != nil {
		return errors.Wrap(err, "failed to map env variables to Config")
	}

	config = c
	return nil
}

// Set replaces the loaded configuration. Used by tests and tools that build
// a Config by hand.
func Set(c *Config) {
	config = c
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

func (c *Config) RetryPolicy() retrier.Policy {
	return retrier.Policy{
		MaxRetries: c.RetryMax,
		BaseDelay:  c.RetryBaseDelay,
		MaxDelay:   c.RetryMaxDelay,
	}
}

// PostgresRead is the replica connection. Pool limits are shared with the
// primary.
func (c *Config) PostgresRead() pg.Config {
	return c.postgres(pg.Config{
		User:     c.PostgresReadUser,
		Host:     c.PostgresReadHost,
		Port:     c.PostgresReadPort,
		Password: c.PostgresReadPassword,
		Database: c.PostgresReadDatabase,
	})
}

func (c *Config) PostgresWrite() pg.Config {
	return c.postgres(pg.Config{
		User:     c.PostgresWriteUser,
		Host:     c.PostgresWriteHost,
		Port:     c.PostgresWritePort,
		Password: c.PostgresWritePassword,
		Database: c.PostgresWriteDatabase,
	})
}

func (c *Config) postgres(conf pg.Config) pg.Config {
	conf.SSLMode = c.PostgresSSLMode
	conf.MaxOpenConns = c.PostgresMaxOpenConns
	conf.MaxIdleConns = c.PostgresMaxIdleConns
	conf.ConnMaxLifetime = c.PostgresConnMaxLifetime
	return conf
}
