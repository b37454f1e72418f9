// Package idempotency holds the Redis side of idempotent money operations:
// a short lease that keeps two requests with the same key from running at
// once, and a processed marker that lets replays skip the database lookup.
// The unique (tx_type, idempotency_key) index stays the source of truth, so
// every Redis failure degrades to a warning.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/nimasrn/card-ledger/pkg/logger"
	"github.com/nimasrn/card-ledger/pkg/redis"
)

var ErrInFlight = model.NewError(model.KindConflict, "a request with this idempotency key is in progress")

type Config struct {
	LockTTL time.Duration

	ProcessedTTL time.Duration

	LockKeyPrefix string

	ProcessedKeyPrefix string
}

func DefaultConfig() Config {
	return Config{
		LockTTL:            30 * time.Second,
		ProcessedTTL:       24 * time.Hour,
		LockKeyPrefix:      "lock:",
		ProcessedKeyPrefix: "processed:",
	}
}

// Marker is what a finished request leaves behind.
type Marker struct {
	TxNo        string `json:"tx_no"`
	RequestHash string `json:"request_hash"`
}

type Guard struct {
	redis  redis.RedisAdapter
	config Config
}

// NewGuard returns a guard over adapter. A nil adapter yields a guard whose
// leases always succeed and whose markers are never found.
func NewGuard(adapter redis.RedisAdapter, config Config) *Guard {
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultConfig().LockTTL
	}
	if config.ProcessedTTL <= 0 {
		config.ProcessedTTL = DefaultConfig().ProcessedTTL
	}
	return &Guard{
		redis:  adapter,
		config: config,
	}
}

type Lease struct {
	key   string
	token []byte
	guard *Guard
}

func (g *Guard) lockKey(kind, key string) string {
	return g.config.LockKeyPrefix + kind + ":" + key
}

func (g *Guard) processedKey(kind, key string) string {
	return g.config.ProcessedKeyPrefix + kind + ":" + key
}

// Acquire takes the lease for (kind, key). It fails with ErrInFlight while
// another holder has it.
func (g *Guard) Acquire(ctx context.Context, kind, key string) (*Lease, error) {
	if g == nil || g.redis == nil {
		return &Lease{}, nil
	}

	lockKey := g.lockKey(kind, key)
	token := []byte(uuid.NewString())

	acquired, err := g.redis.SetNX(ctx, lockKey, token, g.config.LockTTL)
	if err != nil {
		logger.Ctx(ctx).Warn("idempotency lease unavailable, relying on database uniqueness", "key", lockKey, "error", err)
		return &Lease{}, nil
	}
	if !acquired {
		logger.Ctx(ctx).Info("idempotency lease already held", "key", lockKey)
		return nil, ErrInFlight
	}

	return &Lease{
		key:   lockKey,
		token: token,
		guard: g,
	}, nil
}

// Release frees the lease if this holder still owns it. Safe on a nil or
// empty lease.
func (l *Lease) Release(ctx context.Context) {
	if l == nil || l.guard == nil || l.key == "" {
		return
	}
	released, err := l.guard.redis.DelIfEquals(ctx, l.key, l.token)
	if err != nil {
		logger.Ctx(ctx).Warn("failed to release idempotency lease", "key", l.key, "error", err)
		return
	}
	if !released {
		logger.Debug("idempotency lease expired before release", "key", l.key)
	}
	l.key = ""
}

// Remember stores the processed marker for (kind, key).
func (g *Guard) Remember(ctx context.Context, kind, key string, m Marker) {
	if g == nil || g.redis == nil {
		return
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := g.redis.Set(ctx, g.processedKey(kind, key), payload, g.config.ProcessedTTL); err != nil {
		logger.Warn("failed to store idempotency marker", "kind", kind, "key", key, "error", err)
	}
}

// Recall returns the processed marker for (kind, key), if any.
func (g *Guard) Recall(ctx context.Context, kind, key string) (*Marker, bool) {
	if g == nil || g.redis == nil {
		return nil, false
	}
	payload, err := g.redis.Get(ctx, g.processedKey(kind, key))
	if err != nil {
		if !errors.Is(err, redis.NilError) {
			logger.Warn("failed to read idempotency marker", "kind", kind, "key", key, "error", err)
		}
		return nil, false
	}
	var m Marker
	if err := json.Unmarshal(payload, &m); err != nil {
		logger.Warn("discarding malformed idempotency marker", "kind", kind, "key", key, "error", err)
		return nil, false
	}
	return &m, true
}

// Fingerprint hashes the request fields that must match on replay.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(h.Sum(nil))
}
