// Package events publishes committed ledger transactions to a Redis stream
// for downstream consumers (notifications, reporting). Publishing happens
// after commit and is best effort.
package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/nimasrn/card-ledger/pkg/logger"
	"github.com/nimasrn/card-ledger/pkg/redis"
	"github.com/shopspring/decimal"
)

type Config struct {
	Stream string
	MaxLen int64
}

// Event is the flat form of a transaction as it appears on the stream.
type Event struct {
	ID          string
	TxNo        string
	TxType      model.TxType
	Status      model.TxStatus
	CardID      int64
	FinalAmount decimal.Decimal
	FailureKind model.ErrorKind
	OccurredAt  time.Time
}

type Publisher struct {
	adapter redis.RedisAdapter
	config  Config
}

func NewPublisher(adapter redis.RedisAdapter, config Config) (*Publisher, error) {
	if config.Stream == "" {
		return nil, fmt.Errorf("events stream name is required")
	}
	return &Publisher{
		adapter: adapter,
		config:  config,
	}, nil
}

// Publish appends tx to the stream and returns the stream entry id.
func (p *Publisher) Publish(ctx context.Context, tx *model.Transaction) (string, error) {
	values := map[string]interface{}{
		"tx_no":        tx.TxNo,
		"tx_type":      string(tx.TxType),
		"status":       string(tx.Status),
		"card_id":      tx.CardID,
		"final_amount": tx.FinalAmount.StringFixed(2),
		"occurred_at":  tx.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if tx.FailureKind != "" {
		values["failure_kind"] = string(tx.FailureKind)
	}

	id, err := p.adapter.XAdd(ctx, p.config.Stream, values)
	if err != nil {
		return "", fmt.Errorf("failed to publish ledger event: %w", err)
	}

	if p.config.MaxLen > 0 {
		if err := p.adapter.XTrimApprox(ctx, p.config.Stream, p.config.MaxLen); err != nil {
			logger.Ctx(ctx).Warn("ledger event stream not trimmed", "stream", p.config.Stream, "max_len", p.config.MaxLen, "error", err)
		}
	}

	return id, nil
}

// Notify publishes tx and only logs on failure. A nil publisher is a no-op.
func (p *Publisher) Notify(ctx context.Context, tx *model.Transaction) {
	if p == nil || tx == nil {
		return
	}
	if _, err := p.Publish(ctx, tx); err != nil {
		logger.Ctx(ctx).Warn("ledger event dropped", "tx_no", tx.TxNo, "error", err)
	}
}

// Recent returns up to count of the newest events, oldest first.
func (p *Publisher) Recent(ctx context.Context, count int) ([]Event, error) {
	msgs, err := p.adapter.XRange(ctx, p.config.Stream, "-", "+")
	if err != nil {
		return nil, err
	}
	if count > 0 && len(msgs) > count {
		msgs = msgs[len(msgs)-count:]
	}
	out := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toEvent(m))
	}
	return out, nil
}

func (p *Publisher) Len(ctx context.Context) (int64, error) {
	return p.adapter.XLen(ctx, p.config.Stream)
}

func toEvent(m redis.StreamMessage) Event {
	e := Event{ID: m.ID}
	str := func(k string) string {
		s, _ := m.Values[k].(string)
		return s
	}
	e.TxNo = str("tx_no")
	e.TxType = model.TxType(str("tx_type"))
	e.Status = model.TxStatus(str("status"))
	e.FailureKind = model.ErrorKind(str("failure_kind"))
	e.CardID, _ = strconv.ParseInt(str("card_id"), 10, 64)
	e.FinalAmount, _ = decimal.NewFromString(str("final_amount"))
	e.OccurredAt, _ = time.Parse(time.RFC3339Nano, str("occurred_at"))
	return e
}
