package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/nimasrn/card-ledger/pkg/logger"
	"github.com/nimasrn/card-ledger/pkg/prom"
)

const (
	DefaultQrTTL = 15 * time.Minute

	qrEntropyBytes = 32
	// base64url of 32 bytes is 43 characters; anything much shorter
	// cannot be ours
	qrMinPlainLen = 16
)

type QrService struct {
	cards  CardRepository
	tokens QrTokenRepository
	gate   Gate
	ttl    time.Duration
	now    Clock
}

func NewQrService(cards CardRepository, tokens QrTokenRepository, gate Gate, ttl time.Duration) *QrService {
	if ttl <= 0 {
		ttl = DefaultQrTTL
	}
	return &QrService{
		cards:  cards,
		tokens: tokens,
		gate:   gate,
		ttl:    ttl,
		now:    systemClock,
	}
}

func (s *QrService) WithClock(now Clock) *QrService {
	s.now = now
	return s
}

// Rotate revokes whatever token the card has and issues a fresh one. The
// plaintext leaves this function exactly once.
func (s *QrService) Rotate(ctx context.Context, caller model.Caller, cardID int64, cardType model.CardType) (*model.QrIssue, error) {
	if !cardType.Valid() {
		return nil, model.NewError(model.KindInvalidInput, "card_type must be personal or enterprise")
	}
	card, err := s.cards.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeCardHolder(ctx, caller, card); err != nil {
		return nil, err
	}
	if card.Type != cardType {
		return nil, model.Errorf(model.KindInvalidInput, "card %d is not a %s card", cardID, cardType)
	}
	if !card.IsActive() {
		return nil, model.Errorf(model.KindCardNotActive, "card is %s", card.Status)
	}

	plain, err := newQrPlain()
	if err != nil {
		return nil, err
	}
	now := s.now()
	token, err := s.tokens.Rotate(ctx, &model.QrToken{
		CardID:    card.ID,
		CardType:  card.Type,
		Digest:    qrDigest(plain),
		Status:    model.QrStatusActive,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}

	prom.AddQrEvent("rotated", 1)
	return &model.QrIssue{
		Plain:     plain,
		ExpiresAt: token.ExpiresAt,
	}, nil
}

// Inspect resolves plain to its token and runs every check except
// consumption.
func (s *QrService) Inspect(ctx context.Context, plain string) (*model.QrToken, error) {
	if len(plain) < qrMinPlainLen {
		return nil, model.NewError(model.KindQrInvalid, "qr token malformed")
	}
	token, err := s.tokens.GetByDigest(ctx, qrDigest(plain))
	if err != nil {
		return nil, err
	}
	// expiry wins over every other state
	if !s.now().Before(token.ExpiresAt) {
		return nil, model.NewError(model.KindQrExpired, "qr token expired")
	}
	if token.Status != model.QrStatusActive {
		return nil, model.Errorf(model.KindQrInvalid, "qr token is %s", token.Status)
	}
	return token, nil
}

// ValidateAndConsume burns the token. Run it inside the charge's database
// transaction so a rollback un-burns it and a commit keeps it burnt.
func (s *QrService) ValidateAndConsume(ctx context.Context, plain string) (*model.QrToken, error) {
	token, err := s.Inspect(ctx, plain)
	if err != nil {
		prom.AddQrEvent(string(model.KindOf(err)), 1)
		return nil, err
	}
	now := s.now()
	if err := s.tokens.Consume(ctx, token.ID, now); err != nil {
		prom.AddQrEvent(string(model.KindOf(err)), 1)
		return nil, err
	}
	token.Status = model.QrStatusConsumed
	token.ConsumedAt = &now
	prom.AddQrEvent("consumed", 1)
	return token, nil
}

func (s *QrService) Revoke(ctx context.Context, caller model.Caller, cardID int64) (int64, error) {
	card, err := s.cards.GetCard(ctx, cardID)
	if err != nil {
		return 0, err
	}
	if err := s.gate.AuthorizeCardHolder(ctx, caller, card); err != nil {
		return 0, err
	}
	n, err := s.tokens.RevokeActive(ctx, card.ID)
	if err != nil {
		return 0, err
	}
	prom.AddQrEvent("revoked", float64(n))
	return n, nil
}

func (s *QrService) History(ctx context.Context, caller model.Caller, cardID int64, limit int) ([]*model.QrToken, error) {
	card, err := s.cards.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeCardHolder(ctx, caller, card); err != nil {
		return nil, err
	}
	return s.tokens.History(ctx, card.ID, limit)
}

// SweepExpired marks up to limit elapsed tokens expired. Validation never
// depends on it having run.
func (s *QrService) SweepExpired(ctx context.Context, limit int) (int64, error) {
	n, err := s.tokens.MarkExpired(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Debug("qr tokens marked expired", "count", n)
		prom.AddQrEvent("expired", float64(n))
	}
	return n, nil
}

func newQrPlain() (string, error) {
	buf := make([]byte, qrEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", model.WrapError(model.KindInternal, "qr entropy", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func qrDigest(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
