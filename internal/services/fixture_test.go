package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/card-ledger/internal/access"
	"github.com/nimasrn/card-ledger/internal/events"
	"github.com/nimasrn/card-ledger/internal/idempotency"
	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/nimasrn/card-ledger/internal/repository"
	"github.com/nimasrn/card-ledger/pkg/pg"
	"github.com/nimasrn/card-ledger/pkg/redis"
	"github.com/nimasrn/card-ledger/pkg/retrier"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	db        *pg.DB
	mr        *miniredis.Miniredis
	clock     *fakeClock
	cards     *repository.CardRepository
	txs       *repository.TransactionRepository
	tokens    *repository.QrTokenRepository
	bindings  *repository.CardBindingRepository
	members   *repository.MemberRepository
	merchants *repository.MerchantRepository
	gate      *access.Gate
	events    *events.Publisher

	qr         *QrService
	discount   *DiscountService
	ledger     *TransactionService
	cardSvc    *CardService
	enterprise *EnterpriseService

	alice    *model.Member
	bob      *model.Member
	shop     *model.Merchant
	personal *model.Card
}

var (
	aliceCaller   = model.Caller{AuthUserID: "u-alice"}
	bobCaller     = model.Caller{AuthUserID: "u-bob"}
	cashierCaller = model.Caller{AuthUserID: "u-cashier"}
	opsCaller     = model.Caller{AuthUserID: "u-ops"}
)

func fastHash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(h), err
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newTestEnv wires every service over an in-memory database and a
// miniredis instance. Alice owns a personal card with 100.00 and 6000
// points (the 0.90 level); the cashier acts for merchant SHOP.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db := repository.NewTestDB(t)
	repository.SeedLevels(t, db, repository.DefaultLevels())

	mr := miniredis.RunT(t)
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { _ = client.Close() })
	adapter := redis.Wrap(t.Name(), "", client)

	e := &testEnv{
		db:        db,
		mr:        mr,
		clock:     &fakeClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)},
		cards:     repository.NewCardRepository(db),
		txs:       repository.NewTransactionRepository(db),
		tokens:    repository.NewQrTokenRepository(db),
		bindings:  repository.NewCardBindingRepository(db),
		members:   repository.NewMemberRepository(db),
		merchants: repository.NewMerchantRepository(db),
	}
	e.gate = access.NewGate(e.members, e.merchants, e.cards, e.bindings)

	publisher, err := events.NewPublisher(adapter, events.Config{Stream: "ledger:events", MaxLen: 1000})
	require.NoError(t, err)
	e.events = publisher

	e.qr = NewQrService(e.cards, e.tokens, e.gate, DefaultQrTTL).WithClock(e.clock.Now)
	e.discount = NewDiscountService(repository.NewMembershipLevelRepository(db))
	e.ledger = NewTransactionService(TransactionDeps{
		DB:       db,
		Cards:    e.cards,
		Txs:      e.txs,
		Bindings: e.bindings,
		Qr:       e.qr,
		Discount: e.discount,
		Gate:     e.gate,
		Guard:    idempotency.NewGuard(adapter, idempotency.DefaultConfig()),
		Events:   publisher,
		Policy:   retrier.Policy{MaxRetries: 3},
	}).WithClock(e.clock.Now)
	e.cardSvc = NewCardService(e.cards, e.bindings, e.discount, e.gate)
	e.enterprise = NewEnterpriseService(db, e.cards, e.bindings, e.members, e.gate, fastHash)

	e.alice = e.member(t, "M-ALICE", "u-alice")
	e.bob = e.member(t, "M-BOB", "u-bob")

	e.shop, err = e.merchants.Create(ctx, &model.Merchant{Code: "SHOP", Name: "Shop", Active: true})
	require.NoError(t, err)
	require.NoError(t, e.merchants.AddUser(ctx, e.shop.ID, cashierCaller.AuthUserID))
	require.NoError(t, e.members.AddPlatformAdmin(ctx, opsCaller.AuthUserID))

	e.personal = e.personalCard(t, e.alice, "100.00", 6000)
	return e
}

func (e *testEnv) member(t *testing.T, no, user string) *model.Member {
	t.Helper()
	m, err := e.members.Create(context.Background(), &model.Member{
		MemberNo:   no,
		AuthUserID: user,
		Name:       no,
		Status:     model.MemberStatusActive,
		CreatedAt:  e.clock.Now(),
	})
	require.NoError(t, err)
	return m
}

func (e *testEnv) personalCard(t *testing.T, owner *model.Member, balance string, points int64) *model.Card {
	t.Helper()
	card, err := e.cards.Create(context.Background(), &model.Card{
		CardNo:   newCardNo(model.CardTypePersonal),
		Type:     model.CardTypePersonal,
		Status:   model.CardStatusActive,
		Name:     owner.Name,
		Balance:  dec(balance),
		Personal: &model.PersonalCard{OwnerMemberID: owner.ID, Points: points},
	})
	require.NoError(t, err)
	return card
}

// enterpriseCard creates an enterprise card administered by bob, funded by
// a recharge so the balance comes from the ledger.
func (e *testEnv) enterpriseCard(t *testing.T, fixed *decimal.Decimal, balance string) *model.Card {
	t.Helper()
	ctx := context.Background()
	card, err := e.enterprise.CreateEnterpriseCard(ctx, bobCaller, model.CreateEnterpriseCardRequest{
		Name:          "ACME",
		Password:      "corp-pass",
		FixedDiscount: fixed,
	})
	require.NoError(t, err)
	if balance != "" {
		_, err = e.ledger.RechargeEnterpriseAdmin(ctx, bobCaller, model.RechargeRequest{CardID: card.ID, Amount: dec(balance)})
		require.NoError(t, err)
	}
	return card
}

func (e *testEnv) rotate(t *testing.T, caller model.Caller, card *model.Card) string {
	t.Helper()
	issue, err := e.qr.Rotate(context.Background(), caller, card.ID, card.Type)
	require.NoError(t, err)
	return issue.Plain
}

func (e *testEnv) balance(t *testing.T, cardID int64) string {
	t.Helper()
	card, err := e.cards.GetCard(context.Background(), cardID)
	require.NoError(t, err)
	return card.Balance.StringFixed(2)
}

func (e *testEnv) charge(caller model.Caller, qr, raw, key string) (*model.Transaction, error) {
	return e.ledger.Charge(context.Background(), caller, model.ChargeRequest{
		MerchantCode:   "SHOP",
		QrPlain:        qr,
		RawAmount:      dec(raw),
		IdempotencyKey: key,
	})
}
