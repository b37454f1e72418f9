package helpers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/nimasrn/card-ledger/internal/repository"
	"github.com/nimasrn/card-ledger/pkg/pg"
	"github.com/nimasrn/card-ledger/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// SetupTestDB returns an in-memory ledger database with the default
// membership levels seeded.
func SetupTestDB(t *testing.T) *pg.DB {
	db := repository.NewTestDB(t)
	repository.SeedLevels(t, db, repository.DefaultLevels())
	return db
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr := miniredis.RunT(t)

	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	t.Cleanup(func() { _ = client.Close() })

	// adapters are keyed by name; a unique one keeps tests apart
	connName := fmt.Sprintf("test-%d", time.Now().UnixNano())
	return mr, redis.Wrap(connName, "", client)
}

func CreateTestMember(t *testing.T, db *pg.DB, m model.Member) *model.Member {
	m.CreatedAt = time.Now().UTC()
	out, err := repository.NewMemberRepository(db).Create(context.Background(), &m)
	require.NoError(t, err)
	return out
}

// CreateTestMerchant stores m and lets each of users act for it.
func CreateTestMerchant(t *testing.T, db *pg.DB, m model.Merchant, users ...string) *model.Merchant {
	ctx := context.Background()
	repo := repository.NewMerchantRepository(db)
	out, err := repo.Create(ctx, &m)
	require.NoError(t, err)
	for _, u := range users {
		require.NoError(t, repo.AddUser(ctx, out.ID, u))
	}
	return out
}

func CreateTestPlatformAdmin(t *testing.T, db *pg.DB, authUserID string) {
	require.NoError(t, repository.NewMemberRepository(db).AddPlatformAdmin(context.Background(), authUserID))
}

func CreateTestPersonalCard(t *testing.T, db *pg.DB, owner *model.Member, cardNo, balance string, points int64) *model.Card {
	card, err := repository.NewCardRepository(db).Create(context.Background(), &model.Card{
		CardNo:   cardNo,
		Type:     model.CardTypePersonal,
		Status:   model.CardStatusActive,
		Name:     owner.Name,
		Balance:  decimal.RequireFromString(balance),
		Personal: &model.PersonalCard{OwnerMemberID: owner.ID, Points: points},
	})
	require.NoError(t, err)
	return card
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func Ptr[T any](v T) *T {
	return &v
}
