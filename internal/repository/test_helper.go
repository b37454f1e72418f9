package repository

import (
	"context"
	"testing"

	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/nimasrn/card-ledger/pkg/pg"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Entities lists every table owned by the ledger, in dependency order.
func Entities() []any {
	return []any{
		&MemberEntity{},
		&PlatformAdminEntity{},
		&MerchantEntity{},
		&MerchantUserEntity{},
		&MembershipLevelEntity{},
		&CardEntity{},
		&CardBindingEntity{},
		&QrTokenEntity{},
		&TransactionEntity{},
	}
}

// NewTestDB opens a private in-memory sqlite database with the full schema.
// A single connection keeps every goroutine on the same database and
// serialises transactions the way row locks would.
func NewTestDB(t testing.TB) *pg.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), pg.GormConfig())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(Entities()...))

	return pg.NewFromGorm(db, db)
}

func ptr[T any](v T) *T {
	return &v
}

// DefaultLevels mirrors the seed in migrations/00001_init.sql.
func DefaultLevels() []model.MembershipLevel {
	return []model.MembershipLevel{
		{Level: 0, Name: "standard", MinPoints: 0, MaxPoints: ptr(int64(1000)), Discount: decimal.RequireFromString("1.000")},
		{Level: 1, Name: "silver", MinPoints: 1000, MaxPoints: ptr(int64(5000)), Discount: decimal.RequireFromString("0.950")},
		{Level: 2, Name: "gold", MinPoints: 5000, MaxPoints: ptr(int64(10000)), Discount: decimal.RequireFromString("0.900")},
		{Level: 3, Name: "diamond", MinPoints: 10000, Discount: decimal.RequireFromString("0.850")},
	}
}

func SeedLevels(t testing.TB, db *pg.DB, levels []model.MembershipLevel) {
	t.Helper()
	repo := NewMembershipLevelRepository(db)
	for _, l := range levels {
		require.NoError(t, repo.Upsert(context.Background(), l))
	}
}
