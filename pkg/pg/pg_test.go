package pg

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type entry struct {
	Model
	Note string `gorm:"uniqueIndex"`
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&entry{}))
	return NewFromGorm(db, nil)
}

func count(t *testing.T, db *DB) int64 {
	var n int64
	require.NoError(t, db.Read(context.Background()).Model(&entry{}).Count(&n).Error)
	return n
}

func TestWithinTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commits", func(t *testing.T) {
		db := newTestDB(t)
		err := db.WithinTransaction(ctx, func(ctx context.Context) error {
			return db.Write(ctx).Create(&entry{Note: "payment"}).Error
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count(t, db))
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db := newTestDB(t)
		boom := errors.New("boom")
		err := db.WithinTransaction(ctx, func(ctx context.Context) error {
			require.NoError(t, db.Write(ctx).Create(&entry{Note: "payment"}).Error)
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, int64(0), count(t, db))
	})

	t.Run("nested call joins the outer transaction", func(t *testing.T) {
		db := newTestDB(t)
		err := db.WithinTransaction(ctx, func(ctx context.Context) error {
			require.NoError(t, db.Write(ctx).Create(&entry{Note: "payment"}).Error)
			inner := db.WithinTransaction(ctx, func(ctx context.Context) error {
				return db.Write(ctx).Create(&entry{Note: "refund"}).Error
			})
			require.NoError(t, inner)
			return errors.New("abort outer")
		})
		assert.Error(t, err)
		assert.Equal(t, int64(0), count(t, db))
	})
}

func TestDuplicateKeyIsTranslated(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Write(ctx).Create(&entry{Note: "key-1"}).Error)
	err := db.Write(ctx).Create(&entry{Note: "key-1"}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, db.Ping(context.Background()))
}
