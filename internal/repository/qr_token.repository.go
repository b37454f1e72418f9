package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/nimasrn/card-ledger/pkg/pg"
	"gorm.io/gorm"
)

var (
	ErrQrTokenNotFound = model.NewError(model.KindQrInvalid, "qr token not recognised")
	ErrQrNotActive     = model.NewError(model.KindQrInvalid, "qr token already used or revoked")
	ErrQrRotating      = model.NewError(model.KindConflict, "qr token rotated concurrently")
)

type QrTokenRepository struct {
	*pg.DB
}

func NewQrTokenRepository(db *pg.DB) *QrTokenRepository {
	return &QrTokenRepository{
		db,
	}
}

// Rotate revokes every active token of the card and stores the new one.
// Both statements must share the caller's transaction.
func (r *QrTokenRepository) Rotate(ctx context.Context, token *model.QrToken) (*model.QrToken, error) {
	var created *model.QrToken
	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := r.RevokeActive(ctx, token.CardID); err != nil {
			return err
		}
		entity := toQrTokenEntity(token)
		if err := r.Write(ctx).Create(entity).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrQrRotating
			}
			return err
		}
		created = toQrTokenModel(entity)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// RevokeActive returns how many active tokens were revoked.
func (r *QrTokenRepository) RevokeActive(ctx context.Context, cardID int64) (int64, error) {
	result := r.Write(ctx).
		Model(&QrTokenEntity{}).
		Where("card_id = ? AND status = ?", cardID, string(model.QrStatusActive)).
		Update("status", string(model.QrStatusRevoked))
	return result.RowsAffected, result.Error
}

func (r *QrTokenRepository) GetByDigest(ctx context.Context, digest string) (*model.QrToken, error) {
	var entity QrTokenEntity
	err := r.Write(ctx).
		Where("token_digest = ?", digest).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQrTokenNotFound
		}
		return nil, err
	}
	return toQrTokenModel(&entity), nil
}

// Consume flips an active token to consumed. Exactly one concurrent caller
// sees success; the others get ErrQrNotActive.
func (r *QrTokenRepository) Consume(ctx context.Context, id int64, at time.Time) error {
	result := r.Write(ctx).
		Model(&QrTokenEntity{}).
		Where("id = ? AND status = ?", id, string(model.QrStatusActive)).
		Updates(map[string]any{
			"status":      string(model.QrStatusConsumed),
			"consumed_at": at.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrQrNotActive
	}
	return nil
}

// MarkExpired flips active tokens whose expiry is at or before now. It is
// advisory; validation always re-checks expires_at.
func (r *QrTokenRepository) MarkExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	var ids []int64
	err := r.Read(ctx).
		Model(&QrTokenEntity{}).
		Where("status = ? AND expires_at <= ?", string(model.QrStatusActive), now.UTC()).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).
		Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}

	result := r.Write(ctx).
		Model(&QrTokenEntity{}).
		Where("id IN ? AND status = ?", ids, string(model.QrStatusActive)).
		Update("status", string(model.QrStatusExpired))
	return result.RowsAffected, result.Error
}

// History lists the most recent tokens of a card, newest first.
func (r *QrTokenRepository) History(ctx context.Context, cardID int64, limit int) ([]*model.QrToken, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	var entities []*QrTokenEntity
	err := r.Read(ctx).
		Where("card_id = ?", cardID).
		Order("id DESC").
		Limit(limit).
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toQrTokenModels(entities), nil
}
