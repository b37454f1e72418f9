package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/nimasrn/card-ledger/pkg/pg"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrCardNotFound    = model.NewError(model.KindNotFound, "card not found")
	ErrCardNoTaken     = model.NewError(model.KindConflict, "card number already exists")
	ErrVersionConflict = model.NewError(model.KindConflict, "card version changed concurrently")
	ErrBalanceTooLow   = model.NewError(model.KindInsufficientBalance, "insufficient balance")
	ErrNotPersonalCard = model.NewError(model.KindInvalidInput, "card is not a personal card")
)

type CardRepository struct {
	*pg.DB
}

func NewCardRepository(db *pg.DB) *CardRepository {
	return &CardRepository{
		db,
	}
}

func (r *CardRepository) Create(ctx context.Context, card *model.Card) (*model.Card, error) {
	entity := toCardEntity(card)

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrCardNoTaken
		}
		return nil, err
	}

	return toCardModel(entity), nil
}

func (r *CardRepository) GetCard(ctx context.Context, id int64) (*model.Card, error) {
	return r.first(r.Read(ctx).Where("id = ?", id))
}

// GetCardForUpdate takes the row lock when called inside a transaction.
func (r *CardRepository) GetCardForUpdate(ctx context.Context, id int64) (*model.Card, error) {
	return r.first(r.Write(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *CardRepository) GetCardByNo(ctx context.Context, cardNo string) (*model.Card, error) {
	return r.first(r.Read(ctx).Where("card_no = ?", cardNo))
}

func (r *CardRepository) first(q *gorm.DB) (*model.Card, error) {
	var entity CardEntity
	if err := q.First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	return toCardModel(&entity), nil
}

func (r *CardRepository) ListByIDs(ctx context.Context, ids []int64) ([]*model.Card, error) {
	if len(ids) == 0 {
		return []*model.Card{}, nil
	}
	var entities []*CardEntity
	err := r.Read(ctx).
		Where("id IN ?", ids).
		Where("status <> ?", string(model.CardStatusDeleted)).
		Order("id ASC").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toCardModels(entities), nil
}

func (r *CardRepository) ListOwnedBy(ctx context.Context, memberID int64) ([]*model.Card, error) {
	var entities []*CardEntity
	err := r.Read(ctx).
		Where("owner_member_id = ?", memberID).
		Where("status <> ?", string(model.CardStatusDeleted)).
		Order("id ASC").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toCardModels(entities), nil
}

// ApplyBalanceDelta adds delta to the card balance as a compare-and-swap on
// expectedVersion. It returns ErrVersionConflict when the row moved on and
// ErrBalanceTooLow, without writing, when the result would be negative.
// Callers run it inside WithinTransaction so the row lock is held until commit.
func (r *CardRepository) ApplyBalanceDelta(ctx context.Context, cardID int64, delta decimal.Decimal, expectedVersion int64) (*model.Card, error) {
	var entity CardEntity

	err := r.Write(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", cardID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, err
	}

	if entity.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	balance := entity.Balance.Add(delta)
	if balance.IsNegative() {
		return nil, ErrBalanceTooLow
	}

	now := time.Now().UTC()
	result := r.Write(ctx).
		Model(&CardEntity{}).
		Where("id = ? AND version = ?", cardID, expectedVersion).
		Updates(map[string]any{
			"balance":    balance,
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrVersionConflict
	}

	entity.Balance = balance
	entity.Version = expectedVersion + 1
	entity.UpdatedAt = now
	return toCardModel(&entity), nil
}

func (r *CardRepository) UpdateStatus(ctx context.Context, cardID int64, status model.CardStatus) (*model.Card, error) {
	result := r.Write(ctx).
		Model(&CardEntity{}).
		Where("id = ?", cardID).
		Updates(map[string]any{
			"status":     string(status),
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrCardNotFound
	}
	return r.first(r.Write(ctx).Where("id = ?", cardID))
}

// SetPoints stores the new point total and the level derived from it.
func (r *CardRepository) SetPoints(ctx context.Context, cardID int64, points int64, level int) (*model.Card, error) {
	result := r.Write(ctx).
		Model(&CardEntity{}).
		Where("id = ? AND card_type = ?", cardID, string(model.CardTypePersonal)).
		Updates(map[string]any{
			"points":     points,
			"level":      level,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.first(r.Write(ctx).Where("id = ?", cardID)); err != nil {
			return nil, err
		}
		return nil, ErrNotPersonalCard
	}
	return r.first(r.Write(ctx).Where("id = ?", cardID))
}
