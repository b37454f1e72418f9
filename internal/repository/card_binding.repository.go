package repository

import (
	"context"
	"errors"

	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/nimasrn/card-ledger/pkg/pg"
	"gorm.io/gorm"
)

var (
	ErrBindingNotFound = model.NewError(model.KindNotFound, "member is not bound to this card")
	ErrBindingExists   = model.NewError(model.KindConflict, "member already bound to this card")
)

type CardBindingRepository struct {
	*pg.DB
}

func NewCardBindingRepository(db *pg.DB) *CardBindingRepository {
	return &CardBindingRepository{
		db,
	}
}

func (r *CardBindingRepository) Create(ctx context.Context, b *model.CardBinding) (*model.CardBinding, error) {
	entity := toCardBindingEntity(b)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrBindingExists
		}
		return nil, err
	}
	return toCardBindingModel(entity), nil
}

func (r *CardBindingRepository) Get(ctx context.Context, cardID, memberID int64) (*model.CardBinding, error) {
	var entity CardBindingEntity
	err := r.Read(ctx).
		Where("card_id = ? AND member_id = ?", cardID, memberID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBindingNotFound
		}
		return nil, err
	}
	return toCardBindingModel(&entity), nil
}

func (r *CardBindingRepository) ListByCard(ctx context.Context, cardID int64) ([]*model.CardBinding, error) {
	var rows []*bindingRow
	err := r.Read(ctx).
		Table("card_bindings AS b").
		Select("b.*, m.member_no AS member_no").
		Joins("JOIN members AS m ON m.id = b.member_id").
		Where("b.card_id = ?", cardID).
		Order("b.id ASC").
		Scan(&rows).
		Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.CardBinding, len(rows))
	for i, row := range rows {
		out[i] = toCardBindingModel(&row.CardBindingEntity)
		out[i].MemberNo = row.MemberNo
	}
	return out, nil
}

func (r *CardBindingRepository) ListByMember(ctx context.Context, memberID int64) ([]*model.CardBinding, error) {
	var entities []*CardBindingEntity
	err := r.Read(ctx).
		Where("member_id = ?", memberID).
		Order("id ASC").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.CardBinding, len(entities))
	for i, e := range entities {
		out[i] = toCardBindingModel(e)
	}
	return out, nil
}

// CountAdmins reads through the write handle so it sees the caller's
// transaction, which already holds the card row lock.
func (r *CardBindingRepository) CountAdmins(ctx context.Context, cardID int64) (int64, error) {
	var n int64
	err := r.Write(ctx).
		Model(&CardBindingEntity{}).
		Where("card_id = ? AND role = ?", cardID, string(model.RoleAdmin)).
		Count(&n).
		Error
	return n, err
}

func (r *CardBindingRepository) UpdateRole(ctx context.Context, cardID, memberID int64, role model.BindingRole) error {
	result := r.Write(ctx).
		Model(&CardBindingEntity{}).
		Where("card_id = ? AND member_id = ?", cardID, memberID).
		Update("role", string(role))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBindingNotFound
	}
	return nil
}

func (r *CardBindingRepository) Delete(ctx context.Context, cardID, memberID int64) error {
	result := r.Write(ctx).
		Where("card_id = ? AND member_id = ?", cardID, memberID).
		Delete(&CardBindingEntity{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBindingNotFound
	}
	return nil
}
