package repository

import (
	"context"
	"errors"

	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/nimasrn/card-ledger/pkg/pg"
	"gorm.io/gorm"
)

var ErrMerchantNotFound = model.NewError(model.KindNotFound, "merchant not found")

type MerchantRepository struct {
	*pg.DB
}

func NewMerchantRepository(db *pg.DB) *MerchantRepository {
	return &MerchantRepository{
		db,
	}
}

func (r *MerchantRepository) Create(ctx context.Context, m *model.Merchant) (*model.Merchant, error) {
	entity := toMerchantEntity(m)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toMerchantModel(entity), nil
}

func (r *MerchantRepository) GetByCode(ctx context.Context, code string) (*model.Merchant, error) {
	var entity MerchantEntity
	if err := r.Read(ctx).Where("code = ?", code).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMerchantNotFound
		}
		return nil, err
	}
	return toMerchantModel(&entity), nil
}

func (r *MerchantRepository) AddUser(ctx context.Context, merchantID int64, authUserID string) error {
	return r.Write(ctx).Create(&MerchantUserEntity{MerchantID: merchantID, AuthUserID: authUserID}).Error
}

func (r *MerchantRepository) IsUser(ctx context.Context, merchantID int64, authUserID string) (bool, error) {
	var n int64
	err := r.Read(ctx).
		Model(&MerchantUserEntity{}).
		Where("merchant_id = ? AND auth_user_id = ?", merchantID, authUserID).
		Count(&n).
		Error
	return n > 0, err
}
