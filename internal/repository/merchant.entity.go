package repository

import (
	"time"

	"github.com/nimasrn/card-ledger/internal/model"
)

type MerchantEntity struct {
	ID        int64     `db:"id"         gorm:"primaryKey;autoIncrement;column:id"`
	Code      string    `db:"code"       gorm:"column:code;not null;uniqueIndex"`
	Name      string    `db:"name"       gorm:"column:name;not null"`
	Active    bool      `db:"active"     gorm:"column:active;not null"`
	CreatedAt time.Time `db:"created_at" gorm:"column:created_at;not null"`
}

func (MerchantEntity) TableName() string {
	return "merchants"
}

// MerchantUserEntity grants an authenticated user the right to act for a merchant.
type MerchantUserEntity struct {
	ID         int64     `db:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	MerchantID int64     `db:"merchant_id"  gorm:"column:merchant_id;not null;uniqueIndex:idx_merchant_users_pair,priority:1"`
	AuthUserID string    `db:"auth_user_id" gorm:"column:auth_user_id;not null;uniqueIndex:idx_merchant_users_pair,priority:2"`
	CreatedAt  time.Time `db:"created_at"   gorm:"column:created_at;not null"`
}

func (MerchantUserEntity) TableName() string {
	return "merchant_users"
}

func toMerchantEntity(m *model.Merchant) *MerchantEntity {
	if m == nil {
		return nil
	}
	return &MerchantEntity{
		ID:        m.ID,
		Code:      m.Code,
		Name:      m.Name,
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
	}
}

func toMerchantModel(e *MerchantEntity) *model.Merchant {
	if e == nil {
		return nil
	}
	return &model.Merchant{
		ID:        e.ID,
		Code:      e.Code,
		Name:      e.Name,
		Active:    e.Active,
		CreatedAt: e.CreatedAt,
	}
}
