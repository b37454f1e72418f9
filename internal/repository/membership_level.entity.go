package repository

import (
	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/shopspring/decimal"
)

type MembershipLevelEntity struct {
	Level     int             `db:"level"      gorm:"primaryKey;autoIncrement:false;column:level"`
	Name      string          `db:"name"       gorm:"column:name;not null"`
	MinPoints int64           `db:"min_points" gorm:"column:min_points;not null"`
	MaxPoints *int64          `db:"max_points" gorm:"column:max_points"`
	Discount  decimal.Decimal `db:"discount"   gorm:"column:discount;type:numeric(5,4);not null"`
}

func (MembershipLevelEntity) TableName() string {
	return "membership_levels"
}

func toMembershipLevelEntity(m model.MembershipLevel) *MembershipLevelEntity {
	return &MembershipLevelEntity{
		Level:     m.Level,
		Name:      m.Name,
		MinPoints: m.MinPoints,
		MaxPoints: m.MaxPoints,
		Discount:  m.Discount,
	}
}

func toMembershipLevelModel(e *MembershipLevelEntity) model.MembershipLevel {
	return model.MembershipLevel{
		Level:     e.Level,
		Name:      e.Name,
		MinPoints: e.MinPoints,
		MaxPoints: e.MaxPoints,
		Discount:  e.Discount,
	}
}
