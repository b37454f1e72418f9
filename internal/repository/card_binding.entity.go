package repository

import (
	"time"

	"github.com/nimasrn/card-ledger/internal/model"
)

type CardBindingEntity struct {
	ID        int64     `db:"id"         gorm:"primaryKey;autoIncrement;column:id"`
	CardID    int64     `db:"card_id"    gorm:"column:card_id;not null;uniqueIndex:idx_card_bindings_card_member,priority:1"`
	MemberID  int64     `db:"member_id"  gorm:"column:member_id;not null;uniqueIndex:idx_card_bindings_card_member,priority:2;index"`
	Role      string    `db:"role"       gorm:"column:role;not null"`
	CreatedAt time.Time `db:"created_at" gorm:"column:created_at;not null"`
}

func (CardBindingEntity) TableName() string {
	return "card_bindings"
}

func toCardBindingEntity(m *model.CardBinding) *CardBindingEntity {
	if m == nil {
		return nil
	}
	return &CardBindingEntity{
		ID:        m.ID,
		CardID:    m.CardID,
		MemberID:  m.MemberID,
		Role:      string(m.Role),
		CreatedAt: m.CreatedAt,
	}
}

func toCardBindingModel(e *CardBindingEntity) *model.CardBinding {
	if e == nil {
		return nil
	}
	return &model.CardBinding{
		ID:        e.ID,
		CardID:    e.CardID,
		MemberID:  e.MemberID,
		Role:      model.BindingRole(e.Role),
		CreatedAt: e.CreatedAt,
	}
}

// bindingRow is a binding joined with the member number for listings.
type bindingRow struct {
	CardBindingEntity
	MemberNo string `gorm:"column:member_no"`
}
