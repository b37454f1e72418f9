package repository

import (
	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/nimasrn/card-ledger/pkg/pg"
	"github.com/shopspring/decimal"
)

type CardEntity struct {
	pg.Model
	CardNo        string           `db:"card_no"               gorm:"column:card_no;not null;uniqueIndex"`
	CardType      string           `db:"card_type"             gorm:"column:card_type;not null;index"`
	Status        string           `db:"status"                gorm:"column:status;not null"`
	Name          string           `db:"name"                  gorm:"column:name;not null"`
	Balance       decimal.Decimal  `db:"balance"               gorm:"column:balance;type:numeric(18,2);not null"`
	Version       int64            `db:"version"               gorm:"column:version;not null"`
	OwnerMemberID *int64           `db:"owner_member_id"       gorm:"column:owner_member_id;index"`
	Points        int64            `db:"points"                gorm:"column:points;not null"`
	Level         int              `db:"level"                 gorm:"column:level;not null"`
	FixedDiscount *decimal.Decimal `db:"fixed_discount"        gorm:"column:fixed_discount;type:numeric(5,4)"`
	PasswordHash  string           `db:"binding_password_hash" gorm:"column:binding_password_hash"`
}

func (CardEntity) TableName() string {
	return "cards"
}

func toCardEntity(m *model.Card) *CardEntity {
	if m == nil {
		return nil
	}
	e := &CardEntity{
		Model: pg.Model{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		CardNo:   m.CardNo,
		CardType: string(m.Type),
		Status:   string(m.Status),
		Name:     m.Name,
		Balance:  m.Balance,
		Version:  m.Version,
	}
	if m.Personal != nil {
		owner := m.Personal.OwnerMemberID
		e.OwnerMemberID = &owner
		e.Points = m.Personal.Points
		e.Level = m.Personal.Level
	}
	if m.Enterprise != nil {
		e.FixedDiscount = m.Enterprise.FixedDiscount
		e.PasswordHash = m.Enterprise.PasswordHash
	}
	return e
}

func toCardModel(e *CardEntity) *model.Card {
	if e == nil {
		return nil
	}
	m := &model.Card{
		ID:        e.ID,
		CardNo:    e.CardNo,
		Type:      model.CardType(e.CardType),
		Status:    model.CardStatus(e.Status),
		Name:      e.Name,
		Balance:   e.Balance,
		Version:   e.Version,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	switch m.Type {
	case model.CardTypePersonal:
		p := &model.PersonalCard{Points: e.Points, Level: e.Level}
		if e.OwnerMemberID != nil {
			p.OwnerMemberID = *e.OwnerMemberID
		}
		m.Personal = p
	case model.CardTypeEnterprise:
		m.Enterprise = &model.EnterpriseCard{
			FixedDiscount: e.FixedDiscount,
			PasswordHash:  e.PasswordHash,
		}
	}
	return m
}

func toCardModels(entities []*CardEntity) []*model.Card {
	if entities == nil {
		return nil
	}
	models := make([]*model.Card, len(entities))
	for i, e := range entities {
		models[i] = toCardModel(e)
	}
	return models
}
