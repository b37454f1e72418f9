package repository

import (
	"time"

	"github.com/nimasrn/card-ledger/internal/model"
)

type QrTokenEntity struct {
	ID          int64      `db:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	CardID      int64      `db:"card_id"      gorm:"column:card_id;not null;index"`
	CardType    string     `db:"card_type"    gorm:"column:card_type;not null"`
	TokenDigest string     `db:"token_digest" gorm:"column:token_digest;not null;uniqueIndex"`
	Status      string     `db:"status"       gorm:"column:status;not null;index"`
	ExpiresAt   time.Time  `db:"expires_at"   gorm:"column:expires_at;not null;index"`
	ConsumedAt  *time.Time `db:"consumed_at"  gorm:"column:consumed_at"`
	CreatedAt   time.Time  `db:"created_at"   gorm:"column:created_at;not null"`
}

func (QrTokenEntity) TableName() string {
	return "qr_tokens"
}

func toQrTokenEntity(m *model.QrToken) *QrTokenEntity {
	if m == nil {
		return nil
	}
	return &QrTokenEntity{
		ID:          m.ID,
		CardID:      m.CardID,
		CardType:    string(m.CardType),
		TokenDigest: m.Digest,
		Status:      string(m.Status),
		ExpiresAt:   m.ExpiresAt,
		ConsumedAt:  m.ConsumedAt,
		CreatedAt:   m.CreatedAt,
	}
}

func toQrTokenModel(e *QrTokenEntity) *model.QrToken {
	if e == nil {
		return nil
	}
	return &model.QrToken{
		ID:         e.ID,
		CardID:     e.CardID,
		CardType:   model.CardType(e.CardType),
		Digest:     e.TokenDigest,
		Status:     model.QrStatus(e.Status),
		ExpiresAt:  e.ExpiresAt,
		ConsumedAt: e.ConsumedAt,
		CreatedAt:  e.CreatedAt,
	}
}

func toQrTokenModels(entities []*QrTokenEntity) []*model.QrToken {
	models := make([]*model.QrToken, len(entities))
	for i, e := range entities {
		models[i] = toQrTokenModel(e)
	}
	return models
}
