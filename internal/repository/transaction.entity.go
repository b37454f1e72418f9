package repository

import (
	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/nimasrn/card-ledger/pkg/pg"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type TransactionEntity struct {
	pg.Model
	TxNo           string            `db:"tx_no"           gorm:"column:tx_no;not null;uniqueIndex"`
	CardID         int64             `db:"card_id"         gorm:"column:card_id;not null;index"`
	CardType       string            `db:"card_type"       gorm:"column:card_type;not null"`
	TxType         string            `db:"tx_type"         gorm:"column:tx_type;not null;uniqueIndex:idx_transactions_idempotency,priority:1"`
	Status         string            `db:"status"          gorm:"column:status;not null;index"`
	RawAmount      decimal.Decimal   `db:"raw_amount"      gorm:"column:raw_amount;type:numeric(18,2);not null"`
	Discount       decimal.Decimal   `db:"discount"        gorm:"column:discount;type:numeric(5,4);not null"`
	FinalAmount    decimal.Decimal   `db:"final_amount"    gorm:"column:final_amount;type:numeric(18,2);not null"`
	MerchantID     *int64            `db:"merchant_id"     gorm:"column:merchant_id;index"`
	OriginalTxID   *int64            `db:"original_tx_id"  gorm:"column:original_tx_id;index"`
	IdempotencyKey *string           `db:"idempotency_key" gorm:"column:idempotency_key;uniqueIndex:idx_transactions_idempotency,priority:2"`
	RequestHash    string            `db:"request_hash"    gorm:"column:request_hash"`
	PaymentMethod  string            `db:"payment_method"  gorm:"column:payment_method"`
	Reason         string            `db:"reason"          gorm:"column:reason"`
	FailureKind    string            `db:"failure_kind"    gorm:"column:failure_kind"`
	PointsEarned   int64             `db:"points_earned"   gorm:"column:points_earned;not null"`
	Tag            datatypes.JSONMap `db:"tag"             gorm:"column:tag"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	var tag datatypes.JSONMap
	if len(m.Tag) > 0 {
		tag = datatypes.JSONMap(m.Tag)
	}
	return &TransactionEntity{
		Model: pg.Model{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		TxNo:           m.TxNo,
		CardID:         m.CardID,
		CardType:       string(m.CardType),
		TxType:         string(m.TxType),
		Status:         string(m.Status),
		RawAmount:      m.RawAmount,
		Discount:       m.Discount,
		FinalAmount:    m.FinalAmount,
		MerchantID:     m.MerchantID,
		OriginalTxID:   m.OriginalTxID,
		IdempotencyKey: m.IdempotencyKey,
		RequestHash:    m.RequestHash,
		PaymentMethod:  m.PaymentMethod,
		Reason:         m.Reason,
		FailureKind:    string(m.FailureKind),
		PointsEarned:   m.PointsEarned,
		Tag:            tag,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	return &model.Transaction{
		ID:             e.ID,
		TxNo:           e.TxNo,
		CardID:         e.CardID,
		CardType:       model.CardType(e.CardType),
		TxType:         model.TxType(e.TxType),
		Status:         model.TxStatus(e.Status),
		RawAmount:      e.RawAmount,
		Discount:       e.Discount,
		FinalAmount:    e.FinalAmount,
		MerchantID:     e.MerchantID,
		OriginalTxID:   e.OriginalTxID,
		IdempotencyKey: e.IdempotencyKey,
		RequestHash:    e.RequestHash,
		PaymentMethod:  e.PaymentMethod,
		Reason:         e.Reason,
		FailureKind:    model.ErrorKind(e.FailureKind),
		PointsEarned:   e.PointsEarned,
		Tag:            map[string]any(e.Tag),
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	if entities == nil {
		return []*model.Transaction{}
	}
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}
