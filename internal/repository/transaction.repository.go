package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/nimasrn/card-ledger/pkg/pg"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrTransactionNotFound = model.NewError(model.KindNotFound, "transaction not found")
	ErrDuplicateIdempotent = model.NewError(model.KindConflict, "idempotency key already recorded")
	ErrIllegalTransition   = model.NewError(model.KindConflict, "illegal transaction status transition")
)

const (
	defaultPageSize = 50
	maxPageSize     = 1000
)

type TransactionRepository struct {
	*pg.DB
}

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

// Append inserts a new ledger entry. A second entry with the same
// (tx_type, idempotency_key) is rejected with ErrDuplicateIdempotent.
func (r *TransactionRepository) Append(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	entity := toTransactionEntity(txn)

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateIdempotent
		}
		return nil, err
	}

	return toTransactionModel(entity), nil
}

// Transition moves a transaction from one status to another with a
// conditional update, so two writers can never both win.
func (r *TransactionRepository) Transition(ctx context.Context, id int64, from, to model.TxStatus, failure model.ErrorKind) error {
	if !from.CanTransitionTo(to) {
		return ErrIllegalTransition
	}
	result := r.Write(ctx).
		Model(&TransactionEntity{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{
			"status":       string(to),
			"failure_kind": string(failure),
			"updated_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrIllegalTransition
	}
	return nil
}

func (r *TransactionRepository) GetByTxNo(ctx context.Context, txNo string) (*model.Transaction, error) {
	return r.first(r.Read(ctx).Where("tx_no = ?", txNo))
}

func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*model.Transaction, error) {
	return r.first(r.Read(ctx).Where("id = ?", id))
}

func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, txType model.TxType, key string) (*model.Transaction, error) {
	return r.first(r.Write(ctx).Where("tx_type = ? AND idempotency_key = ?", string(txType), key))
}

func (r *TransactionRepository) first(q *gorm.DB) (*model.Transaction, error) {
	var entity TransactionEntity
	if err := q.First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return toTransactionModel(&entity), nil
}

// SumCompletedRefunds totals completed refunds against originalID. The
// amounts are summed as decimals rather than in SQL to avoid float drift on
// drivers without a native numeric type.
func (r *TransactionRepository) SumCompletedRefunds(ctx context.Context, originalID int64) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := r.Write(ctx).
		Model(&TransactionEntity{}).
		Where("original_tx_id = ? AND tx_type = ? AND status = ?", originalID, string(model.TxTypeRefund), string(model.TxStatusCompleted)).
		Pluck("final_amount", &amounts).
		Error
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total, nil
}

func (r *TransactionRepository) List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error) {
	q := r.Read(ctx).Model(&TransactionEntity{})

	if f.CardIDs != nil {
		if len(f.CardIDs) == 0 {
			return []*model.Transaction{}, 0, nil
		}
		q = q.Where("card_id IN ?", f.CardIDs)
	}
	if f.MerchantID != nil {
		q = q.Where("merchant_id = ?", *f.MerchantID)
	}
	if f.TxType != nil {
		q = q.Where("tx_type = ?", string(*f.TxType))
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("created_at < ?", f.To.UTC())
	}

	// Count before pagination
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*TransactionEntity
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toTransactionModels(entities), total, nil
}
