package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TxType string

const (
	TxTypePayment  TxType = "payment"
	TxTypeRefund   TxType = "refund"
	TxTypeRecharge TxType = "recharge"
)

type TxStatus string

const (
	TxStatusProcessing TxStatus = "processing"
	TxStatusCompleted  TxStatus = "completed"
	TxStatusFailed     TxStatus = "failed"
	TxStatusCancelled  TxStatus = "cancelled"
	TxStatusRefunded   TxStatus = "refunded"
)

// CanTransitionTo enforces processing -> {completed, failed} and
// completed -> refunded. Everything else is terminal.
func (s TxStatus) CanTransitionTo(next TxStatus) bool {
	switch s {
	case TxStatusProcessing:
		return next == TxStatusCompleted || next == TxStatusFailed
	case TxStatusCompleted:
		return next == TxStatusRefunded
	}
	return false
}

// Transaction is an immutable ledger entry. Only Status (and FailureKind on
// failure) ever changes after insert.
type Transaction struct {
	ID             int64           `json:"tx_id"`
	TxNo           string          `json:"tx_no"`
	CardID         int64           `json:"card_id"`
	CardType       CardType        `json:"card_type"`
	TxType         TxType          `json:"tx_type"`
	Status         TxStatus        `json:"status"`
	RawAmount      decimal.Decimal `json:"raw_amount"`
	Discount       decimal.Decimal `json:"discount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	MerchantID     *int64          `json:"merchant_id,omitempty"`
	OriginalTxID   *int64          `json:"original_tx_id,omitempty"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
	RequestHash    string          `json:"-"`
	PaymentMethod  string          `json:"payment_method,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	FailureKind    ErrorKind       `json:"failure_kind,omitempty"`
	PointsEarned   int64           `json:"points_earned,omitempty"`
	Tag            map[string]any  `json:"tag,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// FailureError rebuilds the error a failed transaction was recorded with.
func (t *Transaction) FailureError() error {
	if t.Status != TxStatusFailed || t.FailureKind == "" {
		return nil
	}
	return &Error{Kind: t.FailureKind, Msg: "transaction " + t.TxNo + " failed"}
}

// TransactionFilter controls List queries. Results are always newest first.
type TransactionFilter struct {
	CardIDs    []int64
	MerchantID *int64
	TxType     *TxType
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

type TransactionPage struct {
	Items      []*Transaction `json:"items"`
	TotalCount int64          `json:"total_count"`
}

// DiscountQuote is what a charge would cost right now, without moving money.
type DiscountQuote struct {
	CardID      int64           `json:"card_id"`
	CardType    CardType        `json:"card_type"`
	RawAmount   decimal.Decimal `json:"raw_amount"`
	Discount    decimal.Decimal `json:"discount"`
	FinalAmount decimal.Decimal `json:"final_amount"`
	Sufficient  bool            `json:"sufficient_balance"`
}
