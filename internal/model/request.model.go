package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const currencyPlaces = 2

func validAmount(field string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return Errorf(KindInvalidInput, "%s must be positive", field)
	}
	if !v.Equal(v.Round(currencyPlaces)) {
		return Errorf(KindInvalidInput, "%s has more than %d decimal places", field, currencyPlaces)
	}
	return nil
}

func validKey(key string) error {
	if len(key) > 128 {
		return NewError(KindInvalidInput, "idempotency_key longer than 128 characters")
	}
	return nil
}

type ChargeRequest struct {
	MerchantCode   string
	QrPlain        string
	RawAmount      decimal.Decimal
	Reason         string
	Tag            map[string]any
	IdempotencyKey string
}

func (r *ChargeRequest) Validate() error {
	r.MerchantCode = strings.TrimSpace(r.MerchantCode)
	r.QrPlain = strings.TrimSpace(r.QrPlain)
	if r.MerchantCode == "" {
		return NewError(KindInvalidInput, "merchant_code is required")
	}
	if r.QrPlain == "" {
		return NewError(KindInvalidInput, "qr_plain is required")
	}
	if err := validAmount("raw_price", r.RawAmount); err != nil {
		return err
	}
	return validKey(r.IdempotencyKey)
}

type RechargeRequest struct {
	CardID         int64
	Amount         decimal.Decimal
	PaymentMethod  string
	Reason         string
	IdempotencyKey string
}

func (r *RechargeRequest) Validate() error {
	if r.CardID <= 0 {
		return NewError(KindInvalidInput, "card_id is required")
	}
	if err := validAmount("amount", r.Amount); err != nil {
		return err
	}
	if r.PaymentMethod == "" {
		r.PaymentMethod = "balance"
	}
	return validKey(r.IdempotencyKey)
}

type RefundRequest struct {
	MerchantCode   string
	OriginalTxNo   string
	RefundAmount   decimal.Decimal
	Reason         string
	IdempotencyKey string
}

func (r *RefundRequest) Validate() error {
	r.MerchantCode = strings.TrimSpace(r.MerchantCode)
	r.OriginalTxNo = strings.TrimSpace(r.OriginalTxNo)
	if r.MerchantCode == "" {
		return NewError(KindInvalidInput, "merchant_code is required")
	}
	if r.OriginalTxNo == "" {
		return NewError(KindInvalidInput, "original_tx_no is required")
	}
	if err := validAmount("refund_amount", r.RefundAmount); err != nil {
		return err
	}
	return validKey(r.IdempotencyKey)
}

type ListTransactionsRequest struct {
	Limit  int
	Offset int
	From   *time.Time
	To     *time.Time
}

func (r *ListTransactionsRequest) Validate() error {
	if r.Limit < 0 || r.Offset < 0 {
		return NewError(KindInvalidInput, "limit and offset must not be negative")
	}
	if r.From != nil && r.To != nil && r.To.Before(*r.From) {
		return NewError(KindInvalidInput, "date range end before start")
	}
	return nil
}

type MembershipRequest struct {
	CardNo       string
	MemberNo     string
	CardPassword string
}

func (r *MembershipRequest) Validate() error {
	r.CardNo = strings.TrimSpace(r.CardNo)
	r.MemberNo = strings.TrimSpace(r.MemberNo)
	if r.CardNo == "" || r.MemberNo == "" {
		return NewError(KindInvalidInput, "card_no and member_no are required")
	}
	if r.CardPassword == "" {
		return NewError(KindInvalidInput, "card_password is required")
	}
	return nil
}

type CreateEnterpriseCardRequest struct {
	Name          string
	Password      string
	FixedDiscount *decimal.Decimal
}

func (r *CreateEnterpriseCardRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return NewError(KindInvalidInput, "name is required")
	}
	if len(r.Password) < 6 || len(r.Password) > 72 {
		return NewError(KindInvalidInput, "password must be 6 to 72 characters")
	}
	if r.FixedDiscount != nil {
		return ValidRate(*r.FixedDiscount)
	}
	return nil
}

// ValidRate accepts discount rates in (0, 1].
func ValidRate(rate decimal.Decimal) error {
	if !rate.IsPositive() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return Errorf(KindInvalidInput, "discount rate %s outside (0, 1]", rate.String())
	}
	return nil
}
