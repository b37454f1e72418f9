package services

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/card-ledger/internal/events"
	"github.com/nimasrn/card-ledger/internal/idempotency"
	"github.com/nimasrn/card-ledger/internal/model"
	"github.com/nimasrn/card-ledger/internal/repository"
	"github.com/nimasrn/card-ledger/pkg/logger"
	"github.com/nimasrn/card-ledger/pkg/prom"
	"github.com/nimasrn/card-ledger/pkg/retrier"
	"github.com/shopspring/decimal"
)

type TransactionDeps struct {
	DB       Transactor
	Cards    CardRepository
	Txs      TransactionRepository
	Bindings CardBindingRepository
	Qr       *QrService
	Discount *DiscountService
	Gate     Gate
	Guard    *idempotency.Guard
	Events   *events.Publisher
	Policy   retrier.Policy
}

type TransactionService struct {
	db       Transactor
	cards    CardRepository
	txs      TransactionRepository
	bindings CardBindingRepository
	qr       *QrService
	discount *DiscountService
	gate     Gate
	guard    *idempotency.Guard
	events   *events.Publisher
	policy   retrier.Policy
	now      Clock
}

func NewTransactionService(d TransactionDeps) *TransactionService {
	return &TransactionService{
		db:       d.DB,
		cards:    d.Cards,
		txs:      d.Txs,
		bindings: d.Bindings,
		qr:       d.Qr,
		discount: d.Discount,
		gate:     d.Gate,
		guard:    d.Guard,
		events:   d.Events,
		policy:   d.Policy,
		now:      systemClock,
	}
}

func (s *TransactionService) WithClock(now Clock) *TransactionService {
	s.now = now
	return s
}

// Charge debits the card behind a QR token on behalf of a merchant.
//
// The token is consumed in the same database transaction as the debit. Once
// consumed it stays burnt: any business failure after that point commits the
// consumption, together with a failed payment when the card is known, and
// leaves the balance untouched. Only version conflicts roll back, and a
// charge that runs out of retries burns the token on its own.
func (s *TransactionService) Charge(ctx context.Context, caller model.Caller, req model.ChargeRequest) (*model.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	merchant, err := s.gate.ResolveMerchant(ctx, caller, req.MerchantCode)
	if err != nil {
		return nil, err
	}
	hash := idempotency.Fingerprint("charge", merchant.Code, req.QrPlain, req.RawAmount.StringFixed(2))

	out, err := s.run(ctx, "charge", model.TxTypePayment, req.IdempotencyKey, hash, func(ctx context.Context) (*model.Transaction, error) {
		var (
			out     *model.Transaction
			failure error
		)
		err := s.db.WithinTransaction(ctx, func(ctx context.Context) error {
			token, err := s.qr.ValidateAndConsume(ctx, req.QrPlain)
			if err != nil {
				return err
			}
			card, err := s.cards.GetCardForUpdate(ctx, token.CardID)
			if err != nil {
				if burnsToken(err) {
					failure = err
					return nil
				}
				return err
			}

			now := s.now()
			txn := &model.Transaction{
				TxNo:           newTxNo(now),
				CardID:         card.ID,
				CardType:       card.Type,
				TxType:         model.TxTypePayment,
				Status:         model.TxStatusProcessing,
				RawAmount:      req.RawAmount,
				Discount:       noDiscount,
				FinalAmount:    req.RawAmount,
				MerchantID:     &merchant.ID,
				IdempotencyKey: keyPtr(req.IdempotencyKey),
				RequestHash:    hash,
				Reason:         req.Reason,
				Tag:            req.Tag,
				CreatedAt:      now,
				UpdatedAt:      now,
			}

			out, err = s.debitCard(ctx, card, txn)
			if err != nil && burnsToken(err) {
				failure = err
				out, err = s.recordFailure(ctx, txn, failure)
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		return out, failure
	})
	if errors.Is(err, retrier.ErrExhausted) {
		s.burnToken(ctx, req.QrPlain)
	}
	return out, err
}

// debitCard settles a charge against a locked card. Every check runs before
// the balance moves, so an error leaves nothing to undo but txn itself.
func (s *TransactionService) debitCard(ctx context.Context, card *model.Card, txn *model.Transaction) (*model.Transaction, error) {
	if !card.IsActive() {
		return nil, model.Errorf(model.KindCardNotActive, "card is %s", card.Status)
	}

	rate, err := s.discount.ComputeDiscount(ctx, card)
	if err != nil {
		return nil, err
	}
	txn.Discount = rate
	txn.FinalAmount = FinalAmount(txn.RawAmount, rate)

	var points *pointsChange
	if card.IsPersonal() {
		txn.PointsEarned = txn.FinalAmount.IntPart()
		if points, err = s.planPoints(ctx, card, txn.PointsEarned); err != nil {
			return nil, err
		}
	}

	if _, err := s.cards.ApplyBalanceDelta(ctx, card.ID, txn.FinalAmount.Neg(), card.Version); err != nil {
		return nil, err
	}
	if points != nil {
		if _, err := s.cards.SetPoints(ctx, card.ID, points.total, points.level); err != nil {
			return nil, err
		}
	}
	return s.complete(ctx, txn)
}

// burnsToken reports whether a failure after consumption keeps the token
// consumed. Version conflicts are retried from scratch and infrastructure
// errors cannot commit anything.
func burnsToken(err error) bool {
	return model.IsExpected(err) && model.KindOf(err) != model.KindConflict
}

// burnToken consumes the token in its own transaction after a charge gave
// up on a busy card.
func (s *TransactionService) burnToken(ctx context.Context, plain string) {
	err := s.db.WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := s.qr.ValidateAndConsume(ctx, plain)
		return err
	})
	if err != nil && !model.IsExpected(err) {
		logger.Ctx(ctx).Warn("failed to burn qr token after conflicts", "error", err)
	}
}

// DiscountPreview quotes a charge without consuming the token.
func (s *TransactionService) DiscountPreview(ctx context.Context, caller model.Caller, merchantCode, qrPlain string, raw decimal.Decimal) (*model.DiscountQuote, error) {
	req := model.ChargeRequest{MerchantCode: merchantCode, QrPlain: qrPlain, RawAmount: raw}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.gate.ResolveMerchant(ctx, caller, req.MerchantCode); err != nil {
		return nil, err
	}
	token, err := s.qr.Inspect(ctx, req.QrPlain)
	if err != nil {
		return nil, err
	}
	card, err := s.cards.GetCard(ctx, token.CardID)
	if err != nil {
		return nil, err
	}
	if !card.IsActive() {
		return nil, model.Errorf(model.KindCardNotActive, "card is %s", card.Status)
	}
	rate, err := s.discount.ComputeDiscount(ctx, card)
	if err != nil {
		return nil, err
	}
	final := FinalAmount(req.RawAmount, rate)
	return &model.DiscountQuote{
		CardID:      card.ID,
		CardType:    card.Type,
		RawAmount:   req.RawAmount,
		Discount:    rate,
		FinalAmount: final,
		Sufficient:  !card.Balance.LessThan(final),
	}, nil
}

// RechargePersonal tops up a personal card owned by the caller.
func (s *TransactionService) RechargePersonal(ctx context.Context, caller model.Caller, req model.RechargeRequest) (*model.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	card, err := s.cards.GetCard(ctx, req.CardID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeCardOwner(ctx, caller, card); err != nil {
		return nil, err
	}
	return s.recharge(ctx, "recharge_personal", card, req)
}

// RechargeEnterpriseAdmin tops up an enterprise card the caller administers.
func (s *TransactionService) RechargeEnterpriseAdmin(ctx context.Context, caller model.Caller, req model.RechargeRequest) (*model.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	card, err := s.cards.GetCard(ctx, req.CardID)
	if err != nil {
		return nil, err
	}
	if !card.IsEnterprise() {
		return nil, repository.ErrCardNotFound
	}
	if _, err := s.gate.AuthorizeEnterpriseAdmin(ctx, caller, card); err != nil {
		return nil, err
	}
	return s.recharge(ctx, "recharge_enterprise", card, req)
}

func (s *TransactionService) recharge(ctx context.Context, op string, card *model.Card, req model.RechargeRequest) (*model.Transaction, error) {
	hash := idempotency.Fingerprint(op, card.CardNo, req.Amount.StringFixed(2), req.PaymentMethod)

	return s.run(ctx, op, model.TxTypeRecharge, req.IdempotencyKey, hash, func(ctx context.Context) (*model.Transaction, error) {
		var out *model.Transaction
		err := s.db.WithinTransaction(ctx, func(ctx context.Context) error {
			locked, err := s.cards.GetCardForUpdate(ctx, card.ID)
			if err != nil {
				return err
			}
			if !locked.IsActive() {
				return model.Errorf(model.KindCardNotActive, "card is %s", locked.Status)
			}
			if _, err := s.cards.ApplyBalanceDelta(ctx, locked.ID, req.Amount, locked.Version); err != nil {
				return err
			}
			now := s.now()
			out, err = s.complete(ctx, &model.Transaction{
				TxNo:           newTxNo(now),
				CardID:         locked.ID,
				CardType:       locked.Type,
				TxType:         model.TxTypeRecharge,
				Status:         model.TxStatusProcessing,
				RawAmount:      req.Amount,
				Discount:       noDiscount,
				FinalAmount:    req.Amount,
				IdempotencyKey: keyPtr(req.IdempotencyKey),
				RequestHash:    hash,
				PaymentMethod:  req.PaymentMethod,
				Reason:         req.Reason,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}

// Refund credits part or all of a completed payment back to its card. The
// original flips to refunded once nothing refundable remains.
func (s *TransactionService) Refund(ctx context.Context, caller model.Caller, req model.RefundRequest) (*model.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	merchant, err := s.gate.ResolveMerchant(ctx, caller, req.MerchantCode)
	if err != nil {
		return nil, err
	}
	hash := idempotency.Fingerprint("refund", merchant.Code, req.OriginalTxNo, req.RefundAmount.StringFixed(2))

	return s.run(ctx, "refund", model.TxTypeRefund, req.IdempotencyKey, hash, func(ctx context.Context) (*model.Transaction, error) {
		var out *model.Transaction
		err := s.db.WithinTransaction(ctx, func(ctx context.Context) error {
			original, err := s.txs.GetByTxNo(ctx, req.OriginalTxNo)
			if err != nil {
				return err
			}
			if original.MerchantID == nil || *original.MerchantID != merchant.ID {
				return repository.ErrTransactionNotFound
			}
			card, err := s.cards.GetCardForUpdate(ctx, original.CardID)
			if err != nil {
				return err
			}
			// re-read under the card lock so concurrent refunds see each other
			original, err = s.txs.GetByTxNo(ctx, req.OriginalTxNo)
			if err != nil {
				return err
			}
			if original.TxType != model.TxTypePayment || original.Status != model.TxStatusCompleted {
				return model.Errorf(model.KindOnlyCompletedPaymentRefundable, "transaction %s is a %s %s", original.TxNo, original.Status, original.TxType)
			}

			refunded, err := s.txs.SumCompletedRefunds(ctx, original.ID)
			if err != nil {
				return err
			}
			remaining := original.FinalAmount.Sub(refunded)
			if req.RefundAmount.GreaterThan(remaining) {
				return model.Errorf(model.KindRefundExceedsRemaining, "refund %s exceeds remaining %s", req.RefundAmount.StringFixed(2), remaining.StringFixed(2))
			}

			if _, err := s.cards.ApplyBalanceDelta(ctx, card.ID, req.RefundAmount, card.Version); err != nil {
				return err
			}
			now := s.now()
			out, err = s.complete(ctx, &model.Transaction{
				TxNo:           newTxNo(now),
				CardID:         card.ID,
				CardType:       card.Type,
				TxType:         model.TxTypeRefund,
				Status:         model.TxStatusProcessing,
				RawAmount:      req.RefundAmount,
				Discount:       noDiscount,
				FinalAmount:    req.RefundAmount,
				MerchantID:     &merchant.ID,
				OriginalTxID:   &original.ID,
				IdempotencyKey: keyPtr(req.IdempotencyKey),
				RequestHash:    hash,
				Reason:         req.Reason,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
			if err != nil {
				return err
			}

			if remaining.Sub(req.RefundAmount).IsZero() {
				return s.txs.Transition(ctx, original.ID, model.TxStatusCompleted, model.TxStatusRefunded, "")
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}

// ListTransactions pages through the transactions of every card the caller
// owns or is bound to.
func (s *TransactionService) ListTransactions(ctx context.Context, caller model.Caller, req model.ListTransactionsRequest) (*model.TransactionPage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	member, err := s.gate.MemberOf(ctx, caller)
	if err != nil {
		return nil, err
	}
	ids, err := heldCardIDs(ctx, s.cards, s.bindings, member.ID)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, model.TransactionFilter{
		CardIDs: ids,
		From:    req.From,
		To:      req.To,
		Limit:   req.Limit,
		Offset:  req.Offset,
	})
}

func (s *TransactionService) ListMerchantTransactions(ctx context.Context, caller model.Caller, merchantCode string, req model.ListTransactionsRequest) (*model.TransactionPage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	merchant, err := s.gate.ResolveMerchant(ctx, caller, merchantCode)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, model.TransactionFilter{
		MerchantID: &merchant.ID,
		From:       req.From,
		To:         req.To,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
}

func (s *TransactionService) list(ctx context.Context, f model.TransactionFilter) (*model.TransactionPage, error) {
	items, total, err := s.txs.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return &model.TransactionPage{Items: items, TotalCount: total}, nil
}

// GetTransaction returns one transaction to a holder of its card or a user
// of its merchant. Anyone else sees NotFound.
func (s *TransactionService) GetTransaction(ctx context.Context, caller model.Caller, txNo string) (*model.Transaction, error) {
	txn, err := s.txs.GetByTxNo(ctx, txNo)
	if err != nil {
		return nil, err
	}
	if txn.MerchantID != nil {
		ok, err := s.gate.CanViewMerchant(ctx, caller, *txn.MerchantID)
		if err != nil {
			return nil, err
		}
		if ok {
			return txn, nil
		}
	}
	card, err := s.cards.GetCard(ctx, txn.CardID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeCardHolder(ctx, caller, card); err != nil {
		if model.IsExpected(err) {
			return nil, repository.ErrTransactionNotFound
		}
		return nil, err
	}
	return txn, nil
}

// run wraps one money operation with the idempotency lease, replay
// detection and the bounded retry on version conflicts. Every retry starts
// over from the replay check.
func (s *TransactionService) run(ctx context.Context, op string, txType model.TxType, key, hash string, fn func(ctx context.Context) (*model.Transaction, error)) (*model.Transaction, error) {
	start := time.Now()

	if key != "" {
		lease, err := s.guard.Acquire(ctx, string(txType), key)
		if err != nil {
			return nil, err
		}
		defer lease.Release(ctx)
	}

	var (
		result   *model.Transaction
		replayed bool
		attempts int
	)
	err := retrier.Do(ctx, s.policy, func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			prom.IncBalanceRetry()
		}
		if key != "" {
			prior, err := s.replay(ctx, txType, key, hash)
			if err != nil {
				return err
			}
			if prior != nil {
				result, replayed = prior, true
				return prior.FailureError()
			}
		}
		var err error
		result, err = fn(ctx)
		if model.KindOf(err) == model.KindConflict {
			return retrier.Retryable(err)
		}
		return err
	})

	if errors.Is(err, retrier.ErrExhausted) {
		logger.Ctx(ctx).Warn("balance update kept conflicting", "operation", op, "attempts", attempts, "error", err)
		err = model.WrapError(model.KindConflict, "card is busy, retry the request", err)
	}
	prom.ObserveOperation(op, outcome(err), time.Since(start).Seconds())

	if result == nil {
		return nil, err
	}
	if !replayed {
		prom.AddTransaction(string(result.TxType), string(result.Status))
		if key != "" {
			s.guard.Remember(ctx, string(txType), key, idempotency.Marker{TxNo: result.TxNo, RequestHash: hash})
		}
		s.events.Notify(ctx, result)
	}
	return result, err
}

// replay returns the stored result of an earlier request with the same key,
// or nil when there is none.
func (s *TransactionService) replay(ctx context.Context, txType model.TxType, key, hash string) (*model.Transaction, error) {
	if m, ok := s.guard.Recall(ctx, string(txType), key); ok {
		if m.RequestHash != hash {
			return nil, idempotencyConflict(key)
		}
		if txn, err := s.txs.GetByTxNo(ctx, m.TxNo); err == nil {
			return txn, nil
		}
	}
	txn, err := s.txs.GetByIdempotencyKey(ctx, txType, key)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if txn.RequestHash != hash {
		return nil, idempotencyConflict(key)
	}
	return txn, nil
}

func (s *TransactionService) complete(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	created, err := s.txs.Append(ctx, txn)
	if err != nil {
		return nil, err
	}
	if err := s.txs.Transition(ctx, created.ID, model.TxStatusProcessing, model.TxStatusCompleted, ""); err != nil {
		return nil, err
	}
	created.Status = model.TxStatusCompleted
	return created, nil
}

func (s *TransactionService) recordFailure(ctx context.Context, txn *model.Transaction, cause error) (*model.Transaction, error) {
	kind := model.KindOf(cause)
	txn.PointsEarned = 0
	created, err := s.txs.Append(ctx, txn)
	if err != nil {
		return nil, err
	}
	if err := s.txs.Transition(ctx, created.ID, model.TxStatusProcessing, model.TxStatusFailed, kind); err != nil {
		return nil, err
	}
	created.Status = model.TxStatusFailed
	created.FailureKind = kind
	return created, nil
}

type pointsChange struct {
	total int64
	level int
}

// planPoints works out the card's point total and level after earning
// points, or nil when nothing changes.
func (s *TransactionService) planPoints(ctx context.Context, card *model.Card, earned int64) (*pointsChange, error) {
	if earned <= 0 {
		return nil, nil
	}
	total := card.Personal.Points + earned
	level, err := s.discount.LevelFor(ctx, total)
	if err != nil {
		return nil, err
	}
	lvl := card.Personal.Level
	if level != nil {
		lvl = level.Level
	}
	return &pointsChange{total: total, level: lvl}, nil
}

func idempotencyConflict(key string) error {
	return model.Errorf(model.KindIdempotencyConflict, "idempotency key %q was used with different arguments", key)
}

func keyPtr(key string) *string {
	if key == "" {
		return nil
	}
	return &key
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(model.KindOf(err))
}
