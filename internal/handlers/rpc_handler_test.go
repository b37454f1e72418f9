package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nimasrn/card-ledger/internal/model"
	xhttp "github.com/nimasrn/card-ledger/pkg/http"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type MockQrService struct {
	mock.Mock
}

func (m *MockQrService) Rotate(ctx context.Context, caller model.Caller, cardID int64, cardType model.CardType) (*model.QrIssue, error) {
	args := m.Called(ctx, caller, cardID, cardType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QrIssue), args.Error(1)
}

func (m *MockQrService) Revoke(ctx context.Context, caller model.Caller, cardID int64) (int64, error) {
	args := m.Called(ctx, caller, cardID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockQrService) History(ctx context.Context, caller model.Caller, cardID int64, limit int) ([]*model.QrToken, error) {
	args := m.Called(ctx, caller, cardID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.QrToken), args.Error(1)
}

type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) tx(args mock.Arguments) (*model.Transaction, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockLedgerService) Charge(ctx context.Context, caller model.Caller, req model.ChargeRequest) (*model.Transaction, error) {
	return m.tx(m.Called(ctx, caller, req))
}

func (m *MockLedgerService) DiscountPreview(ctx context.Context, caller model.Caller, merchantCode, qrPlain string, raw decimal.Decimal) (*model.DiscountQuote, error) {
	args := m.Called(ctx, caller, merchantCode, qrPlain, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DiscountQuote), args.Error(1)
}

func (m *MockLedgerService) RechargePersonal(ctx context.Context, caller model.Caller, req model.RechargeRequest) (*model.Transaction, error) {
	return m.tx(m.Called(ctx, caller, req))
}

func (m *MockLedgerService) RechargeEnterpriseAdmin(ctx context.Context, caller model.Caller, req model.RechargeRequest) (*model.Transaction, error) {
	return m.tx(m.Called(ctx, caller, req))
}

func (m *MockLedgerService) Refund(ctx context.Context, caller model.Caller, req model.RefundRequest) (*model.Transaction, error) {
	return m.tx(m.Called(ctx, caller, req))
}

func (m *MockLedgerService) ListTransactions(ctx context.Context, caller model.Caller, req model.ListTransactionsRequest) (*model.TransactionPage, error) {
	args := m.Called(ctx, caller, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TransactionPage), args.Error(1)
}

func (m *MockLedgerService) ListMerchantTransactions(ctx context.Context, caller model.Caller, merchantCode string, req model.ListTransactionsRequest) (*model.TransactionPage, error) {
	args := m.Called(ctx, caller, merchantCode, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TransactionPage), args.Error(1)
}

func (m *MockLedgerService) GetTransaction(ctx context.Context, caller model.Caller, txNo string) (*model.Transaction, error) {
	return m.tx(m.Called(ctx, caller, txNo))
}

type MockCardService struct {
	mock.Mock
}

func (m *MockCardService) GetUserCards(ctx context.Context, caller model.Caller) ([]*model.CardView, error) {
	args := m.Called(ctx, caller)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.CardView), args.Error(1)
}

func (m *MockCardService) UpdateStatus(ctx context.Context, caller model.Caller, cardID int64, status model.CardStatus) (*model.Card, error) {
	args := m.Called(ctx, caller, cardID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Card), args.Error(1)
}

func (m *MockCardService) AdjustPoints(ctx context.Context, caller model.Caller, cardID int64, delta int64) (*model.Card, error) {
	args := m.Called(ctx, caller, cardID, delta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Card), args.Error(1)
}

type MockEnterpriseService struct {
	mock.Mock
}

func (m *MockEnterpriseService) CreateEnterpriseCard(ctx context.Context, caller model.Caller, req model.CreateEnterpriseCardRequest) (*model.Card, error) {
	args := m.Called(ctx, caller, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Card), args.Error(1)
}

func (m *MockEnterpriseService) AddMember(ctx context.Context, caller model.Caller, req model.MembershipRequest) (bool, error) {
	args := m.Called(ctx, caller, req)
	return args.Bool(0), args.Error(1)
}

func (m *MockEnterpriseService) RemoveMember(ctx context.Context, caller model.Caller, req model.MembershipRequest) (bool, error) {
	args := m.Called(ctx, caller, req)
	return args.Bool(0), args.Error(1)
}

func (m *MockEnterpriseService) SetMemberRole(ctx context.Context, caller model.Caller, req model.MembershipRequest, role model.BindingRole) (bool, error) {
	args := m.Called(ctx, caller, req, role)
	return args.Bool(0), args.Error(1)
}

func (m *MockEnterpriseService) ListMembers(ctx context.Context, caller model.Caller, cardNo string) ([]*model.CardBinding, error) {
	args := m.Called(ctx, caller, cardNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.CardBinding), args.Error(1)
}

type mocks struct {
	qr         *MockQrService
	ledger     *MockLedgerService
	cards      *MockCardService
	enterprise *MockEnterpriseService
}

func newRpcHandler() (*RpcHandler, *mocks) {
	m := &mocks{
		qr:         new(MockQrService),
		ledger:     new(MockLedgerService),
		cards:      new(MockCardService),
		enterprise: new(MockEnterpriseService),
	}
	return NewRpcHandler(m.qr, m.ledger, m.cards, m.enterprise), m
}

func setupTestContext(path, user string, body []byte) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod("POST")
	ctx.Request.SetRequestURI(path)
	if user != "" {
		ctx.Request.Header.Set(HeaderAuthUserID, user)
	}
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

func decodeError(t *testing.T, ctx *xhttp.RequestCtx) errorBody {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	return resp.Error
}

var cashier = model.Caller{AuthUserID: "cashier"}

func TestRpcHandler_MerchantChargeByQr(t *testing.T) {
	t.Run("successful charge", func(t *testing.T) {
		h, m := newRpcHandler()

		m.ledger.On("Charge", mock.Anything, cashier, mock.MatchedBy(func(req model.ChargeRequest) bool {
			return req.MerchantCode == "M001" &&
				req.QrPlain == "plain" &&
				req.RawAmount.Equal(decimal.RequireFromString("50")) &&
				req.IdempotencyKey == "order-1"
		})).Return(&model.Transaction{
			ID:          7,
			TxNo:        "TX20261018120000ABCDEF0123",
			CardID:      3,
			CardType:    model.CardTypePersonal,
			Status:      model.TxStatusCompleted,
			Discount:    decimal.RequireFromString("0.9"),
			FinalAmount: decimal.RequireFromString("45.00"),
		}, nil)

		body := []byte(`{"merchant_code":"M001","qr_plain":"plain","raw_price":50,"idempotency_key":"order-1"}`)
		ctx := setupTestContext("/rpc/merchant_charge_by_qr", "cashier", body)
		h.MerchantChargeByQr(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var resp map[string]any
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
		assert.Equal(t, float64(7), resp["tx_id"])
		assert.Equal(t, "personal", resp["card_type"])
		assert.Equal(t, "45", resp["final_amount"])
		assert.Equal(t, "completed", resp["status"])

		m.ledger.AssertExpectations(t)
	})

	t.Run("amount given as string", func(t *testing.T) {
		h, m := newRpcHandler()

		m.ledger.On("Charge", mock.Anything, cashier, mock.MatchedBy(func(req model.ChargeRequest) bool {
			return req.RawAmount.Equal(decimal.RequireFromString("12.34"))
		})).Return(&model.Transaction{ID: 1}, nil)

		ctx := setupTestContext("/rpc/merchant_charge_by_qr", "cashier", []byte(`{"raw_price":"12.34"}`))
		h.MerchantChargeByQr(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		m.ledger.AssertExpectations(t)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		h, _ := newRpcHandler()

		ctx := setupTestContext("/rpc/merchant_charge_by_qr", "cashier", []byte("invalid json"))
		h.MerchantChargeByQr(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		e := decodeError(t, ctx)
		assert.Equal(t, model.KindInvalidInput, e.Kind)
		assert.Contains(t, e.Message, "invalid JSON")
	})
}

func TestRpcHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   model.ErrorKind
	}{
		{"expired qr", model.NewError(model.KindQrExpired, "qr token expired"), 410, model.KindQrExpired},
		{"invalid qr", model.ErrQrInvalid, 422, model.KindQrInvalid},
		{"insufficient balance", model.ErrInsufficientBalance, 422, model.KindInsufficientBalance},
		{"not merchant user", model.ErrNotMerchantUser, 403, model.KindNotMerchantUser},
		{"not found", model.NewError(model.KindNotFound, "card not found"), 404, model.KindNotFound},
		{"idempotency conflict", model.ErrIdempotencyConflict, 409, model.KindIdempotencyConflict},
		{"last admin", model.ErrCannotRemoveLastAdmin, 409, model.KindCannotRemoveLastAdmin},
		{"ambiguous levels", model.ErrAmbiguousLevelConfig, 500, model.KindAmbiguousLevelConfig},
		{"unexpected", errors.New("pq: connection refused"), 500, model.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, m := newRpcHandler()
			m.ledger.On("GetTransaction", mock.Anything, mock.Anything, "TX1").Return(nil, tt.err)

			ctx := setupTestContext("/rpc/get_transaction", "alice", []byte(`{"tx_no":"TX1"}`))
			h.GetTransaction(ctx)

			assert.Equal(t, tt.status, ctx.Response.StatusCode())
			e := decodeError(t, ctx)
			assert.Equal(t, tt.kind, e.Kind)
		})
	}

	t.Run("unexpected errors are masked", func(t *testing.T) {
		h, m := newRpcHandler()
		m.ledger.On("GetTransaction", mock.Anything, mock.Anything, "TX1").
			Return(nil, errors.New("pq: password authentication failed"))

		ctx := setupTestContext("/rpc/get_transaction", "alice", []byte(`{"tx_no":"TX1"}`))
		h.GetTransaction(ctx)

		e := decodeError(t, ctx)
		assert.Equal(t, "internal error", e.Message)
		assert.NotContains(t, string(ctx.Response.Body()), "password")
	})
}

func TestRpcHandler_MerchantRefundTx(t *testing.T) {
	h, m := newRpcHandler()

	m.ledger.On("Refund", mock.Anything, cashier, mock.MatchedBy(func(req model.RefundRequest) bool {
		return req.OriginalTxNo == "TX1" && req.RefundAmount.Equal(decimal.RequireFromString("10.50"))
	})).Return(&model.Transaction{TxNo: "TX2", FinalAmount: decimal.RequireFromString("10.50")}, nil)

	body := []byte(`{"merchant_code":"M001","original_tx_no":"TX1","refund_amount":"10.50"}`)
	ctx := setupTestContext("/rpc/merchant_refund_tx", "cashier", body)
	h.MerchantRefundTx(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	assert.Equal(t, "TX2", resp["refund_tx_no"])
	assert.Equal(t, "10.5", resp["refunded_amount"])

	m.ledger.AssertExpectations(t)
}

func TestRpcHandler_Recharge(t *testing.T) {
	t.Run("personal card id", func(t *testing.T) {
		h, m := newRpcHandler()

		m.ledger.On("RechargePersonal", mock.Anything, model.Caller{AuthUserID: "alice"}, mock.MatchedBy(func(req model.RechargeRequest) bool {
			return req.CardID == 3 && req.PaymentMethod == "card"
		})).Return(&model.Transaction{ID: 9, TxNo: "TX9", CardID: 3, FinalAmount: decimal.NewFromInt(20)}, nil)

		body := []byte(`{"personal_card_id":3,"amount":20,"payment_method":"card"}`)
		ctx := setupTestContext("/rpc/user_recharge_personal_card", "alice", body)
		h.UserRechargePersonalCard(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var resp rechargeResponse
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
		assert.Equal(t, int64(9), resp.TxID)
		assert.Equal(t, int64(3), resp.CardID)
		assert.True(t, decimal.NewFromInt(20).Equal(resp.Amount))
		m.ledger.AssertExpectations(t)
	})

	t.Run("enterprise card id", func(t *testing.T) {
		h, m := newRpcHandler()

		m.ledger.On("RechargeEnterpriseAdmin", mock.Anything, mock.Anything, mock.MatchedBy(func(req model.RechargeRequest) bool {
			return req.CardID == 4
		})).Return(nil, model.ErrOnlyEnterpriseAdmin)

		ctx := setupTestContext("/rpc/user_recharge_enterprise_card_admin", "bob", []byte(`{"enterprise_card_id":4,"amount":"5"}`))
		h.UserRechargeEnterpriseCardAdmin(ctx)

		assert.Equal(t, 403, ctx.Response.StatusCode())
		m.ledger.AssertExpectations(t)
	})
}

func TestRpcHandler_GetTransactions(t *testing.T) {
	t.Run("date range", func(t *testing.T) {
		h, m := newRpcHandler()

		from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
		m.ledger.On("ListTransactions", mock.Anything, mock.Anything, mock.MatchedBy(func(req model.ListTransactionsRequest) bool {
			return req.Limit == 10 && req.From != nil && req.From.Equal(from) && req.To == nil
		})).Return(&model.TransactionPage{Items: []*model.Transaction{}, TotalCount: 0}, nil)

		ctx := setupTestContext("/rpc/get_transactions", "alice", []byte(`{"limit":10,"from":"2026-10-01"}`))
		h.GetTransactions(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		m.ledger.AssertExpectations(t)
	})

	t.Run("bad date", func(t *testing.T) {
		h, m := newRpcHandler()

		ctx := setupTestContext("/rpc/get_transactions", "alice", []byte(`{"to":"yesterday"}`))
		h.GetTransactions(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		m.ledger.AssertNotCalled(t, "ListTransactions", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("merchant code forwarded", func(t *testing.T) {
		h, m := newRpcHandler()

		m.ledger.On("ListMerchantTransactions", mock.Anything, cashier, "M001", mock.Anything).
			Return(&model.TransactionPage{TotalCount: 3}, nil)

		ctx := setupTestContext("/rpc/get_merchant_transactions", "cashier", []byte(`{"merchant_code":"M001"}`))
		h.GetMerchantTransactions(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		m.ledger.AssertExpectations(t)
	})
}

func TestRpcHandler_Enterprise(t *testing.T) {
	t.Run("add member returns bare boolean", func(t *testing.T) {
		h, m := newRpcHandler()

		m.enterprise.On("AddMember", mock.Anything, mock.Anything, model.MembershipRequest{
			CardNo: "EC0000000000000001", MemberNo: "M2", CardPassword: "pw",
		}).Return(true, nil)

		body := []byte(`{"card_no":"EC0000000000000001","member_no":"M2","card_password":"pw"}`)
		ctx := setupTestContext("/rpc/enterprise_add_member", "alice", body)
		h.EnterpriseAddMember(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		assert.Equal(t, "true", string(ctx.Response.Body()))
		m.enterprise.AssertExpectations(t)
	})

	t.Run("set role passes role through", func(t *testing.T) {
		h, m := newRpcHandler()

		m.enterprise.On("SetMemberRole", mock.Anything, mock.Anything, mock.Anything, model.RoleAdmin).Return(true, nil)

		ctx := setupTestContext("/rpc/enterprise_set_member_role", "alice", []byte(`{"card_no":"EC1","member_no":"M2","role":"admin"}`))
		h.EnterpriseSetMemberRole(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		m.enterprise.AssertExpectations(t)
	})

	t.Run("wrong password", func(t *testing.T) {
		h, m := newRpcHandler()

		m.enterprise.On("RemoveMember", mock.Anything, mock.Anything, mock.Anything).Return(false, model.ErrInvalidCardPassword)

		ctx := setupTestContext("/rpc/enterprise_remove_member", "alice", []byte(`{"card_no":"EC1","member_no":"M2"}`))
		h.EnterpriseRemoveMember(ctx)

		assert.Equal(t, 403, ctx.Response.StatusCode())
		assert.Equal(t, model.KindInvalidCardPassword, decodeError(t, ctx).Kind)
	})
}

func TestRpcHandler_RotateCardQr(t *testing.T) {
	h, m := newRpcHandler()

	expires := time.Date(2026, 10, 18, 12, 15, 0, 0, time.UTC)
	m.qr.On("Rotate", mock.Anything, model.Caller{AuthUserID: "alice"}, int64(3), model.CardTypePersonal).
		Return(&model.QrIssue{Plain: "abc", ExpiresAt: expires}, nil)

	ctx := setupTestContext("/rpc/rotate_card_qr", "alice", []byte(`{"card_id":3,"card_type":"personal"}`))
	h.RotateCardQr(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())

	var resp model.QrIssue
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	assert.Equal(t, "abc", resp.Plain)
	assert.True(t, expires.Equal(resp.ExpiresAt))
	m.qr.AssertExpectations(t)
}

func TestRpcHandler_UpdatePointsAndLevel(t *testing.T) {
	h, m := newRpcHandler()

	m.cards.On("AdjustPoints", mock.Anything, mock.Anything, int64(3), int64(-200)).
		Return(&model.Card{ID: 3, Personal: &model.PersonalCard{Points: 800}}, nil)

	ctx := setupTestContext("/rpc/update_points_and_level", "ops", []byte(`{"card_id":3,"points_delta":-200}`))
	h.UpdatePointsAndLevel(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())
	m.cards.AssertExpectations(t)
}

func TestHealthHandler(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		h := NewHealthHandler(healthFunc(func(context.Context) error { return nil }))
		ctx := setupTestContext("/health", "", nil)
		h.GetHealth(ctx)
		assert.Equal(t, 200, ctx.Response.StatusCode())
		assert.JSONEq(t, `{"status":"ok"}`, string(ctx.Response.Body()))
	})

	t.Run("unavailable", func(t *testing.T) {
		h := NewHealthHandler(healthFunc(func(context.Context) error { return errors.New("redis down") }))
		ctx := setupTestContext("/health", "", nil)
		h.GetHealth(ctx)
		assert.Equal(t, 503, ctx.Response.StatusCode())
	})
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) Get(ctx context.Context) error { return f(ctx) }
