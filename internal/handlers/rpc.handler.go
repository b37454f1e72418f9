package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/card-ledger/internal/model"
	xhttp "github.com/nimasrn/card-ledger/pkg/http"
	"github.com/shopspring/decimal"
)

type QrService interface {
	Rotate(ctx context.Context, caller model.Caller, cardID int64, cardType model.CardType) (*model.QrIssue, error)
	Revoke(ctx context.Context, caller model.Caller, cardID int64) (int64, error)
	History(ctx context.Context, caller model.Caller, cardID int64, limit int) ([]*model.QrToken, error)
}

type LedgerService interface {
	Charge(ctx context.Context, caller model.Caller, req model.ChargeRequest) (*model.Transaction, error)
	DiscountPreview(ctx context.Context, caller model.Caller, merchantCode, qrPlain string, raw decimal.Decimal) (*model.DiscountQuote, error)
	RechargePersonal(ctx context.Context, caller model.Caller, req model.RechargeRequest) (*model.Transaction, error)
	RechargeEnterpriseAdmin(ctx context.Context, caller model.Caller, req model.RechargeRequest) (*model.Transaction, error)
	Refund(ctx context.Context, caller model.Caller, req model.RefundRequest) (*model.Transaction, error)
	ListTransactions(ctx context.Context, caller model.Caller, req model.ListTransactionsRequest) (*model.TransactionPage, error)
	ListMerchantTransactions(ctx context.Context, caller model.Caller, merchantCode string, req model.ListTransactionsRequest) (*model.TransactionPage, error)
	GetTransaction(ctx context.Context, caller model.Caller, txNo string) (*model.Transaction, error)
}

type CardService interface {
	GetUserCards(ctx context.Context, caller model.Caller) ([]*model.CardView, error)
	UpdateStatus(ctx context.Context, caller model.Caller, cardID int64, status model.CardStatus) (*model.Card, error)
	AdjustPoints(ctx context.Context, caller model.Caller, cardID int64, delta int64) (*model.Card, error)
}

type EnterpriseService interface {
	CreateEnterpriseCard(ctx context.Context, caller model.Caller, req model.CreateEnterpriseCardRequest) (*model.Card, error)
	AddMember(ctx context.Context, caller model.Caller, req model.MembershipRequest) (bool, error)
	RemoveMember(ctx context.Context, caller model.Caller, req model.MembershipRequest) (bool, error)
	SetMemberRole(ctx context.Context, caller model.Caller, req model.MembershipRequest, role model.BindingRole) (bool, error)
	ListMembers(ctx context.Context, caller model.Caller, cardNo string) ([]*model.CardBinding, error)
}

type RpcHandler struct {
	qr         QrService
	ledger     LedgerService
	cards      CardService
	enterprise EnterpriseService
}

func NewRpcHandler(qr QrService, ledger LedgerService, cards CardService, enterprise EnterpriseService) *RpcHandler {
	return &RpcHandler{
		qr:         qr,
		ledger:     ledger,
		cards:      cards,
		enterprise: enterprise,
	}
}

func RegisterRpcRoutes(e *router.Group, h *RpcHandler) {
	g := e.Group("/rpc")
	g.POST("/rotate_card_qr", h.RotateCardQr)
	g.POST("/revoke_card_qr", h.RevokeCardQr)
	g.POST("/get_card_qr_history", h.GetCardQrHistory)
	g.POST("/merchant_charge_by_qr", h.MerchantChargeByQr)
	g.POST("/discount_preview", h.DiscountPreview)
	g.POST("/merchant_refund_tx", h.MerchantRefundTx)
	g.POST("/user_recharge_personal_card", h.UserRechargePersonalCard)
	g.POST("/user_recharge_enterprise_card_admin", h.UserRechargeEnterpriseCardAdmin)
	g.POST("/get_user_cards", h.GetUserCards)
	g.POST("/get_transactions", h.GetTransactions)
	g.POST("/get_merchant_transactions", h.GetMerchantTransactions)
	g.POST("/get_transaction", h.GetTransaction)
	g.POST("/create_enterprise_card", h.CreateEnterpriseCard)
	g.POST("/enterprise_add_member", h.EnterpriseAddMember)
	g.POST("/enterprise_remove_member", h.EnterpriseRemoveMember)
	g.POST("/enterprise_set_member_role", h.EnterpriseSetMemberRole)
	g.POST("/enterprise_get_bound_members", h.EnterpriseGetBoundMembers)
	g.POST("/update_card_status", h.UpdateCardStatus)
	g.POST("/update_points_and_level", h.UpdatePointsAndLevel)
}

/* --------------------------------- QR ----------------------------------- */

type cardRef struct {
	CardID   int64          `json:"card_id"`
	CardType model.CardType `json:"card_type"`
	Limit    int            `json:"limit"`
}

func (h *RpcHandler) RotateCardQr(ctx *xhttp.RequestCtx) {
	var req cardRef
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	issue, err := h.qr.Rotate(ctx, callerOf(ctx), req.CardID, req.CardType)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, issue)
}

func (h *RpcHandler) RevokeCardQr(ctx *xhttp.RequestCtx) {
	var req cardRef
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	n, err := h.qr.Revoke(ctx, callerOf(ctx), req.CardID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]int64{"revoked": n})
}

func (h *RpcHandler) GetCardQrHistory(ctx *xhttp.RequestCtx) {
	var req cardRef
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	items, err := h.qr.History(ctx, callerOf(ctx), req.CardID, req.Limit)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]any{"items": items})
}

/* ------------------------------- Payments --------------------------------- */

type chargeRequest struct {
	MerchantCode   string          `json:"merchant_code"`
	QrPlain        string          `json:"qr_plain"`
	RawPrice       decimal.Decimal `json:"raw_price"`
	Reason         string          `json:"reason"`
	Tag            map[string]any  `json:"tag"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type chargeResponse struct {
	TxID        int64           `json:"tx_id"`
	TxNo        string          `json:"tx_no"`
	CardType    model.CardType  `json:"card_type"`
	CardID      int64           `json:"card_id"`
	FinalAmount decimal.Decimal `json:"final_amount"`
	Discount    decimal.Decimal `json:"discount"`
	Status      model.TxStatus  `json:"status"`
}

func (h *RpcHandler) MerchantChargeByQr(ctx *xhttp.RequestCtx) {
	var req chargeRequest
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	tx, err := h.ledger.Charge(ctx, callerOf(ctx), model.ChargeRequest{
		MerchantCode:   req.MerchantCode,
		QrPlain:        req.QrPlain,
		RawAmount:      req.RawPrice,
		Reason:         req.Reason,
		Tag:            req.Tag,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, chargeResponse{
		TxID:        tx.ID,
		TxNo:        tx.TxNo,
		CardType:    tx.CardType,
		CardID:      tx.CardID,
		FinalAmount: tx.FinalAmount,
		Discount:    tx.Discount,
		Status:      tx.Status,
	})
}

func (h *RpcHandler) DiscountPreview(ctx *xhttp.RequestCtx) {
	var req chargeRequest
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	quote, err := h.ledger.DiscountPreview(ctx, callerOf(ctx), req.MerchantCode, req.QrPlain, req.RawPrice)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, quote)
}

type refundRequest struct {
	MerchantCode   string          `json:"merchant_code"`
	OriginalTxNo   string          `json:"original_tx_no"`
	RefundAmount   decimal.Decimal `json:"refund_amount"`
	Reason         string          `json:"reason"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type refundResponse struct {
	RefundTxNo     string          `json:"refund_tx_no"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
}

func (h *RpcHandler) MerchantRefundTx(ctx *xhttp.RequestCtx) {
	var req refundRequest
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	tx, err := h.ledger.Refund(ctx, callerOf(ctx), model.RefundRequest{
		MerchantCode:   req.MerchantCode,
		OriginalTxNo:   req.OriginalTxNo,
		RefundAmount:   req.RefundAmount,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, refundResponse{RefundTxNo: tx.TxNo, RefundedAmount: tx.FinalAmount})
}

type rechargeRequest struct {
	PersonalCardID   int64           `json:"personal_card_id"`
	EnterpriseCardID int64           `json:"enterprise_card_id"`
	Amount           decimal.Decimal `json:"amount"`
	PaymentMethod    string          `json:"payment_method"`
	Reason           string          `json:"reason"`
	IdempotencyKey   string          `json:"idempotency_key"`
}

type rechargeResponse struct {
	TxID   int64           `json:"tx_id"`
	TxNo   string          `json:"tx_no"`
	CardID int64           `json:"card_id"`
	Amount decimal.Decimal `json:"amount"`
}

func (h *RpcHandler) UserRechargePersonalCard(ctx *xhttp.RequestCtx) {
	h.recharge(ctx, func(req rechargeRequest) int64 { return req.PersonalCardID }, h.ledger.RechargePersonal)
}

func (h *RpcHandler) UserRechargeEnterpriseCardAdmin(ctx *xhttp.RequestCtx) {
	h.recharge(ctx, func(req rechargeRequest) int64 { return req.EnterpriseCardID }, h.ledger.RechargeEnterpriseAdmin)
}

func (h *RpcHandler) recharge(
	ctx *xhttp.RequestCtx,
	cardID func(rechargeRequest) int64,
	call func(context.Context, model.Caller, model.RechargeRequest) (*model.Transaction, error),
) {
	var req rechargeRequest
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	tx, err := call(ctx, callerOf(ctx), model.RechargeRequest{
		CardID:         cardID(req),
		Amount:         req.Amount,
		PaymentMethod:  req.PaymentMethod,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, rechargeResponse{TxID: tx.ID, TxNo: tx.TxNo, CardID: tx.CardID, Amount: tx.FinalAmount})
}

/* ------------------------------- Listing ---------------------------------- */

type listRequest struct {
	MerchantCode string `json:"merchant_code"`
	Limit        int    `json:"limit"`
	Offset       int    `json:"offset"`
	From         string `json:"from"`
	To           string `json:"to"`
}

func (r listRequest) toModel() (model.ListTransactionsRequest, error) {
	out := model.ListTransactionsRequest{Limit: r.Limit, Offset: r.Offset}
	if r.From != "" {
		t, err := parseTime(r.From)
		if err != nil {
			return out, model.WrapError(model.KindInvalidInput, "from is not a date", err)
		}
		out.From = &t
	}
	if r.To != "" {
		t, err := parseTime(r.To)
		if err != nil {
			return out, model.WrapError(model.KindInvalidInput, "to is not a date", err)
		}
		out.To = &t
	}
	return out, nil
}

func (h *RpcHandler) GetTransactions(ctx *xhttp.RequestCtx) {
	var req listRequest
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	f, err := req.toModel()
	if err != nil {
		writeError(ctx, err)
		return
	}
	page, err := h.ledger.ListTransactions(ctx, callerOf(ctx), f)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, page)
}

func (h *RpcHandler) GetMerchantTransactions(ctx *xhttp.RequestCtx) {
	var req listRequest
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	f, err := req.toModel()
	if err != nil {
		writeError(ctx, err)
		return
	}
	page, err := h.ledger.ListMerchantTransactions(ctx, callerOf(ctx), req.MerchantCode, f)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, page)
}

func (h *RpcHandler) GetTransaction(ctx *xhttp.RequestCtx) {
	var req struct {
		TxNo string `json:"tx_no"`
	}
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	tx, err := h.ledger.GetTransaction(ctx, callerOf(ctx), req.TxNo)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, tx)
}

func (h *RpcHandler) GetUserCards(ctx *xhttp.RequestCtx) {
	cards, err := h.cards.GetUserCards(ctx, callerOf(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]any{"items": cards})
}

/* ------------------------------ Enterprise -------------------------------- */

type createEnterpriseCardRequest struct {
	Name          string           `json:"name"`
	Password      string           `json:"password"`
	FixedDiscount *decimal.Decimal `json:"fixed_discount"`
}

func (h *RpcHandler) CreateEnterpriseCard(ctx *xhttp.RequestCtx) {
	var req createEnterpriseCardRequest
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	card, err := h.enterprise.CreateEnterpriseCard(ctx, callerOf(ctx), model.CreateEnterpriseCardRequest{
		Name:          req.Name,
		Password:      req.Password,
		FixedDiscount: req.FixedDiscount,
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, card)
}

type membershipRequest struct {
	CardNo       string            `json:"card_no"`
	MemberNo     string            `json:"member_no"`
	CardPassword string            `json:"card_password"`
	Role         model.BindingRole `json:"role"`
}

func (r membershipRequest) toModel() model.MembershipRequest {
	return model.MembershipRequest{CardNo: r.CardNo, MemberNo: r.MemberNo, CardPassword: r.CardPassword}
}

func (h *RpcHandler) EnterpriseAddMember(ctx *xhttp.RequestCtx) {
	var req membershipRequest
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	ok, err := h.enterprise.AddMember(ctx, callerOf(ctx), req.toModel())
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, ok)
}

func (h *RpcHandler) EnterpriseRemoveMember(ctx *xhttp.RequestCtx) {
	var req membershipRequest
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	ok, err := h.enterprise.RemoveMember(ctx, callerOf(ctx), req.toModel())
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, ok)
}

func (h *RpcHandler) EnterpriseSetMemberRole(ctx *xhttp.RequestCtx) {
	var req membershipRequest
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	ok, err := h.enterprise.SetMemberRole(ctx, callerOf(ctx), req.toModel(), req.Role)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, ok)
}

func (h *RpcHandler) EnterpriseGetBoundMembers(ctx *xhttp.RequestCtx) {
	var req membershipRequest
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	members, err := h.enterprise.ListMembers(ctx, callerOf(ctx), req.CardNo)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]any{"items": members})
}

/* ---------------------------- Platform admin ------------------------------ */

type cardStatusRequest struct {
	CardID int64            `json:"card_id"`
	Status model.CardStatus `json:"status"`
}

func (h *RpcHandler) UpdateCardStatus(ctx *xhttp.RequestCtx) {
	var req cardStatusRequest
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	card, err := h.cards.UpdateStatus(ctx, callerOf(ctx), req.CardID, req.Status)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, card)
}

type pointsRequest struct {
	CardID int64 `json:"card_id"`
	Delta  int64 `json:"points_delta"`
}

func (h *RpcHandler) UpdatePointsAndLevel(ctx *xhttp.RequestCtx) {
	var req pointsRequest
	if err := readJSON(ctx, &req); err != nil {
		badJSON(ctx, err)
		return
	}
	card, err := h.cards.AdjustPoints(ctx, callerOf(ctx), req.CardID, req.Delta)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, card)
}
