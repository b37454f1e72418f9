package handlers

import (
	"encoding/json"
	"time"

	"github.com/nimasrn/card-ledger/internal/model"
	xhttp "github.com/nimasrn/card-ledger/pkg/http"
	"github.com/nimasrn/card-ledger/pkg/logger"
)

const HeaderAuthUserID = "X-Auth-User-Id"

var kindStatus = map[model.ErrorKind]int{
	model.KindNotFound:                       xhttp.StatusNotFound,
	model.KindInvalidInput:                   xhttp.StatusBadRequest,
	model.KindQrExpired:                      xhttp.StatusGone,
	model.KindQrInvalid:                      xhttp.StatusUnprocessableEntity,
	model.KindInsufficientBalance:            xhttp.StatusUnprocessableEntity,
	model.KindOnlyCompletedPaymentRefundable: xhttp.StatusUnprocessableEntity,
	model.KindRefundExceedsRemaining:         xhttp.StatusUnprocessableEntity,
	model.KindCardNotActive:                  xhttp.StatusUnprocessableEntity,
	model.KindNotMerchantUser:                xhttp.StatusForbidden,
	model.KindOnlyEnterpriseAdmin:            xhttp.StatusForbidden,
	model.KindInvalidCardPassword:            xhttp.StatusForbidden,
	model.KindForbidden:                      xhttp.StatusForbidden,
	model.KindCannotRemoveLastAdmin:          xhttp.StatusConflict,
	model.KindIdempotencyConflict:            xhttp.StatusConflict,
	model.KindConflict:                       xhttp.StatusConflict,
	model.KindAmbiguousLevelConfig:           xhttp.StatusInternalServerError,
	model.KindInternal:                       xhttp.StatusInternalServerError,
}

type errorBody struct {
	Kind    model.ErrorKind `json:"kind"`
	Message string          `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func callerOf(ctx *xhttp.RequestCtx) model.Caller {
	return model.Caller{AuthUserID: string(ctx.Request.Header.Peek(HeaderAuthUserID))}
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Error("failed to encode response", "path", string(ctx.Path()), "error", err)
		status = xhttp.StatusInternalServerError
		b = []byte(`{"error":{"kind":"INTERNAL","message":"internal error"}}`)
	}
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

// writeError sends expected failures verbatim and masks everything else.
func writeError(ctx *xhttp.RequestCtx, err error) {
	kind := model.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = xhttp.StatusInternalServerError
	}
	msg := err.Error()
	if !model.IsExpected(err) {
		logger.Ctx(ctx).Error("request failed", "path", string(ctx.Path()), "error", err)
		kind, msg = model.KindInternal, "internal error"
	}
	writeJSON(ctx, status, errorResponse{Error: errorBody{Kind: kind, Message: msg}})
}

func badJSON(ctx *xhttp.RequestCtx, err error) {
	writeError(ctx, model.WrapError(model.KindInvalidInput, "invalid JSON body", err))
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
