package xhttp

import (
	"github.com/fasthttp/router"
	"github.com/nimasrn/card-ledger/pkg/logger"
)

type Router = router.Router

// Bodies for requests that never reach a handler. They share the shape of
// the ledger's error envelope so clients decode one format.
const (
	notFoundBody         = `{"error":{"kind":"NOT_FOUND","message":"unknown operation"}}`
	methodNotAllowedBody = `{"error":{"kind":"INVALID_INPUT","message":"method not allowed"}}`
	panicBody            = `{"error":{"kind":"INTERNAL","message":"internal error"}}`
)

// CreateDefaultRouter returns a router with strict paths: operations are
// addressed by exact name, so no trailing slash or case fixing.
func CreateDefaultRouter() *Router {
	r := router.New()
	r.RedirectFixedPath = false
	r.RedirectTrailingSlash = false
	r.SaveMatchedRoutePath = true
	r.HandleOPTIONS = false
	r.HandleMethodNotAllowed = true
	r.NotFound = NotFoundHandler
	r.MethodNotAllowed = MethodNotAllowedHandler
	r.PanicHandler = PanicHandler
	return r
}

func NotFoundHandler(ctx *RequestCtx) {
	writeRaw(ctx, StatusNotFound, notFoundBody)
}

func MethodNotAllowedHandler(ctx *RequestCtx) {
	writeRaw(ctx, StatusMethodNotAllowed, methodNotAllowedBody)
}

// PanicHandler catches panics the recover middleware did not see, e.g. in
// handlers registered without middleware.
func PanicHandler(ctx *RequestCtx, v interface{}) {
	logger.Error("[xhttp] router panic", "path", string(ctx.Path()), "error", v)
	writeRaw(ctx, StatusInternalServerError, panicBody)
}

func writeRaw(ctx *RequestCtx, status int, body string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBodyString(body)
}
