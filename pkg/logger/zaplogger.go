package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RequestIDKey is where the http layer stores the request id. It is a plain
// string because fasthttp resolves Value lookups against its user values.
const RequestIDKey = "X-Request-Id"

type ZapLogger struct {
	log *zap.SugaredLogger
}

var zapLogger *ZapLogger

// NewLogger builds the process logger and installs it for the package
// helpers. Caller skip accounts for the helper and method frames.
func NewLogger(config zap.Config) (*ZapLogger, error) {
	base, err := config.Build()
	if err != nil {
		return nil, err
	}
	zapLogger = &ZapLogger{log: base.WithOptions(zap.AddCallerSkip(2)).Sugar()}
	return zapLogger, nil
}

// NewFromCore wraps an existing core, e.g. an observer in tests.
func NewFromCore(core zapcore.Core) *ZapLogger {
	return &ZapLogger{log: zap.New(core, zap.AddCallerSkip(2)).Sugar()}
}

// Use installs l for the package helpers and returns a func restoring the
// previous logger.
func Use(l *ZapLogger) (restore func()) {
	prev := zapLogger
	zapLogger = l
	return func() { zapLogger = prev }
}

func GetLogger() *ZapLogger {
	if zapLogger == nil {
		panic("logger not initialized")
	}
	return zapLogger
}

// With returns a child logger carrying the given key/value pairs on every entry.
func (l *ZapLogger) With(values ...any) *ZapLogger {
	return &ZapLogger{log: l.log.With(values...)}
}

// WithContext returns a logger for direct method calls, tagged with the
// request id found in ctx, if any.
func (l *ZapLogger) WithContext(ctx context.Context) *ZapLogger {
	child := &ZapLogger{log: l.log.WithOptions(zap.AddCallerSkip(-1))}
	if ctx == nil {
		return child
	}
	if rid, ok := ctx.Value(RequestIDKey).(string); ok && rid != "" {
		return child.With("request_id", rid)
	}
	return child
}

func (l *ZapLogger) Panic(message string, values ...any) {
	l.log.Panicw(message, values...)
}

func (l *ZapLogger) Fatal(err error, values ...any) {
	l.log.Fatalw(err.Error(), values...)
}

func (l *ZapLogger) Info(message string, values ...any) {
	l.log.Infow(message, values...)
}

func (l *ZapLogger) Warn(message string, values ...any) {
	l.log.Warnw(message, values...)
}

func (l *ZapLogger) Error(message string, values ...any) {
	l.log.Errorw(message, values...)
}

func (l *ZapLogger) Debug(message string, values ...any) {
	l.log.Debugw(message, values...)
}

// Printf lets the logger serve as a fasthttp.Logger.
func (l *ZapLogger) Printf(format string, args ...interface{}) {
	l.log.Infof(format, args...)
}
