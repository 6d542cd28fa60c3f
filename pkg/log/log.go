package log

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging surface threaded through the pipeline. The
// context is accepted so request-scoped fields can be attached later
// without changing call sites.
type Logger interface {
	Debug(ctx context.Context, msg string)
	Debugf(ctx context.Context, format string, args ...any)
	Info(ctx context.Context, msg string)
	Infof(ctx context.Context, format string, args ...any)
	Warn(ctx context.Context, msg string)
	Warnf(ctx context.Context, format string, args ...any)
	Error(ctx context.Context, msg string)
	Errorf(ctx context.Context, format string, args ...any)
}

type ZapConfig struct {
	Level    string // debug, info, warn, error
	Mode     string // development or production
	Encoding string // console or json
}

type zapLogger struct {
	l *zap.SugaredLogger
}

// Init builds the process logger. Invalid settings fall back to a
// production console logger at info level.
func Init(cfg ZapConfig) Logger {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zapcore.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}

	var zcfg zap.Config
	if cfg.Mode == "development" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.Encoding != "" {
		zcfg.Encoding = cfg.Encoding
	}

	logger, err := zcfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}
	return &zapLogger{l: logger.Sugar()}
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() Logger {
	return &zapLogger{l: zap.NewNop().Sugar()}
}

func (z *zapLogger) Debug(_ context.Context, msg string) { z.l.Debug(msg) }
func (z *zapLogger) Debugf(_ context.Context, format string, args ...any) {
	z.l.Debugf(format, args...)
}
func (z *zapLogger) Info(_ context.Context, msg string) { z.l.Info(msg) }
func (z *zapLogger) Infof(_ context.Context, format string, args ...any) {
	z.l.Infof(format, args...)
}
func (z *zapLogger) Warn(_ context.Context, msg string) { z.l.Warn(msg) }
func (z *zapLogger) Warnf(_ context.Context, format string, args ...any) {
	z.l.Warnf(format, args...)
}
func (z *zapLogger) Error(_ context.Context, msg string) { z.l.Error(msg) }
func (z *zapLogger) Errorf(_ context.Context, format string, args ...any) {
	z.l.Errorf(format, args...)
}
