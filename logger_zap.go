package qorzendb

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// zapLogger adapts a *zap.Logger to the Logger interface.
type zapLogger struct {
	l *zap.SugaredLogger
}

// NewZapLogger wraps an existing *zap.Logger for use as a qorzendb Logger.
func NewZapLogger(l *zap.Logger) Logger {
	return &zapLogger{l: l.Sugar()}
}

func (z *zapLogger) Debug(msg string, keyvals ...any) { z.l.Debugw(msg, keyvals...) }
func (z *zapLogger) Info(msg string, keyvals ...any)  { z.l.Infow(msg, keyvals...) }
func (z *zapLogger) Warn(msg string, keyvals ...any)  { z.l.Warnw(msg, keyvals...) }
func (z *zapLogger) Error(msg string, keyvals ...any) { z.l.Errorw(msg, keyvals...) }

// RotatingFileConfig configures log rotation for NewRotatingZapLogger.
type RotatingFileConfig struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewRotatingZapLogger builds a Logger backed by zap, writing JSON lines
// to a lumberjack-rotated file. Intended for production deployments that
// want the same logging stack as the rest of the host application.
func NewRotatingZapLogger(cfg RotatingFileConfig) Logger {
	writer := &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(writer),
		zapcore.DebugLevel,
	)

	return NewZapLogger(zap.New(core))
}
