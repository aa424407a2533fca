// Package logging sets up the daemon's zap loggers.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger writing to stderr. In dev mode it uses the
// human-readable development encoder at debug level.
func New(dev bool) *zap.SugaredLogger {
	var logger *zap.Logger
	if dev {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	return logger.Sugar()
}

// NewRotating returns a logger writing to path with size-based rotation.
func NewRotating(path string, dev bool) *zap.SugaredLogger {
	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 2,
		MaxAge:     28, // days
		Compress:   true,
	})

	level := zapcore.InfoLevel
	encCfg := zap.NewProductionEncoderConfig()
	if dev {
		level = zapcore.DebugLevel
		encCfg = zap.NewDevelopmentEncoderConfig()
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, level)
	return zap.New(core).Sugar()
}
