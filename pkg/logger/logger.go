package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log = zap.NewNop()

// Init 初始化全局 logger。level: debug|info|warn|error；format: json|console
func Init(level, format string) error {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.SetLevel(zapcore.InfoLevel)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), lvl)
	log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	zap.ReplaceGlobals(log)
	return nil
}

// Set 替换全局 logger（测试中可注入 zaptest/observer）
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	log = l
}

// L 返回底层 logger
func L() *zap.Logger { return log }

func Debug(msg string, fields ...zap.Field) { log.Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { log.Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { log.Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) { log.Error(msg, fields...) }

func Fatal(msg string, fields ...zap.Field) { log.Fatal(msg, fields...) }

// With 派生带固定字段的 logger
func With(fields ...zap.Field) *zap.Logger { return log.With(fields...) }

func Sync() error { return log.Sync() }
