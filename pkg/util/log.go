package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig selects where and how verbosely the client logs.
type LogConfig struct {
	Dir          string // directory for the log files; empty disables them
	ConsoleLevel string // debug|info|warn|error
	FileLevel    string
	MaxSizeMB    int // rotate after this many megabytes
	MaxBackups   int
}

func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// APILoggerName is the logger name the exchange client logs under. Records from
// it and its children also go to <dir>/api_calls.log.
const APILoggerName = "exchange"

// NewLoggerWithFiles creates a logger that writes human-readable lines to stdout,
// structured JSON to <dir>/trading_bot.log, warnings and errors to <dir>/errors.log
// and exchange traffic to <dir>/api_calls.log. All files rotate by size.
func NewLoggerWithFiles(cfg LogConfig) (*zap.Logger, error) {
	consoleLevel, err := zapcore.ParseLevel(orDefault(cfg.ConsoleLevel, "info"))
	if err != nil {
		return nil, fmt.Errorf("console log level: %w", err)
	}
	fileLevel, err := zapcore.ParseLevel(orDefault(cfg.FileLevel, "debug"))
	if err != nil {
		return nil, fmt.Errorf("file log level: %w", err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	consoleCfg := encoderCfg
	consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(os.Stdout), consoleLevel),
	}

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, err
		}
		jsonEncoder := zapcore.NewJSONEncoder(encoderCfg)
		cores = append(cores,
			zapcore.NewCore(jsonEncoder, rotating(cfg, "trading_bot.log"), fileLevel),
			zapcore.NewCore(jsonEncoder, rotating(cfg, "errors.log"), zap.WarnLevel),
			NamedOnly(zapcore.NewCore(jsonEncoder, rotating(cfg, "api_calls.log"), zap.DebugLevel), APILoggerName),
		)
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// NamedOnly restricts core to entries logged by the logger called name or one
// of its children (name.*).
func NamedOnly(core zapcore.Core, name string) zapcore.Core {
	return namedCore{Core: core, name: name}
}

type namedCore struct {
	zapcore.Core
	name string
}

func (c namedCore) With(fields []zapcore.Field) zapcore.Core {
	return namedCore{Core: c.Core.With(fields), name: c.name}
}

func (c namedCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if ent.LoggerName != c.name && !strings.HasPrefix(ent.LoggerName, c.name+".") {
		return ce
	}
	return c.Core.Check(ent, ce)
}

func rotating(cfg LogConfig, name string) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, name),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	})
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
