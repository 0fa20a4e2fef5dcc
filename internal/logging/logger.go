package logging

import (
	"encoding/hex"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar selects the log level if Initialize gets an empty one.
// Nothing is logged if both are empty.
const LogLevelEnvVar = "GSAT_LOG_LEVEL"

// maxDump limits the number of bytes shown by Bytes.
const maxDump = 256

// Initialize replaces the global logger with a console logger writing to
// stderr at level (debug, info, warn or error).
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	if level == "" {
		logger = zap.NewNop()
		return nil
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil || lvl > zapcore.ErrorLevel {
		return fmt.Errorf("unknown log level %q", level)
	}
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeCaller = zapcore.ShortCallerEncoder
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Encoding:         "console",
		EncoderConfig:    ec,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	if logger, err = cfg.Build(); err != nil {
		logger = nil
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// GetLogger returns the global logger. It never returns nil.
func GetLogger() *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Sync flushes the buffered log entries.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}

// Bytes returns a field showing data both in hex and as printable ASCII.
// Only the first 256 bytes are shown.
func Bytes(key string, data []byte) zap.Field {
	return zap.Object(key, dump(data))
}

type dump []byte

func (d dump) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("len", len(d))
	p := []byte(d)
	more := len(p) > maxDump
	if more {
		p = p[:maxDump]
	}
	h := hex.EncodeToString(p)
	a := make([]byte, len(p))
	for i, c := range p {
		if c < ' ' || c > '~' {
			c = '.'
		}
		a[i] = c
	}
	if more {
		h += "..."
		a = append(a, "..."...)
	}
	enc.AddString("hex", h)
	enc.AddString("ascii", string(a))
	return nil
}
