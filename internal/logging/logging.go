package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Init installs the default slog logger, backed by zap. It reads
// LOG_LEVEL (debug, info, warn, error; dev and prod are accepted aliases),
// LOG_FORMAT (console or json) and LOG_FILE. defaultLevel applies when
// LOG_LEVEL is unset. The returned func flushes buffered output.
//
// When LOG_FILE is set, logs go only to the file so they do not draw over
// the terminal UI.
func Init(defaultLevel string) (func(), error) {
	level := ParseLevel(getenvDefault("LOG_LEVEL", defaultLevel))
	format := strings.ToLower(strings.TrimSpace(getenvDefault("LOG_FORMAT", "console")))

	var out io.Writer = os.Stderr
	closeFile := func() {}
	if path := strings.TrimSpace(os.Getenv("LOG_FILE")); path != "" {
		if err := ensureDir(filepath.Dir(path)); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFile = func() { f.Close() }
	}

	core := zapcore.NewCore(encoder(format), zapcore.AddSync(out), level)
	logger := zap.New(core)

	slog.SetDefault(slog.New(zapslog.NewHandler(core, zapslog.AddStacktraceAt(slog.LevelError+1))))

	return func() {
		_ = logger.Sync()
		closeFile()
	}, nil
}

// ParseLevel maps a LOG_LEVEL value to a zap level. Unknown values mean error,
// matching production.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development", "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func encoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "json" {
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.ConsoleSeparator = " | "
	return zapcore.NewConsoleEncoder(cfg)
}

func ensureDir(dir string) error {
	if strings.TrimSpace(dir) == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
