// Package rlog provides the structured logger shared by every component of
// the client core, in the style of the igor project's config.GetLogger: a
// single package-level *zap.SugaredLogger installed once and retrieved
// lazily, rather than threaded through every constructor.
package rlog

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger *zap.SugaredLogger
	level  zapcore.Level
)

func init() {
	// Usable default so library consumers who never call Configure still
	// see output, same as igor's package-level logger being set before
	// any config file is read.
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	logger = l.Sugar()
}

// Config mirrors the shape of a zap.Config, trimmed to the fields the
// teacher's LogConfig exposes.
type Config struct {
	Level       string   `json:"level"`
	Development bool     `json:"development"`
	Encoding    string   `json:"encoding"`
	OutputPaths []string `json:"outputPaths"`
}

// Configure installs the process-wide logger from a Config value. Safe to
// call more than once; the most recent call wins.
func Configure(cfg Config) error {
	if cfg.Encoding == "" {
		cfg.Encoding = "console"
	}
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stdout"}
	}

	var lvl zapcore.Level
	if cfg.Level == "" {
		lvl = zapcore.InfoLevel
	} else if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
		return fmt.Errorf("bad log level %q: %w", cfg.Level, err)
	}

	zc := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Development:      cfg.Development,
		Encoding:         cfg.Encoding,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig:    zap.NewProductionEncoderConfig(),
	}
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	built, err := zc.Build()
	if err != nil {
		return fmt.Errorf("bad log configuration: %w", err)
	}

	mu.Lock()
	logger = built.Sugar()
	level = lvl
	mu.Unlock()

	return nil
}

// ConfigureFromJSON parses a JSON document shaped like Config, for callers
// that keep their configuration on disk the way igor does.
func ConfigureFromJSON(data []byte) error {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("bad log configuration: %w", err)
	}
	return Configure(cfg)
}

// L returns the current process-wide logger.
func L() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// DebugEnabled reports whether the debug level is currently enabled, so
// callers can skip building an expensive log line, as the teacher's
// IsDebugEnabled does.
func DebugEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return level.Enabled(zapcore.DebugLevel)
}
