// Package observability adapts engine events to structured loggers.
package observability

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/ports"
)

var _ ports.EventSink = (*ZapSink)(nil)

// Log encodings accepted by LoggerConfig.Format.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// LoggerConfig selects the encoder and minimum level of a ZapSink.
type LoggerConfig struct {
	Level  string
	Format string
	// Output defaults to stderr.
	Output io.Writer
}

// ZapSink writes engine events through a zap logger. Each event becomes one
// entry stamped with the event's own timestamp; event fields become zap
// fields in key order.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink builds a logger from cfg and wraps it.
func NewZapSink(cfg LoggerConfig) (*ZapSink, error) {
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	return NewZapSinkFromLogger(logger), nil
}

// NewZapSinkFromLogger wraps an existing logger.
func NewZapSinkFromLogger(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger}
}

// NewLogger builds a zap logger for cfg.
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = lvl
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	switch cfg.Format {
	case "", FormatJSON:
		enc = zapcore.NewJSONEncoder(encCfg)
	case FormatConsole:
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	return zap.New(zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(out)), level)), nil
}

// Emit implements ports.EventSink.
func (s *ZapSink) Emit(_ context.Context, e domain.Event) {
	ce := s.logger.Check(zapLevel(e.Level), e.Message)
	if ce == nil {
		return
	}
	if !e.Timestamp.IsZero() {
		ce.Time = e.Timestamp
	}
	fields := make([]zap.Field, 0, len(e.Fields)+1)
	fields = append(fields, zap.String("event", e.Name))
	for _, k := range slices.Sorted(maps.Keys(e.Fields)) {
		fields = append(fields, zap.Any(k, e.Fields[k]))
	}
	ce.Write(fields...)
}

// Sync flushes buffered entries.
func (s *ZapSink) Sync() error { return s.logger.Sync() }

// Logger returns the underlying logger.
func (s *ZapSink) Logger() *zap.Logger { return s.logger }

func zapLevel(l domain.EventLevel) zapcore.Level {
	switch l {
	case domain.LevelDebug:
		return zapcore.DebugLevel
	case domain.LevelWarn:
		return zapcore.WarnLevel
	case domain.LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
