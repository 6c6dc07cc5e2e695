// Package logging builds the zap loggers used by the CLI and core packages.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig configures NewLogger
type LoggerConfig struct {
	ServiceName   string
	Level         string // debug, info, warn, error
	Format        string // json or console
	IsDevelopment bool
	InitialFields []zap.Field

	// Output overrides the stderr sink when set.
	Output io.Writer
}

// NewLogger builds a logger from cfg
func NewLogger(cfg LoggerConfig) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoding := cfg.Format
	if encoding == "" {
		encoding = "console"
	}
	if encoding != "json" && encoding != "console" {
		return nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}

	fields := []zap.Field{
		zap.String("service", cfg.ServiceName),
		zap.Int("pid", os.Getpid()),
	}

	if cfg.Output != nil {
		var enc zapcore.Encoder
		if encoding == "json" {
			enc = zapcore.NewJSONEncoder(GetEncoderConfig(zapcore.DefaultLineEnding))
		} else {
			enc = zapcore.NewConsoleEncoder(GetEncoderConfig(zapcore.DefaultLineEnding))
		}
		core := zapcore.NewCore(enc, zapcore.AddSync(cfg.Output), level)
		return zap.New(core, zap.Fields(fields...), zap.Fields(cfg.InitialFields...)), nil
	}

	config := zap.Config{
		Level:             level,
		Development:       cfg.IsDevelopment,
		DisableStacktrace: !cfg.IsDevelopment,
		Sampling:          nil,
		Encoding:          encoding,
		EncoderConfig:     GetEncoderConfig(zapcore.DefaultLineEnding),
		OutputPaths: []string{
			"stderr",
		},
		ErrorOutputPaths: []string{
			"stderr",
		},
	}

	logger, err := config.Build(
		zap.Fields(fields...),
		zap.Fields(cfg.InitialFields...),
	)
	if err != nil {
		return nil, fmt.Errorf("error building logger: %w", err)
	}

	return logger, nil
}

// ParseLevel maps a level name to an atomic level. An empty name means info.
func ParseLevel(name string) (zap.AtomicLevel, error) {
	if name == "" {
		return zap.NewAtomicLevelAt(zap.InfoLevel), nil
	}
	level, err := zapcore.ParseLevel(strings.ToLower(name))
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return zap.NewAtomicLevelAt(level), nil
}

func GetEncoderConfig(lineEnding string) zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:       "timestamp",
		MessageKey:    "message",
		LevelKey:      "level",
		EncodeLevel:   zapcore.LowercaseLevelEncoder,
		NameKey:       "logger",
		StacktraceKey: "stacktrace",
		EncodeTime:    zapcore.RFC3339TimeEncoder,
		LineEnding:    lineEnding,
	}
}
