package config

import (
	"fmt"
	"os"
	"strings"

	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log formats accepted by LoggingConfig.Format.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
	FormatLogfmt  = "logfmt"
)

// LoggingConfig selects the log encoder and the minimum level.
type LoggingConfig struct {
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"console"`
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// ValidateLogging normalizes cfg in place. Levels above error are refused;
// the daemon never logs at panic or fatal.
func ValidateLogging(cfg *LoggingConfig) error {
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	switch cfg.Format {
	case FormatConsole, FormatJSON, FormatLogfmt:
	default:
		return fmt.Errorf("logging format %q: want console, json or logfmt", cfg.Format)
	}

	level, err := zapcore.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil || level > zapcore.ErrorLevel {
		return fmt.Errorf("logging level %q: want debug, info, warn or error", cfg.Level)
	}
	cfg.Level = level.String()
	return nil
}

// NewLogger builds the process logger. All formats write to stderr so the
// CLI subcommands keep stdout for their own output.
func NewLogger(cfg *LoggingConfig) (*zap.Logger, error) {
	if err := ValidateLogging(cfg); err != nil {
		return nil, err
	}
	level, _ := zapcore.ParseLevel(cfg.Level)

	var zc zap.Config
	switch cfg.Format {
	case FormatLogfmt:
		// zap.Config has no logfmt encoding; build the core directly.
		ec := zap.NewProductionEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		ec.EncodeDuration = zapcore.StringDurationEncoder
		core := zapcore.NewCore(zaplogfmt.NewEncoder(ec), zapcore.Lock(os.Stderr), level)
		return zap.New(core, zap.AddCaller()), nil
	case FormatJSON:
		zc = zap.NewProductionConfig()
	default:
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
