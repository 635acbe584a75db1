package logging

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const instrumentationName = "github.com/danielfsbarreto/crewai-expert"

// newCore tees the console and OTEL outputs and applies sampling.
func newCore(cfg *Config, otelProvider log.LoggerProvider, console zapcore.WriteSyncer) (zapcore.Core, error) {
	r, err := newRedactor(cfg.Redaction)
	if err != nil {
		return nil, fmt.Errorf("failed to create redactor: %w", err)
	}

	cores := make([]zapcore.Core, 0, 2)

	if cfg.Output.Console {
		enc := newRedactingEncoder(newEncoder(cfg.Format), r)
		cores = append(cores, zapcore.NewCore(enc, console, cfg.Level))
	}

	if cfg.Output.OTEL && otelProvider != nil {
		otelCore := otelzap.NewCore(instrumentationName, otelzap.WithLoggerProvider(otelProvider))
		cores = append(cores, &levelRange{
			Core: newRedactingCore(otelCore, r),
			min:  cfg.Level,
			max:  zapcore.FatalLevel,
		})
	}

	if len(cores) == 0 {
		return nil, errors.New("at least one output must be enabled and available")
	}

	core := zapcore.NewTee(cores...)
	if !cfg.Sampling.Enabled {
		return core, nil
	}

	// Errors bypass the sampler.
	return zapcore.NewTee(
		&levelRange{Core: core, min: zapcore.ErrorLevel, max: zapcore.FatalLevel},
		zapcore.NewSamplerWithOptions(
			&levelRange{Core: core, min: zapcore.DebugLevel, max: zapcore.WarnLevel},
			cfg.Sampling.Tick.Duration(),
			cfg.Sampling.Initial,
			cfg.Sampling.Thereafter,
		),
	), nil
}

func newEncoder(format string) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewJSONEncoder(encCfg)
}

// levelRange passes entries whose level lies in [min, max].
type levelRange struct {
	zapcore.Core
	min, max zapcore.Level
}

func (c *levelRange) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.min && lvl <= c.max && c.Core.Enabled(lvl)
}

func (c *levelRange) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelRange) With(fields []zapcore.Field) zapcore.Core {
	return &levelRange{Core: c.Core.With(fields), min: c.min, max: c.max}
}
