package logging

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/danielfsbarreto/crewai-expert/internal/config"
)

// Config controls the process logger. It is read from the "logging" section
// of the docindex configuration.
type Config struct {
	Level     zapcore.Level     `koanf:"level"`
	Format    string            `koanf:"format"` // "json" or "console"
	Output    OutputConfig      `koanf:"output"`
	Sampling  SamplingConfig    `koanf:"sampling"`
	Caller    bool              `koanf:"caller"`
	Fields    map[string]string `koanf:"fields"`
	Redaction RedactionConfig   `koanf:"redaction"`
}

// OutputConfig selects where entries go.
type OutputConfig struct {
	Console bool `koanf:"console"`

	// Stderr sends the console stream to stderr instead of stdout, keeping
	// stdout free for command output and the MCP stdio transport.
	Stderr bool `koanf:"stderr"`

	// OTEL forwards entries to the OpenTelemetry LoggerProvider. It has no
	// effect while telemetry log export is off.
	OTEL bool `koanf:"otel"`
}

// SamplingConfig limits repeated entries below error level. Per tick, the
// first Initial entries with the same level and message are kept, then every
// Thereafter-th.
type SamplingConfig struct {
	Enabled    bool            `koanf:"enabled"`
	Tick       config.Duration `koanf:"tick"`
	Initial    int             `koanf:"initial"`
	Thereafter int             `koanf:"thereafter"`
}

// RedactionConfig lists what is masked before entries reach any output.
type RedactionConfig struct {
	Enabled bool `koanf:"enabled"`

	// Keys are field names whose string values are replaced. A dotted key
	// such as "qdrant.api_key" matches on its last segment.
	Keys []string `koanf:"keys"`

	// Patterns are replaced wherever they occur inside string values.
	Patterns []string `koanf:"patterns"`
}

// NewDefaultConfig returns the configuration used when none is given.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: OutputConfig{Console: true, OTEL: true},
		Sampling: SamplingConfig{
			Enabled:    true,
			Tick:       config.Duration(time.Second),
			Initial:    100,
			Thereafter: 10,
		},
		Caller: true,
		Fields: map[string]string{"service": "docindex"},
		Redaction: RedactionConfig{
			Enabled: true,
			Keys:    []string{"api_key", "auth_key", "authorization", "token", "password", "secret"},
			Patterns: []string{
				`sk-[A-Za-z0-9_-]{16,}`,
				`gh[pousr]_[A-Za-z0-9]{20,}`,
				`github_pat_[A-Za-z0-9_]{20,}`,
				`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`,
			},
		},
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if !c.Output.Console && !c.Output.OTEL {
		return errors.New("at least one output must be enabled (console or otel)")
	}
	if c.Sampling.Enabled {
		if c.Sampling.Tick.Duration() <= 0 {
			return errors.New("sampling tick must be > 0 when sampling is enabled")
		}
		if c.Sampling.Initial < 1 || c.Sampling.Thereafter < 0 {
			return fmt.Errorf("sampling initial must be >= 1 and thereafter >= 0, got %d/%d",
				c.Sampling.Initial, c.Sampling.Thereafter)
		}
	}
	for k, v := range c.Fields {
		if k == "" || v == "" {
			return fmt.Errorf("constant field %q must have a non-empty key and value", k)
		}
	}
	if c.Redaction.Enabled {
		for _, p := range c.Redaction.Patterns {
			if len(p) > 200 {
				return fmt.Errorf("redaction pattern too long (max 200 chars): %q", p)
			}
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("invalid redaction pattern %q: %w", p, err)
			}
		}
	}
	return nil
}
