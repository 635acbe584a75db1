package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielfsbarreto/crewai-expert/internal/config"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, ProtocolGRPC, cfg.Protocol)
	assert.Equal(t, "docindex", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Equal(t, 15*time.Second, cfg.Metrics.ExportInterval.Duration())
	require.NoError(t, cfg.Validate())

	cfg.Enabled = true
	require.NoError(t, cfg.Validate(), "defaults must also be valid once enabled")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "disabled ignores everything", mutate: func(c *Config) { c.Enabled = false; c.Endpoint = ""; c.SampleRate = 7 }},
		{name: "http protocol", mutate: func(c *Config) { c.Protocol = ProtocolHTTP; c.Endpoint = "localhost:4318" }},
		{name: "remote with tls", mutate: func(c *Config) { c.Insecure = false; c.Endpoint = "collector.example.com:4317" }},
		{name: "insecure ipv6 loopback", mutate: func(c *Config) { c.Endpoint = "[::1]:4317" }},
		{name: "insecure with scheme", mutate: func(c *Config) { c.Endpoint = "http://127.0.0.1:4318" }},
		{name: "missing endpoint", mutate: func(c *Config) { c.Endpoint = "" }, wantErr: "endpoint is required"},
		{name: "missing service name", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: "service_name"},
		{name: "unknown protocol", mutate: func(c *Config) { c.Protocol = "udp" }, wantErr: "protocol must be"},
		{name: "insecure remote", mutate: func(c *Config) { c.Endpoint = "collector.example.com:4317" }, wantErr: "insecure export"},
		{name: "sample rate too high", mutate: func(c *Config) { c.SampleRate = 1.5 }, wantErr: "sample_rate"},
		{name: "negative sample rate", mutate: func(c *Config) { c.SampleRate = -0.1 }, wantErr: "sample_rate"},
		{name: "zero export interval", mutate: func(c *Config) { c.Metrics.ExportInterval = 0 }, wantErr: "export_interval"},
		{name: "zero interval with metrics off", mutate: func(c *Config) { c.Metrics.Enabled = false; c.Metrics.ExportInterval = 0 }},
		{name: "zero shutdown timeout", mutate: func(c *Config) { c.ShutdownTimeout = config.Duration(0) }, wantErr: "shutdown_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Enabled = true
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIsLoopback(t *testing.T) {
	tests := []struct {
		endpoint string
		want     bool
	}{
		{"localhost:4317", true},
		{"LOCALHOST", true},
		{"127.0.0.1:4317", true},
		{"127.8.0.1", true},
		{"[::1]:4317", true},
		{"https://localhost:4318/v1/traces", true},
		{"localhost.example.com:4317", false},
		{"10.0.0.5:4317", false},
		{"collector:4317", false},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			assert.Equal(t, tt.want, isLoopback(tt.endpoint))
		})
	}
}
