package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiestce/quiestce/instrumentation"
	"github.com/quiestce/quiestce/internal/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level   string
		format  string
		wantErr bool
	}{
		{"info", "text", false},
		{"debug", "json", false},
		{"WARN", "JSON", false},
		{"error", "", false},
		{"loud", "text", true},
		{"info", "xml", true},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := newLogger(&buf, tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			logger.Error("hello")
			assert.Contains(t, buf.String(), "hello")
		})
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
	assert.True(t, logger.Enabled(t.Context(), slog.LevelWarn))
}

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "quiestce "+version)
}

func TestServeCmd_BadConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"serve", "--config", "does-not-exist.toml"})
	assert.Error(t, cmd.Execute())
}

func TestHandlerConfig(t *testing.T) {
	cfg := &config.Config{BaseURL: "https://auth.example.com"}

	hc := handlerConfig(cfg, instrumentation.MetricsExporterNone)
	assert.Equal(t, "https://auth.example.com", hc.BaseURL)
	assert.InDelta(t, 10.0, hc.RateLimit.Rate, 0.001)
	assert.Equal(t, 1, hc.Security.TrustedProxyCount)
	assert.Nil(t, hc.MetricsGatherer)

	cfg.Security = config.Security{TrustProxy: true, TrustedProxyCount: 2, RateLimit: -1, RateLimitBurst: 5}
	hc = handlerConfig(cfg, instrumentation.MetricsExporterPrometheus)
	assert.True(t, hc.Security.TrustProxy)
	assert.Equal(t, 2, hc.Security.TrustedProxyCount)
	assert.Zero(t, hc.RateLimit.Rate)
	assert.Equal(t, 5, hc.RateLimit.Burst)
	assert.NotNil(t, hc.MetricsGatherer)
}
