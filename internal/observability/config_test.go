package observability

import (
	"testing"

	"github.com/smallbiznis/shelfpay/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigMapsProcessConfig(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppVersion:        " 1.2.3 ",
		Environment:       "staging",
		LogLevel:          "warn",
		LogFormat:         "console",
		OtelEnabled:       true,
		OTLPEndpoint:      "collector:4318",
		OTLPProtocol:      "http/protobuf",
		OtelSamplingRatio: 0.25,
	})

	assert.Equal(t, "shelfpay", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, "collector:4318", cfg.OtelExporterEndpoint)
	assert.Equal(t, "http/protobuf", cfg.OtelExporterProtocol)
	assert.Equal(t, 0.25, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigSamplingBounds(t *testing.T) {
	assert.Equal(t, 0.1, LoadConfig(config.Config{OtelSamplingRatio: 3}).OtelSamplingRatio)
	assert.Equal(t, 0.01, LoadConfig(config.Config{Environment: "production", OtelEnabled: true}).OtelSamplingRatio)
	assert.Equal(t, 0.0, LoadConfig(config.Config{Environment: "staging", OtelEnabled: true}).OtelSamplingRatio)
}

func TestDebug(t *testing.T) {
	assert.True(t, Config{LogLevel: "DEBUG", Environment: "production"}.Debug())
	assert.True(t, Config{Environment: "local"}.Debug())
	assert.False(t, Config{Environment: "production", LogLevel: "info"}.Debug())
}
