package telemetry

import (
	"context"
	"testing"
	"time"

	"accounts-service/config"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
)

func TestInitDisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), config.Config{AppEnv: "test"})
	assert.NoError(t, err)
	assert.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
	assert.NotNil(t, otel.GetTextMapPropagator())
}

func TestEnabled(t *testing.T) {
	assert.False(t, Enabled(config.TelemetryConfig{}))
	assert.True(t, Enabled(config.TelemetryConfig{OTLPEndpoint: "collector:4317"}))
	assert.True(t, Enabled(config.TelemetryConfig{OTLPMetricsEndpoint: "collector:4318"}))
}

func TestEndpointsPreferPerSignalSettings(t *testing.T) {
	traces, metrics := endpoints(config.TelemetryConfig{OTLPEndpoint: "shared:4317"})
	assert.Equal(t, "shared:4317", traces)
	assert.Equal(t, "shared:4317", metrics)

	traces, metrics = endpoints(config.TelemetryConfig{
		OTLPEndpoint:       "shared:4317",
		OTLPTracesEndpoint: "traces:4317",
	})
	assert.Equal(t, "traces:4317", traces)
	assert.Equal(t, "shared:4317", metrics)
}

func TestInitHTTPExporters(t *testing.T) {
	cfg := config.Config{
		AppEnv: "test",
		Telemetry: config.TelemetryConfig{
			ServiceName:          "accounts-service",
			ServiceVersion:       "test",
			OTLPEndpoint:         "127.0.0.1:4318",
			OTLPProtocol:         "http/protobuf",
			OTLPInsecure:         true,
			ExportTimeout:        100 * time.Millisecond,
			MetricExportInterval: time.Hour,
		},
	}
	shutdown, err := Init(context.Background(), cfg)
	assert.NoError(t, err)

	// Nothing is listening, so flushing on shutdown may fail; it must return.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(ctx)
}
