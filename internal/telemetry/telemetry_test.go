package telemetry

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestSetupDisabled(t *testing.T) {
	tests := []Config{
		{},
		{Enabled: true},
		{Enabled: false, Endpoint: "http://localhost:4318"},
	}
	for _, cfg := range tests {
		shutdown, err := Setup(context.Background(), cfg, zap.NewNop())
		if err != nil {
			t.Fatalf("Setup(%+v): %v", cfg, err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("noop shutdown: %v", err)
		}
	}
}

func TestSetupEnabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{
		Enabled:     true,
		Endpoint:    "http://127.0.0.1:1/v1/traces",
		SampleRatio: 0.5,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	// Nothing was exported, so shutdown does not need the collector.
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
