package observability

import (
	"context"
	"testing"

	"github.com/veritail/veritail/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.OtelConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if shutdown == nil {
		t.Fatal("Setup() returned nil shutdown")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestSetupEnabled(t *testing.T) {
	// Exporter creation does not dial the endpoint, so this succeeds even
	// without a collector running.
	shutdown, err := Setup(context.Background(), config.OtelConfig{
		Enabled:     true,
		Endpoint:    "localhost:4318",
		ServiceName: "veritail-test",
		Environment: "test",
	})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if shutdown == nil {
		t.Fatal("Setup() returned nil shutdown")
	}
}
