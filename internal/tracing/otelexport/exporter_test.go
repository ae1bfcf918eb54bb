package otelexport

import (
	"context"
	"testing"
)

func TestNew_EmptyEndpoint(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil {
		t.Error("expected error for empty endpoint")
	}
}

func TestExporter_Shutdown_NilExporter(t *testing.T) {
	var exp *Exporter
	if err := exp.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExporter_Install_NilExporter(t *testing.T) {
	// Should not panic
	var exp *Exporter
	exp.Install()
}

func TestConfig_DefaultServiceName(t *testing.T) {
	if got := (Config{Endpoint: "localhost:4317"}).serviceName(); got != "memoria" {
		t.Errorf("serviceName() = %q, want memoria", got)
	}
	if got := (Config{ServiceName: "recall"}).serviceName(); got != "recall" {
		t.Errorf("serviceName() = %q, want recall", got)
	}
}

func TestNew_HTTPProtocol(t *testing.T) {
	// The HTTP exporter connects lazily, so construction succeeds offline.
	exp, err := New(context.Background(), Config{
		Endpoint: "localhost:4318",
		Protocol: "http",
		Insecure: true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := exp.Shutdown(context.Background()); err != nil {
		t.Logf("shutdown: %v", err)
	}
}
