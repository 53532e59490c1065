package telemetry

import (
	"context"
	"testing"
)

func TestDefaultConfigReadsEnvironment(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("OTEL_RESOURCE_ENVIRONMENT", "")
	t.Setenv("BOOKWIRE_ENV", "staging")

	cfg := DefaultConfig()
	if cfg.OTLPEndpoint != "localhost:4318" {
		t.Fatalf("expected default endpoint, got %s", cfg.OTLPEndpoint)
	}
	if cfg.ServiceName != "bookwire" {
		t.Fatalf("expected default service name, got %s", cfg.ServiceName)
	}
	if cfg.Environment != "staging" {
		t.Fatalf("expected env fallback to BOOKWIRE_ENV, got %s", cfg.Environment)
	}
}

func TestStripScheme(t *testing.T) {
	cases := map[string]string{
		"http://collector:4318":  "collector:4318",
		"https://collector:4318": "collector:4318",
		"collector:4318":         "collector:4318",
	}
	for in, want := range cases {
		if got := stripScheme(in); got != want {
			t.Fatalf("stripScheme(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDisabledProviderShutdownIsNoop(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false, Environment: "Dev"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown disabled provider: %v", err)
	}
	if Environment() != "dev" {
		t.Fatalf("expected lowered environment label, got %s", Environment())
	}
}

func TestHistogramViewsCoverOrderbookInstruments(t *testing.T) {
	views := createHistogramViews()
	if len(views) != 3 {
		t.Fatalf("expected three histogram views, got %d", len(views))
	}
}
