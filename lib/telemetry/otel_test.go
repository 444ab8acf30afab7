package telemetry

import (
	"context"
	"testing"

	"github.com/pimeys/tang-go/config"
)

func TestInitWithoutEndpointInstallsNoop(t *testing.T) {
	mp, shutdown, err := Init(context.Background(), config.TelemetryConfig{})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if mp == nil {
		t.Fatal("expected a meter provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown must not fail: %v", err)
	}
	// Instrument creation against the noop provider must be safe.
	if _, err := mp.Meter("test").Int64Counter("test.counter"); err != nil {
		t.Fatalf("noop meter rejected instrument: %v", err)
	}
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		raw      string
		host     string
		insecure bool
	}{
		{"https://collector:4318", "collector:4318", false},
		{"http://collector:4318", "collector:4318", true},
		{"collector:4318", "collector:4318", true},
	}
	for _, tc := range cases {
		host, insecure, err := parseEndpoint(tc.raw)
		if err != nil {
			t.Fatalf("parseEndpoint(%q): %v", tc.raw, err)
		}
		if host != tc.host || insecure != tc.insecure {
			t.Fatalf("parseEndpoint(%q) = (%q, %v), want (%q, %v)", tc.raw, host, insecure, tc.host, tc.insecure)
		}
	}
}
