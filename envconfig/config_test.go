// config_test.go - Tests fuer die Environment-Konfiguration
package envconfig

import (
	"log/slog"
	"slices"
	"testing"
)

func TestHost(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"Default", "", "http://127.0.0.1:8642"},
		{"nur Port", ":9000", "http://:9000"},
		{"Host und Port", "0.0.0.0:9000", "http://0.0.0.0:9000"},
		{"nur Host", "example.com", "http://example.com:8642"},
		{"https ohne Port", "https://example.com", "https://example.com:443"},
		{"ungueltiger Port", "127.0.0.1:99999", "http://127.0.0.1:8642"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CORT_HOST", tt.value)
			if got := Host().String(); got != tt.want {
				t.Errorf("Host() = %v, erwartet %v", got, tt.want)
			}
		})
	}
}

func TestLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"1":     slog.LevelDebug,
		"true":  slog.LevelDebug,
		"2":     slog.Level(-8),
	}

	for value, want := range tests {
		t.Run(value, func(t *testing.T) {
			t.Setenv("CORT_DEBUG", value)
			if got := LogLevel(); got != want {
				t.Errorf("LogLevel() = %v, erwartet %v", got, want)
			}
		})
	}
}

func TestUint(t *testing.T) {
	t.Setenv("CORT_NUM_DEVICES", "")
	if got := NumDevices(); got != 1 {
		t.Errorf("Default NumDevices() = %d, erwartet 1", got)
	}

	t.Setenv("CORT_NUM_DEVICES", "4")
	if got := NumDevices(); got != 4 {
		t.Errorf("NumDevices() = %d, erwartet 4", got)
	}

	// Ungueltige Werte fallen auf den Default zurueck
	t.Setenv("CORT_NUM_DEVICES", "viele")
	if got := NumDevices(); got != 1 {
		t.Errorf("NumDevices() = %d, erwartet 1", got)
	}
}

func TestBool(t *testing.T) {
	tests := map[string]bool{
		"":      false,
		"0":     false,
		"false": false,
		"1":     true,
		"ja":    true,
	}

	for value, want := range tests {
		t.Run(value, func(t *testing.T) {
			t.Setenv("CORT_NO_TRACKING", value)
			if got := NoTracking(); got != want {
				t.Errorf("NoTracking() = %v, erwartet %v", got, want)
			}
		})
	}
}

func TestVar(t *testing.T) {
	t.Setenv("CORT_PROJECT", ` "CoRT-Sweep" `)
	if got := Project(); got != "CoRT-Sweep" {
		t.Errorf("Project() = %q, erwartet %q", got, "CoRT-Sweep")
	}

	if _, ok := AsMap()["CORT_PROJECT"]; !ok {
		t.Error("AsMap() enthaelt CORT_PROJECT nicht")
	}
}

func TestAllowedOrigins(t *testing.T) {
	t.Setenv("CORT_ORIGINS", "https://dashboard.example.com")

	origins := AllowedOrigins()
	if origins[0] != "https://dashboard.example.com" {
		t.Errorf("erwartet eigene Origin zuerst, bekommen %v", origins)
	}
	if !slices.Contains(origins, "http://127.0.0.1:*") {
		t.Errorf("localhost-Origins fehlen: %v", origins)
	}
}
