// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - BoolWithDefault/Bool: Boolean-Getter mit Default-Wert
// - String: String-Getter
// - Uint: Integer-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// =============================================================================
// Boolean-Getter
// =============================================================================

// BoolWithDefault gibt eine Funktion zurueck, die einen Bool mit Default-Wert liest
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// =============================================================================
// String-Getter
// =============================================================================

// String gibt eine Funktion zurueck, die einen String liest
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// =============================================================================
// Integer-Getter
// =============================================================================

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"CORT_DEBUG":           {"CORT_DEBUG", LogLevel(), "Show additional debug information (e.g. CORT_DEBUG=1)"},
		"CORT_HOST":            {"CORT_HOST", Host(), "Address for the tracking API (default 127.0.0.1:8642)"},
		"CORT_ORIGINS":         {"CORT_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins for the tracking API"},
		"CORT_MODELS":          {"CORT_MODELS", Models(), "Directory checkpoints are written to (default \"models\")"},
		"CORT_TRACKING_DB":     {"CORT_TRACKING_DB", TrackingDB(), "Path of the experiment tracking database"},
		"CORT_PROJECT":         {"CORT_PROJECT", Project(), "Project name runs are tracked under (default \"CoRT\")"},
		"CORT_SWEEP_ID":        {"CORT_SWEEP_ID", SweepID(), "Sweep identifier attached to tracked runs"},
		"CORT_NO_TRACKING":     {"CORT_NO_TRACKING", NoTracking(), "Do not persist tracked runs"},
		"CORT_NUM_DEVICES":     {"CORT_NUM_DEVICES", NumDevices(), "Number of compute devices to expose as replicas"},
		"CORT_VISIBLE_DEVICES": {"CORT_VISIBLE_DEVICES", VisibleDevices(), "Comma separated list of visible device ids"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
