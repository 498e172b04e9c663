// config_features.go - Geraete- und Sweep-Konfiguration
//
// Dieses Modul enthaelt:
// - Geraete-bezogene Environment-Variablen
// - Sweep-Kennungen fuer das Experiment-Tracking
package envconfig

// =============================================================================
// Geraete-Variablen
// =============================================================================

var (
	// NumDevices setzt die Anzahl der Compute-Geraete (Replikas)
	// Die Threads der CPU werden gleichmaessig auf die Geraete verteilt
	NumDevices = Uint("CORT_NUM_DEVICES", 1)

	// VisibleDevices schraenkt die sichtbaren Geraete ein (komma-separierte IDs)
	VisibleDevices = String("CORT_VISIBLE_DEVICES")
)

// =============================================================================
// Tracking-Variablen
// =============================================================================

var (
	// SweepID ordnet einen Lauf einem Hyperparameter-Sweep zu
	SweepID = String("CORT_SWEEP_ID")

	// NoTracking deaktiviert das persistente Experiment-Tracking
	NoTracking = Bool("CORT_NO_TRACKING")
)
