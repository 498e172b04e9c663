// config.go - Haupt-Konfigurationsfunktionen fuer cort
//
// Dieses Modul enthaelt:
// - Host: Gibt Scheme und Host fuer die Tracking-API zurueck (CORT_HOST)
// - AllowedOrigins: Gibt erlaubte CORS-Origins zurueck (CORT_ORIGINS)
// - Models: Gibt das Checkpoint-Verzeichnis zurueck (CORT_MODELS)
// - TrackingDB: Gibt den Pfad der Tracking-Datenbank zurueck (CORT_TRACKING_DB)
// - Project: Gibt den Projektnamen fuer das Tracking zurueck (CORT_PROJECT)
// - LogLevel: Gibt Log-Level zurueck (CORT_DEBUG)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_features.go: Geraete- und Sweep-Variablen
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Host gibt Scheme und Host der Tracking-API zurueck
// Konfigurierbar via CORT_HOST
// Default: http://127.0.0.1:8642
func Host() *url.URL {
	defaultPort := "8642"

	s := strings.TrimSpace(Var("CORT_HOST"))
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// AllowedOrigins gibt die erlaubten CORS-Origins der Tracking-API zurueck
// Konfigurierbar via CORT_ORIGINS (komma-separiert)
// localhost-Varianten sind immer erlaubt
func AllowedOrigins() (origins []string) {
	if s := Var("CORT_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	return origins
}

// Models gibt das Verzeichnis fuer Checkpoints zurueck
// Konfigurierbar via CORT_MODELS
// Default: ./models
func Models() string {
	if s := Var("CORT_MODELS"); s != "" {
		return s
	}

	return "models"
}

// TrackingDB gibt den Pfad der SQLite-Datenbank fuer das Experiment-Tracking zurueck
// Konfigurierbar via CORT_TRACKING_DB
// Default: $HOME/.cort/tracking.sqlite
func TrackingDB() string {
	if s := Var("CORT_TRACKING_DB"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}

	return filepath.Join(home, ".cort", "tracking.sqlite")
}

// Project gibt den Projektnamen fuer das Tracking zurueck
// Konfigurierbar via CORT_PROJECT
// Default: CoRT
func Project() string {
	if s := Var("CORT_PROJECT"); s != "" {
		return s
	}

	return "CoRT"
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via CORT_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("CORT_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
