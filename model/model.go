// Package model - Modell-Registry und gemeinsame Modell-Funktionalitaet
//
// Dieses Paket stellt die Registrierung der Modell-Architekturen und die
// Basis-Implementierung fuer Parameter und Checkpoints bereit.
//
// Hauptkomponenten:
// - Base: Parameterliste und Laden/Speichern der Gewichte (safetensors)
// - Register: Registriert Modell-Konstruktoren
// - New: Erstellt eine neue Modell-Instanz fuer die Konfiguration

package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"

	"github.com/cortml/cort/config"
	"github.com/cortml/cort/fs/safetensors"
	"github.com/cortml/cort/ml"
)

// WeightsFile ist der Dateiname der Gewichte innerhalb eines Checkpoint-Verzeichnisses
const WeightsFile = "weights.safetensors"

// ErrUnsupportedModel wird fuer unbekannte Architekturen geliefert
var ErrUnsupportedModel = errors.New("model not supported")

// Base implementiert Parameters, SaveWeights und LoadWeights fuer alle Modelle.
// Die Parameter werden von New aus den cort-Tags der Modell-Struktur gesammelt.
type Base struct {
	params []*ml.Parameter
	dtype  ml.DType
}

// Parameters gibt die trainierbaren Parameter in stabiler Reihenfolge zurueck
func (m *Base) Parameters() []*ml.Parameter {
	return m.params
}

// SaveWeights schreibt alle Parameter nach dir/weights.safetensors
func (m *Base) SaveWeights(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}

	return safetensors.WriteFile(filepath.Join(dir, WeightsFile), m.params, m.dtype, map[string]string{
		"format":     "cort",
		"parameters": strconv.Itoa(len(m.params)),
	})
}

// LoadWeights laedt Gewichte aus einem Checkpoint-Verzeichnis oder einer
// safetensors-Datei
func (m *Base) LoadWeights(path string) error {
	if fi, err := os.Stat(path); err != nil {
		return err
	} else if fi.IsDir() {
		path = filepath.Join(path, WeightsFile)
	}

	return safetensors.LoadInto(path, m.params)
}

// models speichert registrierte Modell-Konstruktoren
var models = make(map[string]func(config.Config) (ml.Model, error))

// Register registriert einen Modell-Konstruktor fuer eine Architektur
func Register(name string, f func(config.Config) (ml.Model, error)) {
	if _, ok := models[name]; ok {
		panic("model: model already registered")
	}

	models[name] = f
}

// Names gibt die registrierten Architekturen sortiert zurueck
func Names() []string {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New erstellt das in cfg.Model konfigurierte Modell und sammelt seine Parameter
func New(cfg config.Config) (ml.Model, error) {
	f, ok := models[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnsupportedModel, cfg.Model, Names())
	}

	m, err := f(cfg)
	if err != nil {
		return nil, err
	}

	dtype, err := ml.ParseDType(cfg.CheckpointDType)
	if err != nil {
		return nil, err
	}

	v := reflect.ValueOf(m)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("model: %s constructor must return a struct pointer", cfg.Model)
	}

	base := Base{params: collectParameters(v.Elem()), dtype: dtype}
	if len(base.params) == 0 {
		return nil, fmt.Errorf("model: %s has no parameters", cfg.Model)
	}
	setBase(v.Elem(), base)

	return m, nil
}
