// config.go - Laufkonfiguration fuer das CoRT-Finetuning
//
// Dieses Modul enthaelt:
// - Config: Alle Optionen eines Trainingslaufs (YAML-Tags)
// - Default: Standardwerte
// - Load: Laden aus einer YAML-Datei ueber den Defaults
// - Validate: Pruefung der Werte inkl. "did you mean" fuer cross_validation
// - Override: Einzelne Optionen aus Kommandozeilen-Flags setzen
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"reflect"
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"
	"gopkg.in/yaml.v3"

	"github.com/cortml/cort/ml"
)

// Cross-Validation-Strategien
const (
	KFold       = "kfold"
	Hyperparams = "hyperparams"
)

var strategies = []string{KFold, Hyperparams}

// ErrInvalidCrossValidation wird fuer unbekannte cross_validation-Werte geliefert
var ErrInvalidCrossValidation = errors.New("invalid cross validation strategy")

// Config beschreibt einen Trainingslauf
type Config struct {
	// Daten
	TrainPath      string `yaml:"train_path"`
	DynamicDatagen bool   `yaml:"dynamic_datagen"`
	NumProcesses   int    `yaml:"num_processes"`
	MaxLength      int    `yaml:"max_length"`

	// Cross-Validation
	CrossValidation string `yaml:"cross_validation"`
	NumKFold        int    `yaml:"num_k_fold"`
	CurrentFold     int    `yaml:"current_fold"`
	Seed            uint64 `yaml:"seed"`

	// Trainingsschleife
	BatchSize                 int  `yaml:"batch_size"`
	GradientAccumulationSteps int  `yaml:"gradient_accumulation_steps"`
	Epochs                    int  `yaml:"epochs"`
	InitialEpoch              int  `yaml:"initial_epoch"`
	SkipEarlyEval             bool `yaml:"skip_early_eval"`
	EarlyStoppingPatience     int  `yaml:"early_stopping_patience"`

	// Geraete
	Distribute bool   `yaml:"distribute"`
	GPU        string `yaml:"gpu"`

	// Modell
	Model             string  `yaml:"model"`
	IncludeSections   bool    `yaml:"include_sections"`
	NumLabels         int     `yaml:"num_labels"`
	NumSections       int     `yaml:"num_sections"`
	VocabSize         int     `yaml:"vocab_size"`
	EmbeddingSize     int     `yaml:"embedding_size"`
	ReprPreact        bool    `yaml:"repr_preact"`
	ContrastiveMargin float64 `yaml:"contrastive_margin"`

	// Optimizer
	LearningRate float64 `yaml:"learning_rate"`
	WarmupRate   float64 `yaml:"warmup_rate"`
	WeightDecay  float64 `yaml:"weight_decay"`

	// Checkpoints
	RestoreCheckpoint string `yaml:"restore_checkpoint"`
	CheckpointDType   string `yaml:"checkpoint_dtype"`
}

// Default liefert die Standardkonfiguration
func Default() Config {
	return Config{
		TrainPath:                 "data/train.csv",
		NumProcesses:              4,
		MaxLength:                 512,
		CrossValidation:           KFold,
		NumKFold:                  10,
		Seed:                      42,
		BatchSize:                 32,
		GradientAccumulationSteps: 1,
		Epochs:                    10,
		GPU:                       "all",
		Model:                     "cort",
		NumLabels:                 2,
		NumSections:               1,
		VocabSize:                 32000,
		EmbeddingSize:             64,
		ContrastiveMargin:         1,
		LearningRate:              5e-5,
		WarmupRate:                0.06,
		WeightDecay:               0.01,
		CheckpointDType:           "f32",
	}
}

// Load liest eine YAML-Datei ueber die Defaults. Unbekannte Schluessel sind ein Fehler.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate prueft die Konfiguration und liefert den ersten Fehler
func (c Config) Validate() error {
	if err := ValidateCrossValidation(c.CrossValidation); err != nil {
		return err
	}

	positive := []struct {
		name  string
		value int
	}{
		{"batch_size", c.BatchSize},
		{"gradient_accumulation_steps", c.GradientAccumulationSteps},
		{"epochs", c.Epochs},
		{"num_processes", c.NumProcesses},
		{"max_length", c.MaxLength},
		{"num_labels", c.NumLabels},
		{"vocab_size", c.VocabSize},
		{"embedding_size", c.EmbeddingSize},
	}
	if c.IncludeSections {
		positive = append(positive, struct {
			name  string
			value int
		}{"num_sections", c.NumSections})
	}

	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}

	switch {
	case c.InitialEpoch < 0 || c.InitialEpoch > c.Epochs:
		return fmt.Errorf("initial_epoch %d outside [0, %d]", c.InitialEpoch, c.Epochs)
	case c.CrossValidation == KFold && c.NumKFold < 2:
		return fmt.Errorf("num_k_fold must be at least 2, got %d", c.NumKFold)
	case c.EarlyStoppingPatience < 0:
		return fmt.Errorf("early_stopping_patience must not be negative, got %d", c.EarlyStoppingPatience)
	case c.LearningRate <= 0 || math.IsNaN(c.LearningRate):
		return fmt.Errorf("learning_rate must be positive, got %v", c.LearningRate)
	case c.WarmupRate < 0 || c.WarmupRate > 1:
		return fmt.Errorf("warmup_rate must be in [0, 1], got %v", c.WarmupRate)
	}

	if _, err := ml.ParseDType(c.CheckpointDType); err != nil {
		return fmt.Errorf("checkpoint_dtype: %w", err)
	}

	return nil
}

// ValidateCrossValidation prueft den Namen der Strategie und schlaegt bei
// Tippfehlern den naechstliegenden gueltigen Namen vor
func ValidateCrossValidation(name string) error {
	for _, s := range strategies {
		if name == s {
			return nil
		}
	}

	best, score := "", math.MaxInt
	for _, s := range strategies {
		if d := levenshtein.ComputeDistance(strings.ToLower(name), s); d < score {
			best, score = s, d
		}
	}

	if score <= 3 {
		return fmt.Errorf("%w %q, did you mean %q?", ErrInvalidCrossValidation, name, best)
	}

	return fmt.Errorf("%w %q, expected one of %s", ErrInvalidCrossValidation, name, strings.Join(strategies, ", "))
}

// Keys liefert die YAML-Schluessel aller Optionen in Feld-Reihenfolge
func Keys() []string {
	t := reflect.TypeOf(Config{})
	keys := make([]string, 0, t.NumField())
	for i := range t.NumField() {
		if key, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ","); key != "" && key != "-" {
			keys = append(keys, key)
		}
	}
	return keys
}

// Override setzt einzelne Optionen aus Strings, z.B. aus Kommandozeilen-Flags.
// Die Werte werden wie YAML-Skalare interpretiert.
func (c *Config) Override(values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	known := Keys()
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, key := range slices.Sorted(maps.Keys(values)) {
		if !slices.Contains(known, key) {
			return fmt.Errorf("unknown option %q", key)
		}

		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: values[key]},
		)
	}

	if err := node.Decode(c); err != nil {
		return fmt.Errorf("override options: %w", err)
	}

	return nil
}
