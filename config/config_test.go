package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	content := `
train_path: data/small.csv
batch_size: 8
gradient_accumulation_steps: 4
include_sections: true
num_sections: 3
cross_validation: hyperparams
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "data/small.csv", cfg.TrainPath)
	require.Equal(t, 8, cfg.BatchSize)
	require.Equal(t, 4, cfg.GradientAccumulationSteps)
	require.True(t, cfg.IncludeSections)
	require.Equal(t, Hyperparams, cfg.CrossValidation)

	// nicht gesetzte Werte behalten die Defaults
	require.Equal(t, Default().Epochs, cfg.Epochs)
	require.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "fehlt.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batchsize: 3\n"), 0o644))
	_, err = Load(path)
	require.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	cfg, err := Load(empty)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"Defaults", func(*Config) {}, ""},
		{"batch_size null", func(c *Config) { c.BatchSize = 0 }, "batch_size"},
		{"accumulation negativ", func(c *Config) { c.GradientAccumulationSteps = -1 }, "gradient_accumulation_steps"},
		{"initial_epoch zu gross", func(c *Config) { c.InitialEpoch = c.Epochs + 1 }, "initial_epoch"},
		{"sections ohne Klassen", func(c *Config) { c.IncludeSections = true; c.NumSections = 0 }, "num_sections"},
		{"sections deaktiviert", func(c *Config) { c.NumSections = 0 }, ""},
		{"zu wenige Folds", func(c *Config) { c.NumKFold = 1 }, "num_k_fold"},
		{"Folds bei hyperparams egal", func(c *Config) { c.CrossValidation = Hyperparams; c.NumKFold = 0 }, ""},
		{"unbekannter dtype", func(c *Config) { c.CheckpointDType = "int8" }, "checkpoint_dtype"},
		{"warmup ausserhalb", func(c *Config) { c.WarmupRate = 1.5 }, "warmup_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateCrossValidation(t *testing.T) {
	tests := []struct {
		name    string
		suggest string
	}{
		{"kfold", ""},
		{"hyperparams", ""},
		{"kfodl", `did you mean "kfold"`},
		{"hyperparam", `did you mean "hyperparams"`},
		{"KFOLD", `did you mean "kfold"`},
		{"bayesian", "expected one of"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCrossValidation(tt.name)
			if tt.suggest == "" {
				if err != nil {
					t.Fatalf("unerwarteter Fehler: %v", err)
				}
				return
			}

			if !errors.Is(err, ErrInvalidCrossValidation) {
				t.Fatalf("Fehler %v ist nicht ErrInvalidCrossValidation", err)
			}
			if !strings.Contains(err.Error(), tt.suggest) {
				t.Errorf("Fehler %q enthaelt %q nicht", err, tt.suggest)
			}
		})
	}
}

func TestKeys(t *testing.T) {
	keys := Keys()
	require.Equal(t, "train_path", keys[0])
	require.Contains(t, keys, "gradient_accumulation_steps")
	require.Contains(t, keys, "checkpoint_dtype")
}

func TestOverride(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Override(map[string]string{
		"batch_size":       "16",
		"include_sections": "true",
		"gpu":              "1",
		"learning_rate":    "2e-5",
		"seed":             "7",
	}))

	require.Equal(t, 16, cfg.BatchSize)
	require.True(t, cfg.IncludeSections)
	require.Equal(t, "1", cfg.GPU)
	require.Equal(t, 2e-5, cfg.LearningRate)
	require.Equal(t, uint64(7), cfg.Seed)
	require.Equal(t, Default().Epochs, cfg.Epochs)

	require.ErrorContains(t, cfg.Override(map[string]string{"batchsize": "1"}), "unknown option")
	require.Error(t, cfg.Override(map[string]string{"epochs": "viele"}))
	require.NoError(t, cfg.Override(nil))
}
