// cmd_train.go - Handler fuer den train Command
// Hauptfunktionen: TrainHandler, loadConfig, flagOverrides
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cortml/cort/config"
	"github.com/cortml/cort/finetune"
	"github.com/cortml/cort/train"
)

// summaryColumns sind die Spalten der Epochen-Tabelle nach dem Training
var summaryColumns = []string{
	"total_loss",
	"accuracy",
	"macro_f1_score",
	"val_total_loss",
	"val_accuracy",
	"val_macro_f1_score",
}

// flagName wandelt einen YAML-Schluessel in einen Flag-Namen
func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// optionKey wandelt einen Flag-Namen zurueck in den YAML-Schluessel
func optionKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// flagOverrides sammelt alle explizit gesetzten Options-Flags
func flagOverrides(flags *pflag.FlagSet) map[string]string {
	overrides := make(map[string]string)
	flags.Visit(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		overrides[optionKey(f.Name)] = f.Value.String()
	})
	return overrides
}

// loadConfig liest die Konfigurationsdatei (falls angegeben) und wendet die Flags an
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()

	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return cfg, err
	}

	if path != "" {
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}

	if err := cfg.Override(flagOverrides(cmd.Flags())); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// TrainHandler fuehrt einen Finetuning-Lauf aus und gibt danach die
// Epochen-Tabelle aus
func TrainHandler(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := finetune.Run(ctx, cfg, finetune.Options{Out: cmd.OutOrStdout()})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout())
	train.Summary(cmd.OutOrStdout(), result.History, summaryColumns)
	return nil
}
