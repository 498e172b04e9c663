// cmd_builders.go - Command-Builder
// Hauptfunktionen: newTrainCmd, newServeCmd, newRunsCmd
package cmd

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cortml/cort/config"
)

// newTrainCmd - Erstellt den train Command. Jede Option aus config.Config
// ist zusaetzlich als Flag verfuegbar und ueberschreibt die Datei.
func newTrainCmd() *cobra.Command {
	trainCmd := &cobra.Command{
		Use:   "train [flags]",
		Short: "Fine-tune a CoRT model on one fold",
		Args:  cobra.NoArgs,
		RunE:  TrainHandler,
	}

	trainCmd.Flags().StringP("config", "c", "", "YAML file with run options")
	addConfigFlags(trainCmd)

	return trainCmd
}

// addConfigFlags registriert ein Flag pro Option, benannt nach dem YAML-Schluessel
// mit Bindestrichen und mit dem Default-Wert als Vorgabe
func addConfigFlags(cmd *cobra.Command) {
	defaults := reflect.ValueOf(config.Default())
	for i := range defaults.NumField() {
		key, _, _ := strings.Cut(defaults.Type().Field(i).Tag.Get("yaml"), ",")
		if key == "" || key == "-" {
			continue
		}

		name := flagName(key)
		usage := fmt.Sprintf("Override %q", key)
		switch v := defaults.Field(i); v.Kind() {
		case reflect.Bool:
			cmd.Flags().Bool(name, v.Bool(), usage)
		case reflect.Int:
			cmd.Flags().Int(name, int(v.Int()), usage)
		case reflect.Uint64:
			cmd.Flags().Uint64(name, v.Uint(), usage)
		case reflect.Float64:
			cmd.Flags().Float64(name, v.Float(), usage)
		default:
			cmd.Flags().String(name, v.String(), usage)
		}
	}
}

// newServeCmd - Erstellt den serve Command
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the tracking API",
		Args:    cobra.NoArgs,
		RunE:    RunServer,
	}
}

// newRunsCmd - Erstellt den runs Command mit list, show und rm
func newRunsCmd() *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect tracked runs",
	}
	runsCmd.PersistentFlags().Bool("remote", false, "Query the tracking API at CORT_HOST instead of the local database")

	listCmd := &cobra.Command{
		Use:     "list [NAME]",
		Aliases: []string{"ls"},
		Short:   "List tracked runs",
		Args:    cobra.MaximumNArgs(1),
		RunE:    ListRunsHandler,
	}
	listCmd.Flags().String("sweep", "", "Only show runs of this sweep")

	showCmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a run with its summary and checkpoints",
		Args:  cobra.ExactArgs(1),
		RunE:  ShowRunHandler,
	}
	showCmd.Flags().String("key", "", "Print the history of one logged scalar")

	rmCmd := &cobra.Command{
		Use:   "rm RUN_ID [RUN_ID...]",
		Short: "Remove tracked runs from the local database",
		Args:  cobra.MinimumNArgs(1),
		RunE:  DeleteRunHandler,
	}

	runsCmd.AddCommand(listCmd, showCmd, rmCmd)
	return runsCmd
}
