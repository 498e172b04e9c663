// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cortml/cort/envconfig"
	"github.com/cortml/cort/logutil"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "cort",
		Short:         "Contrastive representation fine-tuning",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(*cobra.Command, []string) {
			slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	trainCmd := newTrainCmd()
	serveCmd := newServeCmd()
	runsCmd := newRunsCmd()

	envVars := envconfig.AsMap()
	appendEnvDocs(trainCmd, []envconfig.EnvVar{
		envVars["CORT_DEBUG"],
		envVars["CORT_MODELS"],
		envVars["CORT_TRACKING_DB"],
		envVars["CORT_PROJECT"],
		envVars["CORT_SWEEP_ID"],
		envVars["CORT_NO_TRACKING"],
		envVars["CORT_NUM_DEVICES"],
		envVars["CORT_VISIBLE_DEVICES"],
	})
	appendEnvDocs(serveCmd, []envconfig.EnvVar{
		envVars["CORT_DEBUG"],
		envVars["CORT_HOST"],
		envVars["CORT_ORIGINS"],
		envVars["CORT_TRACKING_DB"],
	})
	for _, c := range runsCmd.Commands() {
		appendEnvDocs(c, []envconfig.EnvVar{envVars["CORT_TRACKING_DB"], envVars["CORT_HOST"]})
	}

	rootCmd.AddCommand(
		trainCmd,
		serveCmd,
		runsCmd,
	)

	return rootCmd
}
