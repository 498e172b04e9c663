// cmd_runs.go - Handler fuer runs list, show und rm
// Hauptfunktionen: ListRunsHandler, ShowRunHandler, DeleteRunHandler
package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cortml/cort/api"
	"github.com/cortml/cort/envconfig"
	"github.com/cortml/cort/store"
)

// runSource liefert getrackte Laeufe, lokal aus der Datenbank oder ueber die Tracking-API
type runSource interface {
	Runs(ctx context.Context, sweep string) ([]api.Run, error)
	Run(ctx context.Context, id string) (*api.Run, error)
	Scalars(ctx context.Context, id, key string) ([]api.Scalar, error)
	Artifacts(ctx context.Context, id string) ([]api.Artifact, error)
	Close() error
}

type localSource struct {
	*store.Store
}

func (s localSource) Runs(_ context.Context, sweep string) ([]api.Run, error) {
	runs, err := s.Store.Runs()
	if err != nil || sweep == "" {
		return runs, err
	}

	return slices.DeleteFunc(runs, func(r api.Run) bool { return r.SweepID != sweep }), nil
}

func (s localSource) Run(_ context.Context, id string) (*api.Run, error) {
	return s.Store.Run(id)
}

func (s localSource) Scalars(_ context.Context, id, key string) ([]api.Scalar, error) {
	return s.Store.Scalars(id, key)
}

func (s localSource) Artifacts(_ context.Context, id string) ([]api.Artifact, error) {
	return s.Store.Artifacts(id)
}

type remoteSource struct {
	client *api.Client
}

func (s remoteSource) Runs(ctx context.Context, sweep string) ([]api.Run, error) {
	resp, err := s.client.Runs(ctx, sweep)
	if err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

func (s remoteSource) Run(ctx context.Context, id string) (*api.Run, error) {
	return s.client.Run(ctx, id)
}

func (s remoteSource) Scalars(ctx context.Context, id, key string) ([]api.Scalar, error) {
	resp, err := s.client.Scalars(ctx, id, key)
	if err != nil {
		return nil, err
	}
	return resp.Scalars, nil
}

func (s remoteSource) Artifacts(ctx context.Context, id string) ([]api.Artifact, error) {
	resp, err := s.client.Checkpoints(ctx, id)
	if err != nil {
		return nil, err
	}
	return resp.Checkpoints, nil
}

func (remoteSource) Close() error { return nil }

// openRuns waehlt die Quelle anhand von --remote
func openRuns(cmd *cobra.Command) (runSource, error) {
	remote, err := cmd.Flags().GetBool("remote")
	if err != nil {
		return nil, err
	}

	if !remote {
		return localSource{&store.Store{}}, nil
	}

	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, err
	}

	if err := client.Heartbeat(cmd.Context()); err != nil {
		return nil, fmt.Errorf("tracking API at %s not reachable: %w", envconfig.Host(), err)
	}

	return remoteSource{client}, nil
}

// ListRunsHandler - Listet alle getrackten Laeufe
func ListRunsHandler(cmd *cobra.Command, args []string) error {
	src, err := openRuns(cmd)
	if err != nil {
		return err
	}
	defer src.Close()

	sweep, err := cmd.Flags().GetString("sweep")
	if err != nil {
		return err
	}

	runs, err := src.Runs(cmd.Context(), sweep)
	if err != nil {
		return err
	}

	var data [][]string
	for _, r := range runs {
		if len(args) > 0 && !strings.HasPrefix(strings.ToLower(r.Name), strings.ToLower(args[0])) {
			continue
		}

		data = append(data, []string{r.Name, r.ID, r.SweepID, r.State, humanTime(r.CreatedAt, "Never")})
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"NAME", "ID", "SWEEP", "STATE", "CREATED"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoFormatHeaders(false)
	table.AppendBulk(data)
	table.Render()

	return nil
}

// ShowRunHandler - Zeigt einen Lauf mit Summary und Checkpoints.
// Mit --key wird stattdessen der Verlauf eines Skalars ausgegeben.
func ShowRunHandler(cmd *cobra.Command, args []string) error {
	src, err := openRuns(cmd)
	if err != nil {
		return err
	}
	defer src.Close()

	run, err := src.Run(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	key, err := cmd.Flags().GetString("key")
	if err != nil {
		return err
	}

	if key != "" {
		scalars, err := src.Scalars(cmd.Context(), run.ID, key)
		if err != nil {
			return err
		}

		rows := make([][]string, 0, len(scalars))
		for _, s := range scalars {
			rows = append(rows, []string{strconv.Itoa(s.Step), strconv.FormatFloat(s.Value, 'f', 4, 64)})
		}
		tableRender(cmd.OutOrStdout(), strings.ToUpper(key), rows)
		return nil
	}

	artifacts, err := src.Artifacts(cmd.Context(), run.ID)
	if err != nil {
		return err
	}

	showRun(cmd.OutOrStdout(), run, artifacts)
	return nil
}

func showRun(w io.Writer, run *api.Run, artifacts []api.Artifact) {
	finished := "-"
	if run.FinishedAt != nil {
		finished = humanTime(*run.FinishedAt, "-")
	}

	tableRender(w, "Run", [][]string{
		{"", "id", run.ID},
		{"", "name", run.Name},
		{"", "project", run.Project},
		{"", "sweep", run.SweepID},
		{"", "state", run.State},
		{"", "created", humanTime(run.CreatedAt, "Never")},
		{"", "finished", finished},
	})

	if len(run.Summary) > 0 {
		rows := make([][]string, 0, len(run.Summary))
		for _, k := range slices.Sorted(maps.Keys(run.Summary)) {
			rows = append(rows, []string{"", k, strconv.FormatFloat(run.Summary[k], 'f', 4, 64)})
		}
		tableRender(w, "Summary", rows)
	}

	if len(artifacts) > 0 {
		rows := make([][]string, 0, len(artifacts))
		for _, a := range artifacts {
			rows = append(rows, []string{"", a.Name, a.Path, "step " + strconv.Itoa(a.Step)})
		}
		tableRender(w, "Checkpoints", rows)
	}
}

// tableRender schreibt einen Abschnitt mit Ueberschrift und eingerueckten Zeilen
func tableRender(w io.Writer, header string, rows [][]string) {
	fmt.Fprintln(w, " ", header)
	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(rows)
	table.Render()
	fmt.Fprintln(w)
}

// DeleteRunHandler - Loescht Laeufe aus dem Store
func DeleteRunHandler(cmd *cobra.Command, args []string) error {
	st := &store.Store{}
	defer st.Close()

	for _, id := range args {
		if err := st.DeleteRun(id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted '%s'\n", id)
	}

	return nil
}

// humanTime formatiert einen Zeitpunkt relativ zu jetzt
func humanTime(t time.Time, zeroValue string) string {
	if t.IsZero() {
		return zeroValue
	}

	d := time.Since(t)
	switch {
	case d < 0:
		return t.Format(time.DateTime)
	case d < time.Minute:
		return "Less than a minute ago"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute") + " ago"
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour") + " ago"
	case d < 30*24*time.Hour:
		return plural(int(d.Hours()/24), "day") + " ago"
	}

	return t.Format(time.DateOnly)
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
