package cmd

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/cortml/cort/config"
	"github.com/cortml/cort/server"
	"github.com/cortml/cort/store"
	"github.com/cortml/cort/track"
)

func TestFlagNames(t *testing.T) {
	cmd := newTrainCmd()
	for _, key := range config.Keys() {
		name := flagName(key)
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("Flag %q fuer Option %q fehlt", name, key)
		}
		if got := optionKey(name); got != key {
			t.Errorf("erwartet %q, bekommen %q", key, got)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size: 8\nepochs: 3\n"), 0o644))

	cases := []struct {
		name   string
		args   []string
		modify func(*config.Config)
	}{
		{
			name:   "defaults",
			modify: func(*config.Config) {},
		},
		{
			name: "file",
			args: []string{"--config", path},
			modify: func(c *config.Config) {
				c.BatchSize = 8
				c.Epochs = 3
			},
		},
		{
			name: "flags override file",
			args: []string{"-c", path, "--epochs", "5", "--include-sections", "--cross-validation", "hyperparams", "--learning-rate", "0.001"},
			modify: func(c *config.Config) {
				c.BatchSize = 8
				c.Epochs = 5
				c.IncludeSections = true
				c.CrossValidation = config.Hyperparams
				c.LearningRate = 0.001
			},
		},
		{
			name: "unchanged flags keep file values",
			args: []string{"--config", path, "--seed", "7"},
			modify: func(c *config.Config) {
				c.BatchSize = 8
				c.Epochs = 3
				c.Seed = 7
			},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newTrainCmd()
			require.NoError(t, cmd.ParseFlags(tt.args))

			got, err := loadConfig(cmd)
			require.NoError(t, err)

			want := config.Default()
			tt.modify(&want)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Konfiguration weicht ab (-erwartet +bekommen):\n%s", diff)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cmd := newTrainCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}))

	if _, err := loadConfig(cmd); err == nil {
		t.Error("erwartet Fehler fuer fehlende Datei")
	}
}

func seedRuns(t *testing.T) []track.Session {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tracking.sqlite")
	t.Setenv("CORT_TRACKING_DB", path)

	st := &store.Store{DBPath: path}
	defer st.Close()

	var sessions []track.Session
	for _, s := range []struct{ name, sweep string }{
		{"CoRT-KFOLD_1", "sweep-a"},
		{"CoRT-KFOLD_2", "sweep-b"},
	} {
		session, err := track.NewSession("CoRT", s.name, s.sweep)
		require.NoError(t, err)

		tr, err := st.Start(session, config.Default())
		require.NoError(t, err)
		require.NoError(t, tr.Log(context.Background(), 0, map[string]float64{"total_loss": 1.5}))
		require.NoError(t, tr.Finish(context.Background(), map[string]float64{"val_total_loss": 0.25}))

		sessions = append(sessions, session)
	}

	return sessions
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := NewCLI()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunsList(t *testing.T) {
	sessions := seedRuns(t)

	out, err := execute(t, "runs", "list")
	require.NoError(t, err)
	require.Contains(t, out, "NAME")
	for _, s := range sessions {
		require.Contains(t, out, s.RunID)
	}

	out, err = execute(t, "runs", "ls", "--sweep", "sweep-b")
	require.NoError(t, err)
	require.NotContains(t, out, sessions[0].RunID)
	require.Contains(t, out, sessions[1].RunID)

	out, err = execute(t, "runs", "list", "cort-kfold_1")
	require.NoError(t, err)
	require.Contains(t, out, sessions[0].RunID)
	require.NotContains(t, out, sessions[1].RunID)
}

func TestRunsShow(t *testing.T) {
	sessions := seedRuns(t)

	out, err := execute(t, "runs", "show", sessions[0].RunID)
	require.NoError(t, err)
	require.Contains(t, out, "CoRT-KFOLD_1")
	require.Contains(t, out, "finished")
	require.Contains(t, out, "val_total_loss")
	require.Contains(t, out, "0.2500")

	out, err = execute(t, "runs", "show", sessions[0].RunID, "--key", "total_loss")
	require.NoError(t, err)
	require.Contains(t, out, "TOTAL_LOSS")
	require.Contains(t, out, "1.5000")

	_, err = execute(t, "runs", "show", "missing")
	require.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestRunsRemove(t *testing.T) {
	sessions := seedRuns(t)

	out, err := execute(t, "runs", "rm", sessions[0].RunID)
	require.NoError(t, err)
	require.Contains(t, out, "deleted")

	out, err = execute(t, "runs", "list")
	require.NoError(t, err)
	require.NotContains(t, out, sessions[0].RunID)
	require.Contains(t, out, sessions[1].RunID)

	_, err = execute(t, "runs", "rm", sessions[0].RunID)
	require.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestRunsRemote(t *testing.T) {
	sessions := seedRuns(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Setenv("CORT_HOST", ln.Addr().String())

	st := &store.Store{}
	t.Cleanup(func() { st.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, ln, st, nil) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	out, err := execute(t, "runs", "list", "--remote", "--sweep", "sweep-a")
	require.NoError(t, err)
	require.Contains(t, out, sessions[0].RunID)
	require.NotContains(t, out, sessions[1].RunID)

	out, err = execute(t, "runs", "show", "--remote", sessions[1].RunID)
	require.NoError(t, err)
	require.Contains(t, out, "CoRT-KFOLD_2")
	require.Contains(t, out, "val_total_loss")
}

func TestHumanTime(t *testing.T) {
	now := time.Now()
	cases := []struct {
		t    time.Time
		want string
	}{
		{time.Time{}, "Never"},
		{now.Add(-10 * time.Second), "Less than a minute ago"},
		{now.Add(-1*time.Minute - time.Second), "1 minute ago"},
		{now.Add(-5*time.Minute - time.Second), "5 minutes ago"},
		{now.Add(-3*time.Hour - time.Second), "3 hours ago"},
		{now.Add(-49 * time.Hour), "2 days ago"},
	}

	for _, tt := range cases {
		if got := humanTime(tt.t, "Never"); got != tt.want {
			t.Errorf("erwartet %q, bekommen %q", tt.want, got)
		}
	}
}

func TestEnvDocs(t *testing.T) {
	root := NewCLI()
	train, _, err := root.Find([]string{"train"})
	require.NoError(t, err)

	usage := train.UsageTemplate()
	for _, name := range []string{"CORT_MODELS", "CORT_TRACKING_DB", "CORT_SWEEP_ID"} {
		if !strings.Contains(usage, name) {
			t.Errorf("%s fehlt in der Hilfe", name)
		}
	}
}
