package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortml/cort/track"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := &Store{DBPath: filepath.Join(t.TempDir(), "tracking.sqlite")}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTrackerLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	session, err := track.NewSession("CoRT", "CoRT-KFOLD_1", "")
	require.NoError(t, err)

	tr, err := s.Start(session, map[string]any{"batch_size": 32})
	require.NoError(t, err)
	require.Equal(t, session, tr.Session())

	require.NoError(t, tr.Log(ctx, 0, map[string]float64{"total_loss": 2, "learning_rate": 0.1}))
	require.NoError(t, tr.Log(ctx, 1, map[string]float64{"total_loss": 1}))
	require.NoError(t, tr.LogArtifact(ctx, track.Artifact{
		Name:     "CoRT_sweep-none_run-x_epoch-01",
		Type:     "model",
		Path:     "models/CoRT_sweep-none_run-x_epoch-01",
		Step:     1,
		Metadata: map[string]string{"epoch": "1"},
	}))

	run, err := s.Run(session.RunID)
	require.NoError(t, err)
	require.Equal(t, StateRunning, run.State)
	require.Nil(t, run.FinishedAt)

	var config map[string]any
	require.NoError(t, json.Unmarshal(run.Config, &config))
	require.EqualValues(t, 32, config["batch_size"])

	require.NoError(t, tr.Finish(ctx, map[string]float64{"val_total_loss": 0.5}))

	run, err = s.Run(session.RunID)
	require.NoError(t, err)
	require.Equal(t, StateFinished, run.State)
	require.NotNil(t, run.FinishedAt)
	require.Equal(t, 0.5, run.Summary["val_total_loss"])

	losses, err := s.Scalars(session.RunID, "total_loss")
	require.NoError(t, err)
	require.Equal(t, []Scalar{{Step: 0, Key: "total_loss", Value: 2}, {Step: 1, Key: "total_loss", Value: 1}}, losses)

	all, err := s.Scalars(session.RunID, "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	artifacts, err := s.Artifacts(session.RunID)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	require.Equal(t, "1", artifacts[0].Metadata["epoch"])
}

func TestRuns(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{"a", "b"} {
		session, err := track.NewSession("CoRT", name, "sweep")
		require.NoError(t, err)
		_, err = s.Start(session, nil)
		require.NoError(t, err)
	}

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "b", runs[0].Name)

	require.NoError(t, s.DeleteRun(runs[0].ID))
	_, err = s.Run(runs[0].ID)
	require.True(t, errors.Is(err, ErrRunNotFound))

	_, err = s.Scalars("gibt-es-nicht", "")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracking.sqlite")

	s := &Store{DBPath: path}
	session, err := track.NewSession("CoRT", "persist", "")
	require.NoError(t, err)
	_, err = s.Start(session, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s = &Store{DBPath: path}
	defer s.Close()
	version, err := func() (int, error) {
		require.NoError(t, s.ensureDB())
		return s.db.getSchemaVersion()
	}()
	require.NoError(t, err)
	require.Equal(t, currentSchemaVersion, version)

	run, err := s.Run(session.RunID)
	require.NoError(t, err)
	require.Equal(t, "persist", run.Name)
}
