// checkpoint.go - Checkpoint- und Tracking-Callbacks
//
// Dieses Modul enthaelt:
// - ModelCheckpoint: Speichert die Gewichte der besten Epoche
// - TrackerCallback: Schreibt Epochen-Logs und Zusammenfassung in den Tracker
package train

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"

	"github.com/cortml/cort/metrics"
	"github.com/cortml/cort/ml"
	"github.com/cortml/cort/track"
)

// Monitor ist die Metrik, nach der Checkpoints und Early Stopping entscheiden
const Monitor = "val_" + metrics.TotalLoss

// CheckpointName liefert den Verzeichnisnamen eines Checkpoints. epoch ist 1-basiert.
func CheckpointName(session track.Session, epoch int) string {
	return fmt.Sprintf("CoRT_sweep-%s_run-%s_epoch-%02d", session.SweepID, session.RunID, epoch)
}

// ModelCheckpoint speichert nur die Gewichte und nur bei Verbesserung von
// Monitor (kleiner ist besser). Jeder Checkpoint wird als Artefakt geloggt.
type ModelCheckpoint struct {
	BaseCallback

	Dir     string
	Monitor string

	model   ml.Model
	tracker track.Tracker
	best    float64
	step    int
}

func NewModelCheckpoint(dir string, m ml.Model, tracker track.Tracker) *ModelCheckpoint {
	return &ModelCheckpoint{Dir: dir, Monitor: Monitor, model: m, tracker: tracker, best: math.Inf(1)}
}

// Best liefert den besten bisher gesehenen Wert von Monitor
func (c *ModelCheckpoint) Best() float64 {
	return c.best
}

func (c *ModelCheckpoint) OnTrainBatchEnd(context.Context, int, metrics.Logs) error {
	c.step++
	return nil
}

func (c *ModelCheckpoint) OnEpochEnd(ctx context.Context, epoch int, logs metrics.Logs) error {
	current, ok := logs[c.Monitor]
	if !ok {
		slog.Warn("can save best model only with monitor available, skipping", "monitor", c.Monitor)
		return nil
	}

	if current >= c.best {
		slog.Info(fmt.Sprintf("Epoch %05d: %s did not improve from %.5f", epoch+1, c.Monitor, c.best))
		return nil
	}

	path := filepath.Join(c.Dir, CheckpointName(c.tracker.Session(), epoch+1))
	slog.Info(fmt.Sprintf("Epoch %05d: %s improved from %.5f to %.5f, saving model to %s", epoch+1, c.Monitor, c.best, current, path))
	c.best = current

	if err := c.model.SaveWeights(path); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	return c.tracker.LogArtifact(ctx, track.Artifact{
		Name: "run_" + c.tracker.Session().RunID + "_model",
		Type: "model",
		Path: path,
		Step: c.step,
		Metadata: map[string]string{
			"epoch":   strconv.Itoa(epoch + 1),
			c.Monitor: strconv.FormatFloat(current, 'g', -1, 64),
		},
	})
}

// TrackerCallback schreibt die Epochen-Logs in den Tracker und schliesst
// den Lauf am Trainingsende ab. Der Schritt folgt den Trainings-Batches.
type TrackerCallback struct {
	BaseCallback

	tracker track.Tracker
	step    int
}

func NewTrackerCallback(tracker track.Tracker) *TrackerCallback {
	return &TrackerCallback{tracker: tracker}
}

func (c *TrackerCallback) OnTrainBatchEnd(context.Context, int, metrics.Logs) error {
	c.step++
	return nil
}

func (c *TrackerCallback) OnEpochEnd(ctx context.Context, epoch int, logs metrics.Logs) error {
	values := logs.Merge(metrics.Logs{"epoch": float64(epoch)})
	return c.tracker.Log(ctx, c.step, values)
}

func (c *TrackerCallback) OnTrainEnd(ctx context.Context, logs metrics.Logs) error {
	return c.tracker.Finish(ctx, logs)
}
