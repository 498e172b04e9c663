// Package train - Trainings-Loop mit Gradienten-Akkumulation
//
// Dieses Paket enthaelt den Kern des Finetunings: Epochen, Micro-Batches,
// Akkumulations-Grenzen, Optimizer-Schritte, Metriken, Evaluation und
// Callbacks.
//
// Hauptkomponenten:
// - Trainer: Fuehrt Fit ueber Trainings- und Validierungsdaten aus
// - AccumulationBoundary: Entscheidet, wann ein Optimizer-Schritt faellt
// - Callback/CallbackList: Hooks fuer Checkpoints, Tracking, Early Stopping
package train

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cortml/cort/dataset"
	"github.com/cortml/cort/distribute"
	"github.com/cortml/cort/logutil"
	"github.com/cortml/cort/metrics"
	"github.com/cortml/cort/ml"
	"github.com/cortml/cort/optim"
	"github.com/cortml/cort/track"
)

// ClipNorm ist die Schwelle fuer das Clipping nach globaler Norm
const ClipNorm = 1.0

// ErrDatasetExhausted wird geliefert, wenn die Trainingsdaten vor dem Ende einer
// Epoche versiegen
var ErrDatasetExhausted = errors.New("training dataset exhausted")

// LearningRateKey wird zusammen mit den Batch-Logs an den Tracker geschickt
const LearningRateKey = "learning_rate"

// AccumulationBoundary meldet, ob nach Micro-Schritt step (0-basiert innerhalb
// der Epoche) ein Optimizer-Schritt faellt. Der allererste globale Schritt
// (numSteps == 0) wendet immer an, damit der Optimizer seinen Zustand sofort
// anlegt und nicht erst nach einem vollen Akkumulationsfenster.
func AccumulationBoundary(step, accum, numSteps int) bool {
	return (step+1)%accum == 0 || numSteps == 0
}

// Options steuert den Trainings-Loop
type Options struct {
	Epochs                    int
	InitialEpoch              int
	GradientAccumulationSteps int
	SkipEarlyEval             bool
	IncludeSections           bool

	Tasks metrics.TaskSet
}

// Trainer besitzt Akkumulator, Metrik-Registries und Schrittzaehler. Nicht
// fuer nebenlaeufige Nutzung gedacht.
type Trainer struct {
	model     ml.Model
	optimizer ml.Optimizer
	strategy  distribute.Strategy
	tracker   track.Tracker
	callbacks CallbackList
	opts      Options

	// Out erhaelt Epochen-Kopfzeilen und den Fortschrittsbalken
	Out io.Writer

	accumulator  optim.GradientAccumulator
	train, valid *metrics.Registry

	numSteps  int
	localStep int
	history   []EpochLogs
}

func New(m ml.Model, opt ml.Optimizer, strategy distribute.Strategy, tracker track.Tracker, opts Options, callbacks ...Callback) *Trainer {
	if opts.GradientAccumulationSteps < 1 {
		opts.GradientAccumulationSteps = 1
	}

	return &Trainer{
		model:     m,
		optimizer: opt,
		strategy:  strategy,
		tracker:   tracker,
		callbacks: callbacks,
		opts:      opts,
		Out:       os.Stdout,
		train:     metrics.NewRegistry(opts.Tasks),
		valid:     metrics.NewRegistry(opts.Tasks),
	}
}

// NumSteps liefert die Anzahl angewendeter Optimizer-Schritte
func (t *Trainer) NumSteps() int {
	return t.numSteps
}

// History liefert die Logs aller abgeschlossenen Epochen
func (t *Trainer) History() []EpochLogs {
	return t.history
}

// MetricNames liefert die Namen der Trainings-Metriken in Anzeigereihenfolge
func (t *Trainer) MetricNames() []string {
	return t.train.Names()
}

// Fit trainiert von InitialEpoch bis Epochs. Jede Epoche verbraucht
// stepsPerEpoch*GradientAccumulationSteps Micro-Batches aus trainDS und endet
// mit einem vollstaendigen Durchlauf ueber validDS. Geliefert werden die Logs
// der letzten Epoche.
func (t *Trainer) Fit(ctx context.Context, trainDS, validDS dataset.Dataset, stepsPerEpoch int) (metrics.Logs, error) {
	if stepsPerEpoch <= 0 {
		return nil, fmt.Errorf("train: steps per epoch must be positive, got %d", stepsPerEpoch)
	}

	if !t.opts.SkipEarlyEval {
		if _, err := t.evaluate(ctx, validDS, false); err != nil {
			return nil, fmt.Errorf("early evaluation: %w", err)
		}
	} else {
		slog.Info("Skipping early evaluation")
	}

	if err := t.callbacks.OnTrainBegin(ctx); err != nil {
		return nil, err
	}

	var logs metrics.Logs
	for epoch := t.opts.InitialEpoch; epoch < t.opts.Epochs; epoch++ {
		epochLogs, err := t.runEpoch(ctx, epoch, trainDS, validDS, stepsPerEpoch)
		if err != nil {
			return nil, fmt.Errorf("epoch %d: %w", epoch+1, err)
		}

		logs = epochLogs
		t.history = append(t.history, EpochLogs{Epoch: epoch, Logs: epochLogs})

		if err := t.callbacks.OnEpochEnd(ctx, epoch, epochLogs); errors.Is(err, ErrStopTraining) {
			break
		} else if err != nil {
			return nil, err
		}
	}

	if err := t.callbacks.OnTrainEnd(ctx, logs); err != nil {
		return nil, err
	}

	return logs, nil
}

func (t *Trainer) runEpoch(ctx context.Context, epoch int, trainDS, validDS dataset.Dataset, stepsPerEpoch int) (metrics.Logs, error) {
	t.train.Reset()
	t.valid.Reset()

	if err := t.callbacks.OnEpochBegin(ctx, epoch); err != nil {
		return nil, err
	}
	fmt.Fprintf(t.Out, "\nEpoch %d/%d\n", epoch+1, t.opts.Epochs)

	bar := NewProgbar(t.Out, stepsPerEpoch, t.train.Names())
	t.accumulator.Reset()
	t.localStep = 0

	microSteps := stepsPerEpoch * t.opts.GradientAccumulationSteps
	it := trainDS.Take(microSteps).Iter(ctx)
	defer it.Close()

	for step := 0; ; step++ {
		batch, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			if step < microSteps {
				return nil, fmt.Errorf("%w after %d of %d batches in epoch %d", ErrDatasetExhausted, step, microSteps, epoch+1)
			}
			break
		} else if err != nil {
			return nil, err
		}

		if err := t.trainStep(ctx, step, batch, bar); err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}
	}

	epochLogs := t.train.Snapshot()

	valLogs, err := t.evaluate(ctx, validDS, true)
	if err != nil {
		return nil, fmt.Errorf("evaluation: %w", err)
	}
	epochLogs = epochLogs.Merge(valLogs)

	bar.Update(stepsPerEpoch, epochLogs, true)
	return epochLogs, nil
}

// trainStep verarbeitet einen Micro-Batch. Nur auf einer Akkumulations-Grenze
// werden Gradienten angewendet, Metriken fortgeschrieben und Zaehler erhoeht.
func (t *Trainer) trainStep(ctx context.Context, step int, batch dataset.Batch, bar *Progbar) error {
	boundary := AccumulationBoundary(step, t.opts.GradientAccumulationSteps, t.numSteps)
	if boundary {
		if err := t.callbacks.OnTrainBatchBegin(ctx, t.localStep); err != nil {
			return err
		}
	}

	in, err := wrapInputs(batch, t.opts.IncludeSections)
	if err != nil {
		return err
	}

	res, err := t.strategy.Run(ctx, t.model, in, true)
	if err != nil {
		return err
	}

	if len(res.Gradients) != len(t.model.Parameters()) {
		return fmt.Errorf("model returned %d gradients for %d parameters", len(res.Gradients), len(t.model.Parameters()))
	}
	t.accumulator.Accumulate(res.Gradients)

	if !boundary {
		return nil
	}

	if err := t.applyGradients(); err != nil {
		return err
	}

	if err := t.train.Update(res.Loss, res.Outputs); err != nil {
		return err
	}

	logs := t.train.Snapshot()
	bar.Update(t.localStep+1, logs, false)

	entry := logs.Merge(metrics.Logs{LearningRateKey: t.optimizer.LearningRate(t.numSteps)})
	if err := t.tracker.Log(ctx, t.numSteps, entry); err != nil {
		return err
	}

	if err := t.callbacks.OnTrainBatchEnd(ctx, t.localStep, logs); err != nil {
		return err
	}

	t.localStep++
	t.numSteps++
	return nil
}

// applyGradients teilt die Summen durch die Akkumulationsschritte, clippt
// nach globaler Norm und uebergibt an den Optimizer
func (t *Trainer) applyGradients() error {
	accum := float64(t.opts.GradientAccumulationSteps)

	acc := t.accumulator.Accumulated()
	scaled := make([]*ml.Tensor, len(acc))
	for i, g := range acc {
		if g != nil {
			scaled[i] = g.Clone().Scale(1 / accum)
		}
	}

	clipped, norm := optim.ClipByGlobalNorm(scaled, ClipNorm)
	logutil.Trace("applying gradients", "step", t.numSteps, "micro_steps", t.accumulator.Steps(), "global_norm", norm)

	if err := t.optimizer.Apply(clipped, t.model.Parameters()); err != nil {
		return fmt.Errorf("apply gradients: %w", err)
	}

	t.accumulator.Reset()
	return nil
}

// evaluate laeuft einmal ueber validDS ohne Gradienten und loggt die
// val_-Metriken beim aktuellen globalen Schritt
func (t *Trainer) evaluate(ctx context.Context, validDS dataset.Dataset, runCallbacks bool) (metrics.Logs, error) {
	t.valid.Reset()

	callbacks := t.callbacks
	if !runCallbacks {
		callbacks = nil
	}

	if err := callbacks.OnTestBegin(ctx); err != nil {
		return nil, err
	}

	it := validDS.Iter(ctx)
	defer it.Close()

	for index := 0; ; index++ {
		batch, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, err
		}

		if err := callbacks.OnTestBatchBegin(ctx, index); err != nil {
			return nil, err
		}

		in, err := wrapInputs(batch, t.opts.IncludeSections)
		if err != nil {
			return nil, err
		}

		res, err := t.strategy.Run(ctx, t.model, in, false)
		if err != nil {
			return nil, err
		}

		if err := t.valid.Update(res.Loss, res.Outputs); err != nil {
			return nil, err
		}

		if err := callbacks.OnTestBatchEnd(ctx, index, t.valid.Snapshot()); err != nil {
			return nil, err
		}
	}

	logs := t.valid.Snapshot()
	if err := callbacks.OnTestEnd(ctx, logs); err != nil {
		return nil, err
	}

	valLogs := logs.WithPrefix("val_")
	if err := t.tracker.Log(ctx, t.numSteps, valLogs); err != nil {
		return nil, err
	}

	return valLogs, nil
}
