// callbacks.go - Callback-Hooks des Trainings-Loops
//
// Dieses Modul enthaelt:
// - Callback: Hooks fuer Training, Epochen, Batches und Evaluation
// - BaseCallback: Leere Implementierung zum Einbetten
// - CallbackList: Verteilt Hooks an mehrere Callbacks
// - EarlyStopping: Bricht ab, wenn sich die ueberwachte Metrik nicht verbessert
package train

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/cortml/cort/metrics"
)

// ErrStopTraining kann von OnEpochEnd geliefert werden, um das Training
// regulaer nach der aktuellen Epoche zu beenden
var ErrStopTraining = errors.New("stop training")

// Callback beobachtet den Trainings-Loop. Ein Fehler bricht Fit ab,
// ausser ErrStopTraining aus OnEpochEnd.
type Callback interface {
	OnTrainBegin(ctx context.Context) error
	OnTrainEnd(ctx context.Context, logs metrics.Logs) error

	OnEpochBegin(ctx context.Context, epoch int) error
	OnEpochEnd(ctx context.Context, epoch int, logs metrics.Logs) error

	OnTrainBatchBegin(ctx context.Context, batch int) error
	OnTrainBatchEnd(ctx context.Context, batch int, logs metrics.Logs) error

	OnTestBegin(ctx context.Context) error
	OnTestEnd(ctx context.Context, logs metrics.Logs) error

	OnTestBatchBegin(ctx context.Context, batch int) error
	OnTestBatchEnd(ctx context.Context, batch int, logs metrics.Logs) error
}

// BaseCallback implementiert alle Hooks ohne Wirkung
type BaseCallback struct{}

func (BaseCallback) OnTrainBegin(context.Context) error                       { return nil }
func (BaseCallback) OnTrainEnd(context.Context, metrics.Logs) error           { return nil }
func (BaseCallback) OnEpochBegin(context.Context, int) error                  { return nil }
func (BaseCallback) OnEpochEnd(context.Context, int, metrics.Logs) error      { return nil }
func (BaseCallback) OnTrainBatchBegin(context.Context, int) error             { return nil }
func (BaseCallback) OnTrainBatchEnd(context.Context, int, metrics.Logs) error { return nil }
func (BaseCallback) OnTestBegin(context.Context) error                        { return nil }
func (BaseCallback) OnTestEnd(context.Context, metrics.Logs) error            { return nil }
func (BaseCallback) OnTestBatchBegin(context.Context, int) error              { return nil }
func (BaseCallback) OnTestBatchEnd(context.Context, int, metrics.Logs) error  { return nil }

// CallbackList ruft jeden Hook auf allen Callbacks in Reihenfolge auf. Bei
// ErrStopTraining laufen die restlichen Callbacks trotzdem.
type CallbackList []Callback

func (l CallbackList) each(fn func(Callback) error) error {
	var stop bool
	for _, c := range l {
		if err := fn(c); errors.Is(err, ErrStopTraining) {
			stop = true
		} else if err != nil {
			return err
		}
	}

	if stop {
		return ErrStopTraining
	}
	return nil
}

func (l CallbackList) OnTrainBegin(ctx context.Context) error {
	return l.each(func(c Callback) error { return c.OnTrainBegin(ctx) })
}

func (l CallbackList) OnTrainEnd(ctx context.Context, logs metrics.Logs) error {
	return l.each(func(c Callback) error { return c.OnTrainEnd(ctx, logs) })
}

func (l CallbackList) OnEpochBegin(ctx context.Context, epoch int) error {
	return l.each(func(c Callback) error { return c.OnEpochBegin(ctx, epoch) })
}

func (l CallbackList) OnEpochEnd(ctx context.Context, epoch int, logs metrics.Logs) error {
	return l.each(func(c Callback) error { return c.OnEpochEnd(ctx, epoch, logs) })
}

func (l CallbackList) OnTrainBatchBegin(ctx context.Context, batch int) error {
	return l.each(func(c Callback) error { return c.OnTrainBatchBegin(ctx, batch) })
}

func (l CallbackList) OnTrainBatchEnd(ctx context.Context, batch int, logs metrics.Logs) error {
	return l.each(func(c Callback) error { return c.OnTrainBatchEnd(ctx, batch, logs) })
}

func (l CallbackList) OnTestBegin(ctx context.Context) error {
	return l.each(func(c Callback) error { return c.OnTestBegin(ctx) })
}

func (l CallbackList) OnTestEnd(ctx context.Context, logs metrics.Logs) error {
	return l.each(func(c Callback) error { return c.OnTestEnd(ctx, logs) })
}

func (l CallbackList) OnTestBatchBegin(ctx context.Context, batch int) error {
	return l.each(func(c Callback) error { return c.OnTestBatchBegin(ctx, batch) })
}

func (l CallbackList) OnTestBatchEnd(ctx context.Context, batch int, logs metrics.Logs) error {
	return l.each(func(c Callback) error { return c.OnTestBatchEnd(ctx, batch, logs) })
}

// EarlyStopping beendet das Training, wenn Monitor sich Patience Epochen lang
// nicht verbessert hat. Kleinere Werte sind besser. Patience <= 0 deaktiviert.
type EarlyStopping struct {
	BaseCallback

	Monitor  string
	Patience int

	best float64
	wait int
}

func NewEarlyStopping(monitor string, patience int) *EarlyStopping {
	return &EarlyStopping{Monitor: monitor, Patience: patience}
}

func (e *EarlyStopping) OnTrainBegin(context.Context) error {
	e.best = math.Inf(1)
	e.wait = 0
	return nil
}

func (e *EarlyStopping) OnEpochEnd(_ context.Context, epoch int, logs metrics.Logs) error {
	if e.Patience <= 0 {
		return nil
	}

	v, ok := logs[e.Monitor]
	if !ok {
		slog.Warn("early stopping conditioned on unavailable metric", "monitor", e.Monitor)
		return nil
	}

	if v < e.best {
		e.best = v
		e.wait = 0
		return nil
	}

	e.wait++
	if e.wait >= e.Patience {
		slog.Info("early stopping", "epoch", epoch+1, "monitor", e.Monitor, "best", e.best)
		return ErrStopTraining
	}

	return nil
}
