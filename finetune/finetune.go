// Package finetune - Ablauf eines kompletten Finetuning-Laufs
//
// Dieses Paket verbindet Konfiguration, Tracking, Geraete, Daten, Modell,
// Optimizer und Trainings-Loop.
//
// Hauptkomponenten:
// - Run: Fuehrt einen Lauf fuer einen Fold aus
// - SessionName: Benennung der Tracking-Session je nach Cross-Validation
package finetune

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cortml/cort/config"
	"github.com/cortml/cort/dataset"
	"github.com/cortml/cort/discover"
	"github.com/cortml/cort/distribute"
	"github.com/cortml/cort/envconfig"
	"github.com/cortml/cort/metrics"
	"github.com/cortml/cort/model"
	"github.com/cortml/cort/optim"
	"github.com/cortml/cort/store"
	"github.com/cortml/cort/tokenizer"
	"github.com/cortml/cort/track"
	"github.com/cortml/cort/train"

	_ "github.com/cortml/cort/model/models"
)

// Options enthaelt die Abhaengigkeiten eines Laufs, die nicht aus der
// Konfiguration kommen
type Options struct {
	// Store nimmt den Lauf auf. Ohne Store wird envconfig.TrackingDB benutzt,
	// mit CORT_NO_TRACKING wird nichts gespeichert.
	Store *store.Store

	// Out erhaelt Fortschritt und Epochen-Zusammenfassung. Default: os.Stdout
	Out io.Writer
}

// Result fasst einen abgeschlossenen Lauf zusammen
type Result struct {
	Session       track.Session
	Logs          metrics.Logs
	History       []train.EpochLogs
	StepsPerEpoch int
	NumSteps      int
}

// SessionName liefert den Namen der Tracking-Session. Bei hyperparams bleibt
// er leer und wird aus der Run-ID abgeleitet.
func SessionName(cfg config.Config) (string, error) {
	if err := config.ValidateCrossValidation(cfg.CrossValidation); err != nil {
		return "", err
	}

	if cfg.CrossValidation == config.KFold {
		return fmt.Sprintf("CoRT-KFOLD_%d", cfg.CurrentFold+1), nil
	}

	return "", nil
}

// Run fuehrt einen Finetuning-Lauf aus
func Run(ctx context.Context, cfg config.Config, opts Options) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	name, err := SessionName(cfg)
	if err != nil {
		return nil, err
	}

	session, err := track.NewSession(envconfig.Project(), name, envconfig.SweepID())
	if err != nil {
		return nil, err
	}

	st := opts.Store
	if st == nil {
		st = &store.Store{}
		defer st.Close()
	}

	tracker, err := newTracker(session, cfg, st)
	if err != nil {
		return nil, err
	}

	slog.Info("Tracking setup:")
	slog.Info("- Sweep ID: " + session.SweepID)
	slog.Info("- Run ID: " + session.RunID)

	devices, err := discover.Select(discover.Devices(ctx), cfg.GPU)
	if err != nil {
		return nil, err
	}

	strategy, err := distribute.New(devices, cfg.Distribute)
	if err != nil {
		return nil, err
	}

	if cfg.Distribute {
		slog.Info("Distributed Training Enabled")
		cfg.BatchSize *= strategy.NumReplicas()
	}
	if cfg.IncludeSections {
		slog.Info("Elaborated Representation Enabled")
	}
	if cfg.ReprPreact {
		slog.Info("Pre-Activated Representation Enabled")
	}

	tok, err := tokenizer.NewHash(cfg.VocabSize)
	if err != nil {
		return nil, err
	}

	raw, err := dataset.LoadCSV(cfg.TrainPath)
	if err != nil {
		return nil, err
	}

	examples, err := dataset.Prepare(ctx, raw, tok, dataset.PrepareOptions{
		NumProcesses: cfg.NumProcesses,
		Dynamic:      cfg.DynamicDatagen,
		MaxLength:    cfg.MaxLength,
	})
	if err != nil {
		return nil, err
	}

	folded, err := dataset.SplitFold(examples, dataset.FoldOptions{
		K:                         cfg.NumKFold,
		Fold:                      cfg.CurrentFold,
		Seed:                      cfg.Seed,
		BatchSize:                 cfg.BatchSize,
		GradientAccumulationSteps: cfg.GradientAccumulationSteps,
		NumLabels:                 cfg.NumLabels,
		NumSections:               cfg.NumSections,
		IncludeSections:           cfg.IncludeSections,
	})
	if err != nil {
		return nil, err
	}

	if folded.StepsPerEpoch == 0 {
		return nil, fmt.Errorf("training fold of %d examples is smaller than one optimizer step (batch_size %d, gradient_accumulation_steps %d)",
			folded.Train.Len(), cfg.BatchSize, cfg.GradientAccumulationSteps)
	}

	trainDS, validDS, err := dataset.Assemble(folded, tok, dataset.AssembleOptions{
		BatchSize: cfg.BatchSize,
		MaxLength: cfg.MaxLength,
		Seed:      cfg.Seed,
	})
	if err != nil {
		return nil, err
	}

	m, err := model.New(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.RestoreCheckpoint != "" {
		slog.Info("restoring checkpoint", "path", cfg.RestoreCheckpoint)
		if err := m.LoadWeights(cfg.RestoreCheckpoint); err != nil {
			return nil, fmt.Errorf("restore checkpoint: %w", err)
		}
	}

	trainer := train.New(m, optim.New(cfg, cfg.Epochs*folded.StepsPerEpoch), strategy, tracker, train.Options{
		Epochs:                    cfg.Epochs,
		InitialEpoch:              cfg.InitialEpoch,
		GradientAccumulationSteps: cfg.GradientAccumulationSteps,
		SkipEarlyEval:             cfg.SkipEarlyEval,
		IncludeSections:           cfg.IncludeSections,
		Tasks:                     metrics.NewTaskSet(cfg.NumLabels, cfg.NumSections, cfg.IncludeSections),
	},
		train.NewModelCheckpoint(envconfig.Models(), m, tracker),
		train.NewEarlyStopping(train.Monitor, cfg.EarlyStoppingPatience),
		train.NewTrackerCallback(tracker),
	)
	trainer.Out = out

	logs, err := trainer.Fit(ctx, trainDS, validDS, folded.StepsPerEpoch)
	if err != nil {
		return nil, err
	}

	return &Result{
		Session:       session,
		Logs:          logs,
		History:       trainer.History(),
		StepsPerEpoch: folded.StepsPerEpoch,
		NumSteps:      trainer.NumSteps(),
	}, nil
}

func newTracker(session track.Session, cfg config.Config, st *store.Store) (track.Tracker, error) {
	if envconfig.NoTracking() {
		slog.Info("experiment tracking disabled")
		return track.Nop{S: session}, nil
	}

	return st.Start(session, cfg)
}
