// distribute.go - Datenparallele Ausfuehrung des Modells auf mehreren Replikas
//
// Dieses Modul enthaelt:
//   - Strategy: Schnittstelle fuer Forward/Backward ueber alle Replikas
//   - OneDevice: Ausfuehrung ohne Aufteilung
//   - Mirrored: Aufteilung jedes Batches in zusammenhaengende Shards, ein
//     Goroutine pro Replika, Barriere und Mittelwert-Reduktion
//   - Shard/Reduce: Hilfsfunktionen fuer Aufteilung und Reduktion
package distribute

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/cortml/cort/ml"
)

// Strategy fuehrt einen Schritt des Modells auf allen Replikas aus und liefert
// das reduzierte Ergebnis
type Strategy interface {
	NumReplicas() int
	Run(ctx context.Context, m ml.Model, in ml.Inputs, training bool) (ml.Result, error)
}

// New waehlt die Strategie: Mirrored fuer distribute mit mehr als einem Geraet,
// sonst OneDevice auf dem ersten Geraet
func New(devices []ml.DeviceInfo, distribute bool) (Strategy, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("distribute: no devices")
	}

	if distribute && len(devices) > 1 {
		slog.Info("Distributed training", "replicas", len(devices))
		return &Mirrored{devices: devices}, nil
	}

	return &OneDevice{device: devices[0]}, nil
}

// OneDevice fuehrt das Modell direkt aus
type OneDevice struct {
	device ml.DeviceInfo
}

func (s *OneDevice) NumReplicas() int { return 1 }

func (s *OneDevice) Run(ctx context.Context, m ml.Model, in ml.Inputs, training bool) (ml.Result, error) {
	return m.Forward(ctx, in, training)
}

// Mirrored repliziert das Modell auf alle Geraete. Parameter werden geteilt,
// nur Optimizer.Apply schreibt sie.
type Mirrored struct {
	devices []ml.DeviceInfo
}

// NewMirrored erstellt eine Mirrored-Strategie ueber devices
func NewMirrored(devices []ml.DeviceInfo) *Mirrored {
	return &Mirrored{devices: devices}
}

func (s *Mirrored) NumReplicas() int { return len(s.devices) }

// Run teilt in auf die Replikas auf und wartet auf alle. Replikas ohne
// Beispiele nehmen nicht an der Reduktion teil.
func (s *Mirrored) Run(ctx context.Context, m ml.Model, in ml.Inputs, training bool) (ml.Result, error) {
	shards := Shard(in, len(s.devices))
	results := make([]ml.Result, len(shards))

	g, ctx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		g.Go(func() error {
			r, err := m.Forward(ctx, shard, training)
			if err != nil {
				return fmt.Errorf("replica %s: %w", s.devices[i].ID, err)
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return ml.Result{}, err
	}

	return Reduce(results)
}

// Shard teilt in in bis zu n zusammenhaengende Teile, deren Groessen sich um
// hoechstens eins unterscheiden. Leere Teile werden weggelassen.
func Shard(in ml.Inputs, n int) []ml.Inputs {
	size := in.Size()
	n = max(min(n, size), 1)

	out := make([]ml.Inputs, 0, n)
	start := 0
	for i := range n {
		end := start + size/n
		if i < size%n {
			end++
		}
		out = append(out, slice(in, start, end))
		start = end
	}

	return out
}

func slice(in ml.Inputs, start, end int) ml.Inputs {
	out := ml.Inputs{InputIDs: in.InputIDs[start:end]}
	if in.Labels != nil {
		out.Labels = in.Labels[start:end]
	}
	if in.Weights != nil {
		out.Weights = in.Weights[start:end]
	}
	if in.SectionLabels != nil {
		out.SectionLabels = in.SectionLabels[start:end]
	}
	if in.SectionWeights != nil {
		out.SectionWeights = in.SectionWeights[start:end]
	}
	return out
}

// Reduce mittelt Loss, skalare Ausgaben und Gradienten ueber die Replikas.
// Ausgaben pro Beispiel ([batch, ...]) werden nicht gemittelt, sondern in
// Replika-Reihenfolge aneinandergehaengt, damit Accuracy und F1 jedes Beispiel
// des globalen Batches sehen.
func Reduce(results []ml.Result) (ml.Result, error) {
	if len(results) == 0 {
		return ml.Result{}, fmt.Errorf("distribute: nothing to reduce")
	}
	if len(results) == 1 {
		return results[0], nil
	}

	var out ml.Result
	for _, r := range results {
		out.Loss += r.Loss
	}
	out.Loss /= float64(len(results))

	out.Outputs = make(ml.Outputs, len(results[0].Outputs))
	for key, first := range results[0].Outputs {
		parts := make([]*ml.Tensor, len(results))
		for i, r := range results {
			t, err := r.Outputs.Get(key)
			if err != nil {
				return ml.Result{}, fmt.Errorf("replica %d: %w", i, err)
			}
			parts[i] = t
		}

		var err error
		if first.Rank() == 0 {
			out.Outputs[key], err = ml.Mean(parts...)
		} else {
			out.Outputs[key], err = ml.Concat(parts...)
		}
		if err != nil {
			return ml.Result{}, fmt.Errorf("reduce %s: %w", key, err)
		}
	}

	if results[0].Gradients != nil {
		out.Gradients = make([]*ml.Tensor, len(results[0].Gradients))
		for j := range out.Gradients {
			var parts []*ml.Tensor
			for i, r := range results {
				if len(r.Gradients) != len(out.Gradients) {
					return ml.Result{}, fmt.Errorf("replica %d returned %d gradients, expected %d", i, len(r.Gradients), len(out.Gradients))
				}
				if r.Gradients[j] != nil {
					parts = append(parts, r.Gradients[j])
				}
			}

			if len(parts) == 0 {
				continue
			}

			g, err := ml.Mean(parts...)
			if err != nil {
				return ml.Result{}, fmt.Errorf("reduce gradient %d: %w", j, err)
			}
			out.Gradients[j] = g
		}
	}

	return out, nil
}
