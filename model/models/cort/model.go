// model.go - CoRT-Referenzmodell
//
// Dieses Modul enthaelt:
// - Model: Embedding-Tabelle mit Mean-Pooling und linearen Task-Koepfen
// - Options: Hyperparameter aus der Konfiguration
// - New: Konstruktor, registriert als "cort"
//
// Die Repraesentation eines Beispiels ist der Mittelwert der Embeddings aller
// Nicht-Padding-Token, optional durch tanh geschickt. Pro Task werden eine
// gewichtete Kreuzentropie und ein paarweiser Margin-Kontrastverlust auf der
// Repraesentation berechnet. Gradienten werden analytisch bestimmt.
package cort

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/cortml/cort/config"
	"github.com/cortml/cort/logutil"
	"github.com/cortml/cort/ml"
	"github.com/cortml/cort/model"
	"github.com/cortml/cort/tokenizer"
)

// ErrMissingSectionLabels wird geliefert, wenn der Sections-Kopf aktiv ist,
// der Batch aber keine Section-Labels enthaelt
var ErrMissingSectionLabels = errors.New("section labels missing")

// Options enthaelt die Modell-Hyperparameter
type Options struct {
	vocabSize, embeddingSize int
	numLabels, numSections   int
	margin                   float64
	reprPreact               bool
}

// Head ist ein linearer Klassifikationskopf
type Head struct {
	Weight *ml.Tensor `cort:"weight"` // [D, C]
	Bias   *ml.Tensor `cort:"bias"`   // [C]
}

func (h *Head) classes() int {
	return h.Bias.Dim(0)
}

type Model struct {
	model.Base

	Embeddings *ml.Tensor `cort:"embeddings"` // [V, D]
	Labels     *Head      `cort:"labels"`
	Sections   *Head      `cort:"sections"`

	*Options
}

func init() {
	model.Register("cort", New)
}

// New erstellt ein zufaellig initialisiertes Modell
func New(cfg config.Config) (ml.Model, error) {
	opts := &Options{
		vocabSize:     cfg.VocabSize,
		embeddingSize: cfg.EmbeddingSize,
		numLabels:     cfg.NumLabels,
		numSections:   cfg.NumSections,
		margin:        cfg.ContrastiveMargin,
		reprPreact:    cfg.ReprPreact,
	}

	switch {
	case opts.vocabSize <= int(tokenizer.SepID):
		return nil, fmt.Errorf("cort: vocab_size %d too small", opts.vocabSize)
	case opts.embeddingSize <= 0:
		return nil, fmt.Errorf("cort: embedding_size must be positive, got %d", opts.embeddingSize)
	case opts.numLabels < 2:
		return nil, fmt.Errorf("cort: num_labels must be at least 2, got %d", opts.numLabels)
	case cfg.IncludeSections && opts.numSections < 2:
		return nil, fmt.Errorf("cort: num_sections must be at least 2, got %d", opts.numSections)
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5deece66d))

	m := &Model{
		Embeddings: normal(rng, 0.1, opts.vocabSize, opts.embeddingSize),
		Labels:     newHead(rng, opts.embeddingSize, opts.numLabels),
		Options:    opts,
	}

	if cfg.IncludeSections {
		m.Sections = newHead(rng, opts.embeddingSize, opts.numSections)
	}

	slog.Debug("cort model", "vocab_size", opts.vocabSize, "embedding_size", opts.embeddingSize, "sections", m.Sections != nil, "repr_preact", opts.reprPreact)
	return m, nil
}

// newHead initialisiert Gewichte nach Glorot, Bias mit 0
func newHead(rng *rand.Rand, in, out int) *Head {
	return &Head{
		Weight: normal(rng, math.Sqrt(2/float64(in+out)), in, out),
		Bias:   ml.Zeros(out),
	}
}

func normal(rng *rand.Rand, std float64, shape ...int) *ml.Tensor {
	t := ml.Zeros(shape...)
	for i := range t.Floats() {
		t.Floats()[i] = rng.NormFloat64() * std
	}
	return t
}

type task struct {
	head    *Head
	prefix  string
	labels  []int32
	weights []float64
}

// Forward berechnet Verluste und Ausgaben. Beim Training werden zusaetzlich
// Gradienten in Parameters()-Reihenfolge geliefert.
func (m *Model) Forward(ctx context.Context, in ml.Inputs, training bool) (ml.Result, error) {
	if err := ctx.Err(); err != nil {
		return ml.Result{}, err
	}

	b := in.Size()
	if b == 0 {
		return ml.Result{}, errors.New("cort: empty batch")
	}

	tasks := []task{{head: m.Labels, labels: in.Labels, weights: in.Weights}}
	if m.Sections != nil {
		if in.SectionLabels == nil {
			return ml.Result{}, ErrMissingSectionLabels
		}
		tasks = append(tasks, task{head: m.Sections, prefix: ml.SectionPrefix, labels: in.SectionLabels, weights: in.SectionWeights})
	}

	for _, t := range tasks {
		if err := checkTask(t, b); err != nil {
			return ml.Result{}, err
		}
	}

	pooled, counts, err := m.pool(in.InputIDs)
	if err != nil {
		return ml.Result{}, err
	}

	repr := pooled
	if !m.reprPreact {
		repr = pooled.Clone()
		for i, v := range repr.Floats() {
			repr.Floats()[i] = math.Tanh(v)
		}
	}

	var grads *gradients
	if training {
		grads = m.newGradients(b)
	}

	out := make(ml.Outputs)
	var total float64
	for _, t := range tasks {
		probs := t.head.forward(repr)
		ce := crossEntropy(probs, t.labels, t.weights, grads.headGrad(t.head, repr))
		cl := m.contrastive(repr, t.labels, grads.reprGrad())
		logutil.TraceContext(ctx, "task forward", "task", t.prefix, "cross_entropy", ce, "contrastive", cl, "probs", probs)

		out[t.prefix+ml.OutputContrastiveLoss] = ml.Scalar(cl)
		out[t.prefix+ml.OutputCrossEntropyLoss] = ml.Scalar(ce)
		out[t.prefix+ml.OutputOneHotLabels] = ml.OneHot(t.labels, t.head.classes())
		out[t.prefix+ml.OutputProbs] = probs

		total += ce + cl
	}

	res := ml.Result{Loss: total, Outputs: out}
	if training {
		grads.backward(in.InputIDs, counts, repr)
		res.Gradients = m.align(grads)
	}

	return res, nil
}

func checkTask(t task, b int) error {
	if len(t.labels) != b {
		return fmt.Errorf("cort: %d %slabels for batch of %d", len(t.labels), t.prefix, b)
	}
	if t.weights != nil && len(t.weights) != b {
		return fmt.Errorf("cort: %d %sweights for batch of %d", len(t.weights), t.prefix, b)
	}
	for _, l := range t.labels {
		if int(l) < 0 || int(l) >= t.head.classes() {
			return fmt.Errorf("cort: %slabel %d out of range [0, %d)", t.prefix, l, t.head.classes())
		}
	}
	return nil
}

// pool mittelt die Embeddings der Nicht-Padding-Token jeder Zeile
func (m *Model) pool(ids [][]int32) (*ml.Tensor, []int, error) {
	d := m.embeddingSize
	pooled := ml.Zeros(len(ids), d)
	counts := make([]int, len(ids))
	for i, row := range ids {
		dst := pooled.Row(i)
		for _, id := range row {
			if id == tokenizer.PadID {
				continue
			}
			if int(id) < 0 || int(id) >= m.vocabSize {
				return nil, nil, fmt.Errorf("cort: token id %d out of vocabulary [0, %d)", id, m.vocabSize)
			}
			for k, v := range m.Embeddings.Row(int(id)) {
				dst[k] += v
			}
			counts[i]++
		}
		if counts[i] > 0 {
			for k := range dst {
				dst[k] /= float64(counts[i])
			}
		}
	}
	return pooled, counts, nil
}

// forward liefert softmax(h W + b) als [B, C]
func (h *Head) forward(repr *ml.Tensor) *ml.Tensor {
	b, d, c := repr.Dim(0), repr.Dim(1), h.classes()
	w := h.Weight.Floats()
	probs := ml.Zeros(b, c)
	for i := range b {
		x, z := repr.Row(i), probs.Row(i)
		copy(z, h.Bias.Floats())
		for k := range d {
			for j := range c {
				z[j] += x[k] * w[k*c+j]
			}
		}
		softmax(z)
	}
	return probs
}

func softmax(z []float64) {
	hi := math.Inf(-1)
	for _, v := range z {
		hi = max(hi, v)
	}
	var sum float64
	for j, v := range z {
		z[j] = math.Exp(v - hi)
		sum += z[j]
	}
	for j := range z {
		z[j] /= sum
	}
}

// crossEntropy berechnet die gewichtete, ueber den Batch gemittelte
// Kreuzentropie und schreibt dL/dz nach dz, falls gesetzt
func crossEntropy(probs *ml.Tensor, labels []int32, weights []float64, dz *ml.Tensor) float64 {
	b := float64(len(labels))
	var loss float64
	for i, y := range labels {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		p := probs.Row(i)
		loss -= w * math.Log(max(p[y], 1e-12))

		if dz != nil {
			g := dz.Row(i)
			for j, pj := range p {
				g[j] = w * pj / b
			}
			g[y] -= w / b
		}
	}
	return loss / b
}

// contrastive berechnet den paarweisen Margin-Kontrastverlust: gleiche
// Klassen d^2, verschiedene Klassen max(0, margin-d)^2, gemittelt ueber alle
// Paare. dh erhaelt den Gradienten bezueglich der Repraesentation.
func (m *Model) contrastive(repr *ml.Tensor, labels []int32, dh *ml.Tensor) float64 {
	b := len(labels)
	if b < 2 {
		return 0
	}

	pairs := float64(b*(b-1)) / 2
	diff := make([]float64, repr.Dim(1))
	var loss float64
	for i := range b {
		for j := i + 1; j < b; j++ {
			var sq float64
			for k, v := range repr.Row(i) {
				diff[k] = v - repr.Row(j)[k]
				sq += diff[k] * diff[k]
			}

			var scale float64
			if labels[i] == labels[j] {
				loss += sq
				scale = 2 / pairs
			} else {
				d := math.Sqrt(sq)
				if d >= m.margin {
					continue
				}
				loss += (m.margin - d) * (m.margin - d)
				if d > 0 {
					scale = -2 * (m.margin - d) / (pairs * d)
				}
			}

			if dh != nil && scale != 0 {
				gi, gj := dh.Row(i), dh.Row(j)
				for k, v := range diff {
					gi[k] += scale * v
					gj[k] -= scale * v
				}
			}
		}
	}
	return loss / pairs
}
