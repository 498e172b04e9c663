package train

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cortml/cort/dataset"
	"github.com/cortml/cort/distribute"
	"github.com/cortml/cort/metrics"
	"github.com/cortml/cort/ml"
	"github.com/cortml/cort/track"
)

// fakeModel liefert perfekte Vorhersagen, einen konstanten Verlust und
// Einsen als Gradienten
type fakeModel struct {
	params []*ml.Parameter
	calls  atomic.Int32
	saved  []string
}

func newFakeModel() *fakeModel {
	return &fakeModel{params: []*ml.Parameter{{Name: "w", Value: ml.Zeros(2)}}}
}

func (m *fakeModel) Parameters() []*ml.Parameter { return m.params }

func (m *fakeModel) Forward(_ context.Context, in ml.Inputs, training bool) (ml.Result, error) {
	m.calls.Add(1)

	res := ml.Result{
		Loss: 0.75,
		Outputs: ml.Outputs{
			ml.OutputContrastiveLoss:  ml.Scalar(0.25),
			ml.OutputCrossEntropyLoss: ml.Scalar(0.5),
			ml.OutputOneHotLabels:     ml.OneHot(in.Labels, 2),
			ml.OutputProbs:            ml.OneHot(in.Labels, 2),
		},
	}
	if training {
		res.Gradients = []*ml.Tensor{ml.NewTensor([]float64{1, 1}, 2)}
	}
	return res, nil
}

func (m *fakeModel) SaveWeights(path string) error {
	m.saved = append(m.saved, path)
	return nil
}

func (m *fakeModel) LoadWeights(string) error { return nil }

// fakeOptimizer merkt sich alle angewendeten Gradienten
type fakeOptimizer struct {
	applied [][]float64
}

func (o *fakeOptimizer) Apply(grads []*ml.Tensor, _ []*ml.Parameter) error {
	o.applied = append(o.applied, append([]float64(nil), grads[0].Floats()...))
	return nil
}

func (o *fakeOptimizer) LearningRate(step int) float64 { return 0.001 * float64(step+1) }

func (o *fakeOptimizer) Iterations() int { return len(o.applied) }

func syntheticExamples(n int) dataset.Examples {
	ex := dataset.Examples{}
	for i := range n {
		ex.InputIDs = append(ex.InputIDs, []int32{1, int32(3 + i), 2})
		ex.Labels = append(ex.Labels, int32(i%2))
		ex.Sections = append(ex.Sections, 0)
	}
	return ex
}

func oneDevice(t *testing.T) distribute.Strategy {
	t.Helper()
	s, err := distribute.New([]ml.DeviceInfo{{Name: "cpu"}}, false)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newSession(t *testing.T) track.Session {
	t.Helper()
	s, err := track.NewSession("CoRT", "CoRT-KFOLD_1", "")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAccumulationBoundary(t *testing.T) {
	var got []int
	numSteps := 0
	for step := range 12 {
		if AccumulationBoundary(step, 4, numSteps) {
			got = append(got, step)
			numSteps++
		}
	}

	if diff := cmp.Diff([]int{0, 3, 7, 11}, got); diff != "" {
		t.Errorf("Grenzen falsch (-erwartet +bekommen):\n%s", diff)
	}

	if !AccumulationBoundary(5, 4, 0) {
		t.Error("globaler Schritt 0 muss immer anwenden")
	}
	if !AccumulationBoundary(0, 1, 9) {
		t.Error("ohne Akkumulation ist jeder Schritt eine Grenze")
	}
}

// TestFitOneEpoch: 5 Folds, Fold 0, eine Epoche, keine Akkumulation,
// mit frueher Evaluation
func TestFitOneEpoch(t *testing.T) {
	ctx := context.Background()

	folded, err := dataset.SplitFold(syntheticExamples(20), dataset.FoldOptions{
		K: 5, Fold: 0, Seed: 42, BatchSize: 4, GradientAccumulationSteps: 1, NumLabels: 2,
	})
	if err != nil {
		t.Fatal(err)
	}

	trainDS, validDS, err := dataset.Assemble(folded, nil, dataset.AssembleOptions{BatchSize: 4, Seed: 42})
	if err != nil {
		t.Fatal(err)
	}

	m := newFakeModel()
	opt := &fakeOptimizer{}
	tracker := track.NewMemory(newSession(t))

	var out bytes.Buffer
	trainer := New(m, opt, oneDevice(t), tracker, Options{
		Epochs:                    1,
		GradientAccumulationSteps: 1,
		Tasks:                     metrics.NewTaskSet(2, 0, false),
	})
	trainer.Out = &out

	logs, err := trainer.Fit(ctx, trainDS, validDS, folded.StepsPerEpoch)
	if err != nil {
		t.Fatal(err)
	}

	if folded.StepsPerEpoch != 4 {
		t.Fatalf("erwartet 4 Schritte pro Epoche, bekommen %d", folded.StepsPerEpoch)
	}

	if trainer.NumSteps() != folded.StepsPerEpoch {
		t.Errorf("num_steps: erwartet %d, bekommen %d", folded.StepsPerEpoch, trainer.NumSteps())
	}

	var valSteps, batchSteps []int
	for _, e := range tracker.Entries() {
		_, isVal := e.Values[Monitor]
		_, isBatch := e.Values[LearningRateKey]
		switch {
		case isVal && !isBatch:
			valSteps = append(valSteps, e.Step)
		case isBatch && !isVal:
			batchSteps = append(batchSteps, e.Step)
		default:
			t.Errorf("unerwarteter Log-Eintrag: %v", e.Values)
		}
	}

	if diff := cmp.Diff([]int{0, 4}, valSteps); diff != "" {
		t.Errorf("Validierungs-Logs (-erwartet +bekommen):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3}, batchSteps); diff != "" {
		t.Errorf("Batch-Logs (-erwartet +bekommen):\n%s", diff)
	}

	if len(opt.applied) != 4 {
		t.Errorf("erwartet 4 Optimizer-Schritte, bekommen %d", len(opt.applied))
	}

	// 1 fruehe Evaluation + 4 Trainings-Batches + 1 Evaluation
	if got := m.calls.Load(); got != 6 {
		t.Errorf("erwartet 6 Forward-Aufrufe, bekommen %d", got)
	}

	for _, key := range []string{metrics.TotalLoss, "accuracy", Monitor, "val_accuracy"} {
		if _, ok := logs[key]; !ok {
			t.Errorf("Epochen-Log ohne %q", key)
		}
	}
	if logs[metrics.TotalLoss] != 0.75 || logs["val_accuracy"] != 1 {
		t.Errorf("unerwartete Werte: %v", logs)
	}

	if !strings.Contains(out.String(), "Epoch 1/1") {
		t.Errorf("Epochen-Kopfzeile fehlt: %q", out.String())
	}
	if len(trainer.History()) != 1 {
		t.Errorf("erwartet 1 Epoche in der Historie, bekommen %d", len(trainer.History()))
	}
}

func TestFitAccumulation(t *testing.T) {
	ctx := context.Background()
	ds := dataset.FromSource(dataset.NewEagerSource(syntheticExamples(8), 2)).Repeat()

	opt := &fakeOptimizer{}
	trainer := New(newFakeModel(), opt, oneDevice(t), track.Nop{}, Options{
		Epochs:                    1,
		GradientAccumulationSteps: 2,
		SkipEarlyEval:             true,
		Tasks:                     metrics.NewTaskSet(2, 0, false),
	})
	trainer.Out = &bytes.Buffer{}

	if _, err := trainer.Fit(ctx, ds, ds.Take(1), 2); err != nil {
		t.Fatal(err)
	}

	// Micro-Schritte 0..3: Grenzen bei 0 (erster globaler Schritt), 1 und 3
	if trainer.NumSteps() != 3 {
		t.Fatalf("erwartet 3 Optimizer-Schritte, bekommen %d", trainer.NumSteps())
	}

	c := 1 / math.Sqrt2
	want := [][]float64{{0.5, 0.5}, {0.5, 0.5}, {c, c}}
	if diff := cmp.Diff(want, opt.applied, cmp.Comparer(func(a, b float64) bool { return math.Abs(a-b) < 1e-12 })); diff != "" {
		t.Errorf("angewendete Gradienten (-erwartet +bekommen):\n%s", diff)
	}
}

type recorder struct {
	BaseCallback
	events []string
}

func (r *recorder) OnTrainBegin(context.Context) error {
	r.events = append(r.events, "train_begin")
	return nil
}

func (r *recorder) OnEpochBegin(context.Context, int) error {
	r.events = append(r.events, "epoch_begin")
	return nil
}

func (r *recorder) OnEpochEnd(context.Context, int, metrics.Logs) error {
	r.events = append(r.events, "epoch_end")
	return nil
}

func (r *recorder) OnTrainBatchEnd(context.Context, int, metrics.Logs) error {
	r.events = append(r.events, "batch_end")
	return nil
}

func (r *recorder) OnTestBegin(context.Context) error {
	r.events = append(r.events, "test_begin")
	return nil
}

func (r *recorder) OnTrainEnd(context.Context, metrics.Logs) error {
	r.events = append(r.events, "train_end")
	return nil
}

func TestFitCallbacks(t *testing.T) {
	ds := dataset.FromSource(dataset.NewEagerSource(syntheticExamples(4), 2))

	rec := &recorder{}
	trainer := New(newFakeModel(), &fakeOptimizer{}, oneDevice(t), track.Nop{}, Options{
		Epochs:                    2,
		InitialEpoch:              1,
		GradientAccumulationSteps: 1,
		Tasks:                     metrics.NewTaskSet(2, 0, false),
	}, rec)
	trainer.Out = &bytes.Buffer{}

	if _, err := trainer.Fit(context.Background(), ds.Repeat(), ds, 2); err != nil {
		t.Fatal(err)
	}

	// die fruehe Evaluation ruft keine Callbacks auf
	want := []string{"train_begin", "epoch_begin", "batch_end", "batch_end", "test_begin", "epoch_end", "train_end"}
	if diff := cmp.Diff(want, rec.events); diff != "" {
		t.Errorf("Callback-Reihenfolge (-erwartet +bekommen):\n%s", diff)
	}
}

func TestFitEarlyStopping(t *testing.T) {
	ds := dataset.FromSource(dataset.NewEagerSource(syntheticExamples(4), 2))

	trainer := New(newFakeModel(), &fakeOptimizer{}, oneDevice(t), track.Nop{}, Options{
		Epochs:                    10,
		GradientAccumulationSteps: 1,
		SkipEarlyEval:             true,
		Tasks:                     metrics.NewTaskSet(2, 0, false),
	}, NewEarlyStopping(Monitor, 2))
	trainer.Out = &bytes.Buffer{}

	if _, err := trainer.Fit(context.Background(), ds.Repeat(), ds, 2); err != nil {
		t.Fatal(err)
	}

	// konstanter Verlust: Epoche 1 setzt das Optimum, 2 und 3 verbessern nicht
	if got := len(trainer.History()); got != 3 {
		t.Errorf("erwartet 3 Epochen, bekommen %d", got)
	}
}

func TestFitInputArity(t *testing.T) {
	ex := syntheticExamples(4)
	ds := dataset.FromSource(dataset.NewEagerSource(ex, 2)).Map(func(b dataset.Batch) (dataset.Batch, error) {
		b.Labels = nil
		return b, nil
	})

	trainer := New(newFakeModel(), &fakeOptimizer{}, oneDevice(t), track.Nop{}, Options{
		Epochs:                    1,
		GradientAccumulationSteps: 1,
		SkipEarlyEval:             true,
		Tasks:                     metrics.NewTaskSet(2, 0, false),
	})
	trainer.Out = &bytes.Buffer{}

	_, err := trainer.Fit(context.Background(), ds.Repeat(), ds, 1)
	if !errors.Is(err, ErrInputArity) {
		t.Errorf("erwartet ErrInputArity, bekommen %v", err)
	}
}

func TestFitDatasetExhausted(t *testing.T) {
	ds := dataset.FromSource(dataset.NewEagerSource(syntheticExamples(4), 2))

	trainer := New(newFakeModel(), &fakeOptimizer{}, oneDevice(t), track.Nop{}, Options{
		Epochs:                    1,
		GradientAccumulationSteps: 2,
		SkipEarlyEval:             true,
		Tasks:                     metrics.NewTaskSet(2, 0, false),
	})
	trainer.Out = &bytes.Buffer{}

	// 2 Batches vorhanden, 3 Schritte x 2 Micro-Batches verlangt
	_, err := trainer.Fit(context.Background(), ds, ds, 3)
	if !errors.Is(err, ErrDatasetExhausted) {
		t.Errorf("erwartet ErrDatasetExhausted, bekommen %v", err)
	}
}

func TestFitInvalidSteps(t *testing.T) {
	trainer := New(newFakeModel(), &fakeOptimizer{}, oneDevice(t), track.Nop{}, Options{Epochs: 1})
	if _, err := trainer.Fit(context.Background(), dataset.Dataset{}, dataset.Dataset{}, 0); err == nil {
		t.Error("erwartet Fehler fuer 0 Schritte pro Epoche")
	}
}

func batchWithWeights() dataset.Batch {
	return dataset.Batch{
		InputIDs:       [][]int32{{1, 3, 2}, {1, 4, 2}},
		Sections:       []int32{0, 1},
		Labels:         []int32{1, 0},
		SectionWeights: []float64{1, 2},
		LabelWeights:   []float64{0.5, 1.5},
	}
}
