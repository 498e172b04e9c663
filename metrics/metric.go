// metric.go - Laufende Metriken fuer Training und Validierung
//
// Dieses Modul enthaelt:
// - Mean: Laufender Mittelwert (Losses)
// - CategoricalAccuracy: Anteil korrekter arg-max Vorhersagen
// - Precision/Recall: Schwellwert 0.5 ueber alle One-Hot-Zellen
// - F1Score: micro/macro mit Binarisierung ueber das Zeilen-Maximum
package metrics

import (
	"fmt"

	"github.com/cortml/cort/ml"
)

// Metric ist eine benannte laufende Statistik
type Metric interface {
	Name() string
	Result() float64
	Reset()
}

// ConfusionMetric wird mit One-Hot-Labels und Wahrscheinlichkeiten aktualisiert
type ConfusionMetric interface {
	Metric
	Update(yTrue, yPred *ml.Tensor) error
}

func checkShapes(yTrue, yPred *ml.Tensor) error {
	if yTrue.Rank() != 2 || !yTrue.SameShape(yPred) {
		return fmt.Errorf("metrics: labels %v and predictions %v must be matching [batch, classes] tensors", yTrue.Shape(), yPred.Shape())
	}
	return nil
}

func divNoNaN(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// Mean ist der laufende Mittelwert aller Updates
type Mean struct {
	name  string
	total float64
	count float64
}

func NewMean(name string) *Mean { return &Mean{name: name} }

func (m *Mean) Name() string { return m.name }

// Update fuegt einen Wert hinzu
func (m *Mean) Update(v float64) {
	m.total += v
	m.count++
}

func (m *Mean) Result() float64 { return divNoNaN(m.total, m.count) }

func (m *Mean) Reset() { m.total, m.count = 0, 0 }

// CategoricalAccuracy vergleicht arg-max von Label und Vorhersage
type CategoricalAccuracy struct {
	name           string
	correct, total float64
}

func NewCategoricalAccuracy(name string) *CategoricalAccuracy {
	return &CategoricalAccuracy{name: name}
}

func (m *CategoricalAccuracy) Name() string { return m.name }

func (m *CategoricalAccuracy) Update(yTrue, yPred *ml.Tensor) error {
	if err := checkShapes(yTrue, yPred); err != nil {
		return err
	}

	want, got := yTrue.ArgmaxRows(), yPred.ArgmaxRows()
	for i := range want {
		if want[i] == got[i] {
			m.correct++
		}
		m.total++
	}
	return nil
}

func (m *CategoricalAccuracy) Result() float64 { return divNoNaN(m.correct, m.total) }

func (m *CategoricalAccuracy) Reset() { m.correct, m.total = 0, 0 }

// threshold fuer Precision und Recall
const threshold = 0.5

type cellCounts struct {
	tp, fp, fn float64
}

func (c *cellCounts) update(yTrue, yPred *ml.Tensor) error {
	if err := checkShapes(yTrue, yPred); err != nil {
		return err
	}

	pred := yPred.Floats()
	for i, t := range yTrue.Floats() {
		positive := pred[i] > threshold
		switch {
		case positive && t == 1:
			c.tp++
		case positive:
			c.fp++
		case t == 1:
			c.fn++
		}
	}
	return nil
}

// Precision zaehlt Zellen mit Vorhersage > 0.5 als positiv
type Precision struct {
	name string
	cellCounts
}

func NewPrecision(name string) *Precision { return &Precision{name: name} }

func (m *Precision) Name() string { return m.name }

func (m *Precision) Update(yTrue, yPred *ml.Tensor) error { return m.update(yTrue, yPred) }

func (m *Precision) Result() float64 { return divNoNaN(m.tp, m.tp+m.fp) }

func (m *Precision) Reset() { m.cellCounts = cellCounts{} }

// Recall zaehlt Zellen mit Vorhersage > 0.5 als positiv
type Recall struct {
	name string
	cellCounts
}

func NewRecall(name string) *Recall { return &Recall{name: name} }

func (m *Recall) Name() string { return m.name }

func (m *Recall) Update(yTrue, yPred *ml.Tensor) error { return m.update(yTrue, yPred) }

func (m *Recall) Result() float64 { return divNoNaN(m.tp, m.tp+m.fn) }

func (m *Recall) Reset() { m.cellCounts = cellCounts{} }

// Average waehlt die Mittelung des F1-Scores
type Average int

const (
	Micro Average = iota
	Macro
)

// F1Score binarisiert jede Vorhersage-Zeile auf ihr Maximum und zaehlt
// TP/FP/FN pro Klasse
type F1Score struct {
	name    string
	average Average
	classes int

	tp, fp, fn []float64
}

func NewF1Score(name string, numClasses int, average Average) *F1Score {
	return &F1Score{
		name:    name,
		average: average,
		classes: numClasses,
		tp:      make([]float64, numClasses),
		fp:      make([]float64, numClasses),
		fn:      make([]float64, numClasses),
	}
}

func (m *F1Score) Name() string { return m.name }

func (m *F1Score) Update(yTrue, yPred *ml.Tensor) error {
	if err := checkShapes(yTrue, yPred); err != nil {
		return err
	}
	if yTrue.Dim(1) != m.classes {
		return fmt.Errorf("metrics: %s expects %d classes, got %d", m.name, m.classes, yTrue.Dim(1))
	}

	for i := range yTrue.Dim(0) {
		want, row := yTrue.Row(i), yPred.Row(i)
		top := row[0]
		for _, v := range row[1:] {
			top = max(top, v)
		}

		for c := range m.classes {
			positive := row[c] >= top
			switch {
			case positive && want[c] == 1:
				m.tp[c]++
			case positive:
				m.fp[c]++
			case want[c] == 1:
				m.fn[c]++
			}
		}
	}
	return nil
}

func f1(tp, fp, fn float64) float64 {
	p, r := divNoNaN(tp, tp+fp), divNoNaN(tp, tp+fn)
	return divNoNaN(2*p*r, p+r)
}

func (m *F1Score) Result() float64 {
	if m.average == Micro {
		var tp, fp, fn float64
		for c := range m.classes {
			tp, fp, fn = tp+m.tp[c], fp+m.fp[c], fn+m.fn[c]
		}
		return f1(tp, fp, fn)
	}

	var sum float64
	for c := range m.classes {
		sum += f1(m.tp[c], m.fp[c], m.fn[c])
	}
	return divNoNaN(sum, float64(m.classes))
}

func (m *F1Score) Reset() {
	clear(m.tp)
	clear(m.fp)
	clear(m.fn)
}
