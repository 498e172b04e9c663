package dataset

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cortml/cort/ml"
)

func TestBalancedClassWeights(t *testing.T) {
	labels := []int32{0, 0, 0, 1, 2, 2}

	got := BalancedClassWeights(labels)
	want := map[int]float64{0: 6.0 / 9, 1: 6.0 / 3, 2: 6.0 / 6}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BalancedClassWeights() mismatch (-want +got):\n%s", diff)
	}

	// Gewichte ueber alle Beispiele gemittelt ergeben 1
	var sum float64
	for _, l := range labels {
		sum += got[int(l)]
	}
	if avg := sum / float64(len(labels)); math.Abs(avg-1) > 1e-12 {
		t.Errorf("mittleres Gewicht = %v, erwartet 1", avg)
	}
}

func TestNewClassWeights(t *testing.T) {
	cw, err := NewClassWeights(map[int]float64{1: 0.5, 0: 2})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(ClassWeights{2, 0.5}, cw); diff != "" {
		t.Errorf("NewClassWeights() mismatch:\n%s", diff)
	}

	for _, m := range []map[int]float64{
		{0: 1, 2: 1},
		{1: 1},
		{-1: 1, 0: 1},
	} {
		if _, err := NewClassWeights(m); !errors.Is(err, ErrNonContiguousClasses) {
			t.Errorf("NewClassWeights(%v) = %v, erwartet ErrNonContiguousClasses", m, err)
		}
	}
}

func TestRearrange(t *testing.T) {
	cw := ClassWeights{0.5, 1, 2}
	ids := []int32{2, 0, 1, 2}

	byIndex, err := cw.Rearrange(ml.FromInts(ids))
	if err != nil {
		t.Fatal(err)
	}

	byOneHot, err := cw.Rearrange(ml.OneHot(ids, 3))
	if err != nil {
		t.Fatal(err)
	}

	want := []float64{2, 0.5, 1, 2}
	if diff := cmp.Diff(want, byIndex); diff != "" {
		t.Errorf("Index-Labels mismatch:\n%s", diff)
	}
	if diff := cmp.Diff(byIndex, byOneHot); diff != "" {
		t.Errorf("One-Hot und Index liefern unterschiedliche Gewichte:\n%s", diff)
	}

	// Spaltenvektor [n, 1] wird als Index gelesen
	column := ml.NewTensor([]float64{1, 2}, 2, 1)
	got, err := cw.Rearrange(column)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{1, 2}, got); diff != "" {
		t.Errorf("Spaltenvektor mismatch:\n%s", diff)
	}

	if _, err := cw.Rearrange(ml.FromInts([]int32{3})); err == nil {
		t.Error("Klasse ausserhalb der Tabelle sollte fehlschlagen")
	}
}

func TestClassWeightMap(t *testing.T) {
	fn := ClassWeightMap(ClassWeights{1, 3}, ClassWeights{0.5, 2})

	b, err := fn(Batch{
		InputIDs: [][]int32{{1}, {2}},
		Sections: []int32{1, 0},
		Labels:   []int32{0, 1},
	})
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]float64{3, 1}, b.SectionWeights); diff != "" {
		t.Errorf("SectionWeights mismatch:\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0.5, 2}, b.LabelWeights); diff != "" {
		t.Errorf("LabelWeights mismatch:\n%s", diff)
	}
	if b.Arity() != 3 {
		t.Errorf("Arity() = %d, erwartet 3", b.Arity())
	}

	noSections := ClassWeightMap(nil, ClassWeights{1, 1})
	b, err = noSections(Batch{InputIDs: [][]int32{{1}}, Sections: []int32{0}, Labels: []int32{1}})
	if err != nil {
		t.Fatal(err)
	}
	if b.SectionWeights != nil {
		t.Errorf("SectionWeights = %v, erwartet nil", b.SectionWeights)
	}
}
