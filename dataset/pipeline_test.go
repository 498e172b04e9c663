package dataset

import (
	"context"
	"errors"
	"io"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// collect liest alle Batches und gibt die erste Input-ID jedes Batches zurueck
func collect(t *testing.T, d Dataset) []int32 {
	t.Helper()

	it := d.Iter(context.Background())
	defer it.Close()

	var out []int32
	for {
		b, err := it.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		} else if err != nil {
			t.Fatal(err)
		}
		out = append(out, b.InputIDs[0][0])
	}
}

func singletons(n int) Dataset {
	return FromSource(NewEagerSource(testExamples(n), 1))
}

func TestEagerSource(t *testing.T) {
	src := NewEagerSource(testExamples(10), 4)
	if src.Steps() != 3 {
		t.Fatalf("Steps() = %d, erwartet 3", src.Steps())
	}

	last := src.Batch(2)
	if last.Size() != 2 {
		t.Errorf("letzter Batch hat %d Beispiele, erwartet 2", last.Size())
	}
	if last.Arity() != 2 {
		t.Errorf("Arity() = %d, erwartet 2", last.Arity())
	}

	if diff := cmp.Diff([]int32{0, 4, 8}, collect(t, FromSource(src))); diff != "" {
		t.Errorf("Batches mismatch:\n%s", diff)
	}
}

func TestTakeRepeat(t *testing.T) {
	got := collect(t, singletons(3).Repeat().Take(7))
	if diff := cmp.Diff([]int32{0, 1, 2, 0, 1, 2, 0}, got); diff != "" {
		t.Errorf("Repeat().Take(7) mismatch:\n%s", diff)
	}

	if got := collect(t, singletons(0).Repeat()); len(got) != 0 {
		t.Errorf("leere Quelle lieferte %v", got)
	}
}

func TestShuffle(t *testing.T) {
	d := singletons(50).Shuffle(16, 3)

	first := collect(t, d)
	second := collect(t, d)

	sorted := slices.Clone(first)
	slices.Sort(sorted)
	want := make([]int32, 50)
	for i := range want {
		want[i] = int32(i)
	}
	if diff := cmp.Diff(want, sorted); diff != "" {
		t.Errorf("Shuffle ist keine Permutation:\n%s", diff)
	}

	if slices.Equal(first, want) {
		t.Error("Shuffle hat die Reihenfolge nicht veraendert")
	}
	if slices.Equal(first, second) {
		t.Error("jede Iteration sollte neu mischen")
	}
}

func TestPrefetch(t *testing.T) {
	got := collect(t, singletons(20).Prefetch(4))
	if len(got) != 20 || !slices.IsSorted(got) {
		t.Errorf("Prefetch veraendert die Reihenfolge: %v", got)
	}

	// vorzeitiges Close darf nicht blockieren
	it := singletons(100).Prefetch(2).Iter(context.Background())
	if _, err := it.Next(context.Background()); err != nil {
		t.Fatal(err)
	}
	it.Close()
}

func TestMapError(t *testing.T) {
	boom := errors.New("boom")
	d := singletons(5).Map(func(b Batch) (Batch, error) {
		if b.InputIDs[0][0] == 2 {
			return b, boom
		}
		return b, nil
	}).Prefetch(2)

	it := d.Iter(context.Background())
	defer it.Close()

	for i := 0; ; i++ {
		_, err := it.Next(context.Background())
		if err == nil {
			continue
		}
		if !errors.Is(err, boom) || i != 2 {
			t.Errorf("Batch %d: Fehler %v, erwartet boom bei Batch 2", i, err)
		}
		break
	}
}

func TestSlice(t *testing.T) {
	b := Batch{
		InputIDs:     [][]int32{{1}, {2}, {3}},
		Labels:       []int32{0, 1, 0},
		LabelWeights: []float64{1, 2, 3},
	}

	s := b.Slice(1, 3)
	if s.Size() != 2 || s.Labels[0] != 1 || s.LabelWeights[1] != 3 || s.Sections != nil {
		t.Errorf("Slice(1, 3) = %+v", s)
	}
}
