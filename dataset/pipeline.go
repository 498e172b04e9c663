// pipeline.go - Verkettbare Datensatz-Operationen
//
// Dieses Modul enthaelt:
// - Batch: Ein Batch mit Eingaben, Labels und optionalen Gewichten
// - Iterator/Dataset: Lazy Pipeline, jede Iteration oeffnet die Quelle neu
// - Map, Prefetch, Shuffle, Repeat, Take
package dataset

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"sync/atomic"

	"github.com/emirpasic/gods/v2/lists/arraylist"
)

// Batch ist ein Batch von Beispielen. Die Gewichte werden von ClassWeightMap gesetzt.
type Batch struct {
	InputIDs [][]int32
	Sections []int32
	Labels   []int32

	SectionWeights []float64
	LabelWeights   []float64
}

// Size gibt die Anzahl der Beispiele zurueck
func (b Batch) Size() int {
	return len(b.InputIDs)
}

// Arity zaehlt die Elemente des Batch-Tupels: Eingaben, Labels, Gewichte
func (b Batch) Arity() int {
	n := 1
	if b.Labels != nil {
		n++
	}
	if b.LabelWeights != nil || b.SectionWeights != nil {
		n++
	}
	return n
}

// Slice liefert die Beispiele [start, end) als eigenen Batch
func (b Batch) Slice(start, end int) Batch {
	out := Batch{InputIDs: b.InputIDs[start:end]}
	if b.Sections != nil {
		out.Sections = b.Sections[start:end]
	}
	if b.Labels != nil {
		out.Labels = b.Labels[start:end]
	}
	if b.SectionWeights != nil {
		out.SectionWeights = b.SectionWeights[start:end]
	}
	if b.LabelWeights != nil {
		out.LabelWeights = b.LabelWeights[start:end]
	}
	return out
}

// Iterator liefert Batches bis io.EOF
type Iterator interface {
	Next(ctx context.Context) (Batch, error)
	Close()
}

// MapFunc transformiert einen Batch
type MapFunc func(Batch) (Batch, error)

// Dataset ist eine Pipeline-Beschreibung. Iter oeffnet eine neue Iteration.
type Dataset struct {
	open func(ctx context.Context) Iterator
}

// FromSource erstellt ein Dataset mit einem Durchlauf ueber src
func FromSource(src Source) Dataset {
	return Dataset{open: src.Open}
}

// Iter startet eine Iteration. Der Aufrufer muss Close aufrufen.
func (d Dataset) Iter(ctx context.Context) Iterator {
	return d.open(ctx)
}

type funcIter struct {
	next  func(ctx context.Context) (Batch, error)
	close func()
}

func (it *funcIter) Next(ctx context.Context) (Batch, error) { return it.next(ctx) }

func (it *funcIter) Close() {
	if it.close != nil {
		it.close()
	}
}

// Map wendet fn auf jeden Batch an
func (d Dataset) Map(fn MapFunc) Dataset {
	return Dataset{open: func(ctx context.Context) Iterator {
		up := d.open(ctx)
		return &funcIter{
			next: func(ctx context.Context) (Batch, error) {
				b, err := up.Next(ctx)
				if err != nil {
					return b, err
				}
				return fn(b)
			},
			close: up.Close,
		}
	}}
}

type result struct {
	batch Batch
	err   error
}

// Prefetch liest bis zu n Batches im Hintergrund voraus
func (d Dataset) Prefetch(n int) Dataset {
	return Dataset{open: func(ctx context.Context) Iterator {
		ctx, cancel := context.WithCancel(ctx)
		up := d.open(ctx)
		ch := make(chan result, max(n, 1))
		done := make(chan struct{})

		go func() {
			defer close(done)
			defer close(ch)
			for {
				b, err := up.Next(ctx)
				select {
				case ch <- result{b, err}:
				case <-ctx.Done():
					return
				}
				if err != nil {
					return
				}
			}
		}()

		return &funcIter{
			next: func(ctx context.Context) (Batch, error) {
				select {
				case r, ok := <-ch:
					if !ok {
						return Batch{}, io.EOF
					}
					return r.batch, r.err
				case <-ctx.Done():
					return Batch{}, ctx.Err()
				}
			},
			close: func() {
				cancel()
				<-done
				up.Close()
			},
		}
	}}
}

// Shuffle mischt Batches mit einem Puffer der Groesse buffer. Jede Iteration
// zieht einen neuen Seed aus seed und der Anzahl bisheriger Iterationen.
func (d Dataset) Shuffle(buffer int, seed uint64) Dataset {
	var pass atomic.Uint64
	return Dataset{open: func(ctx context.Context) Iterator {
		up := d.open(ctx)
		rng := rand.New(rand.NewPCG(seed, pass.Add(1)))

		buf := arraylist.New[*Batch]()
		exhausted := false

		return &funcIter{
			next: func(ctx context.Context) (Batch, error) {
				for !exhausted && buf.Size() < max(buffer, 1) {
					b, err := up.Next(ctx)
					if errors.Is(err, io.EOF) {
						exhausted = true
						break
					} else if err != nil {
						return Batch{}, err
					}
					buf.Add(&b)
				}

				if buf.Size() == 0 {
					return Batch{}, io.EOF
				}

				i := rng.IntN(buf.Size())
				b, _ := buf.Get(i)
				last, _ := buf.Get(buf.Size() - 1)
				buf.Set(i, last)
				buf.Remove(buf.Size() - 1)
				return *b, nil
			},
			close: up.Close,
		}
	}}
}

// Repeat oeffnet die Quelle nach io.EOF erneut. Eine leere Quelle beendet die Iteration.
func (d Dataset) Repeat() Dataset {
	return Dataset{open: func(openCtx context.Context) Iterator {
		up := d.open(openCtx)
		produced := false

		return &funcIter{
			next: func(ctx context.Context) (Batch, error) {
				for {
					b, err := up.Next(ctx)
					if !errors.Is(err, io.EOF) {
						produced = produced || err == nil
						return b, err
					}
					if !produced {
						return Batch{}, io.EOF
					}

					up.Close()
					up = d.open(openCtx)
					produced = false
				}
			},
			close: func() { up.Close() },
		}
	}}
}

// Take begrenzt die Iteration auf n Batches
func (d Dataset) Take(n int) Dataset {
	return Dataset{open: func(ctx context.Context) Iterator {
		up := d.open(ctx)
		taken := 0

		return &funcIter{
			next: func(ctx context.Context) (Batch, error) {
				if taken >= n {
					return Batch{}, io.EOF
				}
				b, err := up.Next(ctx)
				if err == nil {
					taken++
				}
				return b, err
			},
			close: up.Close,
		}
	}}
}
