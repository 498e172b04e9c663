// accumulator.go - Gradienten-Akkumulation ueber mehrere Micro-Batches
//
// Dieses Modul enthaelt:
// - GradientAccumulator: Laufende Summen pro Parameter
// - ClipByGlobalNorm: Skalierung aller Gradienten auf eine maximale Gesamtnorm
package optim

import (
	"fmt"
	"math"

	"github.com/cortml/cort/ml"
)

// GradientAccumulator sums gradients across micro-batches. The first call to
// Accumulate fixes the number of gradients and their shapes; nil entries
// stay nil in that position. Not safe for concurrent use.
type GradientAccumulator struct {
	sums  []*ml.Tensor
	steps int
}

// Accumulate adds grads to the running sums. It panics when grads does not
// match the length or shapes of the first call.
func (a *GradientAccumulator) Accumulate(grads []*ml.Tensor) {
	if a.sums == nil {
		a.sums = make([]*ml.Tensor, len(grads))
		for i, g := range grads {
			if g != nil {
				a.sums[i] = ml.Zeros(g.Shape()...)
			}
		}
	}

	if len(grads) != len(a.sums) {
		panic(fmt.Sprintf("optim: expected %d gradients, got %d", len(a.sums), len(grads)))
	}

	for i, g := range grads {
		switch {
		case g == nil && a.sums[i] == nil:
		case g == nil || a.sums[i] == nil:
			panic(fmt.Sprintf("optim: gradient %d changed between nil and non-nil", i))
		case !g.SameShape(a.sums[i]):
			panic(fmt.Sprintf("optim: gradient %d has shape %v, expected %v", i, g.Shape(), a.sums[i].Shape()))
		default:
			a.sums[i].Add(g)
		}
	}

	a.steps++
}

// Accumulated returns the running sums. The tensors are owned by the
// accumulator and are zeroed by Reset.
func (a *GradientAccumulator) Accumulated() []*ml.Tensor {
	return a.sums
}

// Steps returns the number of Accumulate calls since the last Reset.
func (a *GradientAccumulator) Steps() int {
	return a.steps
}

// Reset zeroes the sums and keeps their shapes.
func (a *GradientAccumulator) Reset() {
	for _, s := range a.sums {
		if s != nil {
			s.Zero()
		}
	}
	a.steps = 0
}

// ClipByGlobalNorm scales every gradient by clipNorm / max(norm, clipNorm),
// where norm is the L2 norm over all gradients. The inputs are not modified.
func ClipByGlobalNorm(grads []*ml.Tensor, clipNorm float64) ([]*ml.Tensor, float64) {
	var sum float64
	for _, g := range grads {
		if g != nil {
			sum += g.SumSquares()
		}
	}
	norm := math.Sqrt(sum)

	scale := clipNorm / math.Max(norm, clipNorm)
	out := make([]*ml.Tensor, len(grads))
	for i, g := range grads {
		if g != nil {
			out[i] = g.Clone().Scale(scale)
		}
	}

	return out, norm
}
