package dataset

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/cortml/cort/ml"
)

// ErrNonContiguousClasses is returned when a class-weight map does not cover
// exactly the class ids 0..n-1.
var ErrNonContiguousClasses = errors.New("class weights must have keys from 0 to one less than the number of classes")

// ClassWeights is a dense weight table indexed by class id.
type ClassWeights []float64

// NewClassWeights converts a class id → weight map into a dense table.
func NewClassWeights(m map[int]float64) (ClassWeights, error) {
	keys := slices.Sorted(maps.Keys(m))
	for i, k := range keys {
		if k != i {
			return nil, fmt.Errorf("%w, found %v", ErrNonContiguousClasses, keys)
		}
	}

	cw := make(ClassWeights, len(keys))
	for k, w := range m {
		cw[k] = w
	}

	return cw, nil
}

// BalancedClassWeights computes n / (classes * count) for every class
// present in labels, so the per-example weights average to 1.
func BalancedClassWeights(labels []int32) map[int]float64 {
	counts := make(map[int]int)
	for _, l := range labels {
		counts[int(l)]++
	}

	out := make(map[int]float64, len(counts))
	for c, n := range counts {
		out[c] = float64(len(labels)) / float64(len(counts)*n)
	}

	return out
}

// Rearrange returns the weight of every example in labels. Rank-2 labels
// wider than one column are treated as one-hot rows and reduced by arg-max,
// anything else is read as class indices.
func (cw ClassWeights) Rearrange(labels *ml.Tensor) ([]float64, error) {
	var classes []int
	if labels.Rank() == 2 && labels.Dim(1) > 1 {
		classes = labels.ArgmaxRows()
	} else {
		classes = make([]int, labels.Len())
		for i, v := range labels.Floats() {
			classes[i] = int(v)
		}
	}

	out := make([]float64, len(classes))
	for i, c := range classes {
		if c < 0 || c >= len(cw) {
			return nil, fmt.Errorf("class id %d outside weight table of %d classes", c, len(cw))
		}
		out[i] = cw[c]
	}

	return out, nil
}

// ClassWeightMap attaches per-example section and label weights to every
// batch. A nil sections table leaves SectionWeights unset.
func ClassWeightMap(sections, labels ClassWeights) MapFunc {
	return func(b Batch) (Batch, error) {
		if sections != nil && b.Sections != nil {
			w, err := sections.Rearrange(ml.FromInts(b.Sections))
			if err != nil {
				return b, fmt.Errorf("section weights: %w", err)
			}
			b.SectionWeights = w
		}

		w, err := labels.Rearrange(ml.FromInts(b.Labels))
		if err != nil {
			return b, fmt.Errorf("label weights: %w", err)
		}
		b.LabelWeights = w

		return b, nil
	}
}
