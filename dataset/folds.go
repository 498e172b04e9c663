package dataset

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
)

// ErrInvalidFold is returned when the selected fold index is out of range.
var ErrInvalidFold = errors.New("invalid current fold number")

// Fold is one train/validation partition. Train and Valid are disjoint,
// sorted and together cover every example.
type Fold struct {
	Train []int
	Valid []int
}

// StratifiedKFold partitions the examples into k folds so every class is
// spread over the folds in proportion to its size. Classes are visited in
// order of first appearance; their members are assigned to folds round-robin
// over the label-sorted order and the assignment within each class is
// shuffled with seed.
func StratifiedKFold(labels []int32, k int, seed uint64) ([]Fold, error) {
	n := len(labels)
	if k < 2 {
		return nil, fmt.Errorf("k-fold cross validation requires at least 2 folds, got %d", k)
	}
	if k > n {
		return nil, fmt.Errorf("cannot have number of folds %d greater than the number of examples %d", k, n)
	}

	// classes in order of first appearance
	order := make(map[int32]int)
	var encoded []int
	for _, l := range labels {
		c, ok := order[l]
		if !ok {
			c = len(order)
			order[l] = c
		}
		encoded = append(encoded, c)
	}

	counts := make([]int, len(order))
	for _, c := range encoded {
		counts[c]++
	}

	if slices.Max(counts) < k {
		return nil, fmt.Errorf("n_splits=%d cannot be greater than the number of members in each class", k)
	}
	if m := slices.Min(counts); m < k {
		slog.Warn("the least populated class has fewer members than folds", "members", m, "folds", k)
	}

	// allocation[f][c] = members of class c in fold f
	sorted := slices.Clone(encoded)
	slices.Sort(sorted)
	allocation := make([][]int, k)
	for f := range allocation {
		allocation[f] = make([]int, len(counts))
		for i := f; i < n; i += k {
			allocation[f][sorted[i]]++
		}
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	testFold := make([]int, n)
	for c := range counts {
		var assign []int
		for f := range k {
			for range allocation[f][c] {
				assign = append(assign, f)
			}
		}
		rng.Shuffle(len(assign), func(i, j int) { assign[i], assign[j] = assign[j], assign[i] })

		next := 0
		for i, e := range encoded {
			if e == c {
				testFold[i] = assign[next]
				next++
			}
		}
	}

	folds := make([]Fold, k)
	for i, f := range testFold {
		for j := range folds {
			if j == f {
				folds[j].Valid = append(folds[j].Valid, i)
			} else {
				folds[j].Train = append(folds[j].Train, i)
			}
		}
	}

	return folds, nil
}

// FoldOptions selects a fold and describes the batching it is trained with.
type FoldOptions struct {
	K    int
	Fold int
	Seed uint64

	BatchSize                 int
	GradientAccumulationSteps int

	NumLabels       int
	NumSections     int
	IncludeSections bool
}

// Folded is the train/validation split of one fold plus everything derived
// from the training subset.
type Folded struct {
	Train Examples
	Valid Examples

	// StepsPerEpoch counts optimizer updates, not micro-batches.
	StepsPerEpoch int

	SectionWeights ClassWeights
	LabelWeights   ClassWeights
}

// SplitFold returns the split for opts.Fold. Class weights are computed from
// the training subset of that fold only; section weights only when the
// section task is enabled.
func SplitFold(ex Examples, opts FoldOptions) (*Folded, error) {
	if opts.Fold < 0 || opts.Fold >= opts.K {
		return nil, fmt.Errorf("%w: %d out of total %d folds (expected 0..%d)", ErrInvalidFold, opts.Fold, opts.K, opts.K-1)
	}

	folds, err := StratifiedKFold(ex.Labels, opts.K, opts.Seed)
	if err != nil {
		return nil, err
	}

	fold := folds[opts.Fold]
	out := &Folded{
		Train:         ex.Subset(fold.Train),
		Valid:         ex.Subset(fold.Valid),
		StepsPerEpoch: len(fold.Train) / max(opts.BatchSize, 1) / max(opts.GradientAccumulationSteps, 1),
	}

	if opts.IncludeSections {
		out.SectionWeights, err = NewClassWeights(BalancedClassWeights(out.Train.Sections))
		if err != nil {
			return nil, fmt.Errorf("section weights: %w", err)
		}
	}

	out.LabelWeights, err = NewClassWeights(BalancedClassWeights(out.Train.Labels))
	if err != nil {
		return nil, fmt.Errorf("label weights: %w", err)
	}

	if len(out.LabelWeights) != opts.NumLabels {
		return nil, fmt.Errorf("%w: training subset has %d label classes, configured %d", ErrNonContiguousClasses, len(out.LabelWeights), opts.NumLabels)
	}
	if opts.IncludeSections && len(out.SectionWeights) != opts.NumSections {
		return nil, fmt.Errorf("%w: training subset has %d section classes, configured %d", ErrNonContiguousClasses, len(out.SectionWeights), opts.NumSections)
	}

	slog.Info("Class weights:")
	if opts.IncludeSections {
		slog.Info("- Sections:")
		for i, w := range out.SectionWeights {
			slog.Info(fmt.Sprintf("  - Section #%d: %v", i, w))
		}
	}
	slog.Info("- Labels:")
	for i, w := range out.LabelWeights {
		slog.Info(fmt.Sprintf("  - Label #%d: %v", i, w))
	}

	return out, nil
}
