package dataset

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sync/atomic"

	"github.com/cortml/cort/ml"
)

// Source produces one pass over a split as batches.
type Source interface {
	// Steps is the number of batches per pass.
	Steps() int
	Open(ctx context.Context) Iterator
}

// EagerSource serves pre-tokenized examples in contiguous batches. The last
// batch of a pass may be short.
type EagerSource struct {
	ex        Examples
	batchSize int
}

func NewEagerSource(ex Examples, batchSize int) *EagerSource {
	return &EagerSource{ex: ex, batchSize: batchSize}
}

func (s *EagerSource) Steps() int {
	return (s.ex.Len() + s.batchSize - 1) / s.batchSize
}

// Batch returns the i-th batch of the pass.
func (s *EagerSource) Batch(i int) Batch {
	start := i * s.batchSize
	end := min(start+s.batchSize, s.ex.Len())
	all := Batch{InputIDs: s.ex.InputIDs, Sections: s.ex.Sections, Labels: s.ex.Labels}
	return all.Slice(start, end)
}

func (s *EagerSource) Open(ctx context.Context) Iterator {
	i := 0
	return &funcIter{next: func(ctx context.Context) (Batch, error) {
		if err := ctx.Err(); err != nil {
			return Batch{}, err
		}
		if i >= s.Steps() {
			return Batch{}, io.EOF
		}
		b := s.Batch(i)
		i++
		return b, nil
	}}
}

// LazySource keeps raw texts and tokenizes one batch at a time, padded to
// the longest sequence in that batch.
type LazySource struct {
	ex        Examples
	tok       ml.Tokenizer
	batchSize int
	maxLength int
	steps     int

	shuffle bool
	seed    uint64
	pass    atomic.Uint64
}

// NewLazySource builds a lazy source. Training sources drop the trailing
// partial batch and reshuffle the example order on every pass; validation
// sources keep it and preserve order.
func NewLazySource(ex Examples, tok ml.Tokenizer, batchSize, maxLength int, training bool, seed uint64) *LazySource {
	steps := (ex.Len() + batchSize - 1) / batchSize
	if training {
		steps = ex.Len() / batchSize
	}

	return &LazySource{
		ex:        ex,
		tok:       tok,
		batchSize: batchSize,
		maxLength: maxLength,
		steps:     steps,
		shuffle:   training,
		seed:      seed,
	}
}

func (s *LazySource) Steps() int {
	return s.steps
}

func (s *LazySource) Open(ctx context.Context) Iterator {
	order := make([]int, s.ex.Len())
	for i := range order {
		order[i] = i
	}

	if s.shuffle {
		rng := rand.New(rand.NewPCG(s.seed, s.pass.Add(1)))
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	i := 0
	return &funcIter{next: func(ctx context.Context) (Batch, error) {
		if err := ctx.Err(); err != nil {
			return Batch{}, err
		}
		if i >= s.steps {
			return Batch{}, io.EOF
		}

		start := i * s.batchSize
		end := min(start+s.batchSize, len(order))
		i++

		part := s.ex.Subset(order[start:end])
		ids, err := s.tok.Encode(part.Texts, ml.TokenizeOptions{
			Padding:    ml.PaddingLongest,
			Truncation: true,
			MaxLength:  s.maxLength,
		})
		if err != nil {
			return Batch{}, fmt.Errorf("tokenize batch %d: %w", i-1, err)
		}

		return Batch{InputIDs: ids, Sections: part.Sections, Labels: part.Labels}, nil
	}}
}

// SourceOptions selects and configures a Source.
type SourceOptions struct {
	BatchSize int
	MaxLength int
	Training  bool
	Seed      uint64
}

// NewSource returns an EagerSource for tokenized examples and a LazySource
// for raw texts.
func NewSource(ex Examples, tok ml.Tokenizer, opts SourceOptions) (Source, error) {
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}

	if ex.Eager() {
		return NewEagerSource(ex, opts.BatchSize), nil
	}

	if tok == nil {
		return nil, fmt.Errorf("lazy source requires a tokenizer")
	}

	return NewLazySource(ex, tok, opts.BatchSize, opts.MaxLength, opts.Training, opts.Seed), nil
}
