package dataset

import (
	"log/slog"

	"github.com/cortml/cort/ml"
)

// Puffergroessen der Trainings-Pipeline
const (
	ShuffleBuffer  = 1024
	PrefetchBuffer = 4
)

// AssembleOptions beschreibt Batch-Groesse und Seed beider Pipelines
type AssembleOptions struct {
	// BatchSize ist die globale Batch-Groesse ueber alle Replikas
	BatchSize int
	MaxLength int
	Seed      uint64
}

// Assemble baut die Trainings- und Validierungs-Pipeline fuer einen Fold.
// Training: Quelle, Klassengewichte, Prefetch, Shuffle, Repeat.
// Validierung: Quelle, Klassengewichte, Prefetch.
func Assemble(folded *Folded, tok ml.Tokenizer, opts AssembleOptions) (train, valid Dataset, err error) {
	trainSrc, err := NewSource(folded.Train, tok, SourceOptions{
		BatchSize: opts.BatchSize,
		MaxLength: opts.MaxLength,
		Training:  true,
		Seed:      opts.Seed,
	})
	if err != nil {
		return Dataset{}, Dataset{}, err
	}

	validSrc, err := NewSource(folded.Valid, tok, SourceOptions{
		BatchSize: opts.BatchSize,
		MaxLength: opts.MaxLength,
		Seed:      opts.Seed,
	})
	if err != nil {
		return Dataset{}, Dataset{}, err
	}

	slog.Debug("assembled datasets", "eager", folded.Train.Eager(), "train_batches", trainSrc.Steps(), "valid_batches", validSrc.Steps())

	weights := ClassWeightMap(folded.SectionWeights, folded.LabelWeights)
	train = FromSource(trainSrc).Map(weights).Prefetch(PrefetchBuffer).Shuffle(ShuffleBuffer, opts.Seed).Repeat()
	valid = FromSource(validSrc).Map(weights).Prefetch(PrefetchBuffer)
	return train, valid, nil
}
