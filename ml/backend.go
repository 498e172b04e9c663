// backend.go - Modell-Interface fuer das CoRT-Training
// Dieses Modul definiert die Schnittstellen, ueber die der Trainings-Loop
// mit dem Modell kommuniziert: Eingaben, Ausgaben, Parameter und Gradienten.
package ml

import (
	"context"
	"fmt"
)

// Keys of the named outputs every model returns. The section task uses the
// same keys with SectionPrefix prepended.
const (
	OutputContrastiveLoss  = "contrastive_loss"
	OutputCrossEntropyLoss = "cross_entropy_loss"
	OutputOneHotLabels     = "ohe_labels"
	OutputProbs            = "probs"

	SectionPrefix = "section_"
)

// Parameter is a named trainable tensor. Only Optimizer.Apply writes to Value.
type Parameter struct {
	Name  string
	Value *Tensor
}

// Inputs is one batch as seen by the model. SectionLabels is nil when the
// section task is disabled; weight slices are nil for unweighted batches.
type Inputs struct {
	InputIDs       [][]int32
	Labels         []int32
	Weights        []float64
	SectionLabels  []int32
	SectionWeights []float64
}

// Size returns the number of examples in the batch.
func (in Inputs) Size() int {
	return len(in.InputIDs)
}

// Outputs holds named model outputs: scalar losses and per-example
// [batch, classes] tensors.
type Outputs map[string]*Tensor

// Get returns the output stored under key or an error naming the missing key.
func (o Outputs) Get(key string) (*Tensor, error) {
	t, ok := o[key]
	if !ok || t == nil {
		return nil, fmt.Errorf("model output %q missing", key)
	}

	return t, nil
}

// Result is the outcome of one forward (and, when training, backward) pass.
type Result struct {
	// Loss is the unscaled total loss of the batch.
	Loss float64

	Outputs Outputs

	// Gradients is aligned with Model.Parameters. Entries are nil for
	// parameters that received no gradient. Nil when not training.
	Gradients []*Tensor
}

// Model is a CoRT model. Forward must be safe for concurrent use because
// replicas run it in parallel on shards of the same batch; it must not modify
// parameters.
type Model interface {
	// Parameters returns the trainable parameters in a stable order.
	Parameters() []*Parameter

	Forward(ctx context.Context, in Inputs, training bool) (Result, error)

	LoadWeights(path string) error
	SaveWeights(path string) error
}
