package ml

// Optimizer applies gradients to parameters.
type Optimizer interface {
	// Apply updates params in place. grads is aligned with params and may
	// contain nil entries, which are skipped.
	Apply(grads []*Tensor, params []*Parameter) error

	// LearningRate returns the scheduled learning rate at a global step.
	LearningRate(step int) float64

	// Iterations returns how many times Apply has run.
	Iterations() int
}
