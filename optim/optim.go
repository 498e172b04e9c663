package optim

import (
	"github.com/cortml/cort/config"
	"github.com/cortml/cort/ml"
)

// New creates the optimizer for a run of totalSteps optimizer updates.
func New(cfg config.Config, totalSteps int) ml.Optimizer {
	return NewAdamW(Schedule{
		Peak:   cfg.LearningRate,
		Warmup: int(float64(totalSteps) * cfg.WarmupRate),
		Total:  totalSteps,
	}, cfg.WeightDecay)
}
