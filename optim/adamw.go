package optim

import (
	"fmt"
	"math"
	"strings"

	"github.com/cortml/cort/ml"
)

// AdamW is Adam with decoupled weight decay. Parameters whose names contain
// one of the excluded substrings are not decayed.
type AdamW struct {
	schedule Schedule

	beta1, beta2 float64
	epsilon      float64
	weightDecay  float64
	exclude      []string

	m, v []*ml.Tensor
	t    int
}

// NewAdamW creates an AdamW optimizer with the usual defaults
// (beta1 0.9, beta2 0.999, epsilon 1e-6).
func NewAdamW(schedule Schedule, weightDecay float64) *AdamW {
	return &AdamW{
		schedule:    schedule,
		beta1:       0.9,
		beta2:       0.999,
		epsilon:     1e-6,
		weightDecay: weightDecay,
		exclude:     []string{"bias", "norm"},
	}
}

func (o *AdamW) LearningRate(step int) float64 {
	return o.schedule.At(step)
}

func (o *AdamW) Iterations() int {
	return o.t
}

func (o *AdamW) decays(name string) bool {
	name = strings.ToLower(name)
	for _, e := range o.exclude {
		if strings.Contains(name, e) {
			return false
		}
	}
	return o.weightDecay > 0
}

// Apply performs one update. Moment buffers are created on the first call.
func (o *AdamW) Apply(grads []*ml.Tensor, params []*ml.Parameter) error {
	if len(grads) != len(params) {
		return fmt.Errorf("optim: %d gradients for %d parameters", len(grads), len(params))
	}

	if o.m == nil {
		o.m = make([]*ml.Tensor, len(params))
		o.v = make([]*ml.Tensor, len(params))
		for i, p := range params {
			o.m[i] = ml.Zeros(p.Value.Shape()...)
			o.v[i] = ml.Zeros(p.Value.Shape()...)
		}
	} else if len(o.m) != len(params) {
		return fmt.Errorf("optim: optimizer state holds %d parameters, got %d", len(o.m), len(params))
	}

	lr := o.LearningRate(o.t)
	o.t++

	bias1 := 1 - math.Pow(o.beta1, float64(o.t))
	bias2 := 1 - math.Pow(o.beta2, float64(o.t))

	for i, p := range params {
		g := grads[i]
		if g == nil {
			continue
		}
		if !g.SameShape(p.Value) {
			return fmt.Errorf("optim: gradient for %s has shape %v, expected %v", p.Name, g.Shape(), p.Value.Shape())
		}

		decay := o.decays(p.Name)
		w, m, v := p.Value.Floats(), o.m[i].Floats(), o.v[i].Floats()
		for j, gj := range g.Floats() {
			m[j] = o.beta1*m[j] + (1-o.beta1)*gj
			v[j] = o.beta2*v[j] + (1-o.beta2)*gj*gj

			update := (m[j] / bias1) / (math.Sqrt(v[j]/bias2) + o.epsilon)
			if decay {
				update += o.weightDecay * w[j]
			}
			w[j] -= lr * update
		}
	}

	return nil
}
