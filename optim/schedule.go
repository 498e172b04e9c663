package optim

// Schedule is a linear warmup from zero to Peak over Warmup steps followed
// by a linear decay to zero at Total.
type Schedule struct {
	Peak   float64
	Warmup int
	Total  int
}

// At returns the learning rate at step.
func (s Schedule) At(step int) float64 {
	if s.Warmup > 0 && step < s.Warmup {
		return s.Peak * float64(step) / float64(s.Warmup)
	}

	decay := s.Total - s.Warmup
	if decay <= 0 {
		return s.Peak
	}

	done := min(step-s.Warmup, decay)
	return s.Peak * (1 - float64(done)/float64(decay))
}
