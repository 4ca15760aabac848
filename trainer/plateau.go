package trainer

// Plateau reduces the learning rate when the observed loss stops improving.
//
// After Patience consecutive observations without improvement over the best
// loss seen so far, the learning rate is multiplied by Factor, never going
// below MinLR. The counter resets whenever the loss improves or the rate is
// reduced.
type Plateau struct {
	Factor   float64
	Patience int
	MinLR    float64

	best float64
	wait int
	init bool
}

// NewPlateau creates a scheduler with the given decay factor, patience in
// number of observations and learning rate floor.
func NewPlateau(factor float64, patience int, minLR float64) *Plateau {
	return &Plateau{Factor: factor, Patience: patience, MinLR: minLR}
}

// Step records one loss observation and returns the learning rate to use
// next, given the current one. It returns currentLR unchanged unless a decay
// is due.
func (p *Plateau) Step(loss, currentLR float64) float64 {
	if !p.init || loss < p.best {
		p.best = loss
		p.wait = 0
		p.init = true
		return currentLR
	}
	p.wait++
	if p.wait < p.Patience {
		return currentLR
	}
	p.wait = 0
	return max(currentLR*p.Factor, p.MinLR)
}
