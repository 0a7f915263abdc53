package chaos

// tentMu is the tent map slope. The ideal chaotic slope is 2 (x/0.5), but at
// exactly 2 the float64 trajectory eventually lands on a dyadic rational and
// collapses to zero; backing off by 1e-5 preserves the piecewise-linear shape
// while keeping the orbit aperiodic.
const tentMu = 1.99999

const tentBurnIn = 64

// TentMapStrategy generates patterns by iterating the piecewise-linear tent
// map from an input-derived seed, quantizing each iterate into the ink ID
// range.
type TentMapStrategy struct{}

// Name implements Strategy.
func (TentMapStrategy) Name() string {
	return "tent-map"
}

// Generate implements Strategy.
func (TentMapStrategy) Generate(inputText string, totalCells, numInks int) []int {
	numInks = clampInks(numInks)
	if totalCells <= 0 {
		return []int{}
	}

	x := DeriveSeed(inputText)
	for i := 0; i < tentBurnIn; i++ {
		x = tentStep(x)
	}

	pattern := make([]int, totalCells)
	for i := range pattern {
		x = tentStep(x)
		pattern[i] = quantize(x, numInks)
	}
	return pattern
}

// tentStep applies one tent map iteration, reinjecting the orbit if rounding
// ever pushes it out of the open unit interval.
func tentStep(x float64) float64 {
	if x < 0.5 {
		x = tentMu * x
	} else {
		x = tentMu * (1 - x)
	}
	if x <= seedMargin || x >= 1-seedMargin {
		x = seedMargin + 0.381966*x // reinject near the lower edge, off any fixed point
	}
	return x
}
