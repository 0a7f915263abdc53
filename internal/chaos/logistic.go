package chaos

// logisticR places the logistic map firmly in its chaotic regime.
const logisticR = 3.99

// logisticBurnIn decorrelates the trajectory from the raw seed before any
// output is taken.
const logisticBurnIn = 64

// LogisticMapStrategy generates patterns by iterating the logistic map
// x = r*x*(1-x) from an input-derived seed, quantizing each iterate into
// the ink ID range.
type LogisticMapStrategy struct{}

// Name implements Strategy.
func (LogisticMapStrategy) Name() string {
	return "logistic-map"
}

// Generate implements Strategy.
func (LogisticMapStrategy) Generate(inputText string, totalCells, numInks int) []int {
	numInks = clampInks(numInks)
	if totalCells <= 0 {
		return []int{}
	}

	x := DeriveSeed(inputText)
	for i := 0; i < logisticBurnIn; i++ {
		x = logisticR * x * (1 - x)
	}

	pattern := make([]int, totalCells)
	for i := range pattern {
		x = logisticR * x * (1 - x)
		pattern[i] = quantize(x, numInks)
	}
	return pattern
}
