package chaos

import (
	"fmt"
	"math"
)

// Algorithm identifies a pattern generation algorithm. The set is closed:
// callers select one of the enumerated values, validated at the boundary by
// ParseAlgorithm rather than dispatched on raw strings.
type Algorithm int

const (
	// AlgorithmLogistic is the single-stage logistic map strategy.
	AlgorithmLogistic Algorithm = iota
	// AlgorithmTent is the single-stage tent map strategy.
	AlgorithmTent
	// AlgorithmArnoldsCat is the single-stage Arnold's cat map strategy.
	AlgorithmArnoldsCat
	// AlgorithmHybridChaotic is the composed diffusion/permutation/substitution pipeline.
	AlgorithmHybridChaotic
)

const (
	// MinInks and MaxInks bound the ink ID range. Out-of-range requests are
	// clamped, never rejected.
	MinInks = 2
	MaxInks = 10
)

// String returns the stable identifier used in records and API payloads.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmLogistic:
		return "logistic-map"
	case AlgorithmTent:
		return "tent-map"
	case AlgorithmArnoldsCat:
		return "arnolds-cat"
	case AlgorithmHybridChaotic:
		return "hybrid-chaotic"
	default:
		return fmt.Sprintf("unknown(%d)", int(a))
	}
}

// ParseAlgorithm validates an algorithm identifier supplied at the boundary.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "logistic-map":
		return AlgorithmLogistic, nil
	case "tent-map":
		return AlgorithmTent, nil
	case "arnolds-cat":
		return AlgorithmArnoldsCat, nil
	case "hybrid-chaotic":
		return AlgorithmHybridChaotic, nil
	default:
		return 0, fmt.Errorf("unknown algorithm: %q", s)
	}
}

// Algorithms returns all supported algorithms in declaration order.
func Algorithms() []Algorithm {
	return []Algorithm{
		AlgorithmLogistic,
		AlgorithmTent,
		AlgorithmArnoldsCat,
		AlgorithmHybridChaotic,
	}
}

// Strategy generates deterministic ink ID sequences from an input text.
//
// Implementations are stateless values: every call derives its own chaotic
// state from the input, so a single Strategy is safe for concurrent use.
// Generate never fails for degenerate configuration; numInks outside
// [MinInks, MaxInks] is clamped and totalCells <= 0 yields an empty pattern.
type Strategy interface {
	// Name returns the human-readable algorithm identifier for audit records.
	Name() string

	// Generate produces totalCells ink IDs in [0, numInks) for the input text.
	// The result is a pure function of (inputText, totalCells, numInks).
	Generate(inputText string, totalCells, numInks int) []int
}

// ForAlgorithm returns the strategy implementing the given algorithm.
func ForAlgorithm(a Algorithm) Strategy {
	switch a {
	case AlgorithmLogistic:
		return LogisticMapStrategy{}
	case AlgorithmTent:
		return TentMapStrategy{}
	case AlgorithmArnoldsCat:
		return ArnoldsCatStrategy{}
	default:
		return HybridChaoticStrategy{}
	}
}

// clampInks forces numInks into the supported ink ID range.
func clampInks(numInks int) int {
	if numInks < MinInks {
		return MinInks
	}
	if numInks > MaxInks {
		return MaxInks
	}
	return numInks
}

// quantize maps a chaotic state in (0,1) onto an ink ID in [0, numInks).
func quantize(x float64, numInks int) int {
	v := int(math.Floor(x * float64(numInks)))
	if v < 0 {
		return 0
	}
	if v >= numInks {
		return numInks - 1
	}
	return v
}
