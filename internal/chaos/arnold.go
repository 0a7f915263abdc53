package chaos

import (
	"encoding/binary"
	"math"
)

// ArnoldsCatStrategy generates patterns by building a coordinate-derived
// value field over an N x N torus and scrambling it with iterated
// applications of Arnold's cat map (x,y) -> (2x+y, x+y) mod N. The iteration
// count and coordinate offsets come from the input-derived seed, so both the
// field values and their final placement depend on every input bit.
type ArnoldsCatStrategy struct{}

// Name implements Strategy.
func (ArnoldsCatStrategy) Name() string {
	return "arnolds-cat"
}

// Generate implements Strategy.
func (ArnoldsCatStrategy) Generate(inputText string, totalCells, numInks int) []int {
	numInks = clampInks(numInks)
	if totalCells <= 0 {
		return []int{}
	}

	keys, err := stageKeys(inputText, 2)
	if err != nil {
		panic(err)
	}
	seed := seedFromKey(keys[0])
	mix := seedFromKey(keys[1])

	// The cat map acts on a square torus; round the cell count up to the
	// nearest square and truncate the scrambled field afterwards.
	n := int(math.Sqrt(float64(totalCells)))
	if n*n < totalCells {
		n++
	}
	if n < 2 {
		n = 2
	}

	ctl := binary.BigEndian.Uint64(keys[1][8:16])
	rounds := 3 + int(ctl%8)
	offX := int((ctl >> 16) % uint64(n))
	offY := int((ctl >> 32) % uint64(n))

	// Coordinate-derived value field: each cell gets a fraction mixing both
	// seeds with its (offset) coordinates.
	field := make([]float64, n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			fx := float64((x+offX)%n + 1)
			fy := float64((y+offY)%n + 1)
			v := seed*fx*fy + mix*(fx+fy)
			field[y*n+x] = v - math.Floor(v)
		}
	}

	// Scramble positions with the cat map.
	for r := 0; r < rounds; r++ {
		next := make([]float64, n*n)
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				nx := (2*x + y) % n
				ny := (x + y) % n
				next[ny*n+nx] = field[y*n+x]
			}
		}
		field = next
	}

	pattern := make([]int, totalCells)
	for i := range pattern {
		pattern[i] = quantize(field[i], numInks)
	}
	return pattern
}
