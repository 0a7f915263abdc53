package chaos

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"golang.org/x/crypto/hkdf"
)

const (
	// seedInfo domain-separates the key expansion from other HKDF uses.
	seedInfo = "latticelock-pattern-stage-v1"

	// stageKeySize is the key material drawn per pipeline stage.
	stageKeySize = 32

	// seedMargin keeps derived seeds away from the map fixed points 0, 0.5 and 1,
	// where the logistic and tent recurrences degenerate.
	seedMargin = 1e-6
)

// stageKeys expands the input text into n independent 32-byte keys, one per
// pipeline stage. The expansion is a pure function of the input bytes: the
// text is hashed with SHA-256 and the digest stretched with HKDF-SHA256, so
// any single-bit change in the input reissues every stage key.
func stageKeys(inputText string, n int) ([][]byte, error) {
	digest := sha256.Sum256([]byte(inputText))
	r := hkdf.New(sha256.New, digest[:], nil, []byte(seedInfo))

	keys := make([][]byte, n)
	for i := range keys {
		key := make([]byte, stageKeySize)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, fmt.Errorf("failed to expand stage key %d: %w", i, err)
		}
		keys[i] = key
	}
	return keys, nil
}

// seedFromKey maps 32 bytes of key material onto a chaotic initial condition
// in the open interval (0,1), nudged off the fixed points.
func seedFromKey(key []byte) float64 {
	u := binary.BigEndian.Uint64(key[:8])
	// Top 53 bits give a uniform fraction with full float64 precision.
	x := float64(u>>11) / float64(1<<53)

	if x < seedMargin {
		x = seedMargin
	}
	if x > 1-seedMargin {
		x = 1 - seedMargin
	}
	if math.Abs(x-0.5) < seedMargin {
		x += 2 * seedMargin
	}
	return x
}

// DeriveSeed derives the primary chaotic seed for the given input text.
// It is defined for every input, including the empty string, and depends
// only on the input bytes.
func DeriveSeed(inputText string) float64 {
	keys, err := stageKeys(inputText, 1)
	if err != nil {
		// HKDF cannot fail for the fixed lengths requested here.
		panic(err)
	}
	return seedFromKey(keys[0])
}
