package chaos

import (
	"crypto/sha256"
	"encoding/binary"
)

// drbg is a deterministic byte generator built from SHA-256 in counter mode:
// block = SHA256(seed || counter). It drives the permutation stage, which
// needs uniform integers rather than float iterates.
type drbg struct {
	seed    [32]byte
	counter uint64
	buf     [32]byte
	off     int
}

func newDRBG(seedMaterial []byte) *drbg {
	d := &drbg{seed: sha256.Sum256(seedMaterial)}
	d.refill()
	return d
}

func (d *drbg) refill() {
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], d.counter)
	h := sha256.New()
	h.Write(d.seed[:])
	h.Write(ctr[:])
	copy(d.buf[:], h.Sum(nil))
	d.off = 0
	d.counter++
}

func (d *drbg) nextUint64() uint64 {
	var out uint64
	for i := 0; i < 8; i++ {
		if d.off >= len(d.buf) {
			d.refill()
		}
		out = (out << 8) | uint64(d.buf[d.off])
		d.off++
	}
	return out
}

// intn returns a uniform integer in [0, n) using rejection sampling, so the
// permutation stage carries no modulo bias.
func (d *drbg) intn(n int) int {
	if n <= 1 {
		return 0
	}
	bound := uint64(n)
	limit := (^uint64(0) / bound) * bound
	for {
		r := d.nextUint64()
		if r < limit {
			return int(r % bound)
		}
	}
}
