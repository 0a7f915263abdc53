package generator

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/latticelock/pattern-gateway/internal/chaos"
	"github.com/latticelock/pattern-gateway/internal/signature"
)

const (
	// MinGridSize and MaxGridSize bound the square grid dimension.
	MinGridSize = 3
	MaxGridSize = 32
)

// ErrNoSigner is returned by NewSecureGenerator when no signature service is
// supplied. A generator without a signer could only emit unsigned artifacts,
// which defeats the point, so construction fails hard instead.
var ErrNoSigner = errors.New("generator requires a signature service")

// GenerationConfig carries the per-request pattern parameters.
//
// GridSize outside [MinGridSize, MaxGridSize] is rejected by Validate;
// NumInks outside the supported ink range is clamped silently during
// generation, matching the strategy contract.
type GenerationConfig struct {
	BatchCode string          `json:"batch_code"`
	Algorithm chaos.Algorithm `json:"-"`
	GridSize  int             `json:"grid_size"`
	NumInks   int             `json:"num_inks"`
}

// Validate checks the hard constraints of a config. Ink count is not checked
// here; it clamps rather than fails.
func (c GenerationConfig) Validate() error {
	if c.GridSize < MinGridSize || c.GridSize > MaxGridSize {
		return fmt.Errorf("grid size %d outside [%d, %d]", c.GridSize, MinGridSize, MaxGridSize)
	}
	return nil
}

// SignedPattern is the immutable artifact handed to callers: the generated
// pattern plus everything needed to verify or persist it. Fields are
// exported for serialization; treat values as read-only.
type SignedPattern struct {
	UUID           string    `json:"uuid"`
	BatchCode      string    `json:"batch_code"`
	Algorithm      string    `json:"algorithm"`
	GridSize       int       `json:"grid_size"`
	NumInks        int       `json:"num_inks"`
	Pattern        []int     `json:"pattern"`
	PatternHash    string    `json:"pattern_hash"`
	Signature      string    `json:"signature"`
	ManufacturerID string    `json:"manufacturer_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// SecureGenerator orchestrates generation, hashing, and signing. All
// collaborators are injected at construction; the generator itself holds no
// mutable state and is safe for concurrent use.
type SecureGenerator struct {
	signer         *signature.Service
	manufacturerID string
	now            func() time.Time
	newUUID        func() string
}

// Option customizes a SecureGenerator.
type Option func(*SecureGenerator)

// WithClock overrides the timestamp source, used by tests for deterministic
// CreatedAt values.
func WithClock(now func() time.Time) Option {
	return func(g *SecureGenerator) { g.now = now }
}

// WithUUIDSource overrides UUID generation.
func WithUUIDSource(newUUID func() string) Option {
	return func(g *SecureGenerator) { g.newUUID = newUUID }
}

// NewSecureGenerator creates a generator bound to a signature service and a
// manufacturer identity.
func NewSecureGenerator(signer *signature.Service, manufacturerID string, opts ...Option) (*SecureGenerator, error) {
	if signer == nil {
		return nil, ErrNoSigner
	}

	g := &SecureGenerator{
		signer:         signer,
		manufacturerID: manufacturerID,
		now:            time.Now,
		newUUID:        func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate produces a signed pattern for the given config. The pattern and
// its hash and signature are pure functions of (batch code, algorithm, grid
// size, ink count, signing key); only UUID and CreatedAt vary between calls.
func (g *SecureGenerator) Generate(cfg GenerationConfig) (*SignedPattern, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid generation config: %w", err)
	}

	strategy := chaos.ForAlgorithm(cfg.Algorithm)
	pattern := strategy.Generate(cfg.BatchCode, cfg.GridSize*cfg.GridSize, cfg.NumInks)

	canonical := canonicalEncoding(cfg.BatchCode, cfg.GridSize, pattern)
	hash := sha256.Sum256([]byte(canonical))

	return &SignedPattern{
		UUID:           g.newUUID(),
		BatchCode:      cfg.BatchCode,
		Algorithm:      strategy.Name(),
		GridSize:       cfg.GridSize,
		NumInks:        cfg.NumInks,
		Pattern:        pattern,
		PatternHash:    hex.EncodeToString(hash[:]),
		Signature:      g.signer.SignString(canonical),
		ManufacturerID: g.manufacturerID,
		CreatedAt:      g.now().UTC(),
	}, nil
}

// Verify reports whether sp is a fully authentic artifact: its pattern must
// be exactly what this generator would produce for sp's parameters and its
// signature must be valid under the current key. Verification is re-generation
// plus equality; it is a total predicate and never returns an error. Callers
// holding a reconstructed pattern without its signature (a scanner, say) use
// Check and decide on the pattern predicate alone.
func (g *SecureGenerator) Verify(sp *SignedPattern) bool {
	patternMatch, signatureValid := g.Check(sp)
	return patternMatch && signatureValid
}

// Check evaluates the two verification predicates separately: whether sp's
// pattern matches re-generation for sp's parameters, and whether sp's
// signature is valid under the current key. Both are total; a nil artifact
// fails both.
func (g *SecureGenerator) Check(sp *SignedPattern) (patternMatch, signatureValid bool) {
	if sp == nil {
		return false, false
	}

	canonical := canonicalEncoding(sp.BatchCode, sp.GridSize, sp.Pattern)
	signatureValid = g.signer.Verify([]byte(canonical), sp.Signature)

	alg, err := chaos.ParseAlgorithm(sp.Algorithm)
	if err != nil {
		return false, signatureValid
	}
	if sp.GridSize < MinGridSize || sp.GridSize > MaxGridSize {
		return false, signatureValid
	}

	expected := chaos.ForAlgorithm(alg).Generate(sp.BatchCode, sp.GridSize*sp.GridSize, sp.NumInks)
	if len(expected) != len(sp.Pattern) {
		return false, signatureValid
	}
	for i := range expected {
		if expected[i] != sp.Pattern[i] {
			return false, signatureValid
		}
	}
	return true, signatureValid
}

// canonicalEncoding is the stable byte representation that both the content
// hash and the signature cover: batchCode|gridSize|id,id,...  Changing this
// format invalidates every previously issued signature.
func canonicalEncoding(batchCode string, gridSize int, pattern []int) string {
	var b strings.Builder
	b.WriteString(batchCode)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(gridSize))
	b.WriteByte('|')
	for i, v := range pattern {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}
