package generator

import (
	"errors"
	"testing"
	"time"

	"github.com/latticelock/pattern-gateway/internal/chaos"
	"github.com/latticelock/pattern-gateway/internal/signature"
)

func newTestGenerator(t *testing.T) *SecureGenerator {
	t.Helper()
	signer, err := signature.NewService()
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	g, err := NewSecureGenerator(signer, "ACME-MFG-01")
	if err != nil {
		t.Fatalf("NewSecureGenerator: %v", err)
	}
	return g
}

func TestNewSecureGeneratorRequiresSigner(t *testing.T) {
	if _, err := NewSecureGenerator(nil, "ACME-MFG-01"); !errors.Is(err, ErrNoSigner) {
		t.Errorf("expected ErrNoSigner, got %v", err)
	}
}

func TestGenerateSignedPattern(t *testing.T) {
	g := newTestGenerator(t)

	sp, err := g.Generate(GenerationConfig{
		BatchCode: "BATCH-2024-001",
		Algorithm: chaos.AlgorithmHybridChaotic,
		GridSize:  8,
		NumInks:   3,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(sp.Pattern) != 64 {
		t.Errorf("pattern length = %d, want 64", len(sp.Pattern))
	}
	for i, v := range sp.Pattern {
		if v < 0 || v >= 3 {
			t.Errorf("cell %d = %d out of ink range", i, v)
		}
	}
	if sp.UUID == "" {
		t.Error("missing UUID")
	}
	if sp.Algorithm != "hybrid-chaotic" {
		t.Errorf("algorithm = %q", sp.Algorithm)
	}
	if len(sp.PatternHash) != 64 {
		t.Errorf("pattern hash length = %d, want 64 hex chars", len(sp.PatternHash))
	}
	if sp.Signature == "" {
		t.Error("missing signature")
	}
	if sp.ManufacturerID != "ACME-MFG-01" {
		t.Errorf("manufacturer = %q", sp.ManufacturerID)
	}
	if sp.CreatedAt.IsZero() {
		t.Error("missing created-at timestamp")
	}
}

func TestGenerateDeterministicContent(t *testing.T) {
	g := newTestGenerator(t)
	cfg := GenerationConfig{
		BatchCode: "BATCH-2024-001",
		Algorithm: chaos.AlgorithmHybridChaotic,
		GridSize:  8,
		NumInks:   3,
	}

	a, err := g.Generate(cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := g.Generate(cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if a.PatternHash != b.PatternHash {
		t.Error("same config produced different pattern hashes")
	}
	if a.Signature != b.Signature {
		t.Error("same config produced different signatures")
	}
	if a.UUID == b.UUID {
		t.Error("two artifacts share a UUID")
	}
}

func TestGenerateRejectsGridSize(t *testing.T) {
	g := newTestGenerator(t)
	for _, size := range []int{0, 2, 33, -8} {
		_, err := g.Generate(GenerationConfig{
			BatchCode: "B",
			Algorithm: chaos.AlgorithmLogistic,
			GridSize:  size,
			NumInks:   3,
		})
		if err == nil {
			t.Errorf("grid size %d accepted", size)
		}
	}
}

func TestGenerateClampsInkCount(t *testing.T) {
	g := newTestGenerator(t)
	sp, err := g.Generate(GenerationConfig{
		BatchCode: "BATCH-2024-001",
		Algorithm: chaos.AlgorithmLogistic,
		GridSize:  8,
		NumInks:   99,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i, v := range sp.Pattern {
		if v < 0 || v >= chaos.MaxInks {
			t.Errorf("cell %d = %d, want clamped below %d", i, v, chaos.MaxInks)
		}
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	g := newTestGenerator(t)

	for _, alg := range chaos.Algorithms() {
		sp, err := g.Generate(GenerationConfig{
			BatchCode: "BATCH-2024-001",
			Algorithm: alg,
			GridSize:  8,
			NumInks:   3,
		})
		if err != nil {
			t.Fatalf("Generate(%s): %v", alg, err)
		}
		if !g.Verify(sp) {
			t.Errorf("%s: freshly generated pattern does not verify", alg)
		}
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	g := newTestGenerator(t)
	sp, err := g.Generate(GenerationConfig{
		BatchCode: "BATCH-2024-001",
		Algorithm: chaos.AlgorithmHybridChaotic,
		GridSize:  8,
		NumInks:   3,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*SignedPattern)
	}{
		{"cell flipped", func(p *SignedPattern) { p.Pattern[0] = (p.Pattern[0] + 1) % 3 }},
		{"batch swapped", func(p *SignedPattern) { p.BatchCode = "BATCH-2024-002" }},
		{"signature cleared", func(p *SignedPattern) { p.Signature = "" }},
		{"signature garbage", func(p *SignedPattern) { p.Signature = "not-valid-base64!!!" }},
		{"algorithm swapped", func(p *SignedPattern) { p.Algorithm = "logistic-map" }},
		{"algorithm unknown", func(p *SignedPattern) { p.Algorithm = "rossler" }},
		{"grid size zero", func(p *SignedPattern) { p.GridSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clone := *sp
			clone.Pattern = append([]int(nil), sp.Pattern...)
			tt.mutate(&clone)
			if g.Verify(&clone) {
				t.Error("tampered artifact verified")
			}
		})
	}
}

func TestCheckSplitsPredicates(t *testing.T) {
	g := newTestGenerator(t)
	sp, err := g.Generate(GenerationConfig{
		BatchCode: "BATCH-2024-001",
		Algorithm: chaos.AlgorithmHybridChaotic,
		GridSize:  8,
		NumInks:   3,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if match, sigOK := g.Check(sp); !match || !sigOK {
		t.Errorf("fresh artifact: Check = (%v, %v), want (true, true)", match, sigOK)
	}

	// A scanner reconstructs the pattern from the printed tag; it has no
	// signature, but re-generation equality still holds.
	unsigned := *sp
	unsigned.Signature = ""
	if match, sigOK := g.Check(&unsigned); !match || sigOK {
		t.Errorf("unsigned artifact: Check = (%v, %v), want (true, false)", match, sigOK)
	}

	// A flipped cell breaks both predicates: the pattern no longer matches
	// re-generation, and the signature no longer covers the submitted cells.
	tampered := *sp
	tampered.Pattern = append([]int(nil), sp.Pattern...)
	tampered.Pattern[0] = (tampered.Pattern[0] + 1) % 3
	if match, sigOK := g.Check(&tampered); match || sigOK {
		t.Errorf("tampered artifact: Check = (%v, %v), want (false, false)", match, sigOK)
	}

	if match, sigOK := g.Check(nil); match || sigOK {
		t.Errorf("nil artifact: Check = (%v, %v), want (false, false)", match, sigOK)
	}
}

func TestVerifyNil(t *testing.T) {
	g := newTestGenerator(t)
	if g.Verify(nil) {
		t.Error("nil artifact verified")
	}
}

func TestVerifyAcrossKeyRotation(t *testing.T) {
	signer, err := signature.NewService()
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	g, err := NewSecureGenerator(signer, "ACME-MFG-01")
	if err != nil {
		t.Fatalf("NewSecureGenerator: %v", err)
	}

	sp, err := g.Generate(GenerationConfig{
		BatchCode: "BATCH-2024-001",
		Algorithm: chaos.AlgorithmTent,
		GridSize:  8,
		NumInks:   3,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	next, err := signature.GenerateSecretKey()
	if err != nil {
		t.Fatalf("GenerateSecretKey: %v", err)
	}
	if err := signer.Rotate(next); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	if g.Verify(sp) {
		t.Error("artifact signed under the old key still verifies after rotation")
	}
}

func TestInjectedClockAndUUID(t *testing.T) {
	signer, err := signature.NewService()
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	g, err := NewSecureGenerator(signer, "ACME-MFG-01",
		WithClock(func() time.Time { return fixed }),
		WithUUIDSource(func() string { return "fixed-uuid" }),
	)
	if err != nil {
		t.Fatalf("NewSecureGenerator: %v", err)
	}

	sp, err := g.Generate(GenerationConfig{
		BatchCode: "BATCH-2024-001",
		Algorithm: chaos.AlgorithmLogistic,
		GridSize:  3,
		NumInks:   2,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !sp.CreatedAt.Equal(fixed) {
		t.Errorf("created-at = %v, want %v", sp.CreatedAt, fixed)
	}
	if sp.UUID != "fixed-uuid" {
		t.Errorf("uuid = %q", sp.UUID)
	}
}
