package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/latticelock/pattern-gateway/internal/generator"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "patterns.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func samplePattern(uuid, batch string) *generator.SignedPattern {
	return &generator.SignedPattern{
		UUID:           uuid,
		BatchCode:      batch,
		Algorithm:      "hybrid-chaotic",
		GridSize:       8,
		NumInks:        3,
		Pattern:        []int{0, 1, 2, 2, 1, 0, 1, 2},
		PatternHash:    "deadbeef" + uuid,
		Signature:      "c2lnbmF0dXJl",
		ManufacturerID: "ACME-MFG-01",
		CreatedAt:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSaveAndGetByUUID(t *testing.T) {
	s := openTestStore(t)
	want := samplePattern("uuid-1", "BATCH-2024-001")

	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.GetByUUID("uuid-1")
	if err != nil {
		t.Fatalf("GetByUUID: %v", err)
	}

	if got.BatchCode != want.BatchCode || got.Algorithm != want.Algorithm ||
		got.GridSize != want.GridSize || got.NumInks != want.NumInks ||
		got.PatternHash != want.PatternHash || got.Signature != want.Signature ||
		got.ManufacturerID != want.ManufacturerID {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("created-at = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
	if len(got.Pattern) != len(want.Pattern) {
		t.Fatalf("pattern length = %d, want %d", len(got.Pattern), len(want.Pattern))
	}
	for i := range want.Pattern {
		if got.Pattern[i] != want.Pattern[i] {
			t.Errorf("cell %d = %d, want %d", i, got.Pattern[i], want.Pattern[i])
		}
	}
}

func TestGetByUUIDNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetByUUID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveDuplicateUUID(t *testing.T) {
	s := openTestStore(t)
	sp := samplePattern("uuid-1", "BATCH-2024-001")
	if err := s.Save(sp); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(sp); err == nil {
		t.Error("duplicate UUID saved without error")
	}
}

func TestFindByBatchCode(t *testing.T) {
	s := openTestStore(t)

	a := samplePattern("uuid-1", "BATCH-2024-001")
	b := samplePattern("uuid-2", "BATCH-2024-001")
	b.CreatedAt = a.CreatedAt.Add(time.Hour)
	other := samplePattern("uuid-3", "BATCH-2024-002")

	for _, sp := range []*generator.SignedPattern{a, b, other} {
		if err := s.Save(sp); err != nil {
			t.Fatalf("Save(%s): %v", sp.UUID, err)
		}
	}

	got, err := s.FindByBatchCode("BATCH-2024-001")
	if err != nil {
		t.Fatalf("FindByBatchCode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("found %d patterns, want 2", len(got))
	}
	if got[0].UUID != "uuid-2" || got[1].UUID != "uuid-1" {
		t.Errorf("not ordered newest first: %s, %s", got[0].UUID, got[1].UUID)
	}

	empty, err := s.FindByBatchCode("BATCH-2024-404")
	if err != nil {
		t.Fatalf("FindByBatchCode (empty): %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no matches, got %d", len(empty))
	}
}

func TestFindByPatternHash(t *testing.T) {
	s := openTestStore(t)
	sp := samplePattern("uuid-1", "BATCH-2024-001")
	if err := s.Save(sp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.FindByPatternHash(sp.PatternHash)
	if err != nil {
		t.Fatalf("FindByPatternHash: %v", err)
	}
	if got.UUID != sp.UUID {
		t.Errorf("found %s, want %s", got.UUID, sp.UUID)
	}

	if _, err := s.FindByPatternHash("no-such-hash"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCount(t *testing.T) {
	s := openTestStore(t)
	for i, id := range []string{"uuid-1", "uuid-2", "uuid-3"} {
		sp := samplePattern(id, "BATCH-2024-001")
		sp.CreatedAt = sp.CreatedAt.Add(time.Duration(i) * time.Minute)
		if err := s.Save(sp); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
}
