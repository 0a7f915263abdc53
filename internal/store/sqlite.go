package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/latticelock/pattern-gateway/internal/generator"
)

// ErrNotFound is returned by lookups that match no record.
var ErrNotFound = errors.New("pattern not found")

const schema = `
CREATE TABLE IF NOT EXISTS patterns (
    uuid            TEXT PRIMARY KEY,
    batch_code      TEXT NOT NULL,
    algorithm       TEXT NOT NULL,
    grid_size       INTEGER NOT NULL,
    num_inks        INTEGER NOT NULL,
    pattern         TEXT NOT NULL,
    pattern_hash    TEXT NOT NULL,
    signature       TEXT NOT NULL,
    manufacturer_id TEXT NOT NULL,
    created_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_patterns_batch ON patterns(batch_code);
CREATE INDEX IF NOT EXISTS idx_patterns_hash  ON patterns(pattern_hash);
`

// Store persists signed pattern artifacts in SQLite. The flat pattern is
// stored as a JSON array, which keeps the schema readable with sqlite3
// tooling during investigations.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save persists a signed pattern. Saving the same UUID twice is an error.
func (s *Store) Save(sp *generator.SignedPattern) error {
	cells, err := json.Marshal(sp.Pattern)
	if err != nil {
		return fmt.Errorf("encode pattern: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO patterns (uuid, batch_code, algorithm, grid_size, num_inks, pattern, pattern_hash, signature, manufacturer_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sp.UUID, sp.BatchCode, sp.Algorithm, sp.GridSize, sp.NumInks,
		string(cells), sp.PatternHash, sp.Signature, sp.ManufacturerID, sp.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert pattern: %w", err)
	}
	return nil
}

// GetByUUID returns the pattern with the given UUID, or ErrNotFound.
func (s *Store) GetByUUID(id string) (*generator.SignedPattern, error) {
	row := s.db.QueryRow(`
		SELECT uuid, batch_code, algorithm, grid_size, num_inks, pattern, pattern_hash, signature, manufacturer_id, created_at
		FROM patterns WHERE uuid = ?`, id)
	return scanPattern(row)
}

// FindByBatchCode returns all patterns recorded for a batch, newest first.
func (s *Store) FindByBatchCode(batchCode string) ([]*generator.SignedPattern, error) {
	rows, err := s.db.Query(`
		SELECT uuid, batch_code, algorithm, grid_size, num_inks, pattern, pattern_hash, signature, manufacturer_id, created_at
		FROM patterns WHERE batch_code = ? ORDER BY created_at DESC`, batchCode)
	if err != nil {
		return nil, fmt.Errorf("query batch: %w", err)
	}
	defer rows.Close()

	var out []*generator.SignedPattern
	for rows.Next() {
		sp, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// FindByPatternHash returns the first record matching a content hash, or
// ErrNotFound. Scanner-side matching resolves a physical tag back to its
// batch through this lookup.
func (s *Store) FindByPatternHash(hash string) (*generator.SignedPattern, error) {
	row := s.db.QueryRow(`
		SELECT uuid, batch_code, algorithm, grid_size, num_inks, pattern, pattern_hash, signature, manufacturer_id, created_at
		FROM patterns WHERE pattern_hash = ? ORDER BY created_at ASC LIMIT 1`, hash)
	return scanPattern(row)
}

// Count returns the number of stored patterns.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM patterns`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count patterns: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (*generator.SignedPattern, error) {
	var sp generator.SignedPattern
	var cells string
	var createdNs int64

	err := row.Scan(&sp.UUID, &sp.BatchCode, &sp.Algorithm, &sp.GridSize, &sp.NumInks,
		&cells, &sp.PatternHash, &sp.Signature, &sp.ManufacturerID, &createdNs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan pattern: %w", err)
	}

	if err := json.Unmarshal([]byte(cells), &sp.Pattern); err != nil {
		return nil, fmt.Errorf("decode pattern: %w", err)
	}
	sp.CreatedAt = time.Unix(0, createdNs).UTC()
	return &sp, nil
}
