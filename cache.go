package nanowasm

import (
	"bytes"
	"crypto/sha256"
	"database/sql"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/nanowasm/nanowasm/internal/wasm"
)

// CompilationCache persists decoded modules keyed by the SHA-256 of their
// raw bytes, so re-instantiating the same .wasm bytes skips DecodeModule's
// LEB128 and opcode parsing in favor of a gob decode. This generalizes the
// teacher's directory-based file cache (cache.go, internal/compilationcache)
// into a single SQLite table, trading one file per module for one row and
// a real SQL driver.
type CompilationCache struct {
	db *sql.DB
}

// NewCompilationCache opens (creating if absent) a SQLite database at path
// and ensures its schema exists.
func NewCompilationCache(path string) (*CompilationCache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("compilation cache: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("compilation cache: open %s: %w", path, err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS modules (
		content_hash TEXT PRIMARY KEY,
		module_gob   BLOB NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("compilation cache: init schema: %w", err)
	}

	return &CompilationCache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *CompilationCache) Close() error {
	return c.db.Close()
}

func contentHash(moduleBytes []byte) string {
	sum := sha256.Sum256(moduleBytes)
	return hex.EncodeToString(sum[:])
}

// get looks up a previously decoded Module by content hash. Any failure —
// no row, a closed database, a corrupt blob — is treated as a cache miss;
// the caller falls back to decoding moduleBytes directly rather than fail
// the whole instantiation over a cache problem.
func (c *CompilationCache) get(moduleBytes []byte) (*wasm.Module, bool) {
	var blob []byte
	err := c.db.QueryRow(`SELECT module_gob FROM modules WHERE content_hash = ?`, contentHash(moduleBytes)).Scan(&blob)
	if err != nil {
		return nil, false
	}
	var m wasm.Module
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&m); err != nil {
		return nil, false
	}
	return &m, true
}

// put stores a freshly decoded Module under moduleBytes' content hash. A
// failure to encode or write is swallowed: the cache is an optimization,
// never a requirement for Instantiate to succeed.
func (c *CompilationCache) put(moduleBytes []byte, m *wasm.Module) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return
	}
	_, _ = c.db.Exec(`INSERT OR REPLACE INTO modules (content_hash, module_gob) VALUES (?, ?)`,
		contentHash(moduleBytes), buf.Bytes())
}
