// Package snapshot persists built indexes in SQLite, keyed by fingerprint,
// so an unchanged corpus can be reloaded without calling the embedder.
package snapshot

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"reportmate/internal/domain"
	"reportmate/internal/snapshot/migrations"
)

// Snapshot is everything needed to restore a built retrieval session.
// Vectors are stored normalised, in chunk order.
type Snapshot struct {
	Fingerprint string
	Model       string
	Summary     string
	Pages       []domain.Page
	Chunks      []domain.Chunk
	Vectors     [][]float64
	CreatedAt   time.Time
}

// Store is a SQLite-backed snapshot cache.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens dir/snapshots.db and applies migrations.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	dbPath := filepath.Join(dir, "snapshots.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Store{db: db, path: dbPath}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Path() string { return s.path }

func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// Save replaces any snapshot stored under snap.Fingerprint.
func (s *Store) Save(ctx context.Context, snap *Snapshot) error {
	if snap.Fingerprint == "" {
		return fmt.Errorf("%w: empty fingerprint", domain.ErrInvalidInput)
	}
	if len(snap.Chunks) != len(snap.Vectors) {
		return fmt.Errorf("%w: %d chunks, %d vectors", domain.ErrInvalidInput, len(snap.Chunks), len(snap.Vectors))
	}
	createdAt := snap.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteSnapshot(ctx, tx, snap.Fingerprint); err != nil {
		return fmt.Errorf("clearing snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO snapshots (fingerprint, model, summary, created_at) VALUES (?, ?, ?, ?)",
		snap.Fingerprint, snap.Model, snap.Summary, createdAt.UTC(),
	); err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	pageStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO pages (fingerprint, position, document, number, text) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing pages: %w", err)
	}
	defer pageStmt.Close()
	for i, p := range snap.Pages {
		if _, err := pageStmt.ExecContext(ctx, snap.Fingerprint, i, p.Document, p.Number, p.Text); err != nil {
			return fmt.Errorf("inserting page %d: %w", i, err)
		}
	}

	chunkStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (fingerprint, position, chunk_id, document, page, ordinal, text, vector) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing chunks: %w", err)
	}
	defer chunkStmt.Close()
	for i, c := range snap.Chunks {
		if _, err := chunkStmt.ExecContext(ctx, snap.Fingerprint, i, c.ID, c.Document, c.Page, c.Ordinal, c.Text, float64SliceToBytes(snap.Vectors[i])); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// Load returns the snapshot for fingerprint, or domain.ErrNotFound.
func (s *Store) Load(ctx context.Context, fingerprint string) (*Snapshot, error) {
	snap := &Snapshot{Fingerprint: fingerprint}
	err := s.db.QueryRowContext(ctx,
		"SELECT model, summary, created_at FROM snapshots WHERE fingerprint = ?", fingerprint,
	).Scan(&snap.Model, &snap.Summary, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %q: %w", fingerprint, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}

	pageRows, err := s.db.QueryContext(ctx,
		"SELECT document, number, text FROM pages WHERE fingerprint = ? ORDER BY position", fingerprint)
	if err != nil {
		return nil, fmt.Errorf("querying pages: %w", err)
	}
	defer pageRows.Close()
	for pageRows.Next() {
		var p domain.Page
		if err := pageRows.Scan(&p.Document, &p.Number, &p.Text); err != nil {
			return nil, fmt.Errorf("scanning page: %w", err)
		}
		snap.Pages = append(snap.Pages, p)
	}
	if err := pageRows.Err(); err != nil {
		return nil, err
	}

	chunkRows, err := s.db.QueryContext(ctx,
		"SELECT chunk_id, document, page, ordinal, text, vector FROM chunks WHERE fingerprint = ? ORDER BY position", fingerprint)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer chunkRows.Close()
	for chunkRows.Next() {
		var c domain.Chunk
		var blob []byte
		if err := chunkRows.Scan(&c.ID, &c.Document, &c.Page, &c.Ordinal, &c.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		snap.Chunks = append(snap.Chunks, c)
		snap.Vectors = append(snap.Vectors, bytesToFloat64Slice(blob))
	}
	if err := chunkRows.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Delete removes the snapshot for fingerprint. Deleting a missing snapshot is not an error.
func (s *Store) Delete(ctx context.Context, fingerprint string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := deleteSnapshot(ctx, tx, fingerprint); err != nil {
		return err
	}
	return tx.Commit()
}

// deleteSnapshot removes child rows explicitly; the cascade only fires on
// connections that have foreign keys enabled.
func deleteSnapshot(ctx context.Context, tx *sql.Tx, fingerprint string) error {
	for _, table := range []string{"chunks", "pages", "snapshots"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE fingerprint = ?", fingerprint); err != nil {
			return fmt.Errorf("deleting %s: %w", table, err)
		}
	}
	return nil
}

// float64SliceToBytes converts a []float64 to a little-endian byte slice for storage.
func float64SliceToBytes(floats []float64) []byte {
	buf := make([]byte, len(floats)*8)
	for i, f := range floats {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

// bytesToFloat64Slice converts a byte slice back to []float64.
func bytesToFloat64Slice(data []byte) []float64 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float64, len(data)/8)
	for i := range floats {
		floats[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return floats
}
