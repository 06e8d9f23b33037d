package dedup

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// Ledger is the authoritative record of seen content hashes, persisted
// in SQLite. All reads and writes are serialized by the database; the
// schema uses WAL mode so readers do not block the single writer.
type Ledger struct {
	db   *sql.DB
	path string
}

// OpenLedger opens (or creates) the ledger database at path.
func OpenLedger(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	// WAL mode must be set via PRAGMA for modernc.org/sqlite.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	schema := `
CREATE TABLE IF NOT EXISTS papers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content_hash TEXT UNIQUE NOT NULL,
	doi TEXT,
	title TEXT NOT NULL,
	authors TEXT,
	source TEXT,
	type TEXT,
	year TEXT,
	paper_id INTEGER
);
CREATE INDEX IF NOT EXISTS idx_papers_doi ON papers(doi) WHERE doi IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_papers_paper_id ON papers(paper_id);
`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}

	return &Ledger{db: db, path: path}, nil
}

// Record describes one ledger row.
type Record struct {
	ContentHash [32]byte
	DOI         string
	Title       string
	Authors     string
	Source      string
	Type        string
	Year        string
	PaperID     uint64
}

// Contains reports whether the content hash is recorded.
func (l *Ledger) Contains(ctx context.Context, hash [32]byte) (bool, error) {
	var exists bool
	err := l.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM papers WHERE content_hash = ?)",
		hex.EncodeToString(hash[:]),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	return exists, nil
}

// Insert records a content hash. Returns false if the hash was already
// present (the unique constraint makes concurrent inserts race-safe: at
// most one wins).
func (l *Ledger) Insert(ctx context.Context, rec Record) (bool, error) {
	res, err := l.db.ExecContext(ctx, `
INSERT OR IGNORE INTO papers (content_hash, doi, title, authors, source, type, year, paper_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		hex.EncodeToString(rec.ContentHash[:]),
		nullable(rec.DOI), rec.Title, rec.Authors, rec.Source, rec.Type, rec.Year, rec.PaperID,
	)
	if err != nil {
		return false, fmt.Errorf("ledger insert: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ledger insert result: %w", err)
	}
	return n > 0, nil
}

// Remove deletes ledger rows by content hash.
func (l *Ledger) Remove(ctx context.Context, hashes [][32]byte) error {
	if len(hashes) == 0 {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger remove: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM papers WHERE content_hash = ?")
	if err != nil {
		return fmt.Errorf("ledger remove: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, h := range hashes {
		if _, err := stmt.ExecContext(ctx, hex.EncodeToString(h[:])); err != nil {
			return fmt.Errorf("ledger remove: %w", err)
		}
	}

	return tx.Commit()
}

// AllHashes streams every recorded content hash, used to rebuild the
// probabilistic filter on startup.
func (l *Ledger) AllHashes(ctx context.Context) ([][32]byte, error) {
	rows, err := l.db.QueryContext(ctx, "SELECT content_hash FROM papers")
	if err != nil {
		return nil, fmt.Errorf("ledger scan: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out [][32]byte
	for rows.Next() {
		var hexHash string
		if err := rows.Scan(&hexHash); err != nil {
			return nil, fmt.Errorf("ledger scan: %w", err)
		}
		raw, err := hex.DecodeString(hexHash)
		if err != nil || len(raw) != 32 {
			continue // skip malformed rows rather than failing startup
		}
		var h [32]byte
		copy(h[:], raw)
		out = append(out, h)
	}

	return out, rows.Err()
}

// Clear empties the ledger.
func (l *Ledger) Clear(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "DELETE FROM papers")
	if err != nil {
		return fmt.Errorf("ledger clear: %w", err)
	}
	return nil
}

// Stats summarizes the ledger contents.
type LedgerStats struct {
	TotalPapers   int `json:"total_papers"`
	UniqueSources int `json:"unique_sources"`
}

// Stats returns ledger statistics.
func (l *Ledger) Stats(ctx context.Context) (LedgerStats, error) {
	var s LedgerStats
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM papers").Scan(&s.TotalPapers); err != nil {
		return s, fmt.Errorf("ledger stats: %w", err)
	}
	if err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT source) FROM papers WHERE source IS NOT NULL AND source != ''",
	).Scan(&s.UniqueSources); err != nil {
		return s, fmt.Errorf("ledger stats: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
