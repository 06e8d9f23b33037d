package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Outcome is the result of a seen-or-add probe.
type Outcome int

const (
	// New means the hash had not been seen and is now recorded.
	New Outcome = iota
	// Duplicate means the hash was already recorded.
	Duplicate
)

func (o Outcome) String() string {
	if o == Duplicate {
		return "duplicate"
	}
	return "new"
}

// Config sizes the deduplicator.
type Config struct {
	// LedgerPath is the SQLite database path.
	LedgerPath string
	// ExpectedPapers sizes the probabilistic filter (default 1e6).
	ExpectedPapers uint
	// FalsePositiveRate for the filter (default 0.01).
	FalsePositiveRate float64
}

// Deduplicator layers the rebuildable probabilistic filter over the
// authoritative ledger. The ledger is the source of truth; the filter
// only short-circuits definite misses.
type Deduplicator struct {
	cfg    Config
	filter *Filter
	ledger *Ledger
	logger *slog.Logger

	// writeMu makes probe-then-insert atomic with respect to other
	// writers in this process; the ledger's unique constraint guards
	// against other processes.
	writeMu sync.Mutex
}

// Open loads the ledger and reconstructs the filter from it.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Deduplicator, error) {
	if cfg.ExpectedPapers == 0 {
		cfg.ExpectedPapers = 1_000_000
	}
	if cfg.FalsePositiveRate == 0 {
		cfg.FalsePositiveRate = 0.01
	}

	ledger, err := OpenLedger(cfg.LedgerPath)
	if err != nil {
		return nil, err
	}

	filter := NewFilter(cfg.ExpectedPapers, cfg.FalsePositiveRate)
	hashes, err := ledger.AllHashes(ctx)
	if err != nil {
		_ = ledger.Close()
		return nil, fmt.Errorf("rebuild filter: %w", err)
	}
	for _, h := range hashes {
		filter.Add(h)
	}

	logger.Info("dedup ledger loaded",
		slog.Int("papers", len(hashes)),
		slog.Int("filter_kb", int(filter.SizeBytes()/1024)))

	return &Deduplicator{
		cfg:    cfg,
		filter: filter,
		ledger: ledger,
		logger: logger,
	}, nil
}

// SeenOrAdd records the hash if unseen. The fast path (filter miss)
// inserts directly; a filter hit consults the ledger to rule out a false
// positive.
func (d *Deduplicator) SeenOrAdd(ctx context.Context, rec Record) (Outcome, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if d.filter.MayContain(rec.ContentHash) {
		exists, err := d.ledger.Contains(ctx, rec.ContentHash)
		if err != nil {
			return Duplicate, err
		}
		if exists {
			return Duplicate, nil
		}
		// Filter false positive: fall through and record.
	}

	inserted, err := d.ledger.Insert(ctx, rec)
	if err != nil {
		return Duplicate, err
	}
	d.filter.Add(rec.ContentHash)

	if !inserted {
		// Another process won the race on the unique constraint.
		return Duplicate, nil
	}
	return New, nil
}

// Seen reports whether the hash is recorded, without adding it.
func (d *Deduplicator) Seen(ctx context.Context, hash [32]byte) (bool, error) {
	if !d.filter.MayContain(hash) {
		return false, nil
	}
	return d.ledger.Contains(ctx, hash)
}

// Remove forgets the given hashes in the ledger. The filter cannot
// un-set bits; it over-approximates until the next rebuild, which is
// safe (a stale filter hit falls through to the ledger).
func (d *Deduplicator) Remove(ctx context.Context, hashes [][32]byte) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.ledger.Remove(ctx, hashes)
}

// Clear empties the ledger and resets the filter.
func (d *Deduplicator) Clear(ctx context.Context) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if err := d.ledger.Clear(ctx); err != nil {
		return err
	}
	d.filter = NewFilter(d.cfg.ExpectedPapers, d.cfg.FalsePositiveRate)
	return nil
}

// Stats describes the deduplicator state.
type Stats struct {
	TotalPapers   int     `json:"total_papers"`
	UniqueSources int     `json:"unique_sources"`
	FilterSizeKB  float64 `json:"filter_size_kb"`
}

// Stats returns ledger and filter statistics.
func (d *Deduplicator) Stats(ctx context.Context) (Stats, error) {
	ls, err := d.ledger.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TotalPapers:   ls.TotalPapers,
		UniqueSources: ls.UniqueSources,
		FilterSizeKB:  float64(d.filter.SizeBytes()) / 1024,
	}, nil
}

// Close closes the ledger.
func (d *Deduplicator) Close() error {
	return d.ledger.Close()
}
