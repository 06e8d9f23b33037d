// Package federate fans a query out across the external source adapters
// in parallel, bounds the whole call with one deadline, and merges the
// results deterministically.
package federate

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xplagiax/simengine/internal/normalize"
	"github.com/xplagiax/simengine/internal/sources"
	"github.com/xplagiax/simengine/pkg/types"
)

// Defaults for the federation deadline and per-source result cap.
const (
	DefaultDeadline     = 10 * time.Second
	DefaultPerSourceCap = 5
)

// Searcher runs one adapter for one query; implemented by the shared
// sources.Driver and by test stubs.
type Searcher interface {
	Search(ctx context.Context, adapter sources.Adapter, query, theme, language string) types.AdapterResult
}

// Federator owns the adapter registry and the shared driver.
type Federator struct {
	driver       Searcher
	adapters     []sources.Adapter
	deadline     time.Duration
	perSourceCap int
	logger       *slog.Logger
}

// New creates a federator over the given adapters, kept in declaration
// order: that order is the deterministic merge order.
func New(driver Searcher, adapters []sources.Adapter, deadline time.Duration, perSourceCap int, logger *slog.Logger) *Federator {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	if perSourceCap <= 0 {
		perSourceCap = DefaultPerSourceCap
	}
	return &Federator{
		driver:       driver,
		adapters:     adapters,
		deadline:     deadline,
		perSourceCap: perSourceCap,
		logger:       logger,
	}
}

// Sources lists the registered source tags in declaration order.
func (f *Federator) Sources() []string {
	out := make([]string, len(f.adapters))
	for i, a := range f.adapters {
		out[i] = a.Name()
	}
	return out
}

// Search fans out to all permitted adapters in parallel and awaits them
// under the federation deadline. Adapters that miss the deadline are
// cancelled and reported as failed. Results are concatenated in adapter
// declaration order, capped per source, then deduplicated by content
// hash preserving first-seen order. Every paper comes back with its
// ContentHash populated.
func (f *Federator) Search(ctx context.Context, query, theme, language string, allowed []string) ([]types.Paper, []types.AdapterResult) {
	permitted := f.permittedAdapters(allowed)
	if len(permitted) == 0 {
		return nil, nil
	}

	fedCtx, cancel := context.WithTimeout(ctx, f.deadline)
	defer cancel()

	results := make([]types.AdapterResult, len(permitted))
	var g errgroup.Group
	for i, adapter := range permitted {
		i, adapter := i, adapter
		g.Go(func() error {
			results[i] = f.driver.Search(fedCtx, adapter, query, theme, language)
			return nil
		})
	}
	_ = g.Wait() // adapter errors never escape the envelope

	var merged []types.Paper
	seen := make(map[[32]byte]struct{})
	okSources := 0
	for _, res := range results {
		if res.OK {
			okSources++
		}

		papers := res.Papers
		if len(papers) > f.perSourceCap {
			papers = papers[:f.perSourceCap]
		}
		for _, p := range papers {
			p.ContentHash = normalize.ContentHash(p.Title, p.Abstract)
			if _, dup := seen[p.ContentHash]; dup {
				continue
			}
			seen[p.ContentHash] = struct{}{}
			merged = append(merged, p)
		}
	}

	f.logger.Info("federated search complete",
		slog.Int("sources", len(permitted)),
		slog.Int("sources_ok", okSources),
		slog.Int("papers", len(merged)))

	return merged, results
}

// permittedAdapters applies the per-request source filter, preserving
// declaration order.
func (f *Federator) permittedAdapters(allowed []string) []sources.Adapter {
	if len(allowed) == 0 {
		return f.adapters
	}

	allow := make(map[string]struct{}, len(allowed))
	for _, s := range allowed {
		allow[s] = struct{}{}
	}

	var out []sources.Adapter
	for _, a := range f.adapters {
		if _, ok := allow[a.Name()]; ok {
			out = append(out, a)
		}
	}
	return out
}
