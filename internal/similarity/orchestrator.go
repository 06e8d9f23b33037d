package similarity

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	engerr "github.com/xplagiax/simengine/internal/errors"
	"github.com/xplagiax/simengine/internal/normalize"
	"github.com/xplagiax/simengine/internal/rcache"
	"github.com/xplagiax/simengine/internal/telemetry"
	"github.com/xplagiax/simengine/pkg/types"
)

// Orchestrator runs the end-to-end batch similarity pipeline.
type Orchestrator struct {
	core  *CoreContext
	saver *saver
}

// NewOrchestrator wires the pipeline over a core context.
func NewOrchestrator(core *CoreContext) *Orchestrator {
	core.Options = core.Options.withDefaults()
	return &Orchestrator{
		core:  core,
		saver: newSaver(core.Index.Save, core.Options.SaveDebounce, core.Logger),
	}
}

// RunResult carries the batch output plus run telemetry.
type RunResult struct {
	Matches          []types.Match
	ProcessedTexts   int
	PapersAdded      int
	DeadlineExceeded bool
}

// uniqueQuery is one normalized text with every fragment that produced it.
type uniqueQuery struct {
	normalized  string
	fragments   []types.Fragment
	fingerprint string
	vector      []float32
	matches     []types.Match // fragment-agnostic, filled as stages run
	done        bool          // true once cache or index satisfied it
	fromCache   bool          // served from the result cache
	computed    bool          // pipeline finished for this query
}

// RunBatch executes the pipeline for a batch of fragments. Identical
// normalized texts are computed once and their results rebroadcast to
// every originating fragment. The whole call observes one deadline: on
// expiry it returns best-effort partial results flagged in the result,
// failing outright only when the embedder is unusable. A failed index
// probe falls back to federation and a failed write-back is logged.
func (o *Orchestrator) RunBatch(ctx context.Context, fragments []types.Fragment, theme, language string, threshold float64, allowedSources []string, useIndex bool) (RunResult, error) {
	opts := o.core.Options
	if threshold <= 0 {
		threshold = opts.DefaultThreshold
	}
	minScore := threshold
	if minScore < ReportingFloor {
		minScore = ReportingFloor
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, opts.Deadline)
	defer cancel()

	// Step 1: normalize and group identical texts.
	queries := o.groupFragments(fragments, language, theme, threshold)
	result := RunResult{ProcessedTexts: len(queries)}

	// Step 2: cache probe; hits short-circuit the whole pipeline.
	pending := make([]*uniqueQuery, 0, len(queries))
	for _, q := range queries {
		if cached, ok := o.core.Cache.Lookup(q.fingerprint); ok {
			o.core.Metrics.Inc(telemetry.CounterCacheHits)
			q.matches = cached
			q.done = true
			q.fromCache = true
			q.computed = true
			continue
		}
		o.core.Metrics.Inc(telemetry.CounterCacheMisses)
		pending = append(pending, q)
	}

	// Step 3: one embedding batch for every cache miss.
	if len(pending) > 0 {
		texts := make([]string, len(pending))
		for i, q := range pending {
			texts[i] = q.normalized
		}
		vectors, err := o.core.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			o.core.Metrics.IncError(engerr.ErrCodeEmbeddingFailed)
			return result, engerr.Unavailable("embedding model unavailable", err)
		}
		for i, q := range pending {
			q.vector = vectors[i]
		}
	}

	// Step 4: index probe. Queries with enough hits are done.
	if useIndex && o.core.Index.Count() > 0 && len(pending) > 0 {
		o.probeIndex(pending, minScore)
	}

	// Step 5/6: federate the rest, re-embed, rank, write back.
	for _, q := range pending {
		if q.done {
			continue
		}
		if ctx.Err() != nil {
			result.DeadlineExceeded = true
			break
		}

		added := o.federateQuery(ctx, q, theme, language, minScore, allowedSources)
		if ctx.Err() != nil {
			// Partial federation results are returned but never cached.
			result.PapersAdded += added
			result.DeadlineExceeded = true
			break
		}
		result.PapersAdded += added
		q.computed = true
	}

	// Step 7: rebroadcast per original fragment in first-seen order.
	for _, q := range queries {
		for _, frag := range q.fragments {
			for _, m := range q.matches {
				m.Fragment = frag
				m.SourceText = frag.Text
				result.Matches = append(result.Matches, m)
			}
		}
	}

	// Step 8: persist cache entries and schedule a debounced save.
	for _, q := range queries {
		if q.computed && !q.fromCache {
			o.core.Cache.Store(q.fingerprint, q.matches, opts.CacheTTL)
		}
	}
	if result.PapersAdded > 0 {
		o.core.Metrics.Add(telemetry.CounterPapersAdded, uint64(result.PapersAdded))
		o.saver.Request()
	}
	if result.DeadlineExceeded {
		o.core.Metrics.Inc(telemetry.CounterDeadlineExceeded)
	}

	o.core.Metrics.ObserveRequest(time.Since(start))
	o.core.Logger.Info("batch complete",
		slog.Int("fragments", len(fragments)),
		slog.Int("unique_texts", len(queries)),
		slog.Int("matches", len(result.Matches)),
		slog.Int("papers_added", result.PapersAdded),
		slog.Bool("deadline_exceeded", result.DeadlineExceeded),
		slog.Duration("elapsed", time.Since(start)))

	return result, nil
}

// groupFragments normalizes every fragment and groups identical
// normalized texts, preserving first-seen order.
func (o *Orchestrator) groupFragments(fragments []types.Fragment, language, theme string, threshold float64) []*uniqueQuery {
	byText := make(map[string]*uniqueQuery)
	var ordered []*uniqueQuery

	for _, f := range fragments {
		norm := normalize.Normalize(f.Text, language)
		if norm == "" {
			continue
		}

		q, ok := byText[norm]
		if !ok {
			q = &uniqueQuery{
				normalized:  norm,
				fingerprint: rcache.Fingerprint(theme, language, norm, threshold),
			}
			byText[norm] = q
			ordered = append(ordered, q)
		}
		q.fragments = append(q.fragments, f)
	}

	return ordered
}

// probeIndex runs the batched index search. A query with at least
// Sufficient hits is finalized without federation.
func (o *Orchestrator) probeIndex(pending []*uniqueQuery, minScore float64) {
	opts := o.core.Options

	vectors := make([][]float32, len(pending))
	for i, q := range pending {
		vectors[i] = q.vector
	}

	perQuery, err := o.core.Index.SearchBatch(vectors, opts.SearchK, minScore)
	if err != nil {
		// A failed probe degrades to federation; it does not fail the run.
		o.core.Logger.Warn("index probe failed", slog.String("error", err.Error()))
		return
	}

	for i, hits := range perQuery {
		q := pending[i]
		for _, h := range hits {
			q.matches = append(q.matches, o.matchFor(h.Paper, h.Score))
		}
		if len(hits) >= opts.Sufficient {
			o.core.Metrics.Inc(telemetry.CounterIndexHits)
			sortMatches(q.matches)
			q.matches = truncate(q.matches, opts.ResultK)
			q.done = true
			q.computed = true
		}
	}
}

// federateQuery fans out to the external sources for one query, embeds
// the fetched abstracts, ranks them against the query vector, and adds
// the usable papers to the index. Returns how many papers were added.
func (o *Orchestrator) federateQuery(ctx context.Context, q *uniqueQuery, theme, language string, minScore float64, allowedSources []string) int {
	opts := o.core.Options
	o.core.Metrics.Inc(telemetry.CounterFederatorCalls)

	papers, _ := o.core.Federator.Search(ctx, q.normalized, theme, language, allowedSources)

	// Papers without a usable abstract are discarded.
	var zeroHash [32]byte
	usable := papers[:0]
	for _, p := range papers {
		if len(normalize.Clean(p.Abstract)) < minAbstractChars {
			continue
		}
		if p.ContentHash == zeroHash {
			p.ContentHash = normalize.ContentHash(p.Title, p.Abstract)
		}
		usable = append(usable, p)
	}
	if len(usable) == 0 {
		sortMatches(q.matches)
		q.matches = truncate(q.matches, opts.ResultK)
		return 0
	}

	// One embedding batch over the normalized abstracts.
	texts := make([]string, len(usable))
	for i, p := range usable {
		texts[i] = normalize.Normalize(p.Abstract, language)
	}
	vectors, err := o.core.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		o.core.Metrics.IncError(engerr.ErrCodeEmbeddingFailed)
		sortMatches(q.matches)
		q.matches = truncate(q.matches, opts.ResultK)
		return 0
	}

	seen := make(map[[32]byte]struct{}, len(q.matches))
	for _, m := range q.matches {
		seen[m.Paper.ContentHash] = struct{}{}
	}

	for i := range usable {
		usable[i].Embedding = vectors[i]

		score := dot(q.vector, vectors[i])
		if score < minScore {
			continue
		}
		if _, dup := seen[usable[i].ContentHash]; dup {
			continue // already matched from the index
		}
		seen[usable[i].ContentHash] = struct{}{}
		q.matches = append(q.matches, o.matchFor(usable[i], score))
	}

	added, err := o.core.Index.Add(ctx, usable)
	if err != nil {
		o.core.Logger.Warn("index write-back failed", slog.String("error", err.Error()))
	}

	sortMatches(q.matches)
	q.matches = truncate(q.matches, opts.ResultK)
	return added
}

// matchFor builds a fragment-agnostic match; the rebroadcast step fills
// the fragment fields.
func (o *Orchestrator) matchFor(p types.Paper, score float64) types.Match {
	found := p.Abstract
	if len(found) > foundTextCap {
		found = found[:foundTextCap] + "..."
	}
	p.Embedding = nil

	return types.Match{
		Paper:     p,
		Score:     score,
		MatchPct:  math.Round(score*1000) / 10, // percentage with one decimal
		Band:      types.BandForScore(score),
		FoundText: found,
	}
}

func sortMatches(matches []types.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Paper.PaperID < matches[j].Paper.PaperID
	})
}

func truncate(matches []types.Match, k int) []types.Match {
	if len(matches) > k {
		return matches[:k]
	}
	return matches
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Flush forces any pending debounced save. Called on shutdown.
func (o *Orchestrator) Flush() {
	o.saver.Flush()
}
