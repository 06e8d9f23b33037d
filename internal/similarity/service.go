package similarity

import (
	"context"
	"fmt"

	"github.com/xplagiax/simengine/internal/dedup"
	engerr "github.com/xplagiax/simengine/internal/errors"
	"github.com/xplagiax/simengine/internal/fragment"
	"github.com/xplagiax/simengine/internal/index"
	"github.com/xplagiax/simengine/internal/normalize"
	"github.com/xplagiax/simengine/internal/telemetry"
	"github.com/xplagiax/simengine/internal/validation"
	"github.com/xplagiax/simengine/pkg/types"
)

// Service exposes the search and admin operations the transport layer
// consumes.
type Service struct {
	core *CoreContext
	orch *Orchestrator
}

// NewService wires the orchestrator over the core context.
func NewService(core *CoreContext) *Service {
	return &Service{
		core: core,
		orch: NewOrchestrator(core),
	}
}

// SimilarityRequest is the validated input of similarity_search.
type SimilarityRequest struct {
	Theme     string
	Language  string
	Fragments []types.Fragment
	Threshold float64  // 0 selects the configured default
	UseIndex  *bool    // nil selects true
	Sources   []string // empty selects all
}

// SimilarityResponse is the similarity_search envelope.
type SimilarityResponse struct {
	Results          []types.Match `json:"results"`
	Count            int           `json:"count"`
	ProcessedTexts   int           `json:"processed_texts"`
	ThresholdUsed    float64       `json:"threshold_used"`
	IndexEnabled     bool          `json:"index_enabled"`
	DeadlineExceeded bool          `json:"deadline_exceeded,omitempty"`
}

// SimilaritySearch runs the batch pipeline over the submitted fragments.
func (s *Service) SimilaritySearch(ctx context.Context, req SimilarityRequest) (SimilarityResponse, error) {
	threshold := req.Threshold
	if threshold == 0 {
		threshold = s.core.Options.DefaultThreshold
	}
	useIndex := req.UseIndex == nil || *req.UseIndex

	if err := validation.ValidateRequest(validation.Request{
		Theme:     req.Theme,
		Language:  req.Language,
		Fragments: req.Fragments,
		Threshold: threshold,
		Sources:   req.Sources,
	}, s.core.Federator.Sources()); err != nil {
		s.core.Metrics.IncError(engerr.GetCode(err))
		return SimilarityResponse{}, err
	}

	run, err := s.orch.RunBatch(ctx, req.Fragments, req.Theme, req.Language, threshold, req.Sources, useIndex)
	if err != nil {
		s.core.Metrics.IncError(engerr.GetCode(err))
		return SimilarityResponse{}, err
	}

	return SimilarityResponse{
		Results:          run.Matches,
		Count:            len(run.Matches),
		ProcessedTexts:   run.ProcessedTexts,
		ThresholdUsed:    threshold,
		IndexEnabled:     useIndex,
		DeadlineExceeded: run.DeadlineExceeded,
	}, nil
}

// CheckRequest is the plagiarism_check input: a similarity request plus
// the chunking controls.
type CheckRequest struct {
	SimilarityRequest
	ChunkMode     fragment.Mode // empty selects the analyzer's recommendation
	MinChunkWords int
}

// BandGroup is one severity band's result bucket.
type BandGroup struct {
	Count   int           `json:"count"`
	Results []types.Match `json:"results"`
}

// CheckResponse aggregates matches by plagiarism band.
type CheckResponse struct {
	PlagiarismDetected bool                  `json:"plagiarism_detected"`
	ChunksAnalyzed     int                   `json:"chunks_analyzed"`
	TotalMatches       int                   `json:"total_matches"`
	Summary            map[types.Band]int    `json:"summary"`
	ByLevel            map[types.Band]BandGroup `json:"by_level"`
	ThresholdUsed      float64               `json:"threshold_used"`
	IndexEnabled       bool                  `json:"index_enabled"`
	ChunkModeUsed      fragment.Mode         `json:"chunk_mode_used"`
	DeadlineExceeded   bool                  `json:"deadline_exceeded,omitempty"`
}

// maxResultsPerBand caps the echoed matches per severity band.
const maxResultsPerBand = 10

// PlagiarismCheck fragments each submitted text, runs the similarity
// pipeline over the chunks, and aggregates matches by severity band.
func (s *Service) PlagiarismCheck(ctx context.Context, req CheckRequest) (CheckResponse, error) {
	threshold := req.Threshold
	if threshold == 0 {
		threshold = s.core.Options.DefaultThreshold
	}
	useIndex := req.UseIndex == nil || *req.UseIndex

	if err := validation.ValidateRequest(validation.Request{
		Theme:     req.Theme,
		Language:  req.Language,
		Fragments: req.Fragments,
		Threshold: threshold,
		Sources:   req.Sources,
	}, s.core.Federator.Sources()); err != nil {
		s.core.Metrics.IncError(engerr.GetCode(err))
		return CheckResponse{}, err
	}

	mode := req.ChunkMode
	switch mode {
	case fragment.ModeSentences, fragment.ModeSliding:
	case "":
		// Recommend a mode from the first fragment's structure.
		mode = fragment.Analyze(req.Fragments[0].Text).RecommendedMode
	default:
		err := engerr.InvalidInput(fmt.Sprintf("unknown chunk_mode %q", mode))
		s.core.Metrics.IncError(engerr.GetCode(err))
		return CheckResponse{}, err
	}

	minWords := req.MinChunkWords
	if minWords <= 0 {
		minWords = fragment.DefaultMinWords
	}

	// Fragment every submitted text into checkable chunks.
	var chunks []types.Fragment
	for _, f := range req.Fragments {
		switch mode {
		case fragment.ModeSliding:
			windows, err := fragment.Sliding(f.Text, fragment.DefaultWindowWords, fragment.DefaultOverlap)
			if err != nil {
				return CheckResponse{}, engerr.InvalidInput(err.Error())
			}
			for _, c := range windows {
				chunks = append(chunks, types.Fragment{
					Page:      f.Page,
					Paragraph: fmt.Sprintf("%s_w%d", f.Paragraph, c.Index),
					Text:      c.Text,
				})
			}
		default:
			for _, c := range fragment.Sentences(f.Text, minWords) {
				chunks = append(chunks, types.Fragment{
					Page:      f.Page,
					Paragraph: fmt.Sprintf("%s_s%d", f.Paragraph, c.Index),
					Text:      c.Text,
				})
			}
		}
	}

	resp := CheckResponse{
		Summary:       make(map[types.Band]int),
		ByLevel:       make(map[types.Band]BandGroup),
		ThresholdUsed: threshold,
		IndexEnabled:  useIndex,
		ChunkModeUsed: mode,
	}
	if len(chunks) == 0 {
		return resp, nil
	}

	run, err := s.orch.RunBatch(ctx, chunks, req.Theme, req.Language, threshold, req.Sources, useIndex)
	if err != nil {
		s.core.Metrics.IncError(engerr.GetCode(err))
		return CheckResponse{}, err
	}

	resp.ChunksAnalyzed = len(chunks)
	resp.TotalMatches = len(run.Matches)
	resp.DeadlineExceeded = run.DeadlineExceeded

	for _, band := range types.Bands() {
		resp.Summary[band] = 0
	}
	for _, m := range run.Matches {
		if m.Band == types.BandNone {
			continue
		}
		resp.Summary[m.Band]++

		group := resp.ByLevel[m.Band]
		group.Count++
		if len(group.Results) < maxResultsPerBand {
			group.Results = append(group.Results, m)
		}
		resp.ByLevel[m.Band] = group

		if m.Band.Detected() {
			resp.PlagiarismDetected = true
		}
	}

	return resp, nil
}

// DirectIndexSearch embeds one query and probes the index only; no
// cache, no federation.
func (s *Service) DirectIndexSearch(ctx context.Context, query string, k int, threshold float64) ([]types.Match, error) {
	if query == "" {
		return nil, engerr.InvalidInput("query is required")
	}
	if k <= 0 {
		k = s.core.Options.ResultK
	}
	if threshold == 0 {
		threshold = s.core.Options.DefaultThreshold
	}
	if err := validation.ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	if threshold < ReportingFloor {
		threshold = ReportingFloor
	}

	vec, err := s.core.Embedder.Embed(ctx, normalize.Clean(query))
	if err != nil {
		return nil, engerr.Unavailable("embedding model unavailable", err)
	}

	hits, err := s.core.Index.Search(vec, k, threshold)
	if err != nil {
		return nil, err
	}

	matches := make([]types.Match, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, s.orch.matchFor(h.Paper, h.Score))
	}
	return matches, nil
}

// --- Admin operations ---

// Save persists the index immediately.
func (s *Service) Save() error {
	return s.core.Index.Save()
}

// Clear empties the index and the dedup ledger. Paper IDs remain
// monotonic.
func (s *Service) Clear(ctx context.Context) error {
	s.core.Index.Clear()
	return s.core.Dedup.Clear(ctx)
}

// Backup copies the persisted index files into a stamped directory.
func (s *Service) Backup() (string, error) {
	return s.core.Index.Backup()
}

// RemoveDuplicates sweeps the index for papers sharing a content hash.
func (s *Service) RemoveDuplicates(ctx context.Context) (int, error) {
	return s.core.Index.RemoveDuplicates(ctx)
}

// ResetLimits restores every source's token bucket to full.
func (s *Service) ResetLimits() {
	s.core.Limiter.Reset()
}

// ClearResultCache drops every cached result set.
func (s *Service) ClearResultCache() {
	s.core.Cache.Clear()
}

// DedupStats reports ledger and filter statistics.
func (s *Service) DedupStats(ctx context.Context) (dedup.Stats, error) {
	return s.core.Dedup.Stats(ctx)
}

// Stats combines index state with the telemetry snapshot.
type Stats struct {
	Index   index.Stats        `json:"index"`
	Metrics telemetry.Snapshot `json:"metrics"`
}

// Stats reports the engine state.
func (s *Service) Stats() Stats {
	return Stats{
		Index:   s.core.Index.Stats(),
		Metrics: s.core.Metrics.Snapshot(),
	}
}

// Flush forces pending background work (debounced saves). Called on
// shutdown.
func (s *Service) Flush() {
	s.orch.Flush()
}
