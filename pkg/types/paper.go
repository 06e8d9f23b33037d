// Package types defines the data model shared across the similarity engine:
// papers, query fragments, matches, and plagiarism bands.
package types

// Paper holds the metadata and embedding of an indexed or matched document.
type Paper struct {
	// PaperID is the stable identifier assigned by the vector index.
	// IDs are monotonically increasing and never reused.
	PaperID uint64 `json:"paper_id"`

	// ContentHash is the 32-byte digest over the normalized title+abstract.
	// It uniquely identifies the paper for deduplication.
	ContentHash [32]byte `json:"-"`

	// Title is the paper title as returned by the source.
	Title string `json:"title"`

	// Abstract is the paper abstract or description.
	Abstract string `json:"abstract"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors,omitempty"`

	// Source identifies the adapter that produced the paper
	// (e.g. "arxiv", "crossref").
	Source string `json:"source"`

	// DocumentType is the source-reported type (article, preprint, ...).
	DocumentType string `json:"document_type,omitempty"`

	// PublicationDate is the source-reported date or year, verbatim.
	PublicationDate string `json:"publication_date,omitempty"`

	// DOI is the bare DOI when known (no https://doi.org/ prefix).
	DOI string `json:"doi,omitempty"`

	// URL points at the paper landing page when known.
	URL string `json:"url,omitempty"`

	// Embedding is the L2-normalized vector for the normalized abstract.
	// Not serialized in API responses; persisted by the index.
	Embedding []float32 `json:"-"`
}

// Fragment is one submitted text fragment with its origin.
type Fragment struct {
	Page      string `json:"page"`
	Paragraph string `json:"paragraph"`
	Text      string `json:"text"`
}

// Match is a single similarity hit for an originating fragment.
type Match struct {
	Paper      Paper    `json:"paper"`
	Fragment   Fragment `json:"fragment"`
	Score      float64  `json:"score"`
	MatchPct   float64  `json:"match_pct"`
	Band       Band     `json:"band"`
	FoundText  string   `json:"found_text"`
	SourceText string   `json:"source_text"`
}

// AdapterResult is the envelope every external-source call returns.
// Adapters never fail a request; errors are carried here.
type AdapterResult struct {
	Papers    []Paper `json:"papers"`
	Source    string  `json:"source"`
	OK        bool    `json:"ok"`
	LatencyMS int64   `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}
