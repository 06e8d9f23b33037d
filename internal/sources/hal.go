package sources

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/xplagiax/simengine/pkg/types"
)

// halBase is the HAL open archive search endpoint.
var halBase = "https://api.archives-ouvertes.fr/search/"

// HAL queries the French HAL open archive.
type HAL struct {
	cfg Config
}

// Name returns the source tag.
func (h *HAL) Name() string { return "hal" }

// BuildRequest assembles the Solr-style search call.
func (h *HAL) BuildRequest(query, theme, _ string) (*Request, error) {
	return &Request{
		URL: halBase,
		Params: url.Values{
			"q":    {strings.TrimSpace(theme + " " + query)},
			"rows": {fmt.Sprintf("%d", h.cfg.maxResults())},
			"wt":   {"json"},
			"fl":   {"title_s,abstract_s,authFullName_s,docType_s,producedDateY_i,doiId_s,uri_s"},
		},
		Headers: map[string]string{"User-Agent": h.cfg.UserAgent},
	}, nil
}

// ParseResponse converts HAL documents into papers.
func (h *HAL) ParseResponse(body []byte, _ string) ([]types.Paper, error) {
	var hr halResponse
	if err := json.Unmarshal(body, &hr); err != nil {
		return nil, fmt.Errorf("parsing HAL response: %w", err)
	}

	var papers []types.Paper
	for _, doc := range hr.Response.Docs {
		abstract := firstOr(doc.Abstract, "")
		if abstract == "" {
			continue
		}

		p := types.Paper{
			Title:        firstOr(doc.Title, ""),
			Abstract:     abstract,
			Authors:      doc.Authors,
			DocumentType: strings.ToLower(doc.DocType),
			DOI:          doc.DOI,
			URL:          doc.URI,
		}
		if doc.ProducedYear > 0 {
			p.PublicationDate = fmt.Sprintf("%d", doc.ProducedYear)
		}
		if p.DocumentType == "" {
			p.DocumentType = "article"
		}

		papers = append(papers, p)
	}
	return papers, nil
}

// HAL API JSON structures (Solr response shape).
type halResponse struct {
	Response halDocs `json:"response"`
}

type halDocs struct {
	Docs []halDoc `json:"docs"`
}

type halDoc struct {
	Title        []string `json:"title_s"`
	Abstract     []string `json:"abstract_s"`
	Authors      []string `json:"authFullName_s"`
	DocType      string   `json:"docType_s"`
	ProducedYear int      `json:"producedDateY_i"`
	DOI          string   `json:"doiId_s"`
	URI          string   `json:"uri_s"`
}
