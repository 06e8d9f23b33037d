package sources

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/xplagiax/simengine/pkg/types"
)

// semanticScholarBase is the Graph API paper search endpoint.
var semanticScholarBase = "https://api.semanticscholar.org/graph/v1/paper/search"

// SemanticScholar queries the Semantic Scholar Graph API. The API key
// is optional; without it the anonymous quota applies.
type SemanticScholar struct {
	cfg Config
}

// Name returns the source tag.
func (s *SemanticScholar) Name() string { return "semantic_scholar" }

// BuildRequest assembles the paper search call.
func (s *SemanticScholar) BuildRequest(query, theme, _ string) (*Request, error) {
	headers := map[string]string{"User-Agent": s.cfg.UserAgent}
	if s.cfg.SemanticScholarKey != "" {
		headers["x-api-key"] = s.cfg.SemanticScholarKey
	}

	return &Request{
		URL: semanticScholarBase,
		Params: url.Values{
			"query":  {strings.TrimSpace(theme + " " + query)},
			"limit":  {fmt.Sprintf("%d", s.cfg.maxResults())},
			"fields": {"title,abstract,authors,publicationTypes,year,externalIds,url"},
		},
		Headers: headers,
	}, nil
}

// ParseResponse converts the Graph API JSON into papers.
func (s *SemanticScholar) ParseResponse(body []byte, _ string) ([]types.Paper, error) {
	var sr semanticScholarResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("parsing Semantic Scholar response: %w", err)
	}

	var papers []types.Paper
	for _, item := range sr.Data {
		if item.Abstract == "" {
			continue
		}

		p := types.Paper{
			Title:    item.Title,
			Abstract: item.Abstract,
			DOI:      item.ExternalIDs.DOI,
			URL:      item.URL,
		}
		for _, a := range item.Authors {
			if a.Name != "" {
				p.Authors = append(p.Authors, a.Name)
			}
		}
		if len(item.PublicationTypes) > 0 {
			p.DocumentType = strings.ToLower(item.PublicationTypes[0])
		} else {
			p.DocumentType = "article"
		}
		if item.Year > 0 {
			p.PublicationDate = fmt.Sprintf("%d", item.Year)
		}

		papers = append(papers, p)
	}
	return papers, nil
}

// Semantic Scholar API JSON structures.
type semanticScholarResponse struct {
	Data []semanticScholarPaper `json:"data"`
}

type semanticScholarPaper struct {
	Title            string                  `json:"title"`
	Abstract         string                  `json:"abstract"`
	Authors          []semanticScholarAuthor `json:"authors"`
	PublicationTypes []string                `json:"publicationTypes"`
	Year             int                     `json:"year"`
	ExternalIDs      semanticScholarIDs      `json:"externalIds"`
	URL              string                  `json:"url"`
}

type semanticScholarAuthor struct {
	Name string `json:"name"`
}

type semanticScholarIDs struct {
	DOI string `json:"DOI"`
}
