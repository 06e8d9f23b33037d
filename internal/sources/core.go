package sources

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/xplagiax/simengine/pkg/types"
)

// coreBase is the CORE v3 works search endpoint.
var coreBase = "https://api.core.ac.uk/v3/search/works"

// CORE queries the CORE aggregator. The API requires a Bearer key; an
// unconfigured key skips the source.
type CORE struct {
	cfg Config
}

// Name returns the source tag.
func (c *CORE) Name() string { return "core" }

// BuildRequest assembles the works search call.
func (c *CORE) BuildRequest(query, theme, _ string) (*Request, error) {
	if c.cfg.COREKey == "" {
		return nil, errNotConfigured
	}

	return &Request{
		URL: coreBase,
		Params: url.Values{
			"q":     {strings.TrimSpace(theme + " " + query)},
			"limit": {fmt.Sprintf("%d", c.cfg.maxResults())},
		},
		Headers: map[string]string{
			"User-Agent":    c.cfg.UserAgent,
			"Authorization": "Bearer " + c.cfg.COREKey,
		},
	}, nil
}

// ParseResponse converts the works JSON into papers.
func (c *CORE) ParseResponse(body []byte, _ string) ([]types.Paper, error) {
	var cr coreResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("parsing CORE response: %w", err)
	}

	var papers []types.Paper
	for _, item := range cr.Results {
		if item.Abstract == "" {
			continue
		}

		p := types.Paper{
			Title:        item.Title,
			Abstract:     item.Abstract,
			DocumentType: strings.ToLower(item.DocumentType),
			DOI:          item.DOI,
			URL:          item.DownloadURL,
		}
		for _, a := range item.Authors {
			if a.Name != "" {
				p.Authors = append(p.Authors, a.Name)
			}
		}
		if item.YearPublished > 0 {
			p.PublicationDate = fmt.Sprintf("%d", item.YearPublished)
		}
		if p.DocumentType == "" {
			p.DocumentType = "article"
		}

		papers = append(papers, p)
	}
	return papers, nil
}

// CORE API JSON structures.
type coreResponse struct {
	Results []coreWork `json:"results"`
}

type coreWork struct {
	Title         string       `json:"title"`
	Abstract      string       `json:"abstract"`
	Authors       []coreAuthor `json:"authors"`
	DocumentType  string       `json:"documentType"`
	DOI           string       `json:"doi"`
	DownloadURL   string       `json:"downloadUrl"`
	YearPublished int          `json:"yearPublished"`
}

type coreAuthor struct {
	Name string `json:"name"`
}
