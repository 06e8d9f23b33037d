package sources

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/xplagiax/simengine/pkg/types"
)

// crossrefBase is the Crossref Works endpoint. Declared as a var so
// tests can substitute an httptest server.
var crossrefBase = "https://api.crossref.org/works"

// Crossref queries the Crossref REST API.
type Crossref struct {
	cfg Config
}

// Name returns the source tag.
func (c *Crossref) Name() string { return "crossref" }

// BuildRequest assembles the Works search call.
func (c *Crossref) BuildRequest(query, theme, _ string) (*Request, error) {
	params := url.Values{
		"query":  {strings.TrimSpace(theme + " " + query)},
		"rows":   {fmt.Sprintf("%d", c.cfg.maxResults())},
		"select": {"title,author,abstract,type,DOI,URL,published-print"},
	}
	if c.cfg.ContactEmail != "" {
		params.Set("mailto", c.cfg.ContactEmail)
	}

	return &Request{
		URL:     crossrefBase,
		Params:  params,
		Headers: map[string]string{"User-Agent": c.cfg.UserAgent},
	}, nil
}

// ParseResponse converts the Works JSON into papers. Records without an
// abstract are dropped.
func (c *Crossref) ParseResponse(body []byte, _ string) ([]types.Paper, error) {
	var cr crossrefResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("parsing Crossref response: %w", err)
	}

	var papers []types.Paper
	for _, item := range cr.Message.Items {
		if item.Abstract == "" {
			continue
		}

		p := types.Paper{
			Title:        firstOr(item.Title, ""),
			Abstract:     item.Abstract,
			DocumentType: item.Type,
			DOI:          item.DOI,
			URL:          item.URL,
		}
		for _, a := range item.Author {
			name := strings.TrimSpace(a.Given + " " + a.Family)
			if name != "" {
				p.Authors = append(p.Authors, name)
			}
		}
		if len(item.PublishedPrint.DateParts) > 0 && len(item.PublishedPrint.DateParts[0]) > 0 {
			p.PublicationDate = fmt.Sprintf("%d", item.PublishedPrint.DateParts[0][0])
		}

		papers = append(papers, p)
	}
	return papers, nil
}

func firstOr(list []string, fallback string) string {
	if len(list) > 0 {
		return list[0]
	}
	return fallback
}

// Crossref API JSON structures.
type crossrefResponse struct {
	Message crossrefMessage `json:"message"`
}

type crossrefMessage struct {
	Items []crossrefItem `json:"items"`
}

type crossrefItem struct {
	Title          []string         `json:"title"`
	Abstract       string           `json:"abstract"`
	Author         []crossrefAuthor `json:"author"`
	Type           string           `json:"type"`
	DOI            string           `json:"DOI"`
	URL            string           `json:"URL"`
	PublishedPrint crossrefDate     `json:"published-print"`
}

type crossrefAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
}

type crossrefDate struct {
	DateParts [][]int `json:"date-parts"`
}
