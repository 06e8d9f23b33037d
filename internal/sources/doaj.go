package sources

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/xplagiax/simengine/pkg/types"
)

// doajBase is the DOAJ article search endpoint; the query is part of the
// path.
var doajBase = "https://doaj.org/api/v2/search/articles/"

// DOAJ queries the Directory of Open Access Journals.
type DOAJ struct {
	cfg Config
}

// Name returns the source tag.
func (d *DOAJ) Name() string { return "doaj" }

// BuildRequest assembles the article search call.
func (d *DOAJ) BuildRequest(query, theme, _ string) (*Request, error) {
	search := url.PathEscape(strings.TrimSpace(theme + " " + query))
	return &Request{
		URL: doajBase + search,
		Params: url.Values{
			"pageSize": {fmt.Sprintf("%d", d.cfg.maxResults())},
		},
		Headers: map[string]string{"User-Agent": d.cfg.UserAgent},
	}, nil
}

// ParseResponse converts the bibjson records into papers.
func (d *DOAJ) ParseResponse(body []byte, _ string) ([]types.Paper, error) {
	var dr doajResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return nil, fmt.Errorf("parsing DOAJ response: %w", err)
	}

	var papers []types.Paper
	for _, item := range dr.Results {
		bib := item.BibJSON
		if bib.Abstract == "" {
			continue
		}

		p := types.Paper{
			Title:           bib.Title,
			Abstract:        bib.Abstract,
			DocumentType:    "article",
			PublicationDate: bib.Year,
		}
		for _, a := range bib.Author {
			if a.Name != "" {
				p.Authors = append(p.Authors, a.Name)
			}
		}
		for _, ident := range bib.Identifier {
			if strings.EqualFold(ident.Type, "doi") {
				p.DOI = ident.ID
				break
			}
		}

		papers = append(papers, p)
	}
	return papers, nil
}

// DOAJ API JSON structures.
type doajResponse struct {
	Results []doajResult `json:"results"`
}

type doajResult struct {
	BibJSON doajBibJSON `json:"bibjson"`
}

type doajBibJSON struct {
	Title      string           `json:"title"`
	Abstract   string           `json:"abstract"`
	Year       string           `json:"year"`
	Author     []doajAuthor     `json:"author"`
	Identifier []doajIdentifier `json:"identifier"`
}

type doajAuthor struct {
	Name string `json:"name"`
}

type doajIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}
