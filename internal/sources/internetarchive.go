package sources

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/xplagiax/simengine/pkg/types"
)

// internetArchiveBase is the Internet Archive Scholar search endpoint.
var internetArchiveBase = "https://scholar.archive.org/search"

// InternetArchive queries Internet Archive Scholar.
type InternetArchive struct {
	cfg Config
}

// Name returns the source tag.
func (ia *InternetArchive) Name() string { return "internet_archive" }

// BuildRequest assembles the scholar search call.
func (ia *InternetArchive) BuildRequest(query, theme, _ string) (*Request, error) {
	return &Request{
		URL: internetArchiveBase,
		Params: url.Values{
			"q":     {strings.TrimSpace(theme + " " + query)},
			"limit": {fmt.Sprintf("%d", ia.cfg.maxResults())},
		},
		Headers: map[string]string{
			"User-Agent": ia.cfg.UserAgent,
			"Accept":     "application/json",
		},
	}, nil
}

// ParseResponse converts scholar hits into papers. A missing access URL
// falls back to the DOI resolver.
func (ia *InternetArchive) ParseResponse(body []byte, _ string) ([]types.Paper, error) {
	var ar archiveResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, fmt.Errorf("parsing Internet Archive response: %w", err)
	}

	var papers []types.Paper
	for _, hit := range ar.Results {
		if hit.Abstracts.Body == "" && len(hit.Abstracts.List) == 0 {
			continue
		}
		abstract := hit.Abstracts.Body
		if abstract == "" {
			abstract = hit.Abstracts.List[0].Body
		}

		p := types.Paper{
			Title:        hit.Biblio.Title,
			Abstract:     abstract,
			DocumentType: strings.ToLower(hit.Biblio.ReleaseType),
			DOI:          hit.Biblio.DOI,
		}
		p.Authors = append(p.Authors, hit.Biblio.ContribNames...)
		if hit.Biblio.ReleaseYear > 0 {
			p.PublicationDate = fmt.Sprintf("%d", hit.Biblio.ReleaseYear)
		}
		if len(hit.Access) > 0 {
			p.URL = hit.Access[0].AccessURL
		} else if p.DOI != "" {
			p.URL = "https://doi.org/" + p.DOI
		}
		if p.DocumentType == "" {
			p.DocumentType = "article"
		}

		papers = append(papers, p)
	}
	return papers, nil
}

// Internet Archive Scholar JSON structures. Abstracts appear either as
// a single object or as a list depending on the record.
type archiveResponse struct {
	Results []archiveHit `json:"results"`
}

type archiveHit struct {
	Biblio    archiveBiblio    `json:"biblio"`
	Abstracts archiveAbstracts `json:"abstracts"`
	Access    []archiveAccess  `json:"access"`
}

type archiveBiblio struct {
	Title        string   `json:"title"`
	ContribNames []string `json:"contrib_names"`
	ReleaseType  string   `json:"release_type"`
	ReleaseYear  int      `json:"release_year"`
	DOI          string   `json:"doi"`
}

type archiveAbstracts struct {
	Body string
	List []archiveAbstract
}

// UnmarshalJSON accepts both the object and list encodings.
func (a *archiveAbstracts) UnmarshalJSON(data []byte) error {
	var single archiveAbstract
	if err := json.Unmarshal(data, &single); err == nil && single.Body != "" {
		a.Body = single.Body
		return nil
	}

	var list []archiveAbstract
	if err := json.Unmarshal(data, &list); err == nil {
		a.List = list
		return nil
	}
	return nil // unknown shape: treat as absent
}

type archiveAbstract struct {
	Body string `json:"body"`
}

type archiveAccess struct {
	AccessURL string `json:"access_url"`
}
