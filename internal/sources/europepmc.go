package sources

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/xplagiax/simengine/pkg/types"
)

// europePMCBase is the Europe PMC REST search endpoint.
var europePMCBase = "https://www.ebi.ac.uk/europepmc/webservices/rest/search"

// EuropePMC queries the Europe PMC REST API.
type EuropePMC struct {
	cfg Config
}

// Name returns the source tag.
func (e *EuropePMC) Name() string { return "europepmc" }

// BuildRequest assembles the search call.
func (e *EuropePMC) BuildRequest(query, theme, _ string) (*Request, error) {
	return &Request{
		URL: europePMCBase,
		Params: url.Values{
			"query":      {strings.TrimSpace(theme + " " + query)},
			"format":     {"json"},
			"pageSize":   {fmt.Sprintf("%d", e.cfg.maxResults())},
			"resultType": {"core"},
		},
		Headers: map[string]string{"User-Agent": e.cfg.UserAgent},
	}, nil
}

// ParseResponse converts the result list into papers.
func (e *EuropePMC) ParseResponse(body []byte, _ string) ([]types.Paper, error) {
	var er europePMCResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return nil, fmt.Errorf("parsing Europe PMC response: %w", err)
	}

	var papers []types.Paper
	for _, item := range er.ResultList.Result {
		if item.AbstractText == "" {
			continue
		}

		p := types.Paper{
			Title:           item.Title,
			Abstract:        item.AbstractText,
			DocumentType:    strings.ToLower(item.PubType),
			DOI:             item.DOI,
			PublicationDate: item.PubYear,
		}
		if item.AuthorString != "" {
			for _, name := range strings.Split(item.AuthorString, ",") {
				if n := strings.TrimSuffix(strings.TrimSpace(name), "."); n != "" {
					p.Authors = append(p.Authors, n)
				}
			}
		}
		if p.DocumentType == "" {
			p.DocumentType = "article"
		}

		papers = append(papers, p)
	}
	return papers, nil
}

// Europe PMC API JSON structures.
type europePMCResponse struct {
	ResultList europePMCResultList `json:"resultList"`
}

type europePMCResultList struct {
	Result []europePMCResult `json:"result"`
}

type europePMCResult struct {
	Title        string `json:"title"`
	AbstractText string `json:"abstractText"`
	AuthorString string `json:"authorString"`
	PubType      string `json:"pubType"`
	PubYear      string `json:"pubYear"`
	DOI          string `json:"doi"`
}
