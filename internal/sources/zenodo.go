package sources

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/xplagiax/simengine/pkg/types"
)

// zenodoBase is the Zenodo records endpoint.
var zenodoBase = "https://zenodo.org/api/records"

// zenodoAbstractCap bounds record descriptions, which can run to full
// README length.
const zenodoAbstractCap = 500

// Zenodo queries the Zenodo repository API.
type Zenodo struct {
	cfg Config
}

// Name returns the source tag.
func (z *Zenodo) Name() string { return "zenodo" }

// BuildRequest assembles the records search call.
func (z *Zenodo) BuildRequest(query, theme, _ string) (*Request, error) {
	return &Request{
		URL: zenodoBase,
		Params: url.Values{
			"q":    {strings.TrimSpace(theme + " " + query)},
			"size": {fmt.Sprintf("%d", z.cfg.maxResults())},
		},
		Headers: map[string]string{"User-Agent": z.cfg.UserAgent},
	}, nil
}

// ParseResponse converts record metadata into papers. Descriptions are
// truncated; records without one are dropped.
func (z *Zenodo) ParseResponse(body []byte, _ string) ([]types.Paper, error) {
	var zr zenodoResponse
	if err := json.Unmarshal(body, &zr); err != nil {
		return nil, fmt.Errorf("parsing Zenodo response: %w", err)
	}

	var papers []types.Paper
	for _, hit := range zr.Hits.Hits {
		meta := hit.Metadata
		if meta.Description == "" {
			continue
		}

		abstract := meta.Description
		if len(abstract) > zenodoAbstractCap {
			abstract = abstract[:zenodoAbstractCap]
		}

		p := types.Paper{
			Title:           meta.Title,
			Abstract:        abstract,
			DocumentType:    meta.ResourceType.Type,
			DOI:             meta.DOI,
			URL:             hit.Links.Self,
			PublicationDate: meta.PublicationDate,
		}
		for _, c := range meta.Creators {
			if c.Name != "" {
				p.Authors = append(p.Authors, c.Name)
			}
		}
		if p.DocumentType == "" {
			p.DocumentType = "publication"
		}

		papers = append(papers, p)
	}
	return papers, nil
}

// Zenodo API JSON structures.
type zenodoResponse struct {
	Hits zenodoHits `json:"hits"`
}

type zenodoHits struct {
	Hits []zenodoHit `json:"hits"`
}

type zenodoHit struct {
	Metadata zenodoMetadata `json:"metadata"`
	Links    zenodoLinks    `json:"links"`
}

type zenodoLinks struct {
	Self string `json:"self"`
}

type zenodoMetadata struct {
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	DOI             string             `json:"doi"`
	PublicationDate string             `json:"publication_date"`
	Creators        []zenodoCreator    `json:"creators"`
	ResourceType    zenodoResourceType `json:"resource_type"`
}

type zenodoCreator struct {
	Name string `json:"name"`
}

type zenodoResourceType struct {
	Type string `json:"type"`
}
