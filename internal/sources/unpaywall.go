package sources

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"

	"github.com/xplagiax/simengine/pkg/types"
)

// unpaywallBase is the Unpaywall DOI endpoint; the DOI is part of the
// path.
var unpaywallBase = "https://api.unpaywall.org/v2/"

// doiPattern extracts a DOI seed from the query text. Unpaywall is a
// DOI-lookup API, not a search engine: without a DOI in the fragment
// there is nothing to ask it.
var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s"<>]+`)

// Unpaywall resolves open-access metadata for DOIs found in the query.
// It requires a contact email; unconfigured, the source is skipped.
type Unpaywall struct {
	cfg Config
}

// Name returns the source tag.
func (u *Unpaywall) Name() string { return "unpaywall" }

// BuildRequest assembles the DOI lookup. No email or no DOI seed skips
// the source.
func (u *Unpaywall) BuildRequest(query, theme, _ string) (*Request, error) {
	if u.cfg.ContactEmail == "" {
		return nil, errNotConfigured
	}

	doi := doiPattern.FindString(query)
	if doi == "" {
		doi = doiPattern.FindString(theme)
	}
	if doi == "" {
		return nil, errNotConfigured
	}

	return &Request{
		URL: unpaywallBase + url.PathEscape(doi),
		Params: url.Values{
			"email": {u.cfg.ContactEmail},
		},
		Headers: map[string]string{"User-Agent": u.cfg.UserAgent},
	}, nil
}

// ParseResponse converts one DOI record into at most one paper.
func (u *Unpaywall) ParseResponse(body []byte, _ string) ([]types.Paper, error) {
	var ur unpaywallRecord
	if err := json.Unmarshal(body, &ur); err != nil {
		return nil, fmt.Errorf("parsing Unpaywall response: %w", err)
	}

	if ur.Title == "" {
		return nil, nil
	}

	p := types.Paper{
		Title:        ur.Title,
		Abstract:     ur.Abstract,
		DocumentType: ur.Genre,
		DOI:          ur.DOI,
		URL:          ur.BestOALocation.URL,
	}
	for _, a := range ur.ZAuthors {
		name := a.Given + " " + a.Family
		if a.Given == "" {
			name = a.Family
		}
		if name != "" {
			p.Authors = append(p.Authors, name)
		}
	}
	if ur.Year > 0 {
		p.PublicationDate = fmt.Sprintf("%d", ur.Year)
	}
	if p.DocumentType == "" {
		p.DocumentType = "article"
	}

	return []types.Paper{p}, nil
}

// Unpaywall API JSON structures.
type unpaywallRecord struct {
	DOI            string             `json:"doi"`
	Title          string             `json:"title"`
	Abstract       string             `json:"abstract"`
	Genre          string             `json:"genre"`
	Year           int                `json:"year"`
	ZAuthors       []unpaywallAuthor  `json:"z_authors"`
	BestOALocation unpaywallLocation  `json:"best_oa_location"`
}

type unpaywallAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
}

type unpaywallLocation struct {
	URL string `json:"url"`
}
