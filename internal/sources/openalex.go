package sources

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/xplagiax/simengine/pkg/types"
)

// openAlexBase is the OpenAlex Works endpoint.
var openAlexBase = "https://api.openalex.org/works"

// OpenAlex queries the OpenAlex API. Abstracts arrive as an inverted
// index and are reconstructed into plain text.
type OpenAlex struct {
	cfg Config
}

// Name returns the source tag.
func (o *OpenAlex) Name() string { return "openalex" }

// BuildRequest assembles the Works search call.
func (o *OpenAlex) BuildRequest(query, theme, _ string) (*Request, error) {
	params := url.Values{
		"search":   {strings.TrimSpace(theme + " " + query)},
		"per-page": {fmt.Sprintf("%d", o.cfg.maxResults())},
	}
	if o.cfg.ContactEmail != "" {
		params.Set("mailto", o.cfg.ContactEmail)
	}

	return &Request{
		URL:     openAlexBase,
		Params:  params,
		Headers: map[string]string{"User-Agent": o.cfg.UserAgent},
	}, nil
}

// ParseResponse converts the Works JSON into papers. Works without a
// reconstructable abstract are dropped.
func (o *OpenAlex) ParseResponse(body []byte, _ string) ([]types.Paper, error) {
	var oar openAlexResponse
	if err := json.Unmarshal(body, &oar); err != nil {
		return nil, fmt.Errorf("parsing OpenAlex response: %w", err)
	}

	var papers []types.Paper
	for _, work := range oar.Results {
		abstract := reconstructAbstract(work.AbstractInvertedIndex)
		if abstract == "" {
			continue
		}

		p := types.Paper{
			Title:        work.Title,
			Abstract:     abstract,
			DocumentType: work.Type,
			DOI:          strings.TrimPrefix(work.DOI, "https://doi.org/"),
			URL:          work.ID,
		}
		for _, authorship := range work.Authorships {
			if authorship.Author.DisplayName != "" {
				p.Authors = append(p.Authors, authorship.Author.DisplayName)
			}
		}
		if work.PublicationYear > 0 {
			p.PublicationDate = fmt.Sprintf("%d", work.PublicationYear)
		}

		papers = append(papers, p)
	}
	return papers, nil
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back
// to plain text. The inverted index maps each word to the positions
// where it appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].pos < pairs[j].pos })

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string               `json:"id"`
	Title                 string               `json:"title"`
	DOI                   string               `json:"doi"`
	Type                  string               `json:"type"`
	PublicationYear       int                  `json:"publication_year"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
}

type openAlexAuthorship struct {
	Author openAlexAuthor `json:"author"`
}

type openAlexAuthor struct {
	DisplayName string `json:"display_name"`
}
