package sources

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/xplagiax/simengine/pkg/types"
)

// arxivBase is the arXiv Atom query endpoint.
var arxivBase = "https://export.arxiv.org/api/query"

// Arxiv queries the arXiv API.
type Arxiv struct {
	cfg Config
}

// Name returns the source tag.
func (a *Arxiv) Name() string { return "arxiv" }

// BuildRequest assembles the Atom search call.
func (a *Arxiv) BuildRequest(query, theme, _ string) (*Request, error) {
	return &Request{
		URL: arxivBase,
		Params: url.Values{
			"search_query": {"all:" + strings.TrimSpace(theme+" "+query)},
			"start":        {"0"},
			"max_results":  {fmt.Sprintf("%d", a.cfg.maxResults())},
		},
		Headers: map[string]string{"User-Agent": a.cfg.UserAgent},
	}, nil
}

// ParseResponse parses the Atom feed. Entries without a summary are
// dropped.
func (a *Arxiv) ParseResponse(body []byte, _ string) ([]types.Paper, error) {
	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}

	var papers []types.Paper
	for _, entry := range feed.Entries {
		abstract := strings.TrimSpace(entry.Summary)
		if abstract == "" {
			continue
		}

		p := types.Paper{
			Title:        strings.TrimSpace(entry.Title),
			Abstract:     abstract,
			DocumentType: "preprint",
			URL:          entry.ID,
		}
		for _, au := range entry.Authors {
			if name := strings.TrimSpace(au.Name); name != "" {
				p.Authors = append(p.Authors, name)
			}
		}
		if len(entry.Published) >= 4 {
			p.PublicationDate = entry.Published[:4]
		}

		papers = append(papers, p)
	}
	return papers, nil
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	Authors   []arxivAuthor `xml:"author"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}
