package sources

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/xplagiax/simengine/pkg/types"
)

// PubMed E-utilities endpoints. Vars so tests can substitute httptest
// servers.
var (
	pubmedSearchBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"
	pubmedFetchBase  = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"
)

// PubMed queries NCBI's E-utilities. It is the one two-step source:
// esearch resolves IDs, efetch retrieves the article XML.
type PubMed struct {
	cfg Config
}

// Name returns the source tag.
func (p *PubMed) Name() string { return "pubmed" }

// BuildRequest assembles the esearch call; Fetch chains the efetch.
func (p *PubMed) BuildRequest(query, theme, _ string) (*Request, error) {
	return &Request{
		URL: pubmedSearchBase,
		Params: url.Values{
			"db":      {"pubmed"},
			"term":    {strings.TrimSpace(theme + " " + query)},
			"retmax":  {fmt.Sprintf("%d", p.cfg.maxResults())},
			"retmode": {"json"},
		},
		Headers: map[string]string{"User-Agent": p.cfg.UserAgent},
	}, nil
}

// Fetch performs the esearch → efetch chain.
func (p *PubMed) Fetch(ctx context.Context, client *http.Client, req *Request) ([]byte, string, error) {
	body, _, status, err := doGet(ctx, client, req)
	if err != nil {
		return nil, "", err
	}
	if status != http.StatusOK {
		return nil, "", &statusError{status: status}
	}

	var search pubmedSearchResponse
	if err := json.Unmarshal(body, &search); err != nil {
		return nil, "", fmt.Errorf("parsing PubMed id list: %w", err)
	}
	ids := search.ESearchResult.IDList
	if len(ids) == 0 {
		return []byte("<PubmedArticleSet/>"), "text/xml", nil
	}
	if len(ids) > p.cfg.maxResults() {
		ids = ids[:p.cfg.maxResults()]
	}

	fetchReq := &Request{
		URL: pubmedFetchBase,
		Params: url.Values{
			"db":      {"pubmed"},
			"id":      {strings.Join(ids, ",")},
			"retmode": {"xml"},
		},
		Headers: req.Headers,
	}
	body, contentType, status, err := doGet(ctx, client, fetchReq)
	if err != nil {
		return nil, "", err
	}
	if status != http.StatusOK {
		return nil, "", &statusError{status: status}
	}
	return body, contentType, nil
}

// ParseResponse parses the efetch article XML. Articles without an
// abstract are dropped.
func (p *PubMed) ParseResponse(body []byte, _ string) ([]types.Paper, error) {
	var set pubmedArticleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("parsing PubMed articles: %w", err)
	}

	var papers []types.Paper
	for _, article := range set.Articles {
		abstract := strings.TrimSpace(strings.Join(article.Abstract.Texts, " "))
		if abstract == "" {
			continue
		}

		paper := types.Paper{
			Title:           strings.TrimSpace(article.Title),
			Abstract:        abstract,
			DocumentType:    "article",
			PublicationDate: article.Year,
		}
		for _, a := range article.Authors {
			name := strings.TrimSpace(a.ForeName + " " + a.LastName)
			if name != "" {
				paper.Authors = append(paper.Authors, name)
			}
		}
		papers = append(papers, paper)
	}
	return papers, nil
}

// PubMed API structures.
type pubmedSearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type pubmedArticleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Title    string         `xml:"MedlineCitation>Article>ArticleTitle"`
	Abstract pubmedAbstract `xml:"MedlineCitation>Article>Abstract"`
	Authors  []pubmedAuthor `xml:"MedlineCitation>Article>AuthorList>Author"`
	Year     string         `xml:"MedlineCitation>Article>Journal>JournalIssue>PubDate>Year"`
}

type pubmedAbstract struct {
	Texts []string `xml:"AbstractText"`
}

type pubmedAuthor struct {
	LastName string `xml:"LastName"`
	ForeName string `xml:"ForeName"`
}
