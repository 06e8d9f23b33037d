package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAll_TwelveAdaptersInDeclarationOrder(t *testing.T) {
	adapters := All(Config{})
	require.Len(t, adapters, 12)

	want := []string{
		"crossref", "pubmed", "semantic_scholar", "arxiv", "openalex",
		"europepmc", "doaj", "zenodo", "core", "internet_archive",
		"unpaywall", "hal",
	}
	for i, a := range adapters {
		assert.Equal(t, want[i], a.Name())
	}
}

func TestCrossref_ParseResponse(t *testing.T) {
	body := `{"message":{"items":[
		{"title":["Attention Is All You Need"],"abstract":"<jats:p>We propose the Transformer.</jats:p>",
		 "author":[{"given":"Ashish","family":"Vaswani"}],"type":"journal-article",
		 "DOI":"10.5555/attn","URL":"https://doi.org/10.5555/attn",
		 "published-print":{"date-parts":[[2017,6]]}},
		{"title":["No Abstract"],"author":[]}
	]}}`

	papers, err := (&Crossref{}).ParseResponse([]byte(body), "application/json")
	require.NoError(t, err)
	require.Len(t, papers, 1, "items without an abstract are dropped")

	p := papers[0]
	assert.Equal(t, "Attention Is All You Need", p.Title)
	assert.Equal(t, []string{"Ashish Vaswani"}, p.Authors)
	assert.Equal(t, "journal-article", p.DocumentType)
	assert.Equal(t, "10.5555/attn", p.DOI)
	assert.Equal(t, "2017", p.PublicationDate)
}

func TestOpenAlex_ReconstructsInvertedAbstract(t *testing.T) {
	body := `{"results":[{
		"id":"https://openalex.org/W1","title":"Graph Models",
		"doi":"https://doi.org/10.1/abc","type":"article","publication_year":2020,
		"authorships":[{"author":{"display_name":"Grace Hopper"}}],
		"abstract_inverted_index":{"models":[2],"survey":[0],"of":[1],"graphs":[3]}
	}]}`

	papers, err := (&OpenAlex{}).ParseResponse([]byte(body), "application/json")
	require.NoError(t, err)
	require.Len(t, papers, 1)

	assert.Equal(t, "survey of models graphs", papers[0].Abstract)
	assert.Equal(t, "10.1/abc", papers[0].DOI, "doi.org prefix stripped")
	assert.Equal(t, []string{"Grace Hopper"}, papers[0].Authors)
}

func TestPubMed_TwoStepFetch(t *testing.T) {
	// Given: stubs for esearch and efetch
	fetchXML := `<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation><Article>
      <ArticleTitle>Protein Folding</ArticleTitle>
      <Abstract><AbstractText>Folding dynamics of proteins.</AbstractText></Abstract>
      <AuthorList><Author><LastName>Curie</LastName><ForeName>Marie</ForeName></Author></AuthorList>
      <Journal><JournalIssue><PubDate><Year>2019</Year></PubDate></JournalIssue></Journal>
    </Article></MedlineCitation>
  </PubmedArticle>
</PubmedArticleSet>`

	searchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"esearchresult": map[string]any{"idlist": []string{"123", "456"}},
		})
	}))
	defer searchSrv.Close()
	fetchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("id"), "123")
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(fetchXML))
	}))
	defer fetchSrv.Close()
	swapEndpoint(t, &pubmedSearchBase, searchSrv.URL)
	swapEndpoint(t, &pubmedFetchBase, fetchSrv.URL)

	// When: the driver runs the adapter end to end
	d := testDriver(nil)
	result := d.Search(context.Background(), &PubMed{cfg: Config{}}, "folding", "bio", "en")

	// Then: the chained fetch produced the parsed article
	require.True(t, result.OK, result.Error)
	require.Len(t, result.Papers, 1)
	assert.Equal(t, "Protein Folding", result.Papers[0].Title)
	assert.Equal(t, []string{"Marie Curie"}, result.Papers[0].Authors)
	assert.Equal(t, "2019", result.Papers[0].PublicationDate)
}

func TestZenodo_TruncatesLongDescriptions(t *testing.T) {
	long := make([]byte, 1200)
	for i := range long {
		long[i] = 'a'
	}
	body := `{"hits":{"hits":[{"metadata":{
		"title":"Dataset","description":"` + string(long) + `",
		"creators":[{"name":"Turing, Alan"}],
		"resource_type":{"type":"dataset"}}}]}}`

	papers, err := (&Zenodo{}).ParseResponse([]byte(body), "application/json")
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Len(t, papers[0].Abstract, zenodoAbstractCap)
	assert.Equal(t, "dataset", papers[0].DocumentType)
}

func TestUnpaywall_RequiresEmailAndDOISeed(t *testing.T) {
	// No email: not configured.
	_, err := (&Unpaywall{cfg: Config{}}).BuildRequest("10.1234/x", "t", "en")
	assert.ErrorIs(t, err, errNotConfigured)

	// Email but no DOI in the fragment: nothing to look up.
	u := &Unpaywall{cfg: Config{ContactEmail: "ops@example.org"}}
	_, err = u.BuildRequest("plain text fragment", "theme", "en")
	assert.ErrorIs(t, err, errNotConfigured)

	// Email and a DOI seed: the lookup is built.
	req, err := u.BuildRequest("see 10.1234/fold.2019 for details", "theme", "en")
	require.NoError(t, err)
	assert.Contains(t, req.URL, "10.1234")
	assert.Equal(t, "ops@example.org", req.Params.Get("email"))
}

func TestHAL_ParseResponse(t *testing.T) {
	body := `{"response":{"docs":[{
		"title_s":["Quantum Walks"],"abstract_s":["Walks on graphs."],
		"authFullName_s":["Niels Bohr"],"docType_s":"ART",
		"producedDateY_i":2021,"doiId_s":"10.2/qw","uri_s":"https://hal.science/hal-1"
	}]}}`

	papers, err := (&HAL{}).ParseResponse([]byte(body), "application/json")
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Equal(t, "Quantum Walks", papers[0].Title)
	assert.Equal(t, "art", papers[0].DocumentType)
	assert.Equal(t, "2021", papers[0].PublicationDate)
}

func TestEuropePMC_SplitsAuthorString(t *testing.T) {
	body := `{"resultList":{"result":[{
		"title":"Gene Editing","abstractText":"CRISPR applications.",
		"authorString":"Doudna J, Charpentier E.","pubType":"review","pubYear":"2015"
	}]}}`

	papers, err := (&EuropePMC{}).ParseResponse([]byte(body), "application/json")
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Equal(t, []string{"Doudna J", "Charpentier E"}, papers[0].Authors)
	assert.Equal(t, "review", papers[0].DocumentType)
}
