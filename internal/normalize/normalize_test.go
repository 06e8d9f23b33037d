package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean_StripsHTMLAndEntities(t *testing.T) {
	in := `<p>Deep&nbsp;Learning &amp; <b>vision</b></p>`
	assert.Equal(t, "deep learning vision", Clean(in))
}

func TestClean_FoldsPunctuationRuns(t *testing.T) {
	assert.Equal(t, "neural networks are models", Clean("Neural networks -- are, models!!!"))
}

func TestClean_NFKCCompatibility(t *testing.T) {
	// Full-width digits and ligatures fold to their compatibility forms.
	assert.Equal(t, "12 fi", Clean("１２ ﬁ"))
}

func TestClean_Deterministic(t *testing.T) {
	in := "  The  Quick\t<i>brown</i>\nFox…  "
	assert.Equal(t, Clean(in), Clean(in))
	assert.Equal(t, "the quick brown fox", Clean(in))
}

func TestNormalize_RemovesStopwordsPerLanguage(t *testing.T) {
	tests := []struct {
		lang string
		in   string
		want string
	}{
		{"en", "The model is trained on the data", "model trained data"},
		{"es", "El modelo se entrena con los datos", "modelo entrena datos"},
		{"xx", "The model is trained", "the model is trained"}, // unknown language: no removal
	}

	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in, tt.lang))
		})
	}
}

func TestNormalize_AllStopwordsKeepsCleanedText(t *testing.T) {
	// A fragment of pure stopwords must not normalize to empty.
	assert.Equal(t, "the and of", Normalize("The and of!", "en"))
}

func TestNormalize_RegionSubtag(t *testing.T) {
	assert.Equal(t, Normalize("the model", "en"), Normalize("the model", "en-US"))
}

func TestContentHash_IgnoresMarkupAndCase(t *testing.T) {
	a := ContentHash("Deep Learning", "This paper surveys <b>models</b>.")
	b := ContentHash("deep learning!", "This paper surveys models")
	assert.Equal(t, a, b)
}

func TestContentHash_LanguageIndependent(t *testing.T) {
	// The hash excludes stopword removal, so it cannot depend on language.
	a := ContentHash("The Title", "The abstract of the paper")
	b := ContentHash("The Title", "The abstract of the paper")
	assert.Equal(t, a, b)

	c := ContentHash("The Title", "A different abstract")
	assert.NotEqual(t, a, c)
}
