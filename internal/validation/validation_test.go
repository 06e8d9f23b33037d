package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	engerr "github.com/xplagiax/simengine/internal/errors"
	"github.com/xplagiax/simengine/pkg/types"
)

func validRequest() Request {
	return Request{
		Theme:    "machine learning",
		Language: "en",
		Fragments: []types.Fragment{
			{Page: "1", Paragraph: "2", Text: "Neural networks are models."},
		},
		Threshold: 0.7,
	}
}

func TestValidateRequest_Valid(t *testing.T) {
	assert.NoError(t, ValidateRequest(validRequest(), []string{"arxiv"}))
}

func TestValidateThreshold_Range(t *testing.T) {
	assert.NoError(t, ValidateThreshold(0.0))
	assert.NoError(t, ValidateThreshold(1.0))

	err := ValidateThreshold(1.5)
	assert.Equal(t, engerr.ErrCodeThresholdRange, engerr.GetCode(err))
	assert.Error(t, ValidateThreshold(-0.1))
}

func TestValidateLanguage_Shapes(t *testing.T) {
	assert.NoError(t, ValidateLanguage("en"))
	assert.NoError(t, ValidateLanguage("en-US"))
	assert.NoError(t, ValidateLanguage("pt_BR"))

	err := ValidateLanguage("not a language")
	assert.Equal(t, engerr.ErrCodeInvalidLanguage, engerr.GetCode(err))
	assert.Error(t, ValidateLanguage(""))
	assert.Error(t, ValidateLanguage("e"))
}

func TestValidateFragments_Shape(t *testing.T) {
	assert.Error(t, ValidateFragments(nil))
	assert.Error(t, ValidateFragments([]types.Fragment{{Text: ""}}))
	assert.Error(t, ValidateFragments([]types.Fragment{
		{Text: strings.Repeat("x", MaxFragmentLen+1)},
	}))

	many := make([]types.Fragment, MaxFragments+1)
	for i := range many {
		many[i].Text = "ok"
	}
	assert.Error(t, ValidateFragments(many))
}

func TestValidateSources_UnknownRejected(t *testing.T) {
	known := []string{"arxiv", "crossref"}

	assert.NoError(t, ValidateSources(nil, known))
	assert.NoError(t, ValidateSources([]string{"arxiv"}, known))

	err := ValidateSources([]string{"bogus"}, known)
	assert.Equal(t, engerr.ErrCodeInvalidInput, engerr.GetCode(err))
}

func TestValidate_ErrorsOmitFragmentText(t *testing.T) {
	secret := "the secret fragment body"
	err := ValidateFragments([]types.Fragment{
		{Text: strings.Repeat(secret, 2000)},
	})
	assert.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
}
