// Package validation checks request shapes at the API boundary before
// the orchestrator runs. Error messages never echo fragment text back.
package validation

import (
	"fmt"
	"regexp"

	engerr "github.com/xplagiax/simengine/internal/errors"
	"github.com/xplagiax/simengine/pkg/types"
)

// Limits on request shape.
const (
	MaxFragments    = 200
	MaxFragmentLen  = 20_000
	MaxThemeLen     = 200
	MaxLanguageLen  = 16
	MaxSourceFilter = 12
)

// languagePattern accepts ISO 639-1 codes with an optional region
// subtag ("en", "en-US", "pt_BR").
var languagePattern = regexp.MustCompile(`^[a-zA-Z]{2,3}([-_][a-zA-Z]{2,4})?$`)

// Request is the validated shape shared by the search operations.
type Request struct {
	Theme     string
	Language  string
	Fragments []types.Fragment
	Threshold float64
	Sources   []string
	UseIndex  bool
}

// ValidateTheme checks the theme field.
func ValidateTheme(theme string) error {
	if theme == "" {
		return engerr.InvalidInput("theme is required")
	}
	if len(theme) > MaxThemeLen {
		return engerr.InvalidInput(fmt.Sprintf("theme exceeds %d characters", MaxThemeLen))
	}
	return nil
}

// ValidateLanguage checks the language code shape. Unknown but
// well-formed codes are allowed; the normalizer simply skips stopword
// removal for them.
func ValidateLanguage(language string) error {
	if language == "" {
		return engerr.New(engerr.ErrCodeInvalidLanguage, "language is required", nil)
	}
	if len(language) > MaxLanguageLen || !languagePattern.MatchString(language) {
		return engerr.New(engerr.ErrCodeInvalidLanguage,
			fmt.Sprintf("malformed language code (%d chars)", len(language)), nil)
	}
	return nil
}

// ValidateThreshold checks the similarity threshold range.
func ValidateThreshold(threshold float64) error {
	if threshold < 0.0 || threshold > 1.0 {
		return engerr.New(engerr.ErrCodeThresholdRange,
			fmt.Sprintf("threshold %.3f outside [0,1]", threshold), nil)
	}
	return nil
}

// ValidateFragments checks the fragment list shape.
func ValidateFragments(fragments []types.Fragment) error {
	if len(fragments) == 0 {
		return engerr.InvalidInput("at least one fragment is required")
	}
	if len(fragments) > MaxFragments {
		return engerr.InvalidInput(fmt.Sprintf("fragment count %d exceeds %d", len(fragments), MaxFragments))
	}

	for i, f := range fragments {
		if f.Text == "" {
			return engerr.InvalidInput(fmt.Sprintf("fragment %d has empty text", i))
		}
		if len(f.Text) > MaxFragmentLen {
			return engerr.InvalidInput(fmt.Sprintf("fragment %d exceeds %d characters", i, MaxFragmentLen))
		}
	}
	return nil
}

// ValidateSources checks the optional source filter against the known
// source tags.
func ValidateSources(filter, known []string) error {
	if len(filter) == 0 {
		return nil
	}
	if len(filter) > MaxSourceFilter {
		return engerr.InvalidInput(fmt.Sprintf("source filter lists %d sources, max %d", len(filter), MaxSourceFilter))
	}

	knownSet := make(map[string]struct{}, len(known))
	for _, s := range known {
		knownSet[s] = struct{}{}
	}
	for _, s := range filter {
		if _, ok := knownSet[s]; !ok {
			return engerr.InvalidInput(fmt.Sprintf("unknown source %q", s))
		}
	}
	return nil
}

// ValidateRequest runs every check on a search request.
func ValidateRequest(req Request, knownSources []string) error {
	if err := ValidateTheme(req.Theme); err != nil {
		return err
	}
	if err := ValidateLanguage(req.Language); err != nil {
		return err
	}
	if err := ValidateThreshold(req.Threshold); err != nil {
		return err
	}
	if err := ValidateFragments(req.Fragments); err != nil {
		return err
	}
	return ValidateSources(req.Sources, knownSources)
}
