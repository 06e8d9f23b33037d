// Package normalize prepares raw fragment and paper text for embedding
// and for content hashing. The pipeline is deterministic: identical
// inputs yield byte-identical outputs across processes.
package normalize

import (
	"crypto/sha256"
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// Clean applies the language-independent part of the pipeline, in order:
// HTML strip (elements discarded, entities decoded), Unicode NFKC,
// lowercase, non-letter/non-digit runs collapsed to a single space, trim.
func Clean(text string) string {
	if text == "" {
		return ""
	}

	text = htmlTagPattern.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = norm.NFKC.String(text)
	text = strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		} else {
			space = true
		}
	}

	return b.String()
}

// Normalize runs the full pipeline: Clean plus stopword removal when the
// language has a known stopword set. Unknown languages skip removal and
// never fail.
func Normalize(text, language string) string {
	cleaned := Clean(text)
	if cleaned == "" {
		return ""
	}

	stops, ok := stopwordSet(language)
	if !ok {
		return cleaned
	}

	words := strings.Fields(cleaned)
	kept := words[:0]
	for _, w := range words {
		if _, stop := stops[w]; !stop {
			kept = append(kept, w)
		}
	}

	// A fragment made entirely of stopwords keeps its cleaned form so the
	// hash and embedding inputs stay non-empty.
	if len(kept) == 0 {
		return cleaned
	}
	return strings.Join(kept, " ")
}

// ContentHash computes the dedup digest over the cleaned title and
// abstract. Language-specific stopword removal is deliberately excluded
// so the same paper hashes identically regardless of the request
// language.
func ContentHash(title, abstract string) [32]byte {
	return sha256.Sum256([]byte(Clean(title) + "\n" + Clean(abstract)))
}
