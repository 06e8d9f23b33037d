// Package fragment chunks submitted text into checkable units: sentence
// fragments for ordinary prose, sliding word windows for plagiarism
// that crosses sentence boundaries.
package fragment

import (
	"fmt"
	"strings"
	"unicode"
)

// Mode selects the chunking strategy.
type Mode string

const (
	ModeSentences Mode = "sentences"
	ModeSliding   Mode = "sliding"
)

// Defaults for the two modes.
const (
	DefaultMinWords    = 15
	DefaultWindowWords = 50
	DefaultOverlap     = 10
)

// Chunk is one emitted fragment with its position.
type Chunk struct {
	Index int
	Text  string
}

// sentence terminators: ASCII and CJK forms.
func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// Sentences splits on sentence boundaries (a terminator followed by
// whitespace or end of text) and emits fragments having at least
// minWords words. Consecutive too-short sentences are concatenated
// until the minimum is reached.
func Sentences(text string, minWords int) []Chunk {
	if minWords <= 0 {
		minWords = DefaultMinWords
	}

	sentences := splitSentences(text)

	var chunks []Chunk
	var buffer []string
	bufferWords := 0

	for _, s := range sentences {
		words := len(strings.Fields(s))
		if words == 0 {
			continue
		}

		buffer = append(buffer, s)
		bufferWords += words

		if bufferWords >= minWords {
			chunks = append(chunks, Chunk{
				Index: len(chunks),
				Text:  strings.Join(buffer, " "),
			})
			buffer = buffer[:0]
			bufferWords = 0
		}
	}

	// Text too short to ever reach the minimum still yields one chunk.
	if len(chunks) == 0 {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			chunks = append(chunks, Chunk{Index: 0, Text: trimmed})
		}
	}

	return chunks
}

// splitSentences cuts text at terminators followed by whitespace or end.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)

		if isTerminator(r) {
			atEnd := i == len(runes)-1
			followedBySpace := !atEnd && unicode.IsSpace(runes[i+1])
			if atEnd || followedBySpace {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// Sliding produces overlapping windows of windowWords words advancing
// by windowWords-overlapWords. Requires 0 < overlap < window.
func Sliding(text string, windowWords, overlapWords int) ([]Chunk, error) {
	if windowWords <= 0 {
		windowWords = DefaultWindowWords
	}
	if overlapWords <= 0 || overlapWords >= windowWords {
		return nil, fmt.Errorf("overlap must satisfy 0 < overlap < window (got %d, window %d)", overlapWords, windowWords)
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}
	if len(words) <= windowWords {
		return []Chunk{{Index: 0, Text: strings.Join(words, " ")}}, nil
	}

	stride := windowWords - overlapWords
	var chunks []Chunk
	for start := 0; start < len(words); start += stride {
		end := start + windowWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  strings.Join(words[start:end], " "),
		})
		if end >= len(words) {
			break
		}
	}

	return chunks, nil
}

// Analysis summarizes a text's structure and recommends a chunk mode.
type Analysis struct {
	TotalWords          int     `json:"total_words"`
	TotalSentences      int     `json:"total_sentences"`
	AvgWordsPerSentence float64 `json:"avg_words_per_sentence"`
	RecommendedMode     Mode    `json:"recommended_mode"`
}

// longSentenceThreshold is the average length above which sentence
// chunking stops isolating plagiarism well and sliding windows win.
const longSentenceThreshold = 40.0

// Analyze reports word and sentence counts and the recommended mode.
func Analyze(text string) Analysis {
	sentences := splitSentences(text)
	words := strings.Fields(text)

	a := Analysis{
		TotalWords:      len(words),
		TotalSentences:  len(sentences),
		RecommendedMode: ModeSentences,
	}
	if len(sentences) > 0 {
		a.AvgWordsPerSentence = float64(len(words)) / float64(len(sentences))
	}
	if a.AvgWordsPerSentence > longSentenceThreshold {
		a.RecommendedMode = ModeSliding
	}
	return a
}
