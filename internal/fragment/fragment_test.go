package fragment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliding_WindowAdvancesByStride(t *testing.T) {
	chunks, err := Sliding("a b c d e f g h i j", 4, 2)
	require.NoError(t, err)

	want := []Chunk{
		{0, "a b c d"},
		{1, "c d e f"},
		{2, "e f g h"},
		{3, "g h i j"},
	}
	assert.Equal(t, want, chunks)
}

func TestSliding_TextShorterThanWindow(t *testing.T) {
	chunks, err := Sliding("just five words right here", 50, 10)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "just five words right here", chunks[0].Text)
}

func TestSliding_InvalidOverlapRejected(t *testing.T) {
	_, err := Sliding("a b c", 4, 4)
	assert.Error(t, err)

	_, err = Sliding("a b c", 4, 0)
	assert.Error(t, err)

	_, err = Sliding("a b c", 4, 7)
	assert.Error(t, err)
}

func TestSliding_EmptyText(t *testing.T) {
	chunks, err := Sliding("   ", 4, 2)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSentences_SplitsOnTerminators(t *testing.T) {
	text := "One two three four five. Six seven eight nine ten! Eleven twelve thirteen fourteen fifteen?"
	chunks := Sentences(text, 5)

	require.Len(t, chunks, 3)
	assert.Equal(t, "One two three four five.", chunks[0].Text)
	assert.Equal(t, "Six seven eight nine ten!", chunks[1].Text)
	assert.Equal(t, 2, chunks[2].Index)
}

func TestSentences_ConcatenatesShortSentences(t *testing.T) {
	// Each sentence has 2 words; minWords 5 forces concatenation of
	// three sentences into one chunk.
	text := "Alpha one. Beta two. Gamma three. Delta four. Epsilon five. Zeta six."
	chunks := Sentences(text, 5)

	require.Len(t, chunks, 2)
	assert.Equal(t, "Alpha one. Beta two. Gamma three.", chunks[0].Text)
	assert.Equal(t, "Delta four. Epsilon five. Zeta six.", chunks[1].Text)
}

func TestSentences_ShortTextFallsBackToWhole(t *testing.T) {
	chunks := Sentences("Too short.", 15)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Too short.", chunks[0].Text)
}

func TestSentences_CJKTerminators(t *testing.T) {
	chunks := Sentences("模型 训练 数据 分析 完成。 另一 个 句子 在 这里。", 5)
	require.Len(t, chunks, 2)
}

func TestSentences_EmptyText(t *testing.T) {
	assert.Empty(t, Sentences("   ", 10))
}

func TestAnalyze_RecommendsSentencesForProse(t *testing.T) {
	a := Analyze("Short sentence one. Short sentence two. Short sentence three.")
	assert.Equal(t, ModeSentences, a.RecommendedMode)
	assert.Equal(t, 3, a.TotalSentences)
	assert.Equal(t, 9, a.TotalWords)
}

func TestAnalyze_RecommendsSlidingForRunOnText(t *testing.T) {
	long := ""
	for i := 0; i < 60; i++ {
		long += "word "
	}
	a := Analyze(long + ".")
	assert.Equal(t, ModeSliding, a.RecommendedMode)
}
