package processor_test

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/sectionrag/internal/models"
	"github.com/xhad/sectionrag/internal/testutil"
	"github.com/xhad/sectionrag/pkg/processor"
)

func newProcessor() *processor.Processor {
	return processor.NewWithTokenizer(processor.ProcessorConfig{}, testutil.RuneTokenizer{})
}

func TestProcessor_Split(t *testing.T) {
	p := newProcessor()

	tests := []struct {
		name      string
		text      string
		maxTokens int
		want      []string
	}{
		{"empty", "", 5, nil},
		{"under budget", "abc", 5, []string{"abc"}},
		{"exact budget", "abcde", 5, []string{"abcde"}},
		{"one over", "abcdef", 5, []string{"abcde", "f"}},
		{"several", "abcdefghijk", 4, []string{"abcd", "efgh", "ijk"}},
		{"single token chunks", "xyz", 1, []string{"x", "y", "z"}},
		{"multibyte", "héllo wörld", 6, []string{"héllo ", "wörld"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Split(tt.text, tt.maxTokens)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// byteTokenizer emits one token per byte, like BPE byte fallback.
type byteTokenizer struct{}

func (byteTokenizer) Encode(text string) []int {
	tokens := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		tokens[i] = int(text[i])
	}
	return tokens
}

func (byteTokenizer) Decode(tokens []int) string {
	b := make([]byte, len(tokens))
	for i, t := range tokens {
		b[i] = byte(t)
	}
	return string(b)
}

func TestProcessor_SplitInsideMultibyteCharacter(t *testing.T) {
	p := processor.NewWithTokenizer(processor.ProcessorConfig{}, byteTokenizer{})

	// "é" is two bytes and "🙂" four, so both straddle a boundary
	chunks, err := p.Split("aé🙂", 2)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk), "%q", chunk)
	}
	assert.Equal(t, []string{"a\uFFFD", "\uFFFD", "\uFFFD", "\uFFFD"}, chunks)

	chunks, err = p.Split("héllo", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"héllo"}, chunks)
}

func TestProcessor_SplitRejectsNonPositiveBudget(t *testing.T) {
	p := newProcessor()

	for _, maxTokens := range []int{0, -3} {
		_, err := p.Split("text", maxTokens)
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrValidation))
	}
}

func TestProcessor_SplitProperties(t *testing.T) {
	p := newProcessor()
	tok := testutil.RuneTokenizer{}
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 97)

	for _, maxTokens := range []int{1, 7, 64, 1000, 100000} {
		first, err := p.SplitTokens(text, maxTokens)
		require.NoError(t, err)
		second, err := p.SplitTokens(text, maxTokens)
		require.NoError(t, err)

		// determinism
		assert.Equal(t, first, second)

		// token bound and reconstruction
		var joined []int
		for _, group := range first {
			assert.NotEmpty(t, group)
			assert.LessOrEqual(t, len(group), maxTokens)
			joined = append(joined, group...)
		}
		assert.Equal(t, tok.Encode(text), joined)
	}
}

func TestProcessor_SplitTwentyThousandTokens(t *testing.T) {
	p := newProcessor()

	chunks, err := p.Split(strings.Repeat("a", 20000), 8000)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 8000)
	assert.Len(t, chunks[1], 8000)
	assert.Len(t, chunks[2], 4000)
}

func TestProcessor_CountTokens(t *testing.T) {
	p := newProcessor()
	assert.Equal(t, 0, p.CountTokens(""))
	assert.Equal(t, 5, p.CountTokens("héllo"))
}

func TestTiktoken(t *testing.T) {
	tok, err := processor.NewTiktoken(processor.DefaultEncoding)
	require.NoError(t, err)

	p := processor.NewWithTokenizer(processor.ProcessorConfig{}, tok)
	text := strings.Repeat("Retrieval augmented generation splits documents. ", 50)

	groups, err := p.SplitTokens(text, 16)
	require.NoError(t, err)

	var joined []int
	for _, group := range groups {
		assert.LessOrEqual(t, len(group), 16)
		joined = append(joined, group...)
	}
	assert.Equal(t, tok.Encode(text), joined)
	assert.Equal(t, text, tok.Decode(joined))
}

func TestTiktoken_SplitKeepsValidUTF8(t *testing.T) {
	tok, err := processor.NewTiktoken(processor.DefaultEncoding)
	require.NoError(t, err)
	p := processor.NewWithTokenizer(processor.ProcessorConfig{}, tok)

	text := "日本語のテキスト 🙂🧦 naïve café"
	chunks, err := p.Split(text, 1)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk), "%q", chunk)
	}

	whole, err := p.Split(text, 8000)
	require.NoError(t, err)
	assert.Equal(t, []string{text}, whole)
}
