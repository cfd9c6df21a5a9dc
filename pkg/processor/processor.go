package processor

import (
	"fmt"
	"strings"

	"github.com/xhad/sectionrag/internal/models"
	"github.com/xhad/sectionrag/internal/types"
)

type ProcessorConfig struct {
	// Encoding is a tiktoken encoding name (cl100k_base) or an embedding
	// model name it can be derived from.
	Encoding string
}

// Processor splits text into token-bounded chunks.
type Processor struct {
	config    ProcessorConfig
	tokenizer types.Tokenizer
}

func NewWithConfig(config ProcessorConfig) (*Processor, error) {
	if config.Encoding == "" {
		config.Encoding = DefaultEncoding
	}

	tok, err := NewTiktoken(config.Encoding)
	if err != nil {
		return nil, err
	}

	return NewWithTokenizer(config, tok), nil
}

func NewWithTokenizer(config ProcessorConfig, tokenizer types.Tokenizer) *Processor {
	return &Processor{
		config:    config,
		tokenizer: tokenizer,
	}
}

// Split cuts text into chunks of at most maxTokens tokens. Empty text
// yields no chunks. Bytes of a character cut by a chunk boundary decode to
// U+FFFD, so every chunk is valid UTF-8.
func (p *Processor) Split(text string, maxTokens int) ([]string, error) {
	groups, err := p.SplitTokens(text, maxTokens)
	if err != nil {
		return nil, err
	}

	chunks := make([]string, 0, len(groups))
	for _, group := range groups {
		// a boundary inside a multi-byte character leaves partial bytes
		chunks = append(chunks, strings.ToValidUTF8(p.tokenizer.Decode(group), "\uFFFD"))
	}
	return chunks, nil
}

// SplitTokens greedily packs the token sequence of text into groups of at
// most maxTokens. Concatenating the groups yields the original sequence.
func (p *Processor) SplitTokens(text string, maxTokens int) ([][]int, error) {
	if maxTokens < 1 {
		return nil, &models.ValidationError{
			Field:   "max_tokens",
			Message: fmt.Sprintf("must be positive, got %d", maxTokens),
		}
	}
	if text == "" {
		return nil, nil
	}

	tokens := p.tokenizer.Encode(text)

	var groups [][]int
	current := make([]int, 0, min(maxTokens, len(tokens)))

	for _, token := range tokens {
		if len(current)+1 > maxTokens {
			groups = append(groups, current)
			current = make([]int, 0, min(maxTokens, len(tokens)))
		}
		current = append(current, token)
	}

	if len(current) > 0 {
		groups = append(groups, current)
	}

	return groups, nil
}

// CountTokens reports how many tokens text encodes to.
func (p *Processor) CountTokens(text string) int {
	return len(p.tokenizer.Encode(text))
}
