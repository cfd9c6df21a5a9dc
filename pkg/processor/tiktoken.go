package processor

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is the encoding of OpenAI's text-embedding-3 models.
const DefaultEncoding = "cl100k_base"

// Tiktoken adapts a tiktoken encoding to types.Tokenizer. Special tokens
// are encoded as ordinary text.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// BPE ranks come from the files embedded in tiktoken-go-loader, so no
// encoding is ever downloaded.
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// NewTiktoken loads an encoding by name, falling back to treating name as
// a model.
func NewTiktoken(name string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		var modelErr error
		enc, modelErr = tiktoken.EncodingForModel(name)
		if modelErr != nil {
			return nil, fmt.Errorf("failed to load tokenizer %q: %v", name, err)
		}
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *Tiktoken) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}
