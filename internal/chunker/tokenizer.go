package chunker

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when the embedding model is unknown to tiktoken.
const DefaultEncoding = "cl100k_base"

// Tokenizer counts tokens the way the embedding model will.
type Tokenizer interface {
	Count(text string) int
}

// TiktokenTokenizer counts BPE tokens using the OpenAI encodings.
type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer resolves an encoding for a model name ("text-embedding-3-small")
// or an encoding name ("cl100k_base"). Unknown models fall back to DefaultEncoding.
func NewTiktokenTokenizer(modelOrEncoding string) (*TiktokenTokenizer, error) {
	if modelOrEncoding == "" {
		modelOrEncoding = DefaultEncoding
	}

	if enc, err := tiktoken.EncodingForModel(modelOrEncoding); err == nil {
		return &TiktokenTokenizer{enc: enc}, nil
	}
	if enc, err := tiktoken.GetEncoding(modelOrEncoding); err == nil {
		return &TiktokenTokenizer{enc: enc}, nil
	}

	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("loading %s encoding: %w", DefaultEncoding, err)
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (t *TiktokenTokenizer) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// WordTokenizer counts whitespace-separated words. It needs no BPE tables,
// which makes it the tokenizer of choice for tests and offline runs.
type WordTokenizer struct{}

// Count returns the number of whitespace-separated fields in text.
func (WordTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}

// NewTokenizer returns the WordTokenizer for "words" and a tiktoken encoding
// for anything else.
func NewTokenizer(encoding string) (Tokenizer, error) {
	if encoding == "words" {
		return WordTokenizer{}, nil
	}
	return NewTiktokenTokenizer(encoding)
}
