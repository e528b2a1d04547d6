package gemini

import (
	"context"

	"github.com/fwojciec/egress"
	"google.golang.org/genai"
	"google.golang.org/genai/tokenizer"
)

var _ egress.TokenCounter = (*TokenCounter)(nil)

// TokenCounter counts prompt tokens offline with the Gemini tokenizer, so
// rate limit charges can be computed before a request is sent.
type TokenCounter struct {
	tok *tokenizer.LocalTokenizer
}

// NewTokenCounter creates a TokenCounter for model.
// Returns EINVALID when the tokenizer does not know the model.
func NewTokenCounter(model string) (*TokenCounter, error) {
	tok, err := tokenizer.NewLocalTokenizer(model)
	if err != nil {
		return nil, egress.Wrapf(err, egress.EINVALID, "gemini: no local tokenizer for %q", model)
	}
	return &TokenCounter{tok: tok}, nil
}

// CountTokens returns the number of tokens text occupies as a user turn.
func (tc *TokenCounter) CountTokens(ctx context.Context, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if text == "" {
		return 0, nil
	}

	result, err := tc.tok.CountTokens([]*genai.Content{genai.NewContentFromText(text, "user")}, nil)
	if err != nil {
		return 0, egress.Wrapf(err, egress.EINTERNAL, "gemini: count tokens")
	}
	return int(result.TotalTokens), nil
}
