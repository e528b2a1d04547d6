package egress

import "context"

// TokenCounter counts tokens in text for a specific model.
// Routers use it to charge rate limiters by prompt size.
type TokenCounter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}
