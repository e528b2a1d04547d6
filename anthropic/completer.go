// Package anthropic implements egress interfaces on the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/fwojciec/egress"
)

// DefaultModel is used when no model is configured.
const DefaultModel = anthropic.ModelClaudeHaiku4_5

// DefaultMaxTokens is sent when the request leaves MaxTokens unset.
// The Messages API requires a limit on every call.
const DefaultMaxTokens = 1024

// ProviderName is the key of this provider in policies and logs.
const ProviderName = "anthropic"

var _ egress.Completer = (*Completer)(nil)

// MessageService is the subset of the SDK client used by Completer.
// *anthropic.MessageService satisfies it.
type MessageService interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Completer implements egress.Completer using Claude models.
type Completer struct {
	messages MessageService
	model    anthropic.Model
}

// Option configures a Completer.
type Option func(*Completer)

// WithModel overrides DefaultModel.
func WithModel(model string) Option {
	return func(c *Completer) {
		c.model = anthropic.Model(model)
	}
}

// NewCompleter creates a Completer that sends requests through messages.
//
//	client := anthropic.NewClient(option.WithAPIKey(key), option.WithMaxRetries(0))
//	c := NewCompleter(&client.Messages)
func NewCompleter(messages MessageService, opts ...Option) *Completer {
	c := &Completer{messages: messages, model: DefaultModel}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider key.
func (c *Completer) Name() string {
	return ProviderName
}

// Complete generates text for req.
func (c *Completer) Complete(ctx context.Context, req *egress.CompletionRequest) (*egress.Completion, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	msg, err := c.messages.New(ctx, BuildParams(c.model, req))
	if err != nil {
		return nil, classify(ctx, err)
	}
	if msg == nil {
		return nil, egress.Errorf(egress.EINTERNAL, "anthropic returned nil message")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &egress.Completion{
		Text:      text.String(),
		Provider:  ProviderName,
		RequestID: msg.ID,
	}, nil
}

// BuildParams returns the Messages API request body for req.
func BuildParams(model anthropic.Model, req *egress.CompletionRequest) anthropic.MessageNewParams {
	maxTokens := int64(DefaultMaxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*req.Temperature))
	}
	return params
}

func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return egress.Wrapf(err, egress.ETRANSIENT, "anthropic: HTTP %d", apiErr.StatusCode)
		}
		return egress.Wrapf(err, egress.EPERMANENT, "anthropic: HTTP %d", apiErr.StatusCode)
	}
	return egress.Wrapf(err, egress.ETRANSIENT, "anthropic")
}
