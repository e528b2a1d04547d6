// Package gemini implements egress interfaces on Google Gemini.
package gemini

import (
	"context"
	"errors"
	"net/http"

	"github.com/fwojciec/egress"
	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// ProviderName is the key of this provider in policies and logs.
const ProviderName = "gemini"

// defaultTemperature applies when the request does not set one.
const defaultTemperature = float32(0.4)

// Ensure Completer implements egress.Completer at compile time.
var _ egress.Completer = (*Completer)(nil)

// Completer implements egress.Completer using Google Gemini.
type Completer struct {
	client *genai.Client
	model  string
}

// Option configures a Completer.
type Option func(*Completer)

// WithModel overrides DefaultModel.
func WithModel(model string) Option {
	return func(c *Completer) {
		c.model = model
	}
}

// NewCompleter creates a new Completer.
func NewCompleter(client *genai.Client, opts ...Option) *Completer {
	c := &Completer{client: client, model: DefaultModel}
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

	result, err := c.client.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: req.Prompt}},
		}},
		BuildConfig(req),
	)
	if err != nil {
		return nil, classify(ctx, err)
	}
	if result == nil {
		return nil, egress.Errorf(egress.EINTERNAL, "gemini returned nil result")
	}

	return &egress.Completion{
		Text:      result.Text(),
		Provider:  ProviderName,
		RequestID: result.ResponseID,
	}, nil
}

// BuildConfig returns the GenerateContentConfig for a request.
func BuildConfig(req *egress.CompletionRequest) *genai.GenerateContentConfig {
	temp := defaultTemperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	config := &genai.GenerateContentConfig{Temperature: &temp}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	return config
}

// classify maps API failures onto the outbound error taxonomy.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
			return egress.Wrapf(err, egress.ETRANSIENT, "gemini: HTTP %d", apiErr.Code)
		}
		return egress.Wrapf(err, egress.EPERMANENT, "gemini: HTTP %d", apiErr.Code)
	}
	return egress.Wrapf(err, egress.ETRANSIENT, "gemini")
}
