package gemini_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fwojciec/egress"
	"github.com/fwojciec/egress/gemini"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func newClient(t *testing.T, handler http.HandlerFunc) *genai.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL},
	})
	require.NoError(t, err)
	return client
}

func TestCompleter_Complete(t *testing.T) {
	t.Parallel()

	t.Run("returns text and response id", func(t *testing.T) {
		t.Parallel()

		var gotPath string
		var gotBody map[string]any
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &gotBody)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello back"}],"role":"model"}}],"responseId":"r1"}`))
		})

		c := gemini.NewCompleter(client, gemini.WithModel("gemini-test"))
		got, err := c.Complete(context.Background(), &egress.CompletionRequest{
			System: "be brief",
			Prompt: "hello",
		})

		require.NoError(t, err)
		assert.Equal(t, "hello back", got.Text)
		assert.Equal(t, gemini.ProviderName, got.Provider)
		assert.Equal(t, "r1", got.RequestID)
		assert.True(t, strings.HasSuffix(gotPath, "/models/gemini-test:generateContent"), gotPath)
		assert.Contains(t, gotBody, "systemInstruction")
	})

	t.Run("rate limited response is transient", func(t *testing.T) {
		t.Parallel()

		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`))
		})

		_, err := gemini.NewCompleter(client).Complete(context.Background(), &egress.CompletionRequest{Prompt: "hi"})

		require.Error(t, err)
		assert.Equal(t, egress.ETRANSIENT, egress.ErrorCode(err))
	})

	t.Run("bad request is permanent", func(t *testing.T) {
		t.Parallel()

		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad","status":"INVALID_ARGUMENT"}}`))
		})

		_, err := gemini.NewCompleter(client).Complete(context.Background(), &egress.CompletionRequest{Prompt: "hi"})

		require.Error(t, err)
		assert.Equal(t, egress.EPERMANENT, egress.ErrorCode(err))
	})

	t.Run("empty prompt is invalid without a request", func(t *testing.T) {
		t.Parallel()

		called := false
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			called = true
		})

		_, err := gemini.NewCompleter(client).Complete(context.Background(), &egress.CompletionRequest{})

		assert.Equal(t, egress.EINVALID, egress.ErrorCode(err))
		assert.False(t, called)
	})
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults temperature", func(t *testing.T) {
		t.Parallel()

		config := gemini.BuildConfig(&egress.CompletionRequest{Prompt: "p"})

		require.NotNil(t, config.Temperature)
		assert.InDelta(t, 0.4, *config.Temperature, 0.001)
		assert.Nil(t, config.SystemInstruction)
		assert.Zero(t, config.MaxOutputTokens)
	})

	t.Run("copies request settings", func(t *testing.T) {
		t.Parallel()

		temp := float32(0.9)
		config := gemini.BuildConfig(&egress.CompletionRequest{
			System:      "sys",
			Prompt:      "p",
			MaxTokens:   256,
			Temperature: &temp,
		})

		assert.InDelta(t, 0.9, *config.Temperature, 0.001)
		require.NotNil(t, config.SystemInstruction)
		assert.Equal(t, "sys", config.SystemInstruction.Parts[0].Text)
		assert.Equal(t, int32(256), config.MaxOutputTokens)
	})
}
