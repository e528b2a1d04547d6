package slog_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/fwojciec/egress"
	"github.com/fwojciec/egress/mock"
	egressslog "github.com/fwojciec/egress/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingFetcher_Fetch(t *testing.T) {
	t.Parallel()

	t.Run("logs fetch with status, bytes and duration", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		inner := &mock.Fetcher{
			FetchFn: func(ctx context.Context, req *egress.Request) (*egress.Response, error) {
				return &egress.Response{URL: req.URL, StatusCode: 200, Body: []byte("<html>content</html>")}, nil
			},
		}

		fetcher := egressslog.NewLoggingFetcher(inner, logger)
		resp, err := fetcher.Fetch(context.Background(), &egress.Request{URL: "https://example.com/docs"})

		require.NoError(t, err)
		assert.Equal(t, "<html>content</html>", string(resp.Body))
		output := buf.String()
		assert.Contains(t, output, "msg=fetch")
		assert.Contains(t, output, "url=https://example.com/docs")
		assert.Contains(t, output, "status=200")
		assert.Contains(t, output, "bytes=20")
		assert.Contains(t, output, "duration=")
	})

	t.Run("logs error on failure", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		inner := &mock.Fetcher{
			FetchFn: func(ctx context.Context, req *egress.Request) (*egress.Response, error) {
				return &egress.Response{URL: req.URL, StatusCode: 503}, egress.Errorf(egress.ETRANSIENT, "HTTP 503")
			},
		}

		fetcher := egressslog.NewLoggingFetcher(inner, logger)
		_, err := fetcher.Fetch(context.Background(), &egress.Request{URL: "https://example.com/docs"})

		require.Error(t, err)
		output := buf.String()
		assert.Contains(t, output, "status=503")
		assert.Contains(t, output, "err=")
		assert.Contains(t, output, "HTTP 503")
	})
}
