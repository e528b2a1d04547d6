package main_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/alicebob/miniredis/v2"
	"github.com/fwojciec/egress"
	main "github.com/fwojciec/egress/cmd/egress"
	"github.com/fwojciec/egress/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var commands = []string{"robots", "crawl", "ask", "policies"}

// docsSite serves a two page site with the given robots.txt.
func docsSite(t *testing.T, robotsTxt string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			if robotsTxt == "" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(robotsTxt))
		case "/":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body><main><a href="/docs/intro">Intro</a></main></body></html>`))
		case "/docs/intro":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body><main><p>Getting started</p></main></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newMain(srv *httptest.Server) *main.Main {
	m := main.NewMain()
	if srv != nil {
		m.HTTPClient = srv.Client()
	}
	m.Getenv = func(string) string { return "" }
	return m
}

func TestCLI_HelpShowsAllCommands(t *testing.T) {
	t.Parallel()

	cli := &main.CLI{}
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	parser, err := kong.New(cli,
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}),
	)
	require.NoError(t, err)

	_, _ = parser.Parse([]string{"--help"})

	for _, cmd := range commands {
		assert.Contains(t, stdout.String(), cmd, "Help should mention %s command", cmd)
	}
}

func TestMain_Run(t *testing.T) {
	t.Parallel()

	t.Run("help shows kong output", func(t *testing.T) {
		t.Parallel()

		stdout := &bytes.Buffer{}
		err := newMain(nil).Run(context.Background(), []string{"--help"}, stdout, &bytes.Buffer{})

		require.NoError(t, err)
		for _, cmd := range commands {
			assert.Contains(t, stdout.String(), cmd)
		}
		assert.Contains(t, stdout.String(), "Usage:")
		assert.Contains(t, stdout.String(), "Flags:")
	})

	t.Run("no arguments is an error", func(t *testing.T) {
		t.Parallel()

		stdout := &bytes.Buffer{}
		err := newMain(nil).Run(context.Background(), nil, stdout, &bytes.Buffer{})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "no command specified")
		assert.Contains(t, stdout.String(), "Usage:")
	})

	t.Run("unknown command is an error", func(t *testing.T) {
		t.Parallel()

		err := newMain(nil).Run(context.Background(), []string{"fly"}, &bytes.Buffer{}, &bytes.Buffer{})

		assert.Error(t, err)
	})

	t.Run("unreadable policy file is an error", func(t *testing.T) {
		t.Parallel()

		stderr := &bytes.Buffer{}
		args := []string{"--policies", filepath.Join(t.TempDir(), "missing.yaml"), "policies"}

		err := newMain(nil).Run(context.Background(), args, &bytes.Buffer{}, stderr)

		require.Error(t, err)
		assert.Contains(t, stderr.String(), "Hint:")
	})
}

func TestCmdRobots(t *testing.T) {
	t.Parallel()

	t.Run("reports a blocked URL with delay and sitemaps", func(t *testing.T) {
		t.Parallel()

		srv := docsSite(t, "User-agent: *\nDisallow: /private\nCrawl-delay: 2\nSitemap: https://docs.example.com/sitemap.xml\n")
		stdout := &bytes.Buffer{}

		err := newMain(srv).Run(context.Background(), []string{"robots", srv.URL + "/private/page"}, stdout, &bytes.Buffer{})

		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "blocked  "+srv.URL+"/private/page")
		assert.Contains(t, stdout.String(), "crawl-delay  2s")
		assert.Contains(t, stdout.String(), "sitemap  https://docs.example.com/sitemap.xml")
	})

	t.Run("missing robots.txt allows everything", func(t *testing.T) {
		t.Parallel()

		srv := docsSite(t, "")
		stdout := &bytes.Buffer{}

		err := newMain(srv).Run(context.Background(), []string{"robots", srv.URL + "/docs/intro"}, stdout, &bytes.Buffer{})

		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "allowed  ")
		assert.NotContains(t, stdout.String(), "crawl-delay")
	})

	t.Run("invalid URL is an error", func(t *testing.T) {
		t.Parallel()

		stderr := &bytes.Buffer{}

		err := newMain(nil).Run(context.Background(), []string{"robots", "not a url"}, &bytes.Buffer{}, stderr)

		assert.Equal(t, egress.EINVALID, egress.ErrorCode(err))
		assert.Contains(t, stderr.String(), "error:")
	})
}

func TestCmdCrawl(t *testing.T) {
	t.Parallel()

	t.Run("crawls the site and prints pages", func(t *testing.T) {
		t.Parallel()

		srv := docsSite(t, "")
		m := newMain(srv)
		stdout := &bytes.Buffer{}

		err := m.Run(context.Background(), []string{"--host-rate", "1000", "crawl", "--no-sitemaps", srv.URL + "/"}, stdout, &bytes.Buffer{})

		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "Session ")
		assert.Contains(t, stdout.String(), "2 fetched")
		assert.Contains(t, stdout.String(), "/docs/intro")

		families, err := m.Registry.Gather()
		require.NoError(t, err)
		var names []string
		for _, f := range families {
			names = append(names, f.GetName())
		}
		assert.Contains(t, names, "egress_fetch_total")
	})

	t.Run("mirrors pages into the output directory", func(t *testing.T) {
		t.Parallel()

		srv := docsSite(t, "")
		out := filepath.Join(t.TempDir(), "mirror")
		stdout := &bytes.Buffer{}

		err := newMain(srv).Run(context.Background(), []string{"--host-rate", "1000", "crawl", "--no-sitemaps", "--out", out, srv.URL + "/"}, stdout, &bytes.Buffer{})

		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "Saved 2 pages")
		content, err := os.ReadFile(filepath.Join(out, "docs", "intro.html"))
		require.NoError(t, err)
		assert.Contains(t, string(content), "Getting started")
		assert.FileExists(t, filepath.Join(out, "index.html"))
	})

	t.Run("sqlite revisit records survive between runs", func(t *testing.T) {
		t.Parallel()

		srv := docsSite(t, "")
		args := []string{
			"--host-rate", "1000",
			"--revisit-db", filepath.Join(t.TempDir(), "revisit.db"),
			"crawl", "--no-sitemaps", srv.URL + "/",
		}

		require.NoError(t, newMain(srv).Run(context.Background(), args, &bytes.Buffer{}, &bytes.Buffer{}))
		stdout := &bytes.Buffer{}
		require.NoError(t, newMain(srv).Run(context.Background(), args, stdout, &bytes.Buffer{}))

		assert.Contains(t, stdout.String(), "0 fetched")
		assert.Contains(t, stdout.String(), "1 not due")
	})

	t.Run("redis revisit records survive between runs", func(t *testing.T) {
		t.Parallel()

		srv := docsSite(t, "")
		mr := miniredis.RunT(t)
		args := []string{
			"--host-rate", "1000",
			"--redis", mr.Addr(),
			"crawl", "--no-sitemaps", srv.URL + "/",
		}

		require.NoError(t, newMain(srv).Run(context.Background(), args, &bytes.Buffer{}, &bytes.Buffer{}))
		stdout := &bytes.Buffer{}
		require.NoError(t, newMain(srv).Run(context.Background(), args, stdout, &bytes.Buffer{}))

		assert.Contains(t, stdout.String(), "1 not due")
		assert.NotEmpty(t, mr.Keys())
	})

	t.Run("host policy quota limits fetches", func(t *testing.T) {
		t.Parallel()

		srv := docsSite(t, "")
		path := filepath.Join(t.TempDir(), "policies.yaml")
		policies := fmt.Sprintf("policies:\n  %q:\n    rate:\n      tokensPerMinute: 6000\n      burstCapacity: 10\n    quota:\n      daily: 1\n",
			srv.Listener.Addr().String())
		require.NoError(t, os.WriteFile(path, []byte(policies), 0o600))

		stdout := &bytes.Buffer{}
		err := newMain(srv).Run(context.Background(), []string{
			"--policies", path, "--host-rate", "1000",
			"crawl", "--no-sitemaps", srv.URL + "/",
		}, stdout, &bytes.Buffer{})

		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "1 fetched")
		assert.Contains(t, stdout.String(), "1 failed")
	})

	t.Run("pages blocked by robots.txt are counted", func(t *testing.T) {
		t.Parallel()

		srv := docsSite(t, "User-agent: egressbot\nDisallow: /docs\n")
		stdout := &bytes.Buffer{}

		err := newMain(srv).Run(context.Background(), []string{"--host-rate", "1000", "crawl", "--no-sitemaps", srv.URL + "/"}, stdout, &bytes.Buffer{})

		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "1 fetched")
		assert.Contains(t, stdout.String(), "1 blocked by robots.txt")
	})

	t.Run("invalid filter is an error", func(t *testing.T) {
		t.Parallel()

		srv := docsSite(t, "")

		err := newMain(srv).Run(context.Background(), []string{"crawl", "--filter", "[", srv.URL + "/"}, &bytes.Buffer{}, &bytes.Buffer{})

		assert.Equal(t, egress.EINVALID, egress.ErrorCode(err))
	})
}

func TestCmdAsk(t *testing.T) {
	t.Parallel()

	t.Run("prints the completion", func(t *testing.T) {
		t.Parallel()

		var got *egress.CompletionRequest
		m := newMain(nil)
		m.Completer = &mock.Completer{
			NameFn: func() string { return "router" },
			CompleteFn: func(ctx context.Context, req *egress.CompletionRequest) (*egress.Completion, error) {
				got = req
				return &egress.Completion{Text: "Use the retry budget.", Provider: "gemini"}, nil
			},
		}
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}

		err := m.Run(context.Background(), []string{"ask", "--system", "be brief", "--max-tokens", "64", "How do I retry?"}, stdout, stderr)

		require.NoError(t, err)
		assert.Equal(t, "Use the retry budget.\n", stdout.String())
		assert.Contains(t, stderr.String(), "answered by gemini")
		require.NotNil(t, got)
		assert.Equal(t, "How do I retry?", got.Prompt)
		assert.Equal(t, "be brief", got.System)
		assert.Equal(t, 64, got.MaxTokens)
	})

	t.Run("completion failure is reported", func(t *testing.T) {
		t.Parallel()

		m := newMain(nil)
		m.Completer = &mock.Completer{
			NameFn: func() string { return "router" },
			CompleteFn: func(ctx context.Context, req *egress.CompletionRequest) (*egress.Completion, error) {
				return nil, egress.Errorf(egress.EUNAVAILABLE, "all providers failed")
			},
		}
		stderr := &bytes.Buffer{}

		err := m.Run(context.Background(), []string{"ask", "hello"}, &bytes.Buffer{}, stderr)

		assert.Equal(t, egress.EUNAVAILABLE, egress.ErrorCode(err))
		assert.Contains(t, stderr.String(), "all providers failed")
	})

	t.Run("no API keys is an error", func(t *testing.T) {
		t.Parallel()

		stderr := &bytes.Buffer{}

		err := newMain(nil).Run(context.Background(), []string{"ask", "hello"}, &bytes.Buffer{}, stderr)

		assert.Equal(t, egress.EINVALID, egress.ErrorCode(err))
		assert.Contains(t, stderr.String(), "GEMINI_API_KEY")
	})

	t.Run("unknown provider is an error", func(t *testing.T) {
		t.Parallel()

		err := newMain(nil).Run(context.Background(), []string{"ask", "--providers", "openai", "hello"}, &bytes.Buffer{}, &bytes.Buffer{})

		assert.Equal(t, egress.EINVALID, egress.ErrorCode(err))
	})
}

func TestCmdPolicies(t *testing.T) {
	t.Parallel()

	t.Run("prints the loaded registry", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "policies.yaml")
		require.NoError(t, os.WriteFile(path, []byte("policies:\n  gemini:\n    rate:\n      tokensPerMinute: 60\n      burstCapacity: 10\n    timeout: 20s\n"), 0o600))
		stdout := &bytes.Buffer{}

		err := newMain(nil).Run(context.Background(), []string{"--policies", path, "policies"}, stdout, &bytes.Buffer{})

		require.NoError(t, err)
		assert.Contains(t, stdout.String(), "gemini:")
		assert.Contains(t, stdout.String(), "tokensPerMinute: 60")
		assert.Contains(t, stdout.String(), "timeout: 20s")
	})

	t.Run("invalid policy is rejected", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "policies.yaml")
		require.NoError(t, os.WriteFile(path, []byte("policies:\n  gemini:\n    timeout: -1s\n"), 0o600))

		err := newMain(nil).Run(context.Background(), []string{"--policies", path, "policies"}, &bytes.Buffer{}, &bytes.Buffer{})

		require.Error(t, err)
		assert.Equal(t, egress.EINVALID, egress.ErrorCode(err))
	})
}
