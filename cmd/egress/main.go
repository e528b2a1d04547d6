package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/fwojciec/egress"
	egressanthropic "github.com/fwojciec/egress/anthropic"
	"github.com/fwojciec/egress/breaker"
	"github.com/fwojciec/egress/crawl"
	"github.com/fwojciec/egress/dedup"
	"github.com/fwojciec/egress/gemini"
	"github.com/fwojciec/egress/goquery"
	egresshttp "github.com/fwojciec/egress/http"
	"github.com/fwojciec/egress/llm"
	egressprom "github.com/fwojciec/egress/prometheus"
	"github.com/fwojciec/egress/ratelimit"
	egressredis "github.com/fwojciec/egress/redis"
	"github.com/fwojciec/egress/revisit"
	"github.com/fwojciec/egress/robots"
	egressslog "github.com/fwojciec/egress/slog"
	"github.com/fwojciec/egress/sqlite"
	"github.com/fwojciec/egress/yaml"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

func main() {
	ctx := context.Background()

	m := NewMain()

	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// HTTP client for robots.txt, sitemaps and pages. Set before calling Run().
	HTTPClient *http.Client

	// Getenv looks up provider API keys. Defaults to os.Getenv.
	Getenv func(string) string

	// Completer replaces the provider fallback chain for end-to-end testing.
	Completer egress.Completer

	// Registry collects metrics for the duration of a run.
	Registry *prometheus.Registry

	closers []func() error
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{
		HTTPClient: http.DefaultClient,
		Getenv:     os.Getenv,
		Registry:   prometheus.NewRegistry(),
	}
}

// Close gracefully stops the program.
func (m *Main) Close() error {
	var errs []error
	for i := len(m.closers) - 1; i >= 0; i-- {
		errs = append(errs, m.closers[i]())
	}
	m.closers = nil
	return errors.Join(errs...)
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("egress"),
		kong.Description("Rate limited, circuit broken, robots compliant outbound calls."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}), // Don't exit on help
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'egress --help' to see available commands")
	}

	cmd := args[0]
	if cmd == "help" || cmd == "--help" || cmd == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	cmd = strings.Fields(kongCtx.Command())[0]

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	deps.Ctx = ctx
	defer m.Close()

	level := slog.LevelWarn
	if cli.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	deps.Logger = logger

	deps.Policies = &egress.PolicyRegistry{}
	if cli.PolicyFile != "" {
		deps.Policies, err = yaml.LoadPolicies(cli.PolicyFile)
		if err != nil {
			fmt.Fprintln(stderr, "Hint: Check the file passed to --policies (or EGRESS_POLICIES)")
			return fmt.Errorf("failed to load policies: %w", err)
		}
	}

	metrics := egressprom.NewMetrics(m.Registry)
	if cli.MetricsAddr != "" {
		if err := m.serveMetrics(cli.MetricsAddr, logger); err != nil {
			return fmt.Errorf("failed to serve metrics: %w", err)
		}
	}

	breakers := breaker.NewRegistry(
		breaker.WithPolicies(deps.Policies),
		breaker.WithLogger(logger),
		breaker.WithStateChange(metrics.ObserveStateChange),
	)

	robotsSvc := robots.NewService(
		robots.WithHTTPClient(m.HTTPClient),
		robots.WithUserAgent(cli.UserAgent),
		robots.WithLogger(logger),
	)
	deps.Robots = robotsSvc

	// Providers and hosts share one limiter keyed by policy name.
	limiter := ratelimit.NewLimiter(ratelimit.WithLogger(logger))
	if err := limiter.ApplyPolicies(deps.Policies); err != nil {
		return fmt.Errorf("failed to apply policies: %w", err)
	}
	go limiter.Run(ctx, ratelimit.DefaultSweepInterval)

	if cmd == "crawl" {
		store, err := m.openRevisitStore(ctx, cli, stderr, logger)
		if err != nil {
			return err
		}
		policy := revisit.NewPolicy(store, revisit.WithLogger(logger))

		polite := egresshttp.NewPoliteFetcher(
			egresshttp.WithHTTPClient(m.HTTPClient),
			egresshttp.WithUserAgent(cli.UserAgent),
			egresshttp.WithTimeout(cli.Timeout),
			egresshttp.WithHostRate(rate.Limit(cli.HostRate)),
			egresshttp.WithHostConcurrency(cli.Crawl.Concurrency),
			egresshttp.WithLimiter(limiter),
			egresshttp.WithRobots(egressslog.NewLoggingRobots(robotsSvc, logger)),
			egresshttp.WithRevisitPolicy(policy),
			egresshttp.WithBreaker(breakers),
			egresshttp.WithObserver(metrics),
			egresshttp.WithLogger(logger),
		)
		go polite.Run(ctx, egresshttp.DefaultSweepInterval)
		fetcher := egressslog.NewLoggingFetcher(
			egresshttp.NewRetryingFetcher(polite, egresshttp.DefaultRetryConfig()),
			logger,
		)

		deps.Session = &crawl.Session{
			Fetcher: fetcher,
			Links:   goquery.NewLinkExtractor(),
			Dedup:   dedup.New(),
			Revisit: policy,
			Logger:  logger,
		}
		if cli.Crawl.Sitemaps {
			deps.Session.Sitemaps = egressslog.NewLoggingSitemapService(
				egresshttp.NewSitemapService(fetcher, robotsSvc),
				logger,
			)
		}
	}

	if cmd == "ask" {
		completer := m.Completer
		if completer == nil {
			providers, err := m.providers(ctx, cli.Ask.Providers, stderr)
			if err != nil {
				return err
			}
			opts := []llm.Option{
				llm.WithLimiter(limiter),
				llm.WithBreaker(breakers),
				llm.WithPolicies(deps.Policies),
				llm.WithMaxWait(cli.Ask.MaxWait),
				llm.WithMaxRetries(cli.Ask.Retries),
				llm.WithLogger(logger),
			}
			if tc, err := gemini.NewTokenCounter(gemini.DefaultModel); err == nil {
				opts = append(opts, llm.WithTokenCounter(tc))
			} else {
				logger.Warn("token counting disabled", "err", err)
			}
			completer = llm.NewRouter(providers, opts...)
		}
		deps.Completer = egressslog.NewLoggingCompleter(completer, logger)
	}

	return kongCtx.Run(deps)
}

// providers builds completers in the requested order, skipping backends
// without an API key.
func (m *Main) providers(ctx context.Context, names []string, stderr io.Writer) ([]egress.Completer, error) {
	var out []egress.Completer
	for _, name := range names {
		switch name {
		case gemini.ProviderName:
			key := m.Getenv("GEMINI_API_KEY")
			if key == "" {
				continue
			}
			client, err := genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  key,
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				fmt.Fprintln(stderr, "Hint: Check your GEMINI_API_KEY is valid")
				return nil, fmt.Errorf("failed to connect to Gemini API: %w", err)
			}
			out = append(out, gemini.NewCompleter(client))
		case egressanthropic.ProviderName:
			key := m.Getenv("ANTHROPIC_API_KEY")
			if key == "" {
				continue
			}
			// Retries are the router's job.
			client := anthropic.NewClient(option.WithAPIKey(key), option.WithMaxRetries(0))
			out = append(out, egressanthropic.NewCompleter(&client.Messages))
		default:
			return nil, egress.Errorf(egress.EINVALID, "unknown provider %q", name)
		}
	}
	if len(out) == 0 {
		fmt.Fprintln(stderr, "Set GEMINI_API_KEY or ANTHROPIC_API_KEY to enable a provider")
		return nil, egress.Errorf(egress.EINVALID, "no provider configured")
	}
	return out, nil
}

// openRevisitStore picks redis, then SQLite, then process memory. External
// stores fall back to memory when they fail.
func (m *Main) openRevisitStore(ctx context.Context, cli *CLI, stderr io.Writer, logger *slog.Logger) (egress.RevisitStore, error) {
	switch {
	case cli.Redis != "":
		client := redis.NewClient(&redis.Options{Addr: cli.Redis})
		m.closers = append(m.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, using local revisit records", "addr", cli.Redis, "err", err)
		}
		return revisit.NewFallbackStore(egressredis.NewRevisitStore(client), nil, logger), nil
	case cli.RevisitDB != "":
		db := sqlite.NewDB(cli.RevisitDB)
		if err := db.Open(); err != nil {
			fmt.Fprintln(stderr, "Hint: Set EGRESS_REVISIT_DB to use a different database path")
			return nil, fmt.Errorf("failed to open database at %q: %w", cli.RevisitDB, err)
		}
		m.closers = append(m.closers, db.Close)
		store := sqlite.NewRevisitStore(db)
		if n, err := store.Sweep(ctx); err != nil {
			logger.Warn("revisit sweep failed", "err", err)
		} else if n > 0 {
			logger.Debug("swept revisit records", "count", n)
		}
		return revisit.NewFallbackStore(store, nil, logger), nil
	default:
		return revisit.NewMemoryStore(), nil
	}
}

func (m *Main) serveMetrics(addr string, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "err", err)
		}
	}()
	m.closers = append(m.closers, srv.Close)
	return nil
}
