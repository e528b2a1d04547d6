package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/fwojciec/egress"
	"github.com/fwojciec/egress/crawl"
)

// RobotsService answers robots.txt questions for the robots command.
type RobotsService interface {
	egress.RobotsChecker
	Sitemaps(ctx context.Context, rawURL string) ([]string, error)
}

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx      context.Context
	Stdout   io.Writer
	Stderr   io.Writer
	Logger   *slog.Logger
	Policies *egress.PolicyRegistry

	Robots    RobotsService
	Session   *crawl.Session
	Completer egress.Completer
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	PolicyFile  string        `name:"policies" env:"EGRESS_POLICIES" type:"path" help:"YAML policy registry (rate limits, quotas, breakers, timeouts)"`
	UserAgent   string        `name:"user-agent" default:"egressbot/1.0" help:"User agent for robots.txt matching and requests"`
	Redis       string        `env:"EGRESS_REDIS" help:"Redis address for revisit records (host:port)"`
	RevisitDB   string        `name:"revisit-db" env:"EGRESS_REVISIT_DB" type:"path" help:"SQLite file for revisit records"`
	HostRate    float64       `name:"host-rate" default:"1" help:"Requests per second per host"`
	Timeout     time.Duration `default:"8s" help:"Per-request fetch timeout"`
	MetricsAddr string        `name:"metrics-addr" help:"Serve Prometheus metrics on this address while running"`
	Verbose     bool          `short:"v" help:"Enable debug logging"`

	Robots   RobotsCmd   `cmd:"" help:"Check whether a URL may be crawled"`
	Crawl    CrawlCmd    `cmd:"" help:"Crawl a documentation site politely"`
	Ask      AskCmd      `cmd:"" help:"Send a prompt through the provider fallback chain"`
	Policies PoliciesCmd `cmd:"" help:"Print the effective policy registry"`
}

// RobotsCmd is the "robots" subcommand.
type RobotsCmd struct {
	URL string `arg:"" help:"URL to check"`
}

// CrawlCmd is the "crawl" subcommand.
type CrawlCmd struct {
	URL         string        `arg:"" help:"Seed URL"`
	MaxPages    int           `short:"n" name:"max-pages" default:"100" help:"Maximum number of URLs to visit"`
	Concurrency int           `short:"c" default:"4" help:"URLs fetched per batch"`
	Filter      []string      `short:"F" name:"filter" help:"Only follow URLs matching regex (repeatable)"`
	Exclude     []string      `short:"x" name:"exclude" help:"Skip URLs matching regex (repeatable)"`
	RevisitTTL  time.Duration `name:"revisit-ttl" default:"24h" help:"How long a fetched page stays fresh"`
	Top         int           `default:"20" help:"Number of frontier URLs to print"`
	Sitemaps    bool          `default:"true" negatable:"" help:"Seed the crawl from sitemaps"`
	Out         string        `short:"o" type:"path" help:"Mirror fetched pages into this directory"`
}

// AskCmd is the "ask" subcommand.
type AskCmd struct {
	Prompt    string        `arg:"" help:"Prompt to send"`
	System    string        `help:"System instruction"`
	MaxTokens int           `name:"max-tokens" help:"Maximum output tokens"`
	Providers []string      `default:"gemini,anthropic" help:"Provider order"`
	MaxWait   time.Duration `name:"max-wait" default:"5s" help:"How long to wait for rate limit tokens"`
	Retries   int           `default:"0" help:"Extra passes over the provider list"`
}

// PoliciesCmd is the "policies" subcommand.
type PoliciesCmd struct{}
