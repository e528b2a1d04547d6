package main

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/fwojciec/egress"
	"github.com/fwojciec/egress/crawl"
	"github.com/fwojciec/egress/fs"
)

// urlColumn is the display width of URLs in crawl output.
const urlColumn = 72

// Run executes the crawl command.
func (c *CrawlCmd) Run(deps *Dependencies) error {
	filter, err := compileFilter(c.Filter, c.Exclude)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", egress.ErrorMessage(err))
		return err
	}

	session := deps.Session
	session.Filter = filter
	session.MaxPages = c.MaxPages
	session.Concurrency = c.Concurrency
	session.RevisitTTL = c.RevisitTTL
	session.Progress = func(event crawl.ProgressEvent) {
		if event.Type == crawl.ProgressFailed {
			fmt.Fprintf(deps.Stderr, "  skip %s: %v\n", event.URL, event.Error)
		}
	}

	var mirror *fs.Mirror
	if c.Out != "" {
		mirror = fs.NewMirror(filepath.Dir(c.Out), filepath.Base(c.Out))
		session.Store = mirror
	}

	result, err := session.Run(deps.Ctx, c.URL)
	if result != nil {
		printResult(deps, result, c.Top)
	}
	if err != nil {
		if mirror != nil {
			_ = mirror.Abort()
		}
		fmt.Fprintf(deps.Stderr, "error crawling: %v\n", err)
		return err
	}

	if mirror != nil {
		if err := mirror.Commit(); err != nil {
			fmt.Fprintf(deps.Stderr, "error saving pages: %v\n", err)
			return err
		}
		fmt.Fprintf(deps.Stdout, "\nSaved %d pages to %s\n", len(result.Pages), mirror.Dir())
	}
	return nil
}

func printResult(deps *Dependencies, r *crawl.SessionResult, top int) {
	fmt.Fprintf(deps.Stdout, "Session %s: %s\n", r.ID, crawl.FormatSummary(r))

	if len(r.Pages) > 0 {
		fmt.Fprintf(deps.Stdout, "\nPages (%d):\n", len(r.Pages))
		for _, p := range r.Pages {
			fmt.Fprintf(deps.Stdout, "  %.3f  %-*s  %d links, %s\n",
				p.Score, urlColumn, crawl.TruncateURL(p.URL, urlColumn), p.Links, crawl.FormatBytes(p.Bytes))
		}
	}

	if len(r.DuplicateOf) > 0 {
		fmt.Fprintf(deps.Stdout, "\nDuplicates (%d):\n", len(r.DuplicateOf))
		for dup, original := range r.DuplicateOf {
			fmt.Fprintf(deps.Stdout, "  %s\n    same as %s\n", dup, original)
		}
	}

	if len(r.Frontier) > 0 {
		shown := r.Frontier
		if top > 0 && len(shown) > top {
			shown = shown[:top]
		}
		fmt.Fprintf(deps.Stdout, "\nFrontier (%d of %d):\n", len(shown), len(r.Frontier))
		for _, s := range shown {
			fmt.Fprintf(deps.Stdout, "  %.3f  %s\n", s.Score, crawl.TruncateURL(s.URL, urlColumn))
		}
	}
}

func compileFilter(include, exclude []string) (*egress.URLFilter, error) {
	if len(include) == 0 && len(exclude) == 0 {
		return nil, nil
	}
	f := &egress.URLFilter{}
	for _, pattern := range include {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, egress.Errorf(egress.EINVALID, "invalid filter pattern %q: %v", pattern, err)
		}
		f.Include = append(f.Include, re)
	}
	for _, pattern := range exclude {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, egress.Errorf(egress.EINVALID, "invalid exclude pattern %q: %v", pattern, err)
		}
		f.Exclude = append(f.Exclude, re)
	}
	return f, nil
}
