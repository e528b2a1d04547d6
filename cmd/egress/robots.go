package main

import (
	"fmt"

	"github.com/fwojciec/egress"
)

// Run executes the robots command.
func (c *RobotsCmd) Run(deps *Dependencies) error {
	decision, err := deps.Robots.IsAllowed(deps.Ctx, c.URL)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", egress.ErrorMessage(err))
		return err
	}

	verdict := "allowed"
	if !decision.Allowed {
		verdict = "blocked"
	}
	fmt.Fprintf(deps.Stdout, "%s  %s\n", verdict, c.URL)
	if decision.CrawlDelay > 0 {
		fmt.Fprintf(deps.Stdout, "crawl-delay  %s\n", decision.CrawlDelay)
	}

	sitemaps, err := deps.Robots.Sitemaps(deps.Ctx, c.URL)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", egress.ErrorMessage(err))
		return err
	}
	for _, s := range sitemaps {
		fmt.Fprintf(deps.Stdout, "sitemap  %s\n", s)
	}
	return nil
}
