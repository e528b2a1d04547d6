package robots

import (
	"bufio"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Rules is a parsed robots.txt file.
type Rules struct {
	Groups   []Group
	Sitemaps []string
}

// Group holds the directives that apply to a set of user agents.
type Group struct {
	Agents     []string
	Rules      []Rule
	CrawlDelay time.Duration
}

// Rule is a single Allow or Disallow line.
type Rule struct {
	Allow   bool
	Pattern string
}

// Parse reads robots.txt content. Parsing is lenient: unknown directives and
// malformed lines are skipped, never rejected.
func Parse(text string) *Rules {
	rules := &Rules{}

	var current *Group
	// Consecutive User-agent lines share one group. Once a rule line has
	// been seen, the next User-agent starts a new group.
	inAgentRun := false

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), maxBodyBytes)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			if !inAgentRun || current == nil {
				rules.Groups = append(rules.Groups, Group{})
				current = &rules.Groups[len(rules.Groups)-1]
			}
			current.Agents = append(current.Agents, strings.ToLower(value))
			inAgentRun = true
		case "allow", "disallow":
			inAgentRun = false
			if current == nil {
				continue
			}
			if value == "" {
				// An empty Disallow allows everything, which is the default.
				continue
			}
			current.Rules = append(current.Rules, Rule{Allow: key == "allow", Pattern: value})
		case "crawl-delay":
			inAgentRun = false
			if current == nil {
				continue
			}
			if secs, err := strconv.ParseFloat(value, 64); err == nil && secs > 0 {
				current.CrawlDelay = time.Duration(secs * float64(time.Second))
			}
		case "sitemap":
			if value != "" {
				rules.Sitemaps = append(rules.Sitemaps, value)
			}
		}
	}
	return rules
}

// Group returns the rules that apply to userAgent, or nil when none do.
//
// Matching is case-insensitive. A declared agent matches when it is contained
// in the product token of userAgent or the product token is contained in it.
// The longest matching declared agent wins; "*" is used only when nothing
// else matches. Every group declaring the winning agent is merged into the
// result; its crawl delay is the first one declared.
func (r *Rules) Group(userAgent string) *Group {
	if r == nil {
		return nil
	}
	product := productToken(userAgent)

	best := ""
	for _, g := range r.Groups {
		for _, agent := range g.Agents {
			if agent == "*" || agent == "" || product == "" {
				continue
			}
			if strings.Contains(product, agent) || strings.Contains(agent, product) {
				if len(agent) > len(best) {
					best = agent
				}
			}
		}
	}
	if best == "" {
		best = "*"
	}

	var merged *Group
	for _, g := range r.Groups {
		if !slices.Contains(g.Agents, best) {
			continue
		}
		if merged == nil {
			merged = &Group{Agents: []string{best}}
		}
		merged.Rules = append(merged.Rules, g.Rules...)
		if merged.CrawlDelay == 0 {
			merged.CrawlDelay = g.CrawlDelay
		}
	}
	return merged
}

// Allowed reports whether path (path plus optional query) may be fetched.
// The longest matching pattern decides; on a tie Allow wins. A path that
// matches no rule is allowed.
func (g *Group) Allowed(path string) bool {
	if g == nil {
		return true
	}
	if path == "" {
		path = "/"
	}

	allowed := true
	bestLen := -1
	for _, rule := range g.Rules {
		if !match(rule.Pattern, path) {
			continue
		}
		n := len(rule.Pattern)
		if n > bestLen || (n == bestLen && rule.Allow) {
			allowed, bestLen = rule.Allow, n
		}
	}
	return allowed
}

// match reports whether path matches a robots pattern. "*" matches any
// sequence of characters and a trailing "$" anchors the end of the path.
// Patterns without a trailing "$" match as prefixes.
func match(pattern, path string) bool {
	anchored := strings.HasSuffix(pattern, "$")
	if anchored {
		pattern = strings.TrimSuffix(pattern, "$")
	}

	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(path, parts[0]) {
		return false
	}
	pos := len(parts[0])
	if len(parts) == 1 {
		return !anchored || pos == len(path)
	}

	for i, part := range parts[1:] {
		last := i == len(parts)-2
		if last && anchored {
			return len(path)-pos >= len(part) && strings.HasSuffix(path, part)
		}
		j := strings.Index(path[pos:], part)
		if j < 0 {
			return false
		}
		pos += j + len(part)
	}
	return true
}

// productToken returns the lowercase product name of a user agent string,
// e.g. "egressbot" for "egressbot/1.0 (+https://example.com)".
func productToken(userAgent string) string {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if i := strings.IndexAny(ua, "/ "); i >= 0 {
		ua = ua[:i]
	}
	return ua
}
