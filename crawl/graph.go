package crawl

import (
	"net"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/fwojciec/egress"
)

// Scoring weights.
const (
	inDegreeWeight = 0.6
	semanticWeight = 0.3
	depthWeight    = 0.1

	maxCountedInDegree = 10
	shallowDepth       = 6
)

var semanticPattern = regexp.MustCompile(`(?i)doc|docs|help|guide|tutorial|api|reference|faq|manual|blog|learn|howto`)

// LinkGraph accumulates roots, edges and candidates observed during a crawl
// and ranks the candidates. It is safe for concurrent use.
type LinkGraph struct {
	mu         sync.Mutex
	roots      map[string]bool
	edges      []egress.Edge
	candidates map[string]bool
	order      []string
}

// NewLinkGraph creates an empty graph.
func NewLinkGraph() *LinkGraph {
	return &LinkGraph{
		roots:      make(map[string]bool),
		candidates: make(map[string]bool),
	}
}

// AddRoot records a seed URL. Roots are never ranked.
func (g *LinkGraph) AddRoot(rawURL string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roots[NormalizeURL(rawURL)] = true
}

// AddEdge records a link from one page to another and makes the target a candidate.
func (g *LinkGraph) AddEdge(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := egress.Edge{From: NormalizeURL(from), To: NormalizeURL(to)}
	g.edges = append(g.edges, e)
	g.addCandidate(e.To)
}

// AddCandidate makes a URL eligible for ranking without recording an edge.
func (g *LinkGraph) AddCandidate(rawURL string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addCandidate(NormalizeURL(rawURL))
}

func (g *LinkGraph) addCandidate(u string) {
	if !g.candidates[u] {
		g.candidates[u] = true
		g.order = append(g.order, u)
	}
}

// Prioritize ranks the current snapshot. See Prioritize.
func (g *LinkGraph) Prioritize(limit int) []egress.ScoredURL {
	g.mu.Lock()
	roots := make([]string, 0, len(g.roots))
	for r := range g.roots {
		roots = append(roots, r)
	}
	edges := append([]egress.Edge(nil), g.edges...)
	candidates := append([]string(nil), g.order...)
	g.mu.Unlock()

	return Prioritize(roots, edges, candidates, limit)
}

// Prioritize scores every unique candidate that is not a root and returns
// the best limit of them by descending score, ties broken by URL.
// A limit <= 0 returns all of them.
//
//	score = 0.6*min(10, inDegree) + 0.3*semantic + 0.1*max(0, 6-depth)
//
// All URLs are normalized first. The result depends only on the arguments.
func Prioritize(roots []string, edges []egress.Edge, candidates []string, limit int) []egress.ScoredURL {
	isRoot := make(map[string]bool, len(roots))
	for _, r := range roots {
		isRoot[NormalizeURL(r)] = true
	}

	in := make(map[string]int)
	out := make(map[string]int)
	for _, e := range edges {
		from, to := NormalizeURL(e.From), NormalizeURL(e.To)
		out[from]++
		in[to]++
	}

	seen := make(map[string]bool, len(candidates))
	scored := make([]egress.ScoredURL, 0, len(candidates))
	for _, c := range candidates {
		u := NormalizeURL(c)
		if seen[u] || isRoot[u] {
			continue
		}
		seen[u] = true
		scored = append(scored, score(u, in[u], out[u]))
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].URL < scored[j].URL
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func score(u string, in, out int) egress.ScoredURL {
	s := egress.ScoredURL{
		URL:       u,
		InDegree:  in,
		OutDegree: out,
		Depth:     depth(u),
	}
	if semanticPattern.MatchString(pathOf(u)) {
		s.Semantic = 1
	}
	s.Score = inDegreeWeight*float64(min(maxCountedInDegree, in)) +
		semanticWeight*float64(s.Semantic) +
		depthWeight*float64(max(0, shallowDepth-s.Depth))
	return s
}

// depth counts the non-empty path segments of u.
func depth(u string) int {
	n := 0
	for _, seg := range strings.Split(pathOf(u), "/") {
		if seg != "" {
			n++
		}
	}
	return n
}

func pathOf(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	return parsed.Path
}

// NormalizeURL canonicalizes a URL for graph bookkeeping: lowercase scheme
// and host, no fragment, no default port, no trailing slash except for the
// root path. Unparsable input is returned unchanged.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return rawURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	switch {
	case port != "":
		host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		host = "[" + host + "]"
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		if u.Path == "" {
			u.Path = "/"
		}
		u.RawPath = ""
	}
	return u.String()
}
