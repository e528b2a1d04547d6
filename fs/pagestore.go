// Package fs mirrors crawled pages to a local directory.
package fs

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fwojciec/egress"
)

// Ensure Mirror implements egress.PageStore at compile time.
var _ egress.PageStore = (*Mirror)(nil)

// Mirror implements egress.PageStore with atomic update semantics.
// Pages are saved to a temporary directory, then moved atomically on Commit.
type Mirror struct {
	baseDir string
	name    string
}

// NewMirror creates a new Mirror.
// Files are saved to baseDir/name.tmp and moved to baseDir/name on Commit.
func NewMirror(baseDir, name string) *Mirror {
	return &Mirror{
		baseDir: baseDir,
		name:    name,
	}
}

// Dir returns the directory the mirror is committed to.
func (m *Mirror) Dir() string {
	return filepath.Join(m.baseDir, m.name)
}

func (m *Mirror) tempDir() string {
	return filepath.Join(m.baseDir, m.name+".tmp")
}

// SavePage writes body under the mirror path of rawURL.
func (m *Mirror) SavePage(ctx context.Context, rawURL string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	relPath, err := URLToPath(rawURL)
	if err != nil {
		return err
	}

	fullPath := filepath.Join(m.tempDir(), relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return egress.Wrapf(err, egress.EINTERNAL, "mirror: create directory for %q", rawURL)
	}
	if err := os.WriteFile(fullPath, body, 0o644); err != nil {
		return egress.Wrapf(err, egress.EINTERNAL, "mirror: write %q", rawURL)
	}
	return nil
}

// Commit replaces the committed directory with everything saved so far.
func (m *Mirror) Commit() error {
	if _, err := os.Stat(m.tempDir()); os.IsNotExist(err) {
		if err := os.MkdirAll(m.tempDir(), 0o755); err != nil {
			return err
		}
	}
	if err := os.RemoveAll(m.Dir()); err != nil {
		return err
	}
	return os.Rename(m.tempDir(), m.Dir())
}

// Abort discards pages saved since the last Commit.
func (m *Mirror) Abort() error {
	return os.RemoveAll(m.tempDir())
}

// URLToPath converts a page URL to a relative file path.
// Example: https://example.com/docs/api/users → docs/api/users.html
//
// Paths are cleaned so that no URL can escape the mirror directory.
func URLToPath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", egress.Wrapf(err, egress.EINVALID, "mirror: parse url %q", rawURL)
	}

	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		p += "index.html"
	}
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" {
		return "index.html", nil
	}
	if path.Ext(p) == "" {
		p += ".html"
	}
	return filepath.FromSlash(p), nil
}
