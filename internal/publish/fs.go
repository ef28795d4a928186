package publish

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/model"
)

// FS writes sites into a local directory that the admin server exposes
// under /sites/.
type FS struct {
	dir     string
	baseURL string
}

// NewFS creates the directory if needed.
func NewFS(dir, baseURL string) (*FS, error) {
	if dir == "" {
		return nil, eris.New("publish: prototype.dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "publish: create %s", dir)
	}
	return &FS{dir: dir, baseURL: baseURL}, nil
}

// Dir is the directory sites are written to.
func (p *FS) Dir() string { return p.dir }

func (p *FS) Build(_ context.Context, lead *model.Lead, content model.SiteContent) (string, error) {
	html, err := Render(lead, content)
	if err != nil {
		return "", err
	}
	name := objectName(lead)
	tmp, err := os.CreateTemp(p.dir, ".site-*")
	if err != nil {
		return "", eris.Wrap(err, "publish: create temp file")
	}
	if _, err := tmp.Write(html); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", eris.Wrap(err, "publish: write site")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", eris.Wrap(err, "publish: close site")
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return "", eris.Wrap(err, "publish: chmod site")
	}
	if err := os.Rename(tmp.Name(), filepath.Join(p.dir, name)); err != nil {
		_ = os.Remove(tmp.Name())
		return "", eris.Wrap(err, "publish: rename site")
	}
	return joinURL(p.baseURL, name), nil
}

func (p *FS) Remove(_ context.Context, url string) error {
	name, err := nameFromURL(p.baseURL, url)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(p.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(err, "publish: remove %s", name)
	}
	return nil
}
