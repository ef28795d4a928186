// Package publish renders prototype websites and stores them where leads can
// open them: a local directory served by the admin server, or a MinIO bucket.
package publish

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
)

// Publisher builds a lead's prototype site and returns its public URL.
type Publisher interface {
	Build(ctx context.Context, lead *model.Lead, content model.SiteContent) (string, error)
	// Remove deletes an artifact returned by Build.
	Remove(ctx context.Context, url string) error
}

//go:embed site.html.tmpl
var siteTemplate string

var tmpl = template.Must(template.New("site").Parse(siteTemplate))

type pageData struct {
	Name    string
	Phone   string
	Email   string
	Address string
	Year    int
	Content model.SiteContent
}

// Render produces the HTML document for lead. Lead values are escaped by
// html/template.
func Render(lead *model.Lead, content model.SiteContent) ([]byte, error) {
	address := model.Deref(lead.Address)
	if address == "" {
		address = lead.Location
	}
	data := pageData{
		Name:    lead.DisplayName(),
		Phone:   model.Deref(lead.Phone),
		Email:   model.Deref(lead.Email),
		Address: address,
		Year:    time.Now().Year(),
		Content: content,
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, eris.Wrap(err, "publish: render site")
	}
	return buf.Bytes(), nil
}

// objectName is the artifact name for lead. The random suffix keeps a
// rebuilt site from colliding with a cached earlier version.
func objectName(lead *model.Lead) string {
	return fmt.Sprintf("%d-%s.html", lead.ID, uuid.NewString()[:8])
}

func joinURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + name
}

// nameFromURL returns the artifact name if url was produced under base.
func nameFromURL(base, url string) (string, error) {
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", eris.Errorf("publish: %s is not under %s", url, base)
	}
	name := strings.TrimPrefix(url, prefix)
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		return "", eris.Errorf("publish: invalid artifact name in %s", url)
	}
	return name, nil
}

// New creates the configured publisher.
func New(cfg *config.Config) (Publisher, error) {
	switch cfg.Prototype.Backend {
	case "", "fs":
		return NewFS(cfg.Prototype.Dir, cfg.Prototype.BaseURL)
	case "minio":
		return NewMinio(cfg.Minio)
	default:
		return nil, eris.Errorf("publish: unknown backend %q", cfg.Prototype.Backend)
	}
}
