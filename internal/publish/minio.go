package publish

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
)

// objectStore is the subset of *minio.Client the publisher uses.
type objectStore interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
}

// Minio uploads sites to an object storage bucket with public read access.
type Minio struct {
	store     objectStore
	bucket    string
	publicURL string
}

// NewMinio connects to the configured endpoint and makes sure the bucket
// exists.
func NewMinio(cfg config.MinioConfig) (*Minio, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, eris.New("publish: minio.endpoint and minio.bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, eris.Wrap(err, "publish: create minio client")
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, eris.Wrap(err, "publish: check bucket")
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, eris.Wrapf(err, "publish: create bucket %s", cfg.Bucket)
		}
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = scheme + "://" + cfg.Endpoint + "/" + cfg.Bucket
	}
	return newMinio(client, cfg.Bucket, publicURL), nil
}

func newMinio(store objectStore, bucket, publicURL string) *Minio {
	return &Minio{store: store, bucket: bucket, publicURL: publicURL}
}

func (p *Minio) Build(ctx context.Context, lead *model.Lead, content model.SiteContent) (string, error) {
	html, err := Render(lead, content)
	if err != nil {
		return "", err
	}
	name := objectName(lead)
	_, err = p.store.PutObject(ctx, p.bucket, name, bytes.NewReader(html), int64(len(html)), minio.PutObjectOptions{
		ContentType:  "text/html; charset=utf-8",
		CacheControl: "public, max-age=300",
	})
	if err != nil {
		return "", eris.Wrapf(err, "publish: upload %s", name)
	}
	return joinURL(p.publicURL, name), nil
}

func (p *Minio) Remove(ctx context.Context, url string) error {
	name, err := nameFromURL(p.publicURL, url)
	if err != nil {
		return err
	}
	if err := p.store.RemoveObject(ctx, p.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return eris.Wrapf(err, "publish: remove %s", name)
	}
	return nil
}
