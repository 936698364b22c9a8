// Package minio fetches objects from MinIO and other S3-compatible mirrors.
//
// Several dataset releases are mirrored on S3-compatible endpoints that the
// AWS SDK cannot reach without per-host configuration; this fetcher talks to
// them directly.
package minio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/corpusloom/loom/fetch"
)

// Fetcher resolves minio://bucket/key URLs against one endpoint.
type Fetcher struct {
	client *minio.Client
}

// NewFetcher creates a Fetcher around the given client.
func NewFetcher(client *minio.Client) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch implements fetch.Fetcher. The URL host is the bucket, the path is
// the object key.
func (f *Fetcher) Fetch(ctx context.Context, u *url.URL, w io.Writer) (int64, error) {
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")

	if bucket == "" || key == "" {
		return 0, fmt.Errorf("invalid mirror url %q: want scheme://bucket/key", u)
	}

	obj, err := f.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch %s: %w", u, err)
	}
	defer obj.Close()

	n, err := io.Copy(w, obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
			return n, fmt.Errorf("fetch %s: %w", u, fetch.ErrNotFound)
		}

		return n, fmt.Errorf("failed to fetch %s: %w", u, err)
	}

	return n, nil
}
