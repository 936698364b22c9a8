// Package s3 fetches s3:// URLs through the AWS SDK transfer manager.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/corpusloom/loom/fetch"
)

// Fetcher resolves s3://bucket/key URLs.
type Fetcher struct {
	downloader *manager.Downloader
}

// NewFetcher creates a Fetcher around the given S3 client.
func NewFetcher(client manager.DownloadAPIClient) *Fetcher {
	return &Fetcher{
		// The fetch.Fetcher contract streams into an io.Writer, so parts
		// must arrive in order.
		downloader: manager.NewDownloader(client, func(d *manager.Downloader) {
			d.Concurrency = 1
		}),
	}
}

// Fetch implements fetch.Fetcher. The URL host is the bucket, the path is
// the object key.
func (f *Fetcher) Fetch(ctx context.Context, u *url.URL, w io.Writer) (int64, error) {
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")

	if bucket == "" || key == "" {
		return 0, fmt.Errorf("invalid s3 url %q: want s3://bucket/key", u)
	}

	n, err := f.downloader.Download(ctx, &sequentialWriterAt{w: w}, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return n, fmt.Errorf("fetch %s: %w", u, fetch.ErrNotFound)
		}

		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return n, fmt.Errorf("fetch %s: %w", u, fetch.ErrNotFound)
		}

		return n, fmt.Errorf("failed to fetch %s: %w", u, err)
	}

	return n, nil
}

// sequentialWriterAt adapts an io.Writer to the io.WriterAt the transfer
// manager wants. It only accepts in-order writes, which single-part
// downloads guarantee.
type sequentialWriterAt struct {
	w      io.Writer
	offset int64
}

func (s *sequentialWriterAt) WriteAt(p []byte, off int64) (int, error) {
	if off != s.offset {
		return 0, fmt.Errorf("out-of-order write at offset %d, expected %d", off, s.offset)
	}

	n, err := s.w.Write(p)
	s.offset += int64(n)

	return n, err
}
