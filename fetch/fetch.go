// Package fetch downloads dataset distribution archives and unpacks them
// into the local layout the metadata sources read from.
//
// A Downloader fans a list of items out over a bounded worker group. Each
// URL scheme is served by a Fetcher; http and https are built in, object
// storage schemes plug in via the subpackages. Downloads can be checksum
// verified and byte-rate limited.
package fetch

import (
	"context"
	"io"
	"net/url"
	"os"
)

// ErrNotFound is returned when the resource behind a URL does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Fetcher retrieves the content behind one URL and streams it into w.
// Implementations handle a single URL scheme; the Downloader routes by
// scheme.
type Fetcher interface {
	// Fetch writes the content behind u into w and returns the number of
	// bytes written.
	Fetch(ctx context.Context, u *url.URL, w io.Writer) (int64, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, u *url.URL, w io.Writer) (int64, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, u *url.URL, w io.Writer) (int64, error) {
	return f(ctx, u, w)
}
