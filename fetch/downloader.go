package fetch

import (
	"context"
	"crypto/md5" //nolint:gosec // release checksums are published as md5
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Item is one file to download.
type Item struct {
	// URL locates the remote file.
	URL string

	// Dest is the local path the file is written to.
	Dest string

	// MD5 is the expected checksum, as published by the dataset release.
	// Empty disables verification.
	MD5 string
}

// Options configures a Downloader.
type Options struct {
	// Concurrency bounds the number of parallel downloads.
	Concurrency int

	// RateLimit caps the aggregate download rate in bytes per second.
	// Zero means unlimited.
	RateLimit int

	// Client performs http and https requests. If nil, the default client
	// is used.
	Client *http.Client

	// Fetchers adds per-scheme fetchers beyond the built-in http and
	// https handling, e.g. "s3".
	Fetchers map[string]Fetcher

	// Progress, when set, is called with the incremental byte counts of
	// every download as it streams.
	Progress func(item Item, n int64)

	// Logger receives structured progress output. If nil, logging is
	// disabled.
	Logger *slog.Logger
}

// DefaultOptions are the options used when none are given.
var DefaultOptions = Options{
	Concurrency: 4,
}

// Downloader fetches release files in parallel, skipping files that are
// already present and intact.
type Downloader struct {
	fetchers    map[string]Fetcher
	concurrency int
	limiter     *rate.Limiter
	progress    func(item Item, n int64)
	logger      *slog.Logger
}

// NewDownloader creates a Downloader.
func NewDownloader(optFns ...func(o *Options)) *Downloader {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultOptions.Concurrency
	}

	httpFetcher := NewHTTPFetcher(opts.Client)

	fetchers := map[string]Fetcher{
		"http":  httpFetcher,
		"https": httpFetcher,
	}

	for scheme, f := range opts.Fetchers {
		fetchers[scheme] = f
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateLimit)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Downloader{
		fetchers:    fetchers,
		concurrency: opts.Concurrency,
		limiter:     limiter,
		progress:    opts.Progress,
		logger:      logger,
	}
}

// Download fetches every item, at most Concurrency at a time. The first
// failure cancels the remaining downloads.
func (d *Downloader) Download(ctx context.Context, items ...Item) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, item := range items {
		g.Go(func() error {
			return d.download(ctx, item)
		})
	}

	return g.Wait()
}

func (d *Downloader) download(ctx context.Context, item Item) error {
	ok, err := d.upToDate(item)
	if err != nil {
		return err
	}

	if ok {
		d.logger.InfoContext(ctx, "already downloaded", "url", item.URL, "dest", item.Dest)
		return nil
	}

	u, err := url.Parse(item.URL)
	if err != nil {
		return fmt.Errorf("failed to parse url %q: %w", item.URL, err)
	}

	fetcher, ok := d.fetchers[u.Scheme]
	if !ok {
		return fmt.Errorf("no fetcher registered for scheme %q (url %q)", u.Scheme, item.URL)
	}

	if err := os.MkdirAll(filepath.Dir(item.Dest), 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	// Download to a temp name and rename, so a partial file is never
	// mistaken for a finished one on the next run.
	part := item.Dest + ".part"

	f, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", part, err)
	}

	n, err := fetcher.Fetch(ctx, u, d.wrap(ctx, item, f))
	if err != nil {
		_ = f.Close()
		_ = os.Remove(part)

		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to finish %s: %w", part, err)
	}

	if item.MD5 != "" {
		sum, err := fileMD5(part)
		if err != nil {
			return err
		}

		if sum != item.MD5 {
			_ = os.Remove(part)
			return fmt.Errorf("checksum mismatch for %s: got %s, want %s", item.URL, sum, item.MD5)
		}
	}

	if err := os.Rename(part, item.Dest); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", part, err)
	}

	d.logger.InfoContext(ctx, "downloaded", "url", item.URL, "dest", item.Dest, "bytes", n)

	return nil
}

// upToDate reports whether the destination already holds the wanted file. A
// file without a published checksum only has to exist.
func (d *Downloader) upToDate(item Item) (bool, error) {
	if _, err := os.Stat(item.Dest); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to stat %s: %w", item.Dest, err)
	}

	if item.MD5 == "" {
		return true, nil
	}

	sum, err := fileMD5(item.Dest)
	if err != nil {
		return false, err
	}

	return sum == item.MD5, nil
}

// wrap layers the rate limiter and the progress callback over the
// destination writer.
func (d *Downloader) wrap(ctx context.Context, item Item, w io.Writer) io.Writer {
	if d.limiter != nil {
		w = &limitedWriter{ctx: ctx, limiter: d.limiter, w: w}
	}

	if d.progress != nil {
		w = &progressWriter{item: item, progress: d.progress, w: w}
	}

	return w
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for checksum: %w", path, err)
	}
	defer f.Close()

	h := md5.New() //nolint:gosec // integrity check against published sums, not security
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to checksum %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

type limitedWriter struct {
	ctx     context.Context
	limiter *rate.Limiter
	w       io.Writer
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	written := 0

	for len(p) > 0 {
		chunk := p
		if burst := lw.limiter.Burst(); len(chunk) > burst {
			chunk = chunk[:burst]
		}

		if err := lw.limiter.WaitN(lw.ctx, len(chunk)); err != nil {
			return written, err
		}

		n, err := lw.w.Write(chunk)
		written += n

		if err != nil {
			return written, err
		}

		p = p[n:]
	}

	return written, nil
}

type progressWriter struct {
	item     Item
	progress func(item Item, n int64)
	w        io.Writer
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	if n > 0 {
		pw.progress(pw.item, int64(n))
	}

	return n, err
}
