package fetch

import (
	"context"
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checksum(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func TestDownload(t *testing.T) {
	ctx := context.Background()

	content := []byte("annotations release payload")

	var hits atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)

		switch r.URL.Path {
		case "/release.json":
			_, _ = w.Write(content)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "release.json")
	item := Item{URL: srv.URL + "/release.json", Dest: dest, MD5: checksum(content)}

	var bytes atomic.Int64

	d := NewDownloader(func(o *Options) {
		o.Progress = func(_ Item, n int64) { bytes.Add(n) }
	})

	require.NoError(t, d.Download(ctx, item))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, int64(len(content)), bytes.Load())

	// A second run finds the intact file and never touches the server.
	require.NoError(t, d.Download(ctx, item))
	assert.Equal(t, int64(1), hits.Load())
}

func TestDownloadChecksumMismatch(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("corrupted"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "release.json")

	d := NewDownloader()
	err := d.Download(ctx, Item{URL: srv.URL + "/release.json", Dest: dest, MD5: checksum([]byte("original"))})
	require.ErrorContains(t, err, "checksum mismatch")

	// Neither the file nor its partial form survive a failed download.
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadNotFound(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d := NewDownloader()
	err := d.Download(ctx, Item{URL: srv.URL + "/missing", Dest: filepath.Join(t.TempDir(), "missing")})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDownloadUnknownScheme(t *testing.T) {
	ctx := context.Background()

	d := NewDownloader()
	err := d.Download(ctx, Item{URL: "gopher://host/file", Dest: filepath.Join(t.TempDir(), "file")})
	require.ErrorContains(t, err, "no fetcher registered")
}

func TestDownloadRedownloadsOnStaleChecksum(t *testing.T) {
	ctx := context.Background()

	content := []byte("fresh release")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(content)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "release.json")
	require.NoError(t, os.WriteFile(dest, []byte("stale"), 0o644))

	d := NewDownloader()
	require.NoError(t, d.Download(ctx, Item{URL: srv.URL + "/release.json", Dest: dest, MD5: checksum(content)}))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDownloadRateLimited(t *testing.T) {
	ctx := context.Background()

	content := make([]byte, 64)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(content)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "blob")

	// Generous limit: the point is that the limited path still delivers
	// every byte, not to measure timing.
	d := NewDownloader(func(o *Options) {
		o.RateLimit = 1 << 20
	})

	require.NoError(t, d.Download(ctx, Item{URL: srv.URL + "/blob", Dest: dest}))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Len(t, got, len(content))
}
