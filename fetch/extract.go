package fetch

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Extract unpacks the archive at src into the dest directory. The format is
// chosen by file name: .tar.gz, .tgz, .tar and .zip unpack as archives, a
// bare .gz decompresses into a single file named after the archive.
func Extract(src, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create extraction directory: %w", err)
	}

	switch {
	case strings.HasSuffix(src, ".tar.gz"), strings.HasSuffix(src, ".tgz"):
		return extractTar(src, dest, true)
	case strings.HasSuffix(src, ".tar"):
		return extractTar(src, dest, false)
	case strings.HasSuffix(src, ".zip"):
		return extractZip(src, dest)
	case strings.HasSuffix(src, ".gz"):
		return extractGzip(src, dest)
	default:
		return fmt.Errorf("unsupported archive format: %s", filepath.Base(src))
	}
}

// securePath resolves name below dest and rejects entries that would escape
// it through .. segments or absolute names.
func securePath(dest, name string) (string, error) {
	path := filepath.Join(dest, filepath.FromSlash(name))

	rel, err := filepath.Rel(dest, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes extraction directory", name)
	}

	return path, nil
}

func extractTar(src, dest string, compressed bool) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", src, err)
	}
	defer f.Close()

	var r io.Reader = f

	if compressed {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to read gzip stream of %s: %w", src, err)
		}
		defer gz.Close()

		r = gz
	}

	tr := tar.NewReader(r)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}

		if err != nil {
			return fmt.Errorf("failed to read archive %s: %w", src, err)
		}

		path, err := securePath(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", path, err)
			}
		case tar.TypeReg:
			if err := writeEntry(path, tr); err != nil {
				return err
			}
		default:
			// Symlinks and special files never occur in the dataset
			// releases; refuse rather than guess.
			return fmt.Errorf("unsupported entry type %d for %q in %s", hdr.Typeflag, hdr.Name, src)
		}
	}
}

func extractZip(src, dest string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", src, err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		path, err := securePath(dest, zf.Name)
		if err != nil {
			return err
		}

		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(path, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", path, err)
			}

			continue
		}

		rc, err := zf.Open()
		if err != nil {
			return fmt.Errorf("failed to read %q in %s: %w", zf.Name, src, err)
		}

		err = writeEntry(path, rc)
		_ = rc.Close()

		if err != nil {
			return err
		}
	}

	return nil
}

func extractGzip(src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", src, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to read gzip stream of %s: %w", src, err)
	}
	defer gz.Close()

	name := strings.TrimSuffix(filepath.Base(src), ".gz")

	return writeEntry(filepath.Join(dest, name), gz)
}

func writeEntry(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return f.Close()
}
