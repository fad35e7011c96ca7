package platform

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const archiveChunkSize = 64 * 1024

// DefaultMaxArchiveBytes is the archive size ceiling when MAX_ARCHIVE_BYTES
// is not configured (50 MiB).
const DefaultMaxArchiveBytes = 50 * 1024 * 1024

// ArchiveFetcher streams repository snapshots from the platform's tarball
// endpoint, enforcing a size bound while reading.
type ArchiveFetcher struct {
	BaseURL  string
	MaxBytes int64
	Client   *http.Client
}

// NewArchiveFetcher returns a fetcher against the public API host.
func NewArchiveFetcher(maxBytes int64) *ArchiveFetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxArchiveBytes
	}
	return &ArchiveFetcher{
		BaseURL:  "https://api.github.com",
		MaxBytes: maxBytes,
		Client:   &http.Client{Timeout: 5 * time.Minute},
	}
}

// Download fetches the gzipped tarball for (owner, name, ref), following
// redirects, reading in 64 KiB chunks and aborting as soon as the cumulative
// size exceeds the bound.
func (f *ArchiveFetcher) Download(ctx context.Context, owner, name, ref, token string) ([]byte, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/tarball/%s", f.BaseURL, owner, name, ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive download returned status %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	chunk := make([]byte, archiveChunkSize)
	var total int64
	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			total += int64(n)
			if total > f.MaxBytes {
				return nil, fmt.Errorf("Archive exceeds max size (%d bytes)", f.MaxBytes)
			}
			buf.Write(chunk[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("reading archive stream: %w", readErr)
		}
	}
	log.Debug().Int64("bytes", total).Str("repo", owner+"/"+name).Str("ref", ref).Msg("Archive downloaded")
	return buf.Bytes(), nil
}

// ExtractArchive unpacks a gzipped tarball into dest. Every entry must
// resolve inside dest; entries with absolute paths or ".." components are
// rejected, symlinks and other special entries are skipped.
func ExtractArchive(archive []byte, dest string) error {
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		target, err := safeJoin(dest, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("creating directory for %s: %w", header.Name, err)
			}
			file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode)&0o777|0o400)
			if err != nil {
				return fmt.Errorf("creating file %s: %w", header.Name, err)
			}
			if _, err := io.Copy(file, tr); err != nil {
				file.Close()
				return fmt.Errorf("writing file %s: %w", header.Name, err)
			}
			file.Close()
		default:
			log.Debug().Str("name", header.Name).Msg("Skipping special archive entry")
		}
	}
	return nil
}

// safeJoin resolves name under dest, rejecting traversal outside of it.
func safeJoin(dest, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("archive entry has absolute path: %s", name)
	}
	target := filepath.Join(dest, name)
	if target != dest && !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry escapes extraction directory: %s", name)
	}
	return target, nil
}

// WorkDir returns the directory scanners should run in: when the archive
// extracted to a single top-level directory (the platform's tarballs do),
// that directory, otherwise the scratch directory itself.
func WorkDir(scratch string) string {
	entries, err := os.ReadDir(scratch)
	if err != nil {
		return scratch
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(scratch, entries[0].Name())
	}
	return scratch
}
