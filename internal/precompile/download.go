package precompile

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
	"git.home.luguber.info/inful/assetcompiler/internal/logfields"
	"git.home.luguber.info/inful/assetcompiler/internal/workspace"
)

// Archive formats understood by the downloader.
const (
	DistZip   = "zip"
	DistTar   = "tar"
	DistTarGz = "tar.gz"
	DistTarXz = "tar.xz"
	DistTarBz = "tar.bz2"
)

// Dist is an archive to download. Key, when set, lets repeated downloads of the same URL in
// one run reuse the fetched archive.
type Dist struct {
	Key  string
	Type string
	URL  string
}

// Downloader downloads an archive and unpacks it into a directory.
type Downloader interface {
	Download(ctx context.Context, dist Dist, targetDir string) error
}

// ArchiveDownloader stages downloads in the run workspace and merges the unpacked tree into
// the target directory. An archive holding a single top-level directory is unwrapped.
type ArchiveDownloader struct {
	fetcher   Fetcher
	workspace *workspace.Manager
	// archives maps cache keys to fetched archive files in the workspace.
	archives map[string]string
}

func NewArchiveDownloader(fetcher Fetcher, ws *workspace.Manager) *ArchiveDownloader {
	return &ArchiveDownloader{fetcher: fetcher, workspace: ws, archives: map[string]string{}}
}

func (d *ArchiveDownloader) Download(ctx context.Context, dist Dist, targetDir string) error {
	distType := strings.ToLower(strings.TrimSpace(dist.Type))
	if distType == "" {
		distType = DistTypeFromURL(dist.URL)
	}

	archivePath, err := d.fetch(ctx, dist)
	if err != nil {
		return err
	}

	staging, err := d.workspace.CreateSubdir("unpack")
	if err != nil {
		return err
	}
	defer func() { _ = workspace.RemoveAll(staging) }()

	if err := extract(distType, archivePath, staging); err != nil {
		return errors.PrecompileError("failed to unpack archive").
			WithCause(err).
			WithContext("type", distType).
			WithContext("url", redact(dist.URL)).
			Build()
	}

	root := unwrapSingleDir(staging)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return errors.FileSystemError("failed to create target directory").
			WithCause(err).
			WithContext("path", targetDir).
			Build()
	}
	slog.Debug("Unpacking archive", logfields.URL(redact(dist.URL)), logfields.Path(targetDir))
	return workspace.MergeDir(root, targetDir)
}

// fetch returns the path of the downloaded archive, reusing an earlier download with the same
// key and URL. Archives stay in the workspace until it is cleaned up.
func (d *ArchiveDownloader) fetch(ctx context.Context, dist Dist) (string, error) {
	cacheKey := ""
	if dist.Key != "" {
		cacheKey = dist.Key + "\x00" + dist.URL
		if path, ok := d.archives[cacheKey]; ok && workspace.Exists(path) {
			slog.Debug("Reusing downloaded archive", logfields.URL(redact(dist.URL)), logfields.Path(path))
			return path, nil
		}
	}

	dir, err := d.workspace.CreateSubdir("download")
	if err != nil {
		return "", err
	}
	archivePath := filepath.Join(dir, "archive")
	file, err := os.Create(archivePath)
	if err != nil {
		_ = workspace.RemoveAll(dir)
		return "", errors.FileSystemError("failed to create archive file").WithCause(err).Build()
	}
	if err := d.fetcher.Fetch(ctx, dist.URL, file); err != nil {
		_ = file.Close()
		_ = workspace.RemoveAll(dir)
		return "", err
	}
	if err := file.Close(); err != nil {
		_ = workspace.RemoveAll(dir)
		return "", errors.FileSystemError("failed to write archive file").WithCause(err).Build()
	}
	if cacheKey != "" {
		d.archives[cacheKey] = archivePath
	}
	return archivePath, nil
}

// DistTypeFromURL guesses the archive format from the URL path; zip when unknown.
func DistTypeFromURL(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	p = strings.ToLower(path.Base(p))
	switch {
	case strings.HasSuffix(p, ".tar.gz"), strings.HasSuffix(p, ".tgz"):
		return DistTarGz
	case strings.HasSuffix(p, ".tar.xz"), strings.HasSuffix(p, ".txz"):
		return DistTarXz
	case strings.HasSuffix(p, ".tar.bz2"), strings.HasSuffix(p, ".tbz2"):
		return DistTarBz
	case strings.HasSuffix(p, ".tar"):
		return DistTar
	default:
		return DistZip
	}
}

func extract(distType, archivePath, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	if distType == DistZip {
		return extractZip(archivePath, dest)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	var r io.Reader
	switch distType {
	case DistTar:
		r = f
	case DistTarGz:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer func() { _ = gz.Close() }()
		r = gz
	case DistTarXz:
		xr, err := xz.NewReader(f)
		if err != nil {
			return err
		}
		r = xr
	case DistTarBz:
		r = bzip2.NewReader(f)
	default:
		return errors.ValidationError("unsupported archive type").WithContext("type", distType).Build()
	}
	return extractTar(r, dest)
}

func extractZip(archivePath, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = zr.Close() }()

	for _, f := range zr.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeFile(target, rc, f.Mode().Perm())
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTar(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, os.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		default:
			slog.Debug("Skipping archive entry", logfields.Path(hdr.Name))
		}
	}
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	// #nosec G110 -- archives come from the project's configured release sources
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// safeJoin rejects entries that would land outside dest.
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	if target != dest && !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
		return "", errors.ValidationError("archive entry escapes target directory").
			WithContext("entry", name).
			Build()
	}
	return target, nil
}

func unwrapSingleDir(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 || !entries[0].IsDir() {
		return dir
	}
	return filepath.Join(dir, entries[0].Name())
}

// redact hides credentials in URLs written to logs and errors.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
