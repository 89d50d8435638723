package workspace

import (
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
	"git.home.luguber.info/inful/assetcompiler/internal/logfields"
)

// Manager owns the scratch directory of one run. Downloads are staged below it before they
// are moved into a package.
type Manager struct {
	baseDir string
	tempDir string
}

// NewManager creates a workspace manager. An empty baseDir uses the system temp directory.
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir}
}

// Create creates the scratch directory. Calling it again is a no-op.
func (m *Manager) Create() error {
	if m.tempDir != "" {
		return nil
	}
	dir, err := os.MkdirTemp(m.baseDir, "assetcompiler-")
	if err != nil {
		return errors.FileSystemError("failed to create workspace directory").
			WithCause(err).
			WithContext("path", m.baseDir).
			Build()
	}
	m.tempDir = dir
	slog.Debug("Created workspace", logfields.Path(dir))
	return nil
}

// GetPath returns the scratch directory, or "" before Create.
func (m *Manager) GetPath() string {
	return m.tempDir
}

// Cleanup removes the scratch directory.
func (m *Manager) Cleanup() error {
	if m.tempDir == "" {
		return nil
	}
	if err := os.RemoveAll(m.tempDir); err != nil {
		return errors.FileSystemError("failed to clean up workspace").
			WithCause(err).
			WithContext("path", m.tempDir).
			Build()
	}
	slog.Debug("Cleaned up workspace", logfields.Path(m.tempDir))
	m.tempDir = ""
	return nil
}

// CreateSubdir creates a fresh, uniquely named directory inside the workspace.
func (m *Manager) CreateSubdir(prefix string) (string, error) {
	if err := m.Create(); err != nil {
		return "", err
	}
	dir, err := os.MkdirTemp(m.tempDir, prefix+"-")
	if err != nil {
		return "", errors.FileSystemError("failed to create workspace subdirectory").
			WithCause(err).
			WithContext("path", m.tempDir).
			Build()
	}
	return dir, nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether path is an existing directory.
func IsDir(path string) bool {
	stat, err := os.Stat(path)
	return err == nil && stat.IsDir()
}

// RemoveAll deletes path recursively. A missing path is not an error.
func RemoveAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return errors.FileSystemError("failed to remove directory").
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	return nil
}

// MergeDir copies the tree at src into dst, overwriting files that exist in both. Files only
// present in dst are kept.
func MergeDir(src, dst string) error {
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type().IsRegular():
			return copyFile(path, target)
		default:
			slog.Debug("Skipping non-regular file", logfields.Path(path))
			return nil
		}
	})
	if err != nil {
		return errors.FileSystemError("failed to copy directory").
			WithCause(err).
			WithContext("path", dst).
			Build()
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
