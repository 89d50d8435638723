// Package lock records a content hash per package so unchanged packages are not rebuilt.
package lock

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/assetcompiler/internal/foundation"
	"git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
	"git.home.luguber.info/inful/assetcompiler/internal/logfields"
)

const (
	// MarkerFile holds the hash of the last successful build.
	MarkerFile = ".composer_compiled_assets"
	// ManifestFile is the package file whose content decides whether a rebuild is needed.
	ManifestFile = "package.json"
)

// Target is the package a lock applies to.
type Target interface {
	Name() string
	Path() string
}

// Locker reads and writes lock markers for one environment.
type Locker struct {
	env string
}

func New(env string) *Locker {
	return &Locker{env: env}
}

// Hash returns the hash of the package manifest followed by the environment name.
func (l *Locker) Hash(t Target) (string, error) {
	path := filepath.Join(t.Path(), ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.LockError("failed to read package manifest").
			WithCause(err).
			WithContext("package", t.Name()).
			WithContext("path", path).
			Build()
	}
	h := sha256.New()
	h.Write(data)
	h.Write([]byte(l.env))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsLocked reports whether the stored hash equals the current one. Any read problem counts as
// not locked.
func (l *Locker) IsLocked(t Target) bool {
	marker := filepath.Join(t.Path(), MarkerFile)
	stored, err := os.ReadFile(marker)
	if os.IsNotExist(err) {
		return false
	}
	if err != nil {
		slog.Debug("Unreadable lock marker", logfields.Package(t.Name()), logfields.Path(marker), logfields.Error(err))
		return false
	}
	stored = bytes.TrimSpace(stored)
	if len(stored) == 0 {
		slog.Debug("Empty lock marker", logfields.Package(t.Name()), logfields.Path(marker))
		return false
	}

	current, err := l.Hash(t)
	if err != nil {
		slog.Debug("Cannot hash package", logfields.Package(t.Name()), logfields.Error(err))
		return false
	}
	return string(stored) == current
}

// Lock writes the current hash to the marker. Failures are reported as soft failures.
func (l *Locker) Lock(t Target) foundation.Outcome {
	hash, err := l.Hash(t)
	if err != nil {
		return foundation.SoftFailure("hash unavailable", err)
	}
	marker := filepath.Join(t.Path(), MarkerFile)
	if err := os.WriteFile(marker, []byte(hash), 0o644); err != nil {
		return foundation.SoftFailure("marker not written",
			errors.LockError("failed to write lock marker").
				WithCause(err).
				WithContext("package", t.Name()).
				WithContext("path", marker).
				Build())
	}
	return foundation.OK()
}
