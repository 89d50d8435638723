package packages

import (
	"path/filepath"

	"git.home.luguber.info/inful/assetcompiler/internal/composer"
	"git.home.luguber.info/inful/assetcompiler/internal/config"
	"git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
)

// Factory builds Package entities from repository metadata.
type Factory struct{}

// Create builds a Package. The install path is made absolute.
func (Factory) Create(meta composer.Metadata, resolved *config.Resolved) (*Package, error) {
	if meta.InstallPath == "" {
		return nil, errors.NotFoundError("package has no install path").
			WithContext("package", meta.Name).
			Build()
	}
	path, err := filepath.Abs(meta.InstallPath)
	if err != nil {
		return nil, errors.FileSystemError("failed to resolve package path").
			WithCause(err).
			WithContext("package", meta.Name).
			Build()
	}
	return &Package{
		name:      meta.Name,
		path:      path,
		version:   meta.Version,
		reference: meta.Reference,
		root:      meta.Root,
		config:    resolved,
	}, nil
}
