// Package composer reads the package metadata of a Composer project: the root composer.json
// and the installed packages listed in vendor/composer/installed.json.
package composer

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/assetcompiler/internal/config"
	"git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
	"git.home.luguber.info/inful/assetcompiler/internal/git"
	"git.home.luguber.info/inful/assetcompiler/internal/logfields"
)

// ManifestFile is the Composer manifest of the root project.
const ManifestFile = "composer.json"

// Metadata describes one package known to the dependency repository.
type Metadata struct {
	Name        string
	Version     string
	Reference   string
	InstallPath string
	// Settings is the embedded extra.composer-asset-compiler block, if any.
	Settings json.RawMessage
	Root     bool
}

// Repository enumerates the root package and the installed packages.
type Repository interface {
	Root() (Metadata, error)
	Packages() ([]Metadata, error)
}

// Manifest is the subset of composer.json used by the compiler.
type Manifest struct {
	Name    string                     `json:"name"`
	Version string                     `json:"version"`
	Extra   map[string]json.RawMessage `json:"extra"`
	Config  struct {
		VendorDir string `json:"vendor-dir"`
	} `json:"config"`
}

// ReadManifest reads dir/composer.json.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("composer.json not found").WithContext("path", path).Build()
		}
		return nil, errors.FileSystemError("failed to read composer.json").WithCause(err).WithContext("path", path).Build()
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.ConfigError("invalid composer.json").WithCause(err).WithContext("path", path).Build()
	}
	return &m, nil
}

// InstalledRepository reads packages from vendor/composer/installed.json.
type InstalledRepository struct {
	rootDir     string
	manifest    *Manifest
	includeDev  bool
	headResolve func(dir string) (git.HeadInfo, error)
}

// NewInstalledRepository creates a repository for the project rooted at rootDir.
func NewInstalledRepository(rootDir string, includeDev bool) (*InstalledRepository, error) {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, errors.FileSystemError("failed to resolve root directory").WithCause(err).Build()
	}
	manifest, err := ReadManifest(abs)
	if err != nil {
		return nil, err
	}
	return &InstalledRepository{
		rootDir:     abs,
		manifest:    manifest,
		includeDev:  includeDev,
		headResolve: git.Head,
	}, nil
}

// RootDir returns the absolute root project directory.
func (r *InstalledRepository) RootDir() string { return r.rootDir }

// Manifest returns the root composer.json.
func (r *InstalledRepository) Manifest() *Manifest { return r.manifest }

// VendorDir returns the absolute vendor directory.
func (r *InstalledRepository) VendorDir() string {
	vendor := r.manifest.Config.VendorDir
	if vendor == "" {
		vendor = "vendor"
	}
	if filepath.IsAbs(vendor) {
		return filepath.Clean(vendor)
	}
	return filepath.Join(r.rootDir, vendor)
}

// Root returns the root package. Its version and reference fall back to git HEAD.
func (r *InstalledRepository) Root() (Metadata, error) {
	meta := Metadata{
		Name:        r.manifest.Name,
		Version:     r.manifest.Version,
		InstallPath: r.rootDir,
		Settings:    r.manifest.Extra[config.ExtraKey],
		Root:        true,
	}
	if meta.Name == "" {
		meta.Name = "__root__"
	}
	if head, err := r.headResolve(r.rootDir); err == nil {
		meta.Reference = head.Commit
		if meta.Version == "" {
			meta.Version = head.DevVersion()
		}
	} else {
		slog.Debug("Root package has no git reference", logfields.Path(r.rootDir), logfields.Error(err))
	}
	return meta, nil
}

// installedPackage is one entry of installed.json.
type installedPackage struct {
	Name              string                     `json:"name"`
	Version           string                     `json:"version"`
	VersionNormalized string                     `json:"version_normalized"`
	Type              string                     `json:"type"`
	InstallPath       string                     `json:"install-path"`
	Extra             map[string]json.RawMessage `json:"extra"`
	Source            *struct {
		Reference string `json:"reference"`
	} `json:"source"`
	Dist *struct {
		Reference string `json:"reference"`
	} `json:"dist"`
}

// Packages returns the installed packages in installed.json order. A missing installed.json
// yields no packages. Dev packages are skipped unless the repository includes them.
func (r *InstalledRepository) Packages() ([]Metadata, error) {
	composerDir := filepath.Join(r.VendorDir(), "composer")
	path := filepath.Join(composerDir, "installed.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Debug("No installed packages", logfields.Path(path))
		return nil, nil
	}
	if err != nil {
		return nil, errors.FileSystemError("failed to read installed.json").WithCause(err).WithContext("path", path).Build()
	}

	installed, devNames, err := parseInstalled(data)
	if err != nil {
		return nil, errors.ConfigError("invalid installed.json").WithCause(err).WithContext("path", path).Build()
	}

	out := make([]Metadata, 0, len(installed))
	for _, p := range installed {
		if p.Type == "metapackage" || p.Name == "" {
			continue
		}
		if !r.includeDev && devNames[p.Name] {
			continue
		}
		out = append(out, Metadata{
			Name:        p.Name,
			Version:     p.Version,
			Reference:   p.reference(),
			InstallPath: r.installPath(composerDir, p),
			Settings:    p.Extra[config.ExtraKey],
		})
	}
	return out, nil
}

func (p installedPackage) reference() string {
	if p.Source != nil && p.Source.Reference != "" {
		return p.Source.Reference
	}
	if p.Dist != nil {
		return p.Dist.Reference
	}
	return ""
}

func (r *InstalledRepository) installPath(composerDir string, p installedPackage) string {
	if p.InstallPath == "" {
		return filepath.Join(r.VendorDir(), filepath.FromSlash(p.Name))
	}
	if filepath.IsAbs(p.InstallPath) {
		return filepath.Clean(p.InstallPath)
	}
	return filepath.Join(composerDir, filepath.FromSlash(p.InstallPath))
}

// parseInstalled accepts both the Composer 2 object format and the Composer 1 list format.
func parseInstalled(data []byte) ([]installedPackage, map[string]bool, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var list []installedPackage
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, nil, err
		}
		return list, map[string]bool{}, nil
	}

	var doc struct {
		Packages        []installedPackage `json:"packages"`
		DevPackageNames []string           `json:"dev-package-names"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, err
	}
	dev := make(map[string]bool, len(doc.DevPackageNames))
	for _, name := range doc.DevPackageNames {
		dev[name] = true
	}
	return doc.Packages, dev, nil
}
