// Package packages discovers the packages to build and models them as Package entities.
package packages

import (
	"maps"

	"git.home.luguber.info/inful/assetcompiler/internal/config"
)

// Package is one buildable package with its resolved configuration.
type Package struct {
	name      string
	path      string
	version   string
	reference string
	root      bool
	config    *config.Resolved
}

func (p *Package) Name() string { return p.name }

// Path is the absolute package directory.
func (p *Package) Path() string { return p.path }

func (p *Package) Version() string   { return p.version }
func (p *Package) Reference() string { return p.reference }

// IsRoot reports whether this is the root project.
func (p *Package) IsRoot() bool { return p.root }

func (p *Package) IsInstall() bool {
	return p.config.Dependencies() == config.DependenciesInstall
}

func (p *Package) IsUpdate() bool {
	return p.config.Dependencies() == config.DependenciesUpdate
}

func (p *Package) Scripts() []string { return p.config.Scripts() }

// Env returns the package-scoped variables used for placeholders and the process environment.
func (p *Package) Env() map[string]string { return maps.Clone(p.config.Env()) }

func (p *Package) PreCompiled() []config.PreCompiledConfig { return p.config.PreCompiled() }

// HasWork reports whether the package has a dependency step or scripts to run.
func (p *Package) HasWork() bool { return p.config.HasWork() }

// Config returns the resolved configuration.
func (p *Package) Config() *config.Resolved { return p.config }
