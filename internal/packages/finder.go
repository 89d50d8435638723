package packages

import (
	"encoding/json"
	"log/slog"

	"git.home.luguber.info/inful/assetcompiler/internal/composer"
	"git.home.luguber.info/inful/assetcompiler/internal/config"
	"git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
	"git.home.luguber.info/inful/assetcompiler/internal/logfields"
)

// SettingsLoader loads the settings of a package directory.
type SettingsLoader func(dir string, embedded json.RawMessage) (*config.Settings, error)

// Finder builds the ordered set of packages to compile.
type Finder struct {
	repo     composer.Repository
	root     *config.RootConfig
	resolver *config.Resolver
	factory  Factory
	load     SettingsLoader
}

// NewFinder creates a Finder. Package settings are read with config.LoadSettings.
func NewFinder(repo composer.Repository, root *config.RootConfig, resolver *config.Resolver) *Finder {
	return &Finder{
		repo:     repo,
		root:     root,
		resolver: resolver,
		load:     config.LoadSettings,
	}
}

// WithSettingsLoader replaces the settings loader.
func (f *Finder) WithSettingsLoader(load SettingsLoader) *Finder {
	f.load = load
	return f
}

// Find enumerates the root package and the installed packages, applies the package rules and
// resolves each included package. The root package is not built unless an exact rule names
// it; it then comes first.
//
// With stop-on-failure an invalid package configuration, or an exact include rule naming no
// known package, fails discovery. Otherwise such packages are skipped.
func (f *Finder) Find() (*Set, error) {
	matcher, err := NewMatcher(f.root.Packages)
	if err != nil {
		return nil, err
	}

	rootMeta, err := f.repo.Root()
	if err != nil {
		return nil, err
	}
	installed, err := f.repo.Packages()
	if err != nil {
		return nil, err
	}
	candidates := append([]composer.Metadata{rootMeta}, installed...)

	names := make([]string, 0, len(candidates))
	for _, meta := range candidates {
		names = append(names, meta.Name)
	}
	for _, rule := range matcher.Unsatisfied(names) {
		if f.root.StopOnFailure {
			return nil, errors.ConfigError("required package not found").
				WithContext("package", rule.Pattern).
				Build()
		}
		slog.Debug("Package rule matches no package", logfields.Package(rule.Pattern))
	}

	set := NewSet()
	for _, meta := range candidates {
		pkg, err := f.discover(matcher, meta)
		if err != nil {
			if f.root.StopOnFailure {
				return nil, err
			}
			slog.Debug("Skipping package with invalid configuration",
				logfields.Package(meta.Name), logfields.Error(err))
			continue
		}
		if pkg == nil {
			continue
		}
		// The root package supplies the working directory; it is only built when a rule
		// names it explicitly and it declares work.
		if pkg.IsRoot() && !(namesRoot(matcher, meta.Name) && pkg.HasWork()) {
			continue
		}
		set.Add(pkg)
	}
	return set, nil
}

// discover returns nil without error for excluded packages.
func (f *Finder) discover(matcher *Matcher, meta composer.Metadata) (*Package, error) {
	rule, matched := matcher.Match(meta.Name)
	if matched && rule.Directive == config.DirectiveExclude {
		slog.Debug("Package excluded", logfields.Package(meta.Name), logfields.Reason(rule.Pattern))
		return nil, nil
	}
	if !matched && !f.root.AutoDiscover {
		return nil, nil
	}

	forceDefaults := matched && rule.Directive == config.DirectiveForceDefaults
	var settings config.RawSettings
	switch {
	case forceDefaults:
	case matched && rule.Settings != nil:
		settings = rule.Settings
	default:
		loaded, err := f.load(meta.InstallPath, meta.Settings)
		if err != nil {
			return nil, withPackage(err, meta.Name)
		}
		if loaded != nil {
			settings = loaded.Raw
		}
		// Auto-discovered packages must declare their own settings.
		if !matched && loaded == nil {
			return nil, nil
		}
	}

	var resolved *config.Resolved
	var err error
	if meta.Root && !forceDefaults {
		resolved, err = f.resolver.ResolveRoot(meta.Name, settings)
	} else {
		resolved, err = f.resolver.Resolve(meta.Name, settings, forceDefaults)
	}
	if err != nil {
		return nil, err
	}
	return f.factory.Create(meta, resolved)
}

func namesRoot(matcher *Matcher, name string) bool {
	rule, ok := matcher.Match(name)
	return ok && rule.IsExact() && rule.Directive != config.DirectiveExclude
}

func withPackage(err error, name string) error {
	if classified, ok := errors.AsClassified(err); ok {
		return classified.WithContext("package", name)
	}
	return errors.WrapError(err, errors.CategoryConfig, "invalid package settings").
		WithContext("package", name).
		Build()
}
