package config

import (
	"maps"
	"strings"

	"git.home.luguber.info/inful/assetcompiler/internal/env"
	"git.home.luguber.info/inful/assetcompiler/internal/foundation"
	"git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
)

// Dependencies selects the dependency step of a package build.
type Dependencies string

const (
	DependenciesNone    Dependencies = "none"
	DependenciesInstall Dependencies = "install"
	DependenciesUpdate  Dependencies = "update"
)

var dependenciesNormalizer = foundation.NewNormalizer(map[string]Dependencies{
	"none":    DependenciesNone,
	"install": DependenciesInstall,
	"update":  DependenciesUpdate,
}, DependenciesNone)

// PreCompiledConfig configures one pre-compilation adapter attempt.
type PreCompiledConfig struct {
	Adapter string
	Source  string
	Target  string
	Version string
	Config  map[string]any
}

// Resolved is the immutable build configuration of one package.
type Resolved struct {
	dependencies  Dependencies
	scripts       []string
	env           map[string]string
	preCompiled   []PreCompiledConfig
	autoDiscover  bool
	stopOnFailure bool
	wipe          WipePolicy
}

func (r *Resolved) Dependencies() Dependencies { return r.dependencies }

// Scripts returns a copy of the scripts to run, in order.
func (r *Resolved) Scripts() []string { return append([]string(nil), r.scripts...) }

// Env returns a copy of the additional process environment.
func (r *Resolved) Env() map[string]string { return maps.Clone(r.env) }

// PreCompiled returns the adapter attempts in declaration order.
func (r *Resolved) PreCompiled() []PreCompiledConfig {
	return append([]PreCompiledConfig(nil), r.preCompiled...)
}

func (r *Resolved) AutoDiscover() bool  { return r.autoDiscover }
func (r *Resolved) StopOnFailure() bool { return r.stopOnFailure }
func (r *Resolved) Wipe() WipePolicy    { return r.wipe }

// HasWork reports whether the package has a dependency step or at least one script.
func (r *Resolved) HasWork() bool {
	return r.dependencies != DependenciesNone || len(r.scripts) > 0
}

// Resolver merges root defaults, package settings and environment variants.
type Resolver struct {
	root *RootConfig
	env  *env.Resolver
}

// NewResolver creates a Resolver for one run.
func NewResolver(root *RootConfig, envResolver *env.Resolver) *Resolver {
	return &Resolver{root: root, env: envResolver}
}

// Resolve produces the configuration for a package. With forceDefaults the package's own
// settings are ignored and only the root defaults apply; this requires root defaults.
func (r *Resolver) Resolve(name string, settings RawSettings, forceDefaults bool) (*Resolved, error) {
	if forceDefaults && !r.root.HasDefaults() {
		return nil, errors.ConfigError("force-defaults requires root defaults").
			WithContext("package", name).
			Build()
	}

	merged := RawSettings{}
	if r.root.HasDefaults() {
		merged = r.root.Defaults.clone()
	}
	if !forceDefaults {
		merged.overlay(settings)
	}
	return r.finish(name, merged)
}

// ResolveRoot produces the configuration of the root project from its own settings. The
// root defaults apply to the other packages only.
func (r *Resolver) ResolveRoot(name string, settings RawSettings) (*Resolved, error) {
	merged := RawSettings{}
	merged.overlay(settings)
	return r.finish(name, merged)
}

func (r *Resolver) finish(name string, merged RawSettings) (*Resolved, error) {

	if variants, ok := merged[KeyEnv].(map[string]any); ok {
		if selected, found := r.env.SelectVariant(variants).Get(); found {
			merged.overlay(selected)
		}
	}
	delete(merged, KeyEnv)

	resolved, err := r.normalize(merged)
	if err != nil {
		if classified, ok := errors.AsClassified(err); ok {
			return nil, classified.WithContext("package", name)
		}
		return nil, err
	}
	return resolved, nil
}

func (r *Resolver) normalize(merged RawSettings) (*Resolved, error) {
	out := &Resolved{
		dependencies:  DependenciesNone,
		autoDiscover:  r.root.AutoDiscover,
		stopOnFailure: r.root.StopOnFailure,
		wipe:          r.root.Wipe,
	}

	switch v := merged[KeyDependencies].(type) {
	case nil:
	case bool:
		if v {
			out.dependencies = DependenciesInstall
		}
	case string:
		deps, err := dependenciesNormalizer.NormalizeWithError(v)
		if err != nil {
			return nil, invalidKey(KeyDependencies, "must be none, install or update", v)
		}
		out.dependencies = deps
	default:
		return nil, invalidKey(KeyDependencies, "must be none, install or update", v)
	}

	scripts, err := scriptList(merged[KeyScript])
	if err != nil {
		return nil, err
	}
	out.scripts = scripts

	out.env = maps.Clone(r.root.DefaultEnv)
	if out.env == nil {
		out.env = map[string]string{}
	}
	packageEnv, err := stringMap(merged, KeyDefaultEnv)
	if err != nil {
		return nil, err
	}
	maps.Copy(out.env, packageEnv)

	if out.preCompiled, err = preCompiledList(merged[KeyPreCompiled]); err != nil {
		return nil, err
	}
	return out, nil
}

func scriptList(v any) ([]string, error) {
	var items []any
	switch typed := v.(type) {
	case nil:
		return nil, nil
	case string:
		items = []any{typed}
	case []any:
		items = typed
	default:
		return nil, invalidKey(KeyScript, "must be a string or a list of strings", v)
	}

	scripts := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, invalidKey(KeyScript, "must be a string or a list of strings", item)
		}
		if s = strings.TrimSpace(s); s != "" {
			scripts = append(scripts, s)
		}
	}
	return scripts, nil
}

func preCompiledList(v any) ([]PreCompiledConfig, error) {
	var items []any
	switch typed := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		items = []any{typed}
	case []any:
		items = typed
	default:
		return nil, invalidKey(KeyPreCompiled, "must be a mapping or a list of mappings", v)
	}

	out := make([]PreCompiledConfig, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, invalidKey(KeyPreCompiled, "entries must be mappings", item)
		}
		var pc PreCompiledConfig
		var err error
		if pc.Adapter, err = stringValue(m, "adapter"); err != nil {
			return nil, err
		}
		if pc.Adapter == "" {
			return nil, invalidKey(KeyPreCompiled+".adapter", "is required", m)
		}
		if pc.Source, err = stringValue(m, "source"); err != nil {
			return nil, err
		}
		if pc.Target, err = stringValue(m, "target"); err != nil {
			return nil, err
		}
		if pc.Version, err = stringValue(m, "version"); err != nil {
			return nil, err
		}
		if cfg, isMap := m["config"].(map[string]any); isMap {
			pc.Config = cfg
		} else if m["config"] != nil {
			return nil, invalidKey(KeyPreCompiled+".config", "must be a mapping", m["config"])
		}
		out = append(out, pc)
	}
	return out, nil
}
