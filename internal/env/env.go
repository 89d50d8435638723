// Package env resolves the active build environment and selects environment variants
// from settings blocks.
//
// An environment variant block is a mapping whose keys are environment names or one of the
// two magic keys [DefaultKey] and [DefaultNoDevKey]:
//
//	{
//	  "$default":        {"script": "build:dev"},
//	  "$default-no-dev": {"script": "build"},
//	  "production":      {"script": "build:prod"}
//	}
package env

import (
	"os"
	"strings"

	"git.home.luguber.info/inful/assetcompiler/internal/foundation"
)

const (
	// DefaultKey selects the variant used when nothing more specific matches.
	DefaultKey = "$default"
	// DefaultNoDevKey selects the variant used in no-dev mode when no named environment matches.
	DefaultNoDevKey = "$default-no-dev"

	// VarName is the environment variable read when no environment is given explicitly.
	VarName = "COMPOSER_ASSETS_COMPILER"
)

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Resolver holds the active environment name and dev/no-dev mode for one run.
type Resolver struct {
	name string
	dev  bool
}

// New creates a Resolver for the given environment name and dev flag.
func New(name string, dev bool) *Resolver {
	return &Resolver{name: strings.TrimSpace(name), dev: dev}
}

// FromEnvironment creates a Resolver whose name is resolved with ResolveName against the
// process environment.
func FromEnvironment(explicit string, dev bool) *Resolver {
	return New(ResolveName(explicit, os.LookupEnv), dev)
}

// ResolveName returns the first non-empty environment name from, in order: the explicit
// argument and the COMPOSER_ASSETS_COMPILER environment variable. It returns "" when none is set.
func ResolveName(explicit string, lookup LookupFunc) string {
	if name := strings.TrimSpace(explicit); name != "" {
		return name
	}
	if lookup == nil {
		return ""
	}
	if value, ok := lookup(VarName); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

// Env returns the resolved environment name, or "".
func (r *Resolver) Env() string {
	return r.name
}

// IsDev reports whether dev dependencies and dev variants are enabled.
func (r *Resolver) IsDev() bool {
	return r.dev
}

// SelectVariant picks the variant for the active environment from a variant block.
// Priority: exact environment name, then $default-no-dev when not in dev mode, then $default.
// Variants whose value is not a mapping are ignored. None means "no override".
func (r *Resolver) SelectVariant(variants map[string]any) foundation.Option[map[string]any] {
	if len(variants) == 0 {
		return foundation.None[map[string]any]()
	}

	keys := make([]string, 0, 3)
	if r.name != "" {
		keys = append(keys, r.name)
	}
	if !r.dev {
		keys = append(keys, DefaultNoDevKey)
	}
	keys = append(keys, DefaultKey)

	for _, key := range keys {
		if value, ok := variants[key]; ok {
			if settings, isMap := value.(map[string]any); isMap {
				return foundation.Some(settings)
			}
		}
	}
	return foundation.None[map[string]any]()
}
