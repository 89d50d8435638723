// Package precompile replaces a package build with a prebuilt archive.
//
// An Adapter tries to place the artifact for a package in its target directory. A miss is a
// soft failure: the compiler logs the reason and falls back to the regular build.
package precompile

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"

	"git.home.luguber.info/inful/assetcompiler/internal/foundation"
	"git.home.luguber.info/inful/assetcompiler/internal/logfields"
	"git.home.luguber.info/inful/assetcompiler/internal/placeholders"
)

// Request describes one pre-compilation attempt.
type Request struct {
	Name      string
	Hash      string
	Source    string
	TargetDir string
	Config    map[string]any
	Version   string
	// CacheKey identifies the package build state; downloads with the same key and URL are
	// fetched once per run.
	CacheKey string
	// Placeholders and Vars resolve ${...} tokens in the adapter settings.
	Placeholders placeholders.Placeholders
	Vars         map[string]string
}

func (r Request) replace(s string) string {
	return r.Placeholders.Replace(s, r.Vars)
}

func (r Request) configString(key string) string {
	s, _ := r.Config[key].(string)
	return r.replace(s)
}

// Adapter fetches a prebuilt artifact. TryPrecompiled returns OK when the artifact was placed
// in the target directory.
type Adapter interface {
	ID() string
	TryPrecompiled(ctx context.Context, req Request) foundation.Outcome
}

// Registry holds the adapters by ID.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: map[string]Adapter{}}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds a, replacing an adapter with the same ID.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.ID()] = a
}

func (r *Registry) Get(id string) (Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// IDs returns the registered adapter IDs, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Try runs the adapter with the given ID. Unknown adapters and panics become soft failures.
func (r *Registry) Try(ctx context.Context, id string, req Request) (outcome foundation.Outcome) {
	a, ok := r.Get(id)
	if !ok {
		return foundation.SoftFailure(fmt.Sprintf("unknown adapter %q (available: %s)", id, strings.Join(r.IDs(), ", ")), nil)
	}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Debug("Adapter panicked", logfields.Adapter(id), logfields.Package(req.Name),
				slog.Any("panic", rec), slog.String("stack", string(debug.Stack())))
			outcome = foundation.SoftFailure(fmt.Sprintf("adapter panicked: %v", rec), nil)
		}
	}()
	return a.TryPrecompiled(ctx, req)
}
