// Package commands selects the JavaScript package manager and builds its command lines.
package commands

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/assetcompiler/internal/config"
	"git.home.luguber.info/inful/assetcompiler/internal/foundation"
	"git.home.luguber.info/inful/assetcompiler/internal/logfields"
	"git.home.luguber.info/inful/assetcompiler/internal/placeholders"
)

// Manager identifies a package manager.
type Manager string

const (
	Yarn Manager = "yarn"
	Npm  Manager = "npm"
)

var managerNormalizer = foundation.NewNormalizer(map[string]Manager{
	"yarn": Yarn,
	"npm":  Npm,
}, "")

// YarnLockFile marks a project managed with Yarn.
const YarnLockFile = "yarn.lock"

// LookPathFunc locates an executable, as exec.LookPath does.
type LookPathFunc func(file string) (string, error)

type templates struct {
	install string
	update  string
	script  string
}

var builtin = map[Manager]templates{
	Yarn: {install: "yarn install", update: "yarn upgrade", script: "yarn run %s"},
	Npm:  {install: "npm install", update: "npm update", script: "npm run %s"},
}

// Resolver holds the package manager chosen for a run.
type Resolver struct {
	manager   Manager
	templates templates
}

// NewResolver probes, in order: the configured override, a yarn.lock in workingDir, a yarn
// executable and an npm executable. A nil lookPath uses exec.LookPath.
func NewResolver(workingDir string, override config.CommandsConfig, lookPath LookPathFunc) *Resolver {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	r := &Resolver{manager: detect(workingDir, override.Manager, lookPath)}
	r.templates = builtin[r.manager]

	// Custom templates without a manager still make the resolver usable.
	if override.Install != "" {
		r.templates.install = override.Install
	}
	if override.Update != "" {
		r.templates.update = override.Update
	}
	if override.Script != "" {
		r.templates.script = override.Script
	}
	if r.manager == "" && r.templates != (templates{}) {
		r.manager = "custom"
	}

	slog.Debug("Package manager resolved", logfields.Manager(string(r.manager)), logfields.Path(workingDir))
	return r
}

func detect(workingDir, configured string, lookPath LookPathFunc) Manager {
	if m := managerNormalizer.Normalize(configured); m != "" {
		return m
	}
	if _, err := os.Stat(filepath.Join(workingDir, YarnLockFile)); err == nil {
		return Yarn
	}
	if _, err := lookPath(string(Yarn)); err == nil {
		return Yarn
	}
	if _, err := lookPath(string(Npm)); err == nil {
		return Npm
	}
	return ""
}

// IsValid reports whether a package manager is usable.
func (r *Resolver) IsValid() bool {
	return r.manager != ""
}

func (r *Resolver) Name() string { return string(r.manager) }

func (r *Resolver) InstallCmd() string { return r.templates.install }

func (r *Resolver) UpdateCmd() string { return r.templates.update }

// ScriptCmd builds the command running script. Placeholders in the script are resolved with
// the package's own variables.
func (r *Resolver) ScriptCmd(script string, p placeholders.Placeholders, vars map[string]string) string {
	script = p.Replace(script, vars)
	if r.templates.script == "" {
		return script
	}
	if !strings.Contains(r.templates.script, "%s") {
		return r.templates.script + " " + script
	}
	return strings.Replace(r.templates.script, "%s", script, 1)
}
