package commands

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/assetcompiler/internal/composer"
	"git.home.luguber.info/inful/assetcompiler/internal/config"
	"git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
	"git.home.luguber.info/inful/assetcompiler/internal/lock"
	"git.home.luguber.info/inful/assetcompiler/internal/logfields"
	"git.home.luguber.info/inful/assetcompiler/internal/watch"
	"git.home.luguber.info/inful/assetcompiler/internal/workspace"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	EnvFlags `embed:""`
	Debounce time.Duration `help:"Quiet period before recompiling" default:"500ms"`
}

func (w *WatchCmd) Run(ctx context.Context, _ *Global, root *CLI) error {
	project, err := LoadProject(root.Dir, w.EnvFlags)
	if err != nil {
		return err
	}

	compile := func(ctx context.Context) error {
		err := RunCompile(ctx, root.Dir, w.EnvFlags, "")
		if err != nil && !errors.HasCategory(err, errors.CategoryBuild) {
			return err
		}
		// Package failures were reported; keep watching.
		return nil
	}
	if err := compile(ctx); err != nil {
		return err
	}

	dirs := WatchDirs(project)
	slog.Info("Waiting for changes", slog.Int("directories", len(dirs)), logfields.Path(project.Dir))
	return watch.New(dirs, WatchedFiles(), compile).WithDebounce(w.Debounce).Run(ctx)
}

// WatchedFiles are the file names that trigger a recompile.
func WatchedFiles() []string {
	names := []string{lock.ManifestFile, composer.ManifestFile, "installed.json"}
	return append(names, config.SettingsFiles...)
}

// WatchDirs returns the project directory, the Composer metadata directory and every package
// directory, without duplicates.
func WatchDirs(project *Project) []string {
	seen := map[string]bool{}
	var dirs []string
	add := func(dir string) {
		if dir == "" || seen[dir] || !workspace.IsDir(dir) {
			return
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}
	add(project.Dir)
	add(filepath.Join(project.Repo.VendorDir(), "composer"))
	for _, pkg := range project.Packages.All() {
		add(pkg.Path())
	}
	return dirs
}
