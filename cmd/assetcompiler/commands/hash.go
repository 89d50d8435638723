package commands

import (
	"context"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/assetcompiler/internal/lock"
	"git.home.luguber.info/inful/assetcompiler/internal/logfields"
)

// HashCmd implements the 'hash' command.
type HashCmd struct {
	EnvFlags `embed:""`
}

func (h *HashCmd) Run(_ context.Context, g *Global, root *CLI) error {
	project, err := LoadProject(root.Dir, h.EnvFlags)
	if err != nil {
		return err
	}
	locker := lock.New(project.Env.Env())
	for _, pkg := range project.Packages.All() {
		hash, err := locker.Hash(pkg)
		if err != nil {
			slog.Warn("Cannot hash package", logfields.Package(pkg.Name()), logfields.Error(err))
			continue
		}
		_, _ = fmt.Fprintf(g.Out, "%s  %s\n", hash, pkg.Name())
	}
	return nil
}
