package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"git.home.luguber.info/inful/assetcompiler/internal/lock"
	"git.home.luguber.info/inful/assetcompiler/internal/packages"
)

// DiscoverCmd implements the 'discover' command.
type DiscoverCmd struct {
	EnvFlags `embed:""`
}

func (d *DiscoverCmd) Run(_ context.Context, g *Global, root *CLI) error {
	project, err := LoadProject(root.Dir, d.EnvFlags)
	if err != nil {
		return err
	}
	return WritePackages(g.Out, project, lock.New(project.Env.Env()))
}

// WritePackages prints one line per package in build order.
func WritePackages(out io.Writer, project *Project, locker *lock.Locker) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PACKAGE\tPATH\tDEPENDENCIES\tSCRIPTS\tPRE-COMPILED\tLOCKED")
	for _, pkg := range project.Packages.All() {
		rel, err := filepath.Rel(project.Dir, pkg.Path())
		if err != nil {
			rel = pkg.Path()
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n",
			pkg.Name(),
			rel,
			pkg.Config().Dependencies(),
			orDash(strings.Join(pkg.Scripts(), ", ")),
			orDash(adapterIDs(pkg)),
			locker.IsLocked(pkg),
		)
	}
	return tw.Flush()
}

func adapterIDs(pkg *packages.Package) string {
	ids := make([]string, 0, len(pkg.PreCompiled()))
	for _, pc := range pkg.PreCompiled() {
		ids = append(ids, pc.Adapter)
	}
	return strings.Join(ids, ", ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
