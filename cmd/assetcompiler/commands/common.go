package commands

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	pm "git.home.luguber.info/inful/assetcompiler/internal/commands"
	"git.home.luguber.info/inful/assetcompiler/internal/compiler"
	"git.home.luguber.info/inful/assetcompiler/internal/composer"
	"git.home.luguber.info/inful/assetcompiler/internal/config"
	"git.home.luguber.info/inful/assetcompiler/internal/env"
	"git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
	"git.home.luguber.info/inful/assetcompiler/internal/lock"
	"git.home.luguber.info/inful/assetcompiler/internal/logfields"
	"git.home.luguber.info/inful/assetcompiler/internal/metrics"
	"git.home.luguber.info/inful/assetcompiler/internal/packages"
	"git.home.luguber.info/inful/assetcompiler/internal/precompile"
	"git.home.luguber.info/inful/assetcompiler/internal/process"
	"git.home.luguber.info/inful/assetcompiler/internal/workspace"
)

// Global carries state shared by all subcommands.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Dir     string           `short:"C" help:"Project root directory (containing composer.json)" default:"." type:"existingdir"`
	Verbose bool             `short:"v" help:"Enable verbose logging, including command output"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Compile  CompileCmd  `cmd:"" default:"withargs" help:"Compile the assets of all discovered packages"`
	Discover DiscoverCmd `cmd:"" help:"List the packages that would be compiled"`
	Hash     HashCmd     `cmd:"" help:"Print the lock hash of each package"`
	Watch    WatchCmd    `cmd:"" help:"Compile, then recompile whenever package manifests change"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// EnvFlags select the environment and dev mode.
type EnvFlags struct {
	Env   string `help:"Environment name; defaults to the COMPOSER_ASSETS_COMPILER variable" placeholder:"NAME"`
	NoDev bool   `name:"no-dev" help:"Use no-dev environment defaults and skip dev packages"`
}

// Project is a loaded Composer project with its discovered packages.
type Project struct {
	Dir      string
	Env      *env.Resolver
	Repo     *composer.InstalledRepository
	Root     *config.RootConfig
	Packages *packages.Set
}

// LoadProject reads the project settings and discovers the packages to compile.
func LoadProject(dir string, flags EnvFlags) (*Project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.FileSystemError("failed to resolve project directory").WithCause(err).Build()
	}
	if err := config.LoadDotEnv(abs); err != nil {
		return nil, err
	}
	envResolver := env.FromEnvironment(flags.Env, !flags.NoDev)

	repo, err := composer.NewInstalledRepository(abs, !flags.NoDev)
	if err != nil {
		return nil, err
	}
	rootMeta, err := repo.Root()
	if err != nil {
		return nil, err
	}
	settings, err := config.LoadSettings(abs, rootMeta.Settings)
	if err != nil {
		return nil, err
	}
	root, err := config.NewRootConfig(abs, settings)
	if err != nil {
		return nil, err
	}

	set, err := packages.NewFinder(repo, root, config.NewResolver(root, envResolver)).Find()
	if err != nil {
		return nil, err
	}
	slog.Debug("Packages discovered",
		slog.Int("count", set.Len()),
		logfields.Env(envResolver.Env()),
		slog.Bool("dev", envResolver.IsDev()))

	return &Project{Dir: abs, Env: envResolver, Repo: repo, Root: root, Packages: set}, nil
}

// NewCompiler wires the compiler for a project. The workspace holds downloads and must be
// cleaned up by the caller.
func (p *Project) NewCompiler(ws *workspace.Manager, recorder metrics.Recorder) *compiler.Compiler {
	client := precompile.NewClient(nil)
	downloader := precompile.NewArchiveDownloader(client, ws)
	registry := precompile.NewRegistry(
		precompile.NewGitHubReleaseZipAdapter(client, downloader),
		precompile.NewArchiveAdapter(downloader),
	)
	return compiler.New(compiler.Options{
		RootDir:       p.Dir,
		Env:           p.Env,
		Commands:      pm.NewResolver(p.Dir, p.Root.Commands, nil),
		Executor:      process.ShellExecutor{},
		Locker:        lock.New(p.Env.Env()),
		Adapters:      registry,
		Recorder:      recorder,
		StopOnFailure: p.Root.StopOnFailure,
	})
}

// CleanupWorkspace removes the workspace, logging failures.
func CleanupWorkspace(ws *workspace.Manager) {
	if err := ws.Cleanup(); err != nil {
		slog.Warn("Failed to clean up workspace", logfields.Error(err))
	}
}
