// Package compiler drives the per-package build pipeline: lock check, pre-compilation,
// dependency step, scripts, node_modules cleanup and lock write.
package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"git.home.luguber.info/inful/assetcompiler/internal/commands"
	"git.home.luguber.info/inful/assetcompiler/internal/config"
	"git.home.luguber.info/inful/assetcompiler/internal/env"
	"git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
	"git.home.luguber.info/inful/assetcompiler/internal/lock"
	"git.home.luguber.info/inful/assetcompiler/internal/logfields"
	"git.home.luguber.info/inful/assetcompiler/internal/metrics"
	"git.home.luguber.info/inful/assetcompiler/internal/packages"
	"git.home.luguber.info/inful/assetcompiler/internal/placeholders"
	"git.home.luguber.info/inful/assetcompiler/internal/precompile"
	"git.home.luguber.info/inful/assetcompiler/internal/process"
	"git.home.luguber.info/inful/assetcompiler/internal/workspace"
)

// NodeModulesDir is the dependency directory removed by the wipe policy.
const NodeModulesDir = "node_modules"

// Options configures a Compiler. Commands, Executor and Locker are required.
type Options struct {
	RootDir       string
	Env           *env.Resolver
	Commands      *commands.Resolver
	Executor      process.Executor
	Locker        *lock.Locker
	Adapters      *precompile.Registry
	Recorder      metrics.Recorder
	StopOnFailure bool
	// Environ supplies the process variables available to placeholders; os.Environ when nil.
	Environ func() []string
	// RemoveAll deletes node_modules; workspace.RemoveAll when nil.
	RemoveAll func(path string) error
}

// Compiler runs the build pipeline over a package set, one package at a time.
type Compiler struct {
	opts Options
}

func New(opts Options) *Compiler {
	if opts.Env == nil {
		opts.Env = env.New("", true)
	}
	if opts.Adapters == nil {
		opts.Adapters = precompile.NewRegistry()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ
	}
	if opts.RemoveAll == nil {
		opts.RemoveAll = workspace.RemoveAll
	}
	return &Compiler{opts: opts}
}

// Run compiles the packages in order. Package failures are recorded in the summary; the
// returned error is reserved for conditions that prevent the run, such as a missing package
// manager.
func (c *Compiler) Run(ctx context.Context, set *packages.Set) (*Summary, error) {
	restore := strictMode()
	defer restore()

	start := time.Now()
	summary := &Summary{}
	defer func() {
		summary.Duration = time.Since(start)
		c.opts.Recorder.ObserveRunDuration(summary.Duration)
		switch {
		case summary.Canceled:
			c.opts.Recorder.IncRunOutcome(metrics.RunCanceled)
		case summary.Failed:
			c.opts.Recorder.IncRunOutcome(metrics.RunFailed)
		default:
			c.opts.Recorder.IncRunOutcome(metrics.RunSuccess)
		}
	}()

	if set.Len() == 0 {
		slog.Info("No packages to compile")
		return summary, nil
	}
	if !c.opts.Commands.IsValid() {
		return summary, errors.PackageManagerError("no usable package manager found (yarn or npm)").
			WithContext("path", c.opts.RootDir).
			Build()
	}
	slog.Info("Compiling packages",
		slog.Int("count", set.Len()),
		logfields.Env(c.opts.Env.Env()),
		logfields.Manager(c.opts.Commands.Name()))

	for _, pkg := range set.All() {
		if ctx.Err() != nil {
			summary.Canceled = true
			break
		}
		res := c.compilePackage(ctx, pkg)
		summary.Results = append(summary.Results, res)
		c.report(res)

		if res.Failed() {
			summary.Failed = true
			if c.opts.StopOnFailure {
				summary.Stopped = true
				break
			}
		}
	}
	return summary, nil
}

func (c *Compiler) report(res Result) {
	c.opts.Recorder.ObservePackageDuration(res.Package, res.Duration)
	attrs := []any{logfields.Package(res.Package), logfields.Status(string(res.Final())), logfields.DurationMS(float64(res.Duration.Milliseconds()))}

	switch res.Final() {
	case StateFailed:
		c.opts.Recorder.IncPackageResult(metrics.ResultFailed)
		slog.Error("Package failed", append(attrs, logfields.Reason(strings.Join(res.Failures, "; ")))...)
		return
	case StateSkippedLocked:
		c.opts.Recorder.IncPackageResult(metrics.ResultLocked)
	case StateSkippedNothingToDo:
		c.opts.Recorder.IncPackageResult(metrics.ResultNothingToDo)
	default:
		if res.Has(StatePreCompiled) {
			c.opts.Recorder.IncPackageResult(metrics.ResultPrecompiled)
		} else {
			c.opts.Recorder.IncPackageResult(metrics.ResultSuccess)
		}
	}
	slog.Info("Package done", attrs...)
}

// compilePackage runs the pipeline for one package. Panics are recovered here and turn the
// package into a failure.
func (c *Compiler) compilePackage(ctx context.Context, pkg *packages.Package) (res Result) {
	res.Package = pkg.Name()
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Debug("Package panicked", logfields.Package(pkg.Name()),
				slog.Any("panic", rec), slog.String("stack", string(debug.Stack())))
			res.fail(fmt.Sprintf("unexpected error: %v", rec))
			res.enter(StateFailed)
		}
		res.Duration = time.Since(start)
	}()

	log := slog.With(logfields.Package(pkg.Name()))

	if c.opts.Locker.IsLocked(pkg) {
		res.enter(StateSkippedLocked)
		return res
	}
	if !pkg.HasWork() && len(pkg.PreCompiled()) == 0 {
		res.enter(StateSkippedNothingToDo)
		return res
	}

	hash, err := c.opts.Locker.Hash(pkg)
	if err != nil {
		log.Debug("Package hash unavailable", logfields.Error(err))
	}
	ph := placeholders.New(c.opts.Env.Env(), hash, pkg.Version(), pkg.Reference())
	vars := c.vars(pkg)

	if c.tryPreCompiled(ctx, pkg, ph, vars) {
		res.enter(StatePreCompiled)
		c.lock(pkg)
		res.enter(StateSuccess)
		return res
	}
	if !pkg.HasWork() {
		res.enter(StateSkippedNothingToDo)
		return res
	}

	nodeModules := filepath.Join(pkg.Path(), NodeModulesDir)
	hadNodeModules := workspace.Exists(nodeModules)

	if cmd, step := c.dependencyCmd(pkg); cmd != "" {
		if !c.run(ctx, pkg, step, cmd, &res) {
			res.enter(StateFailed)
			return res
		}
		res.enter(StateDependenciesDone)
	}

	if scripts := pkg.Scripts(); len(scripts) > 0 {
		succeeded := 0
		for _, script := range scripts {
			if c.run(ctx, pkg, "script", c.opts.Commands.ScriptCmd(script, ph, vars), &res) {
				succeeded++
			}
		}
		if succeeded != len(scripts) {
			log.Debug("Scripts failed", slog.Int("succeeded", succeeded), slog.Int("total", len(scripts)))
			res.enter(StateFailed)
			return res
		}
		res.enter(StateScriptDone)
	}

	if c.wipe(pkg, nodeModules, hadNodeModules) {
		res.enter(StateWiped)
	}
	c.lock(pkg)
	res.enter(StateSuccess)
	return res
}

func (c *Compiler) dependencyCmd(pkg *packages.Package) (cmd, step string) {
	switch {
	case pkg.IsInstall():
		return c.opts.Commands.InstallCmd(), string(config.DependenciesInstall)
	case pkg.IsUpdate():
		return c.opts.Commands.UpdateCmd(), string(config.DependenciesUpdate)
	default:
		return "", ""
	}
}

// run executes one command in the package directory and records a failure reason.
func (c *Compiler) run(ctx context.Context, pkg *packages.Package, step, cmd string, res *Result) bool {
	code, err := c.opts.Executor.Execute(ctx, cmd, process.LogSink(pkg.Name()), pkg.Path(), pkg.Env())
	ok := err == nil && code == 0
	c.opts.Recorder.IncCommand(step, ok)
	switch {
	case err != nil:
		res.fail(fmt.Sprintf("%s: %q could not run: %v", step, cmd, err))
	case code != 0:
		res.fail(fmt.Sprintf("%s: %q exited with code %d", step, cmd, code))
	default:
		slog.Debug("Command succeeded", logfields.Package(pkg.Name()), logfields.Step(step), logfields.Command(cmd))
	}
	return ok
}

func (c *Compiler) tryPreCompiled(ctx context.Context, pkg *packages.Package, ph placeholders.Placeholders, vars map[string]string) bool {
	for _, pc := range pkg.PreCompiled() {
		// Development versions such as dev-main never name a release.
		version := pc.Version
		if version == "" && ph.HasStableVersion() {
			version = ph.Version()
		}
		req := precompile.Request{
			Name:         pkg.Name(),
			Hash:         ph.Hash(),
			Source:       pc.Source,
			TargetDir:    targetDir(pkg.Path(), ph.Replace(pc.Target, vars)),
			Config:       pc.Config,
			Version:      version,
			CacheKey:     ph.UUID(),
			Placeholders: ph,
			Vars:         vars,
		}
		outcome := c.opts.Adapters.Try(ctx, pc.Adapter, req)
		c.opts.Recorder.IncPrecompileAttempt(pc.Adapter, outcome.IsOK())
		if outcome.IsOK() {
			slog.Debug("Pre-compiled assets installed", logfields.Package(pkg.Name()), logfields.Adapter(pc.Adapter))
			return true
		}
		slog.Debug("Pre-compiled assets not available", logfields.Package(pkg.Name()),
			logfields.Adapter(pc.Adapter), logfields.Reason(outcome.Reason), logfields.Error(outcome.Err))
	}
	return false
}

// wipe applies the wipe policy. Failures are logged and never fail the package.
func (c *Compiler) wipe(pkg *packages.Package, nodeModules string, existedBefore bool) bool {
	policy := pkg.Config().Wipe()
	rel, err := filepath.Rel(c.opts.RootDir, pkg.Path())
	if err != nil {
		rel = pkg.Path()
	}
	if !policy.Applies(pkg.Name(), rel) || !workspace.Exists(nodeModules) {
		return false
	}
	if policy.Mode == config.WipeIfCreated && existedBefore {
		return false
	}
	if err := c.opts.RemoveAll(nodeModules); err != nil {
		slog.Debug("Could not wipe node_modules", logfields.Package(pkg.Name()), logfields.Error(err))
		return false
	}
	return true
}

func (c *Compiler) lock(pkg *packages.Package) {
	if outcome := c.opts.Locker.Lock(pkg); !outcome.IsOK() {
		slog.Debug("Lock not written", logfields.Package(pkg.Name()),
			logfields.Reason(outcome.Reason), logfields.Error(outcome.Err))
	}
}

// vars merges the process environment with the package variables; package values win.
func (c *Compiler) vars(pkg *packages.Package) map[string]string {
	out := map[string]string{}
	for _, kv := range c.opts.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			out[k] = v
		}
	}
	for k, v := range pkg.Env() {
		out[k] = v
	}
	return out
}

// targetDir resolves a configured target below the package directory.
func targetDir(pkgPath, target string) string {
	if target == "" {
		return pkgPath
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Join(pkgPath, target)
}
