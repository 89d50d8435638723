package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetcompiler/internal/commands"
	"git.home.luguber.info/inful/assetcompiler/internal/composer"
	"git.home.luguber.info/inful/assetcompiler/internal/config"
	"git.home.luguber.info/inful/assetcompiler/internal/env"
	"git.home.luguber.info/inful/assetcompiler/internal/foundation"
	ferrors "git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
	"git.home.luguber.info/inful/assetcompiler/internal/lock"
	"git.home.luguber.info/inful/assetcompiler/internal/packages"
	"git.home.luguber.info/inful/assetcompiler/internal/placeholders"
	"git.home.luguber.info/inful/assetcompiler/internal/precompile"
	"git.home.luguber.info/inful/assetcompiler/internal/process"
)

type call struct {
	command string
	cwd     string
}

// fakeExecutor records commands and answers with configured exit codes.
type fakeExecutor struct {
	calls  []call
	codes  map[string]int
	onRun  map[string]func(cwd string)
	panics map[string]bool
}

func newExecutor() *fakeExecutor {
	return &fakeExecutor{codes: map[string]int{}, onRun: map[string]func(string){}, panics: map[string]bool{}}
}

func (f *fakeExecutor) Execute(_ context.Context, command string, _ process.Sink, cwd string, _ map[string]string) (int, error) {
	f.calls = append(f.calls, call{command, cwd})
	if f.panics[command] {
		panic("executor exploded")
	}
	if fn := f.onRun[command]; fn != nil {
		fn(cwd)
	}
	return f.codes[command], nil
}

func (f *fakeExecutor) commands() []string {
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.command)
	}
	return out
}

type fixture struct {
	t        *testing.T
	rootDir  string
	root     *config.RootConfig
	resolver *config.Resolver
	set      *packages.Set
	exec     *fakeExecutor
}

func newFixture(t *testing.T, rootSettings string) *fixture {
	t.Helper()
	dir := t.TempDir()
	settings, err := config.LoadSettings(dir, json.RawMessage(rootSettings))
	require.NoError(t, err)
	root, err := config.NewRootConfig(dir, settings)
	require.NoError(t, err)
	return &fixture{
		t:        t,
		rootDir:  dir,
		root:     root,
		resolver: config.NewResolver(root, env.New("production", false)),
		set:      packages.NewSet(),
		exec:     newExecutor(),
	}
}

func (f *fixture) add(name, settings string) *packages.Package {
	f.t.Helper()
	return f.addVersion(name, "1.0.0", settings)
}

func (f *fixture) addVersion(name, version, settings string) *packages.Package {
	f.t.Helper()
	path := filepath.Join(f.rootDir, "vendor", filepath.FromSlash(name))
	require.NoError(f.t, os.MkdirAll(path, 0o755))
	require.NoError(f.t, os.WriteFile(filepath.Join(path, lock.ManifestFile), []byte(`{"name": "`+name+`"}`), 0o644))

	var raw config.RawSettings
	require.NoError(f.t, json.Unmarshal([]byte(settings), &raw))
	resolved, err := f.resolver.Resolve(name, raw, false)
	require.NoError(f.t, err)
	pkg, err := packages.Factory{}.Create(composer.Metadata{Name: name, Version: version, InstallPath: path}, resolved)
	require.NoError(f.t, err)
	f.set.Add(pkg)
	return pkg
}

func (f *fixture) compiler(adapters ...precompile.Adapter) *Compiler {
	return New(Options{
		RootDir:       f.rootDir,
		Env:           env.New("production", false),
		Commands:      commands.NewResolver(f.rootDir, config.CommandsConfig{Manager: "yarn"}, nil),
		Executor:      f.exec,
		Locker:        lock.New("production"),
		Adapters:      precompile.NewRegistry(adapters...),
		StopOnFailure: f.root.StopOnFailure,
		Environ:       func() []string { return []string{"CI=true"} },
	})
}

func (f *fixture) run(c *Compiler) *Summary {
	f.t.Helper()
	summary, err := c.Run(context.Background(), f.set)
	require.NoError(f.t, err)
	return summary
}

func TestRun_FullPipelineThenLocked(t *testing.T) {
	f := newFixture(t, `{}`)
	pkg := f.add("me/foo", `{"dependencies": "install", "script": ["build", "test"]}`)

	summary := f.run(f.compiler())
	require.False(t, summary.Failed)
	require.NoError(t, summary.Err())
	require.Equal(t, []State{StateDependenciesDone, StateScriptDone, StateSuccess}, summary.Results[0].States)
	require.Equal(t, []string{"yarn install", "yarn run build", "yarn run test"}, f.exec.commands())
	require.Equal(t, pkg.Path(), f.exec.calls[0].cwd)
	require.FileExists(t, filepath.Join(pkg.Path(), lock.MarkerFile))

	f.exec.calls = nil
	summary = f.run(f.compiler())
	require.Equal(t, StateSkippedLocked, summary.Results[0].Final())
	require.Empty(t, f.exec.calls)
}

func TestRun_DependencyFailureSkipsScripts(t *testing.T) {
	f := newFixture(t, `{}`)
	pkg := f.add("me/foo", `{"dependencies": "update", "script": "build"}`)
	f.exec.codes["yarn upgrade"] = 1

	summary := f.run(f.compiler())
	require.True(t, summary.Failed)
	require.Equal(t, []string{"yarn upgrade"}, f.exec.commands())
	require.Equal(t, []State{StateFailed}, summary.Results[0].States)
	require.Contains(t, summary.Results[0].Failures[0], "exited with code 1")
	require.NoFileExists(t, filepath.Join(pkg.Path(), lock.MarkerFile))

	err := summary.Err()
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryBuild))
	require.Contains(t, err.Error(), "me/foo")
}

func TestRun_ScriptFailureRunsRemainingScripts(t *testing.T) {
	f := newFixture(t, `{}`)
	pkg := f.add("me/foo", `{"script": ["lint", "build"]}`)
	f.exec.codes["yarn run lint"] = 2

	summary := f.run(f.compiler())
	require.True(t, summary.Failed)
	require.Equal(t, []string{"yarn run lint", "yarn run build"}, f.exec.commands())
	require.Len(t, summary.Results[0].Failures, 1)
	require.NoFileExists(t, filepath.Join(pkg.Path(), lock.MarkerFile))

	var report bytes.Buffer
	summary.WriteReport(&report)
	require.Contains(t, report.String(), "- me/foo\n")
	require.Contains(t, report.String(), `  - script: "yarn run lint" exited with code 2`)
}

func TestRun_ScriptPlaceholders(t *testing.T) {
	f := newFixture(t, `{}`)
	f.add("me/foo", `{"script": "build --env=${env} --ci=${CI} --target=${TARGET}", "default-env": {"TARGET": "web"}}`)

	f.run(f.compiler())
	require.Equal(t, []string{"yarn run build --env=production --ci=true --target=web"}, f.exec.commands())
}

type fakeAdapter struct {
	outcome  foundation.Outcome
	requests []precompile.Request
}

func (a *fakeAdapter) ID() string { return "fake" }
func (a *fakeAdapter) TryPrecompiled(_ context.Context, req precompile.Request) foundation.Outcome {
	a.requests = append(a.requests, req)
	return a.outcome
}

func TestRun_PreCompiledShortCircuits(t *testing.T) {
	f := newFixture(t, `{}`)
	pkg := f.add("me/foo", `{
		"dependencies": "install",
		"script": "build",
		"pre-compiled": {"adapter": "fake", "source": "assets-${version}", "target": "dist"}
	}`)
	adapter := &fakeAdapter{outcome: foundation.OK()}

	summary := f.run(f.compiler(adapter))
	require.Equal(t, []State{StatePreCompiled, StateSuccess}, summary.Results[0].States)
	require.Empty(t, f.exec.calls)
	require.FileExists(t, filepath.Join(pkg.Path(), lock.MarkerFile))

	require.Len(t, adapter.requests, 1)
	req := adapter.requests[0]
	require.Equal(t, filepath.Join(pkg.Path(), "dist"), req.TargetDir)
	require.Equal(t, "1.0.0", req.Version)
	require.NotEmpty(t, req.Hash)
	require.Equal(t, "production", req.Placeholders.Env())

	hash, err := lock.New("production").Hash(pkg)
	require.NoError(t, err)
	require.Equal(t, hash, req.Hash)
	require.Equal(t, placeholders.New("production", hash, "1.0.0", "").UUID(), req.CacheKey)
}

func TestRun_PreCompiledVersionFallback(t *testing.T) {
	f := newFixture(t, `{"stop-on-failure": false}`)
	f.addVersion("me/dev", "dev-main", `{"script": "build", "pre-compiled": {"adapter": "fake"}}`)
	f.addVersion("me/beta", "2.0.0-beta1", `{"script": "build", "pre-compiled": {"adapter": "fake"}}`)
	f.addVersion("me/pinned", "dev-main", `{"script": "build", "pre-compiled": {"adapter": "fake", "version": "1.4.0"}}`)
	f.addVersion("me/stable", "1.3.0", `{"script": "build", "pre-compiled": {"adapter": "fake"}}`)
	adapter := &fakeAdapter{outcome: foundation.SoftFailure("asset not found", nil)}

	f.run(f.compiler(adapter))
	require.Len(t, adapter.requests, 4)
	versions := map[string]string{}
	for _, req := range adapter.requests {
		versions[req.Name] = req.Version
	}
	require.Equal(t, map[string]string{
		"me/dev":    "",
		"me/beta":   "",
		"me/pinned": "1.4.0",
		"me/stable": "1.3.0",
	}, versions)
}

func TestRun_PreCompiledMissFallsBack(t *testing.T) {
	f := newFixture(t, `{}`)
	f.add("me/foo", `{"script": "build", "pre-compiled": [{"adapter": "fake"}, {"adapter": "unknown"}]}`)
	adapter := &fakeAdapter{outcome: foundation.SoftFailure("asset not found", nil)}

	summary := f.run(f.compiler(adapter))
	require.Equal(t, StateSuccess, summary.Results[0].Final())
	require.False(t, summary.Results[0].Has(StatePreCompiled))
	require.Equal(t, []string{"yarn run build"}, f.exec.commands())
}

func TestRun_StopOnFailure(t *testing.T) {
	f := newFixture(t, `{}`)
	f.add("me/first", `{"script": "fail"}`)
	f.add("me/second", `{"script": "build"}`)
	f.exec.codes["yarn run fail"] = 1

	summary := f.run(f.compiler())
	require.True(t, summary.Failed)
	require.True(t, summary.Stopped)
	require.Len(t, summary.Results, 1)
	require.Equal(t, []string{"yarn run fail"}, f.exec.commands())
}

func TestRun_ContinueOnFailureStillFailsRun(t *testing.T) {
	f := newFixture(t, `{"stop-on-failure": false}`)
	f.add("me/first", `{"script": "fail"}`)
	f.add("me/second", `{"script": "build"}`)
	f.exec.codes["yarn run fail"] = 1

	summary := f.run(f.compiler())
	require.True(t, summary.Failed)
	require.False(t, summary.Stopped)
	require.Len(t, summary.Results, 2)
	require.Equal(t, StateSuccess, summary.Results[1].Final())
	require.Len(t, summary.FailedPackages(), 1)
	require.Error(t, summary.Err())
}

func TestRun_WipePolicy(t *testing.T) {
	createNodeModules := func(cwd string) {
		_ = os.MkdirAll(filepath.Join(cwd, NodeModulesDir, "dep"), 0o755)
	}

	t.Run("wipes node_modules created by the build", func(t *testing.T) {
		f := newFixture(t, `{"wipe-node-modules": true}`)
		pkg := f.add("me/foo", `{"dependencies": "install"}`)
		f.exec.onRun["yarn install"] = createNodeModules

		summary := f.run(f.compiler())
		require.True(t, summary.Results[0].Has(StateWiped))
		require.NoDirExists(t, filepath.Join(pkg.Path(), NodeModulesDir))
	})

	t.Run("keeps pre-existing node_modules", func(t *testing.T) {
		f := newFixture(t, `{"wipe-node-modules": true}`)
		pkg := f.add("me/foo", `{"dependencies": "install"}`)
		createNodeModules(pkg.Path())

		summary := f.run(f.compiler())
		require.False(t, summary.Results[0].Has(StateWiped))
		require.DirExists(t, filepath.Join(pkg.Path(), NodeModulesDir))
	})

	t.Run("force wipes pre-existing node_modules", func(t *testing.T) {
		f := newFixture(t, `{"wipe-node-modules": "force"}`)
		pkg := f.add("me/foo", `{"dependencies": "install"}`)
		createNodeModules(pkg.Path())

		summary := f.run(f.compiler())
		require.True(t, summary.Results[0].Has(StateWiped))
		require.Equal(t, StateSuccess, summary.Results[0].Final())
	})

	t.Run("wipe failure keeps the package successful", func(t *testing.T) {
		f := newFixture(t, `{"wipe-node-modules": true}`)
		pkg := f.add("me/foo", `{"dependencies": "install"}`)
		f.exec.onRun["yarn install"] = createNodeModules

		c := f.compiler()
		var removed []string
		c.opts.RemoveAll = func(path string) error {
			removed = append(removed, path)
			return errors.New("permission denied")
		}

		summary := f.run(c)
		require.Equal(t, []string{filepath.Join(pkg.Path(), NodeModulesDir)}, removed)
		require.False(t, summary.Failed)
		require.NoError(t, summary.Err())
		require.Equal(t, StateSuccess, summary.Results[0].Final())
		require.False(t, summary.Results[0].Has(StateWiped))
		require.Empty(t, summary.Results[0].Failures)
		require.FileExists(t, filepath.Join(pkg.Path(), lock.MarkerFile))
		require.DirExists(t, filepath.Join(pkg.Path(), NodeModulesDir))
	})

	t.Run("pattern restricts the packages", func(t *testing.T) {
		f := newFixture(t, `{"wipe-node-modules": ["other/*"]}`)
		pkg := f.add("me/foo", `{"dependencies": "install"}`)
		f.exec.onRun["yarn install"] = createNodeModules

		summary := f.run(f.compiler())
		require.False(t, summary.Results[0].Has(StateWiped))
		require.DirExists(t, filepath.Join(pkg.Path(), NodeModulesDir))
	})
}

func TestRun_PanicBecomesPackageFailure(t *testing.T) {
	f := newFixture(t, `{"stop-on-failure": false}`)
	f.add("me/foo", `{"script": "explode"}`)
	f.add("me/bar", `{"script": "build"}`)
	f.exec.panics["yarn run explode"] = true

	summary := f.run(f.compiler())
	require.True(t, summary.Failed)
	require.Equal(t, StateFailed, summary.Results[0].Final())
	require.Contains(t, summary.Results[0].Failures[0], "executor exploded")
	require.Equal(t, StateSuccess, summary.Results[1].Final())
}

func TestRun_NothingToDo(t *testing.T) {
	f := newFixture(t, `{}`)
	pkg := f.add("me/foo", `{}`)

	summary := f.run(f.compiler())
	require.Equal(t, []State{StateSkippedNothingToDo}, summary.Results[0].States)
	require.False(t, summary.Failed)
	require.NoFileExists(t, filepath.Join(pkg.Path(), lock.MarkerFile))
}

func TestRun_NoPackageManager(t *testing.T) {
	f := newFixture(t, `{}`)
	f.add("me/foo", `{"script": "build"}`)

	c := New(Options{
		RootDir:  f.rootDir,
		Commands: commands.NewResolver(t.TempDir(), config.CommandsConfig{}, func(string) (string, error) { return "", errors.New("missing") }),
		Executor: f.exec,
		Locker:   lock.New(""),
	})
	_, err := c.Run(context.Background(), f.set)
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryPackageManager))
	require.Empty(t, f.exec.calls)
}

func TestRun_Canceled(t *testing.T) {
	f := newFixture(t, `{}`)
	f.add("me/foo", `{"script": "build"}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.compiler().Run(ctx, f.set)
	require.NoError(t, err)
	require.True(t, summary.Canceled)
	require.Error(t, summary.Err())
	require.Empty(t, f.exec.calls)
}
