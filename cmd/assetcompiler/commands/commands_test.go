package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
	"git.home.luguber.info/inful/assetcompiler/internal/lock"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newProject creates a Composer project with one installed package, me/foo. The package
// manager commands are replaced with shell built-ins so no JavaScript tooling is needed.
func newProject(t *testing.T, scriptTemplate, script string) (root, pkgDir string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	root = t.TempDir()
	writeFile(t, filepath.Join(root, "composer.json"), `{
		"name": "acme/project",
		"extra": {"composer-asset-compiler": {
			"packages": {"me/*": true},
			"commands": {"name": "npm", "install": "true", "script": "`+scriptTemplate+`"}
		}}
	}`)
	writeFile(t, filepath.Join(root, "vendor", "composer", "installed.json"), `{
		"packages": [
			{"name": "me/foo", "version": "1.0.0", "install-path": "../me/foo",
			 "extra": {"composer-asset-compiler": {"dependencies": "install", "script": "`+script+`"}}},
			{"name": "other/lib", "version": "2.0.0", "install-path": "../other/lib"}
		],
		"dev-package-names": []
	}`)
	pkgDir = filepath.Join(root, "vendor", "me", "foo")
	writeFile(t, filepath.Join(pkgDir, lock.ManifestFile), `{"name": "foo"}`)
	return root, pkgDir
}

func TestRunCompile_BuildsAndLocks(t *testing.T) {
	root, pkgDir := newProject(t, "echo %s > built.txt", "ok")
	metricsFile := filepath.Join(t.TempDir(), "metrics.prom")
	flags := EnvFlags{Env: "production"}

	require.NoError(t, RunCompile(context.Background(), root, flags, metricsFile))

	built, err := os.ReadFile(filepath.Join(pkgDir, "built.txt"))
	require.NoError(t, err)
	require.Equal(t, "ok\n", string(built))
	require.FileExists(t, filepath.Join(pkgDir, lock.MarkerFile))

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	require.Contains(t, string(data), `assetcompiler_package_results_total{result="success"} 1`)

	// The second run finds the package locked and does not rebuild it.
	require.NoError(t, os.Remove(filepath.Join(pkgDir, "built.txt")))
	require.NoError(t, RunCompile(context.Background(), root, flags, ""))
	require.NoFileExists(t, filepath.Join(pkgDir, "built.txt"))

	// Another environment invalidates the lock.
	require.NoError(t, RunCompile(context.Background(), root, EnvFlags{Env: "staging"}, ""))
	require.FileExists(t, filepath.Join(pkgDir, "built.txt"))
}

func TestRunCompile_PackageFailure(t *testing.T) {
	root, pkgDir := newProject(t, "%s", "false")

	err := RunCompile(context.Background(), root, EnvFlags{Env: "production"}, "")
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryBuild))
	require.NoFileExists(t, filepath.Join(pkgDir, lock.MarkerFile))
}

func TestWritePackages(t *testing.T) {
	root, _ := newProject(t, "%s", "build")
	project, err := LoadProject(root, EnvFlags{Env: "production"})
	require.NoError(t, err)
	require.Equal(t, []string{"me/foo"}, project.Packages.Names())

	var out bytes.Buffer
	require.NoError(t, WritePackages(&out, project, lock.New("production")))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "PACKAGE")
	require.Contains(t, lines[1], "me/foo")
	require.Contains(t, lines[1], filepath.Join("vendor", "me", "foo"))
	require.Contains(t, lines[1], "install")
	require.True(t, strings.HasSuffix(lines[1], "false"))
}

func TestHashCmd(t *testing.T) {
	root, _ := newProject(t, "%s", "build")
	var out bytes.Buffer

	cmd := &HashCmd{EnvFlags: EnvFlags{Env: "production"}}
	require.NoError(t, cmd.Run(context.Background(), &Global{Out: &out}, &CLI{Dir: root}))
	require.Regexp(t, `^[0-9a-f]{64}  me/foo\n$`, out.String())
}

func TestLoadProject_MissingComposerJSON(t *testing.T) {
	_, err := LoadProject(t.TempDir(), EnvFlags{})
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestWatchDirs(t *testing.T) {
	root, pkgDir := newProject(t, "%s", "build")
	project, err := LoadProject(root, EnvFlags{})
	require.NoError(t, err)

	dirs := WatchDirs(project)
	require.Equal(t, []string{project.Dir, filepath.Join(project.Dir, "vendor", "composer"), pkgDir}, dirs)
	require.Contains(t, WatchedFiles(), "package.json")
	require.Contains(t, WatchedFiles(), "assets-compiler.yaml")
}
