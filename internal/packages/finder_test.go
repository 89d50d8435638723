package packages

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetcompiler/internal/composer"
	"git.home.luguber.info/inful/assetcompiler/internal/config"
	"git.home.luguber.info/inful/assetcompiler/internal/env"
	ferrors "git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
)

type fakeRepo struct {
	root     composer.Metadata
	packages []composer.Metadata
}

func (r fakeRepo) Root() (composer.Metadata, error)       { return r.root, nil }
func (r fakeRepo) Packages() ([]composer.Metadata, error) { return r.packages, nil }

func meta(dir, name, settings string) composer.Metadata {
	m := composer.Metadata{Name: name, InstallPath: filepath.Join(dir, filepath.FromSlash(name))}
	if settings != "" {
		m.Settings = json.RawMessage(settings)
	}
	return m
}

func newFinder(t *testing.T, rootSettings string, pkgs ...composer.Metadata) *Finder {
	t.Helper()
	dir := t.TempDir()
	rootMeta := composer.Metadata{Name: "project/root", InstallPath: dir, Root: true}

	var settings *config.Settings
	if rootSettings != "" {
		var err error
		settings, err = config.LoadSettings(dir, json.RawMessage(rootSettings))
		require.NoError(t, err)
		rootMeta.Settings = json.RawMessage(rootSettings)
	}
	root, err := config.NewRootConfig(dir, settings)
	require.NoError(t, err)

	repo := fakeRepo{root: rootMeta, packages: pkgs}
	return NewFinder(repo, root, config.NewResolver(root, env.New("", true)))
}

func TestFind_ExcludeRule(t *testing.T) {
	dir := t.TempDir()
	finder := newFinder(t, `{"packages": {"me/foo": false}}`,
		meta(dir, "me/foo", `{"script": "build"}`),
		meta(dir, "me/bar", `{"script": "build"}`),
	)

	set, err := finder.Find()
	require.NoError(t, err)
	require.Equal(t, []string{"me/bar"}, set.Names())
}

func TestFind_ForceDefaults(t *testing.T) {
	dir := t.TempDir()
	finder := newFinder(t, `{
		"packages": {"me/*": "force-defaults"},
		"defaults": {"dependencies": "update", "script": ["foo", "bar"]}
	}`,
		meta(dir, "me/foo", `{"dependencies": "install", "script": "other"}`),
		meta(dir, "me/bar", ""),
	)

	set, err := finder.Find()
	require.NoError(t, err)
	require.Equal(t, []string{"me/foo", "me/bar"}, set.Names())
	for _, pkg := range set.All() {
		require.True(t, pkg.IsUpdate(), pkg.Name())
		require.False(t, pkg.IsInstall(), pkg.Name())
		require.Equal(t, []string{"foo", "bar"}, pkg.Scripts(), pkg.Name())
	}
}

func TestFind_FirstMatchWins(t *testing.T) {
	dir := t.TempDir()
	finder := newFinder(t, `{"packages": {"me/foo": true, "me/*": false}}`,
		meta(dir, "me/foo", `{"script": "build"}`),
		meta(dir, "me/bar", `{"script": "build"}`),
		meta(dir, "other/baz", `{"script": "build"}`),
	)

	set, err := finder.Find()
	require.NoError(t, err)
	require.Equal(t, []string{"me/foo", "other/baz"}, set.Names())
}

func TestFind_AutoDiscover(t *testing.T) {
	dir := t.TempDir()
	pkgs := []composer.Metadata{
		meta(dir, "me/foo", `{"dependencies": "install"}`),
		meta(dir, "me/empty", `{}`),
		meta(dir, "me/plain", ""),
	}

	set, err := newFinder(t, `{}`, pkgs...).Find()
	require.NoError(t, err)
	require.Equal(t, []string{"me/foo", "me/empty"}, set.Names())

	empty, _ := set.Get("me/empty")
	require.False(t, empty.HasWork())

	set, err = newFinder(t, `{"auto-discover": false, "packages": {"me/plain": true}}`, pkgs...).Find()
	require.NoError(t, err)
	require.Equal(t, []string{"me/plain"}, set.Names())
}

func TestFind_RootIsNotBuiltImplicitly(t *testing.T) {
	dir := t.TempDir()
	pkgs := []composer.Metadata{meta(dir, "me/foo", `{"script": "build"}`)}

	set, err := newFinder(t, `{"script": "build", "packages": {"me/*": true}}`, pkgs...).Find()
	require.NoError(t, err)
	require.Equal(t, []string{"me/foo"}, set.Names())

	set, err = newFinder(t, `{"script": "build", "packages": {"project/*": true, "me/*": true}}`, pkgs...).Find()
	require.NoError(t, err)
	require.Equal(t, []string{"me/foo"}, set.Names())
}

func TestFind_RootNamedByRuleComesFirst(t *testing.T) {
	dir := t.TempDir()
	finder := newFinder(t, `{"script": "build", "packages": {"me/*": true, "project/root": true}}`,
		meta(dir, "me/foo", `{"script": "build"}`),
	)

	set, err := finder.Find()
	require.NoError(t, err)
	require.Equal(t, []string{"project/root", "me/foo"}, set.Names())
	root, ok := set.Get("project/root")
	require.True(t, ok)
	require.True(t, root.IsRoot())
	require.Equal(t, []string{"build"}, root.Scripts())

	// Without work of its own the named root is still skipped.
	set, err = newFinder(t, `{"packages": {"project/root": true}}`).Find()
	require.NoError(t, err)
	require.Zero(t, set.Len())
}

func TestFind_InlineRuleSettings(t *testing.T) {
	dir := t.TempDir()
	finder := newFinder(t, `{"packages": {"me/foo": {"script": "inline"}}}`,
		meta(dir, "me/foo", `{"script": "own"}`),
	)

	set, err := finder.Find()
	require.NoError(t, err)
	pkg, ok := set.Get("me/foo")
	require.True(t, ok)
	require.Equal(t, []string{"inline"}, pkg.Scripts())
	require.Equal(t, filepath.Join(dir, "me", "foo"), pkg.Path())
}

func TestFind_UnsatisfiedRequiredPackage(t *testing.T) {
	finder := newFinder(t, `{"auto-discover": false, "packages": {"me/missing": true}}`)

	_, err := finder.Find()
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
	require.Contains(t, err.Error(), "me/missing")

	lenient := newFinder(t, `{"auto-discover": false, "stop-on-failure": false, "packages": {"me/missing": true}}`)
	set, err := lenient.Find()
	require.NoError(t, err)
	require.Zero(t, set.Len())
}

func TestFind_InvalidPackageConfig(t *testing.T) {
	dir := t.TempDir()
	pkgs := []composer.Metadata{
		meta(dir, "me/bad", `{"dependencies": "sometimes"}`),
		meta(dir, "me/good", `{"script": "build"}`),
	}

	_, err := newFinder(t, `{"packages": {"me/bad": true}}`, pkgs...).Find()
	require.Error(t, err)
	require.Contains(t, err.Error(), "me/bad")

	set, err := newFinder(t, `{"stop-on-failure": false}`, pkgs...).Find()
	require.NoError(t, err)
	require.Equal(t, []string{"me/good"}, set.Names())
}

func TestFind_ForceDefaultsWithoutRootDefaults(t *testing.T) {
	dir := t.TempDir()
	_, err := newFinder(t, `{"packages": {"me/foo": "force-defaults"}}`,
		meta(dir, "me/foo", `{"script": "build"}`),
	).Find()
	require.Error(t, err)
	require.Contains(t, err.Error(), "me/foo")
}
