package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadSettings_NoneFound(t *testing.T) {
	s, err := LoadSettings(t.TempDir(), nil)
	require.NoError(t, err)
	require.Nil(t, s)

	s, err = LoadSettings(t.TempDir(), json.RawMessage("null"))
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestLoadSettings_EmbeddedPreservesPackageOrder(t *testing.T) {
	embedded := json.RawMessage(`{
		"packages": {"me/zeta": true, "me/*": "force-defaults", "me/alpha": false},
		"defaults": {"script": "build"}
	}`)

	s, err := LoadSettings(t.TempDir(), embedded)
	require.NoError(t, err)
	require.Equal(t, []string{"me/zeta", "me/*", "me/alpha"}, s.PackageOrder)
	require.Equal(t, map[string]any{"script": "build"}, s.Raw["defaults"])
}

func TestLoadSettings_YAMLFileWinsOverEmbedded(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "assets-compiler.yaml", `
packages:
  me/b: true
  me/a: force-defaults
dependencies: install
`)

	s, err := LoadSettings(dir, json.RawMessage(`{"dependencies": "update"}`))
	require.NoError(t, err)
	require.Equal(t, "install", s.Raw["dependencies"])
	require.Equal(t, []string{"me/b", "me/a"}, s.PackageOrder)
	require.Equal(t, filepath.Join(dir, "assets-compiler.yaml"), s.Source)
}

func TestLoadSettings_JSONFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "assets-compiler.json", `{"script": ["a", "b"]}`)

	s, err := LoadSettings(dir, nil)
	require.NoError(t, err)
	require.Equal(t, []any{"a", "b"}, s.Raw["script"])
}

func TestLoadSettings_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "assets-compiler.yml", "- just\n- a list\n")

	_, err := LoadSettings(dir, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid settings file")
}
