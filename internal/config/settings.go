// Package config loads asset compiler settings and resolves the per-package build
// configuration.
//
// Settings live either in a dedicated file next to a package (assets-compiler.yaml,
// assets-compiler.yml or assets-compiler.json) or embedded in composer.json under
// extra.composer-asset-compiler. The root project's settings additionally carry the
// project-wide keys (packages, defaults, auto-discover, ...).
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
)

// ExtraKey is the composer.json extra key holding embedded settings.
const ExtraKey = "composer-asset-compiler"

// SettingsFiles are the dedicated settings files, in lookup order.
var SettingsFiles = []string{"assets-compiler.yaml", "assets-compiler.yml", "assets-compiler.json"}

// RawSettings is a settings block as written by the user. It is never mutated after load.
type RawSettings map[string]any

// Settings is a parsed settings document. PackageOrder keeps the declaration order of the
// "packages" map, which decides rule precedence.
type Settings struct {
	Raw          RawSettings
	PackageOrder []string
	Source       string
}

// LoadSettings reads the settings for a directory. A dedicated settings file wins over the
// embedded block; when neither exists the result is nil.
func LoadSettings(dir string, embedded json.RawMessage) (*Settings, error) {
	for _, name := range SettingsFiles {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, errors.FileSystemError("failed to read settings file").
				WithCause(err).
				WithContext("path", path).
				Build()
		}
		var s *Settings
		if filepath.Ext(name) == ".json" {
			s, err = parseJSONSettings(data)
		} else {
			s, err = parseYAMLSettings(data)
		}
		if err != nil {
			return nil, errors.ConfigError("invalid settings file").
				WithCause(err).
				WithContext("path", path).
				Build()
		}
		s.Source = path
		return s, nil
	}

	if len(bytes.TrimSpace(embedded)) == 0 || string(bytes.TrimSpace(embedded)) == "null" {
		return nil, nil
	}
	s, err := parseJSONSettings(embedded)
	if err != nil {
		return nil, errors.ConfigError("invalid embedded settings").
			WithCause(err).
			WithContext("path", filepath.Join(dir, "composer.json")).
			Build()
	}
	s.Source = filepath.Join(dir, "composer.json")
	return s, nil
}

func parseJSONSettings(data []byte) (*Settings, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, err
	}
	order, err := jsonKeyOrder(top[KeyPackages])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyPackages, err)
	}
	return &Settings{Raw: raw, PackageOrder: order}, nil
}

// jsonKeyOrder returns the keys of a JSON object in document order.
func jsonKeyOrder(data json.RawMessage) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected an object")
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func parseYAMLSettings(data []byte) (*Settings, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	raw := map[string]any{}
	if len(doc.Content) == 0 {
		return &Settings{Raw: raw}, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("settings must be a mapping")
	}
	if err := root.Decode(&raw); err != nil {
		return nil, err
	}

	var order []string
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != KeyPackages {
			continue
		}
		packages := root.Content[i+1]
		if packages.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%s must be a mapping", KeyPackages)
		}
		for j := 0; j+1 < len(packages.Content); j += 2 {
			order = append(order, packages.Content[j].Value)
		}
	}
	return &Settings{Raw: raw, PackageOrder: order}, nil
}

// clone returns a shallow copy of the settings.
func (s RawSettings) clone() RawSettings {
	out := make(RawSettings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// overlay copies every key of other over s.
func (s RawSettings) overlay(other map[string]any) {
	for k, v := range other {
		s[k] = v
	}
}
