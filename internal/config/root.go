package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
	"git.home.luguber.info/inful/assetcompiler/internal/logfields"
)

// Recognised settings keys.
const (
	KeyPackages      = "packages"
	KeyAutoDiscover  = "auto-discover"
	KeyDefaults      = "defaults"
	KeyStopOnFailure = "stop-on-failure"
	KeyWipe          = "wipe-node-modules"
	KeyCommands      = "commands"
	KeyDefaultEnv    = "default-env"

	KeyDependencies = "dependencies"
	KeyScript       = "script"
	KeyEnv          = "env"
	KeyPreCompiled  = "pre-compiled"
)

// ForceDefaults is the packages directive that replaces a package's settings with the
// root defaults.
const ForceDefaults = "force-defaults"

// Directive tells the package matcher what to do with a matching package.
type Directive int

const (
	DirectiveInclude Directive = iota
	DirectiveExclude
	DirectiveForceDefaults
)

func (d Directive) String() string {
	switch d {
	case DirectiveInclude:
		return "include"
	case DirectiveExclude:
		return "exclude"
	case DirectiveForceDefaults:
		return ForceDefaults
	default:
		return fmt.Sprintf("directive(%d)", int(d))
	}
}

// PackageRule is one entry of the root "packages" map. Settings is set for include rules
// that declare the package settings inline.
type PackageRule struct {
	Pattern   string
	Directive Directive
	Settings  RawSettings
}

// WipeMode selects when a package's node_modules directory is removed after a build.
type WipeMode int

const (
	WipeNever WipeMode = iota
	// WipeIfCreated removes node_modules only when the build created it.
	WipeIfCreated
	// WipeForce always removes node_modules.
	WipeForce
)

// WipePolicy decides whether node_modules is removed for a package.
type WipePolicy struct {
	Mode     WipeMode
	patterns []glob.Glob
}

// Applies reports whether the policy covers the package. Patterns are matched against the
// package name and its path relative to the root directory.
func (w WipePolicy) Applies(name, relPath string) bool {
	if w.Mode == WipeNever {
		return false
	}
	if len(w.patterns) == 0 {
		return true
	}
	relPath = filepath.ToSlash(relPath)
	for _, g := range w.patterns {
		if g.Match(name) || g.Match(relPath) {
			return true
		}
	}
	return false
}

// CommandsConfig overrides package manager detection.
// Manager is "yarn" or "npm"; the templates replace the manager's commands, with %s standing
// for the script name in Script.
type CommandsConfig struct {
	Manager string
	Install string
	Update  string
	Script  string
}

// IsZero reports whether no override is configured.
func (c CommandsConfig) IsZero() bool {
	return c == CommandsConfig{}
}

// RootConfig is the project-wide configuration taken from the root project's settings.
type RootConfig struct {
	Dir           string
	Packages      []PackageRule
	AutoDiscover  bool
	Defaults      RawSettings
	StopOnFailure bool
	Wipe          WipePolicy
	Commands      CommandsConfig
	DefaultEnv    map[string]string
	Source        string
}

// HasDefaults reports whether the root declares a defaults block.
func (r *RootConfig) HasDefaults() bool {
	return r.Defaults != nil
}

// LoadDotEnv loads dir/.env into the process environment without overriding variables that
// are already set. A missing file is not an error.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if err := godotenv.Load(path); err != nil {
		if isNotExist(err) {
			return nil
		}
		return errors.ConfigError("failed to load .env file").WithCause(err).WithContext("path", path).Build()
	}
	slog.Debug("Loaded environment variables", logfields.Path(path))
	return nil
}

// NewRootConfig builds the root configuration from the root project's settings.
// A nil settings document yields the defaults (auto-discover and stop-on-failure on).
func NewRootConfig(dir string, s *Settings) (*RootConfig, error) {
	root := &RootConfig{
		Dir:           dir,
		AutoDiscover:  true,
		StopOnFailure: true,
		DefaultEnv:    map[string]string{},
	}
	if s == nil {
		return root, nil
	}
	root.Source = s.Source
	raw := s.Raw

	var err error
	if root.AutoDiscover, err = boolValue(raw, KeyAutoDiscover, true); err != nil {
		return nil, err
	}
	if root.StopOnFailure, err = boolValue(raw, KeyStopOnFailure, true); err != nil {
		return nil, err
	}
	if v, ok := raw[KeyDefaults]; ok && v != nil {
		defaults, isMap := v.(map[string]any)
		if !isMap {
			return nil, invalidKey(KeyDefaults, "must be a mapping", v)
		}
		root.Defaults = RawSettings(defaults)
	}
	if root.DefaultEnv, err = stringMap(raw, KeyDefaultEnv); err != nil {
		return nil, err
	}
	if root.Wipe, err = parseWipe(raw[KeyWipe]); err != nil {
		return nil, err
	}
	if root.Commands, err = parseCommands(raw[KeyCommands]); err != nil {
		return nil, err
	}
	if root.Packages, err = parseRules(raw[KeyPackages], s.PackageOrder); err != nil {
		return nil, err
	}
	return root, nil
}

func parseRules(v any, order []string) ([]PackageRule, error) {
	if v == nil {
		return nil, nil
	}
	packages, ok := v.(map[string]any)
	if !ok {
		return nil, invalidKey(KeyPackages, "must be a mapping of pattern to directive", v)
	}
	order = ruleOrder(order, packages)

	rules := make([]PackageRule, 0, len(order))
	for _, pattern := range order {
		value := packages[pattern]
		rule := PackageRule{Pattern: pattern}
		switch typed := value.(type) {
		case bool:
			if !typed {
				rule.Directive = DirectiveExclude
			}
		case string:
			if !strings.EqualFold(strings.TrimSpace(typed), ForceDefaults) {
				return nil, invalidKey(KeyPackages+"."+pattern, "unknown directive", typed)
			}
			rule.Directive = DirectiveForceDefaults
		case map[string]any:
			rule.Settings = RawSettings(typed)
		case nil:
			rule.Directive = DirectiveExclude
		default:
			return nil, invalidKey(KeyPackages+"."+pattern, "unsupported directive", value)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// ruleOrder reconciles the document key order with the decoded map. A duplicated key keeps
// the position of its last occurrence, whose value is the one decoded. Keys missing from the
// document order (settings built in memory) follow in sorted order.
func ruleOrder(order []string, packages map[string]any) []string {
	last := make(map[string]int, len(order))
	for i, key := range order {
		last[key] = i
	}
	out := make([]string, 0, len(packages))
	for i, key := range order {
		if _, ok := packages[key]; ok && last[key] == i {
			out = append(out, key)
		}
	}
	for _, key := range sortedKeys(packages) {
		if _, ok := last[key]; !ok {
			out = append(out, key)
		}
	}
	return out
}

func parseWipe(v any) (WipePolicy, error) {
	switch typed := v.(type) {
	case nil:
		return WipePolicy{}, nil
	case bool:
		if typed {
			return WipePolicy{Mode: WipeIfCreated}, nil
		}
		return WipePolicy{}, nil
	case string:
		if strings.EqualFold(typed, "force") {
			return WipePolicy{Mode: WipeForce}, nil
		}
		return compileWipe([]string{typed})
	case []any:
		patterns := make([]string, 0, len(typed))
		for _, item := range typed {
			s, ok := item.(string)
			if !ok {
				return WipePolicy{}, invalidKey(KeyWipe, "patterns must be strings", item)
			}
			patterns = append(patterns, s)
		}
		return compileWipe(patterns)
	default:
		return WipePolicy{}, invalidKey(KeyWipe, "must be a boolean, \"force\" or path patterns", v)
	}
}

func compileWipe(patterns []string) (WipePolicy, error) {
	policy := WipePolicy{Mode: WipeIfCreated}
	for _, p := range patterns {
		g, err := glob.Compile(filepath.ToSlash(strings.TrimPrefix(p, "./")))
		if err != nil {
			return WipePolicy{}, errors.ConfigError("invalid wipe pattern").WithCause(err).WithContext("pattern", p).Build()
		}
		policy.patterns = append(policy.patterns, g)
	}
	return policy, nil
}

func parseCommands(v any) (CommandsConfig, error) {
	switch typed := v.(type) {
	case nil:
		return CommandsConfig{}, nil
	case string:
		name := strings.ToLower(strings.TrimSpace(typed))
		if name != "yarn" && name != "npm" {
			return CommandsConfig{}, invalidKey(KeyCommands, "must be \"yarn\", \"npm\" or a command map", typed)
		}
		return CommandsConfig{Manager: name}, nil
	case map[string]any:
		var c CommandsConfig
		for key, target := range map[string]*string{"name": &c.Manager, "install": &c.Install, "update": &c.Update, "script": &c.Script} {
			if raw, ok := typed[key]; ok {
				s, isString := raw.(string)
				if !isString {
					return CommandsConfig{}, invalidKey(KeyCommands+"."+key, "must be a string", raw)
				}
				*target = strings.TrimSpace(s)
			}
		}
		if c.Install == "" && c.Update == "" && c.Script == "" && c.Manager == "" {
			return CommandsConfig{}, invalidKey(KeyCommands, "command map is empty", typed)
		}
		return c, nil
	default:
		return CommandsConfig{}, invalidKey(KeyCommands, "unsupported value", v)
	}
}

func invalidKey(key, reason string, value any) error {
	return errors.ConfigError("invalid setting " + key + ": " + reason).
		WithContext("key", key).
		WithContext("value", fmt.Sprintf("%v", value)).
		Build()
}
