// Package placeholders substitutes per-package values into configured strings.
//
// Reserved tokens are ${hash}, ${version}, ${ref}, ${env} and ${uuid}, matched
// case-insensitively. ${uuid} is the stable identifier of the four values, used to bust caches
// in artifact URLs.
// Any other ${NAME} is looked up in a variables map, usually the process environment overlaid
// with the package environment. Unresolvable tokens become the empty string, so callers must
// not rely on substitution for required values.
package placeholders

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
)

const (
	TokenHash    = "hash"
	TokenVersion = "version"
	TokenRef     = "ref"
	TokenEnv     = "env"
	TokenUUID    = "uuid"

	marker = "${"
)

var (
	tokenPattern = regexp.MustCompile(`\$\{([^}]*)\}`)
	namePattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)
)

// uuidNamespace scopes the identifiers produced by UUID.
var uuidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/inpsyde/composer-asset-compiler"))

// Placeholders is the immutable value bag for one package.
type Placeholders struct {
	env       string
	hash      string
	version   string
	reference string
}

// New creates the placeholder values for a package.
func New(env, hash, version, reference string) Placeholders {
	return Placeholders{env: env, hash: hash, version: version, reference: reference}
}

func (p Placeholders) Env() string       { return p.env }
func (p Placeholders) Hash() string      { return p.hash }
func (p Placeholders) Version() string   { return p.version }
func (p Placeholders) Reference() string { return p.reference }

// Replace substitutes reserved tokens and then variables from vars into template.
// A template without "${" is returned unchanged.
func (p Placeholders) Replace(template string, vars map[string]string) string {
	if !strings.Contains(template, marker) {
		return template
	}

	return tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.TrimSpace(tokenPattern.FindStringSubmatch(match)[1])
		if !namePattern.MatchString(name) {
			return ""
		}
		switch strings.ToLower(name) {
		case TokenHash:
			return p.hash
		case TokenVersion:
			return p.version
		case TokenRef:
			return p.reference
		case TokenEnv:
			return p.env
		case TokenUUID:
			return p.UUID()
		}
		return vars[name]
	})
}

// UUID returns a deterministic, UUID-formatted digest of the four values. It is a cache key,
// not a secret.
func (p Placeholders) UUID() string {
	data := strings.Join([]string{p.env, p.hash, p.version, p.reference}, "\x00")
	return uuid.NewSHA1(uuidNamespace, []byte(data)).String()
}

// HasStableVersion reports whether the version is set and is not a development or
// pre-release version.
func (p Placeholders) HasStableVersion() bool {
	return IsStable(p.version)
}

// IsStable classifies a Composer-style version string. Branch aliases (dev-main, 1.x-dev) and
// pre-releases (1.0.0-beta1) are unstable; patch suffixes (1.0.0-p1) are stable.
func IsStable(version string) bool {
	v := strings.ToLower(strings.TrimSpace(version))
	if v == "" || strings.HasPrefix(v, "dev-") || strings.HasSuffix(v, "-dev") {
		return false
	}

	parsed, err := semver.NewVersion(trimFourthSegment(v))
	if err != nil {
		return false
	}
	pre := parsed.Prerelease()
	return pre == "" || patchSuffix.MatchString(pre)
}

var patchSuffix = regexp.MustCompile(`^(p|pl|patch)\.?\d*$`)

// trimFourthSegment turns Composer's normalized "1.2.3.0" into "1.2.3".
func trimFourthSegment(v string) string {
	core, rest := v, ""
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		core, rest = v[:i], v[i:]
	}
	parts := strings.Split(core, ".")
	if len(parts) == 4 {
		core = strings.Join(parts[:3], ".")
	}
	return core + rest
}
