package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyPackage    = "package"
	KeyEnv        = "env"
	KeyAdapter    = "adapter"
	KeyCommand    = "command"
	KeyScript     = "script"
	KeyStep       = "step"
	KeyManager    = "package_manager"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyHash       = "hash"
	KeyExitCode   = "exit_code"
	KeyStatus     = "status"
	KeyReason     = "reason"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Package(name string) slog.Attr   { return slog.String(KeyPackage, name) }
func Env(name string) slog.Attr       { return slog.String(KeyEnv, name) }
func Adapter(id string) slog.Attr     { return slog.String(KeyAdapter, id) }
func Command(cmd string) slog.Attr    { return slog.String(KeyCommand, cmd) }
func Script(s string) slog.Attr       { return slog.String(KeyScript, s) }
func Step(s string) slog.Attr         { return slog.String(KeyStep, s) }
func Manager(m string) slog.Attr      { return slog.String(KeyManager, m) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Hash(h string) slog.Attr         { return slog.String(KeyHash, h) }
func ExitCode(code int) slog.Attr     { return slog.Int(KeyExitCode, code) }
func Status(s string) slog.Attr       { return slog.String(KeyStatus, s) }
func Reason(r string) slog.Attr       { return slog.String(KeyReason, r) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
