// Package errors provides the classified error primitives used across the asset compiler.
//
// Errors carry a category (config, package manager, process, precompile, ...), a severity and
// structured context, and are built through a fluent builder:
//
//	err := errors.ConfigError("force-defaults requires root defaults").
//		WithContext("package", name).
//		WithCause(cause).
//		Build()
//
// The CLI adapter turns any error into a user-facing message and a process exit code.
package errors
