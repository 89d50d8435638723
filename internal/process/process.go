// Package process runs package manager commands through the system shell.
package process

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
	"git.home.luguber.info/inful/assetcompiler/internal/logfields"
)

const maxLine = 1024 * 1024

// WaitDelay bounds how long Execute waits for output after the command exits or is
// cancelled.
var WaitDelay = 5 * time.Second

// Stream names the output stream a line was written to.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Sink receives command output line by line. Calls are serialized.
type Sink func(stream Stream, line string)

// Executor runs a command line and returns its exit code. Exit code 0 is the only success.
type Executor interface {
	Execute(ctx context.Context, command string, sink Sink, cwd string, env map[string]string) (int, error)
}

// ShellExecutor runs commands with "sh -c" ("cmd /C" on Windows).
type ShellExecutor struct{}

// Execute runs command in cwd with the process environment plus env. The returned error is
// set only when the command could not be started or waited for; a non-zero exit is reported
// through the exit code alone.
func (ShellExecutor) Execute(ctx context.Context, command string, sink Sink, cwd string, env map[string]string) (int, error) {
	if stat, err := os.Stat(cwd); err != nil || !stat.IsDir() {
		return -1, ferrors.ProcessError("working directory not found").
			WithCause(err).
			WithContext("path", cwd).
			Build()
	}

	cmd := shellCommand(ctx, command)
	cmd.Dir = cwd
	cmd.Env = mergeEnv(os.Environ(), env)

	var mu sync.Mutex
	stdout := &lineWriter{stream: Stdout, sink: sink, mu: &mu}
	stderr := &lineWriter{stream: Stderr, sink: sink, mu: &mu}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	slog.Debug("Running command", logfields.Command(command), logfields.Path(cwd))
	if err := cmd.Start(); err != nil {
		return -1, ferrors.ProcessError("failed to start command").
			WithCause(err).
			WithContext("command", command).
			Build()
	}

	err := cmd.Wait()
	stdout.flush()
	stderr.flush()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return exitErr.ExitCode(), nil
	}
	if errors.Is(err, exec.ErrWaitDelay) && ctx.Err() == nil && cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode(), nil
	}
	if ctx.Err() != nil {
		return -1, ferrors.ProcessError("command cancelled").
			WithCause(ctx.Err()).
			WithContext("command", command).
			Build()
	}
	return -1, ferrors.ProcessError("command failed").
		WithCause(err).
		WithContext("command", command).
		Build()
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		// #nosec G204 -- commands come from the project's own build settings
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		// #nosec G204 -- commands come from the project's own build settings
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	// Background children of the shell may keep the output open after it exits.
	cmd.WaitDelay = WaitDelay
	killGroupOnCancel(cmd)
	return cmd
}

// lineWriter splits written output into lines for a Sink. Lines longer than maxLine are
// delivered in chunks.
type lineWriter struct {
	stream Stream
	sink   Sink
	mu     *sync.Mutex
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	if w.sink == nil {
		return len(p), nil
	}
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	for len(w.buf) >= maxLine {
		w.emit(w.buf[:maxLine])
		w.buf = w.buf[maxLine:]
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	if len(w.buf) > 0 && w.sink != nil {
		w.emit(w.buf)
	}
	w.buf = nil
}

func (w *lineWriter) emit(line []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sink(w.stream, string(bytes.TrimSuffix(line, []byte("\r"))))
}

// mergeEnv appends env to base in a stable order. Later entries win for exec.Cmd.
func mergeEnv(base []string, env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := append([]string(nil), base...)
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// LogSink forwards output to the debug log with the package name attached.
func LogSink(pkg string) Sink {
	return func(stream Stream, line string) {
		slog.Debug(line, logfields.Package(pkg), slog.String("stream", string(stream)))
	}
}
