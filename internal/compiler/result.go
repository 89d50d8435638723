package compiler

import (
	"fmt"
	"io"
	"strings"
	"time"

	"git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
)

// State is a step a package went through.
type State string

const (
	StateSkippedLocked      State = "skipped (locked)"
	StateSkippedNothingToDo State = "skipped (nothing to do)"
	StatePreCompiled        State = "pre-compiled"
	StateDependenciesDone   State = "dependencies done"
	StateScriptDone         State = "scripts done"
	StateWiped              State = "node_modules wiped"
	StateSuccess            State = "success"
	StateFailed             State = "failed"
)

// Result is the record of one package.
type Result struct {
	Package  string
	States   []State
	Failures []string
	Duration time.Duration
}

func (r *Result) enter(s State) { r.States = append(r.States, s) }

func (r *Result) fail(reason string) {
	r.Failures = append(r.Failures, reason)
}

// Final returns the last state reached.
func (r Result) Final() State {
	if len(r.States) == 0 {
		return ""
	}
	return r.States[len(r.States)-1]
}

// Failed reports whether the package failed.
func (r Result) Failed() bool { return r.Final() == StateFailed }

// Has reports whether the package went through s.
func (r Result) Has(s State) bool {
	for _, st := range r.States {
		if st == s {
			return true
		}
	}
	return false
}

// Summary aggregates a run.
type Summary struct {
	Results []Result
	// Failed is set by any package failure, whether or not the run stopped early.
	Failed bool
	// Stopped is set when stop-on-failure ended dispatch early.
	Stopped  bool
	Canceled bool
	Duration time.Duration
}

// FailedPackages returns the results of the failed packages.
func (s *Summary) FailedPackages() []Result {
	var out []Result
	for _, r := range s.Results {
		if r.Failed() {
			out = append(out, r)
		}
	}
	return out
}

// Err returns a build error when the run failed.
func (s *Summary) Err() error {
	if s.Canceled {
		return errors.BuildError("compilation canceled").Build()
	}
	if !s.Failed {
		return nil
	}
	failed := s.FailedPackages()
	names := make([]string, 0, len(failed))
	for _, r := range failed {
		names = append(names, r.Package)
	}
	return errors.BuildError(fmt.Sprintf("%d package(s) failed", len(failed))).
		WithContext("packages", strings.Join(names, ",")).
		Build()
}

// WriteReport writes the bulleted failure summary. Nothing is written for a successful run.
func (s *Summary) WriteReport(w io.Writer) {
	failed := s.FailedPackages()
	if len(failed) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w, "Failed packages:")
	for _, r := range failed {
		_, _ = fmt.Fprintf(w, "- %s\n", r.Package)
		for _, reason := range r.Failures {
			_, _ = fmt.Fprintf(w, "  - %s\n", reason)
		}
	}
	if s.Stopped {
		_, _ = fmt.Fprintln(w, "Stopped after the first failure (stop-on-failure).")
	}
}
