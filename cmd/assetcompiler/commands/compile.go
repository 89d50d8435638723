package commands

import (
	"context"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/assetcompiler/internal/compiler"
	"git.home.luguber.info/inful/assetcompiler/internal/logfields"
	"git.home.luguber.info/inful/assetcompiler/internal/metrics"
	"git.home.luguber.info/inful/assetcompiler/internal/workspace"
)

// CompileCmd implements the 'compile' command.
type CompileCmd struct {
	EnvFlags    `embed:""`
	MetricsFile string `name:"metrics-file" help:"Write Prometheus metrics to this file after the run" type:"path"`
}

func (c *CompileCmd) Run(ctx context.Context, _ *Global, root *CLI) error {
	return RunCompile(ctx, root.Dir, c.EnvFlags, c.MetricsFile)
}

// RunCompile discovers and compiles the packages of the project in dir.
func RunCompile(ctx context.Context, dir string, flags EnvFlags, metricsFile string) error {
	project, err := LoadProject(dir, flags)
	if err != nil {
		return err
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var prom *metrics.PrometheusRecorder
	if metricsFile != "" {
		prom = metrics.NewPrometheusRecorder(nil)
		recorder = prom
	}

	ws := workspace.NewManager("")
	defer CleanupWorkspace(ws)

	summary, err := project.NewCompiler(ws, recorder).Run(ctx, project.Packages)
	if prom != nil {
		if werr := prom.WriteTextfile(metricsFile); werr != nil {
			slog.Warn("Metrics not written", logfields.Path(metricsFile), logfields.Error(werr))
		}
	}
	if err != nil {
		return err
	}

	summary.WriteReport(os.Stderr)
	logSummary(summary)
	return summary.Err()
}

func logSummary(summary *compiler.Summary) {
	failed := len(summary.FailedPackages())
	attrs := []any{
		slog.Int("packages", len(summary.Results)),
		slog.Int("failed", failed),
		logfields.DurationMS(float64(summary.Duration.Milliseconds())),
	}
	if failed == 0 && !summary.Canceled {
		slog.Info("Compilation finished", attrs...)
		return
	}
	slog.Error("Compilation finished with failures", attrs...)
}
