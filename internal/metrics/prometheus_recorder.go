package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/assetcompiler/internal/foundation/errors"
)

const namespace = "assetcompiler"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry        *prom.Registry
	packageDuration *prom.HistogramVec
	packageResults  *prom.CounterVec
	precompile      *prom.CounterVec
	commands        *prom.CounterVec
	runDuration     prom.Histogram
	runOutcome      *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the metrics. A nil registry creates one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		registry: reg,
		packageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "package_duration_seconds",
			Help:      "Time spent compiling a package",
			Buckets:   prom.ExponentialBuckets(0.1, 2, 12),
		}, []string{"package"}),
		packageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "package_results_total",
			Help:      "Package results by outcome",
		}, []string{"result"}),
		precompile: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "precompile_attempts_total",
			Help:      "Pre-compilation attempts by adapter and result",
		}, []string{"adapter", "result"}),
		commands: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Package manager commands by step and result",
		}, []string{"step", "result"}),
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Total run duration",
			Buckets:   prom.ExponentialBuckets(0.5, 2, 12),
		}),
		runOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "run_outcomes_total",
			Help:      "Run outcomes by final status",
		}, []string{"outcome"}),
	}
	reg.MustRegister(pr.packageDuration, pr.packageResults, pr.precompile, pr.commands, pr.runDuration, pr.runOutcome)
	return pr
}

// Registry returns the registry the metrics are registered with.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.registry }

// WriteTextfile writes the metrics in the text exposition format, for the node exporter's
// textfile collector.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := prom.WriteToTextfile(path, p.registry); err != nil {
		return errors.FileSystemError("failed to write metrics file").
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	return nil
}

func (p *PrometheusRecorder) ObservePackageDuration(pkg string, d time.Duration) {
	if p == nil {
		return
	}
	p.packageDuration.WithLabelValues(pkg).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPackageResult(result ResultLabel) {
	if p == nil {
		return
	}
	p.packageResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncPrecompileAttempt(adapter string, hit bool) {
	if p == nil {
		return
	}
	p.precompile.WithLabelValues(adapter, label(hit, "hit", "miss")).Inc()
}

func (p *PrometheusRecorder) IncCommand(step string, success bool) {
	if p == nil {
		return
	}
	p.commands.WithLabelValues(step, label(success, "success", "failed")).Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(outcome RunOutcomeLabel) {
	if p == nil {
		return
	}
	p.runOutcome.WithLabelValues(string(outcome)).Inc()
}

func label(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
