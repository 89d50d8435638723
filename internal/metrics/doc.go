// Package metrics records compile run metrics.
//
// Components receive a Recorder through their constructors and default to NoopRecorder, so
// metrics cost nothing unless requested. The PrometheusRecorder collects into its own
// registry; a single-shot CLI run has no scrape endpoint, so the registry is written to a
// textfile for the node exporter's textfile collector instead.
package metrics
