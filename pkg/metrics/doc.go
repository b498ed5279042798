// Package metrics exposes the engine's Prometheus instrumentation:
// execution counters, commit/retry histograms, audit and guard-denial
// counters, and the promhttp handler a host mounts for scraping.
package metrics
