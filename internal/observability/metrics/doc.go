// Package metrics collects HTTP, session and tool-call counters and renders
// them in the Prometheus text exposition format.
package metrics
