// Package sinks implements concrete consumers for search-job progress events:
// Prometheus counters, repository-backed storage, and structured logging. Each
// sink satisfies the progress.Sink interface and is safe for repeated
// Consume/Close cycles.
package sinks
