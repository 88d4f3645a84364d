// Package api exposes the HTTP interface for the lead-scouting service:
// job submission and lifecycle endpoints, a synchronous search endpoint,
// progress snapshots, and operational probes.
package api
