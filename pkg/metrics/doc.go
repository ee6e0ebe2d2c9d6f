// Package metrics exposes Prometheus collectors for the fork runner:
// worker-slot occupancy, port-pool usage, task outcomes, and the
// duration of each supervisor activation's Preparing and full-run
// phases. Call Handler to mount the registry on an HTTP mux.
package metrics
