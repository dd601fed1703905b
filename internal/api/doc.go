// Package api serves the scenario engine over HTTP.
//
// Routes:
//
//	GET  /api/status          running flag, pool state and pool stats
//	GET  /api/metrics         workload metrics of the current or last run
//	GET  /api/result          report of the last completed run
//	POST /api/scenario/start  start a preset, with optional overrides
//	POST /api/scenario/stop   cancel the running scenario
//	GET  /api/presets         available presets
//	GET  /metrics             Prometheus exposition
//	     /ws                  status, event and completion broadcasts
package api
