// Package prometheus renders sessionguard metrics in Prometheus text format.
//
// [NewPrometheusExporter] accepts a [sessionguard.Guard] and exposes an
// [http.Handler] for a /metrics route. Counter names are prefixed
// sessionguard_*_total; the single histogram is
// sessionguard_resume_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate guard state.
package prometheus
