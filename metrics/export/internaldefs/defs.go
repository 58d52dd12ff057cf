package internaldefs

import (
	"github.com/MrEthical07/sessionguard"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   sessionguard.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   sessionguard.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: sessionguard.MetricKeyGenerated, Name: "sessionguard_key_generated_total", Help: "Session keys drawn from the entropy source."},
	{ID: sessionguard.MetricKeyGenerationFailed, Name: "sessionguard_key_generation_failed_total", Help: "Entropy source failures during key or session ID generation."},
	{ID: sessionguard.MetricSessionCreated, Name: "sessionguard_session_created_total", Help: "Sessions created and persisted."},
	{ID: sessionguard.MetricSessionResumed, Name: "sessionguard_session_resumed_total", Help: "Requests that presented a complete session."},
	{ID: sessionguard.MetricSessionRejected, Name: "sessionguard_session_rejected_total", Help: "Stored sessions rejected for missing required fields."},
	{ID: sessionguard.MetricSessionRegenerated, Name: "sessionguard_session_regenerated_total", Help: "Sessions replaced after a missing, expired or incomplete one was presented."},
	{ID: sessionguard.MetricSessionDestroyed, Name: "sessionguard_session_destroyed_total", Help: "Sessions explicitly destroyed."},
	{ID: sessionguard.MetricCookieInvalid, Name: "sessionguard_cookie_invalid_total", Help: "Session cookies failing verification."},
	{ID: sessionguard.MetricCreationThrottled, Name: "sessionguard_creation_throttled_total", Help: "Session creations denied by the per-client throttle."},
	{ID: sessionguard.MetricSealSuccess, Name: "sessionguard_seal_success_total", Help: "Values sealed under a session key."},
	{ID: sessionguard.MetricSealFailure, Name: "sessionguard_seal_failure_total", Help: "Seal or open failures."},
	{ID: sessionguard.MetricSessionSaveFailed, Name: "sessionguard_session_save_failed_total", Help: "Session writes that did not reach the store."},
}

// RegenerationDef describes the per-reason breakdown of regenerations.
// Series carry Label set to each value of sessionguard.RegenerationReasons.
var RegenerationDef = struct {
	Name  string
	Help  string
	Label string
}{
	Name:  "sessionguard_session_regenerated_by_reason_total",
	Help:  "Sessions replaced, by why the presented session was refused.",
	Label: "reason",
}

// HistogramDefs lists every histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: sessionguard.MetricResumeLatency, Name: "sessionguard_resume_latency_seconds", Help: "Resume latency histogram."},
}

// HistogramBounds are the Prometheus "le" labels of the 8 latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are instrument-name-safe forms of HistogramBounds.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to exactly 8 buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
