package sessionguard

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one Guard counter or histogram.
type MetricID uint16

const (
	// MetricKeyGenerated counts session keys drawn from the entropy source.
	MetricKeyGenerated MetricID = iota
	// MetricKeyGenerationFailed counts entropy source failures.
	MetricKeyGenerationFailed
	// MetricSessionCreated counts sessions persisted for the first time.
	MetricSessionCreated
	// MetricSessionResumed counts requests that presented a valid session.
	MetricSessionResumed
	// MetricSessionRejected counts stored sessions that failed validation.
	MetricSessionRejected
	// MetricSessionRegenerated counts requests that got a fresh session
	// because the presented one was missing, expired or incomplete.
	MetricSessionRegenerated
	// MetricSessionDestroyed counts explicit session deletions.
	MetricSessionDestroyed
	// MetricCookieInvalid counts cookies that failed signature or claim checks.
	MetricCookieInvalid
	// MetricCreationThrottled counts creations denied by the throttle.
	MetricCreationThrottled
	// MetricSealSuccess counts values sealed under a session key.
	MetricSealSuccess
	// MetricSealFailure counts seal or open failures.
	MetricSealFailure
	// MetricSessionSaveFailed counts session writes that did not reach the store.
	MetricSessionSaveFailed
	// MetricAuditDropped counts audit events discarded under backpressure.
	MetricAuditDropped
	// MetricResumeLatency is the Resume latency histogram.
	MetricResumeLatency
	metricIDCount
)

// RegenerationReasons lists the reasons a presented session is replaced,
// in export order.
var RegenerationReasons = [...]ResolveReason{
	ReasonCookieInvalid,
	ReasonNotFound,
	ReasonUnreadable,
	ReasonIncomplete,
}

func regenerationIndex(reason ResolveReason) int {
	for i, r := range RegenerationReasons {
		if r == reason {
			return i
		}
	}
	return -1
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a lock-free set of counters and one latency histogram.
// A nil or disabled *Metrics ignores every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
	regenerations [len(RegenerationReasons)]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	// Regenerations breaks MetricSessionRegenerated down by reason.
	Regenerations map[ResolveReason]uint64
}

// NewMetrics returns a Metrics configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// IncRegeneration counts one regeneration under reason. Reasons outside
// [RegenerationReasons] are ignored.
func (m *Metrics) IncRegeneration(reason ResolveReason) {
	if m == nil || !m.enabled {
		return
	}
	i := regenerationIndex(reason)
	if i < 0 {
		return
	}
	atomic.AddUint64(&m.regenerations[i].value, 1)
}

// Observe records d in the histogram for id. Only MetricResumeLatency
// carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricResumeLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, the latency buckets.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:      make(map[MetricID]uint64, int(metricIDCount)),
		Histograms:    make(map[MetricID][]uint64, 1),
		Regenerations: make(map[ResolveReason]uint64, len(RegenerationReasons)),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	for i, reason := range RegenerationReasons {
		s.Regenerations[reason] = atomic.LoadUint64(&m.regenerations[i].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricResumeLatency].buckets[i])
		}
		s.Histograms[MetricResumeLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
