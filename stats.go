package gpucache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sarchlab/gpucache/protocol"
)

// Stats is the (access_type, status) counter matrix plus the
// instrumentation-only prefetch and port-utilization sub-stats. A nil
// *Metrics is perfectly usable; Prometheus export is opt-in via
// NewMetrics/Stats.Bind.
type Stats struct {
	Name string

	counts [protocol.NumAccessType][protocol.NumRequestStatus]uint64

	totalTicks        uint64
	dataPortBusyTicks uint64
	fillPortBusyTicks uint64

	PrefetchHits        uint64
	PrefetchHitReserved uint64
	UselessPrefetches   uint64

	prefetchUseIntervalSum   uint64
	prefetchUseIntervalCount uint64

	metrics *Metrics
}

// NewStats builds an empty stats block under the given name (used as a
// Prometheus label when metrics are bound).
func NewStats(name string) *Stats {
	return &Stats{Name: name}
}

// Bind attaches a Metrics exporter; every subsequent Record* call also
// updates the bound Prometheus collectors.
func (s *Stats) Bind(m *Metrics) { s.metrics = m }

// SelectStatsStatus implements select_stats_status: a probe result of
// HIT_RESERVED is recorded as HIT_RESERVED unless the dispatcher's
// resolution of it was RESERVATION_FAIL (MSHR exhaustion discovered only
// at enlistment time), in which case the access outcome is recorded
// instead.
func SelectStatsStatus(probe, access protocol.RequestStatus) protocol.RequestStatus {
	if probe == protocol.HitReserved && access != protocol.ReservationFail {
		return protocol.HitReserved
	}

	return access
}

// Record increments the (access_type, status) cell.
func (s *Stats) Record(accessType protocol.AccessType, status protocol.RequestStatus) {
	s.counts[accessType][status]++

	if s.metrics != nil {
		s.metrics.Accesses.WithLabelValues(s.Name, accessType.String(), status.String()).Inc()
	}
}

// Count returns the running total for one (access_type, status) cell.
func (s *Stats) Count(accessType protocol.AccessType, status protocol.RequestStatus) uint64 {
	return s.counts[accessType][status]
}

// RecordPortUtilization samples both ports' busy flags for one tick.
func (s *Stats) RecordPortUtilization(dataPortBusy, fillPortBusy bool) {
	s.totalTicks++

	if dataPortBusy {
		s.dataPortBusyTicks++
	}

	if fillPortBusy {
		s.fillPortBusyTicks++
	}

	if s.metrics != nil {
		s.metrics.DataPortBusyRatio.WithLabelValues(s.Name).Set(s.DataPortBusyRatio())
		s.metrics.FillPortBusyRatio.WithLabelValues(s.Name).Set(s.FillPortBusyRatio())
	}
}

// DataPortBusyRatio is the fraction of sampled ticks the data port was
// busy.
func (s *Stats) DataPortBusyRatio() float64 {
	if s.totalTicks == 0 {
		return 0
	}

	return float64(s.dataPortBusyTicks) / float64(s.totalTicks)
}

// FillPortBusyRatio is the fraction of sampled ticks the fill port was
// busy.
func (s *Stats) FillPortBusyRatio() float64 {
	if s.totalTicks == 0 {
		return 0
	}

	return float64(s.fillPortBusyTicks) / float64(s.totalTicks)
}

// RecordPrefetchHit attributes a tag-array HIT to a line a prefetch
// installed and demand had not yet touched.
func (s *Stats) RecordPrefetchHit(fillToUseInterval uint64) {
	s.PrefetchHits++
	s.prefetchUseIntervalSum += fillToUseInterval
	s.prefetchUseIntervalCount++

	if s.metrics != nil {
		s.metrics.PrefetchHits.WithLabelValues(s.Name).Inc()
	}
}

// RecordPrefetchHitReserved attributes a tag-array HIT_RESERVED the same
// way, for a line whose fill is still in flight.
func (s *Stats) RecordPrefetchHitReserved() {
	s.PrefetchHitReserved++

	if s.metrics != nil {
		s.metrics.PrefetchHitReserved.WithLabelValues(s.Name).Inc()
	}
}

// RecordUselessPrefetch marks a line evicted before demand ever touched
// it, despite being prefetched in.
func (s *Stats) RecordUselessPrefetch() {
	s.UselessPrefetches++

	if s.metrics != nil {
		s.metrics.UselessPrefetches.WithLabelValues(s.Name).Inc()
	}
}

// MeanPrefetchUseInterval is the mean fill-to-first-use interval over
// every recorded prefetch hit, or 0 if there have been none.
func (s *Stats) MeanPrefetchUseInterval() float64 {
	if s.prefetchUseIntervalCount == 0 {
		return 0
	}

	return float64(s.prefetchUseIntervalSum) / float64(s.prefetchUseIntervalCount)
}

// Metrics is the Prometheus export surface, shared across every Stats
// instance that Binds to it (one instance per simulated cache, labeled by
// name).
type Metrics struct {
	Accesses            *prometheus.CounterVec
	PrefetchHits        *prometheus.CounterVec
	PrefetchHitReserved *prometheus.CounterVec
	UselessPrefetches   *prometheus.CounterVec
	DataPortBusyRatio   *prometheus.GaugeVec
	FillPortBusyRatio   *prometheus.GaugeVec
}

// NewMetrics builds and registers the cache's Prometheus collectors
// against reg. Passing prometheus.NewRegistry() keeps a simulation's
// metrics out of the global default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Accesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpucache_accesses_total",
			Help: "Cache accesses by access type and resolved status.",
		}, []string{"cache", "access_type", "status"}),
		PrefetchHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpucache_prefetch_hits_total",
			Help: "Demand hits on lines installed by a prefetch and not yet touched.",
		}, []string{"cache"}),
		PrefetchHitReserved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpucache_prefetch_hit_reserved_total",
			Help: "Demand hit-reserved resolutions on lines installed by a prefetch.",
		}, []string{"cache"}),
		UselessPrefetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpucache_useless_prefetches_total",
			Help: "Prefetched lines evicted before any demand access touched them.",
		}, []string{"cache"}),
		DataPortBusyRatio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpucache_data_port_busy_ratio",
			Help: "Fraction of sampled cycles the data port was occupied.",
		}, []string{"cache"}),
		FillPortBusyRatio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpucache_fill_port_busy_ratio",
			Help: "Fraction of sampled cycles the fill port was occupied.",
		}, []string{"cache"}),
	}

	reg.MustRegister(m.Accesses, m.PrefetchHits, m.PrefetchHitReserved, m.UselessPrefetches, m.DataPortBusyRatio, m.FillPortBusyRatio)

	return m
}
