package pollsched

import (
	"sync/atomic"
	"time"
)

// WaitLatencyBuckets defines the readiness-wait latency histogram buckets
// in nanoseconds, logarithmically spaced from 1us to 10s. Retargeted from
// a per-I/O latency histogram to per-wait-primitive-call latency.
var WaitLatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numWaitLatencyBuckets = 8

// Metrics tracks the scheduler's operational statistics: how often each
// phase of a pass (spec.md §4.5) fires callbacks, how long the wait
// primitive blocks, and how often each branch of the §7 error taxonomy is
// taken.
type Metrics struct {
	MainLoopFires atomic.Uint64
	TimerFires    atomic.Uint64
	TimerRearms   atomic.Uint64
	DeviceFires   atomic.Uint64

	ReadinessWaits          atomic.Uint64
	SlotTableFullCount      atomic.Uint64 // register() returning INSUFFICIENT_RESOURCES
	PlatformTransientErrors atomic.Uint64
	PlatformFatalErrors     atomic.Uint64

	TotalWaitLatencyNs atomic.Uint64
	WaitCount          atomic.Uint64
	WaitLatencyBuckets [numWaitLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordMainLoopFire records one MAIN_LOOP callback firing (§4.5 step 1).
func (m *Metrics) RecordMainLoopFire() { m.MainLoopFires.Add(1) }

// RecordTimerFire records one TIMER callback firing (§4.5 step 2).
// rearmed is true if the entry was periodic and got reinserted.
func (m *Metrics) RecordTimerFire(rearmed bool) {
	m.TimerFires.Add(1)
	if rearmed {
		m.TimerRearms.Add(1)
	}
}

// RecordDeviceFire records one DEVICE callback firing (§4.5 step 4).
func (m *Metrics) RecordDeviceFire() { m.DeviceFires.Add(1) }

// RecordWait records one call to the backend's wait primitive and its
// observed latency.
func (m *Metrics) RecordWait(latencyNs uint64) {
	m.ReadinessWaits.Add(1)
	m.TotalWaitLatencyNs.Add(latencyNs)
	m.WaitCount.Add(1)
	for i, bucket := range WaitLatencyBuckets {
		if latencyNs <= bucket {
			m.WaitLatencyBuckets[i].Add(1)
		}
	}
}

// RecordSlotTableFull records a register() call that returned
// INSUFFICIENT_RESOURCES (§7 resource-exhaustion).
func (m *Metrics) RecordSlotTableFull() { m.SlotTableFullCount.Add(1) }

// RecordPlatformTransient records a wait-primitive error classified
// transient (§7): logged and the pass continues.
func (m *Metrics) RecordPlatformTransient() { m.PlatformTransientErrors.Add(1) }

// RecordPlatformFatal records a wait-primitive error classified fatal (§7):
// diagnostic dump precedes abort.
func (m *Metrics) RecordPlatformFatal() { m.PlatformFatalErrors.Add(1) }

// Stop marks the scheduler as torn down, freezing uptime calculations.
func (m *Metrics) Stop() { m.StopTime.Store(time.Now().UnixNano()) }

// MetricsSnapshot is a point-in-time, non-atomic copy of Metrics plus
// derived statistics.
type MetricsSnapshot struct {
	MainLoopFires uint64
	TimerFires    uint64
	TimerRearms   uint64
	DeviceFires   uint64

	ReadinessWaits          uint64
	SlotTableFullCount      uint64
	PlatformTransientErrors uint64
	PlatformFatalErrors     uint64

	AvgWaitLatencyNs uint64
	WaitLatencyP50Ns uint64
	WaitLatencyP99Ns uint64

	WaitLatencyHistogram [numWaitLatencyBuckets]uint64

	UptimeNs   uint64
	FireRate   float64 // total callback fires per second
	TotalFires uint64
}

// Snapshot creates a point-in-time snapshot of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		MainLoopFires:           m.MainLoopFires.Load(),
		TimerFires:              m.TimerFires.Load(),
		TimerRearms:             m.TimerRearms.Load(),
		DeviceFires:             m.DeviceFires.Load(),
		ReadinessWaits:          m.ReadinessWaits.Load(),
		SlotTableFullCount:      m.SlotTableFullCount.Load(),
		PlatformTransientErrors: m.PlatformTransientErrors.Load(),
		PlatformFatalErrors:     m.PlatformFatalErrors.Load(),
	}

	snap.TotalFires = snap.MainLoopFires + snap.TimerFires + snap.DeviceFires

	totalWaitNs := m.TotalWaitLatencyNs.Load()
	waitCount := m.WaitCount.Load()
	if waitCount > 0 {
		snap.AvgWaitLatencyNs = totalWaitNs / waitCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}
	if snap.UptimeNs > 0 {
		snap.FireRate = float64(snap.TotalFires) / (float64(snap.UptimeNs) / 1e9)
	}

	for i := 0; i < numWaitLatencyBuckets; i++ {
		snap.WaitLatencyHistogram[i] = m.WaitLatencyBuckets[i].Load()
	}
	if waitCount > 0 {
		snap.WaitLatencyP50Ns = m.calculatePercentile(0.50)
		snap.WaitLatencyP99Ns = m.calculatePercentile(0.99)
	}

	return snap
}

// calculatePercentile estimates the wait latency at the given percentile
// (0.0-1.0) using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	total := m.WaitCount.Load()
	if total == 0 {
		return 0
	}
	targetCount := uint64(float64(total) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range WaitLatencyBuckets {
		bucketCount := m.WaitLatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.WaitLatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}
	return WaitLatencyBuckets[numWaitLatencyBuckets-1]
}

// Reset zeroes every counter and restarts the uptime clock.
func (m *Metrics) Reset() {
	m.MainLoopFires.Store(0)
	m.TimerFires.Store(0)
	m.TimerRearms.Store(0)
	m.DeviceFires.Store(0)
	m.ReadinessWaits.Store(0)
	m.SlotTableFullCount.Store(0)
	m.PlatformTransientErrors.Store(0)
	m.PlatformFatalErrors.Store(0)
	m.TotalWaitLatencyNs.Store(0)
	m.WaitCount.Store(0)
	for i := 0; i < numWaitLatencyBuckets; i++ {
		m.WaitLatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable collection of scheduler metrics, e.g. to a
// Prometheus registry instead of (or alongside) the built-in Metrics.
type Observer interface {
	ObserveMainLoopFire()
	ObserveTimerFire(rearmed bool)
	ObserveDeviceFire()
	ObserveWait(latencyNs uint64)
	ObserveSlotTableFull()
	ObservePlatformTransient()
	ObservePlatformFatal()
}

// NoOpObserver is a no-op Observer, the default when none is configured.
type NoOpObserver struct{}

func (NoOpObserver) ObserveMainLoopFire()        {}
func (NoOpObserver) ObserveTimerFire(bool)       {}
func (NoOpObserver) ObserveDeviceFire()          {}
func (NoOpObserver) ObserveWait(uint64)          {}
func (NoOpObserver) ObserveSlotTableFull()        {}
func (NoOpObserver) ObservePlatformTransient()    {}
func (NoOpObserver) ObservePlatformFatal()        {}

// MetricsObserver implements Observer by forwarding to a Metrics instance.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver { return &MetricsObserver{metrics: m} }

func (o *MetricsObserver) ObserveMainLoopFire()     { o.metrics.RecordMainLoopFire() }
func (o *MetricsObserver) ObserveTimerFire(r bool)  { o.metrics.RecordTimerFire(r) }
func (o *MetricsObserver) ObserveDeviceFire()       { o.metrics.RecordDeviceFire() }
func (o *MetricsObserver) ObserveWait(ns uint64)    { o.metrics.RecordWait(ns) }
func (o *MetricsObserver) ObserveSlotTableFull()     { o.metrics.RecordSlotTableFull() }
func (o *MetricsObserver) ObservePlatformTransient() { o.metrics.RecordPlatformTransient() }
func (o *MetricsObserver) ObservePlatformFatal()     { o.metrics.RecordPlatformFatal() }

var (
	_ Observer = (*MetricsObserver)(nil)
	_ Observer = (*NoOpObserver)(nil)
)
