package pollsched

import (
	"testing"
	"time"
)

func TestMetricsFireCounters(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	if snap.TotalFires != 0 {
		t.Errorf("Expected 0 initial fires, got %d", snap.TotalFires)
	}

	m.RecordMainLoopFire()
	m.RecordTimerFire(false)
	m.RecordTimerFire(true)
	m.RecordDeviceFire()

	snap = m.Snapshot()
	if snap.MainLoopFires != 1 {
		t.Errorf("Expected 1 main-loop fire, got %d", snap.MainLoopFires)
	}
	if snap.TimerFires != 2 {
		t.Errorf("Expected 2 timer fires, got %d", snap.TimerFires)
	}
	if snap.TimerRearms != 1 {
		t.Errorf("Expected 1 timer rearm, got %d", snap.TimerRearms)
	}
	if snap.DeviceFires != 1 {
		t.Errorf("Expected 1 device fire, got %d", snap.DeviceFires)
	}
	if snap.TotalFires != 4 {
		t.Errorf("Expected 4 total fires, got %d", snap.TotalFires)
	}
}

func TestMetricsErrorCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordSlotTableFull()
	m.RecordSlotTableFull()
	m.RecordPlatformTransient()
	m.RecordPlatformFatal()

	snap := m.Snapshot()
	if snap.SlotTableFullCount != 2 {
		t.Errorf("Expected 2 slot-table-full errors, got %d", snap.SlotTableFullCount)
	}
	if snap.PlatformTransientErrors != 1 {
		t.Errorf("Expected 1 platform-transient error, got %d", snap.PlatformTransientErrors)
	}
	if snap.PlatformFatalErrors != 1 {
		t.Errorf("Expected 1 platform-fatal error, got %d", snap.PlatformFatalErrors)
	}
}

func TestMetricsWaitLatency(t *testing.T) {
	m := NewMetrics()

	m.RecordWait(1_000_000) // 1ms
	m.RecordWait(2_000_000) // 2ms

	snap := m.Snapshot()
	if snap.AvgWaitLatencyNs != 1_500_000 {
		t.Errorf("Expected avg wait latency 1500000 ns, got %d ns", snap.AvgWaitLatencyNs)
	}
	if snap.ReadinessWaits != 2 {
		t.Errorf("Expected 2 readiness waits, got %d", snap.ReadinessWaits)
	}
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()

	time.Sleep(10 * time.Millisecond)
	snap := m.Snapshot()
	if snap.UptimeNs < 10*1_000_000 {
		t.Errorf("Expected uptime >= 10ms, got %d ns", snap.UptimeNs)
	}

	m.Stop()
	time.Sleep(5 * time.Millisecond)
	snap2 := m.Snapshot()
	if snap2.UptimeNs > snap.UptimeNs+2*1_000_000 {
		t.Errorf("Uptime increased too much after Stop: %d -> %d", snap.UptimeNs, snap2.UptimeNs)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()

	m.RecordMainLoopFire()
	m.RecordWait(1_000_000)
	m.RecordSlotTableFull()

	snap := m.Snapshot()
	if snap.TotalFires == 0 {
		t.Error("Expected some fires before reset")
	}

	m.Reset()

	snap = m.Snapshot()
	if snap.TotalFires != 0 {
		t.Errorf("Expected 0 fires after reset, got %d", snap.TotalFires)
	}
	if snap.SlotTableFullCount != 0 {
		t.Errorf("Expected 0 slot-table-full count after reset, got %d", snap.SlotTableFullCount)
	}
}

func TestMetricsHistogram(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 50; i++ {
		m.RecordWait(500_000) // 500us
	}
	for i := 0; i < 49; i++ {
		m.RecordWait(5_000_000) // 5ms
	}
	m.RecordWait(50_000_000) // 50ms, P99

	snap := m.Snapshot()
	if snap.ReadinessWaits != 100 {
		t.Errorf("Expected 100 waits, got %d", snap.ReadinessWaits)
	}
	if snap.WaitLatencyP50Ns < 100_000 || snap.WaitLatencyP50Ns > 1_000_000 {
		t.Errorf("Expected P50 in 100us-1ms range, got %d ns", snap.WaitLatencyP50Ns)
	}
	if snap.WaitLatencyP99Ns < 5_000_000 || snap.WaitLatencyP99Ns > 100_000_000 {
		t.Errorf("Expected P99 in 5ms-100ms range, got %d ns", snap.WaitLatencyP99Ns)
	}

	total := uint64(0)
	for _, v := range snap.WaitLatencyHistogram {
		total += v
	}
	if total == 0 {
		t.Error("Expected histogram buckets to be populated")
	}
}

func TestObserver(t *testing.T) {
	observer := &NoOpObserver{}
	observer.ObserveMainLoopFire()
	observer.ObserveTimerFire(true)
	observer.ObserveDeviceFire()
	observer.ObserveWait(1000)
	observer.ObserveSlotTableFull()
	observer.ObservePlatformTransient()
	observer.ObservePlatformFatal()

	m := NewMetrics()
	metricsObserver := NewMetricsObserver(m)

	metricsObserver.ObserveMainLoopFire()
	metricsObserver.ObserveDeviceFire()

	snap := m.Snapshot()
	if snap.MainLoopFires != 1 {
		t.Errorf("Expected 1 main-loop fire from observer, got %d", snap.MainLoopFires)
	}
	if snap.DeviceFires != 1 {
		t.Errorf("Expected 1 device fire from observer, got %d", snap.DeviceFires)
	}
}
