package world

import (
	"sync"
	"time"
)

const telemetryWindow = 60

// Telemetry is a snapshot of world-loop health: total ticks, the last step's
// work time, and a rolling average over the recent window.
type Telemetry struct {
	Ticks      uint64  `json:"ticks"`
	LastWorkMs float64 `json:"last_work_ms"`
	AvgWorkMs  float64 `json:"avg_work_ms"`
}

type telemetry struct {
	mu     sync.Mutex
	cur    Telemetry
	window [telemetryWindow]float64
}

func (t *telemetry) record(work time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ms := float64(work.Microseconds()) / 1000
	t.window[t.cur.Ticks%telemetryWindow] = ms
	t.cur.Ticks++
	t.cur.LastWorkMs = ms

	n := t.cur.Ticks
	if n > telemetryWindow {
		n = telemetryWindow
	}
	sum := 0.0
	for i := uint64(0); i < n; i++ {
		sum += t.window[i]
	}
	t.cur.AvgWorkMs = sum / float64(n)
}

func (t *telemetry) snapshot() Telemetry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur
}
