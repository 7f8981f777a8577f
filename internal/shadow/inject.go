package shadow

import (
	"math/rand"
	"time"
)

// injector decides, per operation, whether to fail with a transient fault
// and whether to pause briefly to mimic real I/O latency. The top-level
// math/rand functions are safe for concurrent use, so no locking is needed.
type injector struct {
	rate   float64
	delays bool
}

func newInjector(rate float64, delays bool) *injector {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return &injector{rate: rate, delays: delays}
}

// fault samples against the configured failure rate.
func (in *injector) fault() bool {
	if in.rate <= 0 {
		return false
	}
	if in.rate >= 1 {
		return true
	}
	return rand.Float64() < in.rate
}

// pause sleeps for a small randomized interval when delay simulation is on.
func (in *injector) pause() {
	if !in.delays {
		return
	}
	time.Sleep(time.Duration(5+rand.Intn(20)) * time.Millisecond)
}
