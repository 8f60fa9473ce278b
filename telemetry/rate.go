package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/periph/conn/physic"
)

// rateHistory is how many arrival timestamps the ring keeps; the rolling
// mean is taken over the differences between consecutive ones.
const rateHistory = 100

// rateEstimator tracks the mean inter-arrival duration of a sequence of
// events using a bounded ring of timestamps, publishing the mean through a
// single atomic uint64 for lock-free reads. The encoding packs whole
// seconds into the upper 32 bits and sub-second nanoseconds into the lower
// 32 bits.
type rateEstimator struct {
	mu   sync.Mutex
	ring []time.Time // newest first, capped at rateHistory

	encoded atomic.Uint64
}

func (r *rateEstimator) observe(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ring = append([]time.Time{now}, r.ring...)
	if len(r.ring) > rateHistory {
		r.ring = r.ring[:rateHistory]
	}
	if len(r.ring) < 2 {
		return
	}

	var total time.Duration
	for i := 0; i < len(r.ring)-1; i++ {
		total += r.ring[i].Sub(r.ring[i+1])
	}
	mean := total / time.Duration(len(r.ring)-1)
	r.encoded.Store(encodeDuration(mean))
}

// period returns the current mean inter-arrival duration.
func (r *rateEstimator) period() time.Duration {
	return decodeDuration(r.encoded.Load())
}

// rate returns the current mean inter-arrival duration expressed as a
// frequency, 0 if fewer than two samples have been observed.
func (r *rateEstimator) rate() physic.Frequency {
	p := r.period()
	if p <= 0 {
		return 0
	}
	return physic.PeriodToFrequency(p)
}

func encodeDuration(d time.Duration) uint64 {
	secs := uint64(d / time.Second)
	nanos := uint64(d % time.Second)
	return secs<<32 | nanos
}

func decodeDuration(v uint64) time.Duration {
	secs := v >> 32
	nanos := v & 0xFFFFFFFF
	return time.Duration(secs)*time.Second + time.Duration(nanos)
}
