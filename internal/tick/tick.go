// Package tick provides the free-running 32-bit microsecond time base used by
// GPIO edge events. The counter wraps every 2^32 microseconds (~71.6 minutes),
// so ticks are only meaningful relative to each other.
package tick

import "time"

// Tick is a hardware microsecond counter value.
type Tick uint32

// Diff returns the number of microseconds from t1 to t2, modulo 2^32.
// The result is always the forward distance, even across a wrap.
func Diff(t1, t2 Tick) uint32 {
	return uint32(t2 - t1)
}

// Since returns Diff(t, now).
func Since(t, now Tick) uint32 {
	return Diff(t, now)
}

// FromDuration truncates a monotonic timestamp to a tick.
func FromDuration(d time.Duration) Tick {
	return Tick(uint64(d.Microseconds()))
}

// Add advances t by us microseconds, wrapping.
func (t Tick) Add(us uint32) Tick {
	return t + Tick(us)
}
