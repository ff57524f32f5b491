package interpolation

import "testing"

// position is a minimal Snapshot[position] used across this package's
// tests: a single lerpable value tagged with a remote time.
type position struct {
	value float64
	at    float64
}

func pos(at float64) position {
	return position{value: at, at: at}
}

func (p position) RemoteTime() float64 {
	return p.at
}

func (p position) Interpolate(t float64, from, to position) position {
	return position{value: Lerp(from.value, to.value, t), at: to.at}
}

// fakeClock lets tests drive the local monotonic clock deterministically
// instead of depending on wall-clock time.
type fakeClock struct {
	now float64
}

func newFakeClock(start float64) *fakeClock {
	return &fakeClock{now: start}
}

func (f *fakeClock) install(t *testing.T) {
	prev := clock
	clock = func() float64 { return f.now }
	t.Cleanup(func() { clock = prev })
}

func (f *fakeClock) advance(d float64) {
	f.now += d
}
