// Package interpolation buffers authoritative remote snapshots and plays
// them back smoothly against local time, tolerating latency, jitter,
// packet loss, reorder and duplication.
package interpolation

import "math"

// Snapshot is any value an application wants to interpolate between two
// points in remote time. Implementations are supplied by the caller; the
// engine only orders, ages and blends them. T is expected to implement
// Snapshot[T] on itself (the receiver of Interpolate may be ignored — it
// stands in for the associated function a non-generic language would use).
type Snapshot[T any] interface {
	// RemoteTime is the time, in the remote's clock and in seconds, at
	// which this snapshot was produced. The origin is arbitrary but must
	// be consistent across all snapshots from one sender.
	RemoteTime() float64

	// Interpolate produces a value t of the way from "from" to "to". t in
	// [0, 1] is interpolation; t > 1 (capped by the engine at 2.5) is
	// extrapolation.
	Interpolate(t float64, from, to T) T
}

// Lerp linearly interpolates between a and b. t is not clamped: t < 0 or
// t > 1 linearly extends past the endpoints.
func Lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

// LinearMap remaps x from the range [a, b] to the range [c, d].
func LinearMap(x, a, b, c, d float64) float64 {
	return c + (x-a)*(d-c)/(b-a)
}

// LerpAngle interpolates an angle in degrees, always taking the shortest
// arc around the circle, and reduces the result modulo 360.
func LerpAngle(a, b, t float64) float64 {
	low, high := a, b
	delta := high - low

	switch {
	case delta > 180:
		t = 1 - t
		low, high = b, a+360
		delta = high - low
	case delta < -180:
		low, high = a, b+360
		delta = high - low
	}

	return math.Mod(math.Mod(low+t*delta, 360)+360, 360)
}
