package interpolation

import "math"

// Settings is an immutable description of how the buffer and playback
// should behave, derived entirely from the remote send period T plus a
// handful of multipliers. Construct one value per remote entity class (or
// share one across entities with the same send rate) and never mutate it
// after construction.
type Settings struct {
	// Period is the number of seconds between snapshots sent by the
	// remote (T).
	Period float64

	// BufDuration is the number of seconds of history the Buffer retains.
	BufDuration float64

	// DynamicPlaybackTime widens the playback offset by the measured
	// jitter std-dev when true.
	DynamicPlaybackTime bool

	// DynamicPlaybackJitterDuration is the EMA window, in seconds, used
	// to measure network jitter when DynamicPlaybackTime is set.
	DynamicPlaybackJitterDuration float64

	// PlaybackOffsetPeriods is how far behind the remote clock playback
	// aims to stay, in multiples of Period.
	PlaybackOffsetPeriods float64

	// PlaybackClampPeriods is the maximum drift, in multiples of Period,
	// playback is allowed before being forcibly clamped to the target.
	PlaybackClampPeriods float64

	// PlaybackSlowPeriods is the (negative) catch-up threshold, in
	// multiples of Period, below which playback slows down.
	PlaybackSlowPeriods float64
	// PlaybackSlowSpeed is the timescale applied while slowing.
	PlaybackSlowSpeed float64

	// PlaybackFastPeriods is the (positive) catch-up threshold, in
	// multiples of Period, above which playback hastens.
	PlaybackFastPeriods float64
	// PlaybackFastSpeed is the timescale applied while hastening.
	PlaybackFastSpeed float64
}

// DefaultSettings returns the engine's default tuning: a 200ms remote send
// period, a 2 second buffer, dynamic jitter compensation, one period of
// target lag, one period of clamp, and a +-0.5 period dead-band around
// 0.96x/1.02x timescales.
func DefaultSettings() Settings {
	return Settings{
		Period:      0.200,
		BufDuration: 2.0,

		DynamicPlaybackTime:           true,
		DynamicPlaybackJitterDuration: 2.0,

		PlaybackOffsetPeriods: 1.0,
		PlaybackClampPeriods:  1.0,

		PlaybackSlowPeriods: -0.5,
		PlaybackSlowSpeed:   0.96,

		PlaybackFastPeriods: 0.5,
		PlaybackFastSpeed:   1.02,
	}
}

// SendRate is the number of snapshots per second the remote dispatches.
func (s Settings) SendRate() float64 {
	return 1.0 / s.Period
}

// PlaybackOffset is the target lag, in seconds, playback aims to keep
// behind the remote clock.
func (s Settings) PlaybackOffset() float64 {
	return s.Period * s.PlaybackOffsetPeriods
}

// PlaybackClamp is the maximum drift, in seconds, before a forced clamp.
func (s Settings) PlaybackClamp() float64 {
	return s.Period * s.PlaybackClampPeriods
}

// FastThreshold is the catch-up value, in seconds, above which playback
// hastens.
func (s Settings) FastThreshold() float64 {
	return s.Period * s.PlaybackFastPeriods
}

// SlowThreshold is the (negative) catch-up value, in seconds, below which
// playback slows.
func (s Settings) SlowThreshold() float64 {
	return s.Period * s.PlaybackSlowPeriods
}

// BufLen is the buffer capacity, in snapshots, derived from send rate and
// BufDuration.
func (s Settings) BufLen() int {
	return int(math.Ceil(s.SendRate() * s.BufDuration))
}
