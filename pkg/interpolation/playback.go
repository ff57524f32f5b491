package interpolation

import (
	"github.com/opd-ai/snapshotinterp/pkg/ema"
)

// maxExtrapolation bounds the interpolation fraction to guard against
// extrapolating indefinitely into a dropout. It is a safety valve, not a
// feature: callers whose Interpolate is robust to arbitrary t may not need
// it, but the default is kept for parity with the reference engine.
const maxExtrapolation = 2.5

// Playback is the consumer-side half of the engine. It advances a local
// playback_time, selects a bracketing pair of snapshots from a Buffer, and
// nudges its own timescale to track the remote clock while staying
// Settings.PlaybackOffset seconds behind it.
type Playback[T Snapshot[T]] struct {
	settings Settings

	remoteCounter uint64

	// PlaybackTime is the local engine's estimate of which remote-time
	// instant it is currently rendering.
	PlaybackTime float64

	// Timescale is the rate at which PlaybackTime advances relative to
	// wall-clock delta_time.
	Timescale float64

	// CatchupTime is a moving average of (target - playback_time): the
	// plant's integrator driving the timescale state machine.
	CatchupTime *ema.EMA

	// DBExtrapolatingEMA measures, over roughly 10 seconds, how often
	// playback has had to extrapolate past the newest snapshot.
	DBExtrapolatingEMA *ema.EMA
	// DBClampingEMA measures, over roughly 10 seconds, how often playback
	// time has had to be forcibly clamped back to the target.
	DBClampingEMA *ema.EMA
	// DBScalingEMA measures, over roughly 10 seconds, how often the
	// timescale has deviated from 1.0.
	DBScalingEMA *ema.EMA
}

// NewPlayback creates a Playback synchronized to buf's current counter, with
// playback_time starting at zero and timescale at 1.0.
func NewPlayback[T Snapshot[T]](buf *Buffer[T]) *Playback[T] {
	sendRate := buf.settings.SendRate()

	return &Playback[T]{
		settings: buf.settings,

		remoteCounter: buf.LastRemoteCounter(),
		PlaybackTime:  0.0,
		Timescale:     1.0,

		CatchupTime:        ema.New(sendRate),
		DBExtrapolatingEMA: ema.New(sendRate * 10.0),
		DBClampingEMA:      ema.New(sendRate * 10.0),
		DBScalingEMA:       ema.New(sendRate * 10.0),
	}
}

// Step advances playback_time by deltaTime*timescale, re-synchronizes
// against buf whenever a new remote snapshot has arrived since the last
// call, and returns the interpolated snapshot for the current playback
// time. It returns false if the buffer is empty and no fallback snapshot
// exists.
func (p *Playback[T]) Step(deltaTime float64, buf *Buffer[T]) (T, bool) {
	p.PlaybackTime += deltaTime * p.Timescale

	from, to, extrapolating, havePair := p.bracket(buf)

	if buf.LastRemoteCounter() != p.remoteCounter {
		p.remoteCounter = buf.LastRemoteCounter()
		p.resync(buf, extrapolating)
	}

	if havePair {
		t := LinearMap(p.PlaybackTime, from.RemoteTime(), to.RemoteTime(), 0, 1)
		if t < 0 {
			t = 0
		} else if t > maxExtrapolation {
			t = maxExtrapolation
		}
		return to.Interpolate(t, from, to), true
	}

	return buf.Latest()
}

// bracket scans the buffer front-to-back for the first snapshot older than
// playback_time and forms the interpolation pair around it. It reports
// whether playback is currently extrapolating (overrun the newest snapshot,
// or starved because every held snapshot is newer than playback_time).
func (p *Playback[T]) bracket(buf *Buffer[T]) (from, to T, extrapolating bool, ok bool) {
	idx := -1
	for i := 0; i < buf.Len(); i++ {
		s, _ := buf.At(i)
		if s.RemoteTime() < p.PlaybackTime {
			idx = i
			break
		}
	}

	switch {
	case idx == -1:
		// Every held snapshot arrived after playback_time: the buffer is
		// cold, or we're too far behind to bracket anything yet.
		var zero T
		return zero, zero, true, false

	case idx == 0:
		// playback_time has overrun the newest snapshot.
		to, okTo := buf.At(0)
		from, okFrom := buf.At(1)
		if !okTo || !okFrom {
			var zero T
			return zero, zero, true, false
		}
		return from, to, true, true

	default:
		from, okFrom := buf.At(idx)
		to, okTo := buf.At(idx - 1)
		if !okFrom || !okTo {
			var zero T
			return zero, zero, false, false
		}
		return from, to, false, true
	}
}

// resync is the edge-triggered correction step, run only when a new remote
// snapshot has become the buffer's front since the previous Step. Running
// it every frame (rather than on this edge) would let the timescale
// feedback amplify into oscillation.
func (p *Playback[T]) resync(buf *Buffer[T], extrapolating bool) {
	offset := buf.DynamicPlaybackOffset()

	// Account for time elapsed since we first observed this packet
	// arrive, to avoid systematically lagging behind by that amount.
	remoteNow := buf.LastRemoteTime() + (clock() - buf.LastRemoteInstant())
	target := remoteNow - offset

	clampRange := p.settings.PlaybackClamp()
	min, max := target-clampRange, target+clampRange

	switch {
	case p.PlaybackTime < min:
		p.PlaybackTime = min
		p.DBClampingEMA.Add(1.0)
	case p.PlaybackTime > max:
		p.PlaybackTime = max
		p.DBClampingEMA.Add(1.0)
	default:
		p.DBClampingEMA.Add(0.0)
	}

	if extrapolating {
		p.DBExtrapolatingEMA.Add(1.0)
	} else {
		p.DBExtrapolatingEMA.Add(0.0)
	}

	catchup := target - p.PlaybackTime
	p.CatchupTime.Add(catchup)

	p.Timescale = p.computeTimescale(p.CatchupTime.ValueOr(0.0))
}

// computeTimescale applies the slow/fast dead-band hysteresis: catch-up
// crossing the thresholds selects a fixed slow or fast speed, otherwise
// playback runs at the nominal 1.0x. A continuous PID here would oscillate
// under jitter; the dead-band is deliberate.
func (p *Playback[T]) computeTimescale(catchup float64) float64 {
	if catchup < p.settings.SlowThreshold() {
		p.DBScalingEMA.Add(1.0)
		return p.settings.PlaybackSlowSpeed
	}
	if catchup > p.settings.FastThreshold() {
		p.DBScalingEMA.Add(1.0)
		return p.settings.PlaybackFastSpeed
	}
	p.DBScalingEMA.Add(0.0)
	return 1.0
}
