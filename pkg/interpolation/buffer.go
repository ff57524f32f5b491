package interpolation

import (
	"time"

	"github.com/opd-ai/snapshotinterp/pkg/ema"
)

// clock returns the current local monotonic time in seconds. It is a var so
// tests can substitute a controllable clock.
var clock = func() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Buffer is the producer-side half of the engine: it orders, deduplicates
// and ages snapshots as they arrive from the network. Buffer does no locking:
// Insert mutates it and Playback.Step only reads it, so the two run on the
// same goroutine or behind the caller's own synchronization.
type Buffer[T Snapshot[T]] struct {
	settings Settings

	// buf is ordered front (newest) to back (oldest): buf[i].RemoteTime()
	// > buf[i+1].RemoteTime() strictly, for all adjacent i.
	buf    []T
	bufLen int

	lastRemoteTime    float64
	lastRemoteInstant float64
	lastRemoteCounter uint64

	// RemoteDeltaTime is a moving average of the gap between the remote
	// times of the newest two held snapshots, used to measure jitter.
	RemoteDeltaTime *ema.EMA
}

// NewBuffer creates an empty Buffer sized from settings.BufLen().
func NewBuffer[T Snapshot[T]](settings Settings) *Buffer[T] {
	sendRate := settings.SendRate()
	bufLen := settings.BufLen()

	return &Buffer[T]{
		settings: settings,
		buf:      make([]T, 0, bufLen),
		bufLen:   bufLen,

		RemoteDeltaTime: ema.New(sendRate * settings.DynamicPlaybackJitterDuration),
	}
}

// Latest returns the newest held snapshot, or false if the buffer is empty.
func (b *Buffer[T]) Latest() (T, bool) {
	if len(b.buf) == 0 {
		var zero T
		return zero, false
	}
	return b.buf[0], true
}

// Len returns the number of snapshots currently retained.
func (b *Buffer[T]) Len() int {
	return len(b.buf)
}

// At returns the i-th held snapshot, front (newest) to back (oldest).
func (b *Buffer[T]) At(i int) (T, bool) {
	if i < 0 || i >= len(b.buf) {
		var zero T
		return zero, false
	}
	return b.buf[i], true
}

// LastRemoteCounter is the edge-detector Playback uses to tell that new
// forward progress arrived: it increments exactly when an insertion
// produces a new front element.
func (b *Buffer[T]) LastRemoteCounter() uint64 {
	return b.lastRemoteCounter
}

// LastRemoteTime is the remote_time of the front element as of the last
// time it changed.
func (b *Buffer[T]) LastRemoteTime() float64 {
	return b.lastRemoteTime
}

// LastRemoteInstant is the local clock reading, in seconds, taken when the
// front element last changed.
func (b *Buffer[T]) LastRemoteInstant() float64 {
	return b.lastRemoteInstant
}

// DynamicPlaybackOffset is the configured playback offset, widened by the
// measured jitter std-dev when Settings.DynamicPlaybackTime is set.
func (b *Buffer[T]) DynamicPlaybackOffset() float64 {
	offset := b.settings.PlaybackOffset()
	if b.settings.DynamicPlaybackTime {
		return offset + b.RemoteDeltaTime.StdDev
	}
	return offset
}

// Insert adds a snapshot received from the remote. Duplicates (identical
// RemoteTime) are silently dropped, first arrival wins. Snapshots are kept
// strictly ordered newest-to-oldest and the buffer is trimmed to capacity
// by evicting the oldest. Only an insertion that produces a new front
// element advances LastRemoteCounter / LastRemoteTime / LastRemoteInstant
// and feeds RemoteDeltaTime — a late packet that lands in the interior
// updates ordering but is invisible to Playback's edge detector.
func (b *Buffer[T]) Insert(snapshot T) {
	if !b.insertOrdered(snapshot) {
		return
	}

	front := b.buf[0]
	if front.RemoteTime() != snapshot.RemoteTime() {
		// The insertion happened but did not become the new front.
		return
	}

	if len(b.buf) > 1 {
		delta := b.buf[0].RemoteTime() - b.buf[1].RemoteTime()
		b.RemoteDeltaTime.Add(delta)
	}

	b.lastRemoteInstant = clock()
	b.lastRemoteTime = front.RemoteTime()
	b.lastRemoteCounter++
}

// insertOrdered places item into buf keeping the newest-to-oldest order,
// dropping exact-time duplicates and evicting past capacity. It returns
// whether the item was actually inserted (false on duplicate).
func (b *Buffer[T]) insertOrdered(item T) bool {
	for _, existing := range b.buf {
		if existing.RemoteTime() == item.RemoteTime() {
			return false
		}
	}

	insertAt := -1
	for i, existing := range b.buf {
		if existing.RemoteTime() < item.RemoteTime() {
			insertAt = i
			break
		}
	}

	if insertAt >= 0 {
		b.buf = append(b.buf, item)
		copy(b.buf[insertAt+1:], b.buf[insertAt:])
		b.buf[insertAt] = item
	} else {
		b.buf = append(b.buf, item)
	}

	if len(b.buf) > b.bufLen {
		b.buf = b.buf[:len(b.buf)-1]
	}

	return true
}
