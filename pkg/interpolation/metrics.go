package interpolation

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes a Playback's and Buffer's read-only observability
// signals as Prometheus gauges: the debug EMAs, the functional
// catch-up/timescale state, and the measured remote jitter. None of
// these values feed back into the algorithm — Collect only reads.
//
// Collect must be called from the same goroutine that owns step/insert, or
// behind whatever synchronization the caller has chosen for Buffer and
// Playback; the Collector performs no locking itself.
type Collector[T Snapshot[T]] struct {
	label    string
	playback *Playback[T]
	buf      *Buffer[T]

	extrapolating *prometheus.Desc
	clamping      *prometheus.Desc
	scaling       *prometheus.Desc
	catchup       *prometheus.Desc
	timescale     *prometheus.Desc
	playbackTime  *prometheus.Desc
	remoteJitter  *prometheus.Desc
	bufferLen     *prometheus.Desc
}

// NewCollector builds a Collector for one tracked remote entity, identified
// by label in the exported metrics (e.g. an entity or connection ID).
func NewCollector[T Snapshot[T]](label string, playback *Playback[T], buf *Buffer[T]) *Collector[T] {
	labels := []string{"entity"}
	return &Collector[T]{
		label:    label,
		playback: playback,
		buf:      buf,

		extrapolating: prometheus.NewDesc(
			"snapshotinterp_extrapolating_ratio", "Fraction of recent resyncs at which playback was extrapolating past the newest snapshot or had nothing to bracket (0 healthy, 1 unhealthy).", labels, nil),
		clamping: prometheus.NewDesc(
			"snapshotinterp_clamping_ratio", "Fraction of recent resyncs that forced a clamp (0 healthy, 1 unhealthy).", labels, nil),
		scaling: prometheus.NewDesc(
			"snapshotinterp_scaling_ratio", "Fraction of recent resyncs that left 1.0x timescale (0 healthy, some expected).", labels, nil),
		catchup: prometheus.NewDesc(
			"snapshotinterp_catchup_seconds", "Smoothed catch-up time: target minus playback time.", labels, nil),
		timescale: prometheus.NewDesc(
			"snapshotinterp_timescale", "Current local playback timescale.", labels, nil),
		playbackTime: prometheus.NewDesc(
			"snapshotinterp_playback_time_seconds", "Current local playback time, in the remote's clock.", labels, nil),
		remoteJitter: prometheus.NewDesc(
			"snapshotinterp_remote_jitter_seconds", "Standard deviation of the measured inter-arrival remote time gap.", labels, nil),
		bufferLen: prometheus.NewDesc(
			"snapshotinterp_buffer_length", "Number of snapshots currently retained in the buffer.", labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector[T]) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.extrapolating
	ch <- c.clamping
	ch <- c.scaling
	ch <- c.catchup
	ch <- c.timescale
	ch <- c.playbackTime
	ch <- c.remoteJitter
	ch <- c.bufferLen
}

// Collect implements prometheus.Collector.
func (c *Collector[T]) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.extrapolating, prometheus.GaugeValue, c.playback.DBExtrapolatingEMA.ValueOr(0), c.label)
	ch <- prometheus.MustNewConstMetric(c.clamping, prometheus.GaugeValue, c.playback.DBClampingEMA.ValueOr(0), c.label)
	ch <- prometheus.MustNewConstMetric(c.scaling, prometheus.GaugeValue, c.playback.DBScalingEMA.ValueOr(0), c.label)
	ch <- prometheus.MustNewConstMetric(c.catchup, prometheus.GaugeValue, c.playback.CatchupTime.ValueOr(0), c.label)
	ch <- prometheus.MustNewConstMetric(c.timescale, prometheus.GaugeValue, c.playback.Timescale, c.label)
	ch <- prometheus.MustNewConstMetric(c.playbackTime, prometheus.GaugeValue, c.playback.PlaybackTime, c.label)
	ch <- prometheus.MustNewConstMetric(c.remoteJitter, prometheus.GaugeValue, c.buf.RemoteDeltaTime.StdDev, c.label)
	ch <- prometheus.MustNewConstMetric(c.bufferLen, prometheus.GaugeValue, float64(c.buf.Len()), c.label)
}
