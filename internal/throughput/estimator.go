// Package throughput derives a smoothed transfer rate from an irregular
// stream of cumulative byte counts. Progress events arrive in bursts, so a
// raw delta-over-elapsed rate is numerically unstable; the estimator
// debounces sub-half-second samples and applies an exponentially weighted
// moving average to the rest.
package throughput

import "time"

const (
	// Samples closer together than this are ignored for rate purposes.
	debounceWindow = 500 * time.Millisecond
	// EWMA weights: keep 80% of the previous rate, blend in 20% of the
	// instantaneous one. Fixed policy, not configurable.
	smoothKeep  = 0.8
	smoothBlend = 0.2
)

// Estimator tracks throughput for a single download. The zero value is
// ready to use; the first observed sample seeds the state and yields no
// rate. Callers pass the sample time explicitly so behavior is
// deterministic under test.
type Estimator struct {
	started    bool
	startedAt  time.Time
	lastUpdate time.Time
	totalBytes int64
	rate       float64
	hasRate    bool
}

// Observe feeds one cumulative-bytes sample taken at now. Samples within
// the debounce window of the previous accepted sample are discarded for
// smoothing purposes; callers should still record the raw progress for
// display. A cumulative count lower than the previous one (a retry reset
// the counter) contributes an instantaneous rate of zero, never negative.
func (e *Estimator) Observe(cumulativeBytes int64, now time.Time) {
	if !e.started {
		e.started = true
		e.startedAt = now
		e.lastUpdate = now
		e.totalBytes = cumulativeBytes
		return
	}
	elapsed := now.Sub(e.lastUpdate)
	if elapsed <= debounceWindow {
		return
	}
	instant := float64(cumulativeBytes-e.totalBytes) / elapsed.Seconds()
	if instant < 0 {
		instant = 0
	}
	if e.hasRate {
		e.rate = e.rate*smoothKeep + instant*smoothBlend
	} else {
		e.rate = instant
		e.hasRate = true
	}
	e.lastUpdate = now
	e.totalBytes = cumulativeBytes
}

// Rate returns the smoothed throughput in bytes per second, 0 until two
// well-spaced samples have been observed.
func (e *Estimator) Rate() float64 { return e.rate }

// TotalBytes returns the cumulative byte count at the last accepted sample.
func (e *Estimator) TotalBytes() int64 { return e.totalBytes }

// StartedAt returns the time of the first observed sample.
func (e *Estimator) StartedAt() time.Time { return e.startedAt }
