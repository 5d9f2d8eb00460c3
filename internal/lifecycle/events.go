package lifecycle

import (
	"context"

	"modelsyncd/internal/throughput"
	"modelsyncd/pkg/types"
)

// HandleEvent applies one backend push. State is mutated synchronously on
// receipt; any follow-up resync is scheduled as an independent task so
// event delivery is never blocked behind a backend round trip. Multiple
// resyncs may be in flight at once; each applies a complete snapshot, so
// last writer wins.
func (r *Reconciler) HandleEvent(ev types.Event) {
	switch ev.Name {
	case types.EventDownloadProgress:
		r.applyProgress(ev)

	case types.EventDownloadComplete:
		if !r.removeDownloadState(ev.ModelID) {
			return
		}
		downloadsCompletedTotal.Inc()
		r.appendHistory(ev.ModelID, "completed")
		r.log.Info().Str("model", ev.ModelID).Msg("download complete")
		r.notifier.Publish(Note{Name: NoteDownloadComplete, ModelID: ev.ModelID})
		r.scheduleResync(false)

	case types.EventDownloadCancelled:
		// Typically confirms a cancel initiated elsewhere (another window).
		// State is already locally consistent, so no resync follows.
		if !r.removeDownloadState(ev.ModelID) {
			return
		}
		downloadsCancelledTotal.Inc()
		r.appendHistory(ev.ModelID, "cancelled")
		r.notifier.Publish(Note{Name: NoteDownloadCancelled, ModelID: ev.ModelID})

	case types.EventExtractionStarted:
		r.mu.Lock()
		r.extracting[ev.ModelID] = struct{}{}
		r.mu.Unlock()
		r.notifier.Publish(Note{Name: NoteExtractionChanged, ModelID: ev.ModelID})

	case types.EventExtractionCompleted:
		r.mu.Lock()
		delete(r.extracting, ev.ModelID)
		r.mu.Unlock()
		r.notifier.Publish(Note{Name: NoteExtractionChanged, ModelID: ev.ModelID})
		r.scheduleResync(false)

	case types.EventExtractionFailed:
		r.mu.Lock()
		delete(r.extracting, ev.ModelID)
		r.mu.Unlock()
		extractionFailuresTotal.Inc()
		r.setError("extraction of " + ev.ModelID + " failed: " + ev.Error)
		r.notifier.Publish(Note{Name: NoteExtractionChanged, ModelID: ev.ModelID})

	case types.EventModelDeleted, types.EventStateChanged:
		// Coarse "something changed elsewhere" signals with no payload to
		// reconcile selectively: re-pull everything.
		r.scheduleResync(true)

	default:
		r.log.Debug().Str("event", ev.Name).Msg("ignoring unknown event")
	}
}

// applyProgress replaces the raw progress record wholesale and feeds the
// throughput estimator. A progress event may arrive for an id with no local
// membership (a download started from another process); the record is kept
// and the next snapshot refresh supplies the membership.
func (r *Reconciler) applyProgress(ev types.Event) {
	now := r.clock()
	r.mu.Lock()
	r.progress[ev.ModelID] = types.DownloadProgress{
		BytesDownloaded: ev.BytesDownloaded,
		BytesTotal:      ev.BytesTotal,
		Percent:         ev.Percent,
	}
	est := r.rates[ev.ModelID]
	if est == nil {
		est = &throughput.Estimator{}
		r.rates[ev.ModelID] = est
	}
	est.Observe(ev.BytesDownloaded, now)
	rate := est.Rate()
	r.mu.Unlock()

	throughputBytesPerSec.WithLabelValues(ev.ModelID).Set(rate)
	r.notifier.Publish(Note{Name: NoteDownloadProgress, ModelID: ev.ModelID})
}

// scheduleResync enqueues an independent snapshot refresh (and, when
// withActive is set, an active-model refresh). The merge inside
// refreshModels re-reads current progress state when the snapshot lands,
// which is what keeps a stale in-flight refresh from resurrecting a
// download that reached a terminal state after the refresh began.
func (r *Reconciler) scheduleResync(withActive bool) {
	go func() {
		ctx := context.Background()
		r.refreshModels(ctx, false)
		if withActive {
			r.RefreshActiveModel(ctx)
		}
	}()
}
