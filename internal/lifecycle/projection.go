package lifecycle

import (
	"sort"

	"modelsyncd/pkg/types"
)

// Models returns a copy of the last known model snapshot.
func (r *Reconciler) Models() []types.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Model, len(r.models))
	copy(out, r.models)
	return out
}

// ActiveModel returns the currently active model id, empty when unset.
func (r *Reconciler) ActiveModel() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// FirstRun reports whether no models are present anywhere.
func (r *Reconciler) FirstRun() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.firstRun
}

// LastError returns the last user-facing failure message.
func (r *Reconciler) LastError() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

// IsDownloading reports whether id is in the download membership set.
func (r *Reconciler) IsDownloading(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.downloading[id]
	return ok
}

// IsExtracting reports whether id is currently extracting.
func (r *Reconciler) IsExtracting(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.extracting[id]
	return ok
}

// Progress returns the raw progress record for id, if one exists.
func (r *Reconciler) Progress(id string) (types.DownloadProgress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.progress[id]
	return p, ok
}

// Rate returns the smoothed throughput for id in bytes per second, 0 when
// no estimate exists yet.
func (r *Reconciler) Rate(id string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if est, ok := r.rates[id]; ok {
		return est.Rate()
	}
	return 0
}

// Ready reports whether the initial full load has finished.
func (r *Reconciler) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized && !r.loading
}

// Status assembles the full read-only projection in one consistent view.
func (r *Reconciler) Status() types.SyncStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := types.SyncStatus{
		Models:         make([]types.Model, len(r.models)),
		ActiveModel:    r.active,
		FirstRun:       r.firstRun,
		Loading:        r.loading,
		LastError:      r.lastErr,
		Downloads:      make([]types.DownloadStatus, 0, len(r.downloading)),
		Extracting:     make([]string, 0, len(r.extracting)),
		ServerTimeUnix: r.clock().Unix(),
	}
	copy(st.Models, r.models)

	for id := range r.downloading {
		ds := types.DownloadStatus{ModelID: id}
		if p, ok := r.progress[id]; ok {
			ds.Progress = p
		}
		if est, ok := r.rates[id]; ok {
			ds.BytesPerSec = est.Rate()
		}
		st.Downloads = append(st.Downloads, ds)
	}
	sort.Slice(st.Downloads, func(i, j int) bool {
		return st.Downloads[i].ModelID < st.Downloads[j].ModelID
	})

	for id := range r.extracting {
		st.Extracting = append(st.Extracting, id)
	}
	sort.Strings(st.Extracting)
	return st
}
