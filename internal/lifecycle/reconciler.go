package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"modelsyncd/internal/gateway"
	"modelsyncd/internal/throughput"
	"modelsyncd/pkg/types"
)

// Cache persists reconciler state across restarts. Implementations must be
// safe for concurrent use; all writes are best-effort and failures are only
// logged.
type Cache interface {
	// SaveSnapshot stores the latest accepted model snapshot and active id.
	SaveSnapshot(models []types.Model, activeID string) error
	// AppendHistory records a terminal download outcome.
	AppendHistory(modelID, outcome string, at time.Time) error
}

// Config holds the collaborators for a Reconciler. Gateway is required;
// everything else has a working default.
type Config struct {
	Gateway  gateway.Commander
	Events   gateway.EventSource
	Notifier Notifier
	Cache    Cache
	Logger   zerolog.Logger
	// Clock is injectable for deterministic throughput tests.
	Clock func() time.Time
}

// Reconciler is the single writer of lifecycle state. Download membership
// is the union of the backend's last snapshot and locally started downloads
// not yet contradicted by a terminal event or fresh snapshot; extraction
// membership is populated solely by push events.
type Reconciler struct {
	gw       gateway.Commander
	events   gateway.EventSource
	notifier Notifier
	cache    Cache
	log      zerolog.Logger
	clock    func() time.Time

	mu          sync.RWMutex
	models      []types.Model
	downloading map[string]struct{}
	extracting  map[string]struct{}
	progress    map[string]types.DownloadProgress
	rates       map[string]*throughput.Estimator
	active      string
	firstRun    bool
	lastErr     string
	loading     bool
	initialized bool
}

// New constructs a Reconciler from cfg, applying defaults for optional
// collaborators.
func New(cfg Config) *Reconciler {
	n := cfg.Notifier
	if n == nil {
		n = noopNotifier{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Reconciler{
		gw:          cfg.Gateway,
		events:      cfg.Events,
		notifier:    n,
		cache:       cfg.Cache,
		log:         cfg.Logger,
		clock:       clock,
		downloading: make(map[string]struct{}),
		extracting:  make(map[string]struct{}),
		progress:    make(map[string]types.DownloadProgress),
		rates:       make(map[string]*throughput.Estimator),
	}
}

// Start attaches the event listener and performs the initial full load.
// It runs at most once per process; repeated calls are no-ops. Duplicate
// listener registration would double-apply every event, so the initialized
// guard is checked under the lock before anything else.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.initialized {
		r.mu.Unlock()
		return nil
	}
	r.initialized = true
	r.loading = true
	r.mu.Unlock()

	if r.events != nil {
		ch, err := r.events.Subscribe(ctx)
		if err != nil {
			r.mu.Lock()
			r.initialized = false
			r.loading = false
			r.mu.Unlock()
			return err
		}
		go func() {
			for ev := range ch {
				r.HandleEvent(ev)
			}
		}()
	}

	r.RefreshModels(ctx)
	r.RefreshActiveModel(ctx)
	r.CheckFirstRun(ctx)

	r.mu.Lock()
	r.loading = false
	r.mu.Unlock()
	r.notifier.Publish(Note{Name: NoteLoaded})
	return nil
}

// RefreshModels replaces the model list with the backend's current snapshot
// and merges download membership. Transport failure is recorded as the
// user-facing error message but never returned; callers wanting best-effort
// refresh need nothing from us.
func (r *Reconciler) RefreshModels(ctx context.Context) {
	r.refreshModels(ctx, true)
}

func (r *Reconciler) refreshModels(ctx context.Context, recordErr bool) {
	models, err := r.gw.ListModels(ctx)
	if err != nil {
		refreshesTotal.WithLabelValues("failure").Inc()
		r.log.Warn().Err(err).Msg("model snapshot refresh failed")
		if recordErr {
			r.setError("failed to refresh models: " + err.Error())
		}
		return
	}
	refreshesTotal.WithLabelValues("success").Inc()
	r.applySnapshot(models)
}

// applySnapshot installs a snapshot and applies the asymmetric membership
// merge: every id the snapshot marks downloading joins the set; an id
// already in the set leaves only if the snapshot says it is not downloading
// AND no progress record exists for it right now. The progress check runs
// at merge time, never at refresh-initiation time, so a stale snapshot that
// raced a locally started download cannot erase it.
func (r *Reconciler) applySnapshot(models []types.Model) {
	snapshot := make([]types.Model, len(models))
	copy(snapshot, models)

	r.mu.Lock()
	r.models = snapshot
	reported := make(map[string]bool, len(snapshot))
	for _, m := range snapshot {
		reported[m.ID] = m.IsDownloading
		if m.IsDownloading {
			r.downloading[m.ID] = struct{}{}
		}
	}
	for id := range r.downloading {
		if reported[id] {
			continue
		}
		if _, inFlight := r.progress[id]; inFlight {
			continue
		}
		delete(r.downloading, id)
	}
	active := r.active
	r.mu.Unlock()

	r.persistSnapshot(snapshot, active)
	r.notifier.Publish(Note{Name: NoteModelsRefreshed})
}

// RefreshActiveModel pulls the active model id from the backend. This is
// best-effort state; failures are logged and nothing visible changes.
func (r *Reconciler) RefreshActiveModel(ctx context.Context) {
	id, err := r.gw.CurrentModel(ctx)
	if err != nil {
		r.log.Debug().Err(err).Msg("active model refresh failed")
		return
	}
	r.mu.Lock()
	changed := r.active != id
	r.active = id
	r.mu.Unlock()
	if changed {
		r.notifier.Publish(Note{Name: NoteActiveChanged, ModelID: id})
	}
}

// CheckFirstRun asks the backend whether any models are present anywhere
// and records the answer as authoritative. On failure the previous value
// stands.
func (r *Reconciler) CheckFirstRun(ctx context.Context) bool {
	available, err := r.gw.HasAnyModels(ctx)
	if err != nil {
		r.log.Debug().Err(err).Msg("first-run check failed")
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.firstRun
	}
	r.mu.Lock()
	r.firstRun = !available
	out := r.firstRun
	r.mu.Unlock()
	return out
}

// SelectModel issues a set-active command. There is no optimistic update:
// the active model gates feature availability elsewhere, so it only changes
// on confirmed success.
func (r *Reconciler) SelectModel(ctx context.Context, id string) error {
	r.setError("")
	if err := r.gw.SetActiveModel(ctx, id); err != nil {
		r.setError("failed to select model " + id + ": " + err.Error())
		return err
	}
	r.mu.Lock()
	r.active = id
	r.firstRun = false
	models := r.models
	r.mu.Unlock()
	r.persistSnapshot(models, id)
	r.notifier.Publish(Note{Name: NoteActiveChanged, ModelID: id})
	return nil
}

// StartDownload optimistically marks id as downloading with zeroed progress
// before issuing the command, so readers reflect intent immediately. On
// backend rejection the optimistic state is rolled back to exactly what
// held before the call; on success it stands until the backend's own events
// confirm or contradict it.
func (r *Reconciler) StartDownload(ctx context.Context, id string) error {
	r.setError("")

	r.mu.Lock()
	_, wasMember := r.downloading[id]
	r.downloading[id] = struct{}{}
	if !wasMember {
		r.progress[id] = types.DownloadProgress{}
		r.rates[id] = &throughput.Estimator{}
	}
	r.mu.Unlock()
	downloadsStartedTotal.Inc()
	r.notifier.Publish(Note{Name: NoteDownloadStarted, ModelID: id})

	if err := r.gw.DownloadModel(ctx, id); err != nil {
		if !wasMember {
			r.mu.Lock()
			delete(r.downloading, id)
			delete(r.progress, id)
			delete(r.rates, id)
			r.mu.Unlock()
		}
		downloadsRejectedTotal.Inc()
		r.setError("failed to start download of " + id + ": " + err.Error())
		r.notifier.Publish(Note{Name: NoteDownloadRejected, ModelID: id})
		return err
	}
	r.log.Info().Str("model", id).Msg("download started")
	return nil
}

// CancelDownload asks the backend to stop a download. Cancellation is a
// distinct backend instruction, not a transport-side abort of the original
// command; local bookkeeping is removed on confirmation only, and a full
// snapshot refresh follows because a cancelled download can leave
// backend-side partial state that only a fresh list resolves.
func (r *Reconciler) CancelDownload(ctx context.Context, id string) error {
	r.setError("")
	if err := r.gw.CancelDownload(ctx, id); err != nil {
		r.setError("failed to cancel download of " + id + ": " + err.Error())
		return err
	}
	if r.removeDownloadState(id) {
		downloadsCancelledTotal.Inc()
		r.appendHistory(id, "cancelled")
	}
	r.log.Info().Str("model", id).Msg("download cancelled")
	r.notifier.Publish(Note{Name: NoteDownloadCancelled, ModelID: id})
	r.refreshModels(ctx, false)
	return nil
}

// DeleteModel removes an artifact. Deleting the active model changes what
// is active, so both the snapshot and the active id are re-pulled.
func (r *Reconciler) DeleteModel(ctx context.Context, id string) error {
	r.setError("")
	if err := r.gw.DeleteModel(ctx, id); err != nil {
		r.setError("failed to delete model " + id + ": " + err.Error())
		return err
	}
	r.log.Info().Str("model", id).Msg("model deleted")
	r.notifier.Publish(Note{Name: NoteModelDeleted, ModelID: id})
	r.refreshModels(ctx, false)
	r.RefreshActiveModel(ctx)
	return nil
}

// removeDownloadState drops membership, progress and throughput state for
// id together. Progress and estimator state go unconditionally: a progress
// event can create them before any snapshot grants membership (a download
// started elsewhere), and a terminal event must not leave that record
// serving stale data forever. The return value reports whether id was a
// member, so terminal signals for unknown ids stay no-ops for metrics,
// history and resync purposes.
func (r *Reconciler) removeDownloadState(id string) bool {
	r.mu.Lock()
	_, wasMember := r.downloading[id]
	delete(r.downloading, id)
	delete(r.progress, id)
	delete(r.rates, id)
	r.mu.Unlock()
	throughputBytesPerSec.DeleteLabelValues(id)
	return wasMember
}

func (r *Reconciler) setError(msg string) {
	r.mu.Lock()
	r.lastErr = msg
	r.mu.Unlock()
	if msg != "" {
		r.notifier.Publish(Note{Name: NoteError})
	}
}

func (r *Reconciler) persistSnapshot(models []types.Model, active string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.SaveSnapshot(models, active); err != nil {
		r.log.Warn().Err(err).Msg("snapshot cache write failed")
	}
}

func (r *Reconciler) appendHistory(id, outcome string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.AppendHistory(id, outcome, r.clock()); err != nil {
		r.log.Warn().Err(err).Str("model", id).Msg("history write failed")
	}
}

// WarmStart seeds the model list and active id from persisted state so
// readers have data before the first backend refresh lands. It must be
// called before Start.
func (r *Reconciler) WarmStart(models []types.Model, active string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized || len(r.models) > 0 {
		return
	}
	r.models = models
	r.active = active
}
