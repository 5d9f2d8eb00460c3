package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"modelsyncd/internal/gateway"
	"modelsyncd/internal/httpapi"
	"modelsyncd/internal/lifecycle"
	"modelsyncd/pkg/types"
)

// fakeBackend is an in-memory stand-in for the model backend. It serves the
// command endpoints and streams push events as NDJSON.
type fakeBackend struct {
	mu      sync.Mutex
	models  []types.Model
	active  string
	events  chan types.Event
	started []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{events: make(chan types.Event, 32)}
}

func (b *fakeBackend) setModels(models []types.Model) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.models = models
}

func (b *fakeBackend) push(ev types.Event) {
	b.events <- ev
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		resp := types.ModelsResponse{Models: append([]types.Model(nil), b.models...)}
		b.mu.Unlock()
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("GET /v1/models/available", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.ModelsResponse{})
	})
	mux.HandleFunc("GET /v1/models/current", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		active := b.active
		b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"model_id": active})
	})
	mux.HandleFunc("POST /v1/models/active", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ModelID string `json:"model_id"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.active = req.ModelID
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /v1/models/{id}/download", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		b.mu.Lock()
		b.started = append(b.started, id)
		for i := range b.models {
			if b.models[i].ID == id {
				b.models[i].IsDownloading = true
			}
		}
		b.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("DELETE /v1/models/{id}/download", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		b.mu.Lock()
		for i := range b.models {
			if b.models[i].ID == id {
				b.models[i].IsDownloading = false
			}
		}
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /v1/models/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /v1/events", func(w http.ResponseWriter, r *http.Request) {
		fl, _ := w.(http.Flusher)
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		if fl != nil {
			fl.Flush()
		}
		enc := json.NewEncoder(w)
		for {
			select {
			case <-r.Context().Done():
				return
			case ev := <-b.events:
				if err := enc.Encode(ev); err != nil {
					return
				}
				if fl != nil {
					fl.Flush()
				}
			}
		}
	})
	return mux
}

// harness wires a reconciler against the fake backend and exposes the
// daemon's own HTTP surface via httptest.
type harness struct {
	backend *fakeBackend
	rec     *lifecycle.Reconciler
	api     *httptest.Server
	cancel  context.CancelFunc
}

func newHarness(t *testing.T, models []types.Model) *harness {
	t.Helper()

	backend := newFakeBackend()
	backend.setModels(models)
	backendSrv := httptest.NewServer(backend.handler())
	t.Cleanup(backendSrv.Close)

	log := zerolog.Nop()
	cmd := gateway.NewHTTPCommander(backendSrv.URL, backendSrv.Client(), log)
	src := gateway.NewStreamSource(backendSrv.URL, backendSrv.Client(), log)

	rec := lifecycle.New(lifecycle.Config{
		Gateway: cmd,
		Events:  src,
		Logger:  log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := rec.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start: %v", err)
	}

	api := httptest.NewServer(httpapi.NewMux(rec))
	t.Cleanup(api.Close)
	t.Cleanup(cancel)

	return &harness{backend: backend, rec: rec, api: api, cancel: cancel}
}

func (h *harness) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(h.api.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func (h *harness) do(t *testing.T, method, path string, body []byte) int {
	t.Helper()
	req, err := http.NewRequest(method, h.api.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDownloadLifecycleEndToEnd(t *testing.T) {
	h := newHarness(t, []types.Model{
		{ID: "tiny", Name: "Tiny", SizeBytes: 1 << 20},
	})

	waitFor(t, "initial sync", func() bool {
		var st types.SyncStatus
		h.get(t, "/status", &st)
		return len(st.Models) == 1 && !st.Loading
	})

	// Start a download through the daemon's own API.
	if code := h.do(t, http.MethodPost, "/models/tiny/download", nil); code != http.StatusNoContent {
		t.Fatalf("start download: got %d, want 204", code)
	}
	h.backend.mu.Lock()
	started := append([]string(nil), h.backend.started...)
	h.backend.mu.Unlock()
	if len(started) != 1 || started[0] != "tiny" {
		t.Fatalf("backend saw downloads %v, want [tiny]", started)
	}

	var st types.SyncStatus
	h.get(t, "/status", &st)
	if len(st.Downloads) != 1 || st.Downloads[0].ModelID != "tiny" {
		t.Fatalf("downloads = %+v, want tiny in progress", st.Downloads)
	}

	// Progress events flow back through the stream into the projection.
	h.backend.push(types.Event{Name: types.EventDownloadProgress, ModelID: "tiny", BytesDownloaded: 512 << 10, BytesTotal: 1 << 20, Percent: 50})
	waitFor(t, "progress projection", func() bool {
		var p types.DownloadStatus
		if h.get(t, "/models/tiny/progress", &p) != http.StatusOK {
			return false
		}
		return p.Progress.BytesDownloaded == 512<<10
	})

	// Completion removes the download and triggers a resync that picks up
	// the now-downloaded model.
	h.backend.setModels([]types.Model{
		{ID: "tiny", Name: "Tiny", SizeBytes: 1 << 20, Downloaded: true},
	})
	h.backend.push(types.Event{Name: types.EventDownloadComplete, ModelID: "tiny"})
	waitFor(t, "completion", func() bool {
		var st types.SyncStatus
		h.get(t, "/status", &st)
		return len(st.Downloads) == 0 && len(st.Models) == 1 && st.Models[0].Downloaded
	})

	if code := h.get(t, "/models/tiny/progress", nil); code != http.StatusNotFound {
		t.Fatalf("progress after completion: got %d, want 404", code)
	}
}

func TestSelectModelEndToEnd(t *testing.T) {
	h := newHarness(t, []types.Model{
		{ID: "base", Name: "Base", Downloaded: true},
	})

	waitFor(t, "initial sync", func() bool {
		var st types.SyncStatus
		h.get(t, "/status", &st)
		return len(st.Models) == 1
	})

	body, _ := json.Marshal(map[string]string{"model_id": "base"})
	if code := h.do(t, http.MethodPost, "/models/active", body); code != http.StatusNoContent {
		t.Fatalf("select: got %d, want 204", code)
	}
	waitFor(t, "active model", func() bool {
		var st types.SyncStatus
		h.get(t, "/status", &st)
		return st.ActiveModel == "base"
	})
}

func TestCancelStopsTrackingWithoutResync(t *testing.T) {
	h := newHarness(t, []types.Model{
		{ID: "big", Name: "Big", SizeBytes: 4 << 30},
	})

	waitFor(t, "initial sync", func() bool {
		var st types.SyncStatus
		h.get(t, "/status", &st)
		return len(st.Models) == 1 && !st.Loading
	})

	if code := h.do(t, http.MethodPost, "/models/big/download", nil); code != http.StatusNoContent {
		t.Fatalf("start download: got %d", code)
	}
	if code := h.do(t, http.MethodDelete, "/models/big/download", nil); code != http.StatusNoContent {
		t.Fatalf("cancel download: got %d", code)
	}
	waitFor(t, "download cleared", func() bool {
		var st types.SyncStatus
		h.get(t, "/status", &st)
		return len(st.Downloads) == 0
	})
}
