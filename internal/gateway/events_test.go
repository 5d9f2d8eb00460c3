package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"modelsyncd/pkg/types"
)

func TestStreamSourceDeliversEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/events" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		fl := w.(http.Flusher)
		fmt.Fprintln(w, `{"event":"model-download-progress","model_id":"m1","bytes_downloaded":500,"bytes_total":1000,"percent":50}`)
		fmt.Fprintln(w, `not json, should be skipped`)
		fmt.Fprintln(w, `{"event":"model-download-complete","model_id":"m1"}`)
		fl.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := NewStreamSource(srv.URL, srv.Client(), zerolog.Nop())
	ch, err := src.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ev := recvEvent(t, ch)
	if ev.Name != types.EventDownloadProgress || ev.ModelID != "m1" || ev.BytesDownloaded != 500 {
		t.Fatalf("unexpected first event: %+v", ev)
	}
	ev = recvEvent(t, ch)
	if ev.Name != types.EventDownloadComplete || ev.ModelID != "m1" {
		t.Fatalf("unexpected second event: %+v", ev)
	}
}

func TestStreamSourceClosesOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	src := NewStreamSource(srv.URL, srv.Client(), zerolog.Nop())
	ch, err := src.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()

	select {
	case _, open := <-ch:
		if open {
			t.Fatalf("expected closed channel after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}

func TestStreamSourceReconnects(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if conns.Add(1) == 1 {
			// First connection drops immediately after one event.
			fmt.Fprintln(w, `{"event":"model-state-changed"}`)
			return
		}
		fmt.Fprintln(w, `{"event":"model-deleted"}`)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := NewStreamSource(srv.URL, srv.Client(), zerolog.Nop())
	ch, err := src.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if ev := recvEvent(t, ch); ev.Name != types.EventStateChanged {
		t.Fatalf("unexpected first event: %+v", ev)
	}
	// Second event arrives only after a reconnect.
	if ev := recvEvent(t, ch); ev.Name != types.EventModelDeleted {
		t.Fatalf("unexpected second event: %+v", ev)
	}
}

func recvEvent(t *testing.T, ch <-chan types.Event) types.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for event")
		return types.Event{}
	}
}
