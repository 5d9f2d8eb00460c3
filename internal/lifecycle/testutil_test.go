package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"modelsyncd/pkg/types"
)

// fakeGateway is an in-memory Commander with scriptable responses. Every
// mutation is recorded so tests can assert on issued commands and refresh
// counts.
type fakeGateway struct {
	mu sync.Mutex

	models  []types.Model
	listErr error
	current string
	currErr error
	hasAny  bool
	hasErr  error

	setErr      error
	downloadErr error
	cancelErr   error
	deleteErr   error

	listCalls   int
	currCalls   int
	setCalls    []string
	downloads   []string
	cancels     []string
	deletes     []string
	listSignal  chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{listSignal: make(chan struct{}, 16)}
}

func (g *fakeGateway) ListModels(ctx context.Context) ([]types.Model, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listCalls++
	select {
	case g.listSignal <- struct{}{}:
	default:
	}
	if g.listErr != nil {
		return nil, g.listErr
	}
	out := make([]types.Model, len(g.models))
	copy(out, g.models)
	return out, nil
}

func (g *fakeGateway) CurrentModel(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.currCalls++
	return g.current, g.currErr
}

func (g *fakeGateway) HasAnyModels(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hasAny, g.hasErr
}

func (g *fakeGateway) SetActiveModel(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.setCalls = append(g.setCalls, id)
	return g.setErr
}

func (g *fakeGateway) DownloadModel(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.downloads = append(g.downloads, id)
	return g.downloadErr
}

func (g *fakeGateway) CancelDownload(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancels = append(g.cancels, id)
	return g.cancelErr
}

func (g *fakeGateway) DeleteModel(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deletes = append(g.deletes, id)
	return g.deleteErr
}

func (g *fakeGateway) listCallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.listCalls
}

func (g *fakeGateway) currCallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currCalls
}

// waitForList blocks until a ListModels call lands or the deadline passes.
// Resyncs after push events run as independent tasks, so tests must wait
// for the snapshot pull instead of assuming it already happened.
func (g *fakeGateway) waitForList(t *testing.T) {
	t.Helper()
	select {
	case <-g.listSignal:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot refresh")
	}
}

func (g *fakeGateway) drainListSignal() {
	for {
		select {
		case <-g.listSignal:
		default:
			return
		}
	}
}

// fakeClock is a settable clock for deterministic throughput assertions.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestReconciler(t *testing.T, gw *fakeGateway) (*Reconciler, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	r := New(Config{
		Gateway: gw,
		Logger:  zerolog.Nop(),
		Clock:   clk.Now,
	})
	return r, clk
}

func progressEvent(id string, done, total int64, pct float64) types.Event {
	return types.Event{
		Name:            types.EventDownloadProgress,
		ModelID:         id,
		BytesDownloaded: done,
		BytesTotal:      total,
		Percent:         pct,
	}
}
