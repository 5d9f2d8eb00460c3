package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"modelsyncd/pkg/types"
)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
	// Event lines are tiny; anything longer is garbage from a confused peer.
	maxEventLineBytes = 64 * 1024
)

// StreamSource subscribes to the backend's NDJSON event stream at
// GET /v1/events: one JSON-encoded types.Event per line, connection held
// open indefinitely. Dropped connections are re-dialed with exponential
// backoff; events published while disconnected are lost, which is why the
// reconciler resyncs from snapshots rather than trusting event history.
type StreamSource struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewStreamSource builds an EventSource against baseURL. A nil client uses
// a default with no overall timeout (the stream is long-lived).
func NewStreamSource(baseURL string, client *http.Client, log zerolog.Logger) *StreamSource {
	if client == nil {
		client = &http.Client{}
	}
	return &StreamSource{baseURL: strings.TrimRight(baseURL, "/"), client: client, log: log}
}

// Subscribe starts the pump goroutine and returns its channel. The channel
// closes when ctx is canceled.
func (s *StreamSource) Subscribe(ctx context.Context) (<-chan types.Event, error) {
	ch := make(chan types.Event, 16)
	go s.pump(ctx, ch)
	return ch, nil
}

func (s *StreamSource) pump(ctx context.Context, ch chan<- types.Event) {
	defer close(ch)
	delay := reconnectBaseDelay
	for {
		if ctx.Err() != nil {
			return
		}
		connected, err := s.readStream(ctx, ch)
		if connected {
			delay = reconnectBaseDelay
		}
		if err != nil && ctx.Err() == nil {
			s.log.Warn().Err(err).Dur("retry_in", delay).Msg("event stream dropped")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

// readStream holds one connection open and forwards decoded events until
// the connection or context ends. It reports whether a stream was actually
// established so the caller can reset its backoff.
func (s *StreamSource) readStream(ctx context.Context, ch chan<- types.Event) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/events", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/x-ndjson")
	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, transportError{op: "GET /v1/events", err: errStatus(resp.StatusCode)}
	}
	s.log.Info().Msg("event stream connected")

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 4096), maxEventLineBytes)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev types.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			s.log.Warn().Err(err).Str("line", truncate(line, 120)).Msg("skipping malformed event")
			continue
		}
		if ev.Name == "" {
			continue
		}
		select {
		case ch <- ev:
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
	return true, sc.Err()
}

type errStatus int

func (e errStatus) Error() string { return fmt.Sprintf("unexpected status %d", int(e)) }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
