package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"modelsyncd/pkg/types"
)

// maxResponseBytes bounds how much of a backend response we are willing to
// decode. Model lists are small; anything larger is a misbehaving backend.
const maxResponseBytes int64 = 1 << 20

// HTTPCommander speaks JSON over HTTP to the backend daemon.
type HTTPCommander struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewHTTPCommander builds a Commander against baseURL (e.g.
// "http://127.0.0.1:9090"). A nil client uses a 15s-timeout default.
func NewHTTPCommander(baseURL string, client *http.Client, log zerolog.Logger) *HTTPCommander {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPCommander{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     log,
	}
}

func (c *HTTPCommander) ListModels(ctx context.Context) ([]types.Model, error) {
	var out types.ModelsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/models", nil, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

func (c *HTTPCommander) CurrentModel(ctx context.Context) (string, error) {
	var out struct {
		ModelID string `json:"model_id"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/models/current", nil, &out); err != nil {
		return "", err
	}
	return out.ModelID, nil
}

func (c *HTTPCommander) HasAnyModels(ctx context.Context) (bool, error) {
	var out struct {
		Available bool `json:"available"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/models/available", nil, &out); err != nil {
		return false, err
	}
	return out.Available, nil
}

func (c *HTTPCommander) SetActiveModel(ctx context.Context, id string) error {
	body := map[string]string{"model_id": id}
	return c.do(ctx, http.MethodPost, "/v1/models/active", body, nil)
}

func (c *HTTPCommander) DownloadModel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/v1/models/"+id+"/download", nil, nil)
}

func (c *HTTPCommander) CancelDownload(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/models/"+id+"/download", nil, nil)
}

func (c *HTTPCommander) DeleteModel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/models/"+id, nil, nil)
}

// do performs one round trip. Non-2xx responses decode the backend's error
// payload into a rejectedError; everything before a status line is a
// transportError.
func (c *HTTPCommander) do(ctx context.Context, method, path string, body, out any) error {
	op := method + " " + path
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return transportError{op: op, err: err}
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return transportError{op: op, err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-Id", reqID)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn().Str("op", op).Str("request_id", reqID).Err(err).Msg("gateway transport failure")
		return transportError{op: op, err: err}
	}
	defer resp.Body.Close()
	c.log.Debug().Str("op", op).Str("request_id", reqID).Int("status", resp.StatusCode).
		Dur("dur", time.Since(start)).Msg("gateway call")

	limited := io.LimitReader(resp.Body, maxResponseBytes)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload types.ErrorResponse
		if derr := json.NewDecoder(limited).Decode(&payload); derr != nil || payload.Error == "" {
			payload.Error = fmt.Sprintf("backend returned status %d", resp.StatusCode)
		}
		return rejectedError{op: op, code: resp.StatusCode, msg: payload.Error}
	}
	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, limited)
		return nil
	}
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return transportError{op: op, err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
