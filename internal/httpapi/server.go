package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"modelsyncd/internal/gateway"
	"modelsyncd/pkg/types"
)

// Service defines the reconciler methods required by the HTTP API layer.
type Service interface {
	Models() []types.Model
	Status() types.SyncStatus
	Progress(id string) (types.DownloadProgress, bool)
	Rate(id string) float64
	SelectModel(ctx context.Context, id string) error
	StartDownload(ctx context.Context, id string) error
	CancelDownload(ctx context.Context, id string) error
	DeleteModel(ctx context.Context, id string) error
	Ready() bool
}

// zlog is an optional structured logger. If unset, request logging is off.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// NewMux builds the projection router: read-only state queries plus thin
// pass-throughs to the reconciler's user actions.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(MetricsMiddleware)

	// ListModels godoc
	// @Summary  Last known model snapshot
	// @Produce  json
	// @Success  200 {object} types.ModelsResponse
	// @Router   /models [get]
	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.ModelsResponse{Models: svc.Models()})
	})

	// Status godoc
	// @Summary  Full sync state projection
	// @Produce  json
	// @Success  200 {object} types.SyncStatus
	// @Router   /status [get]
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	// Download progress for one model.
	r.Get("/models/{id}/progress", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		p, ok := svc.Progress(id)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "no download in progress for "+id)
			return
		}
		writeJSON(w, http.StatusOK, types.DownloadStatus{
			ModelID:     id,
			Progress:    p,
			BytesPerSec: svc.Rate(id),
		})
	})

	// SelectModel godoc
	// @Summary  Set the active model
	// @Accept   json
	// @Param    body body object{model_id=string} true "model id"
	// @Success  204
	// @Failure  400 {object} types.ErrorResponse
	// @Router   /models/active [post]
	r.Post("/models/active", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req struct {
			ModelID string `json:"model_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ModelID == "" {
			writeJSONError(w, http.StatusBadRequest, "model_id is required")
			return
		}
		runAction(w, r, "select", req.ModelID, svc.SelectModel)
	})

	r.Post("/models/{id}/download", func(w http.ResponseWriter, r *http.Request) {
		runAction(w, r, "download", chi.URLParam(r, "id"), svc.StartDownload)
	})

	r.Delete("/models/{id}/download", func(w http.ResponseWriter, r *http.Request) {
		runAction(w, r, "cancel", chi.URLParam(r, "id"), svc.CancelDownload)
	})

	r.Delete("/models/{id}", func(w http.ResponseWriter, r *http.Request) {
		runAction(w, r, "delete", chi.URLParam(r, "id"), svc.DeleteModel)
	})

	// Recent terminal download outcomes, newest first.
	r.Get("/history", handleHistory)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// runAction invokes one reconciler action and maps its failure to an HTTP
// status: backend refusals are conflicts, unreachable backends are bad
// gateways.
func runAction(w http.ResponseWriter, r *http.Request, name, id string, fn func(context.Context, string) error) {
	start := time.Now()
	err := fn(r.Context(), id)
	if zlog != nil {
		z := zlog.Info().Str("action", name).Str("model", id).Dur("dur", time.Since(start))
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Err(err).Msg("action")
	}
	if err != nil {
		switch {
		case gateway.IsBackendRejected(err):
			writeJSONError(w, http.StatusConflict, err.Error())
		case gateway.IsTransport(err):
			writeJSONError(w, http.StatusBadGateway, err.Error())
		default:
			writeJSONError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && zlog != nil {
		zlog.Warn().Err(err).Msg("response encode failed")
	}
}
