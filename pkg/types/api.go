package types

// DownloadProgress is the raw per-model progress record. It is created when a
// download starts locally (zeroed) or on the first progress event, replaced
// wholesale by every subsequent progress event, and destroyed when the
// download reaches a terminal state.
type DownloadProgress struct {
	// Bytes downloaded so far.
	// example: 104857600
	BytesDownloaded int64 `json:"bytes_downloaded" example:"104857600"`
	// Total bytes, 0 until the first event reports it.
	// example: 487601408
	BytesTotal int64 `json:"bytes_total" example:"487601408"`
	// Completion percentage as reported by the backend.
	// example: 21.5
	Percent float64 `json:"percent" example:"21.5"`
}

// DownloadStatus is the projection of one in-flight download: the raw
// progress plus the smoothed throughput estimate.
type DownloadStatus struct {
	// ID of the model being downloaded.
	// example: whisper-small
	ModelID string `json:"model_id" example:"whisper-small"`
	// Raw progress from the latest event.
	Progress DownloadProgress `json:"progress"`
	// Exponentially smoothed throughput in bytes per second.
	// example: 5242880
	BytesPerSec float64 `json:"bytes_per_sec" example:"5242880"`
}

// SyncStatus is returned by GET /status: the full read-only view of the
// reconciler's state.
type SyncStatus struct {
	// Last known model snapshot.
	Models []Model `json:"models"`
	// Currently active model id, empty when none is set.
	// example: whisper-small
	ActiveModel string `json:"active_model,omitempty" example:"whisper-small"`
	// True iff no models are present anywhere (fresh install).
	// example: false
	FirstRun bool `json:"first_run" example:"false"`
	// True only while the very first full load is in flight.
	// example: false
	Loading bool `json:"loading" example:"false"`
	// Last user-facing failure message, cleared at the start of each action.
	LastError string `json:"last_error,omitempty"`
	// In-flight downloads with progress and throughput.
	Downloads []DownloadStatus `json:"downloads"`
	// Model ids currently extracting.
	Extracting []string `json:"extracting"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// Last known model snapshot.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not found: whisper-small
	Error string `json:"error" example:"model not found: whisper-small"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}
