package types

// Event names pushed by the backend over the event channel. Delivery is
// at-least-once and unordered across types; handlers must be idempotent.
const (
	EventDownloadProgress    = "model-download-progress"
	EventDownloadComplete    = "model-download-complete"
	EventDownloadCancelled   = "model-download-cancelled"
	EventExtractionStarted   = "model-extraction-started"
	EventExtractionCompleted = "model-extraction-completed"
	EventExtractionFailed    = "model-extraction-failed"
	EventModelDeleted        = "model-deleted"
	EventStateChanged        = "model-state-changed"
)

// Event is one backend lifecycle push. ModelID is empty for the coarse
// resync signals (model-deleted, model-state-changed); the byte fields are
// populated only for progress events and Error only for extraction failures.
type Event struct {
	Name            string  `json:"event"`
	ModelID         string  `json:"model_id,omitempty"`
	BytesDownloaded int64   `json:"bytes_downloaded,omitempty"`
	BytesTotal      int64   `json:"bytes_total,omitempty"`
	Percent         float64 `json:"percent,omitempty"`
	Error           string  `json:"error,omitempty"`
}
