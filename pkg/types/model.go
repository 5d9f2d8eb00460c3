package types

// Model mirrors one backend-managed model artifact. The backend creates and
// destroys models; this process only reflects the last snapshot it was given.
type Model struct {
	// Stable identifier for the model.
	// example: whisper-small
	ID string `json:"id" example:"whisper-small"`
	// Human-friendly name.
	// example: Whisper Small
	Name string `json:"name" example:"Whisper Small"`
	// Short description shown alongside the model.
	Description string `json:"description,omitempty"`
	// Approximate artifact size in bytes, as reported by the backend.
	// example: 487601408
	SizeBytes int64 `json:"size_bytes,omitempty" example:"487601408"`
	// Whether the artifact is currently present on disk.
	// example: true
	Downloaded bool `json:"downloaded" example:"true"`
	// Backend-reported in-flight download flag from the last snapshot.
	// example: false
	IsDownloading bool `json:"is_downloading" example:"false"`
	// Whether the engine supports per-language selection for this model.
	// example: true
	SupportsLanguages bool `json:"supports_languages,omitempty" example:"true"`
	// Whether the engine supports translation output for this model.
	// example: false
	SupportsTranslation bool `json:"supports_translation,omitempty" example:"false"`
}
