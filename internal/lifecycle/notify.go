package lifecycle

import "sync"

// Note names published by the reconciler after state changes.
const (
	NoteLoaded            = "loaded"
	NoteModelsRefreshed   = "models-refreshed"
	NoteActiveChanged     = "active-changed"
	NoteDownloadStarted   = "download-started"
	NoteDownloadProgress  = "download-progress"
	NoteDownloadComplete  = "download-complete"
	NoteDownloadCancelled = "download-cancelled"
	NoteDownloadRejected  = "download-rejected"
	NoteExtractionChanged = "extraction-changed"
	NoteModelDeleted      = "model-deleted"
	NoteError             = "error"
)

// Note is one change notification: name plus the model it concerns, when
// there is one.
type Note struct {
	Name    string
	ModelID string
}

// Notifier receives change notifications from the reconciler so readers can
// react without polling. Implementations should be lightweight and
// non-blocking; Publish must not panic.
type Notifier interface {
	Publish(Note)
}

// noopNotifier is the default; it drops notes.
type noopNotifier struct{}

func (noopNotifier) Publish(Note) {}

// MemoryNotifier stores notes in-memory for tests.
type MemoryNotifier struct {
	mu    sync.Mutex
	notes []Note
}

func NewMemoryNotifier() *MemoryNotifier { return &MemoryNotifier{} }

func (n *MemoryNotifier) Publish(note Note) {
	n.mu.Lock()
	n.notes = append(n.notes, note)
	n.mu.Unlock()
}

func (n *MemoryNotifier) Notes() []Note {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Note, len(n.notes))
	copy(out, n.notes)
	return out
}
