package httpapi

import (
	"net/http"
	"strconv"

	"modelsyncd/internal/store"
)

// HistoryProvider serves recorded terminal download outcomes.
type HistoryProvider interface {
	History(limit int) ([]store.HistoryEntry, error)
}

var historyProvider HistoryProvider

// SetHistoryProvider installs the download-history source. Must be called
// before NewMux; when unset, /history serves an empty list.
func SetHistoryProvider(p HistoryProvider) { historyProvider = p }

func handleHistory(w http.ResponseWriter, r *http.Request) {
	if historyProvider == nil {
		writeJSON(w, http.StatusOK, []store.HistoryEntry{})
		return
	}
	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := historyProvider.History(limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []store.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
