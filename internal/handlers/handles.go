package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"video-thumbnail/internal/logging"
)

// ClearCache removes every cached thumbnail of the namespace path
// variable, or of the default namespace when it is absent.
func (h *Handlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	namespace := mux.Vars(r)["namespace"]
	if namespace == "" {
		namespace = h.engine.Namespace()
	}

	removed := h.engine.ClearCache(r.Context(), namespace)
	logging.Info("Cleared %d cached thumbnails from namespace %s", removed, namespace)
	writeJSONStatusCode(w, http.StatusOK, map[string]interface{}{
		"namespace": namespace,
		"removed":   removed,
	})
}

// GetHandle serves the image bytes behind a handle reference.
func (h *Handlers) GetHandle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	handle, ok := h.handles.Resolve(id)
	if !ok {
		writeJSONError(w, "handle not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", handle.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(handle.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(handle.Data); err != nil {
		logging.Debug("Failed to write handle %s: %v", id, err)
	}
}

// RevokeHandle releases a handle reference.
func (h *Handlers) RevokeHandle(w http.ResponseWriter, r *http.Request) {
	if !h.handles.Revoke(mux.Vars(r)["id"]) {
		writeJSONError(w, "handle not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
