package server

import (
	"encoding/json"
	"net/http"
)

type playbackRequest struct {
	TrackID int64 `json:"trackId"`
}

// RequestPlaybackHandler starts (or re-requests) playback of a track.
// Re-requesting the current track while it plays is a no-op.
func (h *APIHandler) RequestPlaybackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req playbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	snap, err := h.gate.Request(r.Context(), userID, req.TrackID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// TogglePlaybackHandler flips the active session between playing and paused.
func (h *APIHandler) TogglePlaybackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	snap, err := h.gate.Toggle(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// StopPlaybackHandler tears the session down back to idle.
func (h *APIHandler) StopPlaybackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, h.gate.Stop(userID))
}

// GetPlaybackSessionHandler reports the caller's current session state.
func (h *APIHandler) GetPlaybackSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	snap, err := h.gate.Session(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// PurchaseTrackHandler buys a permanent entitlement to a track. Buying a
// track you already own is a no-op.
func (h *APIHandler) PurchaseTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	trackID, err := trackIDFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.gate.Purchase(r.Context(), userID, trackID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trackId": trackID, "entitled": true})
}

// GetLibraryHandler lists the caller's purchased tracks.
func (h *APIHandler) GetLibraryHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	ents, err := h.entRepo.ListByListener(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ents)
}
