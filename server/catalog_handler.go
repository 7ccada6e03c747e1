package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"artistsfirst/catalog"
	"artistsfirst/logger"
	"artistsfirst/model"
	"artistsfirst/storage"

	"github.com/gorilla/mux"
)

func trackIDFromRequest(r *http.Request) (int64, error) {
	idStr, ok := mux.Vars(r)["id"]
	if !ok {
		return 0, fmt.Errorf("missing track id")
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid track id %q", idStr)
	}
	return id, nil
}

// ownedTrack loads the track and verifies the caller owns it.
func (h *APIHandler) ownedTrack(r *http.Request) (model.Track, error) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		return model.Track{}, err
	}
	id, err := trackIDFromRequest(r)
	if err != nil {
		return model.Track{}, fmt.Errorf("%s: %w", err, catalog.ErrInvalidTrack)
	}
	track, err := h.catalog.Get(id)
	if err != nil {
		return model.Track{}, err
	}
	if track.ArtistID != userID {
		return model.Track{}, fmt.Errorf("track %d is not owned by user %d: %w", id, userID, catalog.ErrTrackNotFound)
	}
	return track, nil
}

// GetTracksHandler lists the catalog. Listeners see active tracks only;
// artists also see their drafts.
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	role, _ := GetRoleFromContext(r.Context())
	activeOnly := role != model.RoleArtist
	writeJSON(w, http.StatusOK, h.catalog.List(activeOnly))
}

// GetTrackHandler returns one track.
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	id, err := trackIDFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	track, err := h.catalog.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

// CreateTrackRequest is the owner-supplied track data.
type CreateTrackRequest struct {
	Title    string   `json:"title"`
	Artist   string   `json:"artist"`
	Price    model.AF `json:"price"`
	CoverRef string   `json:"coverRef"`
	AudioRef string   `json:"audioRef"`
}

// CreateTrackHandler adds a track to the caller's catalog.
func (h *APIHandler) CreateTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req CreateTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	track, err := h.catalog.Create(r.Context(), catalog.CreateSpec{
		ArtistID: userID,
		Title:    req.Title,
		Artist:   req.Artist,
		Price:    req.Price,
		CoverRef: req.CoverRef,
		AudioRef: req.AudioRef,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, track)
}

// UpdateTrackRequest carries a partial edit. Plays and revenue are
// accumulated counters; a request that tries to set them is rejected
// outright rather than silently ignored.
type UpdateTrackRequest struct {
	Title    *string   `json:"title"`
	Artist   *string   `json:"artist"`
	Price    *model.AF `json:"price"`
	CoverRef *string   `json:"coverRef"`
	AudioRef *string   `json:"audioRef"`
	Status   *string   `json:"status"`
	Plays    *int64    `json:"plays"`
	Revenue  *int64    `json:"revenue"`
}

// UpdateTrackHandler applies a partial edit to an owned track.
func (h *APIHandler) UpdateTrackHandler(w http.ResponseWriter, r *http.Request) {
	track, err := h.ownedTrack(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req UpdateTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Plays != nil || req.Revenue != nil {
		http.Error(w, "plays and revenue are derived counters and cannot be set", http.StatusBadRequest)
		return
	}
	updated, err := h.catalog.Update(r.Context(), track.ID, catalog.UpdateSpec{
		Title:    req.Title,
		Artist:   req.Artist,
		Price:    req.Price,
		CoverRef: req.CoverRef,
		AudioRef: req.AudioRef,
		Status:   req.Status,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteTrackHandler removes an owned track. Any live playback session on
// it is forced to stop through the catalog's deletion notification.
func (h *APIHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	track, err := h.ownedTrack(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.catalog.Delete(r.Context(), track.ID); err != nil {
		writeError(w, err)
		return
	}
	// Object cleanup is best-effort; a dangling object is not worth
	// failing the delete over.
	for _, ref := range []string{track.CoverRef, track.AudioRef} {
		if err := storage.RemoveObject(r.Context(), h.cfg, ref); err != nil {
			logger.Warn("Failed to remove object for deleted track",
				logger.Int64("trackId", track.ID),
				logger.String("ref", ref),
				logger.ErrorField(err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": track.ID})
}

// maxUploadSize caps cover and audio uploads at 64 MB.
const maxUploadSize = 64 << 20

// UploadCoverHandler stores a cover image for an owned track.
func (h *APIHandler) UploadCoverHandler(w http.ResponseWriter, r *http.Request) {
	h.uploadTrackObject(w, r, "covers", func(ref string) catalog.UpdateSpec {
		return catalog.UpdateSpec{CoverRef: &ref}
	})
}

// UploadAudioHandler stores the audio file for an owned track.
func (h *APIHandler) UploadAudioHandler(w http.ResponseWriter, r *http.Request) {
	h.uploadTrackObject(w, r, "audio", func(ref string) catalog.UpdateSpec {
		return catalog.UpdateSpec{AudioRef: &ref}
	})
}

func (h *APIHandler) uploadTrackObject(w http.ResponseWriter, r *http.Request, folder string, spec func(ref string) catalog.UpdateSpec) {
	track, err := h.ownedTrack(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	ref, err := storage.UploadObject(r.Context(), h.cfg, folder, ext, contentType, file, header.Size)
	if err != nil {
		writeError(w, err)
		return
	}
	updated, err := h.catalog.Update(r.Context(), track.ID, spec(ref))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
