package model

import "time"

// Track status values. Only active tracks are playable or purchasable.
const (
	TrackStatusActive = "Active"
	TrackStatusDraft  = "Draft"
)

// Track represents an audio track in the storefront catalog.
// Plays and Revenue are accumulated counters owned by the playback gate;
// they are never written directly through the editing API.
type Track struct {
	ID        int64     `json:"id"`
	ArtistID  int64     `json:"artistId"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	CoverRef  string    `json:"coverRef"` // Object path to cover art, served via object storage
	AudioRef  string    `json:"audioRef"` // Object path to the audio file
	Price     AF        `json:"price"`    // Purchase price in AF minor units
	Plays     int64     `json:"plays"`
	Revenue   AF        `json:"revenue"`
	Status    string    `json:"status"` // Active or Draft
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Playable reports whether the track may be streamed or purchased.
func (t *Track) Playable() bool {
	return t.Status == TrackStatusActive
}
