// Package catalog owns the track records: creation, edits, deletion, and
// the plays/revenue counters that the playback gate accumulates. Counter
// writes are increments under the catalog lock so concurrent streams of the
// same track never lose updates.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"artistsfirst/logger"
	"artistsfirst/model"
	"artistsfirst/store"
)

var (
	// ErrTrackNotFound is returned when no track exists for the id.
	ErrTrackNotFound = errors.New("catalog: track not found")

	// ErrTrackNotActive is returned when a draft track is requested for
	// playback or purchase.
	ErrTrackNotActive = errors.New("catalog: track not active")

	// ErrConcurrentModification is returned when a caller acts on a stale
	// price: the track changed between the caller's read and its write.
	ErrConcurrentModification = errors.New("catalog: track modified concurrently")

	// ErrInvalidTrack is returned for malformed create/update input.
	ErrInvalidTrack = errors.New("catalog: invalid track data")
)

const snapshotKey = "catalog"

// snapshot is the persisted form of the catalog.
type snapshot struct {
	NextID int64          `json:"nextId"`
	Tracks []*model.Track `json:"tracks"`
}

// Store is the authoritative track catalog.
type Store struct {
	mu     sync.Mutex
	tracks map[int64]*model.Track
	nextID int64
	kv     store.Store
	onDel  []func(trackID int64)
}

// NewStore creates a catalog on the given snapshot store, loading the
// persisted catalog if one exists.
func NewStore(ctx context.Context, kv store.Store) (*Store, error) {
	s := &Store{
		tracks: make(map[int64]*model.Track),
		nextID: 1,
		kv:     kv,
	}
	data, err := kv.Load(ctx, snapshotKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to load catalog snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog snapshot: %w", err)
	}
	for _, t := range snap.Tracks {
		s.tracks[t.ID] = t
	}
	s.nextID = snap.NextID
	return s, nil
}

// OnDelete registers a callback invoked after a track is deleted. The
// playback gate uses this to stop sessions that reference the track.
func (s *Store) OnDelete(fn func(trackID int64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDel = append(s.onDel, fn)
}

// CreateSpec is the owner-supplied portion of a new track. Plays, revenue
// and status are initialized by the catalog, not the caller.
type CreateSpec struct {
	ArtistID int64
	Title    string
	Artist   string
	CoverRef string
	AudioRef string
	Price    model.AF
}

// Create adds a new track with a fresh id. IDs are assigned from a
// persisted counter and never reused, even across deletes and restarts.
func (s *Store) Create(ctx context.Context, spec CreateSpec) (model.Track, error) {
	if spec.Title == "" {
		return model.Track{}, fmt.Errorf("title is required: %w", ErrInvalidTrack)
	}
	if spec.Price < 0 {
		return model.Track{}, fmt.Errorf("price must be non-negative: %w", ErrInvalidTrack)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	track := &model.Track{
		ID:        s.nextID,
		ArtistID:  spec.ArtistID,
		Title:     spec.Title,
		Artist:    spec.Artist,
		CoverRef:  spec.CoverRef,
		AudioRef:  spec.AudioRef,
		Price:     spec.Price,
		Status:    model.TrackStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.nextID++
	s.tracks[track.ID] = track
	if err := s.persist(ctx); err != nil {
		delete(s.tracks, track.ID)
		s.nextID--
		return model.Track{}, err
	}
	logger.Info("Track created", logger.Int64("trackId", track.ID), logger.String("title", track.Title))
	return *track, nil
}

// UpdateSpec carries the editable fields of a track. Nil fields are left
// unchanged. Plays and revenue are deliberately absent: they are
// accumulated by RecordStream and RecordSale only.
type UpdateSpec struct {
	Title    *string
	Artist   *string
	CoverRef *string
	AudioRef *string
	Price    *model.AF
	Status   *string
}

// Update applies a partial edit to a track.
func (s *Store) Update(ctx context.Context, id int64, spec UpdateSpec) (model.Track, error) {
	if spec.Price != nil && *spec.Price < 0 {
		return model.Track{}, fmt.Errorf("price must be non-negative: %w", ErrInvalidTrack)
	}
	if spec.Status != nil && *spec.Status != model.TrackStatusActive && *spec.Status != model.TrackStatusDraft {
		return model.Track{}, fmt.Errorf("unknown status %q: %w", *spec.Status, ErrInvalidTrack)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	track, ok := s.tracks[id]
	if !ok {
		return model.Track{}, ErrTrackNotFound
	}
	prev := *track
	if spec.Title != nil {
		track.Title = *spec.Title
	}
	if spec.Artist != nil {
		track.Artist = *spec.Artist
	}
	if spec.CoverRef != nil {
		track.CoverRef = *spec.CoverRef
	}
	if spec.AudioRef != nil {
		track.AudioRef = *spec.AudioRef
	}
	if spec.Price != nil {
		track.Price = *spec.Price
	}
	if spec.Status != nil {
		track.Status = *spec.Status
	}
	track.UpdatedAt = time.Now()
	if err := s.persist(ctx); err != nil {
		*track = prev
		return model.Track{}, err
	}
	return *track, nil
}

// Delete removes a track and notifies deletion subscribers so that any
// live playback session referencing it is forced to stop.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	track, ok := s.tracks[id]
	if !ok {
		s.mu.Unlock()
		return ErrTrackNotFound
	}
	delete(s.tracks, id)
	if err := s.persist(ctx); err != nil {
		s.tracks[id] = track
		s.mu.Unlock()
		return err
	}
	subs := make([]func(int64), len(s.onDel))
	copy(subs, s.onDel)
	s.mu.Unlock()

	logger.Info("Track deleted", logger.Int64("trackId", id), logger.String("title", track.Title))
	for _, fn := range subs {
		fn(id)
	}
	return nil
}

// Get returns a copy of the track.
func (s *Store) Get(id int64) (model.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	track, ok := s.tracks[id]
	if !ok {
		return model.Track{}, ErrTrackNotFound
	}
	return *track, nil
}

// List returns all tracks ordered by id. activeOnly restricts the result
// to playable tracks.
func (s *Store) List(activeOnly bool) []model.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		if activeOnly && !t.Playable() {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RecordStream attributes one billable stream start: plays and revenue are
// advanced together, by increment, as a single unit. This is the only path
// that moves the plays counter; it is called exclusively by the playback
// gate after a successful debit.
func (s *Store) RecordStream(ctx context.Context, id int64, unitPrice model.AF) error {
	if unitPrice < 0 {
		return fmt.Errorf("unit price must be non-negative: %w", ErrInvalidTrack)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	track, ok := s.tracks[id]
	if !ok {
		return ErrTrackNotFound
	}
	track.Plays++
	track.Revenue += unitPrice
	track.UpdatedAt = time.Now()
	if err := s.persist(ctx); err != nil {
		track.Plays--
		track.Revenue -= unitPrice
		return err
	}
	return nil
}

// RecordSale attributes a completed purchase at the price the buyer was
// shown. If the track's price changed in between, the sale is rejected
// with ErrConcurrentModification and nothing is applied; the caller must
// re-read the price, never proceed with the stale one. Sales move revenue
// only; plays counts billable streams.
func (s *Store) RecordSale(ctx context.Context, id int64, pricePaid model.AF) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	track, ok := s.tracks[id]
	if !ok {
		return ErrTrackNotFound
	}
	if track.Price != pricePaid {
		return fmt.Errorf("price is now %s, paid %s: %w", track.Price, pricePaid, ErrConcurrentModification)
	}
	track.Revenue += pricePaid
	track.UpdatedAt = time.Now()
	if err := s.persist(ctx); err != nil {
		track.Revenue -= pricePaid
		return err
	}
	return nil
}

// LifetimeRevenue sums accumulated revenue over an artist's tracks.
// Deleted tracks no longer contribute; their revenue was settled when the
// snapshot containing them was last withdrawn against.
func (s *Store) LifetimeRevenue(artistID int64) model.AF {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total model.AF
	for _, t := range s.tracks {
		if t.ArtistID == artistID {
			total += t.Revenue
		}
	}
	return total
}

// persist writes the catalog snapshot. A full store is a warning, the
// in-memory catalog stays authoritative; any other failure is returned so
// the caller can roll back. Callers hold s.mu.
func (s *Store) persist(ctx context.Context) error {
	snap := snapshot{NextID: s.nextID, Tracks: make([]*model.Track, 0, len(s.tracks))}
	for _, t := range s.tracks {
		snap.Tracks = append(snap.Tracks, t)
	}
	sort.Slice(snap.Tracks, func(i, j int) bool { return snap.Tracks[i].ID < snap.Tracks[j].ID })
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog snapshot: %w", err)
	}
	if err := s.kv.Save(ctx, snapshotKey, data); err != nil {
		if errors.Is(err, store.ErrStorageFull) {
			logger.Warn("Catalog snapshot not persisted, continuing in memory", logger.ErrorField(err))
			return nil
		}
		return fmt.Errorf("failed to persist catalog snapshot: %w", err)
	}
	return nil
}
