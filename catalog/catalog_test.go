package catalog

import (
	"context"
	"testing"

	"artistsfirst/model"
	"artistsfirst/store"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(context.Background(), store.NewMemoryStore(0))
	require.NoError(t, err)
	return s
}

func mustCreate(t *testing.T, s *Store, spec CreateSpec) model.Track {
	t.Helper()
	track, err := s.Create(context.Background(), spec)
	require.NoError(t, err)
	return track
}

func TestCreateValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, CreateSpec{ArtistID: 1, Title: "", Price: 100})
	require.ErrorIs(t, err, ErrInvalidTrack)

	_, err = s.Create(ctx, CreateSpec{ArtistID: 1, Title: "Song", Price: -1})
	require.ErrorIs(t, err, ErrInvalidTrack)
}

func TestCreateNeverReusesIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := mustCreate(t, s, CreateSpec{ArtistID: 1, Title: "One", Price: 100})
	require.NoError(t, s.Delete(ctx, first.ID))

	second := mustCreate(t, s, CreateSpec{ArtistID: 1, Title: "Two", Price: 100})
	require.Greater(t, second.ID, first.ID)
}

func TestUpdatePartialEdit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	track := mustCreate(t, s, CreateSpec{ArtistID: 1, Title: "One", Artist: "A", Price: 100})

	newTitle := "Renamed"
	newPrice := model.AF(250)
	updated, err := s.Update(ctx, track.ID, UpdateSpec{Title: &newTitle, Price: &newPrice})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Title)
	require.Equal(t, model.AF(250), updated.Price)
	require.Equal(t, "A", updated.Artist, "unset fields stay unchanged")

	badStatus := "archived"
	_, err = s.Update(ctx, track.ID, UpdateSpec{Status: &badStatus})
	require.ErrorIs(t, err, ErrInvalidTrack)

	_, err = s.Update(ctx, 999, UpdateSpec{Title: &newTitle})
	require.ErrorIs(t, err, ErrTrackNotFound)
}

func TestRecordStreamAdvancesCountersTogether(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	track := mustCreate(t, s, CreateSpec{ArtistID: 1, Title: "One", Price: 100})

	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordStream(ctx, track.ID, 1))
	}

	got, err := s.Get(track.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5), got.Plays)
	require.Equal(t, model.AF(5), got.Revenue, "revenue tracks unit price times plays")
}

func TestRecordStreamUnknownTrack(t *testing.T) {
	s := newTestStore(t)
	err := s.RecordStream(context.Background(), 42, 1)
	require.ErrorIs(t, err, ErrTrackNotFound)
}

func TestRecordSalePriceGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	track := mustCreate(t, s, CreateSpec{ArtistID: 1, Title: "One", Price: 100})

	// The price moved between the buyer's read and the sale.
	err := s.RecordSale(ctx, track.ID, 90)
	require.ErrorIs(t, err, ErrConcurrentModification)

	got, err := s.Get(track.ID)
	require.NoError(t, err)
	require.Equal(t, model.AF(0), got.Revenue, "a rejected sale must apply nothing")

	require.NoError(t, s.RecordSale(ctx, track.ID, 100))
	got, err = s.Get(track.ID)
	require.NoError(t, err)
	require.Equal(t, model.AF(100), got.Revenue)
	require.Equal(t, int64(0), got.Plays, "sales never move the plays counter")
}

func TestDeleteNotifiesSubscribers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	track := mustCreate(t, s, CreateSpec{ArtistID: 1, Title: "One", Price: 100})

	var deleted []int64
	s.OnDelete(func(id int64) { deleted = append(deleted, id) })

	require.NoError(t, s.Delete(ctx, track.ID))
	require.Equal(t, []int64{track.ID}, deleted)

	_, err := s.Get(track.ID)
	require.ErrorIs(t, err, ErrTrackNotFound)

	require.ErrorIs(t, s.Delete(ctx, track.ID), ErrTrackNotFound)
}

func TestListActiveOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active := mustCreate(t, s, CreateSpec{ArtistID: 1, Title: "Active", Price: 100})
	hidden := mustCreate(t, s, CreateSpec{ArtistID: 1, Title: "Hidden", Price: 100})

	draft := model.TrackStatusDraft
	_, err := s.Update(ctx, hidden.ID, UpdateSpec{Status: &draft})
	require.NoError(t, err)

	all := s.List(false)
	require.Len(t, all, 2)

	playable := s.List(true)
	require.Len(t, playable, 1)
	require.Equal(t, active.ID, playable[0].ID)
}

func TestLifetimeRevenuePerArtist(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mine := mustCreate(t, s, CreateSpec{ArtistID: 1, Title: "Mine", Price: 100})
	other := mustCreate(t, s, CreateSpec{ArtistID: 2, Title: "Other", Price: 100})

	require.NoError(t, s.RecordStream(ctx, mine.ID, 1))
	require.NoError(t, s.RecordStream(ctx, mine.ID, 1))
	require.NoError(t, s.RecordSale(ctx, mine.ID, 100))
	require.NoError(t, s.RecordStream(ctx, other.ID, 1))

	require.Equal(t, model.AF(102), s.LifetimeRevenue(1))
	require.Equal(t, model.AF(1), s.LifetimeRevenue(2))
}

func TestSnapshotRoundTrip(t *testing.T) {
	kv := store.NewMemoryStore(0)
	ctx := context.Background()

	s, err := NewStore(ctx, kv)
	require.NoError(t, err)
	track, err := s.Create(ctx, CreateSpec{ArtistID: 1, Title: "One", Price: 100})
	require.NoError(t, err)
	require.NoError(t, s.RecordStream(ctx, track.ID, 1))

	restarted, err := NewStore(ctx, kv)
	require.NoError(t, err)
	got, err := restarted.Get(track.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Plays)
	require.Equal(t, model.AF(1), got.Revenue)

	// The id counter survives the restart too.
	next, err := restarted.Create(ctx, CreateSpec{ArtistID: 1, Title: "Two", Price: 100})
	require.NoError(t, err)
	require.Greater(t, next.ID, track.ID)
}

func TestStorageFullKeepsCatalogAuthoritative(t *testing.T) {
	s, err := NewStore(context.Background(), store.NewMemoryStore(1))
	require.NoError(t, err)

	track, err := s.Create(context.Background(), CreateSpec{ArtistID: 1, Title: "One", Price: 100})
	require.NoError(t, err, "a full store must not block catalog writes")

	require.NoError(t, s.RecordStream(context.Background(), track.ID, 1))
	got, err := s.Get(track.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Plays)
}
