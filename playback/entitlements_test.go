package playback

import (
	"context"
	"errors"
	"testing"

	"artistsfirst/model"

	"github.com/stretchr/testify/require"
)

type stubEntitlementStore struct {
	existing  []*model.Entitlement
	created   []*model.Entitlement
	createErr error
	listErr   error
}

func (s *stubEntitlementStore) Create(_ context.Context, ent *model.Entitlement) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, ent)
	return nil
}

func (s *stubEntitlementStore) ListAll(_ context.Context) ([]*model.Entitlement, error) {
	return s.existing, s.listErr
}

func TestEntitlementCacheLoadsExisting(t *testing.T) {
	repo := &stubEntitlementStore{existing: []*model.Entitlement{
		{ListenerID: 1, TrackID: 10},
		{ListenerID: 2, TrackID: 20},
	}}
	cache, err := NewEntitlementCache(context.Background(), repo)
	require.NoError(t, err)
	require.True(t, cache.IsEntitled(1, 10))
	require.True(t, cache.IsEntitled(2, 20))
	require.False(t, cache.IsEntitled(1, 20))
}

func TestEntitlementCacheLoadFailure(t *testing.T) {
	repo := &stubEntitlementStore{listErr: errors.New("connection refused")}
	_, err := NewEntitlementCache(context.Background(), repo)
	require.Error(t, err)
}

func TestGrantWritesThrough(t *testing.T) {
	repo := &stubEntitlementStore{}
	cache, err := NewEntitlementCache(context.Background(), repo)
	require.NoError(t, err)
	ctx := context.Background()

	cache.Grant(ctx, 1, 10, 100)
	require.True(t, cache.IsEntitled(1, 10))
	require.Len(t, repo.created, 1)
	require.Equal(t, int64(100), repo.created[0].PricePaid)

	// A repeated grant does not write a duplicate row.
	cache.Grant(ctx, 1, 10, 100)
	require.Len(t, repo.created, 1)
}

func TestGrantSurvivesStoreFailure(t *testing.T) {
	repo := &stubEntitlementStore{createErr: errors.New("disk full")}
	cache, err := NewEntitlementCache(context.Background(), repo)
	require.NoError(t, err)

	cache.Grant(context.Background(), 1, 10, 100)
	require.True(t, cache.IsEntitled(1, 10), "the in-memory grant is authoritative for the session")
}
