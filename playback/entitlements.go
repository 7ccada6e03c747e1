package playback

import (
	"context"
	"fmt"
	"sync"

	"artistsfirst/logger"
	"artistsfirst/model"
)

// EntitlementStore is the durable record of purchases. Satisfied by the
// GORM entitlement repository; nil means memory-only operation.
type EntitlementStore interface {
	Create(ctx context.Context, ent *model.Entitlement) error
	ListAll(ctx context.Context) ([]*model.Entitlement, error)
}

// EntitlementCache answers the gate's "has this listener paid for this
// track" question from memory, writing grants through to the store. Like
// the wallet and catalog snapshots, the in-memory state is authoritative
// for the session; a failed durable write degrades to a warning.
type EntitlementCache struct {
	mu         sync.RWMutex
	byListener map[int64]map[int64]bool
	repo       EntitlementStore
}

// NewEntitlementCache loads existing purchases from the store.
func NewEntitlementCache(ctx context.Context, repo EntitlementStore) (*EntitlementCache, error) {
	c := &EntitlementCache{
		byListener: make(map[int64]map[int64]bool),
		repo:       repo,
	}
	if repo == nil {
		return c, nil
	}
	ents, err := repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load entitlements: %w", err)
	}
	for _, e := range ents {
		c.grantLocked(e.ListenerID, e.TrackID)
	}
	return c, nil
}

// IsEntitled reports whether the listener has purchased the track.
func (c *EntitlementCache) IsEntitled(listenerID, trackID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byListener[listenerID][trackID]
}

// Grant records a purchase. The in-memory grant always takes effect; a
// store failure is logged and the grant survives for the session.
func (c *EntitlementCache) Grant(ctx context.Context, listenerID, trackID int64, pricePaid model.AF) {
	c.mu.Lock()
	already := c.byListener[listenerID][trackID]
	c.grantLocked(listenerID, trackID)
	c.mu.Unlock()
	if already || c.repo == nil {
		return
	}
	ent := &model.Entitlement{
		ListenerID: listenerID,
		TrackID:    trackID,
		PricePaid:  int64(pricePaid),
	}
	if err := c.repo.Create(ctx, ent); err != nil {
		logger.Warn("Entitlement not persisted, continuing in memory",
			logger.Int64("listenerId", listenerID),
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
	}
}

func (c *EntitlementCache) grantLocked(listenerID, trackID int64) {
	tracks, ok := c.byListener[listenerID]
	if !ok {
		tracks = make(map[int64]bool)
		c.byListener[listenerID] = tracks
	}
	tracks[trackID] = true
}
