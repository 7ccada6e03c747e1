package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"artistsfirst/logger"
	"artistsfirst/model"
	"artistsfirst/store"
)

// Service hands out one Ledger per listener, loading snapshots from the
// store on first access and seeding new wallets with the starting credit.
type Service struct {
	mu             sync.Mutex
	ledgers        map[int64]*Ledger
	store          store.Store
	floors         Floors
	startingCredit model.AF
}

// NewService creates a wallet service on the given snapshot store.
func NewService(s store.Store, floors Floors, startingCredit model.AF) *Service {
	return &Service{
		ledgers:        make(map[int64]*Ledger),
		store:          s,
		floors:         floors,
		startingCredit: startingCredit,
	}
}

// Create provisions the wallet for a new listener with the starting
// credit. Creation is idempotent: an existing wallet is returned as-is and
// never re-seeded.
func (s *Service) Create(ctx context.Context, listenerID int64) (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.ledgers[listenerID]; ok {
		return l, nil
	}
	if l, err := s.load(ctx, listenerID); err == nil {
		s.ledgers[listenerID] = l
		return l, nil
	} else if !errors.Is(err, ErrWalletNotFound) {
		return nil, err
	}

	l := &Ledger{
		wallet: model.Wallet{ListenerID: listenerID, Balance: s.startingCredit},
		store:  s.store,
		floors: s.floors,
	}
	if err := l.persist(ctx); err != nil {
		return nil, err
	}
	s.ledgers[listenerID] = l
	logger.Info("Wallet created",
		logger.Int64("listenerId", listenerID),
		logger.String("startingCredit", s.startingCredit.String()))
	return l, nil
}

// Ledger returns the ledger for an existing listener, loading its snapshot
// if this is the first access since startup.
func (s *Service) Ledger(ctx context.Context, listenerID int64) (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.ledgers[listenerID]; ok {
		return l, nil
	}
	l, err := s.load(ctx, listenerID)
	if err != nil {
		return nil, err
	}
	s.ledgers[listenerID] = l
	return l, nil
}

// SetFloors applies reloaded floor configuration to current and future
// ledgers.
func (s *Service) SetFloors(floors Floors) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.floors = floors
	for _, l := range s.ledgers {
		l.mu.Lock()
		l.floors = floors
		l.mu.Unlock()
	}
}

// load reads a wallet snapshot from the store. Callers hold s.mu.
func (s *Service) load(ctx context.Context, listenerID int64) (*Ledger, error) {
	data, err := s.store.Load(ctx, walletKey(listenerID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to load wallet for listener %d: %w", listenerID, err)
	}
	var w model.Wallet
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet for listener %d: %w", listenerID, err)
	}
	return &Ledger{wallet: w, store: s.store, floors: s.floors}, nil
}
