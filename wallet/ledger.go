// Package wallet implements the virtual-currency ledger: one spendable
// balance per listener, plus the artist-side withdrawal counter. Every
// mutation goes through a Ledger method; there is no other write path.
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

var (
	// ErrInsufficientFunds is returned when a debit would drive the
	// balance negative. It is surfaced to the user as a top-up prompt,
	// never retried with relaxed checks.
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")

	// ErrBelowMinimum is returned when a withdrawal or top-up is under
	// the configured floor.
	ErrBelowMinimum = errors.New("wallet: amount below minimum")

	// ErrExceedsAvailable is returned when a withdrawal exceeds the
	// available (lifetime revenue minus already withdrawn) balance.
	ErrExceedsAvailable = errors.New("wallet: amount exceeds available balance")

	// ErrInvalidAmount guards all operations against zero or negative
	// amounts.
	ErrInvalidAmount = errors.New("wallet: amount must be positive")

	// ErrWalletNotFound is returned when no wallet exists for a listener.
	ErrWalletNotFound = errors.New("wallet: not found")
)

// Floors holds the policy minimums, injected from configuration.
type Floors struct {
	WithdrawMin model.AF
	TopUpMin    model.AF
}

// Ledger is the single source of truth for one listener's wallet. All
// operations are serialized by the ledger mutex; the listener is the only
// logical writer.
type Ledger struct {
	mu     sync.Mutex
	wallet model.Wallet
	store  store.Store
	floors Floors
}

func walletKey(listenerID int64) string {
	return fmt.Sprintf("wallet:%d", listenerID)
}

// Wallet returns a copy of the current wallet state.
func (l *Ledger) Wallet() model.Wallet {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.wallet
}

// Balance returns the current spendable balance.
func (l *Ledger) Balance() model.AF {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.wallet.Balance
}

// Debit removes amount from the balance. It fails with
// ErrInsufficientFunds if the balance cannot cover the amount; the balance
// is never driven negative.
func (l *Ledger) Debit(ctx context.Context, amount model.AF) (model.AF, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.wallet.Balance < amount {
		return l.wallet.Balance, ErrInsufficientFunds
	}
	prev := l.wallet
	l.wallet.Balance -= amount
	if err := l.persist(ctx); err != nil {
		l.wallet = prev
		return prev.Balance, err
	}
	return l.wallet.Balance, nil
}

// Credit adds amount to the balance unconditionally.
func (l *Ledger) Credit(ctx context.Context, amount model.AF) (model.AF, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.wallet
	l.wallet.Balance += amount
	if err := l.persist(ctx); err != nil {
		l.wallet = prev
		return prev.Balance, err
	}
	return l.wallet.Balance, nil
}

// TopUp credits the balance after checking the purchase floor.
func (l *Ledger) TopUp(ctx context.Context, amount model.AF) (model.AF, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	l.mu.Lock()
	min := l.floors.TopUpMin
	l.mu.Unlock()
	if amount < min {
		return 0, fmt.Errorf("top-up of %s is under the %s floor: %w", amount, min, ErrBelowMinimum)
	}
	return l.Credit(ctx, amount)
}

// Withdraw records a withdrawal of artist revenue. It only advances
// TotalWithdrawn; the spendable balance belongs to the listener side of the
// wallet and is never touched by a withdrawal. available is the caller's
// current available balance (lifetime revenue minus prior withdrawals).
func (l *Ledger) Withdraw(ctx context.Context, amount, available model.AF) (model.AF, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount < l.floors.WithdrawMin {
		return l.wallet.TotalWithdrawn, fmt.Errorf("withdrawal of %s is under the %s floor: %w", amount, l.floors.WithdrawMin, ErrBelowMinimum)
	}
	if amount > available {
		return l.wallet.TotalWithdrawn, fmt.Errorf("withdrawal of %s exceeds available %s: %w", amount, available, ErrExceedsAvailable)
	}
	prev := l.wallet
	l.wallet.TotalWithdrawn += amount
	if err := l.persist(ctx); err != nil {
		l.wallet = prev
		return prev.TotalWithdrawn, err
	}
	return l.wallet.TotalWithdrawn, nil
}

// Available computes the withdrawable balance for the given lifetime
// revenue against what has already been withdrawn. Never negative.
func (l *Ledger) Available(lifetimeRevenue model.AF) model.AF {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Available(lifetimeRevenue, l.wallet.TotalWithdrawn)
}

// Available is the availability rule: max(0, lifetime - withdrawn).
func Available(lifetimeRevenue, totalWithdrawn model.AF) model.AF {
	if lifetimeRevenue <= totalWithdrawn {
		return 0
	}
	return lifetimeRevenue - totalWithdrawn
}

// persist writes the wallet snapshot. A full store degrades to a warning:
// the in-memory wallet stays authoritative for the session. Any other
// store failure is returned so the caller can roll the mutation back.
// Callers hold l.mu.
func (l *Ledger) persist(ctx context.Context) error {
	data, err := json.Marshal(l.wallet)
	if err != nil {
		return fmt.Errorf("failed to marshal wallet for listener %d: %w", l.wallet.ListenerID, err)
	}
	if err := l.store.Save(ctx, walletKey(l.wallet.ListenerID), data); err != nil {
		if errors.Is(err, store.ErrStorageFull) {
			logger.Warn("Wallet snapshot not persisted, continuing in memory",
				logger.Int64("listenerId", l.wallet.ListenerID),
				logger.ErrorField(err))
			return nil
		}
		return fmt.Errorf("failed to persist wallet for listener %d: %w", l.wallet.ListenerID, err)
	}
	return nil
}
