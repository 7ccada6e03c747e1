package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"artistsfirst/catalog"
	"artistsfirst/model"
	"artistsfirst/store"
	"artistsfirst/wallet"

	"github.com/stretchr/testify/require"
)

const listenerID = int64(10)

type gateEnv struct {
	gate    *Gate
	wallets *wallet.Service
	catalog *catalog.Store
	ents    *EntitlementCache
	track   model.Track
}

// brokenStore fails saves with a non-full error once armed. The gate's
// wallet runs on a separate healthy store so refunds still go through.
type brokenStore struct {
	store.Store
	armed bool
}

func (b *brokenStore) Save(ctx context.Context, key string, value []byte) error {
	if b.armed {
		return errors.New("backend unavailable")
	}
	return b.Store.Save(ctx, key, value)
}

func newGateEnv(t *testing.T, pol Policy, startingCredit model.AF) *gateEnv {
	t.Helper()
	ctx := context.Background()

	wallets := wallet.NewService(store.NewMemoryStore(0), wallet.Floors{WithdrawMin: 500, TopUpMin: 500}, startingCredit)
	_, err := wallets.Create(ctx, listenerID)
	require.NoError(t, err)

	cat, err := catalog.NewStore(ctx, store.NewMemoryStore(0))
	require.NoError(t, err)
	track, err := cat.Create(ctx, catalog.CreateSpec{ArtistID: 1, Title: "Song", Artist: "A", Price: 100})
	require.NoError(t, err)

	ents, err := NewEntitlementCache(ctx, nil)
	require.NoError(t, err)

	return &gateEnv{
		gate:    NewGate(cat, wallets, ents, pol),
		wallets: wallets,
		catalog: cat,
		ents:    ents,
		track:   track,
	}
}

func walletMode() Policy {
	return Policy{Mode: ModeWalletPerStream, UnitPrice: 1, PreviewBudget: 60 * time.Second}
}

func previewMode() Policy {
	return Policy{Mode: ModeFreePreview, UnitPrice: 1, PreviewBudget: 60 * time.Second}
}

func (e *gateEnv) balance(t *testing.T) model.AF {
	t.Helper()
	ledger, err := e.wallets.Ledger(context.Background(), listenerID)
	require.NoError(t, err)
	return ledger.Balance()
}

func TestRequestDebitsOncePerStart(t *testing.T) {
	env := newGateEnv(t, walletMode(), 500)
	ctx := context.Background()

	snap, err := env.gate.Request(ctx, listenerID, env.track.ID)
	require.NoError(t, err)
	require.Equal(t, StatePlaying, snap.State)
	require.NotEmpty(t, snap.SessionID)
	require.Equal(t, model.AF(499), env.balance(t))

	got, err := env.catalog.Get(env.track.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Plays)
	require.Equal(t, model.AF(1), got.Revenue)

	// A double click on the same track never bills twice.
	snap, err = env.gate.Request(ctx, listenerID, env.track.ID)
	require.NoError(t, err)
	require.Equal(t, StatePlaying, snap.State)
	require.Equal(t, model.AF(499), env.balance(t))

	// Nor does re-requesting while paused.
	_, err = env.gate.Toggle(listenerID)
	require.NoError(t, err)
	snap, err = env.gate.Request(ctx, listenerID, env.track.ID)
	require.NoError(t, err)
	require.Equal(t, StatePaused, snap.State)
	require.Equal(t, model.AF(499), env.balance(t))

	got, err = env.catalog.Get(env.track.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Plays)
}

func TestTrackSwitchBillsNewStart(t *testing.T) {
	env := newGateEnv(t, walletMode(), 500)
	ctx := context.Background()

	second, err := env.catalog.Create(ctx, catalog.CreateSpec{ArtistID: 1, Title: "Other", Price: 100})
	require.NoError(t, err)

	_, err = env.gate.Request(ctx, listenerID, env.track.ID)
	require.NoError(t, err)
	snap, err := env.gate.Request(ctx, listenerID, second.ID)
	require.NoError(t, err)
	require.Equal(t, StatePlaying, snap.State)
	require.Equal(t, second.ID, snap.TrackID)
	require.Equal(t, model.AF(498), env.balance(t))
}

func TestRequestBlockedOnEmptyWallet(t *testing.T) {
	env := newGateEnv(t, walletMode(), 0)
	ctx := context.Background()

	snap, err := env.gate.Request(ctx, listenerID, env.track.ID)
	require.ErrorIs(t, err, wallet.ErrInsufficientFunds)
	require.Equal(t, StateBlocked, snap.State)
	require.True(t, snap.TopUpPrompt)

	got, err := env.catalog.Get(env.track.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), got.Plays, "a refused debit must not attribute a stream")

	// Post top-up the same request goes through.
	ledger, err := env.wallets.Ledger(ctx, listenerID)
	require.NoError(t, err)
	_, err = ledger.TopUp(ctx, 500)
	require.NoError(t, err)

	snap, err = env.gate.Request(ctx, listenerID, env.track.ID)
	require.NoError(t, err)
	require.Equal(t, StatePlaying, snap.State)
	require.False(t, snap.TopUpPrompt)
	require.Equal(t, model.AF(499), env.balance(t))
}

func TestAttributionFailureRefundsDebit(t *testing.T) {
	ctx := context.Background()

	wallets := wallet.NewService(store.NewMemoryStore(0), wallet.Floors{WithdrawMin: 500, TopUpMin: 500}, 500)
	_, err := wallets.Create(ctx, listenerID)
	require.NoError(t, err)

	broken := &brokenStore{Store: store.NewMemoryStore(0)}
	cat, err := catalog.NewStore(ctx, broken)
	require.NoError(t, err)
	track, err := cat.Create(ctx, catalog.CreateSpec{ArtistID: 1, Title: "Song", Price: 100})
	require.NoError(t, err)

	ents, err := NewEntitlementCache(ctx, nil)
	require.NoError(t, err)
	gate := NewGate(cat, wallets, ents, walletMode())

	broken.armed = true
	snap, err := gate.Request(ctx, listenerID, track.ID)
	require.Error(t, err)
	require.Equal(t, StateIdle, snap.State)

	ledger, err := wallets.Ledger(ctx, listenerID)
	require.NoError(t, err)
	require.Equal(t, model.AF(500), ledger.Balance(), "the debit must be handed back when attribution fails")

	got, err := cat.Get(track.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), got.Plays)
	require.Equal(t, model.AF(0), got.Revenue)
}

func TestFreePreviewBudget(t *testing.T) {
	env := newGateEnv(t, previewMode(), 500)
	ctx := context.Background()

	snap, err := env.gate.Request(ctx, listenerID, env.track.ID)
	require.NoError(t, err)
	require.Equal(t, StatePlaying, snap.State)
	require.Equal(t, model.AF(500), env.balance(t), "preview playback never debits the wallet")

	snap, err = env.gate.Tick(ctx, listenerID, 59*time.Second)
	require.NoError(t, err)
	require.Equal(t, StatePlaying, snap.State)
	require.Equal(t, 59, snap.PreviewConsumed)

	snap, err = env.gate.Tick(ctx, listenerID, 1*time.Second)
	require.NoError(t, err)
	require.Equal(t, StateBlocked, snap.State)
	require.True(t, snap.PurchasePrompt)

	// Re-requesting the same track must not mint a fresh budget.
	snap, err = env.gate.Request(ctx, listenerID, env.track.ID)
	require.NoError(t, err)
	require.Equal(t, StateBlocked, snap.State)
	require.True(t, snap.PurchasePrompt)
}

func TestPreviewBudgetResetsOnTrackSwitch(t *testing.T) {
	env := newGateEnv(t, previewMode(), 500)
	ctx := context.Background()

	second, err := env.catalog.Create(ctx, catalog.CreateSpec{ArtistID: 1, Title: "Other", Price: 100})
	require.NoError(t, err)

	_, err = env.gate.Request(ctx, listenerID, env.track.ID)
	require.NoError(t, err)
	_, err = env.gate.Tick(ctx, listenerID, 60*time.Second)
	require.NoError(t, err)

	snap, err := env.gate.Request(ctx, listenerID, second.ID)
	require.NoError(t, err)
	require.Equal(t, StatePlaying, snap.State)
	require.Equal(t, 0, snap.PreviewConsumed)
}

func TestPausedTimeDoesNotConsumePreview(t *testing.T) {
	env := newGateEnv(t, previewMode(), 500)
	ctx := context.Background()

	_, err := env.gate.Request(ctx, listenerID, env.track.ID)
	require.NoError(t, err)
	_, err = env.gate.Tick(ctx, listenerID, 30*time.Second)
	require.NoError(t, err)

	_, err = env.gate.Toggle(listenerID)
	require.NoError(t, err)
	snap, err := env.gate.Tick(ctx, listenerID, 30*time.Second)
	require.NoError(t, err)
	require.Equal(t, StatePaused, snap.State)
	require.Equal(t, 30, snap.PreviewConsumed, "ticks while paused are ignored")

	_, err = env.gate.Toggle(listenerID)
	require.NoError(t, err)
	snap, err = env.gate.Tick(ctx, listenerID, 29*time.Second)
	require.NoError(t, err)
	require.Equal(t, StatePlaying, snap.State)
	require.Equal(t, 59, snap.PreviewConsumed)
}

func TestPurchaseGrantsEntitlementAndUnblocks(t *testing.T) {
	env := newGateEnv(t, previewMode(), 500)
	ctx := context.Background()

	_, err := env.gate.Request(ctx, listenerID, env.track.ID)
	require.NoError(t, err)
	snap, err := env.gate.Tick(ctx, listenerID, 60*time.Second)
	require.NoError(t, err)
	require.Equal(t, StateBlocked, snap.State)

	require.NoError(t, env.gate.Purchase(ctx, listenerID, env.track.ID))
	require.Equal(t, model.AF(400), env.balance(t))
	require.True(t, env.ents.IsEntitled(listenerID, env.track.ID))

	got, err := env.catalog.Get(env.track.ID)
	require.NoError(t, err)
	require.Equal(t, model.AF(100), got.Revenue)
	require.Equal(t, int64(0), got.Plays)

	snap, err = env.gate.Session(listenerID)
	require.NoError(t, err)
	require.Equal(t, StatePlaying, snap.State)
	require.True(t, snap.Entitled)
	require.False(t, snap.PurchasePrompt)

	// Ticks past the budget no longer block an owned track.
	snap, err = env.gate.Tick(ctx, listenerID, 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, StatePlaying, snap.State)

	// Buying again is a no-op.
	require.NoError(t, env.gate.Purchase(ctx, listenerID, env.track.ID))
	require.Equal(t, model.AF(400), env.balance(t))
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	env := newGateEnv(t, previewMode(), 50)
	err := env.gate.Purchase(context.Background(), listenerID, env.track.ID)
	require.ErrorIs(t, err, wallet.ErrInsufficientFunds)
	require.False(t, env.ents.IsEntitled(listenerID, env.track.ID))
}

func TestEntitledStreamSkipsDebit(t *testing.T) {
	env := newGateEnv(t, walletMode(), 500)
	ctx := context.Background()

	require.NoError(t, env.gate.Purchase(ctx, listenerID, env.track.ID))
	require.Equal(t, model.AF(400), env.balance(t))

	snap, err := env.gate.Request(ctx, listenerID, env.track.ID)
	require.NoError(t, err)
	require.Equal(t, StatePlaying, snap.State)
	require.True(t, snap.Entitled)
	require.Equal(t, model.AF(400), env.balance(t), "an owned track streams without per-stream debits")

	got, err := env.catalog.Get(env.track.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), got.Plays)
}

func TestRequestValidation(t *testing.T) {
	env := newGateEnv(t, walletMode(), 500)
	ctx := context.Background()

	_, err := env.gate.Request(ctx, listenerID, 999)
	require.ErrorIs(t, err, catalog.ErrTrackNotFound)

	draft := model.TrackStatusDraft
	_, err = env.catalog.Update(ctx, env.track.ID, catalog.UpdateSpec{Status: &draft})
	require.NoError(t, err)

	_, err = env.gate.Request(ctx, listenerID, env.track.ID)
	require.ErrorIs(t, err, catalog.ErrTrackNotActive)
	require.Equal(t, model.AF(500), env.balance(t))
}

func TestToggleTransitions(t *testing.T) {
	env := newGateEnv(t, walletMode(), 500)
	ctx := context.Background()

	_, err := env.gate.Toggle(listenerID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = env.gate.Request(ctx, listenerID, env.track.ID)
	require.NoError(t, err)

	snap, err := env.gate.Toggle(listenerID)
	require.NoError(t, err)
	require.Equal(t, StatePaused, snap.State)

	snap, err = env.gate.Toggle(listenerID)
	require.NoError(t, err)
	require.Equal(t, StatePlaying, snap.State)
	require.Equal(t, model.AF(499), env.balance(t), "resume never re-debits")
}

func TestStopReturnsToIdle(t *testing.T) {
	env := newGateEnv(t, walletMode(), 500)
	ctx := context.Background()

	_, err := env.gate.Request(ctx, listenerID, env.track.ID)
	require.NoError(t, err)

	snap := env.gate.Stop(listenerID)
	require.Equal(t, StateIdle, snap.State)
	require.Empty(t, snap.SessionID)

	// A fresh request after stop is a new billable start.
	_, err = env.gate.Request(ctx, listenerID, env.track.ID)
	require.NoError(t, err)
	require.Equal(t, model.AF(498), env.balance(t))
}

func TestSessionWithoutRequest(t *testing.T) {
	env := newGateEnv(t, walletMode(), 500)
	_, err := env.gate.Session(int64(777))
	require.ErrorIs(t, err, ErrNoSession)
}

func TestTrackDeletionStopsSession(t *testing.T) {
	env := newGateEnv(t, walletMode(), 500)
	ctx := context.Background()

	_, err := env.gate.Request(ctx, listenerID, env.track.ID)
	require.NoError(t, err)

	require.NoError(t, env.catalog.Delete(ctx, env.track.ID))

	snap, err := env.gate.Session(listenerID)
	require.NoError(t, err)
	require.Equal(t, StateIdle, snap.State)
	require.Equal(t, int64(0), snap.TrackID)

	_, err = env.gate.Request(ctx, listenerID, env.track.ID)
	require.ErrorIs(t, err, catalog.ErrTrackNotFound)
}

func TestPolicyReloadAppliesToNextAuthorization(t *testing.T) {
	env := newGateEnv(t, walletMode(), 500)
	ctx := context.Background()

	env.gate.SetPolicy(previewMode())

	snap, err := env.gate.Request(ctx, listenerID, env.track.ID)
	require.NoError(t, err)
	require.Equal(t, StatePlaying, snap.State)
	require.Equal(t, model.AF(500), env.balance(t), "the reloaded preview policy must not debit")
}
