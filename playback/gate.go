// Package playback implements the gate that decides whether a stream may
// start or continue. It is the only caller of the catalog's counter paths
// and the only component that debits the wallet for playback.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"artistsfirst/catalog"
	"artistsfirst/logger"
	"artistsfirst/model"
	"artistsfirst/wallet"
)

// Policy modes. The string values match the PLAYBACK_POLICY config knob.
const (
	ModeWalletPerStream = "requireWalletPerStream"
	ModeFreePreview     = "freePreviewThenGate"
)

// Session states.
const (
	StateIdle       = "Idle"
	StateRequesting = "Requesting"
	StatePlaying    = "Playing"
	StatePaused     = "Paused"
	StateBlocked    = "Blocked"
)

var (
	// ErrInvalidTransition is returned for an operation the current
	// session state does not allow.
	ErrInvalidTransition = errors.New("playback: invalid session transition")

	// ErrNoSession is returned when the listener has no active session.
	ErrNoSession = errors.New("playback: no active session")
)

// Policy is the injected playback policy. Exactly one mode is active per
// deployment.
type Policy struct {
	Mode          string        // config.PolicyWalletPerStream or config.PolicyFreePreview
	UnitPrice     model.AF      // Debited per billable stream start
	PreviewBudget time.Duration // Playing time granted without entitlement
}

// Snapshot is the caller-visible view of a session.
type Snapshot struct {
	SessionID       string    `json:"sessionId"`
	ListenerID      int64     `json:"listenerId"`
	TrackID         int64     `json:"trackId"`
	State           string    `json:"state"`
	StartedAt       time.Time `json:"startedAt"`
	BilledSeconds   int       `json:"billedSeconds"`
	PreviewConsumed int       `json:"previewConsumedSeconds"`
	PreviewBudget   int       `json:"previewBudgetSeconds"`
	Entitled        bool      `json:"entitled"`
	PurchasePrompt  bool      `json:"purchasePrompt"` // Set when the preview budget ran out
	TopUpPrompt     bool      `json:"topUpPrompt"`    // Set when a debit was refused
}

// session is the per-listener playback state. Sessions are ephemeral: they
// live in memory only and a restart begins from Idle.
type session struct {
	mu              sync.Mutex
	id              string
	listenerID      int64
	trackID         int64
	state           string
	startedAt       time.Time
	played          time.Duration // Playing time; paused time never accrues
	previewConsumed time.Duration
	entitled        bool
	purchasePrompt  bool
	topUpPrompt     bool
}

// Gate owns all playback sessions, one per listener.
type Gate struct {
	mu       sync.Mutex
	sessions map[int64]*session
	policy   Policy

	catalog *catalog.Store
	wallets *wallet.Service
	ents    *EntitlementCache
}

// NewGate creates the playback gate and subscribes it to catalog
// deletions so that removing a track stops any session playing it.
func NewGate(cat *catalog.Store, wallets *wallet.Service, ents *EntitlementCache, policy Policy) *Gate {
	g := &Gate{
		sessions: make(map[int64]*session),
		policy:   policy,
		catalog:  cat,
		wallets:  wallets,
		ents:     ents,
	}
	cat.OnDelete(g.handleTrackDeleted)
	return g
}

// SetPolicy applies reloaded policy configuration. In-flight sessions keep
// playing; the new values apply from the next authorization or tick.
func (g *Gate) SetPolicy(policy Policy) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.policy = policy
}

func (g *Gate) currentPolicy() Policy {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.policy
}

func (g *Gate) sessionFor(listenerID int64) *session {
	g.mu.Lock()
	defer g.mu.Unlock()
	sess, ok := g.sessions[listenerID]
	if !ok {
		sess = &session{listenerID: listenerID, state: StateIdle}
		g.sessions[listenerID] = sess
	}
	return sess
}

// Request asks to start (or switch to) a track. Duplicate requests for the
// track already playing, and requests arriving while an authorization is
// in flight, are coalesced into no-ops so a double click can never bill
// twice. Switching tracks always re-evaluates entitlement for the new
// track.
func (g *Gate) Request(ctx context.Context, listenerID, trackID int64) (Snapshot, error) {
	pol := g.currentPolicy()
	sess := g.sessionFor(listenerID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	switch sess.state {
	case StateRequesting:
		// An authorize is already in flight; accept no other transition.
		return sess.snapshot(pol), nil
	case StatePlaying, StatePaused:
		if sess.trackID == trackID {
			// Already paid for this start; never debit again.
			return sess.snapshot(pol), nil
		}
	}

	track, err := g.catalog.Get(trackID)
	if err != nil {
		sess.reset()
		return sess.snapshot(pol), err
	}
	if !track.Playable() {
		sess.reset()
		return sess.snapshot(pol), fmt.Errorf("track %d: %w", trackID, catalog.ErrTrackNotActive)
	}

	// Preview consumption survives a re-request of the same track: a
	// blocked listener cannot mint a fresh budget by clicking play again.
	sameTrack := sess.trackID == trackID
	sess.state = StateRequesting
	sess.trackID = trackID
	if !sameTrack {
		sess.previewConsumed = 0
	}
	sess.purchasePrompt = false
	sess.topUpPrompt = false

	if err := g.authorize(ctx, sess, pol, track); err != nil {
		return sess.snapshot(pol), err
	}
	return sess.snapshot(pol), nil
}

// authorize moves a Requesting session to Playing or Blocked. The debit
// and the stream attribution commit together before the Playing
// transition: the listener never hears audio ahead of the ledger write.
// Callers hold sess.mu.
func (g *Gate) authorize(ctx context.Context, sess *session, pol Policy, track model.Track) error {
	sess.entitled = g.ents.IsEntitled(sess.listenerID, track.ID)

	if sess.entitled {
		// Unlimited access was already paid for; no per-stream debit.
		sess.begin()
		return nil
	}

	switch pol.Mode {
	case ModeFreePreview:
		if sess.previewConsumed >= pol.PreviewBudget {
			sess.state = StateBlocked
			sess.purchasePrompt = true
			return nil
		}
		sess.begin()
		return nil
	default: // requireWalletPerStream
		ledger, err := g.wallets.Ledger(ctx, sess.listenerID)
		if err != nil {
			sess.reset()
			return err
		}
		if _, err := ledger.Debit(ctx, pol.UnitPrice); err != nil {
			if errors.Is(err, wallet.ErrInsufficientFunds) {
				sess.state = StateBlocked
				sess.topUpPrompt = true
				logger.Info("Playback blocked, insufficient funds",
					logger.Int64("listenerId", sess.listenerID),
					logger.Int64("trackId", track.ID))
				return err
			}
			sess.reset()
			return err
		}
		if err := g.catalog.RecordStream(ctx, track.ID, pol.UnitPrice); err != nil {
			// The stream never happened: hand the debit back so neither
			// half of the billing is applied.
			if _, crErr := ledger.Credit(ctx, pol.UnitPrice); crErr != nil {
				logger.Error("Failed to refund debit after attribution failure",
					logger.Int64("listenerId", sess.listenerID),
					logger.Int64("trackId", track.ID),
					logger.ErrorField(crErr))
			}
			sess.reset()
			return err
		}
		sess.begin()
		return nil
	}
}

// begin enters Playing. Callers hold sess.mu.
func (s *session) begin() {
	s.id = uuid.New().String()
	s.state = StatePlaying
	s.startedAt = time.Now()
	s.played = 0
}

// reset returns the session to Idle. Committed debits are never reversed
// here; streams are non-refundable once billed.
func (s *session) reset() {
	s.id = ""
	s.state = StateIdle
	s.trackID = 0
	s.played = 0
	s.previewConsumed = 0
	s.entitled = false
	s.purchasePrompt = false
	s.topUpPrompt = false
}

func (s *session) snapshot(pol Policy) Snapshot {
	return Snapshot{
		SessionID:       s.id,
		ListenerID:      s.listenerID,
		TrackID:         s.trackID,
		State:           s.state,
		StartedAt:       s.startedAt,
		BilledSeconds:   int(s.played / time.Second),
		PreviewConsumed: int(s.previewConsumed / time.Second),
		PreviewBudget:   int(pol.PreviewBudget / time.Second),
		Entitled:        s.entitled,
		PurchasePrompt:  s.purchasePrompt,
		TopUpPrompt:     s.topUpPrompt,
	}
}

// Tick reports elapsed playing time. The preview budget is checked on
// every tick, not only at start, because it is consumed over wall-clock
// playback. Ticks while Paused, Idle or Blocked are ignored.
func (g *Gate) Tick(_ context.Context, listenerID int64, elapsed time.Duration) (Snapshot, error) {
	if elapsed < 0 {
		elapsed = 0
	}
	pol := g.currentPolicy()
	sess := g.sessionFor(listenerID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != StatePlaying {
		return sess.snapshot(pol), nil
	}
	sess.played += elapsed

	if pol.Mode == ModeFreePreview && !sess.entitled {
		// Entitlement may have been purchased mid-stream.
		sess.entitled = g.ents.IsEntitled(listenerID, sess.trackID)
		if !sess.entitled {
			sess.previewConsumed += elapsed
			if sess.previewConsumed >= pol.PreviewBudget {
				sess.state = StateBlocked
				sess.purchasePrompt = true
				logger.Info("Preview budget exhausted",
					logger.Int64("listenerId", listenerID),
					logger.Int64("trackId", sess.trackID))
			}
		}
	}
	return sess.snapshot(pol), nil
}

// Toggle flips Playing and Paused. Resuming never re-debits: the
// per-stream charge pays for the start of a track, not each unpause.
func (g *Gate) Toggle(listenerID int64) (Snapshot, error) {
	pol := g.currentPolicy()
	sess := g.sessionFor(listenerID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	switch sess.state {
	case StatePlaying:
		sess.state = StatePaused
	case StatePaused:
		sess.state = StatePlaying
	default:
		return sess.snapshot(pol), fmt.Errorf("cannot toggle from %s: %w", sess.state, ErrInvalidTransition)
	}
	return sess.snapshot(pol), nil
}

// Stop ends the session and returns it to Idle.
func (g *Gate) Stop(listenerID int64) Snapshot {
	pol := g.currentPolicy()
	sess := g.sessionFor(listenerID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.reset()
	return sess.snapshot(pol)
}

// Session returns the listener's current session state.
func (g *Gate) Session(listenerID int64) (Snapshot, error) {
	pol := g.currentPolicy()
	g.mu.Lock()
	sess, ok := g.sessions[listenerID]
	g.mu.Unlock()
	if !ok {
		return Snapshot{ListenerID: listenerID, State: StateIdle}, ErrNoSession
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshot(pol), nil
}

// Purchase buys unlimited access to a track: one debit of the track price,
// revenue attributed at that price, entitlement granted. A repeated
// purchase of an owned track is a no-op.
func (g *Gate) Purchase(ctx context.Context, listenerID, trackID int64) error {
	track, err := g.catalog.Get(trackID)
	if err != nil {
		return err
	}
	if !track.Playable() {
		return fmt.Errorf("track %d: %w", trackID, catalog.ErrTrackNotActive)
	}
	if g.ents.IsEntitled(listenerID, trackID) {
		return nil
	}
	ledger, err := g.wallets.Ledger(ctx, listenerID)
	if err != nil {
		return err
	}
	if _, err := ledger.Debit(ctx, track.Price); err != nil {
		return err
	}
	if err := g.catalog.RecordSale(ctx, trackID, track.Price); err != nil {
		if _, crErr := ledger.Credit(ctx, track.Price); crErr != nil {
			logger.Error("Failed to refund purchase debit",
				logger.Int64("listenerId", listenerID),
				logger.Int64("trackId", trackID),
				logger.ErrorField(crErr))
		}
		return err
	}
	g.ents.Grant(ctx, listenerID, trackID, track.Price)

	// A blocked preview session for this track may resume immediately.
	g.mu.Lock()
	sess, ok := g.sessions[listenerID]
	g.mu.Unlock()
	if ok {
		sess.mu.Lock()
		if sess.trackID == trackID {
			sess.entitled = true
			sess.purchasePrompt = false
			if sess.state == StateBlocked {
				sess.begin()
			}
		}
		sess.mu.Unlock()
	}
	return nil
}

// handleTrackDeleted forcibly stops every session referencing the deleted
// track, from any state.
func (g *Gate) handleTrackDeleted(trackID int64) {
	g.mu.Lock()
	sessions := make([]*session, 0, len(g.sessions))
	for _, sess := range g.sessions {
		sessions = append(sessions, sess)
	}
	g.mu.Unlock()

	for _, sess := range sessions {
		sess.mu.Lock()
		if sess.trackID == trackID {
			logger.Info("Session stopped, track deleted",
				logger.Int64("listenerId", sess.listenerID),
				logger.Int64("trackId", trackID))
			sess.reset()
		}
		sess.mu.Unlock()
	}
}
