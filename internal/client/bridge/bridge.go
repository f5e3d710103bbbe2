// Package bridge keeps the local cart store and the server cart in step: one
// network-only pull per session, then debounced whole-cart pushes.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjod/cartsync/internal/client/store"
	"github.com/fjod/cartsync/internal/domain"
	"github.com/fjod/cartsync/pkg/logger"
)

const DefaultDebounce = 700 * time.Millisecond

var (
	ErrClosed           = errors.New("bridge closed")
	ErrNotAuthenticated = errors.New("not authenticated")
)

type Phase int

const (
	// PhaseIdle means no authenticated session.
	PhaseIdle Phase = iota
	// PhaseLoading means the initial pull has not completed; nothing is pushed.
	PhaseLoading
	PhaseSyncing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseSyncing:
		return "syncing"
	}
	return "unknown"
}

type Remote interface {
	FetchCart(ctx context.Context, token string) (*domain.AggregatedCart, error)
	SyncCart(ctx context.Context, token string, lines []domain.CartLine) (*domain.AggregatedCart, error)
}

type Store interface {
	Subscribe(fn func(store.State)) (unsubscribe func())
	State() store.State
	ReplaceCart(items []domain.CartItem)
}

type Options struct {
	Debounce time.Duration
	Log      *slog.Logger
}

type Bridge struct {
	remote   Remote
	store    Store
	debounce time.Duration
	log      *slog.Logger

	// seedMu is held by a pull while it writes the store and by anything that
	// changes the session, so a seed never lands in a later session. Taken
	// before mu.
	seedMu sync.Mutex

	mu      sync.Mutex
	phase   Phase
	token   string
	session uint64
	ctx     context.Context
	cancel  context.CancelFunc
	pulling bool
	err     error
	timer   *time.Timer
	closed  bool

	// latest is the newest local cart snapshot, acked the last one the
	// server is known to hold.
	latest      Snapshot
	acked       Snapshot
	lastVersion uint64

	// pushMu orders pushes so an older snapshot never lands after a newer one.
	pushMu sync.Mutex
	pushes atomic.Int64

	wg          sync.WaitGroup
	unsubscribe func()
}

func New(remote Remote, st Store, opts Options) *Bridge {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	b := &Bridge{
		remote:   remote,
		store:    st,
		debounce: opts.Debounce,
		log:      logger.OrDefault(opts.Log).With("component", "cart-bridge"),
	}
	b.unsubscribe = st.Subscribe(b.onChange)
	return b
}

// Authenticate starts a session for token and issues the initial pull. An
// empty token ends the current session.
func (b *Bridge) Authenticate(token string) error {
	if token == "" {
		b.Logout()
		return nil
	}

	b.seedMu.Lock()
	defer b.seedMu.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.phase != PhaseIdle && b.token == token {
		return nil
	}

	b.endSessionLocked()
	b.token = token
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.startPullLocked()
	return nil
}

// Logout ends the session. A pending push is dropped and an in-flight request
// is cancelled.
func (b *Bridge) Logout() {
	b.seedMu.Lock()
	defer b.seedMu.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endSessionLocked()
}

// Refresh re-issues the pull for the current session. Local edits not yet
// pushed are replaced by the server cart.
func (b *Bridge) Refresh() error {
	b.seedMu.Lock()
	defer b.seedMu.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.phase == PhaseIdle {
		return ErrNotAuthenticated
	}
	if b.pulling {
		return nil
	}
	b.stopTimerLocked()
	b.startPullLocked()
	return nil
}

// Close ends the session, detaches from the store and waits for background
// work to finish.
func (b *Bridge) Close() {
	b.seedMu.Lock()
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.seedMu.Unlock()
		return
	}
	b.closed = true
	b.endSessionLocked()
	b.mu.Unlock()
	b.seedMu.Unlock()

	b.unsubscribe()
	b.wg.Wait()
}

func (b *Bridge) Phase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

// Err returns the error of the most recent failed pull in this session.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Pushes counts sync requests sent to the server.
func (b *Bridge) Pushes() int64 {
	return b.pushes.Load()
}

func (b *Bridge) endSessionLocked() {
	b.session++
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.stopTimerLocked()
	b.phase = PhaseIdle
	b.token = ""
	b.pulling = false
	b.err = nil
	b.latest = nil
	b.acked = nil
}

func (b *Bridge) startPullLocked() {
	b.session++
	b.phase = PhaseLoading
	b.pulling = true
	b.err = nil

	session, ctx, token := b.session, b.ctx, b.token
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.pull(ctx, session, token)
	}()
}

func (b *Bridge) pull(ctx context.Context, session uint64, token string) {
	cart, err := b.remote.FetchCart(ctx, token)

	b.seedMu.Lock()
	defer b.seedMu.Unlock()

	b.mu.Lock()
	if session != b.session {
		b.mu.Unlock()
		return
	}
	if err != nil {
		b.pulling = false
		b.err = err
		b.mu.Unlock()
		b.log.Error("initial cart pull failed", "error", err)
		return
	}
	b.mu.Unlock()

	// A missing cart seeds an empty one: the server state wins.
	items := cart.CartItems()
	b.store.ReplaceCart(items)

	b.mu.Lock()
	defer b.mu.Unlock()
	if session != b.session {
		return
	}
	state := b.store.State()
	b.acked = SnapshotOf(items)
	b.latest = SnapshotOf(state.Cart)
	b.lastVersion = state.Version
	b.pulling = false
	b.phase = PhaseSyncing
	b.log.Debug("cart seeded from server", "snapshot", b.acked.Key())

	if !b.latest.Equal(b.acked) {
		b.armTimerLocked()
	}
}

func (b *Bridge) onChange(state store.State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if state.Version <= b.lastVersion {
		return
	}
	b.lastVersion = state.Version
	if b.phase != PhaseSyncing {
		return
	}

	snap := SnapshotOf(state.Cart)
	if snap.Equal(b.latest) {
		return
	}
	b.latest = snap
	b.armTimerLocked()
}

func (b *Bridge) armTimerLocked() {
	b.stopTimerLocked()
	session := b.session
	b.wg.Add(1)
	b.timer = time.AfterFunc(b.debounce, func() {
		defer b.wg.Done()
		b.flush(session)
	})
}

func (b *Bridge) stopTimerLocked() {
	if b.timer != nil && b.timer.Stop() {
		b.wg.Done()
	}
	b.timer = nil
}

func (b *Bridge) flush(session uint64) {
	b.pushMu.Lock()
	defer b.pushMu.Unlock()

	b.mu.Lock()
	if session != b.session || b.phase != PhaseSyncing {
		b.mu.Unlock()
		return
	}
	snap := b.latest
	if snap.Equal(b.acked) {
		b.mu.Unlock()
		return
	}
	ctx, token := b.ctx, b.token
	b.mu.Unlock()

	b.pushes.Add(1)
	_, err := b.remote.SyncCart(ctx, token, snap.Lines())

	b.mu.Lock()
	defer b.mu.Unlock()
	if session != b.session {
		return
	}
	if err != nil {
		b.log.Error("cart push failed", "snapshot", snap.Key(), "error", err)
		return
	}
	b.acked = snap
}
