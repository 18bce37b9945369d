// Chatty Sync - Real-time Chat State Synchronization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatty-sync

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/chatty-sync/internal/events"
	"github.com/tomtom215/chatty-sync/internal/logging"
	"github.com/tomtom215/chatty-sync/internal/metrics"
	"github.com/tomtom215/chatty-sync/internal/models"
	"github.com/tomtom215/chatty-sync/internal/presence"
	"github.com/tomtom215/chatty-sync/internal/reconcile"
	"github.com/tomtom215/chatty-sync/internal/roster"
	"github.com/tomtom215/chatty-sync/internal/schedule"
	"github.com/tomtom215/chatty-sync/internal/search"
	"github.com/tomtom215/chatty-sync/internal/session"
	"github.com/tomtom215/chatty-sync/internal/typing"
)

// Defaults for Options.
const (
	DefaultInboxSize    = 1024
	DefaultFetchTimeout = 15 * time.Second
)

// MessageTypeView is the broadcast type of view snapshots.
const MessageTypeView = "view"

// Backend is the subset of the REST collaborator the Manager calls.
//
// Satisfied by *backend.BreakerClient and *backend.Client.
type Backend interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	SearchUsers(ctx context.Context, keyword string) ([]models.User, error)
	DirectHistory(ctx context.Context, peerID string) ([]models.DirectMessage, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	GroupHistory(ctx context.Context, groupID string) ([]models.GroupMessage, error)
	CreateGroup(ctx context.Context, req models.NewGroupRequest) (models.Group, error)
	DeleteGroup(ctx context.Context, groupID string) error
}

// Source is the push session: the sole ingress of events and egress of
// commands. Satisfied by *session.Session.
type Source interface {
	SubscribeAll(h session.Handler) func()
	OnStateChange(h session.StateHandler) func()
	Emit(cmd events.Command) error
}

// ViewPublisher receives every published view. Satisfied by the local
// websocket hub.
type ViewPublisher interface {
	BroadcastJSON(messageType string, data interface{})
}

// Options tunes a Manager. Zero values use the package defaults.
type Options struct {
	InboxSize         int
	FetchTimeout      time.Duration
	TypingIdle        time.Duration
	SearchDelay       time.Duration
	PendingReceipts   int
	PendingReceiptTTL time.Duration

	// Scheduler replaces wall-clock timers. Expiries still run on the loop.
	Scheduler schedule.Scheduler

	Now   func() time.Time
	NewID func() string
}

func (o *Options) withDefaults() {
	if o.InboxSize <= 0 {
		o.InboxSize = DefaultInboxSize
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// step is one unit of work for the apply loop.
type step struct {
	source string
	fn     func()
	// after runs once the step is applied and its view published, even
	// when fn panics.
	after func()
	// quiet steps do not publish a new view.
	quiet bool
}

var errApplyPanic = errors.New("apply step panicked")

type searchResults struct {
	users  []models.User
	groups []string
}

// Manager is the apply context: a single goroutine that owns all chat state.
type Manager struct {
	opts    Options
	self    models.User
	backend Backend
	source  Source

	inbox   chan step
	done    chan struct{}
	running atomic.Bool
	closed  sync.Once
	wg      sync.WaitGroup

	pubMu     sync.RWMutex
	publisher ViewPublisher
	view      atomic.Pointer[models.View]

	attachMu sync.Mutex
	gen      atomic.Uint64
	unsubs   []func()

	// Everything below is owned by the loop goroutine.
	runCtx   context.Context
	presence *presence.Tracker
	roster   *roster.Roster
	recon    *reconcile.Reconciler
	typing   *typing.Controller
	search   *search.Debouncer
	users    map[string]models.User
	groups   map[string]models.Group
	fetches  map[models.ConversationKey]uint64
	fetchSeq uint64
	state    session.State
	notice   *models.Notice
	results  searchResults
	version  uint64
}

// NewManager creates a Manager for self. Call Attach to start receiving
// events and Run to start the loop.
func NewManager(self models.User, backend Backend, source Source, opts Options) *Manager {
	opts.withDefaults()
	m := &Manager{
		opts:     opts,
		self:     self,
		backend:  backend,
		source:   source,
		inbox:    make(chan step, opts.InboxSize),
		done:     make(chan struct{}),
		runCtx:   context.Background(),
		presence: presence.NewTracker(),
		roster:   roster.New(),
		users:    make(map[string]models.User),
		groups:   make(map[string]models.Group),
		fetches:  make(map[models.ConversationKey]uint64),
		state:    session.Unconnected,
	}

	var sched schedule.Scheduler
	if opts.Scheduler != nil {
		sched = &loopScheduler{inner: opts.Scheduler, post: m.postTimer}
	} else {
		sched = schedule.NewLoop(m.postTimer)
	}

	m.recon = reconcile.New(self, reconcile.Options{
		PendingReceipts:   opts.PendingReceipts,
		PendingReceiptTTL: opts.PendingReceiptTTL,
		Now:               opts.Now,
		NewID:             opts.NewID,
	})
	m.typing = typing.NewController(sched, source, opts.TypingIdle)
	m.search = search.NewDebouncer(sched, opts.SearchDelay, m.issueSearch)

	m.publish()
	return m
}

// SetPublisher registers the receiver of new views.
func (m *Manager) SetPublisher(p ViewPublisher) {
	m.pubMu.Lock()
	m.publisher = p
	m.pubMu.Unlock()
}

// Self returns the signed-in user.
func (m *Manager) Self() models.User {
	return m.self
}

// View returns the latest published snapshot. It is never nil.
func (m *Manager) View() *models.View {
	return m.view.Load()
}

// Attach subscribes to the source. Calling it again starts a new
// generation: events queued under the previous one are ignored.
func (m *Manager) Attach() {
	m.attachMu.Lock()
	defer m.attachMu.Unlock()

	m.detachLocked()
	g := m.gen.Add(1)

	m.unsubs = append(m.unsubs,
		m.source.SubscribeAll(func(ev events.Event) {
			m.post(step{source: "event", fn: func() {
				if m.gen.Load() != g {
					return
				}
				m.handleEvent(ev)
			}})
		}),
		m.source.OnStateChange(func(st session.State, err error) {
			m.post(step{source: "session", fn: func() {
				if m.gen.Load() != g {
					return
				}
				m.handleState(st, err)
			}})
		}),
	)
}

// Detach drops the subscriptions and invalidates anything still queued.
func (m *Manager) Detach() {
	m.attachMu.Lock()
	defer m.attachMu.Unlock()
	m.detachLocked()
	m.gen.Add(1)
}

func (m *Manager) detachLocked() {
	for _, cancel := range m.unsubs {
		cancel()
	}
	m.unsubs = nil
}

// Run applies queued steps until ctx is canceled. A Manager runs once.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sync manager is already running")
	}
	select {
	case <-m.done:
		return ErrStopped
	default:
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.runCtx = runCtx
	defer func() {
		cancel()
		m.closed.Do(func() { close(m.done) })
		m.wg.Wait()
		m.typing.Reset()
		m.search.Reset()
	}()

	logging.Info().Str("user", m.self.ID).Int("inbox", cap(m.inbox)).Msg("Sync manager started")
	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Sync manager stopped")
			return ctx.Err()
		case s := <-m.inbox:
			m.apply(s)
		}
	}
}

// Serve implements suture.Service.
func (m *Manager) Serve(ctx context.Context) error {
	return m.Run(ctx)
}

// String implements fmt.Stringer for supervisor logs.
func (m *Manager) String() string {
	return "sync-manager"
}

func (m *Manager) apply(s step) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Str("source", s.source).Msg("Apply step panicked")
		}
		if s.after != nil {
			s.after()
		}
		metrics.ApplyQueueDepth.Set(float64(len(m.inbox)))
		metrics.RecordApply(s.source, start)
	}()

	s.fn()
	if !s.quiet {
		m.publish()
	}
}

// post enqueues s. It blocks while the inbox is full and fails once the loop
// has exited.
func (m *Manager) post(s step) bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.inbox <- s:
		metrics.ApplyQueueDepth.Set(float64(len(m.inbox)))
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) postTimer(fn func()) {
	m.post(step{source: "timer", fn: fn})
}

// call runs fn on the loop and waits for its result.
func (m *Manager) call(ctx context.Context, quiet bool, fn func() error) error {
	res := make(chan error, 1)
	err := errApplyPanic
	ok := m.post(step{
		source: "command",
		quiet:  quiet,
		fn:     func() { err = fn() },
		after:  func() { res <- err },
	})
	if !ok {
		return ErrStopped
	}

	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		select {
		case err := <-res:
			return err
		default:
			return ErrStopped
		}
	}
}

// reply posts a step whose result is delivered on res after publishing.
func (m *Manager) reply(source string, res chan<- error, fn func() error) {
	err := errApplyPanic
	ok := m.post(step{
		source: source,
		fn:     func() { err = fn() },
		after:  func() { res <- err },
	})
	if !ok {
		res <- ErrStopped
	}
}

// Sync waits until every step queued before it has been applied.
func (m *Manager) Sync(ctx context.Context) error {
	return m.call(ctx, true, func() error { return nil })
}

// spawn runs fn off the loop with a fetch deadline. Call only from the loop.
func (m *Manager) spawn(ctx context.Context, fn func(ctx context.Context)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, m.opts.FetchTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (m *Manager) emit(cmd events.Command) bool {
	if err := m.source.Emit(cmd); err != nil {
		logging.Debug().Err(err).Str("event", cmd.Event).Msg("Command not sent")
		return false
	}
	return true
}

func (m *Manager) fail(op string, key models.ConversationKey, err error) error {
	ferr := &FetchError{Op: op, Key: key, Err: err}
	m.notice = &models.Notice{Op: op, Message: ferr.Error(), At: m.opts.Now()}
	logging.Warn().Err(err).Str("op", op).Str("conversation", key.String()).Msg("Backend request failed")
	return ferr
}

// loopScheduler routes expiries of an injected scheduler through the loop.
type loopScheduler struct {
	inner schedule.Scheduler
	post  func(func())
}

func (s *loopScheduler) AfterFunc(d time.Duration, f func()) schedule.Stop {
	// Both the stop func and the posted closure run on the loop.
	cancelled := false
	stop := s.inner.AfterFunc(d, func() {
		s.post(func() {
			if !cancelled {
				f()
			}
		})
	})
	return func() {
		cancelled = true
		stop()
	}
}
