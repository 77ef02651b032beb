// Package orch composes the session components behind one ConnectionController.
package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/golive/internal/app/audiolevel"
	"github.com/dkeye/golive/internal/app/participants"
	"github.com/dkeye/golive/internal/app/publisher"
	"github.com/dkeye/golive/internal/app/quality"
	"github.com/dkeye/golive/internal/app/tracks"
	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
	"github.com/dkeye/golive/internal/metrics"
	fuse "github.com/frostbyte73/core"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog/log"
)

const eventBuffer = 256

type Params struct {
	Provider core.Provider
	Sink     core.Sink
	// Devices and Tapper are optional. Without Devices nothing is published,
	// without Tapper no audio level is sampled.
	Devices core.DeviceSource
	Tapper  core.AudioTapper
	Metrics *metrics.Metrics

	Rule          participants.Rule
	Tracks        tracks.Config
	Quality       quality.Config
	Audio         audiolevel.Config
	Media         domain.Constraints
	Publish       bool
	AutoSubscribe bool
}

// Ended is passed to OnDisconnected listeners once per Session.
type Ended struct {
	Session domain.Session
	Err     error
}

// Controller owns at most one live Session and the components serving it.
type Controller struct {
	params Params

	mu    sync.Mutex
	live  *liveSession
	state domain.ConnectionState

	notices      core.Listeners[core.Notice]
	disconnected core.Listeners[Ended]
	levels       core.Listeners[domain.AudioLevelSample]
}

type liveSession struct {
	session *domain.Session
	machine *fsm.FSM
	ctx     context.Context
	cancel  context.CancelFunc

	registry *participants.Registry
	tracks   *tracks.Manager
	watchdog *quality.Watchdog

	// Set once the provider session exists. Guarded by Controller.mu.
	provider  core.ProviderSession
	publisher *publisher.Publisher
	monitor   *audiolevel.Monitor
	closing   bool

	events chan core.Event
	stop   fuse.Fuse
	unsubs []core.Unsubscribe

	once        sync.Once
	finished    chan struct{}
	teardownErr error

	// While holding, notices queue in held and are emitted by finish once the
	// session is torn down.
	noticeMu sync.Mutex
	holding  bool
	held     []core.Notice
}

func NewController(p Params) *Controller {
	return &Controller{params: p, state: domain.StateIdle}
}

// Subscribe registers fn for session notices.
func (c *Controller) Subscribe(fn func(core.Notice)) core.Unsubscribe {
	return c.notices.Add(fn)
}

// OnDisconnected registers fn to run once when each Session ends, whatever the cause.
func (c *Controller) OnDisconnected(fn func(Ended)) core.Unsubscribe {
	return c.disconnected.Add(fn)
}

// OnAudioLevel registers fn for local microphone activity samples.
func (c *Controller) OnAudioLevel(fn func(domain.AudioLevelSample)) core.Unsubscribe {
	return c.levels.Add(fn)
}

// Connect opens a Session on room. It returns once the provider is connected
// and local media, if configured, is published.
func (c *Controller) Connect(ctx context.Context, room domain.Room, token string) (domain.Session, error) {
	if token == "" {
		return domain.Session{}, core.NewError(core.ErrAuth, "connect", core.ErrEmptyToken)
	}

	c.mu.Lock()
	if c.live != nil && !c.live.session.State.IsTerminal() {
		c.mu.Unlock()
		return domain.Session{}, fmt.Errorf("connect: %w", core.ErrSessionActive)
	}
	ls := c.newLiveSession(room, token)
	c.live = ls
	c.mu.Unlock()

	logger := log.With().Str("module", "orch").Str("session", string(ls.session.ID)).Str("room", string(room.Name)).Logger()
	logger.Info().Str("provider", c.params.Provider.Name()).Msg("connecting")
	c.params.Metrics.SessionStarted(c.params.Provider.Name())
	if !c.transition(ls, evConnect) {
		return c.snapshot(ls), fmt.Errorf("connect: %w", core.ErrDisconnected)
	}

	ps, err := c.params.Provider.Connect(ls.ctx, core.ConnectParams{
		Room:          room,
		Token:         token,
		AutoSubscribe: c.params.AutoSubscribe,
	})
	if err != nil {
		if c.isClosing(ls) {
			return c.snapshot(ls), fmt.Errorf("connect: %w", core.ErrDisconnected)
		}
		if core.KindOf(err) == nil {
			err = core.NewError(core.ErrProvider, "connect", err)
		}
		logger.Error().Err(err).Msg("connect failed")
		_ = c.finish(ls, evFail, err)
		return c.snapshot(ls), err
	}

	c.mu.Lock()
	if ls.closing {
		c.mu.Unlock()
		if cerr := ps.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn().Err(cerr).Msg("close provider after disconnect")
		}
		return c.snapshot(ls), fmt.Errorf("connect: %w", core.ErrDisconnected)
	}
	ls.provider = ps
	ls.session.LocalIdentity = ps.LocalIdentity()
	if c.params.Devices != nil {
		ls.publisher = publisher.New(c.params.Devices, ps)
	}
	c.mu.Unlock()

	c.startEvents(ls, ps)

	if c.params.Publish && ls.publisher != nil {
		if _, err := ls.publisher.AcquireAndPublish(ctx, c.params.Media); err != nil {
			if c.isClosing(ls) {
				return c.snapshot(ls), fmt.Errorf("connect: %w", core.ErrDisconnected)
			}
			logger.Error().Err(err).Msg("publish failed")
			_ = c.finish(ls, evFail, err)
			return c.snapshot(ls), err
		}
		if c.isClosing(ls) {
			// Disconnect raced the publish; release what it could not see.
			_ = ls.publisher.UnpublishAll(context.WithoutCancel(ctx))
			_ = ls.publisher.Release()
			return c.snapshot(ls), fmt.Errorf("connect: %w", core.ErrDisconnected)
		}
		c.startAudioLevel(ls)
	}

	if !ps.Capabilities().QualityEvents {
		if rep, ok := ps.(core.StatusReporter); ok {
			ls.watchdog.StartPolling(ls.ctx, rep, c.params.Quality.PollInterval, func(ev core.ConnectionQualityChanged) {
				c.post(ls, ev)
			})
		}
	}

	if !c.transition(ls, evReady) {
		return c.snapshot(ls), fmt.Errorf("connect: %w", core.ErrDisconnected)
	}
	logger.Info().Str("identity", ls.session.LocalIdentity).Msg("connected")
	return c.snapshot(ls), nil
}

// Disconnect ends the current Session. It is safe before Connect returns and
// when called repeatedly; the state always ends up terminal.
func (c *Controller) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	ls := c.live
	if ls == nil {
		c.state = domain.StateDisconnected
		c.mu.Unlock()
		return nil
	}
	ls.closing = true
	c.mu.Unlock()

	ls.cancel()
	return c.finish(ls, evDisconnect, nil)
}

func (c *Controller) newLiveSession(room domain.Room, token string) *liveSession {
	ctx, cancel := context.WithCancel(context.Background())
	ls := &liveSession{
		session:  domain.NewSession(room, token, c.params.Provider.Name()),
		machine:  newStateMachine(),
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan core.Event, eventBuffer),
		finished: make(chan struct{}),
	}
	notify := c.notifier(ls)
	caps := c.params.Provider.Capabilities()

	ls.registry = participants.NewRegistry(c.params.Rule, notify)
	ls.tracks = tracks.NewManager(tracks.Params{
		Config:           c.params.Tracks,
		Sink:             c.params.Sink,
		Notify:           notify,
		Observe:          ls.registry.SetStatus,
		Metrics:          c.params.Metrics,
		RequestSubscribe: caps.Subscribe && !c.params.AutoSubscribe,
		Defer:            func(fn func()) { c.post(ls, deferredEvent{fn: fn}) },
	})
	ls.watchdog = quality.New(notify, c.params.Metrics)
	return ls
}

// notifier stamps component notices with the session they belong to.
func (c *Controller) notifier(ls *liveSession) core.Notifier {
	id := ls.session.ID
	return func(n core.Notice) {
		n.SessionID = id
		if n.At.IsZero() {
			n.At = time.Now()
		}
		ls.noticeMu.Lock()
		if ls.holding {
			ls.held = append(ls.held, n)
			ls.noticeMu.Unlock()
			return
		}
		ls.noticeMu.Unlock()
		c.notices.Emit(n)
	}
}

func (c *Controller) holdNotices(ls *liveSession) {
	ls.noticeMu.Lock()
	ls.holding = true
	ls.noticeMu.Unlock()
}

// releaseNotices emits held notices in order, including any queued while it runs.
func (c *Controller) releaseNotices(ls *liveSession) {
	for {
		ls.noticeMu.Lock()
		batch := ls.held
		ls.held = nil
		if len(batch) == 0 {
			ls.holding = false
			ls.noticeMu.Unlock()
			return
		}
		ls.noticeMu.Unlock()
		for _, n := range batch {
			c.notices.Emit(n)
		}
	}
}

// transition fires event on the session state machine. It reports false when
// the event is not valid in the current state.
func (c *Controller) transition(ls *liveSession, event string) bool {
	c.mu.Lock()
	from := domain.ConnectionState(ls.machine.Current())
	if ls.machine.Cannot(event) {
		c.mu.Unlock()
		log.Debug().Str("module", "orch").Str("state", string(from)).Str("event", event).Msg("transition ignored")
		return false
	}
	if err := ls.machine.Event(context.Background(), event); err != nil {
		c.mu.Unlock()
		log.Error().Err(err).Str("module", "orch").Str("event", event).Msg("transition")
		return false
	}
	to := domain.ConnectionState(ls.machine.Current())
	ls.session.State = to
	if to.IsTerminal() && ls.session.EndedAt.IsZero() {
		ls.session.EndedAt = time.Now()
	}
	if c.live == ls {
		c.state = to
	}
	c.mu.Unlock()

	m := c.params.Metrics
	m.Transition(string(from), string(to))
	switch {
	case from == domain.StateIdle && to == domain.StateConnecting:
		m.SetActive(1)
	case from != domain.StateIdle && to.IsTerminal():
		m.SetActive(-1)
	}

	log.Info().Str("module", "orch").Str("session", string(ls.session.ID)).Str("from", string(from)).Str("to", string(to)).Msg("state changed")
	c.notifier(ls)(core.Notice{Kind: core.NoticeStateChanged, State: to})
	return true
}

func (c *Controller) isClosing(ls *liveSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ls.closing
}

func (c *Controller) snapshot(ls *liveSession) domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ls.session.Snapshot()
}

// State returns the state of the current or most recent Session.
func (c *Controller) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a copy of the current or most recent Session.
func (c *Controller) Session() (domain.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live == nil {
		return domain.Session{}, false
	}
	return c.live.session.Snapshot(), true
}

func (c *Controller) current() *liveSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live == nil || c.live.session.State.IsTerminal() {
		return nil
	}
	return c.live
}

// ViewerCount returns the audience size of the live Session, infrastructure excluded.
func (c *Controller) ViewerCount() int {
	ls := c.current()
	if ls == nil {
		return 0
	}
	return ls.registry.ViewerCount()
}

func (c *Controller) Participants() []*domain.RemoteParticipant {
	ls := c.current()
	if ls == nil {
		return nil
	}
	return ls.registry.Participants()
}

// Subscriptions lists remote publications with their subscription status.
func (c *Controller) Subscriptions() []domain.TrackPublication {
	ls := c.current()
	if ls == nil {
		return nil
	}
	return ls.tracks.Publications()
}

// Capabilities reports what the configured provider supports.
func (c *Controller) Capabilities() core.Capabilities {
	return c.params.Provider.Capabilities()
}

var errNoPublisher = errors.New("publishing not configured")
