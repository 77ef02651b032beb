package tracks

import (
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
	"github.com/dkeye/golive/internal/metrics"
	"github.com/rs/zerolog/log"
)

type Config struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

func DefaultConfig() Config {
	return Config{PollInterval: 200 * time.Millisecond, MaxAttempts: 10}
}

// StatusObserver mirrors subscription status changes, e.g. into the participant registry.
type StatusObserver func(identity, sid string, status domain.SubscriptionStatus, attached bool)

type Params struct {
	Config  Config
	Sink    core.Sink
	Notify  core.Notifier
	Observe StatusObserver
	Metrics *metrics.Metrics
	// RequestSubscribe asks the provider to subscribe to announced publications.
	// Leave false when the provider auto-subscribes.
	RequestSubscribe bool
	// Defer receives the callbacks produced by background retries. Nil runs
	// them on the retry goroutine.
	Defer func(func())
}

type entry struct {
	participant domain.ParticipantInfo
	handle      core.RemotePublication
	state       domain.TrackPublication
	media       core.MediaTrack
	// gen changes whenever a retry is scheduled or superseded.
	gen        uint64
	neverReady bool
}

// Manager attaches every remote publication the session is entitled to see to
// the sink, whatever order the published and media-ready events arrive in.
type Manager struct {
	mu      sync.Mutex
	params  Params
	arena   *Arena
	entries map[string]*entry
	// removed holds publications that were unpublished or whose participant
	// left. Later events for them are stale.
	removed map[string]struct{}
	outbox  []func()
	closed  bool
}

func NewManager(p Params) *Manager {
	def := DefaultConfig()
	if p.Config.PollInterval <= 0 {
		p.Config.PollInterval = def.PollInterval
	}
	if p.Config.MaxAttempts <= 0 {
		p.Config.MaxAttempts = def.MaxAttempts
	}
	if p.Notify == nil {
		p.Notify = func(core.Notice) {}
	}
	return &Manager{
		params:  p,
		arena:   NewArena(),
		entries: make(map[string]*entry),
		removed: make(map[string]struct{}),
	}
}

func (m *Manager) OnTrackPublished(p domain.ParticipantInfo, pub core.RemotePublication) {
	m.mu.Lock()
	defer m.flush()
	if m.closed || m.staleLocked(pub.SID(), "published") {
		return
	}
	e := m.ensureLocked(p, pub)
	if e.media != nil {
		return
	}
	if pub.IsSubscribed() {
		m.resolveLocked(e)
		return
	}
	if e.state.Status != domain.Unsubscribed || !m.params.RequestSubscribe {
		return
	}
	if err := pub.SetSubscribed(true); err != nil {
		log.Warn().Err(err).Str("module", "tracks").Str("publication", e.state.SID).Msg("subscribe request failed")
		return
	}
	m.setStatusLocked(e, domain.Pending)
	log.Debug().Str("module", "tracks").Str("publication", e.state.SID).Str("identity", p.Identity).Msg("subscription requested")
}

// OnTrackSubscribed handles media becoming ready. A nil media handle falls back
// to the publication's own handle and then to polling.
func (m *Manager) OnTrackSubscribed(p domain.ParticipantInfo, pub core.RemotePublication, media core.MediaTrack) {
	m.mu.Lock()
	defer m.flush()
	if m.closed || m.staleLocked(pub.SID(), "subscribed") {
		return
	}
	e := m.ensureLocked(p, pub)
	if media == nil {
		m.resolveLocked(e)
		return
	}
	m.attachLocked(e, media)
}

func (m *Manager) OnTrackUnsubscribed(p domain.ParticipantInfo, pub core.RemotePublication) {
	m.mu.Lock()
	defer m.flush()
	e, ok := m.entries[pub.SID()]
	if !ok {
		return
	}
	m.arena.Cancel(e.state.SID)
	e.gen++
	m.detachLocked(e)
	m.setStatusLocked(e, domain.Unsubscribed)
}

func (m *Manager) OnTrackUnpublished(p domain.ParticipantInfo, pub core.RemotePublication) {
	m.mu.Lock()
	defer m.flush()
	m.removeLocked(pub.SID())
	m.removed[pub.SID()] = struct{}{}
}

// OnParticipantGone drops every publication of identity.
func (m *Manager) OnParticipantGone(identity string) {
	m.mu.Lock()
	defer m.flush()
	for sid, e := range m.entries {
		if e.participant.Identity == identity {
			m.removeLocked(sid)
			m.removed[sid] = struct{}{}
		}
	}
}

func (m *Manager) SetMuted(sid string, muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[sid]; ok {
		e.state.Muted = muted
	}
}

// Detach releases the sink for sid. It is a no-op for unknown or detached publications.
func (m *Manager) Detach(sid string) bool {
	m.mu.Lock()
	defer m.flush()
	e, ok := m.entries[sid]
	if !ok || e.media == nil {
		return false
	}
	m.arena.Cancel(sid)
	e.gen++
	m.detachLocked(e)
	m.setStatusLocked(e, domain.Unsubscribed)
	return true
}

func (m *Manager) Attached(sid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sid]
	return ok && e.media != nil
}

func (m *Manager) Status(sid string) (domain.TrackPublication, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sid]
	if !ok {
		return domain.TrackPublication{}, false
	}
	return e.state, true
}

func (m *Manager) Publications() []domain.TrackPublication {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TrackPublication, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.state)
	}
	return out
}

// Removed reports whether sid was unpublished, or its participant left, earlier in the session.
func (m *Manager) Removed(sid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.removed[sid]
	return ok
}

// PendingRetries reports how many publications are being polled.
func (m *Manager) PendingRetries() int {
	return m.arena.Pending()
}

// Close cancels every pending retry and detaches all media.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	cancelled := m.arena.CancelAll()
	for sid := range m.entries {
		m.removeLocked(sid)
	}
	m.flush()

	m.arena.Wait()
	log.Info().Str("module", "tracks").Int("cancelled_retries", cancelled).Msg("closed")
}

func (m *Manager) staleLocked(sid, event string) bool {
	if _, ok := m.removed[sid]; !ok {
		return false
	}
	log.Debug().Str("module", "tracks").Str("publication", sid).Str("event", event).Msg("ignoring event for removed publication")
	return true
}

func (m *Manager) ensureLocked(p domain.ParticipantInfo, pub core.RemotePublication) *entry {
	sid := pub.SID()
	e, ok := m.entries[sid]
	if !ok {
		e = &entry{
			participant: p,
			handle:      pub,
			state: domain.TrackPublication{
				SID:         sid,
				Participant: p.Identity,
				Kind:        pub.Kind(),
				Source:      pub.Source(),
				Muted:       pub.IsMuted(),
				Status:      domain.Unsubscribed,
			},
		}
		m.entries[sid] = e
		return e
	}
	e.handle = pub
	return e
}

// resolveLocked attaches the publication's media if present, otherwise starts polling.
func (m *Manager) resolveLocked(e *entry) {
	if e.media != nil {
		return
	}
	if media := e.handle.Media(); media != nil {
		m.attachLocked(e, media)
		return
	}
	if e.state.Status == domain.Unsubscribed {
		m.setStatusLocked(e, domain.Pending)
	}
	m.scheduleLocked(e)
}

func (m *Manager) scheduleLocked(e *entry) {
	e.gen++
	gen := e.gen
	sid := e.state.SID
	cfg := m.params.Config
	m.arena.Schedule(sid, cfg.PollInterval, cfg.MaxAttempts,
		func(n int) bool { return m.poll(sid, gen, n) },
		func() { m.exhausted(sid, gen) },
	)
	log.Debug().Str("module", "tracks").Str("publication", sid).Msg("media not ready, polling")
}

func (m *Manager) poll(sid string, gen uint64, n int) bool {
	m.mu.Lock()
	defer m.handoff()
	if m.closed {
		return true
	}
	e, ok := m.entries[sid]
	// A newer attach, detach or reschedule supersedes this retry.
	if !ok || e.gen != gen || e.media != nil || e.state.Status != domain.Pending {
		return true
	}
	m.params.Metrics.SubscriptionRetry()
	media := e.handle.Media()
	if media == nil {
		log.Debug().Str("module", "tracks").Str("publication", sid).Int("attempt", n).Msg("media still not ready")
		return false
	}
	m.attachLocked(e, media)
	return true
}

func (m *Manager) exhausted(sid string, gen uint64) {
	m.mu.Lock()
	defer m.handoff()
	if m.closed {
		return
	}
	e, ok := m.entries[sid]
	if !ok || e.gen != gen || e.media != nil {
		return
	}
	e.neverReady = true
	cfg := m.params.Config
	err := core.NewError(core.ErrTrackNeverReady, "subscribe",
		fmt.Errorf("publication %s of %s: no media after %d attempts", sid, e.participant.Identity, cfg.MaxAttempts))
	log.Warn().Err(err).Str("module", "tracks").Str("publication", sid).Msg("track never ready")
	m.params.Metrics.TrackNeverReady()

	n := core.Notice{
		Kind:        core.NoticeTrackNeverReady,
		Identity:    e.participant.Identity,
		Publication: sid,
		Err:         err,
		Message:     err.Error(),
		At:          time.Now(),
	}
	m.outbox = append(m.outbox, func() { m.params.Notify(n) })
}

func (m *Manager) attachLocked(e *entry, media core.MediaTrack) {
	sid := e.state.SID
	if e.media != nil && e.media.ID() == media.ID() {
		return
	}
	m.arena.Cancel(sid)
	e.gen++
	if e.media != nil {
		m.detachLocked(e)
	}
	if err := m.params.Sink.Attach(e.participant.Identity, sid, media); err != nil {
		log.Error().Err(err).Str("module", "tracks").Str("publication", sid).Msg("sink attach failed")
		return
	}
	if e.state.Status == domain.Unsubscribed {
		m.setStatusLocked(e, domain.Pending)
	}
	if err := e.state.Transition(domain.Subscribed, true); err != nil {
		log.Error().Err(err).Str("module", "tracks").Str("publication", sid).Msg("attach transition")
	}
	e.media = media
	e.state.Attached = true
	m.params.Metrics.TrackAttached()

	logger := log.With().Str("module", "tracks").Str("publication", sid).Str("identity", e.participant.Identity).Logger()
	if e.neverReady {
		e.neverReady = false
		logger.Info().Msg("late media attached")
	} else {
		logger.Info().Str("kind", string(e.state.Kind)).Msg("attached")
	}

	m.observeLocked(e)
	n := core.Notice{Kind: core.NoticeTrackAttached, Identity: e.participant.Identity, Publication: sid, At: time.Now()}
	m.outbox = append(m.outbox, func() { m.params.Notify(n) })
}

func (m *Manager) detachLocked(e *entry) {
	if e.media == nil {
		return
	}
	sid := e.state.SID
	m.params.Sink.Detach(sid)
	e.media = nil
	e.state.Attached = false
	m.params.Metrics.TrackDetached()
	log.Info().Str("module", "tracks").Str("publication", sid).Msg("detached")

	m.observeLocked(e)
	n := core.Notice{Kind: core.NoticeTrackDetached, Identity: e.participant.Identity, Publication: sid, At: time.Now()}
	m.outbox = append(m.outbox, func() { m.params.Notify(n) })
}

func (m *Manager) removeLocked(sid string) {
	e, ok := m.entries[sid]
	if !ok {
		return
	}
	m.arena.Cancel(sid)
	e.gen++
	m.detachLocked(e)
	delete(m.entries, sid)
}

func (m *Manager) setStatusLocked(e *entry, status domain.SubscriptionStatus) {
	if e.state.Status == status {
		return
	}
	if err := e.state.Transition(status, e.media != nil); err != nil {
		log.Error().Err(err).Str("module", "tracks").Str("publication", e.state.SID).Str("to", string(status)).Msg("status transition")
		return
	}
	m.observeLocked(e)
}

func (m *Manager) observeLocked(e *entry) {
	if m.params.Observe == nil {
		return
	}
	identity, sid, status, attached := e.participant.Identity, e.state.SID, e.state.Status, e.state.Attached
	m.outbox = append(m.outbox, func() { m.params.Observe(identity, sid, status, attached) })
}

// handoff unlocks m and passes callbacks queued by a retry to Params.Defer.
// Listeners then never run on a retry goroutine that Close waits for.
func (m *Manager) handoff() {
	out := m.outbox
	m.outbox = nil
	m.mu.Unlock()
	if len(out) == 0 {
		return
	}
	run := func() {
		for _, fn := range out {
			fn()
		}
	}
	if m.params.Defer != nil {
		m.params.Defer(run)
		return
	}
	run()
}

// flush unlocks m and runs callbacks queued while it was held.
func (m *Manager) flush() {
	out := m.outbox
	m.outbox = nil
	m.mu.Unlock()
	for _, fn := range out {
		fn()
	}
}
