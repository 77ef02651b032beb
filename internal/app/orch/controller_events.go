package orch

import (
	"errors"
	"fmt"

	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
	"github.com/rs/zerolog/log"
)

// seedEvent carries the participants already in the room at connect time.
type seedEvent struct {
	states []core.RemoteState
}

func (seedEvent) EventName() string { return "seed" }

// deferredEvent runs work produced by a background goroutine on the loop, so
// listeners it reaches never run on a goroutine teardown waits for.
type deferredEvent struct {
	fn func()
}

func (deferredEvent) EventName() string { return "deferred" }

// mutingSink is implemented by sinks that can pause a relayed publication.
type mutingSink interface {
	SetMuted(publication string, muted bool)
}

// startEvents subscribes to provider events and starts the dispatch loop.
// Provider callbacks only enqueue; all handling happens on the loop goroutine.
func (c *Controller) startEvents(ls *liveSession, ps core.ProviderSession) {
	unsub := ps.OnEvent(func(ev core.Event) {
		select {
		case ls.events <- ev:
		case <-ls.stop.Watch():
		}
	})
	c.mu.Lock()
	if ls.closing {
		c.mu.Unlock()
		unsub()
		return
	}
	ls.unsubs = append(ls.unsubs, unsub)
	c.mu.Unlock()

	go c.loop(ls)
	select {
	case ls.events <- seedEvent{states: ps.RemoteParticipants()}:
	case <-ls.stop.Watch():
	}
}

// post queues ev for the dispatch loop. It gives up once the session stops.
func (c *Controller) post(ls *liveSession, ev core.Event) {
	select {
	case ls.events <- ev:
	case <-ls.stop.Watch():
	}
}

func (c *Controller) loop(ls *liveSession) {
	for {
		select {
		case <-ls.stop.Watch():
			return
		case ev := <-ls.events:
			if ls.stop.IsBroken() {
				return
			}
			c.dispatch(ls, ev)
		}
	}
}

func (c *Controller) dispatch(ls *liveSession, ev core.Event) {
	log.Debug().Str("module", "orch").Str("session", string(ls.session.ID)).Str("event", ev.EventName()).Msg("provider event")

	switch e := ev.(type) {
	case deferredEvent:
		e.fn()

	case seedEvent:
		infos := make([]domain.ParticipantInfo, 0, len(e.states))
		for _, st := range e.states {
			infos = append(infos, st.Info)
		}
		ls.registry.Seed(infos)
		c.params.Metrics.SetViewers(ls.registry.ViewerCount())
		for _, st := range e.states {
			for _, pub := range st.Publications {
				c.onTrackPublished(ls, st.Info, pub)
			}
		}

	case core.ParticipantConnected:
		ls.registry.Join(e.Participant, e.Snapshot)
		c.params.Metrics.SetViewers(ls.registry.ViewerCount())

	case core.ParticipantDisconnected:
		ls.tracks.OnParticipantGone(e.Participant.Identity)
		ls.registry.Leave(e.Participant, e.Snapshot)
		c.params.Metrics.SetViewers(ls.registry.ViewerCount())

	case core.TrackPublished:
		c.onTrackPublished(ls, e.Participant, e.Publication)

	case core.TrackSubscribed:
		if ls.tracks.Removed(e.Publication.SID()) {
			log.Debug().Str("module", "orch").Str("publication", e.Publication.SID()).Msg("media for removed publication ignored")
			break
		}
		c.ensurePublication(ls, e.Participant, e.Publication)
		ls.tracks.OnTrackSubscribed(e.Participant, e.Publication, e.Media)

	case core.TrackUnsubscribed:
		ls.tracks.OnTrackUnsubscribed(e.Participant, e.Publication)

	case core.TrackUnpublished:
		ls.tracks.OnTrackUnpublished(e.Participant, e.Publication)
		ls.registry.RemovePublication(e.Participant.Identity, e.Publication.SID())

	case core.TrackMuted:
		ls.registry.SetMuted(e.Participant, e.PublicationSID, e.Muted)
		ls.tracks.SetMuted(e.PublicationSID, e.Muted)
		if ms, ok := c.params.Sink.(mutingSink); ok {
			ms.SetMuted(e.PublicationSID, e.Muted)
		}

	case core.ConnectionQualityChanged:
		ls.watchdog.OnQuality(e)

	case core.Reconnecting:
		if c.transition(ls, evReconnecting) {
			ls.watchdog.OnReconnecting()
		}

	case core.Reconnected:
		if c.transition(ls, evReconnected) {
			ls.watchdog.OnReconnected()
		}

	case core.Disconnected:
		c.onProviderDisconnected(ls, e)

	default:
		log.Warn().Str("module", "orch").Str("event", ev.EventName()).Msg("unhandled provider event")
	}
}

func (c *Controller) onTrackPublished(ls *liveSession, p domain.ParticipantInfo, pub core.RemotePublication) {
	if ls.tracks.Removed(pub.SID()) {
		return
	}
	ls.registry.AddPublication(p, publicationState(pub))
	ls.tracks.OnTrackPublished(p, pub)
}

// ensurePublication records pub when its media event arrives before the announcement.
func (c *Controller) ensurePublication(ls *liveSession, p domain.ParticipantInfo, pub core.RemotePublication) {
	if rp, ok := ls.registry.Get(p.Identity); ok {
		if _, known := rp.Publications[pub.SID()]; known {
			return
		}
	}
	ls.registry.AddPublication(p, publicationState(pub))
}

// onProviderDisconnected ends the Session after the provider dropped it. A drop
// while reconnecting means the provider gave up.
func (c *Controller) onProviderDisconnected(ls *liveSession, e core.Disconnected) {
	c.mu.Lock()
	state := ls.session.State
	c.mu.Unlock()

	cause := e.Err
	if cause == nil {
		reason := e.Reason
		if reason == "" {
			reason = "unknown reason"
		}
		cause = errors.New(reason)
	}
	if state == domain.StateReconnecting {
		err := core.NewError(core.ErrReconnectExhausted, "provider", cause)
		log.Error().Err(err).Str("module", "orch").Str("session", string(ls.session.ID)).Msg("reconnect exhausted")
		_ = c.finish(ls, evFail, err)
		return
	}
	err := fmt.Errorf("%w: %w", core.ErrDisconnected, cause)
	log.Warn().Err(err).Str("module", "orch").Str("session", string(ls.session.ID)).Msg("provider disconnected")
	_ = c.finish(ls, evDisconnect, err)
}

func publicationState(pub core.RemotePublication) domain.TrackPublication {
	return domain.TrackPublication{
		SID:    pub.SID(),
		Kind:   pub.Kind(),
		Source: pub.Source(),
		Muted:  pub.IsMuted(),
		Status: domain.Unsubscribed,
	}
}
