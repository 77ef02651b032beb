package whip

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"sync"

	"github.com/dkeye/golive/internal/adapters/rtc"
	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var errICEFailed = errors.New("ICE failed")

type session struct {
	client   *http.Client
	conn     *rtc.Connection
	token    string
	resource string

	events core.Listeners[core.Event]
	ready  chan struct{}

	mu        sync.Mutex
	ice       webrtc.ICEConnectionState
	connected bool
	dropped   bool
	closed    bool
}

var (
	_ core.ProviderSession = (*session)(nil)
	_ core.StatusReporter  = (*session)(nil)
)

func newSession(client *http.Client, conn *rtc.Connection, token string) *session {
	s := &session{
		client: client,
		conn:   conn,
		token:  token,
		ready:  make(chan struct{}, 1),
		ice:    webrtc.ICEConnectionStateNew,
	}
	conn.OnICEState(s.onICE)
	return s
}

func (s *session) authorize(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}

// onICE maps ICE transitions to provider lifecycle events.
func (s *session) onICE(state webrtc.ICEConnectionState) {
	s.mu.Lock()
	s.ice = state
	var ev core.Event
	switch state {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		if !s.connected {
			s.connected = true
			select {
			case s.ready <- struct{}{}:
			default:
			}
		} else if s.dropped {
			ev = core.Reconnected{}
		}
		s.dropped = false
	case webrtc.ICEConnectionStateDisconnected:
		if s.connected && !s.dropped {
			s.dropped = true
			ev = core.Reconnecting{}
		}
	case webrtc.ICEConnectionStateFailed:
		select {
		case s.ready <- struct{}{}:
		default:
		}
		if s.connected {
			ev = core.Disconnected{Reason: "ice failed", Err: errICEFailed}
		}
	case webrtc.ICEConnectionStateClosed:
		if s.connected && !s.closed {
			ev = core.Disconnected{Reason: "peer connection closed"}
		}
	}
	s.mu.Unlock()

	if ev != nil {
		s.events.Emit(ev)
	}
}

func (s *session) awaitConnected(ctx context.Context) error {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return errICEFailed
	}
	return nil
}

func (s *session) LinkQuality() domain.Quality {
	s.mu.Lock()
	defer s.mu.Unlock()
	return iceQuality(s.ice)
}

func iceQuality(state webrtc.ICEConnectionState) domain.Quality {
	switch state {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		return domain.QualityGood
	case webrtc.ICEConnectionStateDisconnected:
		return domain.QualityPoor
	case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
		return domain.QualityLost
	default:
		return domain.QualityUnknown
	}
}

// LocalIdentity is the resource id the server assigned to this stream.
func (s *session) LocalIdentity() string {
	if s.resource == "" {
		return ""
	}
	return path.Base(s.resource)
}

func (s *session) Capabilities() core.Capabilities { return capabilities }

func (s *session) OnEvent(fn func(core.Event)) core.Unsubscribe {
	return s.events.Add(fn)
}

func (s *session) RemoteParticipants() []core.RemoteState { return nil }

func (s *session) Publish(_ context.Context, track core.LocalTrack, opts core.PublishOptions) (core.LocalPublication, error) {
	id, err := s.conn.Attach(track.RTC())
	if err != nil {
		return nil, fmt.Errorf("publish %s: %w", opts.Name, err)
	}
	log.Debug().Str("module", "whip").Str("publication", id).Str("source", string(opts.Source)).Msg("track attached")
	return &publication{id: id, conn: s.conn, track: track, source: opts.Source}, nil
}

func (s *session) Unpublish(_ context.Context, pub core.LocalPublication) error {
	return s.conn.Detach(pub.SID())
}

func (s *session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.events.Clear()
	err := s.conn.Close()
	if s.resource != "" {
		err = errors.Join(err, s.deleteResource(ctx))
	}
	return err
}

func (s *session) deleteResource(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.resource, nil)
	if err != nil {
		return err
	}
	s.authorize(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("whip delete: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("whip delete: status %d", resp.StatusCode)
	}
	return nil
}

type publication struct {
	id     string
	conn   *rtc.Connection
	track  core.LocalTrack
	source domain.TrackSource

	mu    sync.Mutex
	muted bool
}

func (p *publication) SID() string                { return p.id }
func (p *publication) Kind() domain.TrackKind     { return p.track.Kind() }
func (p *publication) Source() domain.TrackSource { return p.source }

func (p *publication) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// SetMuted stops sending media on the sender without renegotiation.
func (p *publication) SetMuted(muted bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.muted == muted {
		return nil
	}
	var t webrtc.TrackLocal
	if !muted {
		t = p.track.RTC()
	}
	if err := p.conn.Replace(p.id, t); err != nil {
		return err
	}
	p.muted = muted
	return nil
}
