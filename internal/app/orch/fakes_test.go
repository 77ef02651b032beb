package orch

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type fakeProvider struct {
	caps    core.Capabilities
	block   bool
	err     error
	session func() *fakeSession

	mu       sync.Mutex
	sessions []*fakeSession
}

func (p *fakeProvider) Name() string                    { return "fake" }
func (p *fakeProvider) Capabilities() core.Capabilities { return p.caps }

func (p *fakeProvider) Connect(ctx context.Context, _ core.ConnectParams) (core.ProviderSession, error) {
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}
	s := newFakeSession(p.caps)
	if p.session != nil {
		s = p.session()
	}
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s, nil
}

func (p *fakeProvider) last() *fakeSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

type fakeSession struct {
	caps      core.Capabilities
	handlers  core.Listeners[core.Event]
	remote    []core.RemoteState
	quality   atomic.Value
	closes    atomic.Int32
	panicOn   bool
	publishes atomic.Int32
	unpubs    atomic.Int32
	polls     atomic.Int32
}

func newFakeSession(caps core.Capabilities) *fakeSession {
	s := &fakeSession{caps: caps}
	s.quality.Store(domain.QualityExcellent)
	return s
}

func (s *fakeSession) LocalIdentity() string           { return "host" }
func (s *fakeSession) Capabilities() core.Capabilities { return s.caps }

func (s *fakeSession) OnEvent(fn func(core.Event)) core.Unsubscribe {
	return s.handlers.Add(fn)
}

func (s *fakeSession) RemoteParticipants() []core.RemoteState { return s.remote }

func (s *fakeSession) Publish(_ context.Context, t core.LocalTrack, opts core.PublishOptions) (core.LocalPublication, error) {
	s.publishes.Add(1)
	return &fakeLocalPub{sid: "TR_" + t.ID(), kind: t.Kind(), source: opts.Source}, nil
}

func (s *fakeSession) Unpublish(context.Context, core.LocalPublication) error {
	s.unpubs.Add(1)
	return nil
}

func (s *fakeSession) Close(context.Context) error {
	s.closes.Add(1)
	if s.panicOn {
		panic("transport already gone")
	}
	return nil
}

func (s *fakeSession) LinkQuality() domain.Quality {
	s.polls.Add(1)
	return s.quality.Load().(domain.Quality)
}

func (s *fakeSession) emit(ev core.Event) { s.handlers.Emit(ev) }

type fakeLocalPub struct {
	sid    string
	kind   domain.TrackKind
	source domain.TrackSource
	muted  atomic.Bool
}

func (p *fakeLocalPub) SID() string                { return p.sid }
func (p *fakeLocalPub) Kind() domain.TrackKind     { return p.kind }
func (p *fakeLocalPub) Source() domain.TrackSource { return p.source }
func (p *fakeLocalPub) SetMuted(m bool) error      { p.muted.Store(m); return nil }
func (p *fakeLocalPub) Muted() bool                { return p.muted.Load() }

type fakeTrack struct {
	id     string
	kind   domain.TrackKind
	source domain.TrackSource
	stops  atomic.Int32
}

func (t *fakeTrack) ID() string                 { return t.id }
func (t *fakeTrack) Kind() domain.TrackKind     { return t.kind }
func (t *fakeTrack) Source() domain.TrackSource { return t.source }
func (t *fakeTrack) RTC() webrtc.TrackLocal     { return nil }
func (t *fakeTrack) OnEnded(func(error))        {}
func (t *fakeTrack) Stop() error                { t.stops.Add(1); return nil }

type fakeDevices struct {
	cam, mic *fakeTrack
	err      error
}

func newDevices() *fakeDevices {
	return &fakeDevices{
		cam: &fakeTrack{id: "cam", kind: domain.TrackKindVideo, source: domain.SourceCamera},
		mic: &fakeTrack{id: "mic", kind: domain.TrackKindAudio, source: domain.SourceMicrophone},
	}
}

func (d *fakeDevices) GetUserMedia(context.Context, domain.Constraints) ([]core.LocalTrack, error) {
	if d.err != nil {
		return nil, d.err
	}
	return []core.LocalTrack{d.cam, d.mic}, nil
}

func (d *fakeDevices) GetDisplayMedia(context.Context, domain.Constraints) (core.LocalTrack, error) {
	return nil, errors.New("no display")
}

type fakeAudio struct{ closes atomic.Int32 }

func (a *fakeAudio) SampleRate() int { return 48000 }
func (a *fakeAudio) Samples(dst []float64) int {
	for i := range dst {
		dst[i] = 0.5
		if i%2 == 0 {
			dst[i] = -0.5
		}
	}
	return len(dst)
}
func (a *fakeAudio) Close() error { a.closes.Add(1); return nil }

type fakeTapper struct{ src *fakeAudio }

func (t *fakeTapper) AudioTap(core.LocalTrack) (core.AudioSource, error) { return t.src, nil }

type fakeMedia struct{ id string }

func (m *fakeMedia) ID() string                    { return m.id }
func (m *fakeMedia) Kind() domain.TrackKind        { return domain.TrackKindVideo }
func (m *fakeMedia) Codec() string                 { return webrtc.MimeTypeVP8 }
func (m *fakeMedia) ReadRTP() (*rtp.Packet, error) { return nil, io.EOF }

type fakeRemotePub struct {
	sid        string
	subscribed atomic.Bool
	media      atomic.Pointer[fakeMedia]
}

func newRemotePub(sid string, subscribed bool) *fakeRemotePub {
	p := &fakeRemotePub{sid: sid}
	p.subscribed.Store(subscribed)
	return p
}

func (p *fakeRemotePub) SID() string                { return p.sid }
func (p *fakeRemotePub) Kind() domain.TrackKind     { return domain.TrackKindVideo }
func (p *fakeRemotePub) Source() domain.TrackSource { return domain.SourceCamera }
func (p *fakeRemotePub) IsMuted() bool              { return false }
func (p *fakeRemotePub) IsSubscribed() bool         { return p.subscribed.Load() }
func (p *fakeRemotePub) SetSubscribed(v bool) error { p.subscribed.Store(v); return nil }

func (p *fakeRemotePub) Media() core.MediaTrack {
	if m := p.media.Load(); m != nil {
		return m
	}
	return nil
}

type fakeSink struct {
	mu       sync.Mutex
	attached map[string]string
}

func newSink() *fakeSink { return &fakeSink{attached: make(map[string]string)} }

func (s *fakeSink) Attach(_, publication string, media core.MediaTrack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached[publication] = media.ID()
	return nil
}

func (s *fakeSink) Detach(publication string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attached, publication)
}

func (s *fakeSink) has(publication string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.attached[publication]
	return ok
}

type recorder struct {
	mu      sync.Mutex
	notices []core.Notice
	ended   []Ended
}

func (r *recorder) notify(n core.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) onEnded(e Ended) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, e)
}

func (r *recorder) count(k core.NoticeKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.notices {
		if x.Kind == k {
			n++
		}
	}
	return n
}

func (r *recorder) endings() []Ended {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Ended(nil), r.ended...)
}

func (r *recorder) states() []domain.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ConnectionState
	for _, n := range r.notices {
		if n.Kind == core.NoticeStateChanged {
			out = append(out, n.State)
		}
	}
	return out
}
