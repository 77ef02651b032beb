package tracks

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
	"github.com/pion/rtp"
)

type fakeMedia struct {
	id   string
	kind domain.TrackKind
}

func (m *fakeMedia) ID() string                    { return m.id }
func (m *fakeMedia) Kind() domain.TrackKind        { return m.kind }
func (m *fakeMedia) Codec() string                 { return "video/VP8" }
func (m *fakeMedia) ReadRTP() (*rtp.Packet, error) { return nil, io.EOF }

type fakePub struct {
	sid        string
	kind       domain.TrackKind
	subscribed atomic.Bool
	media      atomic.Pointer[fakeMedia]
	subReqs    atomic.Int32
}

func newPub(sid string, subscribed bool) *fakePub {
	p := &fakePub{sid: sid, kind: domain.TrackKindVideo}
	p.subscribed.Store(subscribed)
	return p
}

func (p *fakePub) SID() string                { return p.sid }
func (p *fakePub) Kind() domain.TrackKind     { return p.kind }
func (p *fakePub) Source() domain.TrackSource { return domain.SourceCamera }
func (p *fakePub) IsMuted() bool              { return false }
func (p *fakePub) IsSubscribed() bool         { return p.subscribed.Load() }

func (p *fakePub) Media() core.MediaTrack {
	if m := p.media.Load(); m != nil {
		return m
	}
	return nil
}

func (p *fakePub) SetSubscribed(v bool) error {
	p.subReqs.Add(1)
	p.subscribed.Store(v)
	return nil
}

func (p *fakePub) ready() *fakeMedia {
	m := &fakeMedia{id: "TR_" + p.sid, kind: p.kind}
	p.media.Store(m)
	return m
}

type fakeSink struct {
	mu       sync.Mutex
	attached map[string]string
	attaches map[string]int
	detaches map[string]int
}

func newSink() *fakeSink {
	return &fakeSink{
		attached: make(map[string]string),
		attaches: make(map[string]int),
		detaches: make(map[string]int),
	}
}

func (s *fakeSink) Attach(participant, publication string, media core.MediaTrack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached[publication] = media.ID()
	s.attaches[publication]++
	return nil
}

func (s *fakeSink) Detach(publication string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attached[publication]; !ok {
		return
	}
	delete(s.attached, publication)
	s.detaches[publication]++
}

func (s *fakeSink) count(sid string) (attaches, detaches int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attaches[sid], s.detaches[sid]
}

type recorder struct {
	mu      sync.Mutex
	notices []core.Notice
}

func (r *recorder) notify(n core.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
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

func (r *recorder) last(k core.NoticeKind) (core.Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.notices) - 1; i >= 0; i-- {
		if r.notices[i].Kind == k {
			return r.notices[i], true
		}
	}
	return core.Notice{}, false
}
