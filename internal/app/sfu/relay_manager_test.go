package sfu

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanTrack yields packets pushed into pkts and ends when pkts is closed.
type chanTrack struct {
	id    string
	kind  domain.TrackKind
	codec string
	pkts  chan *rtp.Packet
}

func newChanTrack(id string) *chanTrack {
	return &chanTrack{id: id, kind: domain.TrackKindVideo, codec: webrtc.MimeTypeVP8, pkts: make(chan *rtp.Packet, 16)}
}

func (t *chanTrack) ID() string             { return t.id }
func (t *chanTrack) Kind() domain.TrackKind { return t.kind }
func (t *chanTrack) Codec() string          { return t.codec }

func (t *chanTrack) ReadRTP() (*rtp.Packet, error) {
	p, ok := <-t.pkts
	if !ok {
		return nil, io.EOF
	}
	return p, nil
}

type countingOutput struct {
	mu     sync.Mutex
	seqs   []uint16
	closed atomic.Int32
	fail   bool
}

func (o *countingOutput) WriteRTP(p *rtp.Packet) error {
	if o.fail {
		return errors.New("write failed")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seqs = append(o.seqs, p.SequenceNumber)
	return nil
}

func (o *countingOutput) Close() error {
	o.closed.Add(1)
	return nil
}

func (o *countingOutput) written() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.seqs)
}

func singleOutput(out *countingOutput) OutputFactory {
	return func(string, string, core.MediaTrack) ([]*OutTrack, error) {
		return []*OutTrack{NewOutTrack("test", out)}, nil
	}
}

func TestRelayForwardsPackets(t *testing.T) {
	out := &countingOutput{}
	m := NewRelayManager(context.Background(), singleOutput(out))
	src := newChanTrack("TR_1")

	require.NoError(t, m.Attach("viewer-1", "PUB_1", src))
	assert.True(t, m.HasRelay("PUB_1"))

	for i := range 3 {
		src.pkts <- &rtp.Packet{Header: rtp.Header{SequenceNumber: uint16(i)}}
	}
	require.Eventually(t, func() bool { return out.written() == 3 }, time.Second, 5*time.Millisecond)

	m.Detach("PUB_1")
	assert.False(t, m.HasRelay("PUB_1"))
	assert.EqualValues(t, 1, out.closed.Load())
	close(src.pkts)
}

func TestRelayMutePausesForwarding(t *testing.T) {
	out := &countingOutput{}
	m := NewRelayManager(context.Background(), singleOutput(out))
	src := newChanTrack("TR_1")
	require.NoError(t, m.Attach("viewer-1", "PUB_1", src))
	defer close(src.pkts)
	defer m.Detach("PUB_1")

	m.SetMuted("PUB_1", true)
	src.pkts <- &rtp.Packet{}
	src.pkts <- &rtp.Packet{}
	require.Eventually(t, func() bool { return len(src.pkts) == 0 }, time.Second, 5*time.Millisecond)

	m.SetMuted("PUB_1", false)
	src.pkts <- &rtp.Packet{Header: rtp.Header{SequenceNumber: 9}}
	require.Eventually(t, func() bool { return out.written() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestRelayDetachUnknownIsNoop(t *testing.T) {
	m := NewRelayManager(context.Background(), nil)
	assert.NotPanics(t, func() { m.Detach("missing") })
	assert.Empty(t, m.Active())
}

func TestRelayReattachReplaces(t *testing.T) {
	first, second := &countingOutput{}, &countingOutput{}
	var n atomic.Int32
	m := NewRelayManager(context.Background(), func(string, string, core.MediaTrack) ([]*OutTrack, error) {
		if n.Add(1) == 1 {
			return []*OutTrack{NewOutTrack("o", first)}, nil
		}
		return []*OutTrack{NewOutTrack("o", second)}, nil
	})
	a, b := newChanTrack("TR_a"), newChanTrack("TR_b")
	defer close(a.pkts)
	defer close(b.pkts)

	require.NoError(t, m.Attach("viewer-1", "PUB_1", a))
	require.NoError(t, m.Attach("viewer-1", "PUB_1", b))
	assert.EqualValues(t, 1, first.closed.Load())
	assert.Len(t, m.Active(), 1)

	src, ok := m.SrcTrack("PUB_1")
	require.True(t, ok)
	assert.Equal(t, "TR_b", src.ID())
	m.Detach("PUB_1")
}

func TestRelayDropsFailingOutput(t *testing.T) {
	out := &countingOutput{fail: true}
	src := newChanTrack("TR_1")
	defer close(src.pkts)
	m := NewRelayManager(context.Background(), singleOutput(out))
	require.NoError(t, m.Attach("viewer-1", "PUB_1", src))

	src.pkts <- &rtp.Packet{}
	require.Eventually(t, func() bool { return out.closed.Load() == 1 }, time.Second, 5*time.Millisecond)
	m.Detach("PUB_1")
	assert.EqualValues(t, 1, out.closed.Load())
}

func TestRecorderOutputs(t *testing.T) {
	dir := t.TempDir()
	r := Recorder{Dir: dir}

	video := newChanTrack("TR_v")
	outs, err := r.Outputs("viewer/1", "PUB_v", video)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	require.NoError(t, outs[0].Close())
	_, err = os.Stat(filepath.Join(dir, "viewer_1_PUB_v.ivf"))
	assert.NoError(t, err)

	audio := &chanTrack{id: "TR_a", kind: domain.TrackKindAudio, codec: webrtc.MimeTypeOpus}
	outs, err = r.Outputs("viewer-1", "PUB_a", audio)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	require.NoError(t, outs[0].Close())

	h264 := &chanTrack{id: "TR_h", kind: domain.TrackKindVideo, codec: webrtc.MimeTypeH264}
	outs, err = r.Outputs("viewer-1", "PUB_h", h264)
	require.NoError(t, err)
	assert.Empty(t, outs)

	outs, err = Recorder{}.Outputs("viewer-1", "PUB_v", video)
	require.NoError(t, err)
	assert.Empty(t, outs)
}

// slowOutput holds each write open for delay and counts closes that land mid-write.
type slowOutput struct {
	delay    time.Duration
	inFlight atomic.Int32
	started  atomic.Int32
	overlaps atomic.Int32
	closed   atomic.Int32
}

func (o *slowOutput) WriteRTP(*rtp.Packet) error {
	o.inFlight.Add(1)
	o.started.Add(1)
	time.Sleep(o.delay)
	o.inFlight.Add(-1)
	return nil
}

func (o *slowOutput) Close() error {
	if o.inFlight.Load() > 0 {
		o.overlaps.Add(1)
	}
	o.closed.Add(1)
	return nil
}

func TestDetachWaitsForWriteInFlight(t *testing.T) {
	out := &slowOutput{delay: 50 * time.Millisecond}
	m := NewRelayManager(context.Background(), func(string, string, core.MediaTrack) ([]*OutTrack, error) {
		return []*OutTrack{NewOutTrack("slow", out)}, nil
	})
	src := newChanTrack("TR_1")
	defer close(src.pkts)
	require.NoError(t, m.Attach("viewer-1", "PUB_1", src))

	src.pkts <- &rtp.Packet{}
	require.Eventually(t, func() bool { return out.started.Load() == 1 }, time.Second, time.Millisecond)

	m.Detach("PUB_1")
	assert.Zero(t, out.overlaps.Load())
	assert.EqualValues(t, 1, out.closed.Load())

	// Packets after the detach never reach the closed output.
	src.pkts <- &rtp.Packet{}
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, out.started.Load())
}

func TestReattachClosesOldOutputsBeforeOpening(t *testing.T) {
	first := &slowOutput{delay: 50 * time.Millisecond}
	second := &countingOutput{}
	var opened atomic.Int32
	var openedWhileLive atomic.Bool
	m := NewRelayManager(context.Background(), func(string, string, core.MediaTrack) ([]*OutTrack, error) {
		if opened.Add(1) == 1 {
			return []*OutTrack{NewOutTrack("file", first)}, nil
		}
		openedWhileLive.Store(first.closed.Load() == 0)
		return []*OutTrack{NewOutTrack("file", second)}, nil
	})
	a, b := newChanTrack("TR_a"), newChanTrack("TR_b")
	defer close(a.pkts)
	defer close(b.pkts)

	require.NoError(t, m.Attach("viewer-1", "PUB_1", a))
	a.pkts <- &rtp.Packet{}
	require.Eventually(t, func() bool { return first.started.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, m.Attach("viewer-1", "PUB_1", b))
	assert.False(t, openedWhileLive.Load())
	assert.Zero(t, first.overlaps.Load())
	m.Detach("PUB_1")
}

func TestRelayDoneAfterSourceEnds(t *testing.T) {
	out := &countingOutput{}
	m := NewRelayManager(context.Background(), singleOutput(out))
	src := newChanTrack("TR_1")
	require.NoError(t, m.Attach("viewer-1", "PUB_1", src))

	m.mu.RLock()
	relay := m.relays["PUB_1"]
	m.mu.RUnlock()
	close(src.pkts)

	select {
	case <-relay.Done():
	case <-time.After(time.Second):
		t.Fatal("relay loop did not exit")
	}
	m.Detach("PUB_1")
	assert.EqualValues(t, 1, out.closed.Load())
}
