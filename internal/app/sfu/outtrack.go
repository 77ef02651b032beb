package sfu

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

// Output consumes RTP packets of one attached publication. Outputs that also
// implement io.Closer are closed when the publication is detached.
type Output interface {
	WriteRTP(pkt *rtp.Packet) error
}

// OutTrack is a single output fed by a relay. Writes and Close are serialized,
// so an output is never closed under an in-flight write.
type OutTrack struct {
	Name   string
	Output Output
	state  atomic.Int32 // Zero by default (TrackStateOk)

	mu     sync.Mutex
	closed bool
}

func NewOutTrack(name string, out Output) *OutTrack {
	return &OutTrack{Name: name, Output: out}
}

func (ot *OutTrack) GetState() TrackState {
	return TrackState(ot.state.Load())
}

func (ot *OutTrack) MarkOk() {
	if ot.GetState() != TrackStateDelete {
		ot.state.Store(int32(TrackStateOk))
	}
}

func (ot *OutTrack) MarkMuted() {
	if ot.GetState() != TrackStateDelete {
		ot.state.Store(int32(TrackStateMuted))
	}
}

func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}

// WriteRTP forwards pkt to the output. Writes after Close are dropped.
func (ot *OutTrack) WriteRTP(pkt *rtp.Packet) error {
	ot.mu.Lock()
	defer ot.mu.Unlock()
	if ot.closed {
		return nil
	}
	return ot.Output.WriteRTP(pkt)
}

// Close waits for a running write and closes the output once.
func (ot *OutTrack) Close() error {
	ot.mu.Lock()
	defer ot.mu.Unlock()
	if ot.closed {
		return nil
	}
	ot.closed = true
	if c, ok := ot.Output.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
