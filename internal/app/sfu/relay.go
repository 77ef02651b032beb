package sfu

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/dkeye/golive/internal/core"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// Relay reads one attached remote track and forwards its packets to every OutTrack.
type Relay struct {
	Participant string
	Src         core.MediaTrack

	mu        sync.RWMutex
	outTracks map[string]*OutTrack

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRelay(participant string, src core.MediaTrack, cancel context.CancelFunc) *Relay {
	return &Relay{
		Participant: participant,
		Src:         src,
		outTracks:   make(map[string]*OutTrack),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// loop reads RTP packets from the source track and forwards them to all OutTracks.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("relay ctx done, marking all out tracks for delete")
			r.markAllDelete()
			return
		default:
		}
		pkt, err := r.Src.ReadRTP()
		if err != nil {
			if ctx.Err() == nil {
				logger.Info().Err(err).Msg("relay source ended")
			}
			r.markAllDelete()
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := maps.Clone(r.outTracks)
	r.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for name, ot := range snapshot {
		switch ot.GetState() {
		case TrackStateDelete:
			dirty = append(dirty, name)
		case TrackStateMuted:
		case TrackStateOk:
			if err := ot.WriteRTP(pkt); err != nil {
				logger.Error().
					Err(err).
					Str("output", name).
					Msg("relay write RTP error, marking outtrack as delete")
				ot.MarkDelete()
				dirty = append(dirty, name)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty, logger)
	}
}

func (r *Relay) cleanupDeleted(dirty []string, logger *zerolog.Logger) {
	r.mu.Lock()
	removed := make([]*OutTrack, 0, len(dirty))
	for _, name := range dirty {
		if ot, ok := r.outTracks[name]; ok {
			removed = append(removed, ot)
			delete(r.outTracks, name)
		}
	}
	r.mu.Unlock()

	for _, ot := range removed {
		if err := ot.Close(); err != nil {
			logger.Warn().Err(err).Str("output", ot.Name).Msg("close output")
		}
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outTracks {
		ot.MarkDelete()
	}
}

func (r *Relay) setMuted(muted bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ot := range r.outTracks {
		if muted {
			ot.MarkMuted()
		} else {
			ot.MarkOk()
		}
	}
}

// closeAll closes and forgets every output.
func (r *Relay) closeAll() error {
	r.mu.Lock()
	outs := make([]*OutTrack, 0, len(r.outTracks))
	for name, ot := range r.outTracks {
		ot.MarkDelete()
		outs = append(outs, ot)
		delete(r.outTracks, name)
	}
	r.mu.Unlock()

	var errs []error
	for _, ot := range outs {
		errs = append(errs, ot.Close())
	}
	return errors.Join(errs...)
}

func (r *Relay) AddOutTrack(ot *OutTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outTracks[ot.Name] = ot
}

// Done is closed when the relay loop has exited.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

func (r *Relay) OutTracks() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outTracks)
}
