package sfu

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/golive/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// OutputFactory opens the outputs an attached publication is relayed to.
type OutputFactory func(participant, publication string, media core.MediaTrack) ([]*OutTrack, error)

// RelayManager is a core.Sink running one relay per attached publication.
type RelayManager struct {
	mu      sync.RWMutex
	relays  map[string]*Relay
	outputs OutputFactory
	ctx     context.Context
}

func NewRelayManager(ctx context.Context, outputs OutputFactory) *RelayManager {
	return &RelayManager{
		relays:  make(map[string]*Relay),
		outputs: outputs,
		ctx:     ctx,
	}
}

var _ core.Sink = (*RelayManager)(nil)

// Attach starts a relay for the publication. Attaching a publication that is
// already relayed replaces the old relay.
func (m *RelayManager) Attach(participant, publication string, media core.MediaTrack) error {
	logger := log.With().
		Str("module", "sfu").
		Str("publication", publication).
		Str("identity", participant).
		Logger()

	// The old relay's outputs are closed before new ones may reopen the same files.
	m.mu.Lock()
	old, replaced := m.relays[publication]
	delete(m.relays, publication)
	m.mu.Unlock()
	if replaced {
		logger.Info().Msg("replacing existing relay for publication")
		m.stop(old, &logger)
	}

	var outs []*OutTrack
	if m.outputs != nil {
		var err error
		outs, err = m.outputs(participant, publication, media)
		if err != nil {
			return fmt.Errorf("open outputs for %s: %w", publication, err)
		}
	}

	relayCtx, cancel := context.WithCancel(m.ctx)
	relay := NewRelay(participant, media, cancel)
	for _, ot := range outs {
		relay.AddOutTrack(ot)
	}

	m.mu.Lock()
	raced, ok := m.relays[publication]
	m.relays[publication] = relay
	m.mu.Unlock()
	if ok {
		m.stop(raced, &logger)
	}

	logger.Info().Int("outputs", len(outs)).Str("codec", media.Codec()).Msg("starting relay loop")
	go relay.loop(relayCtx, &logger)
	return nil
}

// Detach stops the relay for publication. Unknown publications are ignored.
func (m *RelayManager) Detach(publication string) {
	m.mu.Lock()
	relay, ok := m.relays[publication]
	if ok {
		delete(m.relays, publication)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	logger := log.With().Str("module", "sfu").Str("publication", publication).Logger()
	m.stop(relay, &logger)
	logger.Info().Msg("relay stopped")
}

// SetMuted pauses or resumes forwarding for publication.
func (m *RelayManager) SetMuted(publication string, muted bool) {
	m.mu.RLock()
	relay, ok := m.relays[publication]
	m.mu.RUnlock()
	if ok {
		relay.setMuted(muted)
	}
}

func (m *RelayManager) stop(r *Relay, logger *zerolog.Logger) {
	r.markAllDelete()
	if r.cancel != nil {
		r.cancel()
	}
	if err := r.closeAll(); err != nil {
		logger.Warn().Err(err).Msg("close relay outputs")
	}
}

// HasRelay reports whether a relay exists for publication.
func (m *RelayManager) HasRelay(publication string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relays[publication]
	return ok
}

// Active lists attached publications.
func (m *RelayManager) Active() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.relays))
	for sid := range m.relays {
		out = append(out, sid)
	}
	return out
}

// SrcTrack returns the source track for a given relay.
func (m *RelayManager) SrcTrack(publication string) (core.MediaTrack, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	relay, ok := m.relays[publication]
	if !ok {
		return nil, false
	}
	return relay.Src, true
}
