package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNoSender = errors.New("no free sender for track kind")

// Connection is a send-only PeerConnection with pre-negotiated transceivers.
// Tracks are swapped onto the senders without renegotiation.
type Connection struct {
	pc  *webrtc.PeerConnection
	sid string

	mu      sync.Mutex
	senders map[webrtc.RTPCodecType][]*slot

	onICE func(webrtc.ICEConnectionState)
}

type slot struct {
	sender *webrtc.RTPSender
	owner  string
}

func DefaultConfig(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		iceServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: iceServers,
			},
		},
	}
}

// NewConnection creates the peer connection with audio and video send-only
// transceivers.
func NewConnection(cfg webrtc.Configuration, sid string, audio, video int) (*Connection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &Connection{pc: pc, sid: sid, senders: make(map[webrtc.RTPCodecType][]*slot)}

	add := func(kind webrtc.RTPCodecType, n int) error {
		for range n {
			tr, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionSendonly,
			})
			if err != nil {
				return fmt.Errorf("add %s transceiver: %w", kind, err)
			}
			c.senders[kind] = append(c.senders[kind], &slot{sender: tr.Sender()})
		}
		return nil
	}
	if err := add(webrtc.RTPCodecTypeAudio, audio); err != nil {
		_ = pc.Close()
		return nil, err
	}
	if err := add(webrtc.RTPCodecTypeVideo, video); err != nil {
		_ = pc.Close()
		return nil, err
	}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("sid", c.sid).Str("ice_state", s.String()).Msg("ICE state")
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn != nil {
			fn(s)
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Debug().Str("module", "webrtc").Str("sid", c.sid).Str("peer_connection_state", s.String()).Msg("Peer state")
	})
	return c, nil
}

// OnICEState sets the callback for ICE connection state changes.
func (c *Connection) OnICEState(fn func(webrtc.ICEConnectionState)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *Connection) ICEState() webrtc.ICEConnectionState {
	return c.pc.ICEConnectionState()
}

// CreateOffer returns the local offer once ICE gathering has completed, so it
// can be posted in one request.
func (c *Connection) CreateOffer(ctx context.Context) (*webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return c.pc.LocalDescription(), nil
}

func (c *Connection) ApplyAnswer(sdp string) error {
	return c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

// Attach puts track on a free sender of its kind and returns the slot id.
func (c *Connection) Attach(track webrtc.TrackLocal) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.senders[track.Kind()] {
		if s.owner != "" {
			continue
		}
		if err := s.sender.ReplaceTrack(track); err != nil {
			return "", err
		}
		s.owner = fmt.Sprintf("%s-%d", track.Kind(), i)
		return s.owner, nil
	}
	return "", ErrNoSender
}

// Replace swaps the media on an attached slot; nil sends nothing.
func (c *Connection) Replace(id string, track webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.find(id)
	if s == nil {
		return ErrNoSender
	}
	return s.sender.ReplaceTrack(track)
}

// Detach clears the slot so another track can use it.
func (c *Connection) Detach(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.find(id)
	if s == nil {
		return nil
	}
	s.owner = ""
	return s.sender.ReplaceTrack(nil)
}

func (c *Connection) find(id string) *slot {
	if id == "" {
		return nil
	}
	for _, list := range c.senders {
		for _, s := range list {
			if s.owner == id {
				return s
			}
		}
	}
	return nil
}

func (c *Connection) Close() error {
	c.OnICEState(nil)
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("sid", c.sid).Msg("close error")
		return err
	}
	log.Info().Str("module", "webrtc").Str("sid", c.sid).Msg("closed")
	return nil
}
