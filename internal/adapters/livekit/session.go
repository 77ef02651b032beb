package livekit

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type session struct {
	mu     sync.RWMutex
	room   *lksdk.Room
	events core.Listeners[core.Event]
	closed bool
}

var _ core.ProviderSession = (*session)(nil)

func newSession() *session {
	return &session{}
}

func (s *session) bind(room *lksdk.Room) {
	s.mu.Lock()
	s.room = room
	s.mu.Unlock()
}

func (s *session) getRoom() *lksdk.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

func (s *session) LocalIdentity() string {
	if r := s.getRoom(); r != nil {
		return r.LocalParticipant.Identity()
	}
	return ""
}

func (s *session) Capabilities() core.Capabilities { return capabilities }

func (s *session) OnEvent(fn func(core.Event)) core.Unsubscribe {
	return s.events.Add(fn)
}

func (s *session) RemoteParticipants() []core.RemoteState {
	r := s.getRoom()
	if r == nil {
		return nil
	}
	rps := r.GetRemoteParticipants()
	out := make([]core.RemoteState, 0, len(rps))
	for _, rp := range rps {
		st := core.RemoteState{Info: participantInfo(rp)}
		for _, tp := range rp.TrackPublications() {
			if pub, ok := tp.(*lksdk.RemoteTrackPublication); ok {
				st.Publications = append(st.Publications, &remotePub{pub: pub})
			}
		}
		out = append(out, st)
	}
	return out
}

func (s *session) snapshot() []domain.ParticipantInfo {
	r := s.getRoom()
	if r == nil {
		return nil
	}
	rps := r.GetRemoteParticipants()
	out := make([]domain.ParticipantInfo, 0, len(rps))
	for _, rp := range rps {
		out = append(out, participantInfo(rp))
	}
	return out
}

func (s *session) Publish(_ context.Context, track core.LocalTrack, opts core.PublishOptions) (core.LocalPublication, error) {
	r := s.getRoom()
	if r == nil {
		return nil, core.ErrDisconnected
	}
	pub, err := r.LocalParticipant.PublishTrack(track.RTC(), &lksdk.TrackPublicationOptions{
		Name:        opts.Name,
		Source:      toSource(opts.Source),
		VideoWidth:  opts.Width,
		VideoHeight: opts.Height,
	})
	if err != nil {
		return nil, fmt.Errorf("publish %s: %w", opts.Name, err)
	}
	return &localPub{pub: pub, kind: track.Kind(), source: opts.Source}, nil
}

func (s *session) Unpublish(_ context.Context, pub core.LocalPublication) error {
	r := s.getRoom()
	if r == nil {
		return nil
	}
	return r.LocalParticipant.UnpublishTrack(pub.SID())
}

func (s *session) Close(context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	r := s.room
	s.mu.Unlock()

	if r != nil {
		r.Disconnect()
	}
	s.events.Clear()
	log.Info().Str("module", "livekit").Msg("room disconnected")
	return nil
}

// callback translates SDK callbacks into provider events. It is handed to the
// SDK before the room exists, so every handler tolerates a nil room.
func (s *session) callback() *lksdk.RoomCallback {
	return &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackPublished: func(pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				s.events.Emit(core.TrackPublished{Participant: participantInfo(rp), Publication: &remotePub{pub: pub}})
			},
			OnTrackUnpublished: func(pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				s.events.Emit(core.TrackUnpublished{Participant: participantInfo(rp), Publication: &remotePub{pub: pub}})
			},
			OnTrackSubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				s.events.Emit(core.TrackSubscribed{
					Participant: participantInfo(rp),
					Publication: &remotePub{pub: pub},
					Media:       newMediaTrack(track),
				})
			},
			OnTrackUnsubscribed: func(_ *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				s.events.Emit(core.TrackUnsubscribed{Participant: participantInfo(rp), Publication: &remotePub{pub: pub}})
			},
			OnTrackMuted: func(pub lksdk.TrackPublication, p lksdk.Participant) {
				s.events.Emit(core.TrackMuted{Participant: p.Identity(), PublicationSID: pub.SID(), Muted: true})
			},
			OnTrackUnmuted: func(pub lksdk.TrackPublication, p lksdk.Participant) {
				s.events.Emit(core.TrackMuted{Participant: p.Identity(), PublicationSID: pub.SID(), Muted: false})
			},
			OnConnectionQualityChanged: func(update *livekit.ConnectionQualityInfo, p lksdk.Participant) {
				identity := p.Identity()
				s.events.Emit(core.ConnectionQualityChanged{
					Identity: identity,
					Local:    identity != "" && identity == s.LocalIdentity(),
					Quality:  toQuality(update.GetQuality()),
				})
			},
		},
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			s.events.Emit(core.ParticipantConnected{Participant: participantInfo(rp), Snapshot: s.snapshot()})
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			s.events.Emit(core.ParticipantDisconnected{Participant: participantInfo(rp), Snapshot: s.snapshot()})
		},
		OnReconnecting: func() {
			log.Warn().Str("module", "livekit").Msg("signal reconnecting")
			s.events.Emit(core.Reconnecting{})
		},
		OnReconnected: func() {
			log.Info().Str("module", "livekit").Msg("signal reconnected")
			s.events.Emit(core.Reconnected{})
		},
		OnDisconnectedWithReason: func(reason lksdk.DisconnectionReason) {
			s.events.Emit(core.Disconnected{Reason: fmt.Sprint(reason)})
		},
	}
}
