package core

import "github.com/dkeye/golive/internal/domain"

// Event is something the provider reported about the room. Events of different
// types may arrive in any relative order.
type Event interface {
	EventName() string
}

// ParticipantConnected carries the provider's participant set as of this event.
type ParticipantConnected struct {
	Participant domain.ParticipantInfo
	Snapshot    []domain.ParticipantInfo
}

type ParticipantDisconnected struct {
	Participant domain.ParticipantInfo
	Snapshot    []domain.ParticipantInfo
}

type TrackPublished struct {
	Participant domain.ParticipantInfo
	Publication RemotePublication
}

type TrackUnpublished struct {
	Participant domain.ParticipantInfo
	Publication RemotePublication
}

// TrackSubscribed means the publication's media is ready to attach.
type TrackSubscribed struct {
	Participant domain.ParticipantInfo
	Publication RemotePublication
	Media       MediaTrack
}

type TrackUnsubscribed struct {
	Participant domain.ParticipantInfo
	Publication RemotePublication
}

type TrackMuted struct {
	Participant    string
	PublicationSID string
	Muted          bool
}

type ConnectionQualityChanged struct {
	Identity string
	Local    bool
	Quality  domain.Quality
}

type Reconnecting struct{}

type Reconnected struct{}

// Disconnected is the provider closing the session on its own. Reason is free text.
type Disconnected struct {
	Reason string
	Err    error
}

func (ParticipantConnected) EventName() string     { return "participant_connected" }
func (ParticipantDisconnected) EventName() string  { return "participant_disconnected" }
func (TrackPublished) EventName() string           { return "track_published" }
func (TrackUnpublished) EventName() string         { return "track_unpublished" }
func (TrackSubscribed) EventName() string          { return "track_subscribed" }
func (TrackUnsubscribed) EventName() string        { return "track_unsubscribed" }
func (TrackMuted) EventName() string               { return "track_muted" }
func (ConnectionQualityChanged) EventName() string { return "connection_quality_changed" }
func (Reconnecting) EventName() string             { return "reconnecting" }
func (Reconnected) EventName() string              { return "reconnected" }
func (Disconnected) EventName() string             { return "disconnected" }
