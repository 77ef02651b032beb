package core

import (
	"context"

	"github.com/dkeye/golive/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// MediaTrack is received remote media ready to be attached to a sink.
type MediaTrack interface {
	ID() string
	Kind() domain.TrackKind
	Codec() string
	ReadRTP() (*rtp.Packet, error)
}

// RemotePublication is a provider handle for a remote participant's track.
type RemotePublication interface {
	SID() string
	Kind() domain.TrackKind
	Source() domain.TrackSource
	IsMuted() bool
	// IsSubscribed may report true before Media is available.
	IsSubscribed() bool
	// Media returns nil until the track's media is ready.
	Media() MediaTrack
	SetSubscribed(subscribed bool) error
}

// LocalTrack is a captured device track. Only the publisher stops it.
type LocalTrack interface {
	ID() string
	Kind() domain.TrackKind
	Source() domain.TrackSource
	RTC() webrtc.TrackLocal
	// OnEnded registers a callback for the device ending the track on its own.
	OnEnded(func(error))
	Stop() error
}

// LocalPublication is a published local track.
type LocalPublication interface {
	SID() string
	Kind() domain.TrackKind
	Source() domain.TrackSource
	// SetMuted toggles the publication's enabled flag without renegotiation.
	SetMuted(muted bool) error
	Muted() bool
}

// Sink consumes attached remote media.
type Sink interface {
	Attach(participant, publication string, media MediaTrack) error
	// Detach must be a no-op for unknown publications.
	Detach(publication string)
}

// DeviceSource acquires capture devices.
type DeviceSource interface {
	GetUserMedia(ctx context.Context, c domain.Constraints) ([]LocalTrack, error)
	GetDisplayMedia(ctx context.Context, c domain.Constraints) (LocalTrack, error)
}

// AudioSource exposes the most recent PCM window of an audio track.
type AudioSource interface {
	SampleRate() int
	// Samples copies the newest len(dst) samples, normalized to [-1, 1], into dst
	// and returns how many were available.
	Samples(dst []float64) int
	Close() error
}

// AudioTapper opens an AudioSource on a captured audio track.
type AudioTapper interface {
	AudioTap(track LocalTrack) (AudioSource, error)
}
