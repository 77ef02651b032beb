package core

import (
	"context"

	"github.com/dkeye/golive/internal/domain"
)

// Capabilities tag what a provider backend can do.
type Capabilities struct {
	ViewerCount   bool
	QualityEvents bool
	Subscribe     bool
	ScreenShare   bool
}

type ConnectParams struct {
	Room          domain.Room
	Token         string
	AutoSubscribe bool
}

type PublishOptions struct {
	Name   string
	Source domain.TrackSource
	Width  int
	Height int
}

//go:generate mockgen -source=provider_iface.go -destination=coremock/provider.go -package=coremock

// Provider is a real-time transport backend. It is constructed explicitly and
// injected into the controller.
type Provider interface {
	Name() string
	Capabilities() Capabilities
	// Connect blocks until the session is ready or fails. Errors carry a kind
	// (ErrAuth or ErrProvider).
	Connect(ctx context.Context, p ConnectParams) (ProviderSession, error)
}

// ProviderSession is a live connection to a provider.
type ProviderSession interface {
	LocalIdentity() string
	Capabilities() Capabilities
	OnEvent(fn func(Event)) Unsubscribe
	// RemoteParticipants snapshots everyone already in the room with their publications.
	RemoteParticipants() []RemoteState
	Publish(ctx context.Context, track LocalTrack, opts PublishOptions) (LocalPublication, error)
	Unpublish(ctx context.Context, pub LocalPublication) error
	Close(ctx context.Context) error
}

// RemoteState is a remote participant present when the session connected.
type RemoteState struct {
	Info         domain.ParticipantInfo
	Publications []RemotePublication
}

// StatusReporter is implemented by sessions that can be polled for link quality.
type StatusReporter interface {
	LinkQuality() domain.Quality
}
