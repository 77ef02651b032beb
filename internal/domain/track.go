package domain

import "errors"

type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

type TrackSource string

const (
	SourceUnknown    TrackSource = "unknown"
	SourceCamera     TrackSource = "camera"
	SourceMicrophone TrackSource = "microphone"
	SourceScreen     TrackSource = "screen_share"
)

type SubscriptionStatus string

const (
	Unsubscribed SubscriptionStatus = "unsubscribed"
	Pending      SubscriptionStatus = "pending"
	Subscribed   SubscriptionStatus = "subscribed"
)

var ErrInvalidTransition = errors.New("invalid subscription transition")

// TrackPublication is a remote participant's announced track as seen by the local participant.
type TrackPublication struct {
	SID         string             `json:"sid"`
	Participant string             `json:"participant"`
	Kind        TrackKind          `json:"kind"`
	Source      TrackSource        `json:"source"`
	Muted       bool               `json:"muted"`
	Status      SubscriptionStatus `json:"status"`
	// Attached is true while a media handle is bound to a sink.
	Attached bool `json:"attached"`
}

// Transition moves the publication to next. Subscribed requires an attached media
// handle and is only reachable from Pending.
func (p *TrackPublication) Transition(next SubscriptionStatus, hasMedia bool) error {
	if next == Subscribed {
		if p.Status == Unsubscribed || !hasMedia {
			return ErrInvalidTransition
		}
	}
	p.Status = next
	return nil
}
