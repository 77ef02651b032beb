package core

import (
	"time"

	"github.com/dkeye/golive/internal/domain"
)

type NoticeKind string

const (
	NoticeStateChanged      NoticeKind = "state_changed"
	NoticeParticipantJoined NoticeKind = "participant_joined"
	NoticeParticipantLeft   NoticeKind = "participant_left"
	NoticeViewerCount       NoticeKind = "viewer_count"
	NoticeTrackAttached     NoticeKind = "track_attached"
	NoticeTrackDetached     NoticeKind = "track_detached"
	NoticeTrackNeverReady   NoticeKind = "track_never_ready"
	NoticeQualityDegraded   NoticeKind = "quality_degraded"
	NoticeQualityRestored   NoticeKind = "quality_restored"
	NoticeReconnecting      NoticeKind = "reconnecting"
	NoticeReconnected       NoticeKind = "reconnected"
	NoticeSessionEnded      NoticeKind = "session_ended"
)

// Notice is delivered to controller subscribers after connect. Warnings carry Err.
type Notice struct {
	Kind           NoticeKind             `json:"kind"`
	SessionID      domain.SessionID       `json:"session_id,omitempty"`
	State          domain.ConnectionState `json:"state,omitempty"`
	Identity       string                 `json:"identity,omitempty"`
	Classification domain.Classification  `json:"classification,omitempty"`
	Publication    string                 `json:"publication,omitempty"`
	ViewerCount    int                    `json:"viewer_count"`
	Quality        domain.Quality         `json:"quality,omitempty"`
	Message        string                 `json:"message,omitempty"`
	Err            error                  `json:"-"`
	At             time.Time              `json:"at"`
}

// Warning reports whether the notice is a non-fatal advisory.
func (n Notice) Warning() bool {
	return n.Kind == NoticeTrackNeverReady || n.Kind == NoticeQualityDegraded || n.Kind == NoticeReconnecting
}

// Notifier receives notices from core components.
type Notifier func(Notice)
