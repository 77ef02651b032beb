// Package domain contains entities without transport logic, just meta-data.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session is one connection attempt to one room.
// It is owned by the connection controller; callers only see copies.
type Session struct {
	ID            SessionID       `json:"id"`
	Room          Room            `json:"room"`
	Token         string          `json:"-"`
	Provider      string          `json:"provider"`
	LocalIdentity string          `json:"local_identity"`
	State         ConnectionState `json:"state"`
	StartedAt     time.Time       `json:"started_at"`
	EndedAt       time.Time       `json:"ended_at,omitzero"`
}

func NewSession(room Room, token, provider string) *Session {
	return &Session{
		ID:        SessionID(uuid.NewString()),
		Room:      room,
		Token:     token,
		Provider:  provider,
		State:     StateIdle,
		StartedAt: time.Now(),
	}
}

// Snapshot returns a copy that is safe to hand out of the controller.
func (s *Session) Snapshot() Session {
	return *s
}
