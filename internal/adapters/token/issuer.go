// Package token signs room access tokens for publishers and viewers.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
)

type Role string

const (
	RolePublisher Role = "publisher"
	RoleViewer    Role = "viewer"
)

var (
	ErrRole     = errors.New("unknown role")
	ErrIdentity = errors.New("identity required")
	ErrRoom     = errors.New("room required")
	ErrKeys     = errors.New("api key and secret required")
)

const defaultTTL = time.Hour

type Issuer struct {
	key    string
	secret string
	ttl    time.Duration
}

func NewIssuer(key, secret string, ttl time.Duration) (*Issuer, error) {
	if key == "" || secret == "" {
		return nil, ErrKeys
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Issuer{key: key, secret: secret, ttl: ttl}, nil
}

type Request struct {
	Room     string `json:"room"`
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
}

// Issue signs a time-limited token. Publishers may publish and subscribe;
// viewers may only subscribe.
func (i *Issuer) Issue(r Request) (string, error) {
	if r.Room == "" {
		return "", ErrRoom
	}
	if r.Identity == "" {
		return "", ErrIdentity
	}

	var canPublish bool
	switch r.Role {
	case RolePublisher:
		canPublish = true
	case RoleViewer:
	default:
		return "", fmt.Errorf("%w: %q", ErrRole, r.Role)
	}
	canSubscribe := true

	at := auth.NewAccessToken(i.key, i.secret)
	at.SetVideoGrant(&auth.VideoGrant{
		RoomJoin:     true,
		Room:         r.Room,
		CanPublish:   &canPublish,
		CanSubscribe: &canSubscribe,
	}).
		SetIdentity(r.Identity).
		SetName(r.Name).
		SetValidFor(i.ttl)

	jwt, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return jwt, nil
}
