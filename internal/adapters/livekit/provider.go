package livekit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/golive/internal/core"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/rs/zerolog/log"
)

const Name = "livekit"

type Config struct {
	URL       string        `mapstructure:"url"`
	APIKey    string        `mapstructure:"api_key"`
	APISecret string        `mapstructure:"api_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// Provider connects to an SFU room through the LiveKit Go SDK.
type Provider struct {
	url string
}

var _ core.Provider = (*Provider)(nil)

func NewProvider(cfg Config) *Provider {
	return &Provider{url: cfg.URL}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Capabilities() core.Capabilities {
	return capabilities
}

var capabilities = core.Capabilities{
	ViewerCount:   true,
	QualityEvents: true,
	Subscribe:     true,
	ScreenShare:   true,
}

type joinResult struct {
	room *lksdk.Room
	err  error
}

func (p *Provider) Connect(ctx context.Context, cp core.ConnectParams) (core.ProviderSession, error) {
	s := newSession()

	done := make(chan joinResult, 1)
	go func() {
		room, err := lksdk.ConnectToRoomWithToken(p.url, cp.Token, s.callback(),
			lksdk.WithAutoSubscribe(cp.AutoSubscribe))
		done <- joinResult{room: room, err: err}
	}()

	select {
	case <-ctx.Done():
		// the join may still succeed after we gave up on it
		go func() {
			if r := <-done; r.room != nil {
				r.room.Disconnect()
			}
		}()
		return nil, core.NewError(core.ErrProvider, "livekit connect", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, classify(r.err)
		}
		s.bind(r.room)
		log.Info().
			Str("module", "livekit").
			Str("room", string(cp.Room.Name)).
			Str("identity", s.LocalIdentity()).
			Msg("joined room")
		return s, nil
	}
}

var authMarkers = []string{
	"401",
	"403",
	"unauthorized",
	"permission denied",
	"invalid token",
	"token is expired",
	"could not validate token",
}

// classify maps a join error onto ErrAuth when the server rejected the token,
// ErrProvider otherwise.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrAuth) || errors.Is(err, core.ErrProvider) {
		return err
	}
	msg := strings.ToLower(err.Error())
	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return core.NewError(core.ErrAuth, "livekit connect", err)
		}
	}
	return core.NewError(core.ErrProvider, "livekit connect", fmt.Errorf("join: %w", err))
}
