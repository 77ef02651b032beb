// Package whip publishes local media to a WHIP ingest endpoint. It is
// broadcast-only: there are no remote participants or subscriptions.
package whip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/golive/internal/adapters/rtc"
	"github.com/dkeye/golive/internal/core"
	"github.com/google/uuid"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const Name = "whip"

type Config struct {
	URL         string   `mapstructure:"url"`
	BearerToken string   `mapstructure:"bearer_token"`
	ICEServers  []string `mapstructure:"ice_servers"`
}

// Provider negotiates one PeerConnection per session with a single SDP
// offer/answer exchange over HTTP.
type Provider struct {
	cfg    Config
	client *http.Client
}

var _ core.Provider = (*Provider)(nil)

func NewProvider(cfg Config, client *http.Client) *Provider {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Provider{cfg: cfg, client: client}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Capabilities() core.Capabilities { return capabilities }

var capabilities = core.Capabilities{ScreenShare: true}

var (
	errAnswer   = errors.New("invalid WHIP answer")
	errLocation = errors.New("WHIP response has no Location")
)

func (p *Provider) Connect(ctx context.Context, cp core.ConnectParams) (core.ProviderSession, error) {
	endpoint := cp.Room.IngestURL
	if endpoint == "" {
		endpoint = p.cfg.URL
	}
	token := cp.Token
	if token == "" {
		token = p.cfg.BearerToken
	}

	sid := uuid.NewString()
	conn, err := rtc.NewConnection(rtc.DefaultConfig(p.cfg.ICEServers), sid, 1, 2)
	if err != nil {
		return nil, core.NewError(core.ErrProvider, "whip connect", err)
	}
	s := newSession(p.client, conn, token)

	resource, err := s.negotiate(ctx, endpoint)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	s.resource = resource

	if err := s.awaitConnected(ctx); err != nil {
		_ = s.Close(context.WithoutCancel(ctx))
		return nil, core.NewError(core.ErrProvider, "whip connect", err)
	}
	log.Info().Str("module", "whip").Str("resource", resource).Msg("publishing")
	return s, nil
}

// negotiate posts the offer and applies the answer. It returns the absolute
// session resource URL.
func (s *session) negotiate(ctx context.Context, endpoint string) (string, error) {
	offer, err := s.conn.CreateOffer(ctx)
	if err != nil {
		return "", core.NewError(core.ErrProvider, "whip offer", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offer.SDP))
	if err != nil {
		return "", core.NewError(core.ErrProvider, "whip offer", err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", core.NewError(core.ErrProvider, "whip offer", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", core.NewError(core.ErrProvider, "whip offer", err)
	}

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", core.NewError(core.ErrAuth, "whip offer", fmt.Errorf("status %d", resp.StatusCode))
	default:
		return "", core.NewError(core.ErrProvider, "whip offer",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	resource, err := resolveLocation(endpoint, resp.Header.Get("Location"))
	if err != nil {
		return "", core.NewError(core.ErrProvider, "whip offer", err)
	}
	if err := validateAnswer(string(body)); err != nil {
		return "", core.NewError(core.ErrProvider, "whip answer", err)
	}
	if err := s.conn.ApplyAnswer(string(body)); err != nil {
		return "", core.NewError(core.ErrProvider, "whip answer", err)
	}
	return resource, nil
}

func resolveLocation(endpoint, location string) (string, error) {
	if location == "" {
		return "", errLocation
	}
	base, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// validateAnswer checks the answer carries media the server will receive.
func validateAnswer(raw string) error {
	var sd sdp.SessionDescription
	if err := sd.UnmarshalString(raw); err != nil {
		return fmt.Errorf("%w: %w", errAnswer, err)
	}
	if len(sd.MediaDescriptions) == 0 {
		return fmt.Errorf("%w: no media sections", errAnswer)
	}
	receiving := 0
	for _, md := range sd.MediaDescriptions {
		if _, ok := md.Attribute(webrtc.RTPTransceiverDirectionSendonly.String()); ok {
			return fmt.Errorf("%w: %s section is sendonly", errAnswer, md.MediaName.Media)
		}
		if _, ok := md.Attribute(webrtc.RTPTransceiverDirectionInactive.String()); ok {
			continue
		}
		receiving++
	}
	if receiving == 0 {
		return fmt.Errorf("%w: all media sections inactive", errAnswer)
	}
	return nil
}
