package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/golive/internal/adapters/devices"
	router "github.com/dkeye/golive/internal/adapters/http"
	"github.com/dkeye/golive/internal/adapters/livekit"
	wssignal "github.com/dkeye/golive/internal/adapters/signal"
	"github.com/dkeye/golive/internal/adapters/token"
	"github.com/dkeye/golive/internal/adapters/whip"
	"github.com/dkeye/golive/internal/app/orch"
	"github.com/dkeye/golive/internal/app/sfu"
	"github.com/dkeye/golive/internal/config"
	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
	"github.com/dkeye/golive/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	provider, err := newProvider(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("provider")
	}

	codecs, err := newCodecSelector()
	if err != nil {
		log.Fatal().Err(err).Msg("codecs")
	}

	relays := sfu.NewRelayManager(ctx, sfu.Recorder{Dir: cfg.RecordDir}.Outputs)

	ctrl := orch.NewController(orch.Params{
		Provider:      provider,
		Sink:          relays,
		Devices:       devices.NewSource(codecs),
		Tapper:        devices.Tapper{},
		Metrics:       m,
		Rule:          cfg.Participants,
		Tracks:        cfg.Subscription,
		Quality:       cfg.Quality,
		Audio:         cfg.Audio,
		Media:         cfg.Media,
		Publish:       cfg.Publish,
		AutoSubscribe: cfg.AutoSubscribe,
	})
	ctrl.OnDisconnected(func(e orch.Ended) {
		ev := log.Info()
		if e.Err != nil {
			ev = log.Warn().Err(e.Err)
		}
		ev.Str("session", string(e.Session.ID)).Str("state", e.Session.State.String()).Msg("session ended")
	})

	hub := wssignal.NewHub(ctrl, wssignal.Config{ReadLimit: cfg.ReadLimit, PingPeriod: cfg.PingPeriod})
	hub.Start()

	var issuer *token.Issuer
	if cfg.LiveKit.APIKey != "" {
		issuer, err = token.NewIssuer(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.TokenTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("token issuer")
		}
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Controller: ctrl,
		Hub:        hub,
		Issuer:     issuer,
		Gatherer:   reg,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("provider", provider.Name()).Msg("Broadcaster started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
	}()

	if tok := startupToken(cfg, issuer); tok != "" {
		go func() {
			room := domain.Room{Name: domain.RoomName(cfg.Room)}
			if _, err := ctrl.Connect(ctx, room, tok); err != nil {
				log.Error().Err(err).Msg("startup connect failed")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := ctrl.Disconnect(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("disconnect")
	}
	hub.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

func newProvider(cfg *config.Config) (core.Provider, error) {
	switch cfg.Provider {
	case livekit.Name:
		return livekit.NewProvider(cfg.LiveKit), nil
	case whip.Name:
		return whip.NewProvider(cfg.WHIP, nil), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// startupToken returns a token to join cfg.Room with at boot, or "" when the
// session is left to the control API.
func startupToken(cfg *config.Config, issuer *token.Issuer) string {
	switch cfg.Provider {
	case whip.Name:
		return cfg.WHIP.BearerToken
	case livekit.Name:
		if issuer == nil || cfg.Room == "" || cfg.Identity == "" {
			return ""
		}
		tok, err := issuer.Issue(token.Request{Room: cfg.Room, Identity: cfg.Identity, Name: cfg.Identity, Role: token.RolePublisher})
		if err != nil {
			log.Error().Err(err).Msg("startup token")
			return ""
		}
		return tok
	}
	return ""
}

func newCodecSelector() (*mediadevices.CodecSelector, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_500_000
	vpxParams.KeyFrameInterval = 60

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	opusParams.BitRate = 64_000

	return mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	), nil
}
