package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/golive/internal/app/audiolevel"
	"github.com/dkeye/golive/internal/app/publisher"
	"github.com/dkeye/golive/internal/core"
	"github.com/rs/zerolog/log"
)

// startAudioLevel taps the published microphone and forwards samples to
// OnAudioLevel listeners until the monitor stops.
func (c *Controller) startAudioLevel(ls *liveSession) {
	if c.params.Tapper == nil {
		return
	}
	track := ls.publisher.AudioTrack()
	if track == nil {
		return
	}
	logger := log.With().Str("module", "orch").Str("session", string(ls.session.ID)).Logger()

	src, err := c.params.Tapper.AudioTap(track)
	if err != nil {
		logger.Warn().Err(err).Msg("audio tap unavailable")
		return
	}

	c.mu.Lock()
	if ls.closing {
		c.mu.Unlock()
		_ = src.Close()
		return
	}
	mon := audiolevel.New(c.params.Audio)
	ls.monitor = mon
	c.mu.Unlock()

	samples, err := mon.Start(ls.ctx, src)
	if err != nil {
		logger.Warn().Err(err).Msg("audio level monitor")
		_ = src.Close()
		return
	}
	go func() {
		for s := range samples {
			c.levels.Emit(s)
		}
	}()
}

// AudioLevel returns the latest local microphone activity, 0 when not sampling.
func (c *Controller) AudioLevel() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live == nil || c.live.monitor == nil {
		return 0
	}
	return c.live.monitor.Level()
}

func (c *Controller) activePublisher() (*publisher.Publisher, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ls := c.live
	if ls == nil || ls.session.State.IsTerminal() || ls.closing {
		return nil, fmt.Errorf("media: %w", core.ErrDisconnected)
	}
	if ls.publisher == nil {
		return nil, core.NewError(core.ErrUnsupported, "media", errNoPublisher)
	}
	return ls.publisher, nil
}

// SetVideoEnabled toggles the published camera without renegotiation.
func (c *Controller) SetVideoEnabled(enabled bool) error {
	p, err := c.activePublisher()
	if err != nil {
		return err
	}
	return p.SetVideoEnabled(enabled)
}

// SetAudioEnabled toggles the published microphone without renegotiation.
func (c *Controller) SetAudioEnabled(enabled bool) error {
	p, err := c.activePublisher()
	if err != nil {
		return err
	}
	return p.SetAudioEnabled(enabled)
}

// SetScreenShareEnabled adds or removes a screen-share publication next to the camera.
func (c *Controller) SetScreenShareEnabled(ctx context.Context, enabled bool) error {
	p, err := c.activePublisher()
	if err != nil {
		return err
	}
	return p.SetScreenShareEnabled(ctx, enabled)
}

// MediaState describes the local publications of the live Session.
type MediaState struct {
	Video       bool `json:"video"`
	Audio       bool `json:"audio"`
	ScreenShare bool `json:"screen_share"`
	Published   int  `json:"published"`
}

func (c *Controller) Media() MediaState {
	p, err := c.activePublisher()
	if err != nil {
		return MediaState{}
	}
	return MediaState{
		Video:       p.VideoEnabled(),
		Audio:       p.AudioEnabled(),
		ScreenShare: p.ScreenShareEnabled(),
		Published:   p.Publications(),
	}
}
