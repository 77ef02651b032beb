// Package devices captures camera, microphone and screen through pion/mediadevices.
// Drivers and encoders are registered by the binary.
package devices

import (
	"context"
	"sync"

	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Source acquires device tracks encoded with the configured codecs.
type Source struct {
	codecs *mediadevices.CodecSelector
}

var _ core.DeviceSource = (*Source)(nil)

func NewSource(codecs *mediadevices.CodecSelector) *Source {
	return &Source{codecs: codecs}
}

type captureResult struct {
	tracks []mediadevices.Track
	err    error
}

func (s *Source) GetUserMedia(ctx context.Context, c domain.Constraints) ([]core.LocalTrack, error) {
	opts := mediadevices.MediaStreamConstraints{Codec: s.codecs}
	if !c.DisableVideo {
		opts.Video = videoConstraints(c)
	}
	if !c.DisableAudio {
		opts.Audio = audioConstraints(c)
	}

	tracks, err := capture(ctx, func() ([]mediadevices.Track, error) {
		stream, err := mediadevices.GetUserMedia(opts)
		if err != nil {
			return nil, err
		}
		return stream.GetTracks(), nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]core.LocalTrack, 0, len(tracks))
	for _, t := range tracks {
		src := domain.SourceCamera
		if t.Kind() == webrtc.RTPCodecTypeAudio {
			src = domain.SourceMicrophone
		}
		out = append(out, newTrack(t, src))
	}
	log.Info().Str("module", "devices").Int("tracks", len(out)).Msg("user media acquired")
	return out, nil
}

func (s *Source) GetDisplayMedia(ctx context.Context, c domain.Constraints) (core.LocalTrack, error) {
	opts := mediadevices.MediaStreamConstraints{
		Codec: s.codecs,
		Video: func(mc *mediadevices.MediaTrackConstraints) {
			if c.FrameRate > 0 {
				mc.FrameRate = prop.Float(c.FrameRate)
			}
		},
	}
	tracks, err := capture(ctx, func() ([]mediadevices.Track, error) {
		stream, err := mediadevices.GetDisplayMedia(opts)
		if err != nil {
			return nil, err
		}
		return stream.GetVideoTracks(), nil
	})
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, errNoDisplay
	}
	for _, extra := range tracks[1:] {
		_ = extra.Close()
	}
	log.Info().Str("module", "devices").Msg("display media acquired")
	return newTrack(tracks[0], domain.SourceScreen), nil
}

// capture runs a blocking driver call and gives up on ctx. Tracks acquired
// after the caller left are closed.
func capture(ctx context.Context, get func() ([]mediadevices.Track, error)) ([]mediadevices.Track, error) {
	done := make(chan captureResult, 1)
	go func() {
		tracks, err := get()
		done <- captureResult{tracks: tracks, err: err}
	}()

	select {
	case r := <-done:
		return r.tracks, r.err
	case <-ctx.Done():
		go func() {
			r := <-done
			for _, t := range r.tracks {
				_ = t.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Values are ideals; the driver picks the nearest supported mode.
func videoConstraints(c domain.Constraints) mediadevices.MediaOption {
	return func(mc *mediadevices.MediaTrackConstraints) {
		if c.Width > 0 {
			mc.Width = prop.Int(c.Width)
		}
		if c.Height > 0 {
			mc.Height = prop.Int(c.Height)
		}
		if c.FrameRate > 0 {
			mc.FrameRate = prop.Float(c.FrameRate)
		}
	}
}

func audioConstraints(c domain.Constraints) mediadevices.MediaOption {
	return func(mc *mediadevices.MediaTrackConstraints) {
		if c.SampleRate > 0 {
			mc.SampleRate = prop.Int(c.SampleRate)
		}
		mc.ChannelCount = prop.Int(1)
		mc.IsInterleaved = prop.BoolExact(true)
	}
}

type track struct {
	media  mediadevices.Track
	source domain.TrackSource

	once sync.Once
	err  error
}

var _ core.LocalTrack = (*track)(nil)

func newTrack(t mediadevices.Track, src domain.TrackSource) *track {
	return &track{media: t, source: src}
}

func (t *track) ID() string                 { return t.media.ID() }
func (t *track) Source() domain.TrackSource { return t.source }
func (t *track) RTC() webrtc.TrackLocal     { return t.media }
func (t *track) OnEnded(fn func(error))     { t.media.OnEnded(fn) }

func (t *track) Kind() domain.TrackKind {
	if t.media.Kind() == webrtc.RTPCodecTypeAudio {
		return domain.TrackKindAudio
	}
	return domain.TrackKindVideo
}

func (t *track) Stop() error {
	t.once.Do(func() {
		t.err = t.media.Close()
		log.Debug().Str("module", "devices").Str("track", t.media.ID()).Msg("track stopped")
	})
	return t.err
}
