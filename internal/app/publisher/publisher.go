// Package publisher acquires local capture devices and publishes them to the
// provider session. It is the only owner of captured tracks: nothing else stops them.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/golive/internal/core"
	"github.com/dkeye/golive/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var ErrNotPublished = errors.New("track not published")

const screenEndedTimeout = 5 * time.Second

// Handles are the publications created by AcquireAndPublish. Either may be nil
// when the constraints disable that kind or no such device exists.
type Handles struct {
	Audio core.LocalPublication
	Video core.LocalPublication
}

// ownedTrack stops its device track at most once.
type ownedTrack struct {
	core.LocalTrack
	once sync.Once
	err  error
}

func (o *ownedTrack) stop() error {
	o.once.Do(func() { o.err = o.LocalTrack.Stop() })
	return o.err
}

type slot struct {
	track *ownedTrack
	pub   core.LocalPublication
}

type Publisher struct {
	mu      sync.Mutex
	devices core.DeviceSource
	session core.ProviderSession
	cons    domain.Constraints

	camera slot
	mic    slot
	screen slot

	// owned holds every track ever acquired so Release reaches all of them.
	owned []*ownedTrack
}

func New(devices core.DeviceSource, session core.ProviderSession) *Publisher {
	return &Publisher{devices: devices, session: session}
}

// AcquireAndPublish opens camera and microphone with nearest-match constraints
// and publishes both. Device failures return ErrMediaAccess, publish failures ErrProvider.
func (p *Publisher) AcquireAndPublish(ctx context.Context, c domain.Constraints) (Handles, error) {
	p.mu.Lock()
	if p.camera.pub != nil || p.mic.pub != nil {
		h := Handles{Audio: p.mic.pub, Video: p.camera.pub}
		p.mu.Unlock()
		return h, nil
	}
	p.cons = c
	p.mu.Unlock()

	tracks, err := p.devices.GetUserMedia(ctx, c)
	if err != nil {
		return Handles{}, core.NewError(core.ErrMediaAccess, "acquire", err)
	}

	owned := make([]*ownedTrack, 0, len(tracks))
	p.mu.Lock()
	for _, t := range tracks {
		ot := &ownedTrack{LocalTrack: t}
		owned = append(owned, ot)
		p.owned = append(p.owned, ot)
		switch t.Kind() {
		case domain.TrackKindVideo:
			p.camera.track = ot
		case domain.TrackKindAudio:
			p.mic.track = ot
		}
	}
	p.mu.Unlock()

	for _, ot := range owned {
		ot.OnEnded(func(err error) {
			log.Warn().Err(err).Str("module", "publisher").Str("track", ot.ID()).Str("source", string(ot.Source())).Msg("capture track ended")
		})
	}

	pubs := make([]core.LocalPublication, len(owned))
	g, gctx := errgroup.WithContext(ctx)
	for i, ot := range owned {
		g.Go(func() error {
			pub, err := p.session.Publish(gctx, ot, p.options(ot.Source()))
			if err != nil {
				return fmt.Errorf("publish %s: %w", ot.Source(), err)
			}
			pubs[i] = pub
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, pub := range pubs {
			if pub == nil {
				continue
			}
			if uerr := p.session.Unpublish(context.WithoutCancel(ctx), pub); uerr != nil {
				log.Warn().Err(uerr).Str("module", "publisher").Str("publication", pub.SID()).Msg("unpublish after failed publish")
			}
		}
		p.mu.Lock()
		p.camera, p.mic = slot{}, slot{}
		p.mu.Unlock()
		for _, ot := range owned {
			_ = ot.stop()
		}
		return Handles{}, core.NewError(core.ErrProvider, "publish", err)
	}

	var h Handles
	p.mu.Lock()
	for i, ot := range owned {
		switch ot.Kind() {
		case domain.TrackKindVideo:
			p.camera.pub = pubs[i]
			h.Video = pubs[i]
		case domain.TrackKindAudio:
			p.mic.pub = pubs[i]
			h.Audio = pubs[i]
		}
	}
	p.mu.Unlock()

	log.Info().Str("module", "publisher").Int("tracks", len(owned)).Msg("published local tracks")
	return h, nil
}

func (p *Publisher) options(src domain.TrackSource) core.PublishOptions {
	opts := core.PublishOptions{Name: string(src), Source: src}
	if src == domain.SourceCamera {
		opts.Width, opts.Height = p.cons.Width, p.cons.Height
	}
	return opts
}

// SetVideoEnabled mutes or unmutes the camera publication without renegotiating.
func (p *Publisher) SetVideoEnabled(enabled bool) error {
	return p.setEnabled(&p.camera, "camera", enabled)
}

// SetAudioEnabled mutes or unmutes the microphone publication without renegotiating.
func (p *Publisher) SetAudioEnabled(enabled bool) error {
	return p.setEnabled(&p.mic, "microphone", enabled)
}

func (p *Publisher) setEnabled(s *slot, name string, enabled bool) error {
	p.mu.Lock()
	pub := s.pub
	p.mu.Unlock()
	if pub == nil {
		return fmt.Errorf("%s: %w", name, ErrNotPublished)
	}
	if err := pub.SetMuted(!enabled); err != nil {
		return fmt.Errorf("%s set muted: %w", name, err)
	}
	log.Debug().Str("module", "publisher").Str("publication", pub.SID()).Bool("enabled", enabled).Msg(name + " toggled")
	return nil
}

func (p *Publisher) VideoEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.camera.pub != nil && !p.camera.pub.Muted()
}

func (p *Publisher) AudioEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mic.pub != nil && !p.mic.pub.Muted()
}

// SetScreenShareEnabled adds or removes a screen-share video publication. The
// camera publication is never touched.
func (p *Publisher) SetScreenShareEnabled(ctx context.Context, enabled bool) error {
	if !enabled {
		p.mu.Lock()
		s := p.screen
		p.screen = slot{}
		p.mu.Unlock()
		return p.dropScreen(ctx, s)
	}

	p.mu.Lock()
	if p.screen.pub != nil {
		p.mu.Unlock()
		return nil
	}
	cons := p.cons
	p.mu.Unlock()

	if !p.session.Capabilities().ScreenShare {
		return core.NewError(core.ErrUnsupported, "screen share", nil)
	}
	track, err := p.devices.GetDisplayMedia(ctx, cons)
	if err != nil {
		return core.NewError(core.ErrMediaAccess, "screen share", err)
	}
	ot := &ownedTrack{LocalTrack: track}
	p.mu.Lock()
	p.owned = append(p.owned, ot)
	p.mu.Unlock()

	pub, err := p.session.Publish(ctx, ot, p.options(domain.SourceScreen))
	if err != nil {
		_ = ot.stop()
		return core.NewError(core.ErrProvider, "screen share", err)
	}

	p.mu.Lock()
	p.screen = slot{track: ot, pub: pub}
	p.mu.Unlock()

	ot.OnEnded(func(err error) { p.screenEnded(ot, err) })
	log.Info().Str("module", "publisher").Str("publication", pub.SID()).Msg("screen share started")
	return nil
}

// screenEnded cleans up after the user stops sharing from the device side.
func (p *Publisher) screenEnded(ot *ownedTrack, cause error) {
	p.mu.Lock()
	if p.screen.track != ot {
		p.mu.Unlock()
		return
	}
	s := p.screen
	p.screen = slot{}
	p.mu.Unlock()

	log.Info().Err(cause).Str("module", "publisher").Msg("screen share ended by device")
	ctx, cancel := context.WithTimeout(context.Background(), screenEndedTimeout)
	defer cancel()
	if err := p.dropScreen(ctx, s); err != nil {
		log.Warn().Err(err).Str("module", "publisher").Msg("screen share cleanup")
	}
}

func (p *Publisher) dropScreen(ctx context.Context, s slot) error {
	var errs []error
	if s.pub != nil {
		errs = append(errs, p.session.Unpublish(ctx, s.pub))
	}
	if s.track != nil {
		errs = append(errs, s.track.stop())
	}
	return errors.Join(errs...)
}

func (p *Publisher) ScreenShareEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.screen.pub != nil
}

// Publications counts live local publications.
func (p *Publisher) Publications() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range []slot{p.camera, p.mic, p.screen} {
		if s.pub != nil {
			n++
		}
	}
	return n
}

// AudioTrack returns the captured microphone track, if any.
func (p *Publisher) AudioTrack() core.LocalTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mic.track == nil {
		return nil
	}
	return p.mic.track.LocalTrack
}

// UnpublishAll removes every local publication from the session. Tracks are kept.
func (p *Publisher) UnpublishAll(ctx context.Context) error {
	p.mu.Lock()
	var pubs []core.LocalPublication
	for _, s := range []*slot{&p.camera, &p.mic, &p.screen} {
		if s.pub != nil {
			pubs = append(pubs, s.pub)
			s.pub = nil
		}
	}
	p.mu.Unlock()

	var errs []error
	for _, pub := range pubs {
		if err := p.session.Unpublish(ctx, pub); err != nil {
			errs = append(errs, fmt.Errorf("unpublish %s: %w", pub.SID(), err))
		}
	}
	return errors.Join(errs...)
}

// Release stops every acquired device track exactly once. Safe to call repeatedly.
func (p *Publisher) Release() error {
	p.mu.Lock()
	owned := p.owned
	p.owned = nil
	p.camera.track, p.mic.track, p.screen.track = nil, nil, nil
	p.mu.Unlock()

	var errs []error
	for _, ot := range owned {
		if err := ot.stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", ot.ID(), err))
		}
	}
	if len(owned) > 0 {
		log.Info().Str("module", "publisher").Int("tracks", len(owned)).Msg("capture released")
	}
	return errors.Join(errs...)
}
