package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/golive/internal/core"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
)

const teardownTimeout = 5 * time.Second

// finish moves ls to a terminal state and releases everything it holds. Only
// the first call does work; later calls wait for it and return its result.
// Notices raised meanwhile are held and emitted after finished is closed, so a
// listener that calls Disconnect returns at once instead of waiting on itself.
func (c *Controller) finish(ls *liveSession, event string, cause error) error {
	first := false
	ls.once.Do(func() { first = true })
	if !first {
		<-ls.finished
		return ls.teardownErr
	}
	c.holdNotices(ls)

	c.mu.Lock()
	ls.closing = true
	c.mu.Unlock()

	if !c.transition(ls, event) {
		// The machine refused event, e.g. fail from connected: end the session anyway.
		c.transition(ls, evDisconnect)
	}

	err := c.teardown(ls)

	c.mu.Lock()
	if ls.session.EndedAt.IsZero() {
		ls.session.EndedAt = time.Now()
	}
	ended := Ended{Session: ls.session.Snapshot(), Err: cause}
	c.mu.Unlock()

	log.Info().Err(cause).Str("module", "orch").Str("session", string(ls.session.ID)).Str("state", string(ended.Session.State)).Msg("session ended")
	ls.teardownErr = err
	close(ls.finished)

	n := core.Notice{Kind: core.NoticeSessionEnded, State: ended.Session.State, Err: cause}
	if cause != nil {
		n.Message = cause.Error()
	}
	c.notifier(ls)(n)
	c.releaseNotices(ls)
	c.disconnected.Emit(ended)
	return err
}

// teardown runs every release step even when earlier ones fail or panic.
func (c *Controller) teardown(ls *liveSession) error {
	logger := log.With().Str("module", "orch").Str("session", string(ls.session.ID)).Logger()
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	c.mu.Lock()
	ps, pub, mon, unsubs := ls.provider, ls.publisher, ls.monitor, ls.unsubs
	ls.unsubs = nil
	c.mu.Unlock()

	var errs []error
	step := func(name string, fn func() error) {
		var err error
		var pc panics.Catcher
		pc.Try(func() { err = fn() })
		if r := pc.Recovered(); r != nil {
			err = r.AsError()
		}
		if err != nil {
			c.params.Metrics.TeardownError()
			logger.Warn().Err(err).Str("step", name).Msg("teardown step failed")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	step("cancel", func() error {
		ls.cancel()
		ls.stop.Break()
		for _, u := range unsubs {
			u()
		}
		return nil
	})
	if pub != nil {
		step("stop capture", pub.Release)
		step("unpublish", func() error { return pub.UnpublishAll(ctx) })
	}
	step("tracks", func() error {
		ls.tracks.Close()
		return nil
	})
	step("quality polling", func() error {
		ls.watchdog.Stop()
		return nil
	})
	if mon != nil {
		step("audio level", mon.Stop)
	}
	if ps != nil {
		step("provider", func() error { return ps.Close(ctx) })
	}
	step("participants", func() error {
		ls.registry.Reset()
		c.params.Metrics.SetViewers(0)
		return nil
	})

	err := errors.Join(errs...)
	if err == nil {
		logger.Debug().Msg("teardown complete")
	}
	return err
}
