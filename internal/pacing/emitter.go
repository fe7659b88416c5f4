// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pacing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/pdiddy/proposal-engine/internal/reconcile"
	"github.com/pdiddy/proposal-engine/internal/store"
	"github.com/pdiddy/proposal-engine/pkg/types"
)

// TokenSource reports the current generation token for a section. A reveal
// captures the token it was started with and stops writing as soon as the
// section's current token differs.
type TokenSource interface {
	Current(sectionID string) uint64
}

// Emitter reveals target texts into the section store at a paced rate.
// One Emitter serves a whole document session; each Reveal call owns one
// section for its duration.
type Emitter struct {
	store  *store.Store
	cfg    types.PacingConfig
	tokens TokenSource
	logger *slog.Logger
}

// New creates an Emitter writing through st.
func New(st *store.Store, cfg types.PacingConfig, tokens TokenSource, logger *slog.Logger) *Emitter {
	return &Emitter{store: st, cfg: cfg, tokens: tokens, logger: logger}
}

// Reveal incrementally writes target into the section's content and blocks
// until the reveal completes, ctx is cancelled, or a newer generation token
// supersedes this one. Superseded reveals stop silently: that outcome is a
// conflict skip, not an error.
//
// If the section already holds content that is a prefix of target the
// reveal resumes after it. Divergent existing content is handled per
// divergence: Append queues the full target behind it, Overwrite clears it
// first (the explicit regenerate path).
func (e *Emitter) Reveal(ctx context.Context, sectionID, target string, token uint64, divergence reconcile.DivergencePolicy) error {
	sec, ok := e.store.Get(sectionID)
	if !ok {
		return nil // section removed before the reveal began
	}

	offset, resumable := reconcile.ResumeOffset(sec.Content, target)
	var lead string
	if !resumable {
		if divergence == reconcile.Overwrite {
			if !e.update(sectionID, token, func(s types.Section) types.Section {
				s.Content = ""
				return s
			}) {
				return nil
			}
		} else {
			lead = "\n\n"
		}
		offset = 0
	}

	if offset >= len(target) {
		// Nothing to emit: an empty target or already-revealed content
		// completes immediately with no content writes.
		e.update(sectionID, token, clearStreaming)
		return nil
	}

	if !e.update(sectionID, token, func(s types.Section) types.Section {
		s.Streaming = true
		return s
	}) {
		return nil
	}

	sched := NewSchedule(target, offset, e.cfg, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	prev := offset
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		sl, more := sched.Next()
		if !more {
			e.update(sectionID, token, clearStreaming)
			return nil
		}

		if sl.Delay > 0 {
			timer.Reset(sl.Delay)
			select {
			case <-ctx.Done():
				e.update(sectionID, token, clearStreaming)
				return ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			e.update(sectionID, token, clearStreaming)
			return err
		}

		piece := lead + target[prev:sl.End]
		lead = ""
		prev = sl.End

		// Appending to the latest snapshot, rather than writing a prefix of
		// target, keeps characters the user typed between ticks.
		if !e.update(sectionID, token, func(s types.Section) types.Section {
			s.Content += piece
			return s
		}) {
			e.logger.Debug("reveal superseded", "section", sectionID, "token", token)
			return nil
		}
	}
}

// update applies fn through the store only while token is still the
// section's current token. It reports whether the write was applied. The
// token check runs inside the store updater, so a concurrent token bump
// cannot slip between check and write.
func (e *Emitter) update(sectionID string, token uint64, fn func(types.Section) types.Section) bool {
	applied := false
	e.store.Set(sectionID, func(s types.Section) types.Section {
		if e.tokens.Current(sectionID) != token {
			return s
		}
		applied = true
		return fn(s)
	})
	return applied
}

func clearStreaming(s types.Section) types.Section {
	s.Streaming = false
	return s
}
