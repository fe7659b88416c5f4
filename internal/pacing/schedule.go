// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pacing reveals a known target text into the section store as a
// time-paced sequence of growing prefixes, simulating live typing. The
// slice sizing and delay selection live in a pure Schedule; the Emitter
// drives a Schedule against real timers and the store.
package pacing

import (
	"math/rand/v2"
	"time"
	"unicode/utf8"

	"github.com/pdiddy/proposal-engine/pkg/types"
)

// Slice is one step of a paced reveal: wait Delay, then extend the emitted
// prefix to byte offset End of the target.
type Slice struct {
	End   int
	Delay time.Duration
}

// Schedule produces the lazy, finite sequence of slices for one target
// text. It is pure apart from its random source: no timers, no store
// access. A Schedule is not restartable; a fresh one may resume from any
// offset a previous reveal committed.
type Schedule struct {
	target  []rune
	byteEnd int // byte offset of pos within the target string
	pos     int // rune offset of the next unemitted rune
	cfg     types.PacingConfig
	rng     *rand.Rand
	started bool
}

// NewSchedule creates a schedule over target beginning at startOffset
// (a byte offset on a rune boundary, normally the length of already
// committed content). A nil rng gets an unseeded source.
func NewSchedule(target string, startOffset int, cfg types.PacingConfig, rng *rand.Rand) *Schedule {
	if startOffset < 0 {
		startOffset = 0
	}
	if startOffset > len(target) {
		startOffset = len(target)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Schedule{
		target:  []rune(target),
		byteEnd: startOffset,
		pos:     utf8.RuneCountInString(target[:startOffset]),
		cfg:     cfg,
		rng:     rng,
	}
}

// Next returns the next slice. ok is false once the target is exhausted.
func (s *Schedule) Next() (Slice, bool) {
	if s.pos >= len(s.target) {
		return Slice{}, false
	}

	var delay time.Duration
	if !s.started {
		s.started = true
		delay = s.between(s.cfg.InitialDelayMin, s.cfg.InitialDelayMax)
	} else if pauseAfter(s.target[s.pos-1]) {
		delay = s.between(s.cfg.SentencePauseMin, s.cfg.SentencePauseMax)
	} else {
		delay = s.between(s.cfg.SliceDelayMin, s.cfg.SliceDelayMax)
	}

	n := s.sliceSize()
	if s.pos+n > len(s.target) {
		n = len(s.target) - s.pos
	}
	s.byteEnd += len(string(s.target[s.pos : s.pos+n]))
	s.pos += n

	return Slice{End: s.byteEnd, Delay: delay}, true
}

// sliceSize picks the rune count of the next slice: a small run of
// characters, occasionally a longer burst.
func (s *Schedule) sliceSize() int {
	if s.cfg.BurstChance > 0 && s.rng.Float64() < s.cfg.BurstChance {
		return s.intBetween(s.cfg.BurstMin, s.cfg.BurstMax)
	}
	return s.intBetween(s.cfg.SliceMin, s.cfg.SliceMax)
}

func (s *Schedule) between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(s.rng.Int64N(int64(max-min)))
}

func (s *Schedule) intBetween(min, max int) int {
	if min < 1 {
		min = 1
	}
	if max <= min {
		return min
	}
	return min + s.rng.IntN(max-min)
}

// pauseAfter reports whether r warrants a longer pause before the next
// slice.
func pauseAfter(r rune) bool {
	switch r {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}
