// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sequencer orchestrates full-document generation runs: which
// sections generate, in what order, and with how much concurrency.
package sequencer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/proposal-engine/pkg/types"
)

const (
	defaultSectionDelay    = 500 * time.Millisecond
	defaultStaggerInterval = 200 * time.Millisecond
)

// Outcome is a section's final disposition within one run.
type Outcome string

const (
	// OutcomeComplete marks a section whose generation finished normally.
	OutcomeComplete Outcome = "complete"

	// OutcomeFallback marks a section completed with placeholder content
	// after its generation failed.
	OutcomeFallback Outcome = "fallback"

	// OutcomeSkipped marks a section the run did not touch because it was
	// already streaming or already had content.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeCancelled marks a section whose generation was cut short by
	// context cancellation.
	OutcomeCancelled Outcome = "cancelled"
)

// SectionRunner executes generation for a single section and blocks until
// the section settles. Implementations must not return transport errors;
// those degrade to OutcomeFallback.
type SectionRunner interface {
	GenerateSection(ctx context.Context, sectionID string) (Outcome, error)
}

// Report summarizes one full-document run.
type Report struct {
	// Outcomes maps section id to its disposition.
	Outcomes map[string]Outcome
}

// Sequencer decides order and concurrency for full-document runs.
type Sequencer struct {
	cfg    types.SequencerConfig
	logger *slog.Logger
}

// New creates a Sequencer. Zero durations in cfg take defaults.
func New(cfg types.SequencerConfig, logger *slog.Logger) *Sequencer {
	if cfg.Mode == "" {
		cfg.Mode = types.ModeStaggered
	}
	if cfg.SectionDelay <= 0 {
		cfg.SectionDelay = defaultSectionDelay
	}
	if cfg.StaggerInterval <= 0 {
		cfg.StaggerInterval = defaultStaggerInterval
	}
	return &Sequencer{cfg: cfg, logger: logger}
}

// Run generates every runnable section in sections using runner, honoring
// the configured mode. Sections already streaming or already holding
// content are skipped. Run blocks until every launched section settles or
// ctx is cancelled.
func (s *Sequencer) Run(ctx context.Context, sections []types.Section, runner SectionRunner) Report {
	report := Report{Outcomes: make(map[string]Outcome, len(sections))}

	var runnable []types.Section
	for _, sec := range sections {
		if sec.Streaming || sec.Content != "" {
			report.Outcomes[sec.ID] = OutcomeSkipped
			continue
		}
		runnable = append(runnable, sec)
	}

	if s.cfg.Mode == types.ModeSerial {
		s.runSerial(ctx, runnable, runner, &report)
	} else {
		s.runStaggered(ctx, runnable, runner, &report)
	}
	return report
}

// runSerial starts each section only after the previous one has fully
// completed, with a fixed pause in between: the guided-walkthrough policy.
func (s *Sequencer) runSerial(ctx context.Context, sections []types.Section, runner SectionRunner, report *Report) {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for i, sec := range sections {
		if i > 0 {
			timer.Reset(s.cfg.SectionDelay)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				report.Outcomes[sec.ID] = OutcomeCancelled
				continue
			case <-timer.C:
			}
		}
		report.Outcomes[sec.ID] = s.generate(ctx, runner, sec.ID)
	}
}

// runStaggered kicks all sections off up front with start offsets paced at
// one section per stagger interval, so only a few appear to be typing at
// once.
func (s *Sequencer) runStaggered(ctx context.Context, sections []types.Section, runner SectionRunner, report *Report) {
	limiter := rate.NewLimiter(rate.Every(s.cfg.StaggerInterval), 1)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, sec := range sections {
		if err := limiter.Wait(ctx); err != nil {
			mu.Lock()
			report.Outcomes[sec.ID] = OutcomeCancelled
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			outcome := s.generate(ctx, runner, id)
			mu.Lock()
			report.Outcomes[id] = outcome
			mu.Unlock()
		}(sec.ID)
	}
	wg.Wait()
}

func (s *Sequencer) generate(ctx context.Context, runner SectionRunner, id string) Outcome {
	outcome, err := runner.GenerateSection(ctx, id)
	if err != nil {
		s.logger.Debug("section run cut short", "section", id, "error", err)
		return OutcomeCancelled
	}
	if outcome == OutcomeFallback {
		s.logger.Warn("section completed with fallback content", "section", id)
	}
	return outcome
}
